package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/uistream/internal"
	"github.com/spf13/cobra"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Long:  `List all sessions in the session store, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		sessions, err := store.ListSessions()
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		displaySessions(sessions)
		return nil
	},
}

func displaySessions(sessions []internal.SessionInfo) {
	if len(sessions) == 0 {
		fmt.Println(headerStyle.Render("📋 No sessions found"))
		return
	}

	header := headerStyle.Render(fmt.Sprintf("📋 Found %d session(s)", len(sessions)))
	fmt.Println(header)
	fmt.Println()

	// Use tabwriter for aligned columns with better spacing
	w := tabwriter.NewWriter(lipgloss.DefaultRenderer().Output(), 0, 0, 3, ' ', tabwriter.AlignRight)

	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("Turns")+"\t"+titleStyle.Render("Updated")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))

	for _, session := range sessions {
		title := session.Title
		if title == "" {
			title = "Untitled"
		}
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		titleCell := lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Render(title)

		turns := countStyle.Render(strconv.Itoa(session.TurnCount))
		updated := dateStyle.Render(relativeDate(session.UpdatedAt))

		// Show short ID (first 8 chars) for readability
		shortID := session.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}
		id := idStyle.Render(shortID)

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", id, titleCell, turns, updated)
	}

	_ = w.Flush()
	fmt.Println()
	fmt.Println(idStyle.Render("💡 Tip: Use the full ID (e.g., ") +
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render(sessions[0].ID) +
		idStyle.Render(") with `uistream show <id>`"))
}

func relativeDate(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
}
