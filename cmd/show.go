package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/uistream/internal"
	"github.com/spf13/cobra"
)

var (
	showTreeOnly bool
	showJSON     bool
)

var (
	roleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	elementStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214"))
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a stored session's conversation and tree",
	Long: `Show one stored session: the conversation turns followed by the element
tree as an indented outline. Use 'uistream list' to see available IDs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		snapshot, err := store.LoadSession(args[0])
		if err != nil {
			return fmt.Errorf("session not found: %s (use 'uistream list' to see available sessions)", args[0])
		}

		if showJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot)
		}

		if !showTreeOnly {
			for i, turn := range snapshot.Conversation {
				fmt.Printf("%s %s\n\n", roleStyle.Render("user:"), turn.UserMessage)
				for _, msg := range turn.AssistantMessages {
					role := msg.Role
					if role == "" {
						role = "assistant"
					}
					fmt.Printf("%s %s\n\n", roleStyle.Render(role+":"), msg.Content)
				}
				if out := renderToolProgress(turn.ToolProgress); out != "" {
					fmt.Println(out)
					fmt.Println()
				}
				if turn.Status == internal.TurnFailed {
					internal.PrintWarning("Turn failed: " + turn.Error)
				}
				if i < len(snapshot.Conversation)-1 {
					fmt.Println(strings.Repeat("─", 60))
				}
			}
			fmt.Println()
		}

		fmt.Println(renderTree(snapshot.Tree))
		return nil
	},
}

// renderTree renders the element tree as an indented outline from the root.
// Orphaned elements (present in the map but unreachable) are counted after.
func renderTree(tree *internal.Tree) string {
	if tree == nil || tree.Root == "" {
		return typeStyle.Render("(empty tree)")
	}

	var b strings.Builder
	seen := map[string]bool{}
	renderNode(&b, tree, tree.Root, 0, seen)

	orphans := 0
	for key := range tree.Elements {
		if !seen[key] {
			orphans++
		}
	}
	if orphans > 0 {
		b.WriteString(typeStyle.Render(fmt.Sprintf("(%d unreachable element(s))", orphans)))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderNode(b *strings.Builder, tree *internal.Tree, key string, depth int, seen map[string]bool) {
	if seen[key] {
		return
	}
	seen[key] = true

	indent := strings.Repeat("  ", depth)
	node, ok := tree.Elements[key]
	if !ok {
		b.WriteString(indent + placeholderStyle.Render(key+" (missing)") + "\n")
		return
	}

	label := elementStyle.Render(key) + " " + typeStyle.Render(node.Type)
	if node.Meta != nil && node.Meta.IsPlaceholder {
		label = placeholderStyle.Render(key) + " " + typeStyle.Render("(placeholder)")
	}
	b.WriteString(indent + label + "\n")

	for _, child := range node.Children {
		renderNode(b, tree, child, depth+1, seen)
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showTreeOnly, "tree", false, "Show only the element tree")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Dump the raw session snapshot as JSON")
}
