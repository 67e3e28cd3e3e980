package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/uistream/internal"
)

// MarkdownExporter exports sessions in Markdown format
type MarkdownExporter struct{}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(session *Session, w io.Writer) error {
	// Header
	_, _ = fmt.Fprintf(w, "# Session %s\n\n", session.ID)

	if session.Title != "" {
		_, _ = fmt.Fprintf(w, "**Title:** %s  \n", session.Title)
	}
	_, _ = fmt.Fprintf(w, "**Turns:** %d\n\n", len(session.Conversation))

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Conversation\n\n")

	for i, turn := range session.Conversation {
		timestamp := ""
		if !turn.Timestamp.IsZero() {
			timestamp = fmt.Sprintf(" (%s)", turn.Timestamp.Format("2006-01-02 15:04:05"))
		}

		_, _ = fmt.Fprintf(w, "**user:**%s\n\n%s\n\n", timestamp, escapeMarkdown(turn.UserMessage))

		for _, msg := range turn.AssistantMessages {
			role := msg.Role
			if role == "" {
				role = "assistant"
			}
			_, _ = fmt.Fprintf(w, "**%s:**\n\n%s\n\n", role, escapeMarkdown(msg.Content))
		}

		if turn.Status == internal.TurnFailed && turn.Error != "" {
			_, _ = fmt.Fprintf(w, "*turn failed: %s*\n\n", turn.Error)
		}

		// Add horizontal rule after each turn (except the last one)
		if i < len(session.Conversation)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	if session.Tree != nil && session.Tree.Root != "" {
		_, _ = fmt.Fprintf(w, "---\n\n")
		_, _ = fmt.Fprintf(w, "## Tree\n\n")
		writeOutline(w, session.Tree, session.Tree.Root, 0, map[string]bool{})
		_, _ = fmt.Fprintf(w, "\n")
	}

	return nil
}

// writeOutline renders the element tree as an indented bullet list, depth
// first from the root. The seen set guards against parentKey cycles.
func writeOutline(w io.Writer, tree *internal.Tree, key string, depth int, seen map[string]bool) {
	if seen[key] {
		return
	}
	seen[key] = true

	node, ok := tree.Elements[key]
	if !ok {
		_, _ = fmt.Fprintf(w, "%s- %s (missing)\n", strings.Repeat("  ", depth), key)
		return
	}
	_, _ = fmt.Fprintf(w, "%s- %s (%s)\n", strings.Repeat("  ", depth), key, node.Type)
	for _, child := range node.Children {
		writeOutline(w, tree, child, depth+1, seen)
	}
}

// escapeMarkdown escapes markdown special characters
func escapeMarkdown(text string) string {
	// Basic escaping - preserve code blocks
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			// Escape markdown syntax outside code blocks
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
