package cmd

import (
	"fmt"
	"strings"

	"github.com/iksnae/uistream/internal"
)

// renderToolProgress renders a turn's tool activity as an indented list,
// headed by the research phase inferred from the newest recognizable message.
func renderToolProgress(progress []internal.ProgressEvent) string {
	if len(progress) == 0 {
		return ""
	}

	header := "tools:"
	if phase := internal.InferResearchPhase(progress, internal.NewKeywordPhaseClassifier()); phase != "" {
		header = fmt.Sprintf("tools (%s):", phase)
	}

	var b strings.Builder
	b.WriteString(typeStyle.Render(header) + "\n")
	for _, p := range progress {
		line := "  " + p.ToolName
		if p.Status != "" {
			line += " [" + p.Status + "]"
		}
		if p.Message != "" {
			line += " " + p.Message
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
