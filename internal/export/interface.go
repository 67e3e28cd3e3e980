package export

import (
	"fmt"
	"io"

	"github.com/iksnae/uistream/internal"
)

// Session is the exportable view of one stored session: the final tree plus
// the conversation that produced it.
type Session struct {
	ID           string                       `json:"id" yaml:"id"`
	Title        string                       `json:"title,omitempty" yaml:"title,omitempty"`
	Tree         *internal.Tree               `json:"tree" yaml:"tree"`
	Conversation []*internal.ConversationTurn `json:"conversation" yaml:"conversation"`
}

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(session *Session, w io.Writer) error
	Extension() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: jsonl, md, yaml, json)", format)
	}
}
