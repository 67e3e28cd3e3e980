package cmd

import (
	"strings"
	"testing"

	"github.com/iksnae/uistream/internal"
)

func TestRenderToolProgress(t *testing.T) {
	t.Run("empty progress renders nothing", func(t *testing.T) {
		if out := renderToolProgress(nil); out != "" {
			t.Errorf("renderToolProgress(nil) = %q, want empty", out)
		}
	})

	t.Run("inferred phase heads the list", func(t *testing.T) {
		out := renderToolProgress([]internal.ProgressEvent{
			{ToolName: "web_search", Status: "done", Message: "Searching for recent papers"},
			{ToolName: "fetch_page", Status: "running", Message: "Reading arxiv.org/abs/1234"},
		})
		if !strings.Contains(out, "tools (reading):") {
			t.Errorf("header missing the phase from the newest message, got:\n%s", out)
		}
		if !strings.Contains(out, "web_search [done] Searching for recent papers") {
			t.Errorf("progress line missing, got:\n%s", out)
		}
		if !strings.Contains(out, "fetch_page [running] Reading arxiv.org/abs/1234") {
			t.Errorf("progress line missing, got:\n%s", out)
		}
	})

	t.Run("no recognizable message keeps a plain header", func(t *testing.T) {
		out := renderToolProgress([]internal.ProgressEvent{
			{ToolName: "calculator", Status: "done"},
		})
		if !strings.Contains(out, "tools:") || strings.Contains(out, "tools (") {
			t.Errorf("want an unannotated header, got:\n%s", out)
		}
	})
}
