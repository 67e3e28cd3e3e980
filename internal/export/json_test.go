package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONExporter_Export(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
	}{
		{
			name:    "basic session",
			session: testSession("test1"),
		},
		{
			name:    "empty session",
			session: &Session{ID: "test2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			exporter := &JSONExporter{}

			if err := exporter.Export(tt.session, &buf); err != nil {
				t.Fatalf("JSONExporter.Export() error = %v", err)
			}

			var decoded Session
			if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
				t.Fatalf("Output is not valid JSON: %v", err)
			}
			if decoded.ID != tt.session.ID {
				t.Errorf("Round-tripped ID = %q, want %q", decoded.ID, tt.session.ID)
			}
			if len(decoded.Conversation) != len(tt.session.Conversation) {
				t.Errorf("Round-tripped %d turns, want %d", len(decoded.Conversation), len(tt.session.Conversation))
			}

			// Pretty printing
			if !strings.Contains(buf.String(), "\n  ") {
				t.Error("Output should be indented")
			}
		})
	}
}

func TestJSONExporter_TreeRoundTrip(t *testing.T) {
	session := testSession("tree")

	var buf bytes.Buffer
	if err := (&JSONExporter{}).Export(session, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var decoded Session
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if decoded.Tree == nil || decoded.Tree.Root != "root" {
		t.Fatalf("Tree root lost in export: %+v", decoded.Tree)
	}
	node, ok := decoded.Tree.Elements["title"]
	if !ok {
		t.Fatal("title element lost in export")
	}
	if node.ParentKey != "root" {
		t.Errorf("title parentKey = %q, want root", node.ParentKey)
	}
}

func TestJSONExporter_Extension(t *testing.T) {
	exporter := &JSONExporter{}
	if got := exporter.Extension(); got != "json" {
		t.Errorf("JSONExporter.Extension() = %v, want json", got)
	}
}
