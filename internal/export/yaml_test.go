package export

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestYAMLExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	exporter := &YAMLExporter{}

	if err := exporter.Export(testSession("yaml1"), &buf); err != nil {
		t.Fatalf("YAMLExporter.Export() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid YAML: %v", err)
	}
	if decoded["id"] != "yaml1" {
		t.Errorf("id = %v, want yaml1", decoded["id"])
	}
	if !strings.Contains(buf.String(), "build a report") {
		t.Error("Output should contain the user message")
	}
}

func TestYAMLExporter_EmptySession(t *testing.T) {
	var buf bytes.Buffer
	if err := (&YAMLExporter{}).Export(&Session{ID: "empty"}, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(buf.String(), "id: empty") {
		t.Errorf("Output missing id, got: %s", buf.String())
	}
}

func TestYAMLExporter_Extension(t *testing.T) {
	exporter := &YAMLExporter{}
	if got := exporter.Extension(); got != "yaml" {
		t.Errorf("YAMLExporter.Extension() = %v, want yaml", got)
	}
}
