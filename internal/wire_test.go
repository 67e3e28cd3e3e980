package internal

import (
	"bytes"
	"os"
	"reflect"
	"strings"
	"testing"
)

func TestParseLine_Framing(t *testing.T) {
	tests := []struct {
		name string
		line string
		want *WireEvent
	}{
		{name: "unmarked line skipped", line: `{"event":{"kind":"done"}}`, want: nil},
		{name: "comment line skipped", line: ": keepalive", want: nil},
		{name: "empty payload skipped", line: "data:   ", want: nil},
		{name: "done sentinel", line: "data:[DONE]", want: &WireEvent{Kind: EventDone}},
		{name: "done with space", line: "data: [DONE]", want: &WireEvent{Kind: EventDone}},
		{name: "done event kind", line: `data:{"event":{"kind":"done"}}`, want: &WireEvent{Kind: EventDone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLine(tt.line)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseLine_CanonicalEvents(t *testing.T) {
	t.Run("message", func(t *testing.T) {
		event := ParseLine(`data:{"seq":7,"event":{"kind":"message","id":"m1","mode":"append","role":"assistant","content":"hi"}}`)
		if event == nil || event.Kind != EventMessage {
			t.Fatalf("event = %+v", event)
		}
		if event.Seq != 7 {
			t.Errorf("Seq = %d, want 7", event.Seq)
		}
		if event.Message.ID != "m1" || event.Message.Mode != "append" || event.Message.Content != "hi" {
			t.Errorf("Message = %+v", event.Message)
		}
	})

	t.Run("message mode defaults to replace", func(t *testing.T) {
		event := ParseLine(`data:{"event":{"kind":"message","role":"assistant","content":"hi"}}`)
		if event.Message.Mode != "replace" {
			t.Errorf("Mode = %q, want replace", event.Message.Mode)
		}
	})

	t.Run("patch with atomic flag", func(t *testing.T) {
		event := ParseLine(`data:{"event":{"kind":"patch","atomic":true,"patches":[{"op":"set","path":"/root","value":"a"}]}}`)
		if event == nil || event.Kind != EventPatch {
			t.Fatalf("event = %+v", event)
		}
		if !event.Atomic {
			t.Error("Atomic should be true")
		}
		if len(event.Patches) != 1 || event.Patches[0].Op != OpSet || event.Patches[0].Path != "/root" {
			t.Errorf("Patches = %+v", event.Patches)
		}
	})

	t.Run("control", func(t *testing.T) {
		event := ParseLine(`data:{"event":{"kind":"control","type":"plan-created","data":{"planId":"p1"}}}`)
		if event == nil || event.Kind != EventControl {
			t.Fatalf("event = %+v", event)
		}
		if event.Control.Type != ControlPlanCreated {
			t.Errorf("Type = %q", event.Control.Type)
		}
		if event.Control.Data["planId"] != "p1" {
			t.Errorf("Data = %v", event.Control.Data)
		}
	})

	t.Run("unknown control type mapped", func(t *testing.T) {
		event := ParseLine(`data:{"event":{"kind":"control","type":"brand-new-thing"}}`)
		if event.Control.Type != ControlUnknown {
			t.Errorf("Type = %q, want %q", event.Control.Type, ControlUnknown)
		}
	})

	t.Run("progress", func(t *testing.T) {
		event := ParseLine(`data:{"event":{"kind":"progress","toolName":"search","toolCallId":"c1","status":"running"}}`)
		if event == nil || event.Kind != EventProgress {
			t.Fatalf("event = %+v", event)
		}
		if event.Progress.ToolName != "search" || event.Progress.Status != "running" {
			t.Errorf("Progress = %+v", event.Progress)
		}
	})

	t.Run("in-band error", func(t *testing.T) {
		event := ParseLine(`data:{"event":{"kind":"error","code":"rate_limited","message":"slow down","recoverable":true}}`)
		if event == nil || event.Kind != EventError {
			t.Fatalf("event = %+v", event)
		}
		if event.StreamErr.Code != "rate_limited" || !event.StreamErr.Recoverable {
			t.Errorf("StreamErr = %+v", event.StreamErr)
		}
	})
}

func TestParseLine_LegacyPayloads(t *testing.T) {
	t.Run("bare op payload", func(t *testing.T) {
		event := ParseLine(`data:{"op":"set","path":"/elements/a","value":{"type":"Text"}}`)
		if event == nil || event.Kind != EventPatch {
			t.Fatalf("event = %+v", event)
		}
		if len(event.Patches) != 1 || event.Patches[0].Path != "/elements/a" {
			t.Errorf("Patches = %+v", event.Patches)
		}
	})

	t.Run("patches list payload", func(t *testing.T) {
		event := ParseLine(`data:{"patches":[{"op":"set","path":"/root","value":"a"},{"op":"remove","path":"/elements/b"}]}`)
		if event == nil || event.Kind != EventPatch {
			t.Fatalf("event = %+v", event)
		}
		if len(event.Patches) != 2 {
			t.Errorf("Patches = %+v", event.Patches)
		}
	})

	t.Run("question payload", func(t *testing.T) {
		event := ParseLine(`data:{"question":"which chart type?"}`)
		if event == nil || event.Kind != EventQuestion {
			t.Fatalf("event = %+v", event)
		}
		if event.Question != "which chart type?" {
			t.Errorf("Question = %q", event.Question)
		}
	})

	t.Run("suggestions payload", func(t *testing.T) {
		event := ParseLine(`data:{"suggestions":["bar","line"]}`)
		if event == nil || event.Kind != EventSuggestion {
			t.Fatalf("event = %+v", event)
		}
		if !reflect.DeepEqual(event.Suggestions, []string{"bar", "line"}) {
			t.Errorf("Suggestions = %v", event.Suggestions)
		}
	})

	t.Run("mixed payload prioritizes non-patch", func(t *testing.T) {
		event := ParseLine(`data:{"op":"set","path":"/root","value":"a","question":"pick one"}`)
		if event == nil || event.Kind != EventQuestion {
			t.Fatalf("Mixed payload should classify as question, got %+v", event)
		}
		if len(event.Patches) != 0 {
			t.Errorf("Patch portion should be dropped, got %+v", event.Patches)
		}
	})

	t.Run("question and suggestions together warns about the drop", func(t *testing.T) {
		var buf bytes.Buffer
		SetLogOutput(&buf)
		defer SetLogOutput(os.Stderr)

		event := ParseLine(`data:{"question":"pick one","suggestions":["bar","line"]}`)
		if event == nil || event.Kind != EventQuestion || event.Question != "pick one" {
			t.Fatalf("event = %+v, want the question to win", event)
		}
		if !strings.Contains(buf.String(), "suggestions") {
			t.Errorf("dropping the suggestions sibling must be logged, got: %q", buf.String())
		}
	})
}

func TestParseLine_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantCode string
	}{
		{name: "malformed json", line: `data:{not json`, wantCode: "malformed_json"},
		{name: "schema violation", line: `data:{"unrelated":true}`, wantCode: "schema_validation"},
		{name: "bad patch entries", line: `data:{"patches":[{"op":"set"}]}`, wantCode: "schema_validation"},
		{name: "unknown event kind", line: `data:{"event":{"kind":"telemetry"}}`, wantCode: "schema_validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := ParseLine(tt.line)
			if event == nil || event.Kind != EventError {
				t.Fatalf("event = %+v, want error event", event)
			}
			if event.StreamErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", event.StreamErr.Code, tt.wantCode)
			}
			if !event.StreamErr.Recoverable {
				t.Error("Protocol errors must be recoverable: the frame is dropped, the stream continues")
			}
		})
	}
}

func TestParseLine_CRLF(t *testing.T) {
	event := ParseLine("data:[DONE]\r")
	if event == nil || event.Kind != EventDone {
		t.Errorf("CRLF line endings should be tolerated, got %+v", event)
	}
}
