package internal

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// streamMarker prefixes every data line of the transport. Lines with any
// other prefix belong to unrelated framing and are ignored.
const streamMarker = "data:"

// doneSentinel is the terminal payload that ends a stream.
const doneSentinel = "[DONE]"

// WireEventKind discriminates the parsed stream event union.
type WireEventKind string

const (
	EventControl    WireEventKind = "control"
	EventProgress   WireEventKind = "progress"
	EventMessage    WireEventKind = "message"
	EventPatch      WireEventKind = "patch"
	EventQuestion   WireEventKind = "question"
	EventSuggestion WireEventKind = "suggestion"
	EventError      WireEventKind = "error"
	EventDone       WireEventKind = "done"
)

// Control event subtypes. Unrecognized subtypes map to ControlUnknown.
const (
	ControlStreamingStarted     = "streaming-started"
	ControlPersistedAttachments = "persisted-attachments"
	ControlPlanCreated          = "plan-created"
	ControlStepStarted          = "step-started"
	ControlStepDone             = "step-done"
	ControlSubtaskStarted       = "subtask-started"
	ControlSubtaskDone          = "subtask-done"
	ControlLevelStarted         = "level-started"
	ControlLevelCompleted       = "level-completed"
	ControlOrchestrationDone    = "orchestration-done"
	ControlDocumentIndex        = "document-index-ui"
	ControlCitations            = "citations"
	ControlUnknown              = "unknown"
)

// WireEvent is one classified stream event. Exactly the field matching Kind
// is populated.
type WireEvent struct {
	Kind        WireEventKind
	Seq         int64
	Control     *ControlEvent
	Progress    *ProgressEvent
	Message     *MessageEvent
	Patches     []Patch
	Atomic      bool
	Question    string
	Suggestions []string
	StreamErr   *StreamErrorEvent
}

// ControlEvent is a low-volume lifecycle or plan-track event.
type ControlEvent struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// ProgressEvent reports tool-call progress.
type ProgressEvent struct {
	ToolName   string                 `json:"toolName"`
	ToolCallID string                 `json:"toolCallId"`
	Status     string                 `json:"status"`
	Message    string                 `json:"message,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Progress   float64                `json:"progress,omitempty"`
}

// MessageEvent carries one increment of assistant (or other role) text.
// Mode "append" concatenates onto the message with the same ID, "replace"
// and "final" overwrite it; an event with no ID always starts a new message.
type MessageEvent struct {
	ID      string `json:"id,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamErrorEvent is a terminal or recoverable error reported in-band.
type StreamErrorEvent struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// frameSchema validates the decoded wire frame before classification. The
// alternate top-level shapes are the legacy payloads the normalizer folds
// into the canonical event union.
const frameSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "seq": {"type": "integer", "minimum": 0},
    "event": {
      "type": "object",
      "properties": {
        "kind": {"enum": ["control", "progress", "message", "patch", "error", "done"]},
        "type": {"type": "string"},
        "patches": {"type": "array", "items": {"$ref": "#/definitions/patch"}},
        "atomic": {"type": "boolean"},
        "id": {"type": "string"},
        "mode": {"enum": ["final", "append", "replace"]},
        "role": {"type": "string"},
        "content": {"type": "string"},
        "toolName": {"type": "string"},
        "toolCallId": {"type": "string"},
        "status": {"type": "string"},
        "code": {"type": "string"},
        "message": {"type": "string"},
        "recoverable": {"type": "boolean"}
      },
      "required": ["kind"]
    },
    "op": {"enum": ["set", "add", "replace", "remove", "ensure"]},
    "path": {"type": "string"},
    "patches": {"type": "array", "items": {"$ref": "#/definitions/patch"}},
    "question": {"type": "string"},
    "suggestions": {"type": "array", "items": {"type": "string"}}
  },
  "anyOf": [
    {"required": ["event"]},
    {"required": ["op", "path"]},
    {"required": ["patches"]},
    {"required": ["question"]},
    {"required": ["suggestions"]}
  ],
  "definitions": {
    "patch": {
      "type": "object",
      "properties": {
        "op": {"enum": ["set", "add", "replace", "remove", "ensure"]},
        "path": {"type": "string", "minLength": 1}
      },
      "required": ["op", "path"]
    }
  }
}`

var (
	frameSchemaOnce     sync.Once
	compiledFrameSchema *jsonschema.Schema
)

func getFrameSchema() *jsonschema.Schema {
	frameSchemaOnce.Do(func() {
		compiledFrameSchema = jsonschema.MustCompileString("frame.schema.json", frameSchema)
	})
	return compiledFrameSchema
}

// ParseLine decodes one line of the streamed transport into a classified
// event. Lines without the stream marker return nil and are skipped. A frame
// that fails schema validation returns a non-fatal error event carrying the
// diagnostics instead of an application error, so the caller decides whether
// to continue or abort.
func ParseLine(line string) *WireEvent {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, streamMarker) {
		return nil
	}
	payload := strings.TrimSpace(line[len(streamMarker):])
	if payload == "" {
		return nil
	}
	if payload == doneSentinel {
		return &WireEvent{Kind: EventDone}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return protocolErrorEvent("malformed_json", err.Error())
	}
	if err := getFrameSchema().Validate(raw); err != nil {
		return protocolErrorEvent("schema_validation", err.Error())
	}

	seq := int64(0)
	if n, ok := raw["seq"].(float64); ok {
		seq = int64(n)
	}

	if eventRaw, ok := raw["event"].(map[string]interface{}); ok {
		event := classifyFrame(eventRaw)
		if event != nil {
			event.Seq = seq
		}
		return event
	}
	event := normalizeLegacyPayload(raw)
	if event != nil {
		event.Seq = seq
	}
	return event
}

func protocolErrorEvent(code, details string) *WireEvent {
	return &WireEvent{
		Kind: EventError,
		StreamErr: &StreamErrorEvent{
			Code:        code,
			Message:     details,
			Recoverable: true,
		},
	}
}

// classifyFrame dispatches a canonical frame on event.kind.
func classifyFrame(eventRaw map[string]interface{}) *WireEvent {
	kind, _ := eventRaw["kind"].(string)
	switch WireEventKind(kind) {
	case EventDone:
		return &WireEvent{Kind: EventDone}
	case EventControl:
		var control ControlEvent
		if err := reencode(eventRaw, &control); err != nil {
			return protocolErrorEvent("bad_control", err.Error())
		}
		if !knownControlType(control.Type) {
			control.Type = ControlUnknown
		}
		return &WireEvent{Kind: EventControl, Control: &control}
	case EventProgress:
		var progress ProgressEvent
		if err := reencode(eventRaw, &progress); err != nil {
			return protocolErrorEvent("bad_progress", err.Error())
		}
		return &WireEvent{Kind: EventProgress, Progress: &progress}
	case EventMessage:
		var message MessageEvent
		if err := reencode(eventRaw, &message); err != nil {
			return protocolErrorEvent("bad_message", err.Error())
		}
		if message.Mode == "" {
			message.Mode = "replace"
		}
		return &WireEvent{Kind: EventMessage, Message: &message}
	case EventPatch:
		patches, err := decodePatches(eventRaw["patches"])
		if err != nil {
			return protocolErrorEvent("bad_patch", err.Error())
		}
		atomic, _ := eventRaw["atomic"].(bool)
		return &WireEvent{Kind: EventPatch, Patches: patches, Atomic: atomic}
	case EventError:
		var streamErr StreamErrorEvent
		if err := reencode(eventRaw, &streamErr); err != nil {
			return protocolErrorEvent("bad_error", err.Error())
		}
		return &WireEvent{Kind: EventError, StreamErr: &streamErr}
	default:
		return protocolErrorEvent("unknown_kind", "unrecognized event kind "+kind)
	}
}

// normalizeLegacyPayload folds the alternate payload shapes into the same
// event union: a bare {op,path,value}, a {patches:[...]} list, or a
// {question}/{suggestions} sibling payload. A payload mixing patch and
// non-patch portions cannot be represented as one frame; the non-patch
// portion is prioritized and the conflict reported as a warning.
func normalizeLegacyPayload(raw map[string]interface{}) *WireEvent {
	_, hasOp := raw["op"]
	_, hasPatches := raw["patches"]
	question, hasQuestion := raw["question"].(string)
	suggestionsRaw, hasSuggestions := raw["suggestions"]

	hasPatch := hasOp || hasPatches
	if hasPatch && (hasQuestion || hasSuggestions) {
		LogWarn("Stream payload mixes patch and non-patch operations; dropping the patch portion")
		hasPatch = false
	}

	switch {
	case hasQuestion:
		if hasSuggestions {
			LogWarn("Stream payload carries both question and suggestions; dropping the suggestions")
		}
		return &WireEvent{Kind: EventQuestion, Question: question}
	case hasSuggestions:
		suggestions, err := stringList(suggestionsRaw)
		if err != nil {
			return protocolErrorEvent("bad_suggestions", err.Error())
		}
		return &WireEvent{Kind: EventSuggestion, Suggestions: suggestions}
	case hasPatches:
		patches, err := decodePatches(raw["patches"])
		if err != nil {
			return protocolErrorEvent("bad_patch", err.Error())
		}
		atomic, _ := raw["atomic"].(bool)
		return &WireEvent{Kind: EventPatch, Patches: patches, Atomic: atomic}
	case hasOp:
		var patch Patch
		if err := reencode(raw, &patch); err != nil {
			return protocolErrorEvent("bad_patch", err.Error())
		}
		return &WireEvent{Kind: EventPatch, Patches: []Patch{patch}}
	default:
		return protocolErrorEvent("unclassifiable", "payload matches no known shape")
	}
}

func decodePatches(value interface{}) ([]Patch, error) {
	var patches []Patch
	if err := reencode(value, &patches); err != nil {
		return nil, err
	}
	return patches, nil
}

func knownControlType(t string) bool {
	switch t {
	case ControlStreamingStarted, ControlPersistedAttachments, ControlPlanCreated,
		ControlStepStarted, ControlStepDone, ControlSubtaskStarted, ControlSubtaskDone,
		ControlLevelStarted, ControlLevelCompleted, ControlOrchestrationDone,
		ControlDocumentIndex, ControlCitations:
		return true
	}
	return false
}

func stringList(value interface{}) ([]string, error) {
	var list []string
	if err := reencode(value, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// reencode converts between generic JSON shapes and typed structs.
func reencode(from, to interface{}) error {
	data, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, to)
}
