package export

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONLExporter exports sessions in JSONL format (one message per line)
type JSONLExporter struct{}

// Export exports a session to JSONL format
func (e *JSONLExporter) Export(session *Session, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, turn := range session.Conversation {
		obj := map[string]interface{}{
			"turn":    turn.ID,
			"role":    "user",
			"content": turn.UserMessage,
		}
		if !turn.Timestamp.IsZero() {
			obj["timestamp"] = turn.Timestamp
		}
		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}

		for _, msg := range turn.AssistantMessages {
			role := msg.Role
			if role == "" {
				role = "assistant"
			}
			obj := map[string]interface{}{
				"turn":    turn.ID,
				"role":    role,
				"content": msg.Content,
			}
			if err := enc.Encode(obj); err != nil {
				return fmt.Errorf("failed to encode message: %w", err)
			}
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
