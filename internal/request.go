package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
)

// IdempotencyHeader carries the unique per-attempt request key.
const IdempotencyHeader = "X-Idempotency-Key"

// SendContext is the opaque passthrough object the host attaches to a send.
// It may itself carry a tree, a chat id, mode flags and so on; the engine
// only inspects the keys it needs.
type SendContext map[string]interface{}

// HasTree reports whether the context already embeds a tree, in which case
// the request omits currentTree.
func (c SendContext) HasTree() bool {
	if c == nil {
		return false
	}
	_, ok := c["tree"]
	return ok
}

// ProtectedTypes reads the element types the request context wants shielded
// from agent removal, e.g. an embedded document canvas.
func (c SendContext) ProtectedTypes() []string {
	if c == nil {
		return nil
	}
	list, err := stringList(c["protectedTypes"])
	if err != nil {
		return nil
	}
	return list
}

// RoleMessage is one prior-conversation entry serialized for the backend.
type RoleMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationMessages serializes the prior conversation as role/content
// pairs, skipping any turn still loading.
func ConversationMessages(turns []*ConversationTurn) []RoleMessage {
	var messages []RoleMessage
	for _, turn := range turns {
		if turn.IsLoading {
			continue
		}
		if turn.UserMessage != "" {
			messages = append(messages, RoleMessage{Role: "user", Content: turn.UserMessage})
		}
		for _, msg := range turn.AssistantMessages {
			role := msg.Role
			if role == "" {
				role = "assistant"
			}
			messages = append(messages, RoleMessage{Role: role, Content: msg.Content})
		}
	}
	return messages
}

// RequestPayload is everything one outgoing send carries.
type RequestPayload struct {
	Prompt             string
	Context            SendContext
	IdempotencyKey     string
	Tree               *Tree
	Messages           []RoleMessage
	LibraryDocumentIDs []string
	Attachments        []Attachment
}

type requestBody struct {
	Prompt             string        `json:"prompt"`
	Context            SendContext   `json:"context,omitempty"`
	IdempotencyKey     string        `json:"idempotencyKey"`
	CurrentTree        *Tree         `json:"currentTree,omitempty"`
	Messages           []RoleMessage `json:"messages,omitempty"`
	LibraryDocumentIDs []string      `json:"libraryDocumentIds,omitempty"`
}

// BuildRequestBody encodes the payload: JSON normally, multipart form data
// when file attachments are present. Returns the body and its content type.
func BuildRequestBody(payload RequestPayload) (io.Reader, string, error) {
	body := requestBody{
		Prompt:             payload.Prompt,
		Context:            payload.Context,
		IdempotencyKey:     payload.IdempotencyKey,
		Messages:           payload.Messages,
		LibraryDocumentIDs: payload.LibraryDocumentIDs,
	}
	// The caller's context may already embed a tree; sending both would let
	// them drift.
	if !payload.Context.HasTree() {
		body.CurrentTree = payload.Tree
	}

	if len(payload.Attachments) == 0 {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}

	return buildMultipartBody(body, payload.Attachments)
}

// buildMultipartBody writes the file parts plus the same JSON-valued fields
// as string form fields.
func buildMultipartBody(body requestBody, attachments []Attachment) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, attachment := range attachments {
		part, err := writer.CreateFormFile("files", attachment.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(attachment.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write file part: %w", err)
		}
	}

	writeJSONField := func(name string, value interface{}) error {
		if value == nil {
			return nil
		}
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s field: %w", name, err)
		}
		return writer.WriteField(name, string(data))
	}

	if err := writer.WriteField("prompt", body.Prompt); err != nil {
		return nil, "", fmt.Errorf("failed to write prompt field: %w", err)
	}
	if err := writer.WriteField("idempotencyKey", body.IdempotencyKey); err != nil {
		return nil, "", fmt.Errorf("failed to write idempotencyKey field: %w", err)
	}
	if body.Context != nil {
		if err := writeJSONField("context", body.Context); err != nil {
			return nil, "", err
		}
	}
	if body.CurrentTree != nil {
		if err := writeJSONField("currentTree", body.CurrentTree); err != nil {
			return nil, "", err
		}
	}
	if len(body.Messages) > 0 {
		if err := writeJSONField("messages", body.Messages); err != nil {
			return nil, "", err
		}
	}
	if len(body.LibraryDocumentIDs) > 0 {
		if err := writeJSONField("libraryDocumentIds", body.LibraryDocumentIDs); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
