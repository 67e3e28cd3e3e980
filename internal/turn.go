package internal

import (
	"time"

	"github.com/google/uuid"
)

// TurnStatus is the lifecycle state of one conversation turn.
type TurnStatus string

const (
	// TurnStreaming covers both the pending instant before the transport
	// opens (IsLoading=true, no events yet) and the active stream.
	TurnStreaming TurnStatus = "streaming"
	TurnComplete  TurnStatus = "complete"
	TurnFailed    TurnStatus = "failed"
)

// Message is one accumulated assistant (or other role) message.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Attachment is a file carried with a user message.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// DocumentOutline is the navigable index of one streamed document.
type DocumentOutline struct {
	DocumentID string         `json:"documentId"`
	Title      string         `json:"title,omitempty"`
	Entries    []OutlineEntry `json:"entries,omitempty"`
}

// OutlineEntry is one heading in a document outline.
type OutlineEntry struct {
	Title  string `json:"title"`
	Level  int    `json:"level"`
	Anchor string `json:"anchor,omitempty"`
}

// ConversationTurn models one user-prompt-to-assistant-response exchange.
// It is created the instant a send begins, mutated in place by id as stream
// events accumulate, and frozen into TreeSnapshot at successful completion.
type ConversationTurn struct {
	ID                   string                   `json:"id"`
	UserMessage          string                   `json:"userMessage"`
	AssistantMessages    []Message                `json:"assistantMessages,omitempty"`
	Questions            []string                 `json:"questions,omitempty"`
	Suggestions          []string                 `json:"suggestions,omitempty"`
	ToolProgress         []ProgressEvent          `json:"toolProgress,omitempty"`
	PersistedAttachments []map[string]interface{} `json:"persistedAttachments,omitempty"`
	DocumentIndex        []DocumentOutline        `json:"documentIndex,omitempty"`
	TreeSnapshot         *Tree                    `json:"treeSnapshot,omitempty"`
	Timestamp            time.Time                `json:"timestamp"`
	IsProactive          bool                     `json:"isProactive,omitempty"`
	Attachments          []Attachment             `json:"attachments,omitempty"`
	IsLoading            bool                     `json:"isLoading"`
	Status               TurnStatus               `json:"status"`
	Error                string                   `json:"error,omitempty"`
}

// CreatePendingTurn allocates a new turn in the pending state.
func CreatePendingTurn(userMessage string, isProactive bool, attachments []Attachment) *ConversationTurn {
	return &ConversationTurn{
		ID:          uuid.NewString(),
		UserMessage: userMessage,
		Timestamp:   time.Now(),
		IsProactive: isProactive,
		Attachments: attachments,
		IsLoading:   true,
		Status:      TurnStreaming,
	}
}

// FinalizeTurn marks the turn complete and freezes a deep copy of the final
// tree so later turn deletion or editing can roll back to exactly this point.
func FinalizeTurn(turn *ConversationTurn, tree *Tree) error {
	snapshot, err := tree.DeepCopy()
	if err != nil {
		return err
	}
	turn.TreeSnapshot = snapshot
	turn.IsLoading = false
	turn.Status = TurnComplete
	return nil
}

// MarkTurnFailed records the failure. The tree is left as-is: partial patches
// already applied remain visible, failure is not rolled back automatically.
func MarkTurnFailed(turn *ConversationTurn, message string) {
	turn.Status = TurnFailed
	turn.Error = message
	turn.IsLoading = false
}

// RemoveTurn drops the turn with the given id from the conversation. Only
// valid for turns still streaming (client abort before meaningful data);
// completed and failed turns stay in the list.
func RemoveTurn(turns []*ConversationTurn, id string) []*ConversationTurn {
	for i, turn := range turns {
		if turn.ID != id {
			continue
		}
		if turn.Status != TurnStreaming {
			return turns
		}
		return append(turns[:i:i], turns[i+1:]...)
	}
	return turns
}

// RollbackToTurn truncates the conversation to just before the turn with the
// given id and returns the tree snapshot of the new last turn, or nil when
// none remains. Shared primitive behind "delete this turn" and "edit this
// turn and resend".
func RollbackToTurn(turns []*ConversationTurn, id string) ([]*ConversationTurn, *Tree, bool) {
	index := -1
	for i, turn := range turns {
		if turn.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		return turns, nil, false
	}
	truncated := append([]*ConversationTurn(nil), turns[:index]...)
	var snapshot *Tree
	if len(truncated) > 0 && truncated[len(truncated)-1].TreeSnapshot != nil {
		snapshot = truncated[len(truncated)-1].TreeSnapshot.MustDeepCopy()
	}
	return truncated, snapshot, true
}

// ApplyMessageEvent folds one message event into the turn's accumulated
// messages. Mode "append" concatenates onto the message with the same id;
// "replace" and "final" overwrite it; an event with no id always starts a
// new message.
func ApplyMessageEvent(turn *ConversationTurn, event *MessageEvent) {
	if event.ID == "" {
		turn.AssistantMessages = append(turn.AssistantMessages, Message{
			Role:    event.Role,
			Content: event.Content,
		})
		return
	}
	for i := range turn.AssistantMessages {
		if turn.AssistantMessages[i].ID != event.ID {
			continue
		}
		switch event.Mode {
		case "append":
			turn.AssistantMessages[i].Content += event.Content
		default:
			turn.AssistantMessages[i].Content = event.Content
		}
		if event.Role != "" {
			turn.AssistantMessages[i].Role = event.Role
		}
		return
	}
	turn.AssistantMessages = append(turn.AssistantMessages, Message{
		ID:      event.ID,
		Role:    event.Role,
		Content: event.Content,
	})
}

// MergeDocumentIndex concatenates a newly arrived document outline into the
// accumulated index rather than replacing it, so multiple documents indexed
// in one turn all stay visible.
func MergeDocumentIndex(existing []DocumentOutline, incoming DocumentOutline) []DocumentOutline {
	for i := range existing {
		if existing[i].DocumentID == incoming.DocumentID {
			merged := append([]DocumentOutline(nil), existing...)
			merged[i].Entries = append(merged[i].Entries, incoming.Entries...)
			if incoming.Title != "" {
				merged[i].Title = incoming.Title
			}
			return merged
		}
	}
	return append(append([]DocumentOutline(nil), existing...), incoming)
}

// NewIdempotencyKey returns the per-attempt request key.
func NewIdempotencyKey() string {
	return uuid.NewString()
}
