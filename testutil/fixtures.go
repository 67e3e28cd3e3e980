package testutil

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// Frame builds one wire line from its JSON payload.
func Frame(payload string) string {
	return "data:" + payload
}

// PatchFrame builds a wire line carrying a single patch operation.
func PatchFrame(op, path string, value interface{}) string {
	frame := map[string]interface{}{"op": op, "path": path}
	if value != nil {
		frame["value"] = value
	}
	data, _ := json.Marshal(frame)
	return Frame(string(data))
}

// EventFrame builds a canonical wire line: {"event":{...fields}} with an
// optional sequence number (seq <= 0 omits it).
func EventFrame(seq int64, fields map[string]interface{}) string {
	frame := map[string]interface{}{"event": fields}
	if seq > 0 {
		frame["seq"] = seq
	}
	data, _ := json.Marshal(frame)
	return Frame(string(data))
}

// MessageFrame builds a wire line carrying a message event. Empty id or
// mode fields are omitted from the frame.
func MessageFrame(id, mode, content string) string {
	fields := map[string]interface{}{
		"kind":    "message",
		"role":    "assistant",
		"content": content,
	}
	if id != "" {
		fields["id"] = id
	}
	if mode != "" {
		fields["mode"] = mode
	}
	return EventFrame(0, fields)
}

// PatchesFrame builds a wire line carrying a patch event.
func PatchesFrame(atomic bool, patches ...map[string]interface{}) string {
	return EventFrame(0, map[string]interface{}{
		"kind":    "patch",
		"atomic":  atomic,
		"patches": patches,
	})
}

// ControlFrame builds a wire line carrying a control event.
func ControlFrame(controlType string, data map[string]interface{}) string {
	fields := map[string]interface{}{"kind": "control", "type": controlType}
	if data != nil {
		fields["data"] = data
	}
	return EventFrame(0, fields)
}

// Transcript joins wire lines, terminated with the done sentinel.
func Transcript(lines ...string) string {
	out := ""
	for _, line := range lines {
		out += line + "\n"
	}
	return out + "data:[DONE]\n"
}

// TreeJSON builds the JSON of a minimal tree: a root container holding one
// text element.
func TreeJSON(rootKey, childKey string) string {
	return fmt.Sprintf(`{
		"root": %q,
		"elements": {
			%q: {"key": %q, "type": "Stack", "children": [%q]},
			%q: {"key": %q, "type": "Text", "parentKey": %q, "props": {"text": "hello"}}
		}
	}`, rootKey, rootKey, rootKey, childKey, childKey, childKey, rootKey)
}

// CreateSessionDBFixture creates a session database fixture with one stored
// session, using the same schema as the session store.
func CreateSessionDBFixture(t *testing.T, dbPath string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		t.Fatalf("Failed to create fixture directory: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		tree TEXT NOT NULL,
		conversation TEXT NOT NULL
	)`
	if _, err := db.Exec(createTableSQL); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	conversation := `[{"id":"turn-1","userMessage":"build a report","assistantMessages":[{"id":"m1","role":"assistant","content":"Done."}],"timestamp":"2025-03-01T12:00:00Z","isLoading":false,"status":"complete"}]`
	now := time.Now().UTC()
	insertSQL := `INSERT INTO sessions (id, title, created_at, updated_at, tree, conversation) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := db.Exec(insertSQL, "session-1", "Test Session", now, now, TreeJSON("root", "title"), conversation); err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}
}
