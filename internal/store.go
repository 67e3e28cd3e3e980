package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// SessionStore persists session snapshots (tree + conversation) in SQLite.
// It is the storage side of the session persistence boundary; the engine
// itself never touches it during a send.
type SessionStore struct {
	db *sql.DB
}

// SessionInfo is the listing row for one stored session.
type SessionInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title,omitempty" yaml:"title,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	TurnCount int       `json:"turn_count" yaml:"turn_count"`
}

// OpenSessionStore opens (creating if needed) the session database at path.
func OpenSessionStore(path string) (*SessionStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &StoreError{Op: "open", Err: err}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &StoreError{Op: "open", Err: err}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		tree TEXT NOT NULL,
		conversation TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("failed to create schema: %w", err)}
	}
	return &SessionStore{db: db}, nil
}

// Close releases the database handle.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// SaveSession upserts one session snapshot.
func (s *SessionStore) SaveSession(id, title string, snapshot SessionSnapshot) error {
	treeJSON, err := json.Marshal(snapshot.Tree)
	if err != nil {
		return &StoreError{Op: "save", ID: id, Err: err}
	}
	conversationJSON, err := json.Marshal(snapshot.Conversation)
	if err != nil {
		return &StoreError{Op: "save", ID: id, Err: err}
	}

	now := time.Now().UTC()
	query := `
	INSERT INTO sessions (id, title, created_at, updated_at, tree, conversation)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		updated_at = excluded.updated_at,
		tree = excluded.tree,
		conversation = excluded.conversation`
	if _, err := s.db.Exec(query, id, title, now, now, string(treeJSON), string(conversationJSON)); err != nil {
		return &StoreError{Op: "save", ID: id, Err: err}
	}
	return nil
}

// LoadSession reads one session snapshot by id.
func (s *SessionStore) LoadSession(id string) (SessionSnapshot, error) {
	var treeJSON, conversationJSON string
	query := "SELECT tree, conversation FROM sessions WHERE id = ?"
	err := s.db.QueryRow(query, id).Scan(&treeJSON, &conversationJSON)
	if err == sql.ErrNoRows {
		return SessionSnapshot{}, &StoreError{Op: "load", ID: id, Err: fmt.Errorf("session not found")}
	}
	if err != nil {
		return SessionSnapshot{}, &StoreError{Op: "load", ID: id, Err: err}
	}

	var snapshot SessionSnapshot
	if err := json.Unmarshal([]byte(treeJSON), &snapshot.Tree); err != nil {
		return SessionSnapshot{}, &StoreError{Op: "load", ID: id, Err: fmt.Errorf("corrupt tree: %w", err)}
	}
	if err := json.Unmarshal([]byte(conversationJSON), &snapshot.Conversation); err != nil {
		return SessionSnapshot{}, &StoreError{Op: "load", ID: id, Err: fmt.Errorf("corrupt conversation: %w", err)}
	}
	return snapshot, nil
}

// ListSessions returns listing rows ordered by most recently updated.
func (s *SessionStore) ListSessions() ([]SessionInfo, error) {
	query := "SELECT id, COALESCE(title, ''), created_at, updated_at, conversation FROM sessions ORDER BY updated_at DESC"
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var conversationJSON string
		if err := rows.Scan(&info.ID, &info.Title, &info.CreatedAt, &info.UpdatedAt, &conversationJSON); err != nil {
			return nil, &StoreError{Op: "list", Err: err}
		}
		var turns []*ConversationTurn
		if err := json.Unmarshal([]byte(conversationJSON), &turns); err == nil {
			info.TurnCount = len(turns)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	return infos, nil
}

// DeleteSession removes one stored session.
func (s *SessionStore) DeleteSession(id string) error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return &StoreError{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// sessionIndex is the YAML listing written next to the database for quick
// inspection without SQL tooling.
type sessionIndex struct {
	Sessions  []SessionInfo `yaml:"sessions"`
	UpdatedAt time.Time     `yaml:"updated_at"`
}

// WriteIndex writes the YAML session index at path.
func (s *SessionStore) WriteIndex(path string) error {
	infos, err := s.ListSessions()
	if err != nil {
		return err
	}
	index := sessionIndex{Sessions: infos, UpdatedAt: time.Now().UTC()}
	data, err := yaml.Marshal(index)
	if err != nil {
		return &StoreError{Op: "save", Err: fmt.Errorf("failed to encode index: %w", err)}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &StoreError{Op: "save", Err: err}
	}
	return nil
}
