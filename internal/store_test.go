package internal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iksnae/uistream/testutil"
)

func openTestStore(t *testing.T) *SessionStore {
	t.Helper()
	store, err := OpenSessionStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("OpenSessionStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func storeSnapshot(title string) SessionSnapshot {
	tree := NewTree()
	tree.Root = "root"
	tree.Elements["root"] = &ElementNode{Key: "root", Type: "Stack", Props: map[string]interface{}{"title": title}}
	return SessionSnapshot{
		Tree: tree,
		Conversation: []*ConversationTurn{
			{ID: "t1", UserMessage: "hi", Status: TurnComplete},
			{ID: "t2", UserMessage: "again", Status: TurnComplete},
		},
	}
}

func TestSessionStore_SaveAndLoad(t *testing.T) {
	store := openTestStore(t)

	if err := store.SaveSession("s1", "First", storeSnapshot("one")); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	loaded, err := store.LoadSession("s1")
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if loaded.Tree.Root != "root" || loaded.Tree.Elements["root"].Props["title"] != "one" {
		t.Errorf("loaded tree = %+v", loaded.Tree)
	}
	if len(loaded.Conversation) != 2 || loaded.Conversation[0].ID != "t1" {
		t.Errorf("loaded conversation = %+v", loaded.Conversation)
	}
}

func TestSessionStore_SaveUpserts(t *testing.T) {
	store := openTestStore(t)

	if err := store.SaveSession("s1", "First", storeSnapshot("one")); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSession("s1", "Renamed", storeSnapshot("two")); err != nil {
		t.Fatal(err)
	}

	infos, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d sessions, want the upsert to keep 1", len(infos))
	}
	if infos[0].Title != "Renamed" {
		t.Errorf("Title = %q, want Renamed", infos[0].Title)
	}

	loaded, err := store.LoadSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Tree.Elements["root"].Props["title"] != "two" {
		t.Error("upsert did not replace the tree")
	}
}

func TestSessionStore_LoadMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.LoadSession("ghost")
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("error = %v, want StoreError", err)
	}
	if storeErr.Op != "load" || storeErr.ID != "ghost" {
		t.Errorf("StoreError = %+v", storeErr)
	}
}

func TestSessionStore_ListCountsTurns(t *testing.T) {
	store := openTestStore(t)

	if err := store.SaveSession("s1", "Two turns", storeSnapshot("x")); err != nil {
		t.Fatal(err)
	}
	empty := SessionSnapshot{Tree: NewTree()}
	if err := store.SaveSession("s2", "Empty", empty); err != nil {
		t.Fatal(err)
	}

	infos, err := store.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]int{}
	for _, info := range infos {
		counts[info.ID] = info.TurnCount
	}
	if counts["s1"] != 2 || counts["s2"] != 0 {
		t.Errorf("turn counts = %v", counts)
	}
}

func TestSessionStore_Delete(t *testing.T) {
	store := openTestStore(t)

	if err := store.SaveSession("s1", "Doomed", storeSnapshot("x")); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteSession("s1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := store.LoadSession("s1"); err == nil {
		t.Error("deleted session must not load")
	}

	// Deleting a missing id is not an error.
	if err := store.DeleteSession("ghost"); err != nil {
		t.Errorf("DeleteSession(missing) error = %v", err)
	}
}

func TestSessionStore_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	testutil.CreateSessionDBFixture(t, path)

	store, err := OpenSessionStore(path)
	if err != nil {
		t.Fatalf("OpenSessionStore() error = %v", err)
	}
	defer store.Close()

	loaded, err := store.LoadSession("session-1")
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if loaded.Tree.Root != "root" || loaded.Tree.Elements["title"] == nil {
		t.Errorf("loaded tree = %+v", loaded.Tree)
	}
	if len(loaded.Conversation) != 1 || loaded.Conversation[0].Status != TurnComplete {
		t.Errorf("loaded conversation = %+v", loaded.Conversation)
	}
}

func TestSessionStore_WriteIndex(t *testing.T) {
	store := openTestStore(t)

	if err := store.SaveSession("s1", "Indexed", storeSnapshot("x")); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "index.yaml")
	if err := store.WriteIndex(path); err != nil {
		t.Fatalf("WriteIndex() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{"sessions:", "id: s1", "title: Indexed", "turn_count: 2"} {
		if !strings.Contains(content, want) {
			t.Errorf("index missing %q:\n%s", want, content)
		}
	}
}
