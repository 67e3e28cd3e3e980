package internal

import (
	"errors"
	"testing"
)

func TestSessionState_SubscribeAndNotify(t *testing.T) {
	state := NewSessionState()

	count := 0
	unsubscribe := state.Subscribe(func() { count++ })

	state.SetTree(NewTree())
	state.SetStreaming(true)
	if count != 2 {
		t.Errorf("listener fired %d times, want 2", count)
	}

	unsubscribe()
	state.SetStreaming(false)
	if count != 2 {
		t.Errorf("unsubscribed listener still fired, count = %d", count)
	}
}

func TestSessionState_ApplyPatchBatchReplacesTree(t *testing.T) {
	state := NewSessionState()
	state.SetTree(NewTree())
	before := state.Tree()

	notified := false
	state.Subscribe(func() { notified = true })

	state.ApplyPatchBatch([]Patch{
		{Op: OpAdd, Path: "/elements/root", Value: map[string]interface{}{"type": "Stack"}},
		{Op: OpSet, Path: "/root", Value: "root"},
	}, ApplyOptions{TurnID: "t1"})

	after := state.Tree()
	if after == before {
		t.Error("the tree object must be replaced, not mutated in place")
	}
	if after.Root != "root" || after.Elements["root"] == nil {
		t.Errorf("tree = %+v, want root element applied", after)
	}
	if !notified {
		t.Error("observers must be woken by a patch batch")
	}
}

func TestSessionState_TurnLifecycle(t *testing.T) {
	state := NewSessionState()

	turn := streamingTurn("t1")
	state.AppendTurn(turn)
	if got := state.FindTurn("t1"); got != turn {
		t.Fatal("FindTurn must return the appended turn")
	}
	if state.FindTurn("zzz") != nil {
		t.Error("FindTurn on a missing id must return nil")
	}

	state.DropTurn("t1")
	if state.FindTurn("t1") != nil {
		t.Error("DropTurn must remove a streaming turn")
	}

	done := completedTurn("t2", nil)
	state.AppendTurn(done)
	state.DropTurn("t2")
	if state.FindTurn("t2") == nil {
		t.Error("DropTurn must leave completed turns alone")
	}
}

func TestSessionState_ConversationIsCopied(t *testing.T) {
	state := NewSessionState()
	state.AppendTurn(streamingTurn("t1"))

	turns := state.Conversation()
	turns[0] = nil
	if state.FindTurn("t1") == nil {
		t.Error("mutating the returned slice must not affect the state")
	}
}

func TestSessionState_ErrAndStreamingFlags(t *testing.T) {
	state := NewSessionState()
	if state.IsStreaming() || state.Err() != nil {
		t.Fatal("fresh state must be idle and error-free")
	}

	state.SetStreaming(true)
	boom := errors.New("boom")
	state.SetErr(boom)
	if !state.IsStreaming() || !errors.Is(state.Err(), boom) {
		t.Error("flags not published")
	}

	state.SetErr(nil)
	if state.Err() != nil {
		t.Error("a success must clear the last error")
	}
}

func TestSessionState_UndoRedo(t *testing.T) {
	state := NewSessionState()

	setRootTitle := func(title string) {
		state.ApplyPatchBatch([]Patch{
			{Op: OpSet, Path: "/elements/root/props/title", Value: title},
			{Op: OpSet, Path: "/root", Value: "root"},
		}, ApplyOptions{TurnID: "t"})
	}
	rootTitle := func() interface{} {
		tree := state.Tree()
		if tree == nil || tree.Elements["root"] == nil {
			return nil
		}
		return tree.Elements["root"].Props["title"]
	}

	setRootTitle("one")
	if err := state.PushHistory(); err != nil {
		t.Fatalf("PushHistory() error = %v", err)
	}
	setRootTitle("two")

	if state.Redo() {
		t.Error("nothing to redo at the tip")
	}

	if !state.Undo() {
		t.Fatal("Undo() = false, want true")
	}
	if got := rootTitle(); got != "one" {
		t.Fatalf("after undo title = %v, want one", got)
	}

	if !state.Redo() {
		t.Fatal("Redo() = false, want true")
	}
	if got := rootTitle(); got != "two" {
		t.Fatalf("after redo title = %v, want two", got)
	}

	if !state.Undo() {
		t.Fatal("second undo should succeed")
	}
	if state.Undo() {
		t.Error("Undo at the bottom of the stack must fail")
	}
}

func TestSessionState_UndoRestoresCopies(t *testing.T) {
	state := NewSessionState()
	state.ApplyPatchBatch([]Patch{
		{Op: OpSet, Path: "/elements/root/props/title", Value: "one"},
	}, ApplyOptions{})
	if err := state.PushHistory(); err != nil {
		t.Fatalf("PushHistory() error = %v", err)
	}
	state.ApplyPatchBatch([]Patch{
		{Op: OpSet, Path: "/elements/root/props/title", Value: "two"},
	}, ApplyOptions{})

	state.Undo()
	restored := state.Tree()
	restored.Elements["root"].Props["title"] = "mutated"

	// A second undo/redo cycle must see the clean snapshot, not the mutation.
	state.Redo()
	state.Undo()
	if got := state.Tree().Elements["root"].Props["title"]; got != "one" {
		t.Errorf("history snapshot was mutated through a restored tree, title = %v", got)
	}
}

func TestSessionState_SessionRoundTrip(t *testing.T) {
	state := NewSessionState()
	state.ApplyPatchBatch([]Patch{
		{Op: OpAdd, Path: "/elements/root", Value: map[string]interface{}{"type": "Stack"}},
		{Op: OpSet, Path: "/root", Value: "root"},
	}, ApplyOptions{TurnID: "t1"})
	state.AppendTurn(completedTurn("t1", nil))

	snapshot, err := state.SnapshotSession()
	if err != nil {
		t.Fatalf("SnapshotSession() error = %v", err)
	}
	if snapshot.Tree.Root != "root" || len(snapshot.Conversation) != 1 {
		t.Fatalf("snapshot = %+v", snapshot)
	}

	other := NewSessionState()
	other.LoadSession(snapshot)
	if other.Tree().Root != "root" {
		t.Errorf("loaded tree root = %q, want root", other.Tree().Root)
	}
	if len(other.Conversation()) != 1 || other.Conversation()[0].ID != "t1" {
		t.Error("loaded conversation does not match the snapshot")
	}
}

func TestSessionState_LoadSessionWithNilTree(t *testing.T) {
	state := NewSessionState()
	state.LoadSession(SessionSnapshot{})
	if state.Tree() == nil {
		t.Error("loading an empty snapshot must leave a usable empty tree")
	}
}

func TestSessionState_ResetClearsEverything(t *testing.T) {
	state := NewSessionState()
	state.SetTree(NewTree())
	state.AppendTurn(streamingTurn("t1"))
	state.AddProgress(ProgressEvent{ToolName: "search"})
	state.SetCitations([]Citation{{Title: "src"}})
	state.SetPlan(&PlanState{})

	state.Reset()
	if state.Tree() != nil || len(state.Conversation()) != 0 {
		t.Error("reset must drop tree and conversation")
	}
	if len(state.Progress()) != 0 || len(state.Citations()) != 0 || state.Plan() != nil {
		t.Error("reset must drop progress, citations and plan")
	}
}
