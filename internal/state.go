package internal

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Citation is one source reference reported by the stream.
type Citation struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// HistorySnapshot is a deep copy of tree and conversation, pushed before any
// destructive local edit to support linear undo/redo.
type HistorySnapshot struct {
	Tree         *Tree               `json:"tree"`
	Conversation []*ConversationTurn `json:"conversation"`
}

// SessionState is the explicit state container shared between the stream
// orchestrator (sole writer during a send) and any number of observers. The
// tree is always replaced wholesale, never mutated in place, so observers
// relying on reference equality see updates reliably and never a half-written
// tree.
type SessionState struct {
	mu           sync.RWMutex
	tree         *Tree
	conversation []*ConversationTurn
	isStreaming  bool
	lastErr      error
	plan         *PlanState
	progress     []ProgressEvent
	citations    []Citation

	history      []HistorySnapshot
	historyIndex int

	listeners map[int]func()
	nextSub   int
}

// NewSessionState creates an initialized, empty container.
func NewSessionState() *SessionState {
	s := &SessionState{}
	s.Init()
	return s
}

// Init resets the container to its empty initial state.
func (s *SessionState) Init() {
	s.mu.Lock()
	s.tree = nil
	s.conversation = nil
	s.isStreaming = false
	s.lastErr = nil
	s.plan = nil
	s.progress = nil
	s.citations = nil
	s.history = nil
	s.historyIndex = 0
	if s.listeners == nil {
		s.listeners = make(map[int]func())
	}
	s.mu.Unlock()
}

// Reset is Init plus a listener notification.
func (s *SessionState) Reset() {
	s.Init()
	s.notify()
}

// Subscribe registers a change listener and returns its unsubscribe func.
func (s *SessionState) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *SessionState) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Tree returns the current tree. Callers must treat it as read-only.
func (s *SessionState) Tree() *Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree
}

// SetTree publishes a new tree object.
func (s *SessionState) SetTree(tree *Tree) {
	s.mu.Lock()
	s.tree = tree
	s.mu.Unlock()
	s.notify()
}

// EnsureTree creates an empty tree if none exists yet and returns the
// current one.
func (s *SessionState) EnsureTree() *Tree {
	s.mu.Lock()
	if s.tree == nil {
		s.tree = NewTree()
	}
	tree := s.tree
	s.mu.Unlock()
	return tree
}

// ApplyPatchBatch folds patches into the current tree through the batch
// applier and publishes the result. One call is one transaction.
func (s *SessionState) ApplyPatchBatch(patches []Patch, opts ApplyOptions) {
	s.mu.Lock()
	s.tree = ApplyPatchesBatch(s.tree, patches, opts)
	s.mu.Unlock()
	s.notify()
}

// Conversation returns a copy of the turn list. Turn pointers are shared;
// readers must not mutate them.
func (s *SessionState) Conversation() []*ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*ConversationTurn(nil), s.conversation...)
}

// AppendTurn adds a turn to the conversation.
func (s *SessionState) AppendTurn(turn *ConversationTurn) {
	s.mu.Lock()
	s.conversation = append(s.conversation, turn)
	s.mu.Unlock()
	s.notify()
}

// PublishTurn re-announces a turn mutated in place, waking observers.
func (s *SessionState) PublishTurn(turn *ConversationTurn) {
	s.notify()
}

// DropTurn removes a still-streaming turn entirely, as if it never happened.
func (s *SessionState) DropTurn(id string) {
	s.mu.Lock()
	s.conversation = RemoveTurn(s.conversation, id)
	s.mu.Unlock()
	s.notify()
}

// SetConversation replaces the whole turn list.
func (s *SessionState) SetConversation(turns []*ConversationTurn) {
	s.mu.Lock()
	s.conversation = turns
	s.mu.Unlock()
	s.notify()
}

// FindTurn returns the turn with the given id, or nil.
func (s *SessionState) FindTurn(id string) *ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, turn := range s.conversation {
		if turn.ID == id {
			return turn
		}
	}
	return nil
}

// IsStreaming reports whether a send is in flight.
func (s *SessionState) IsStreaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isStreaming
}

// SetStreaming publishes the streaming flag.
func (s *SessionState) SetStreaming(streaming bool) {
	s.mu.Lock()
	s.isStreaming = streaming
	s.mu.Unlock()
	s.notify()
}

// Err returns the last send error, nil after a success.
func (s *SessionState) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// SetErr publishes the last send error.
func (s *SessionState) SetErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.notify()
}

// Plan returns the current plan-execution state, nil before a plan event.
func (s *SessionState) Plan() *PlanState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan
}

// SetPlan publishes new plan-execution state.
func (s *SessionState) SetPlan(plan *PlanState) {
	s.mu.Lock()
	s.plan = plan
	s.mu.Unlock()
	s.notify()
}

// Progress returns the accumulated tool-progress events.
func (s *SessionState) Progress() []ProgressEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ProgressEvent(nil), s.progress...)
}

// AddProgress appends one tool-progress event.
func (s *SessionState) AddProgress(event ProgressEvent) {
	s.mu.Lock()
	s.progress = append(s.progress, event)
	s.mu.Unlock()
	s.notify()
}

// Citations returns the current citation list.
func (s *SessionState) Citations() []Citation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Citation(nil), s.citations...)
}

// SetCitations publishes the citation list.
func (s *SessionState) SetCitations(citations []Citation) {
	s.mu.Lock()
	s.citations = citations
	s.mu.Unlock()
	s.notify()
}

// PushHistory records a deep-copy snapshot of the current tree and
// conversation before a destructive local edit. Any redo tail past the
// current position is discarded.
func (s *SessionState) PushHistory() error {
	snapshot, err := s.snapshotLocked()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.history = append(s.history[:s.historyIndex], *snapshot)
	s.historyIndex = len(s.history)
	s.mu.Unlock()
	return nil
}

// Undo restores the previous snapshot. Returns false at the bottom of the
// stack.
func (s *SessionState) Undo() bool {
	s.mu.Lock()
	if s.historyIndex == 0 {
		s.mu.Unlock()
		return false
	}
	if s.historyIndex == len(s.history) {
		// First undo from the live tip: keep the tip so redo can return.
		s.mu.Unlock()
		snapshot, err := s.snapshotLocked()
		if err != nil {
			return false
		}
		s.mu.Lock()
		s.history = append(s.history, *snapshot)
	}
	s.historyIndex--
	s.restoreLocked(s.history[s.historyIndex])
	s.mu.Unlock()
	s.notify()
	return true
}

// Redo restores the next snapshot. Returns false at the top of the stack.
func (s *SessionState) Redo() bool {
	s.mu.Lock()
	if s.historyIndex+1 >= len(s.history) {
		s.mu.Unlock()
		return false
	}
	s.historyIndex++
	s.restoreLocked(s.history[s.historyIndex])
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *SessionState) restoreLocked(snapshot HistorySnapshot) {
	s.tree = snapshot.Tree.MustDeepCopy()
	s.conversation = copyConversation(snapshot.Conversation)
}

func (s *SessionState) snapshotLocked() (*HistorySnapshot, error) {
	s.mu.RLock()
	tree := s.tree
	conversation := s.conversation
	s.mu.RUnlock()

	treeCopy, err := tree.DeepCopy()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot tree: %w", err)
	}
	if treeCopy == nil {
		treeCopy = NewTree()
	}
	return &HistorySnapshot{
		Tree:         treeCopy,
		Conversation: copyConversation(conversation),
	}, nil
}

func copyConversation(turns []*ConversationTurn) []*ConversationTurn {
	if turns == nil {
		return nil
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return append([]*ConversationTurn(nil), turns...)
	}
	var copied []*ConversationTurn
	if err := json.Unmarshal(data, &copied); err != nil {
		return append([]*ConversationTurn(nil), turns...)
	}
	return copied
}

// SessionSnapshot is the persistence-boundary shape: the same tree and
// conversation a saved session round-trips through.
type SessionSnapshot struct {
	Tree         *Tree               `json:"tree"`
	Conversation []*ConversationTurn `json:"conversation"`
}

// LoadSession replaces the container's tree and conversation wholesale.
func (s *SessionState) LoadSession(snapshot SessionSnapshot) {
	s.mu.Lock()
	if snapshot.Tree != nil {
		s.tree = snapshot.Tree
	} else {
		s.tree = NewTree()
	}
	s.conversation = snapshot.Conversation
	s.history = nil
	s.historyIndex = 0
	s.mu.Unlock()
	s.notify()
}

// SnapshotSession produces the equivalent snapshot for saving.
func (s *SessionState) SnapshotSession() (SessionSnapshot, error) {
	snapshot, err := s.snapshotLocked()
	if err != nil {
		return SessionSnapshot{}, err
	}
	return SessionSnapshot{Tree: snapshot.Tree, Conversation: snapshot.Conversation}, nil
}
