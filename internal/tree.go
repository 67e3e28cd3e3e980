package internal

import (
	"encoding/json"
	"fmt"
	"time"
)

// PlaceholderType marks a forward-referenced element that has not been
// described by the stream yet. Renderers show a skeleton for these and must
// never treat their props as meaningful.
const PlaceholderType = "__placeholder__"

// Tree is the renderable UI tree: a flat element map plus a root pointer.
// An empty Root means "no tree yet".
type Tree struct {
	Root     string                  `json:"root"`
	Elements map[string]*ElementNode `json:"elements"`
}

// ElementNode is one typed element in the tree. Children are ordered element
// keys; ParentKey, when set, points at the node whose Children contains this
// node's key (maintained by the patch engine, not guaranteed by callers).
type ElementNode struct {
	Key       string                 `json:"key"`
	Type      string                 `json:"type"`
	Props     map[string]interface{} `json:"props,omitempty"`
	Children  []string               `json:"children,omitempty"`
	ParentKey string                 `json:"parentKey,omitempty"`
	Layout    map[string]interface{} `json:"layout,omitempty"`
	Editable  *bool                  `json:"editable,omitempty"`
	Locked    *bool                  `json:"locked,omitempty"`
	Meta      *ElementMeta           `json:"_meta,omitempty"`
}

// ElementMeta is append-only provenance for an element. CreatedTurnID and
// CreatedAt are set once and never overwritten; the LastModified pair updates
// on every patch touching the node.
type ElementMeta struct {
	TurnID             string    `json:"turnId,omitempty"`
	CreatedTurnID      string    `json:"createdTurnId,omitempty"`
	LastModifiedTurnID string    `json:"lastModifiedTurnId,omitempty"`
	CreatedAt          time.Time `json:"createdAt,omitempty"`
	LastModifiedAt     time.Time `json:"lastModifiedAt,omitempty"`
	IsPlaceholder      bool      `json:"isPlaceholder,omitempty"`
	AutoCreated        bool      `json:"autoCreated,omitempty"`
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{
		Root:     "",
		Elements: make(map[string]*ElementNode),
	}
}

// IsPlaceholder reports whether the node is a forward-reference stub.
func (n *ElementNode) IsPlaceholder() bool {
	return n.Type == PlaceholderType
}

// CloneShallow returns a new Tree whose Elements map is a fresh map sharing
// every node pointer with the original. Writers clone the specific nodes they
// touch, so untouched elements keep reference identity across a patch.
func (t *Tree) CloneShallow() *Tree {
	elements := make(map[string]*ElementNode, len(t.Elements))
	for k, v := range t.Elements {
		elements[k] = v
	}
	return &Tree{Root: t.Root, Elements: elements}
}

// CloneNode returns a shallow copy of the node with its own Props, Layout and
// Children containers, so writes through the copy never mutate the original.
func (n *ElementNode) CloneNode() *ElementNode {
	clone := *n
	if n.Props != nil {
		clone.Props = make(map[string]interface{}, len(n.Props))
		for k, v := range n.Props {
			clone.Props[k] = v
		}
	}
	if n.Layout != nil {
		clone.Layout = make(map[string]interface{}, len(n.Layout))
		for k, v := range n.Layout {
			clone.Layout[k] = v
		}
	}
	if n.Children != nil {
		clone.Children = append([]string(nil), n.Children...)
	}
	if n.Meta != nil {
		meta := *n.Meta
		clone.Meta = &meta
	}
	return &clone
}

// DeepCopy returns a fully independent copy of the tree. Used for turn
// snapshots and undo history, where later patches must not reach back into
// the frozen state.
func (t *Tree) DeepCopy() (*Tree, error) {
	if t == nil {
		return nil, nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize tree: %w", err)
	}
	var copied Tree
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to deserialize tree: %w", err)
	}
	if copied.Elements == nil {
		copied.Elements = make(map[string]*ElementNode)
	}
	return &copied, nil
}

// MustDeepCopy is DeepCopy for callers that already hold a valid tree.
func (t *Tree) MustDeepCopy() *Tree {
	copied, err := t.DeepCopy()
	if err != nil {
		// A tree that round-trips through patches is always serializable.
		panic(fmt.Sprintf("tree deep copy failed: %v", err))
	}
	return copied
}

// ReachableKeys returns every element key reachable from the root via
// Children, in depth-first order. Cycles are tolerated (each key visited once).
func (t *Tree) ReachableKeys() []string {
	if t.Root == "" {
		return nil
	}
	var keys []string
	seen := make(map[string]bool)
	var walk func(key string)
	walk = func(key string) {
		if seen[key] {
			return
		}
		seen[key] = true
		node, ok := t.Elements[key]
		if !ok {
			return
		}
		keys = append(keys, key)
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(t.Root)
	return keys
}

// newPlaceholder creates the stub node inserted for a forward-referenced key.
func newPlaceholder(key, parentKey, turnID string, now time.Time) *ElementNode {
	return &ElementNode{
		Key:       key,
		Type:      PlaceholderType,
		Props:     make(map[string]interface{}),
		ParentKey: parentKey,
		Meta: &ElementMeta{
			TurnID:             turnID,
			CreatedTurnID:      turnID,
			LastModifiedTurnID: turnID,
			CreatedAt:          now,
			LastModifiedAt:     now,
			IsPlaceholder:      true,
			AutoCreated:        true,
		},
	}
}

// newDefaultContainer creates the minimal container used when a child
// attachment arrives before the parent's own description.
func newDefaultContainer(key, turnID string, now time.Time) *ElementNode {
	return &ElementNode{
		Key:   key,
		Type:  "Stack",
		Props: make(map[string]interface{}),
		Meta: &ElementMeta{
			TurnID:             turnID,
			CreatedTurnID:      turnID,
			LastModifiedTurnID: turnID,
			CreatedAt:          now,
			LastModifiedAt:     now,
			AutoCreated:        true,
		},
	}
}
