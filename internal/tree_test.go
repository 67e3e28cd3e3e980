package internal

import (
	"reflect"
	"testing"
)

func TestCloneNode_Independence(t *testing.T) {
	editable := true
	node := &ElementNode{
		Key:      "card",
		Type:     "Card",
		Props:    map[string]interface{}{"title": "before"},
		Children: []string{"a"},
		Layout:   map[string]interface{}{"w": 2},
		Editable: &editable,
		Meta:     &ElementMeta{TurnID: "t1"},
	}

	clone := node.CloneNode()
	clone.Props["title"] = "after"
	clone.Children = append(clone.Children, "b")
	clone.Layout["w"] = 3
	clone.Meta.TurnID = "t2"

	if node.Props["title"] != "before" {
		t.Error("CloneNode() should give the clone its own props map")
	}
	if len(node.Children) != 1 {
		t.Error("CloneNode() should give the clone its own children slice")
	}
	if node.Layout["w"] != 2 {
		t.Error("CloneNode() should give the clone its own layout map")
	}
	if node.Meta.TurnID != "t1" {
		t.Error("CloneNode() should give the clone its own meta")
	}
}

func TestCloneShallow_SharesNodes(t *testing.T) {
	tree := NewTree()
	tree.Root = "root"
	tree.Elements["root"] = &ElementNode{Key: "root", Type: "Stack"}

	clone := tree.CloneShallow()
	if clone.Elements["root"] != tree.Elements["root"] {
		t.Error("CloneShallow() should share node pointers")
	}
	clone.Elements["extra"] = &ElementNode{Key: "extra"}
	if _, ok := tree.Elements["extra"]; ok {
		t.Error("CloneShallow() map must be independent of the original")
	}
}

func TestDeepCopy(t *testing.T) {
	tree := NewTree()
	tree.Root = "root"
	tree.Elements["root"] = &ElementNode{
		Key:      "root",
		Type:     "Stack",
		Props:    map[string]interface{}{"gap": float64(4)},
		Children: []string{"text"},
	}
	tree.Elements["text"] = &ElementNode{Key: "text", Type: "Text", ParentKey: "root"}

	copied, err := tree.DeepCopy()
	if err != nil {
		t.Fatalf("DeepCopy() error = %v", err)
	}

	copied.Elements["root"].Props["gap"] = float64(8)
	copied.Elements["text"].Type = "Heading"

	if tree.Elements["root"].Props["gap"] != float64(4) {
		t.Error("DeepCopy() must not share props with the original")
	}
	if tree.Elements["text"].Type != "Text" {
		t.Error("DeepCopy() must not share nodes with the original")
	}
}

func TestDeepCopy_Nil(t *testing.T) {
	var tree *Tree
	copied, err := tree.DeepCopy()
	if err != nil {
		t.Fatalf("DeepCopy() error = %v", err)
	}
	if copied != nil {
		t.Errorf("DeepCopy() of nil = %v, want nil", copied)
	}
}

func TestReachableKeys(t *testing.T) {
	tests := []struct {
		name string
		tree func() *Tree
		want []string
	}{
		{
			name: "empty root",
			tree: NewTree,
			want: nil,
		},
		{
			name: "depth first order",
			tree: func() *Tree {
				tree := NewTree()
				tree.Root = "root"
				tree.Elements["root"] = &ElementNode{Key: "root", Children: []string{"a", "b"}}
				tree.Elements["a"] = &ElementNode{Key: "a", Children: []string{"a1"}}
				tree.Elements["a1"] = &ElementNode{Key: "a1"}
				tree.Elements["b"] = &ElementNode{Key: "b"}
				tree.Elements["orphan"] = &ElementNode{Key: "orphan"}
				return tree
			},
			want: []string{"root", "a", "a1", "b"},
		},
		{
			name: "cycle visited once",
			tree: func() *Tree {
				tree := NewTree()
				tree.Root = "a"
				tree.Elements["a"] = &ElementNode{Key: "a", Children: []string{"b"}}
				tree.Elements["b"] = &ElementNode{Key: "b", Children: []string{"a"}}
				return tree
			},
			want: []string{"a", "b"},
		},
		{
			name: "dangling child key tolerated",
			tree: func() *Tree {
				tree := NewTree()
				tree.Root = "a"
				tree.Elements["a"] = &ElementNode{Key: "a", Children: []string{"ghost"}}
				return tree
			},
			want: []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.tree().ReachableKeys()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ReachableKeys() = %v, want %v", got, tt.want)
			}
		})
	}
}
