package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PatchOp is one of the fixed set of tree operations carried by the stream.
type PatchOp string

const (
	// OpSet writes a value at a path.
	OpSet PatchOp = "set"
	// OpAdd behaves like OpSet; kept distinct because producers emit both.
	OpAdd PatchOp = "add"
	// OpReplace behaves like OpSet for this tree shape.
	OpReplace PatchOp = "replace"
	// OpRemove deletes the value at a path.
	OpRemove PatchOp = "remove"
	// OpEnsure inserts an element only if absent. Idempotent create.
	OpEnsure PatchOp = "ensure"
)

// Patch is one normalized instruction to mutate the tree. Paths are "/root",
// "/elements/<key>" or "/elements/<key>/<subpath>"; the terminal segment "-"
// appends to an array and purely numeric segments index arrays.
type Patch struct {
	Op    PatchOp     `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// PatchGroup is a set of patches flushed together. An atomic group is always
// applied as its own transaction, never merged with adjacent patches.
type PatchGroup struct {
	Patches []Patch
	Atomic  bool
}

// ApplyOptions carries per-application context into the patch engine.
type ApplyOptions struct {
	// TurnID stamps element metadata for provenance.
	TurnID string
	// ProtectedTypes lists element types whose whole-node removal is a no-op,
	// e.g. a host-managed document canvas the agent must not delete.
	ProtectedTypes []string
	// now overrides the clock in tests.
	now func() time.Time
}

func (o ApplyOptions) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// ValidatePatch checks the structural shape of a patch before interpretation.
// Schema validation at the wire boundary is the primary defense; this is the
// engine's own check for patches constructed in-process.
func ValidatePatch(p Patch) error {
	switch p.Op {
	case OpSet, OpAdd, OpReplace, OpRemove, OpEnsure:
	default:
		return &PatchError{Op: string(p.Op), Path: p.Path, Err: fmt.Errorf("unknown op")}
	}
	segments := SplitPath(p.Path)
	if len(segments) == 0 {
		return &PatchError{Op: string(p.Op), Path: p.Path, Err: fmt.Errorf("empty path")}
	}
	switch segments[0] {
	case "root":
		if len(segments) != 1 {
			return &PatchError{Op: string(p.Op), Path: p.Path, Err: fmt.Errorf("root path takes no subpath")}
		}
	case "elements":
		if len(segments) < 2 || segments[1] == "" {
			return &PatchError{Op: string(p.Op), Path: p.Path, Err: fmt.Errorf("elements path missing key")}
		}
	default:
		return &PatchError{Op: string(p.Op), Path: p.Path, Err: fmt.Errorf("path must target /root or /elements")}
	}
	if p.Op != OpRemove && p.Value == nil {
		return &PatchError{Op: string(p.Op), Path: p.Path, Err: fmt.Errorf("missing value")}
	}
	return nil
}

// ApplyPatch interprets one patch against the tree and returns a new tree via
// structural sharing. The input tree is never mutated.
func ApplyPatch(tree *Tree, patch Patch, opts ApplyOptions) (*Tree, error) {
	if tree == nil {
		tree = NewTree()
	}
	if err := ValidatePatch(patch); err != nil {
		return tree, err
	}

	segments := SplitPath(patch.Path)
	if segments[0] == "root" {
		return applyRootPatch(tree, patch)
	}

	key := segments[1]
	subpath := segments[2:]

	switch {
	case patch.Op == OpRemove && len(subpath) == 0:
		return removeElement(tree, key, opts)
	case patch.Op == OpRemove:
		return removeElementField(tree, key, subpath, opts)
	case patch.Op == OpEnsure:
		if len(subpath) > 0 {
			return tree, &PatchError{Op: string(patch.Op), Path: patch.Path, Err: fmt.Errorf("ensure applies to whole elements only")}
		}
		return ensureElement(tree, key, patch.Value, opts)
	case len(subpath) == 0:
		return upsertElement(tree, key, patch.Value, opts)
	default:
		return setElementField(tree, key, subpath, patch, opts)
	}
}

func applyRootPatch(tree *Tree, patch Patch) (*Tree, error) {
	next := tree.CloneShallow()
	if patch.Op == OpRemove {
		next.Root = ""
		return next, nil
	}
	rootKey, ok := patch.Value.(string)
	if !ok {
		return tree, &PatchError{Op: string(patch.Op), Path: patch.Path, Err: fmt.Errorf("root value must be an element key string")}
	}
	next.Root = rootKey
	return next, nil
}

func removeElement(tree *Tree, key string, opts ApplyOptions) (*Tree, error) {
	node, ok := tree.Elements[key]
	if !ok {
		return tree, nil
	}
	for _, protected := range opts.ProtectedTypes {
		if node.Type == protected {
			LogDebug("Skipping removal of protected element %s (type %s)", key, node.Type)
			return tree, nil
		}
	}
	next := tree.CloneShallow()
	delete(next.Elements, key)
	return next, nil
}

func ensureElement(tree *Tree, key string, value interface{}, opts ApplyOptions) (*Tree, error) {
	if _, ok := tree.Elements[key]; ok {
		return tree, nil
	}
	return upsertElement(tree, key, value, opts)
}

// upsertElement inserts or merges a whole element node. An existing node is
// merged: props shallow-merged, children unioned preserving existing order,
// remaining fields overwritten by whichever the incoming payload carries.
func upsertElement(tree *Tree, key string, value interface{}, opts ApplyOptions) (*Tree, error) {
	incoming, err := nodeFieldsFromValue(value)
	if err != nil {
		return tree, &PatchError{Op: "set", Path: "/elements/" + key, Err: err}
	}
	now := opts.clock()
	next := tree.CloneShallow()

	var node *ElementNode
	if existing, ok := next.Elements[key]; ok {
		node = existing.CloneNode()
		mergeNodeFields(node, incoming)
	} else {
		node = &ElementNode{Key: key, Props: make(map[string]interface{})}
		mergeNodeFields(node, incoming)
	}
	node.Key = key
	stampMeta(node, opts.TurnID, now, tree.Elements[key] != nil)
	next.Elements[key] = node

	backfillChildren(next, node, opts.TurnID, now)
	return next, nil
}

// setElementField delegates a sub-path write to the path mutator, routing the
// head segment to the matching typed field of the node. A write that targets
// children with a string value is treated as "attach child to this parent".
func setElementField(tree *Tree, key string, subpath []string, patch Patch, opts ApplyOptions) (*Tree, error) {
	now := opts.clock()
	next := tree.CloneShallow()

	node, ok := next.Elements[key]
	if !ok {
		// The element has not been described yet. Child attachments get a
		// minimal container so they still succeed; other writes land on a
		// placeholder that the real description will merge into later.
		if subpath[0] == "children" {
			node = newDefaultContainer(key, opts.TurnID, now)
		} else {
			node = newPlaceholder(key, "", opts.TurnID, now)
		}
	} else {
		node = node.CloneNode()
	}

	head, rest := subpath[0], subpath[1:]
	restPath := joinSegments(rest)

	switch head {
	case "props":
		if len(rest) == 0 {
			props, ok := patch.Value.(map[string]interface{})
			if !ok {
				return tree, &PatchError{Op: string(patch.Op), Path: patch.Path, Err: fmt.Errorf("props value must be an object")}
			}
			node.Props = props
		} else {
			updated, err := SetByPath(propsContainer(node.Props), restPath, patch.Value)
			if err != nil {
				return tree, &PatchError{Op: string(patch.Op), Path: patch.Path, Err: err}
			}
			node.Props = updated.(map[string]interface{})
		}
	case "layout":
		if len(rest) == 0 {
			layout, ok := patch.Value.(map[string]interface{})
			if !ok {
				return tree, &PatchError{Op: string(patch.Op), Path: patch.Path, Err: fmt.Errorf("layout value must be an object")}
			}
			node.Layout = layout
		} else {
			updated, err := SetByPath(propsContainer(node.Layout), restPath, patch.Value)
			if err != nil {
				return tree, &PatchError{Op: string(patch.Op), Path: patch.Path, Err: err}
			}
			node.Layout = updated.(map[string]interface{})
		}
	case "children":
		if err := setChildren(next, node, rest, patch, opts.TurnID, now); err != nil {
			return tree, err
		}
	case "type":
		s, ok := patch.Value.(string)
		if !ok {
			return tree, &PatchError{Op: string(patch.Op), Path: patch.Path, Err: fmt.Errorf("type value must be a string")}
		}
		node.Type = s
	case "parentKey":
		s, ok := patch.Value.(string)
		if !ok {
			return tree, &PatchError{Op: string(patch.Op), Path: patch.Path, Err: fmt.Errorf("parentKey value must be a string")}
		}
		node.ParentKey = s
	case "editable":
		b, ok := patch.Value.(bool)
		if !ok {
			return tree, &PatchError{Op: string(patch.Op), Path: patch.Path, Err: fmt.Errorf("editable value must be a bool")}
		}
		node.Editable = &b
	case "locked":
		b, ok := patch.Value.(bool)
		if !ok {
			return tree, &PatchError{Op: string(patch.Op), Path: patch.Path, Err: fmt.Errorf("locked value must be a bool")}
		}
		node.Locked = &b
	default:
		return tree, &PatchError{Op: string(patch.Op), Path: patch.Path, Err: fmt.Errorf("unsupported element field %q", head)}
	}

	touchMeta(node, opts.TurnID, now)
	next.Elements[key] = node
	return next, nil
}

func removeElementField(tree *Tree, key string, subpath []string, opts ApplyOptions) (*Tree, error) {
	existing, ok := tree.Elements[key]
	if !ok {
		return tree, nil
	}
	now := opts.clock()
	next := tree.CloneShallow()
	node := existing.CloneNode()

	head, rest := subpath[0], subpath[1:]
	restPath := joinSegments(rest)

	switch head {
	case "props":
		if len(rest) == 0 {
			node.Props = nil
		} else if node.Props != nil {
			node.Props = RemoveByPath(node.Props, restPath).(map[string]interface{})
		}
	case "layout":
		if len(rest) == 0 {
			node.Layout = nil
		} else if node.Layout != nil {
			node.Layout = RemoveByPath(node.Layout, restPath).(map[string]interface{})
		}
	case "children":
		removeChild(node, rest)
	case "parentKey":
		node.ParentKey = ""
	case "editable":
		node.Editable = nil
	case "locked":
		node.Locked = nil
	default:
		// Delete of an unknown or missing field is not an error.
		return tree, nil
	}

	touchMeta(node, opts.TurnID, now)
	next.Elements[key] = node
	return next, nil
}

// setChildren handles the children-specific write shapes: a whole-list
// replacement, an indexed write, or an append. String values are child keys;
// referenced children that do not exist yet are created as placeholders with
// their ParentKey back-linked.
func setChildren(tree *Tree, parent *ElementNode, rest []string, patch Patch, turnID string, now time.Time) error {
	attach := func(childKey string) {
		if child, ok := tree.Elements[childKey]; ok {
			if child.ParentKey != parent.Key {
				linked := child.CloneNode()
				linked.ParentKey = parent.Key
				tree.Elements[childKey] = linked
			}
			return
		}
		tree.Elements[childKey] = newPlaceholder(childKey, parent.Key, turnID, now)
	}

	if len(rest) == 0 {
		keys, err := childKeyList(patch.Value)
		if err != nil {
			return &PatchError{Op: string(patch.Op), Path: patch.Path, Err: err}
		}
		parent.Children = keys
		for _, childKey := range keys {
			attach(childKey)
		}
		return nil
	}

	childKey, ok := patch.Value.(string)
	if !ok {
		return &PatchError{Op: string(patch.Op), Path: patch.Path, Err: fmt.Errorf("children entry must be an element key string")}
	}

	segment := rest[0]
	switch {
	case segment == "-":
		parent.Children = append(parent.Children, childKey)
	case isNumeric(segment):
		index, _ := strconv.Atoi(segment)
		for len(parent.Children) <= index {
			parent.Children = append(parent.Children, "")
		}
		parent.Children[index] = childKey
	default:
		return &PatchError{Op: string(patch.Op), Path: patch.Path, Err: fmt.Errorf("invalid children segment %q", segment)}
	}
	attach(childKey)
	return nil
}

func removeChild(node *ElementNode, rest []string) {
	if len(rest) == 0 {
		node.Children = nil
		return
	}
	segment := rest[0]
	if !isNumeric(segment) {
		return
	}
	index, _ := strconv.Atoi(segment)
	if index < 0 || index >= len(node.Children) {
		return
	}
	node.Children = append(node.Children[:index], node.Children[index+1:]...)
}

// backfillChildren eagerly creates placeholders for every child key a node
// lists that is not in the element map yet, so reachable keys always resolve.
func backfillChildren(tree *Tree, parent *ElementNode, turnID string, now time.Time) {
	for _, childKey := range parent.Children {
		if childKey == "" {
			continue
		}
		if child, ok := tree.Elements[childKey]; ok {
			if child.ParentKey == "" {
				linked := child.CloneNode()
				linked.ParentKey = parent.Key
				tree.Elements[childKey] = linked
			}
			continue
		}
		tree.Elements[childKey] = newPlaceholder(childKey, parent.Key, turnID, now)
	}
}

// nodeFields is the raw shape of an incoming whole-element payload. Keeping
// the raw map lets the merge distinguish "field absent" from "field zero".
type nodeFields struct {
	raw  map[string]interface{}
	node ElementNode
}

func nodeFieldsFromValue(value interface{}) (*nodeFields, error) {
	var raw map[string]interface{}
	switch v := value.(type) {
	case map[string]interface{}:
		raw = v
	case *ElementNode:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode element: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode element: %w", err)
		}
	case ElementNode:
		return nodeFieldsFromValue(&v)
	default:
		return nil, fmt.Errorf("element value must be an object")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode element: %w", err)
	}
	var node ElementNode
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("invalid element shape: %w", err)
	}
	return &nodeFields{raw: raw, node: node}, nil
}

// mergeNodeFields folds the incoming payload into node: props shallow-merged,
// children unioned preserving existing order then appending new keys, every
// other field present in the payload overwritten.
func mergeNodeFields(node *ElementNode, incoming *nodeFields) {
	if _, ok := incoming.raw["type"]; ok {
		node.Type = incoming.node.Type
	}
	if _, ok := incoming.raw["parentKey"]; ok {
		node.ParentKey = incoming.node.ParentKey
	}
	if _, ok := incoming.raw["layout"]; ok {
		node.Layout = incoming.node.Layout
	}
	if _, ok := incoming.raw["editable"]; ok {
		node.Editable = incoming.node.Editable
	}
	if _, ok := incoming.raw["locked"]; ok {
		node.Locked = incoming.node.Locked
	}
	if _, ok := incoming.raw["props"]; ok {
		if node.Props == nil {
			node.Props = make(map[string]interface{})
		}
		for k, v := range incoming.node.Props {
			node.Props[k] = v
		}
	}
	if _, ok := incoming.raw["children"]; ok {
		node.Children = unionChildren(node.Children, incoming.node.Children)
	}
}

// unionChildren keeps the existing order and appends incoming keys that are
// not already present.
func unionChildren(existing, incoming []string) []string {
	if len(existing) == 0 {
		return append([]string(nil), incoming...)
	}
	seen := make(map[string]bool, len(existing))
	merged := append([]string(nil), existing...)
	for _, key := range existing {
		seen[key] = true
	}
	for _, key := range incoming {
		if !seen[key] {
			merged = append(merged, key)
			seen[key] = true
		}
	}
	return merged
}

func childKeyList(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []interface{}:
		keys := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("children entries must be element key strings")
			}
			keys = append(keys, s)
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("children value must be a list of element keys")
	}
}

// stampMeta applies the provenance rules: created fields are preserved when
// the node pre-existed, the modified pair always moves forward.
func stampMeta(node *ElementNode, turnID string, now time.Time, preExisted bool) {
	if node.Meta == nil {
		node.Meta = &ElementMeta{}
	}
	if !preExisted || node.Meta.CreatedAt.IsZero() {
		node.Meta.CreatedTurnID = turnID
		node.Meta.CreatedAt = now
	}
	node.Meta.TurnID = turnID
	node.Meta.LastModifiedTurnID = turnID
	node.Meta.LastModifiedAt = now
	node.Meta.IsPlaceholder = node.Type == PlaceholderType
}

func touchMeta(node *ElementNode, turnID string, now time.Time) {
	if node.Meta == nil {
		node.Meta = &ElementMeta{
			CreatedTurnID: turnID,
			CreatedAt:     now,
		}
	}
	node.Meta.LastModifiedTurnID = turnID
	node.Meta.LastModifiedAt = now
}

func propsContainer(m map[string]interface{}) interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func joinSegments(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	path := ""
	for _, s := range segments {
		path += "/" + s
	}
	return path
}
