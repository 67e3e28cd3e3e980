package internal

import "sort"

// patchTier orders patches inside one flush batch. Root moves first, then
// whole-element creation, then property writes, then everything else, so a
// node's creation is always applied before any patch mutating it even when
// the producer emitted them out of order.
type patchTier int

const (
	tierRoot patchTier = iota
	tierElementCreate
	tierProp
	tierOther
)

func tierOf(p Patch) patchTier {
	segments := SplitPath(p.Path)
	if len(segments) == 0 {
		return tierOther
	}
	switch segments[0] {
	case "root":
		return tierRoot
	case "elements":
		if len(segments) == 2 {
			return tierElementCreate
		}
		if len(segments) > 2 {
			return tierProp
		}
	}
	return tierOther
}

// ApplyPatchesBatch folds an unordered list of patches through the patch
// engine in dependency order. Patches that fail to apply are logged and
// skipped; one bad patch never aborts the batch.
func ApplyPatchesBatch(tree *Tree, patches []Patch, opts ApplyOptions) *Tree {
	if tree == nil {
		tree = NewTree()
	}
	if len(patches) == 0 {
		return tree
	}

	buckets := make([][]Patch, 4)
	for _, p := range patches {
		tier := tierOf(p)
		buckets[tier] = append(buckets[tier], p)
	}
	for _, bucket := range buckets {
		// Lexical order approximates dependency order: a parent key sorts
		// before parent/child paths in the common case. Stable keeps equal
		// paths in arrival order.
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Path < bucket[j].Path
		})
	}

	current := tree
	for _, bucket := range buckets {
		for _, p := range bucket {
			next, err := ApplyPatch(current, p, opts)
			if err != nil {
				LogWarn("Skipping patch %s %s: %v", p.Op, p.Path, err)
				continue
			}
			current = next
		}
	}
	return current
}
