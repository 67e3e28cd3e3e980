package internal

import (
	"fmt"
	"strconv"
	"strings"
)

// pathmutate implements the structural-sharing mutator used by the patch
// engine for writes inside one element node. Containers are the generic JSON
// shapes (map[string]interface{} and []interface{}); every level actually
// touched by a write is cloned, untouched siblings keep reference identity.

// SplitPath splits a slash-separated path into segments, ignoring a leading
// empty segment produced by a leading "/".
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	if len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}
	// A trailing slash contributes an empty segment; drop it the same way.
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// SetByPath writes value at path inside container and returns the resulting
// container. An empty path replaces the container wholesale. The terminal
// segment "-" appends to an array; purely numeric segments index arrays.
// Missing intermediate containers are created: an array when the next segment
// is "-" or numeric, an object otherwise.
func SetByPath(container interface{}, path string, value interface{}) (interface{}, error) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return value, nil
	}
	return setSegments(container, segments, value)
}

// RemoveByPath deletes the value at path inside container and returns the
// resulting container. Deleting a missing path is a no-op: the original
// container is returned unchanged.
func RemoveByPath(container interface{}, path string) interface{} {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return container
	}
	result, changed := removeSegments(container, segments)
	if !changed {
		return container
	}
	return result
}

func setSegments(container interface{}, segments []string, value interface{}) (interface{}, error) {
	segment := segments[0]
	terminal := len(segments) == 1

	switch c := container.(type) {
	case nil:
		return setSegments(newContainerFor(segment), segments, value)

	case map[string]interface{}:
		if segment == "-" {
			return nil, fmt.Errorf("append segment on non-array container")
		}
		clone := make(map[string]interface{}, len(c)+1)
		for k, v := range c {
			clone[k] = v
		}
		if terminal {
			clone[segment] = value
			return clone, nil
		}
		child, ok := clone[segment]
		if !ok || child == nil {
			child = newContainerFor(segments[1])
		}
		newChild, err := setSegments(child, segments[1:], value)
		if err != nil {
			return nil, err
		}
		clone[segment] = newChild
		return clone, nil

	case []interface{}:
		if segment == "-" {
			if !terminal {
				return nil, fmt.Errorf("append segment must be the last path segment")
			}
			clone := append([]interface{}(nil), c...)
			return append(clone, value), nil
		}
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 {
			return nil, fmt.Errorf("invalid array index %q", segment)
		}
		clone := append([]interface{}(nil), c...)
		for len(clone) <= index {
			clone = append(clone, nil)
		}
		if terminal {
			clone[index] = value
			return clone, nil
		}
		child := clone[index]
		if child == nil {
			child = newContainerFor(segments[1])
		}
		newChild, err := setSegments(child, segments[1:], value)
		if err != nil {
			return nil, err
		}
		clone[index] = newChild
		return clone, nil

	default:
		// A scalar sits where the path needs a container. Replace it, the
		// incoming write wins.
		return setSegments(newContainerFor(segment), segments, value)
	}
}

func removeSegments(container interface{}, segments []string) (interface{}, bool) {
	segment := segments[0]
	terminal := len(segments) == 1

	switch c := container.(type) {
	case map[string]interface{}:
		child, ok := c[segment]
		if !ok {
			return container, false
		}
		clone := make(map[string]interface{}, len(c))
		for k, v := range c {
			clone[k] = v
		}
		if terminal {
			delete(clone, segment)
			return clone, true
		}
		newChild, changed := removeSegments(child, segments[1:])
		if !changed {
			return container, false
		}
		clone[segment] = newChild
		return clone, true

	case []interface{}:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(c) {
			return container, false
		}
		if terminal {
			clone := append([]interface{}(nil), c[:index]...)
			clone = append(clone, c[index+1:]...)
			return clone, true
		}
		newChild, changed := removeSegments(c[index], segments[1:])
		if !changed {
			return container, false
		}
		clone := append([]interface{}(nil), c...)
		clone[index] = newChild
		return clone, true

	default:
		return container, false
	}
}

// newContainerFor picks the container shape for a missing intermediate level:
// an array when the upcoming segment addresses an index, an object otherwise.
func newContainerFor(nextSegment string) interface{} {
	if nextSegment == "-" || isNumeric(nextSegment) {
		return []interface{}{}
	}
	return map[string]interface{}{}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
