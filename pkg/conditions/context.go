package conditions

import (
	"fmt"
	"strings"
)

// Context is the resolved lookup environment for `{{dotted.path}}`
// placeholders: nested string-keyed maps, typically built from a task's
// result metadata and the payload's DICOM tag values.
type Context map[string]any

// Resolve walks a dotted path through nested maps and returns the value at
// the leaf rendered as a string. The second return is false on any lookup
// miss or when an intermediate segment is not a map.
func (c Context) Resolve(path string) (string, bool) {
	segments := strings.Split(path, ".")

	var current any = map[string]any(c)

	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return "", false
		}

		current, ok = node[segment]
		if !ok {
			return "", false
		}
	}

	switch v := current.(type) {
	case string:
		return v, true
	case nil:
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// Merge returns a copy of the context with the other context's top-level
// keys layered on top.
func (c Context) Merge(other Context) Context {
	merged := make(Context, len(c)+len(other))

	for k, v := range c {
		merged[k] = v
	}

	for k, v := range other {
		merged[k] = v
	}

	return merged
}
