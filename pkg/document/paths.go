// ABOUTME: Dotted field-path traversal for nested documents
// ABOUTME: Implements GetPath, SetPath, and DeletePath used by queries and updates

package document

import "strings"

// GetPath resolves a dotted path like "address.city" through nested maps.
// The second result reports whether the full path exists.
func (d Document) GetPath(path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = map[string]interface{}(d)
	for _, part := range parts {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetPath writes value at a dotted path, creating intermediate maps as
// needed. An existing non-map value along the path is replaced by a map.
func (d Document) SetPath(path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := map[string]interface{}(d)
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(current[part])
		if !ok {
			next = make(map[string]interface{})
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// DeletePath removes the value at a dotted path.
// Missing intermediate segments make it a no-op.
func (d Document) DeletePath(path string) {
	parts := strings.Split(path, ".")
	current := map[string]interface{}(d)
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(current[part])
		if !ok {
			return
		}
		current = next
	}
	delete(current, parts[len(parts)-1])
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Document:
		return m, true
	default:
		return nil, false
	}
}
