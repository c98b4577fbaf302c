package connector

import "strings"

// GetPath reads a dot-separated path ("a.b.c") from nested maps. Missing
// segments yield nil.
func GetPath(data any, path string) any {
	if path == "" || data == nil {
		return nil
	}
	current := data
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
		if current == nil {
			return nil
		}
	}
	return current
}

// SetPath writes value at a dot-separated path, creating intermediate maps
// and replacing non-map intermediates.
func SetPath(data map[string]any, path string, value any) {
	if path == "" || data == nil {
		return
	}
	keys := strings.Split(path, ".")
	current := data
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
}
