package canonical

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolvePointer walks doc along an RFC 6901 JSON pointer and returns the
// addressed value. The empty pointer addresses the whole document. Tokens
// unescape ~1 to '/' and ~0 to '~'; list tokens must be in-range integers.
func ResolvePointer(doc any, pointer string) (any, error) {
	if pointer == "" {
		return doc, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("invalid json pointer: %s", pointer)
	}
	current := doc
	for _, token := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		token = strings.ReplaceAll(token, "~1", "/")
		token = strings.ReplaceAll(token, "~0", "~")
		switch node := current.(type) {
		case []any:
			idx, err := strconv.Atoi(token)
			if err != nil {
				return nil, fmt.Errorf("json pointer %s: index %q is not a number", pointer, token)
			}
			if idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("json pointer %s: index %d out of range", pointer, idx)
			}
			current = node[idx]
		case map[string]any:
			val, ok := node[token]
			if !ok {
				return nil, fmt.Errorf("json pointer %s: key %q not found", pointer, token)
			}
			current = val
		default:
			return nil, fmt.Errorf("json pointer %s: cannot descend past scalar", pointer)
		}
	}
	return current, nil
}
