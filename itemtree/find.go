package itemtree

// Find returns the first value stored under key anywhere in tree.
//
// Traversal uses an explicit stack so deeply nested payloads cannot exhaust the
// goroutine stack. A map is checked for key before its children are visited, so
// a key in the root map always wins. When the key occurs at several deeper
// places the match depends on map iteration order and is unspecified.
func Find(tree any, key string) (any, bool) {
	stack := []any{tree}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n := node.(type) {
		case map[string]any:
			if v, ok := n[key]; ok {
				return v, true
			}
			for _, child := range n {
				stack = append(stack, child)
			}
		case []any:
			stack = append(stack, n...)
		}
	}
	return nil, false
}

// FindMap is Find for map values. It returns an empty map when the key is
// absent or holds something else.
func FindMap(tree any, key string) map[string]any {
	v, ok := Find(tree, key)
	if !ok {
		return map[string]any{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}
