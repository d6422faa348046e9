package jsonpath

// Set produces a new tree with value written at path, sharing every subtree
// of data that the write didn't touch. changed is false when the write was
// a genuine no-op (the value at path already equaled value structurally),
// in which case newData == data and callers must not emit an UPDATE.
func Set(data any, path string, value any) (newData any, changed bool) {
	return setAt(data, Tokenize(path), value)
}

func setAt(cursor any, tokens []string, value any) (any, bool) {
	if len(tokens) == 0 {
		merged, same := patchValue(cursor, value)
		return merged, !same
	}

	token, rest := tokens[0], tokens[1:]

	switch c := cursor.(type) {
	case map[string]any:
		newChild, changed := setAt(c[token], rest, value)
		if !changed {
			return cursor, false
		}
		newMap := make(map[string]any, len(c)+1)
		for k, v := range c {
			newMap[k] = v
		}
		newMap[token] = newChild
		return newMap, true

	case []any:
		if !isInt(token) {
			return setAt(map[string]any{}, tokens, value)
		}

		idx := atoi(token)
		if idx < len(c) {
			newChild, changed := setAt(c[idx], rest, value)
			if !changed {
				return cursor, false
			}
			newSlice := append([]any(nil), c...)
			newSlice[idx] = newChild
			return newSlice, true
		}

		newSlice := make([]any, idx+1)
		copy(newSlice, c)
		newChild, _ := setAt(nil, rest, value)
		newSlice[idx] = newChild
		return newSlice, true

	default:
		// Missing intermediate, or overwriting a scalar with a deeper
		// write: create the container the next token implies.
		if isInt(token) {
			return setAt(make([]any, atoi(token)+1), tokens, value)
		}
		return setAt(map[string]any{}, tokens, value)
	}
}
