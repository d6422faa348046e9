// Package jsonpath tokenizes dotted/bracket path strings and implements
// structural-sharing get/set/patch over plain JSON trees (maps, slices and
// scalars, the shapes encoding/json produces when unmarshaling into any).
//
// "Structural sharing" means Set and Patch return a tree that reuses every
// unchanged subtree of the input by reference. Callers rely on that: an
// unchanged subtree compares == to the original, which is how Record
// detects which subscribed paths actually changed without a deep walk.
package jsonpath

import "regexp"

// tokenPattern matches maximal runs of characters that are not '.', '[',
// ']' or whitespace.
var tokenPattern = regexp.MustCompile(`[^.\[\]\s]+`)

// Tokenize splits path into its segments, root ("" or unset) tokenizing to
// an empty slice. Results are memoized in a bounded process-wide cache.
func Tokenize(path string) []string {
	if path == "" {
		return nil
	}

	if tokens, ok := shared.get(path); ok {
		return tokens
	}

	matches := tokenPattern.FindAllString(path, -1)
	tokens := make([]string, len(matches))
	copy(tokens, matches)

	shared.put(path, tokens)
	return tokens
}

// emptyRoot is the shared frozen value Get returns when asked to walk a nil
// root — it keeps downstream callers from having to nil-check before
// indexing into the result.
var emptyRoot = map[string]any{}

// isInt reports whether token is a non-negative integer literal, the rule
// Set uses to decide whether a missing intermediate node should be created
// as a slice (integer index) or a map (object key).
func isInt(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func atoi(token string) int {
	n := 0
	for _, r := range token {
		n = n*10 + int(r-'0')
	}
	return n
}
