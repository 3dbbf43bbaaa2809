// Package strings provides string list utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitList splits v on any of the runes in seps and returns the trimmed,
// deduplicated parts in order.
//
//	SplitList("a, b,,a", ",")  // []string{"a", "b"}
//	SplitList("a b,c", ", ")   // []string{"a", "b", "c"}
func SplitList(v, seps string) []string {
	parts := strings.FieldsFunc(v, func(r rune) bool {
		return strings.ContainsRune(seps, r)
	})
	return DedupeAndTrim(parts)
}
