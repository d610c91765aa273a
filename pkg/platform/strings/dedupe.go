// Package strings provides string list helpers for query and env parsing.
package strings

import (
	"strings"
)

// SplitCSV splits a comma separated value into trimmed, non-empty,
// de-duplicated parts, keeping first-seen order. Blank input yields nil.
//
//	SplitCSV(" a, b,,a ") // []string{"a", "b"}
func SplitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(v, ","))
}

// DedupeAndTrim removes duplicates and blank entries, trimming each element.
// Order is preserved.
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
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
