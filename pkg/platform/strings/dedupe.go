// Package strings provides string slice helpers for request normalization.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops empty and repeated ones.
// Order of first occurrence is preserved.
//
//	DedupeAndTrim([]string{" gpa ", "degree.type", "gpa", ""})
//	// []string{"gpa", "degree.type"}
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
