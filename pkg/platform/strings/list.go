// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// SplitList parses a comma-separated setting such as "admin, auditor".
// Elements are trimmed; blanks and repeats are dropped; order is preserved.
// An empty input yields nil.
func SplitList(raw string) []string {
	return dedupe(strings.Split(raw, ","), strings.TrimSpace)
}

// SplitListLower is like SplitList but lowercases each element, for settings
// compared case-insensitively such as roles.
func SplitListLower(raw string) []string {
	return dedupe(strings.Split(raw, ","), func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}

func dedupe(values []string, normalize func(string) string) []string {
	var result []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	return result
}
