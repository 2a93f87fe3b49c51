// Package strings provides string list utilities shared by payload and
// document parsing.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops empties and repeats, keeping
// first-seen order.
//
//	DedupeAndTrim([]string{"  cpf ", "name", "cpf", "", "  "})
//	// []string{"cpf", "name"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList splits a comma separated list and applies DedupeAndTrim.
func SplitList(s string) []string {
	return DedupeAndTrim(strings.Split(s, ","))
}
