// Package sanitize implements the one name-cleaning rule shared by member
// names and mailbox file names: every character outside [A-Za-z0-9_-] is
// replaced with '-'.
package sanitize

import "strings"

// Name sanitizes s per the data model's member-name rule.
func Name(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
