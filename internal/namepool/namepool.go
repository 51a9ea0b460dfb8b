// Package namepool selects teammate names for auto-spawned workers, using
// a map of //go:embed'd word lists selected by style, and falling back to
// a deterministic agent1, agent2, ... counter when the style is unset,
// unknown, or exhausted.
package namepool

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed comrades.txt
var comradesTXT string

//go:embed pirates.txt
var piratesTXT string

var pools = map[string][]string{
	"comrades": splitLines(comradesTXT),
	"pirates":  splitLines(piratesTXT),
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Next returns the name for the nth (zero-based) auto-spawned worker under
// the given style, given the set of names already taken (so a restart that
// re-derives names doesn't collide with live members). style == "" or an
// unknown style always falls back to the counter strategy.
func Next(style string, n int, taken map[string]bool) string {
	pool := pools[style]
	if len(pool) > 0 {
		for i := n; i < len(pool)+n; i++ {
			idx := i % len(pool)
			candidate := pool[idx]
			if !taken[candidate] {
				return candidate
			}
		}
	}
	return counterName(n, taken)
}

// counterName produces agent1, agent2, ... skipping any already taken.
func counterName(n int, taken map[string]bool) string {
	for i := n + 1; ; i++ {
		candidate := "agent" + strconv.Itoa(i)
		if !taken[candidate] {
			return candidate
		}
	}
}

// Styles lists the known style tags, for validation/help text.
func Styles() []string {
	out := make([]string, 0, len(pools))
	for k := range pools {
		out = append(out, k)
	}
	return out
}

// Validate reports an error for an explicitly-set but unrecognized style.
func Validate(style string) error {
	if style == "" {
		return nil
	}
	if _, ok := pools[style]; !ok {
		return fmt.Errorf("namepool: unknown style %q (known: %v)", style, Styles())
	}
	return nil
}
