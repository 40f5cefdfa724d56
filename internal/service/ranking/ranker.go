// Package ranking orders discovered patterns for review and collapses
// near-duplicates so one behavior never shows up twice.
package ranking

import (
	"sort"

	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
)

// Rank returns a new slice sorted by confidence desc, occurrences desc,
// specificity, then signature, with near-duplicates collapsed onto the
// first-ranked survivor. The input is not modified.
func Rank(patterns []pattern.Pattern) []pattern.Pattern {
	ranked := make([]pattern.Pattern, len(patterns))
	copy(ranked, patterns)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		if ranked[i].Occurrences != ranked[j].Occurrences {
			return ranked[i].Occurrences > ranked[j].Occurrences
		}
		if ranked[i].Specificity() != ranked[j].Specificity() {
			return ranked[i].Specificity() < ranked[j].Specificity()
		}
		return ranked[i].Signature() < ranked[j].Signature()
	})

	seen := make(map[string]struct{}, len(ranked))
	out := ranked[:0]
	for _, p := range ranked {
		key := p.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Top returns at most n patterns of the given kind, preserving rank order.
// n <= 0 means no limit.
func Top(ranked []pattern.Pattern, kind pattern.Kind, n int) []pattern.Pattern {
	var out []pattern.Pattern
	for _, p := range ranked {
		if p.Kind != kind {
			continue
		}
		out = append(out, p)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// CountByKind tallies ranked patterns per kind.
func CountByKind(ranked []pattern.Pattern) map[pattern.Kind]int {
	counts := make(map[pattern.Kind]int, len(pattern.Kinds()))
	for _, p := range ranked {
		counts[p.Kind]++
	}
	return counts
}
