// Package stats provides the shared statistical primitives used by every
// pattern analyzer. Confidence is always the lower bound of a 95% Wilson
// score interval, never a raw proportion.
package stats

import "math"

// z score for a 95% confidence level
const z95 = 1.96

// Confidence returns the lower bound of the 95% Wilson score interval for a
// binomial proportion of successes over trials. It is the sole source of
// truth for pattern confidence.
//
// Edge cases are handled with guarded arithmetic rather than relying on
// library behavior: zero trials and zero successes return 0, and a perfect
// ratio is penalized to max(0, 1-2/trials) so a handful of perfect
// observations never reports 100%.
func Confidence(successes, trials int) float64 {
	if trials == 0 {
		return 0.0
	}

	p := float64(successes) / float64(trials)

	if p == 1.0 {
		return math.Max(0.0, 1.0-2.0/float64(trials))
	}
	if p == 0.0 {
		return 0.0
	}

	n := float64(trials)
	denom := 1 + z95*z95/n
	center := (p + z95*z95/(2*n)) / denom

	// The max guard keeps floating-point underflow from producing a
	// negative radicand for tiny p*(1-p).
	sqrtTerm := math.Max(0.0, p*(1-p)/n+z95*z95/(4*n*n))
	margin := (z95 / denom) * math.Sqrt(sqrtTerm)

	return clamp(center-margin, 0.0, 1.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
