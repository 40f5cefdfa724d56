package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidence_ZeroTrials(t *testing.T) {
	assert.Equal(t, 0.0, Confidence(0, 0))
	assert.Equal(t, 0.0, Confidence(5, 0))
}

func TestConfidence_ZeroSuccesses(t *testing.T) {
	for _, trials := range []int{1, 5, 50, 1000} {
		assert.Equal(t, 0.0, Confidence(0, trials), "trials=%d", trials)
	}
}

func TestConfidence_PerfectRatioPenalty(t *testing.T) {
	// A perfect ratio returns max(0, 1-2/trials), never 1.0
	assert.InDelta(t, 0.6, Confidence(5, 5), 1e-9)
	assert.InDelta(t, 0.9, Confidence(20, 20), 1e-9)
	assert.Equal(t, 0.0, Confidence(1, 1))
	assert.Equal(t, 0.0, Confidence(2, 2))
}

func TestConfidence_PerfectRatioApproachesOne(t *testing.T) {
	prev := 0.0
	for _, trials := range []int{5, 10, 50, 100, 1000} {
		c := Confidence(trials, trials)
		require.Less(t, c, 1.0, "trials=%d", trials)
		require.GreaterOrEqual(t, c, prev, "trials=%d", trials)
		prev = c
	}
	assert.Greater(t, Confidence(1000, 1000), 0.99)
}

func TestConfidence_WithinUnitInterval(t *testing.T) {
	for trials := 1; trials <= 60; trials++ {
		for successes := 0; successes <= trials; successes++ {
			c := Confidence(successes, trials)
			require.GreaterOrEqual(t, c, 0.0, "s=%d t=%d", successes, trials)
			require.LessOrEqual(t, c, 1.0, "s=%d t=%d", successes, trials)
		}
	}
}

func TestConfidence_MonotonicInSuccesses(t *testing.T) {
	for _, trials := range []int{5, 17, 40, 120} {
		prev := -1.0
		for successes := 0; successes <= trials; successes++ {
			c := Confidence(successes, trials)
			require.GreaterOrEqual(t, c, prev, "s=%d t=%d", successes, trials)
			prev = c
		}
	}
}

func TestConfidence_KnownValues(t *testing.T) {
	// 20/25: p=0.8, Wilson lower bound at 95%
	c := Confidence(20, 25)
	assert.InDelta(t, 0.6087, c, 0.001)

	// 9/10 clears a 0.90 threshold only with far more data
	assert.Less(t, Confidence(9, 10), 0.90)
	assert.Greater(t, Confidence(980, 1000), 0.96)
}
