package ranking

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
)

func temporalPattern(entity, state string, hour int, scope pattern.DayScope, conf float64, occ, trials int) pattern.Pattern {
	p := pattern.Pattern{
		Kind:        pattern.KindTemporal,
		Confidence:  conf,
		Occurrences: occ,
		Trials:      trials,
		Description: entity + " at " + string(scope),
		Temporal:    &pattern.Temporal{EntityID: entity, TargetState: state, Hour: hour, Scope: scope},
	}
	p.ID = pattern.DeterministicID(p.Signature())
	return p
}

func TestRank_OrdersByConfidenceThenOccurrences(t *testing.T) {
	patterns := []pattern.Pattern{
		temporalPattern("light.a", "on", 9, pattern.ScopeDaily, 0.92, 10, 12),
		temporalPattern("light.b", "on", 9, pattern.ScopeDaily, 0.95, 5, 6),
		temporalPattern("light.c", "on", 9, pattern.ScopeDaily, 0.92, 20, 24),
	}

	ranked := Rank(patterns)
	require.Len(t, ranked, 3)
	assert.Equal(t, "light.b", ranked[0].Temporal.EntityID)
	assert.Equal(t, "light.c", ranked[1].Temporal.EntityID)
	assert.Equal(t, "light.a", ranked[2].Temporal.EntityID)
}

func TestRank_CollapsesScopeVariants(t *testing.T) {
	// Same behavior surfaced at two day scopes; only the stronger and more
	// specific survives.
	patterns := []pattern.Pattern{
		temporalPattern("light.kitchen", "on", 7, pattern.ScopeDaily, 0.91, 30, 32),
		temporalPattern("light.kitchen", "on", 7, pattern.ScopeWeekday, 0.95, 22, 23),
	}

	ranked := Rank(patterns)
	require.Len(t, ranked, 1)
	assert.Equal(t, pattern.ScopeWeekday, ranked[0].Temporal.Scope)
}

func TestRank_SpecificityBreaksConfidenceTies(t *testing.T) {
	patterns := []pattern.Pattern{
		temporalPattern("light.kitchen", "on", 7, pattern.ScopeDaily, 0.93, 30, 32),
		temporalPattern("light.kitchen", "on", 7, pattern.ScopeWeekday, 0.93, 30, 32),
	}

	ranked := Rank(patterns)
	require.Len(t, ranked, 1)
	assert.Equal(t, pattern.ScopeWeekday, ranked[0].Temporal.Scope)
}

func TestRank_DoesNotModifyInput(t *testing.T) {
	patterns := []pattern.Pattern{
		temporalPattern("light.a", "on", 9, pattern.ScopeDaily, 0.91, 10, 12),
		temporalPattern("light.b", "on", 9, pattern.ScopeDaily, 0.95, 5, 6),
	}

	_ = Rank(patterns)
	assert.Equal(t, "light.a", patterns[0].Temporal.EntityID)
}

func TestTop_LimitsPerKind(t *testing.T) {
	var patterns []pattern.Pattern
	for _, entity := range []string{"light.a", "light.b", "light.c"} {
		patterns = append(patterns, temporalPattern(entity, "on", 9, pattern.ScopeDaily, 0.95, 10, 12))
	}

	top := Top(patterns, pattern.KindTemporal, 2)
	assert.Len(t, top, 2)
	assert.Empty(t, Top(patterns, pattern.KindSequential, 2))
	assert.Len(t, Top(patterns, pattern.KindTemporal, 0), 3)
}

func TestReport_DistinguishesFailureFromEmpty(t *testing.T) {
	r := Report{
		GeneratedAt:    time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		WindowDays:     30,
		TotalEvents:    1000,
		AnalyzedEvents: 800,
		ExcludedByReason: map[string]int{
			"low_activity": 150,
			"sentinel":     50,
		},
		Patterns: []pattern.Pattern{
			temporalPattern("light.kitchen", "on", 7, pattern.ScopeDaily, 0.93, 28, 30),
		},
		Failures:   []Failure{{Kind: pattern.KindSequential, Message: "analyzer timed out"}},
		TopPerKind: 10,
	}

	var sb strings.Builder
	require.NoError(t, r.Render(&sb))
	out := sb.String()

	assert.Contains(t, out, "800 analyzed of 1000")
	assert.Contains(t, out, "light.kitchen at daily")
	assert.Contains(t, out, "analyzer failed: analyzer timed out")
	assert.Contains(t, out, "none found") // conditional ran clean, found nothing
	assert.Contains(t, out, "low_activity")
}
