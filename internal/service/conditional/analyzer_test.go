package conditional

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopilot-home/pattern-engine/internal/domain/event"
	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
	"github.com/autopilot-home/pattern-engine/internal/domain/stats"
	"github.com/autopilot-home/pattern-engine/internal/testutil/fixtures"
)

func testConfig() Config {
	// Low confidence floor so tests can observe the raw scores.
	return Config{MinConfidence: 0.5, MinOccurrences: 5, Workers: 2}
}

// neutral returns an event that matches no condition predicate by itself:
// midday on the nth day, nobody home, no concurrent context.
func neutral(t *testing.T, entity, state string, n int) event.Event {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return fixtures.NewEventBuilder(t).
		WithEntity(entity).
		WithStates("", state).
		At(at).
		Build()
}

func TestAnalyze_SunCondition(t *testing.T) {
	a := NewAnalyzer(testConfig(), nil)

	var events []event.Event
	for i := 0; i < 25; i++ {
		e := neutral(t, "light.living_room", "on", i)
		if i < 20 {
			e.SunPosition = "below_horizon"
		} else {
			e.SunPosition = "above_horizon"
		}
		events = append(events, e)
	}

	patterns, err := a.Analyze(context.Background(), events, nil)
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	p := patterns[0]
	require.Equal(t, pattern.KindConditional, p.Kind)
	assert.Equal(t, "light.living_room", p.Conditional.ActionEntity)
	assert.Equal(t, "on", p.Conditional.ActionState)
	assert.Equal(t, pattern.ConditionSun, p.Conditional.Condition.Type)
	assert.Equal(t, 20, p.Occurrences)
	assert.Equal(t, 25, p.Trials)
	assert.Equal(t, stats.Confidence(20, 25), p.Confidence)
}

func TestAnalyze_EveningTimeCondition(t *testing.T) {
	a := NewAnalyzer(testConfig(), nil)

	var events []event.Event
	for i := 0; i < 20; i++ {
		e := neutral(t, "light.porch", "on", i)
		e.Hour = 19
		events = append(events, e)
	}

	patterns, err := a.Analyze(context.Background(), events, nil)
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	c := patterns[0].Conditional.Condition
	assert.Equal(t, pattern.ConditionTime, c.Type)
	assert.Equal(t, ">=", c.Operator)
	assert.Equal(t, 18, c.Hour)
	assert.Equal(t, "after 18:00", c.Describe())
}

func TestAnalyze_MorningTimeCondition(t *testing.T) {
	a := NewAnalyzer(testConfig(), nil)

	var events []event.Event
	for i := 0; i < 20; i++ {
		e := neutral(t, "cover.bedroom", "open", i)
		e.Hour = 7
		events = append(events, e)
	}

	patterns, err := a.Analyze(context.Background(), events, nil)
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	c := patterns[0].Conditional.Condition
	assert.Equal(t, pattern.ConditionTime, c.Type)
	assert.Equal(t, "<", c.Operator)
	assert.Equal(t, 9, c.Hour)
}

func TestAnalyze_PresenceConditions(t *testing.T) {
	a := NewAnalyzer(testConfig(), nil)

	var events []event.Event
	for i := 0; i < 20; i++ {
		e := neutral(t, "media_player.tv", "playing", i)
		e.AnyoneHome = true
		e.PeopleHome = 2
		events = append(events, e)
	}

	patterns, err := a.Analyze(context.Background(), events, nil)
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	presences := []string{
		patterns[0].Conditional.Condition.Presence,
		patterns[1].Conditional.Condition.Presence,
	}
	assert.ElementsMatch(t, []string{pattern.PresenceAnyoneHome, pattern.PresenceEveryoneHome}, presences)
}

func TestAnalyze_ConcurrentStateCondition(t *testing.T) {
	a := NewAnalyzer(testConfig(), nil)

	var events []event.Event
	for i := 0; i < 20; i++ {
		e := neutral(t, "switch.desk_fan", "on", i)
		e.ConcurrentStates = map[string]string{
			"light.office":    "on",
			"switch.desk_fan": "on",      // self, must be ignored
			"person.bob":      "home",    // person entities never condition
			"sensor.lux":      "unknown", // sentinel states never condition
		}
		events = append(events, e)
	}

	patterns, err := a.Analyze(context.Background(), events, nil)
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	c := patterns[0].Conditional.Condition
	assert.Equal(t, pattern.ConditionState, c.Type)
	assert.Equal(t, "light.office", c.EntityID)
	assert.Equal(t, "on", c.State)
	assert.Equal(t, "Desk Fan turns 'on' when Office is 'on'", patterns[0].Description)
}

func TestAnalyze_PersonArrivalsAreActions(t *testing.T) {
	a := NewAnalyzer(testConfig(), nil)

	// Arrivals are legitimate actions; person entities are only barred from
	// the condition side.
	var events []event.Event
	for i := 0; i < 20; i++ {
		e := neutral(t, "person.jane", "home", i)
		e.Hour = 19
		events = append(events, e)
	}

	patterns, err := a.Analyze(context.Background(), events, nil)
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	p := patterns[0]
	assert.Equal(t, "person.jane", p.Conditional.ActionEntity)
	assert.Equal(t, "home", p.Conditional.ActionState)
	assert.Equal(t, pattern.ConditionTime, p.Conditional.Condition.Type)
}

func TestAnalyze_BelowOccurrenceFloor(t *testing.T) {
	a := NewAnalyzer(testConfig(), nil)

	var events []event.Event
	for i := 0; i < 4; i++ {
		e := neutral(t, "light.hall", "on", i)
		e.Hour = 19
		events = append(events, e)
	}

	patterns, err := a.Analyze(context.Background(), events, nil)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestAnalyze_DeterministicAcrossWorkerCounts(t *testing.T) {
	var events []event.Event
	for ent := 0; ent < 6; ent++ {
		for i := 0; i < 20; i++ {
			e := neutral(t, fmt.Sprintf("light.room_%d", ent), "on", ent*100+i)
			e.Hour = 19
			events = append(events, e)
		}
	}

	serial := NewAnalyzer(Config{MinConfidence: 0.5, MinOccurrences: 5, Workers: 1}, nil)
	pooled := NewAnalyzer(Config{MinConfidence: 0.5, MinOccurrences: 5, Workers: 4}, nil)

	first, err := serial.Analyze(context.Background(), events, nil)
	require.NoError(t, err)
	second, err := pooled.Analyze(context.Background(), events, nil)
	require.NoError(t, err)

	require.Len(t, first, 6)
	assert.Equal(t, first, second)
}
