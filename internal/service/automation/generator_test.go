package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
)

func mkPattern(kind pattern.Kind) pattern.Pattern {
	p := pattern.Pattern{
		Kind:        kind,
		Confidence:  0.93,
		Occurrences: 28,
		Trials:      30,
		Description: "test pattern",
	}
	return p
}

func TestGenerate_TemporalDaily(t *testing.T) {
	g := NewGenerator(Config{}, nil)

	p := mkPattern(pattern.KindTemporal)
	p.Temporal = &pattern.Temporal{
		EntityID: "light.kitchen", TargetState: "on",
		Hour: 7, MinuteMin: 10, MinuteMax: 20, Scope: pattern.ScopeDaily,
	}
	p.ID = pattern.DeterministicID(p.Signature())

	a, ok := g.Generate(p)
	require.True(t, ok)
	require.Len(t, a.Triggers, 1)
	assert.Equal(t, "time", a.Triggers[0].Platform)
	assert.Equal(t, "07:15:00", a.Triggers[0].At)
	assert.Empty(t, a.Conditions)
	require.Len(t, a.Actions, 1)
	assert.Equal(t, "light.turn_on", a.Actions[0].Service)
	assert.Equal(t, "light.kitchen", a.Actions[0].Target.EntityID)
	assert.Equal(t, "single", a.Mode)
	assert.Contains(t, a.Description, "93% confidence")
}

func TestGenerate_TemporalSpecificDayCondition(t *testing.T) {
	g := NewGenerator(Config{}, nil)

	p := mkPattern(pattern.KindTemporal)
	p.Temporal = &pattern.Temporal{
		EntityID: "cover.garage", TargetState: "open",
		Hour: 7, Scope: pattern.ScopeSpecificDay, Weekday: time.Monday,
	}

	a, ok := g.Generate(p)
	require.True(t, ok)
	require.Len(t, a.Conditions, 1)
	assert.Equal(t, "time", a.Conditions[0].Condition)
	assert.Equal(t, []string{"mon"}, a.Conditions[0].Weekday)
	assert.Equal(t, "cover.open_cover", a.Actions[0].Service)
}

func TestGenerate_Sequential(t *testing.T) {
	g := NewGenerator(Config{}, nil)

	p := mkPattern(pattern.KindSequential)
	p.Sequential = &pattern.Sequential{
		TriggerEntity: "binary_sensor.motion_hall", TriggerState: "on",
		ActionEntity: "light.hallway", ActionState: "on",
		WindowSeconds: 15, AvgDelaySeconds: 4.2,
	}

	a, ok := g.Generate(p)
	require.True(t, ok)
	require.Len(t, a.Triggers, 1)
	assert.Equal(t, "state", a.Triggers[0].Platform)
	assert.Equal(t, "binary_sensor.motion_hall", a.Triggers[0].EntityID)
	assert.Equal(t, "on", a.Triggers[0].To)
	assert.Equal(t, "light.turn_on", a.Actions[0].Service)
}

func TestGenerate_ConditionalIsReviewOnly(t *testing.T) {
	g := NewGenerator(Config{}, nil)

	p := mkPattern(pattern.KindConditional)
	p.Conditional = &pattern.Conditional{
		ActionEntity: "light.porch", ActionState: "on",
		Condition: pattern.Condition{Type: pattern.ConditionSun, SunPosition: "below_horizon"},
	}

	_, ok := g.Generate(p)
	assert.False(t, ok)
}

func TestGenerate_DeniedDomains(t *testing.T) {
	g := NewGenerator(Config{}, nil)

	p := mkPattern(pattern.KindTemporal)
	p.Temporal = &pattern.Temporal{
		EntityID: "lock.front_door", TargetState: "locked",
		Hour: 23, Scope: pattern.ScopeDaily,
	}

	_, ok := g.Generate(p)
	assert.False(t, ok)
}

func TestGenerate_UnmappableStateSkipped(t *testing.T) {
	g := NewGenerator(Config{}, nil)

	p := mkPattern(pattern.KindTemporal)
	p.Temporal = &pattern.Temporal{
		EntityID: "sensor.temperature", TargetState: "21.5",
		Hour: 9, Scope: pattern.ScopeDaily,
	}

	_, ok := g.Generate(p)
	assert.False(t, ok)
}

func TestRender_RoundTrips(t *testing.T) {
	g := NewGenerator(Config{}, nil)

	p := mkPattern(pattern.KindTemporal)
	p.Temporal = &pattern.Temporal{
		EntityID: "light.kitchen", TargetState: "on",
		Hour: 7, MinuteMin: 15, MinuteMax: 15, Scope: pattern.ScopeWeekday,
	}
	p.ID = pattern.DeterministicID(p.Signature())

	data, err := Render(g.GenerateAll([]pattern.Pattern{p}))
	require.NoError(t, err)

	var decoded []Automation
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "pattern_"+p.ID.String(), decoded[0].ID)
	assert.Equal(t, []string{"mon", "tue", "wed", "thu", "fri"}, decoded[0].Conditions[0].Weekday)
}
