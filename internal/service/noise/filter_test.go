package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopilot-home/pattern-engine/internal/domain/event"
)

func burst(entity string, start float64, count int, spacing float64) []event.Event {
	events := make([]event.Event, count)
	for i := 0; i < count; i++ {
		state := "on"
		if i%2 == 1 {
			state = "off"
		}
		prev := "off"
		if i%2 == 1 {
			prev = "on"
		}
		events[i] = event.Event{
			EntityID:      entity,
			PreviousState: prev,
			NewState:      state,
			Timestamp:     start + float64(i)*spacing,
		}
	}
	return events
}

func TestDetectFlapping_ExactThreshold(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	// Exactly flap_threshold events inside flap_window
	events := burst("switch.pump", 1000, 5, 10)
	periods := f.detectFlapping(events)

	require.Len(t, periods, 1)
	assert.Equal(t, 1000.0, periods[0].Start)
	assert.Equal(t, 1040.0, periods[0].End)
}

func TestDetectFlapping_BelowThreshold(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	events := burst("switch.pump", 1000, 4, 10)
	assert.Empty(t, f.detectFlapping(events))
}

func TestDetectFlapping_SpreadOutEventsDoNotFlap(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	// 10 events, 30s apart: never 5 within 60s
	events := burst("switch.pump", 1000, 10, 30)
	assert.Empty(t, f.detectFlapping(events))
}

func TestDetectFlapping_AdjacentSpansMerge(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	// Two bursts whose gap is within flap_window merge into one period
	events := append(burst("switch.pump", 1000, 5, 5), burst("switch.pump", 1070, 5, 5)...)
	periods := f.detectFlapping(events)

	require.Len(t, periods, 1)
	assert.Equal(t, 1000.0, periods[0].Start)
	assert.Equal(t, 1090.0, periods[0].End)
}

func TestDetectFlapping_DistantSpansStayApart(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	events := append(burst("switch.pump", 1000, 5, 5), burst("switch.pump", 5000, 5, 5)...)
	periods := f.detectFlapping(events)

	require.Len(t, periods, 2)
}

func TestQualityScore_Composition(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	rapid := 5.0
	e := event.Event{
		EntityID:               "sensor.motion",
		NewState:               "on",
		Timestamp:              1000,
		DuringFlap:             true,
		SecondsSinceLastChange: &rapid,
	}
	stats := &event.EntityStats{UniqueStates: 3}

	// 1.0 * 0.3 (flap) * 0.7 (rapid) = 0.21
	assert.Equal(t, 0.21, f.qualityScore(e, stats))
}

func TestQualityScore_StuckSensor(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	e := event.Event{EntityID: "sensor.stuck", NewState: "on", Timestamp: 1000}
	assert.Equal(t, 0.9, f.qualityScore(e, &event.EntityStats{UniqueStates: 2}))
	assert.Equal(t, 1.0, f.qualityScore(e, &event.EntityStats{UniqueStates: 3}))
}

func TestFilter_DropsSentinelTransitions(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	events := burst("light.hall", 1000, 6, 120)
	events[2].PreviousState = "unavailable"
	events[3].NewState = "unknown"

	res := f.Filter(events)

	assert.Len(t, res.Events, 4)
	assert.Equal(t, 2, res.Excluded[ReasonSentinel])
}

func TestFilter_DropsLowActivityEntities(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	events := append(burst("light.busy", 1000, 6, 120), burst("light.quiet", 1000, 3, 120)...)
	res := f.Filter(events)

	assert.Len(t, res.Events, 6)
	assert.Equal(t, 3, res.Excluded[ReasonLowActivity])
	for _, e := range res.Events {
		assert.Equal(t, "light.busy", e.EntityID)
	}
}

func TestFilter_RejectsMalformedRecords(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	events := burst("light.hall", 1000, 6, 120)
	events = append(events, event.Event{NewState: "on", Timestamp: 2000})

	res := f.Filter(events)
	assert.Equal(t, 1, res.Excluded[ReasonInvalid])
	assert.Len(t, res.Events, 6)
}

func TestFilter_MarksFlapEvents(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	flappy := burst("switch.pump", 1000, 8, 5)
	steady := burst("light.hall", 1000, 6, 600)
	res := f.Filter(append(flappy, steady...))

	for _, e := range res.Events {
		switch e.EntityID {
		case "switch.pump":
			assert.True(t, e.DuringFlap, "ts=%v", e.Timestamp)
			assert.InDelta(t, 0.3, e.QualityScore, 0.25) // flap penalty applied
		case "light.hall":
			assert.False(t, e.DuringFlap)
		}
	}
	require.Contains(t, res.Stats, "switch.pump")
	assert.NotEmpty(t, res.Stats["switch.pump"].FlapPeriods)
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	events := burst("switch.pump", 1000, 8, 5)
	f.Filter(events)

	for _, e := range events {
		assert.Zero(t, e.QualityScore)
		assert.False(t, e.DuringFlap)
	}
}

func TestEntityReports(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil)

	flappy := burst("switch.pump", 1000, 8, 5)
	steady := burst("light.hall", 1000, 8, 600)
	quiet := burst("sensor.rare", 1000, 2, 600)

	reports := f.EntityReports(append(append(flappy, steady...), quiet...))

	require.Contains(t, reports, "switch.pump")
	assert.Equal(t, RecommendExcludeHighFlap, reports["switch.pump"].Recommendation)
	assert.Equal(t, RecommendInclude, reports["light.hall"].Recommendation)
	assert.Equal(t, RecommendExclude, reports["sensor.rare"].Recommendation)
}
