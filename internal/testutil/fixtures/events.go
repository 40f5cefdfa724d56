// Package fixtures builds test domain objects.
package fixtures

import (
	"testing"
	"time"

	"github.com/autopilot-home/pattern-engine/internal/domain/event"
)

// EventBuilder builds test state-change events.
type EventBuilder struct {
	t          *testing.T
	entityID   string
	newState   string
	prevState  string
	at         time.Time
	concurrent map[string]string
	anyoneHome bool
	peopleHome int
	sun        string
	quality    float64
}

// NewEventBuilder creates an EventBuilder with defaults: a living room light
// turning on at 07:15 on a Monday.
func NewEventBuilder(t *testing.T) *EventBuilder {
	t.Helper()
	return &EventBuilder{
		t:         t,
		entityID:  "light.living_room",
		newState:  "on",
		prevState: "off",
		at:        time.Date(2026, 3, 2, 7, 15, 0, 0, time.UTC),
		quality:   1.0,
	}
}

// WithEntity sets the entity id.
func (b *EventBuilder) WithEntity(entityID string) *EventBuilder {
	b.entityID = entityID
	return b
}

// WithStates sets the previous and new states.
func (b *EventBuilder) WithStates(prev, next string) *EventBuilder {
	b.prevState = prev
	b.newState = next
	return b
}

// At sets the event time.
func (b *EventBuilder) At(at time.Time) *EventBuilder {
	b.at = at
	return b
}

// WithConcurrentState records another entity's state at the event moment.
func (b *EventBuilder) WithConcurrentState(entityID, state string) *EventBuilder {
	if b.concurrent == nil {
		b.concurrent = make(map[string]string)
	}
	b.concurrent[entityID] = state
	return b
}

// WithPresence sets the presence context.
func (b *EventBuilder) WithPresence(anyoneHome bool, peopleHome int) *EventBuilder {
	b.anyoneHome = anyoneHome
	b.peopleHome = peopleHome
	return b
}

// WithSun sets the sun position.
func (b *EventBuilder) WithSun(position string) *EventBuilder {
	b.sun = position
	return b
}

// WithQuality sets the quality score.
func (b *EventBuilder) WithQuality(score float64) *EventBuilder {
	b.quality = score
	return b
}

// Build creates the event with temporal fields derived from the event time.
func (b *EventBuilder) Build() event.Event {
	wd := b.at.Weekday()
	return event.Event{
		EntityID:         b.entityID,
		PreviousState:    b.prevState,
		NewState:         b.newState,
		Timestamp:        float64(b.at.UnixNano()) / 1e9,
		Hour:             b.at.Hour(),
		Minute:           b.at.Minute(),
		DayOfWeek:        int(wd),
		IsWeekend:        wd == time.Saturday || wd == time.Sunday,
		TimeBucket:       event.BucketForHour(b.at.Hour()),
		ConcurrentStates: b.concurrent,
		AnyoneHome:       b.anyoneHome,
		PeopleHome:       b.peopleHome,
		SunPosition:      b.sun,
		QualityScore:     b.quality,
	}
}

// BuildSeries creates n copies of the event spaced by interval, useful for
// recurring-behavior tests.
func (b *EventBuilder) BuildSeries(n int, interval time.Duration) []event.Event {
	events := make([]event.Event, 0, n)
	at := b.at
	for i := 0; i < n; i++ {
		b.at = at.Add(time.Duration(i) * interval)
		events = append(events, b.Build())
	}
	b.at = at
	return events
}
