package event

import (
	"strings"
	"time"
)

const (
	sunEntity     = "sun.sun"
	personPrefix  = "person."
	stateHome     = "home"
	sunBelowState = "below_horizon"
)

// ContextBuilder enriches raw state-change records with derived temporal
// fields, per-entity change intervals, and concurrent state/change context.
// Inputs that already arrive enriched (the extraction layer's JSONL export)
// do not need it; recorder-database rows do.
type ContextBuilder struct {
	window float64 // symmetric concurrent-change window, seconds
	loc    *time.Location
}

// NewContextBuilder creates a builder with the given symmetric window in
// seconds and timezone for calendar math.
func NewContextBuilder(windowSeconds int, loc *time.Location) *ContextBuilder {
	if loc == nil {
		loc = time.UTC
	}
	return &ContextBuilder{window: float64(windowSeconds), loc: loc}
}

// Build returns a new, enriched copy of events. The input must hold one
// record per transition with entity id, states, and timestamp populated;
// everything else is derived here. Events are returned in deterministic
// time order.
func (b *ContextBuilder) Build(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	SortByTime(out)

	lastChange := make(map[string]float64, 64)
	lastState := make(map[string]string, 64)

	for i := range out {
		e := &out[i]
		b.deriveTemporal(e)

		if prev, ok := lastChange[e.EntityID]; ok {
			delta := e.Timestamp - prev
			e.SecondsSinceLastChange = &delta
		}
		lastChange[e.EntityID] = e.Timestamp

		// Snapshot of every other entity's last known state
		snapshot := make(map[string]string, len(lastState))
		for id, st := range lastState {
			if id != e.EntityID {
				snapshot[id] = st
			}
		}
		if len(snapshot) > 0 {
			e.ConcurrentStates = snapshot
		}
		lastState[e.EntityID] = e.NewState

		b.derivePresence(e)
	}

	b.attachConcurrentChanges(out)
	return out
}

func (b *ContextBuilder) deriveTemporal(e *Event) {
	t := e.Time(b.loc)
	e.Hour = t.Hour()
	e.Minute = t.Minute()
	e.DayOfWeek = int(t.Weekday())
	e.IsWeekend = t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
	e.TimeBucket = BucketForHour(e.Hour)
}

func (b *ContextBuilder) derivePresence(e *Event) {
	people := 0
	for id, st := range e.ConcurrentStates {
		if strings.HasPrefix(id, personPrefix) && st == stateHome {
			people++
		}
	}
	// The event itself may be a person arriving
	if strings.HasPrefix(e.EntityID, personPrefix) && e.NewState == stateHome {
		people++
	}
	e.PeopleHome = people
	e.AnyoneHome = people > 0

	if st, ok := e.ConcurrentStates[sunEntity]; ok {
		e.SunPosition = st
	} else if e.EntityID == sunEntity {
		e.SunPosition = e.NewState
	}
}

// attachConcurrentChanges records, for each event, every other entity's
// transition within the symmetric window. Two pointers over the sorted slice
// keep this linear in the window density.
func (b *ContextBuilder) attachConcurrentChanges(events []Event) {
	lo := 0
	for i := range events {
		for lo < len(events) && events[i].Timestamp-events[lo].Timestamp > b.window {
			lo++
		}
		var changes []ConcurrentChange
		for j := lo; j < len(events); j++ {
			if events[j].Timestamp-events[i].Timestamp > b.window {
				break
			}
			if j == i || events[j].EntityID == events[i].EntityID {
				continue
			}
			changes = append(changes, ConcurrentChange{
				EntityID:      events[j].EntityID,
				NewState:      events[j].NewState,
				OffsetSeconds: events[j].Timestamp - events[i].Timestamp,
			})
		}
		events[i].ConcurrentChanges = changes
	}
}
