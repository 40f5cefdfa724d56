// Package event defines the canonical enriched state-change record consumed
// by every analyzer, plus the per-entity aggregates derived from it.
package event

import (
	"sort"
	"strings"
	"time"

	"github.com/autopilot-home/pattern-engine/internal/domain/errors"
)

// TimeBucket is a coarse time-of-day label derived solely from the hour.
type TimeBucket string

const (
	BucketEarlyMorning TimeBucket = "early_morning"
	BucketMorning      TimeBucket = "morning"
	BucketMidday       TimeBucket = "midday"
	BucketAfternoon    TimeBucket = "afternoon"
	BucketEvening      TimeBucket = "evening"
	BucketNight        TimeBucket = "night"
	BucketLateNight    TimeBucket = "late_night"
)

// BucketForHour maps an hour of day to its time bucket.
func BucketForHour(hour int) TimeBucket {
	switch {
	case hour >= 5 && hour <= 8:
		return BucketEarlyMorning
	case hour >= 9 && hour <= 11:
		return BucketMorning
	case hour >= 12 && hour <= 14:
		return BucketMidday
	case hour >= 15 && hour <= 17:
		return BucketAfternoon
	case hour >= 18 && hour <= 21:
		return BucketEvening
	case hour >= 22:
		return BucketNight
	default:
		return BucketLateNight
	}
}

// ConcurrentChange is another entity's state change observed within the
// concurrent window of an event, with a signed offset from the event.
type ConcurrentChange struct {
	EntityID      string  `json:"entity_id"`
	NewState      string  `json:"new_state"`
	OffsetSeconds float64 `json:"offset_seconds"`
}

// Event is one observed state transition, enriched with temporal and
// environmental context. Events are immutable once quality-scored; analyzers
// only derive aggregates from them.
type Event struct {
	EntityID      string  `json:"entity_id"`
	PreviousState string  `json:"old_state,omitempty"`
	NewState      string  `json:"new_state"`
	Timestamp     float64 `json:"timestamp"`

	// Derived temporal fields
	Hour       int        `json:"hour"`
	Minute     int        `json:"minute"`
	DayOfWeek  int        `json:"day_of_week"`
	IsWeekend  bool       `json:"is_weekend"`
	TimeBucket TimeBucket `json:"time_bucket"`

	SecondsSinceLastChange *float64 `json:"seconds_since_last_change,omitempty"`

	// Environmental context at the moment of the transition
	ConcurrentStates  map[string]string  `json:"concurrent_states,omitempty"`
	ConcurrentChanges []ConcurrentChange `json:"concurrent_changes,omitempty"`
	AnyoneHome        bool               `json:"anyone_home"`
	PeopleHome        int                `json:"people_home"`
	SunPosition       string             `json:"sun_position,omitempty"`

	// Assigned by the quality filter
	QualityScore float64 `json:"quality_score"`
	DuringFlap   bool    `json:"during_flap"`
}

// Time converts the float-seconds timestamp to a time.Time in loc.
func (e Event) Time(loc *time.Location) time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).In(loc)
}

// Domain returns the platform domain prefix of the entity id
// ("light" for "light.kitchen").
func (e Event) Domain() string {
	if i := strings.IndexByte(e.EntityID, '.'); i > 0 {
		return e.EntityID[:i]
	}
	return ""
}

// Validate rejects records that cannot participate in analysis.
func (e Event) Validate() error {
	if e.EntityID == "" {
		return errors.ErrMissingEntityID
	}
	if e.Timestamp <= 0 {
		return errors.ErrBadTimestamp
	}
	return nil
}

// SortByTime orders events by timestamp with a deterministic tiebreak so
// repeated runs over the same collection produce identical output.
func SortByTime(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		if events[i].EntityID != events[j].EntityID {
			return events[i].EntityID < events[j].EntityID
		}
		return events[i].NewState < events[j].NewState
	})
}

// GroupByEntity buckets events per entity, preserving order within each
// entity.
func GroupByEntity(events []Event) map[string][]Event {
	byEntity := make(map[string][]Event)
	for _, e := range events {
		byEntity[e.EntityID] = append(byEntity[e.EntityID], e)
	}
	return byEntity
}

// FlapPeriod is a closed interval during which one entity's state-change
// density exceeded the flap threshold.
type FlapPeriod struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Contains reports whether ts falls inside the period.
func (p FlapPeriod) Contains(ts float64) bool {
	return ts >= p.Start && ts <= p.End
}

// EntityStats is the per-entity aggregate computed once per run and passed to
// analyzers as a read-only snapshot.
type EntityStats struct {
	EventCount   int          `json:"event_count"`
	UniqueStates int          `json:"unique_states"`
	FlapPeriods  []FlapPeriod `json:"flap_periods"`
}

// InFlapPeriod reports whether ts falls inside any of the entity's flap
// periods.
func (s *EntityStats) InFlapPeriod(ts float64) bool {
	for _, p := range s.FlapPeriods {
		if p.Contains(ts) {
			return true
		}
	}
	return false
}
