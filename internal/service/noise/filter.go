// Package noise filters unreliable or uninformative state changes before any
// analyzer runs. It detects flapping entities, scores event quality, and
// drops entities with too little activity to support statistics.
package noise

import (
	"log/slog"
	"math"
	"sort"

	"github.com/autopilot-home/pattern-engine/internal/domain/event"
)

// Exclusion reasons reported in Result.Excluded
const (
	ReasonLowActivity = "low_activity"
	ReasonSentinel    = "unavailable_transition"
	ReasonInvalid     = "invalid_record"
)

// Quality multipliers. They compose multiplicatively and independently.
const (
	flapPenalty        = 0.3
	stuckSensorPenalty = 0.9
	rapidChangePenalty = 0.7
	rapidChangeSeconds = 10.0
	stuckSensorStates  = 2
)

// Config holds the filter thresholds.
type Config struct {
	FlapThreshold      int     // state changes within FlapWindow that mark a flap
	FlapWindow         float64 // seconds
	MinEventsPerEntity int
	SentinelStates     []string // states always dropped, e.g. unavailable/unknown
	ExcludeSentinels   bool
}

// DefaultConfig returns the platform defaults.
func DefaultConfig() Config {
	return Config{
		FlapThreshold:      5,
		FlapWindow:         60,
		MinEventsPerEntity: 5,
		SentinelStates:     []string{"unavailable", "unknown"},
		ExcludeSentinels:   true,
	}
}

// Filter applies all noise filters to an event collection.
type Filter struct {
	cfg       Config
	sentinels map[string]struct{}
	logger    *slog.Logger
}

// NewFilter creates a filter with the given thresholds.
func NewFilter(cfg Config, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	sentinels := make(map[string]struct{}, len(cfg.SentinelStates))
	for _, s := range cfg.SentinelStates {
		sentinels[s] = struct{}{}
	}
	return &Filter{cfg: cfg, sentinels: sentinels, logger: logger}
}

// Result is the filtered event set plus the per-entity aggregates the
// analyzers receive as a read-only snapshot.
type Result struct {
	Events   []event.Event
	Stats    map[string]*event.EntityStats
	Excluded map[string]int
}

// Filter scores and filters events. Input order does not matter; output is
// deterministic time order. The input slice is never mutated.
func (f *Filter) Filter(events []event.Event) *Result {
	res := &Result{
		Stats:    make(map[string]*event.EntityStats),
		Excluded: make(map[string]int),
	}

	valid := make([]event.Event, 0, len(events))
	for _, e := range events {
		if err := e.Validate(); err != nil {
			res.Excluded[ReasonInvalid]++
			f.logger.Warn("rejecting malformed event",
				"entity_id", e.EntityID, "error", err)
			continue
		}
		valid = append(valid, e)
	}
	event.SortByTime(valid)

	byEntity := event.GroupByEntity(valid)
	for entityID, entityEvents := range byEntity {
		res.Stats[entityID] = f.entityStats(entityEvents)
	}

	filtered := make([]event.Event, 0, len(valid))
	for _, e := range valid {
		stats := res.Stats[e.EntityID]

		if stats.EventCount < f.cfg.MinEventsPerEntity {
			res.Excluded[ReasonLowActivity]++
			continue
		}

		if f.cfg.ExcludeSentinels && f.isSentinelTransition(e) {
			res.Excluded[ReasonSentinel]++
			continue
		}

		e.DuringFlap = stats.InFlapPeriod(e.Timestamp)
		e.QualityScore = f.qualityScore(e, stats)
		filtered = append(filtered, e)
	}

	f.logger.Info("noise filter complete",
		"input_events", len(events),
		"output_events", len(filtered),
		"entities", len(res.Stats))
	for reason, count := range res.Excluded {
		f.logger.Info("excluded events", "reason", reason, "count", count)
	}

	res.Events = filtered
	return res
}

func (f *Filter) isSentinelTransition(e event.Event) bool {
	if _, ok := f.sentinels[e.PreviousState]; ok {
		return true
	}
	_, ok := f.sentinels[e.NewState]
	return ok
}

func (f *Filter) entityStats(entityEvents []event.Event) *event.EntityStats {
	states := make(map[string]struct{})
	for _, e := range entityEvents {
		states[e.NewState] = struct{}{}
	}
	return &event.EntityStats{
		EventCount:   len(entityEvents),
		UniqueStates: len(states),
		FlapPeriods:  f.detectFlapping(entityEvents),
	}
}

// detectFlapping finds time periods where an entity changed state at least
// FlapThreshold times within FlapWindow seconds. Single left-to-right pass
// with an advancing window start; overlapping or near-adjacent spans merge
// into one period.
func (f *Filter) detectFlapping(entityEvents []event.Event) []event.FlapPeriod {
	if len(entityEvents) < f.cfg.FlapThreshold {
		return nil
	}

	sorted := make([]event.Event, len(entityEvents))
	copy(sorted, entityEvents)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	var periods []event.FlapPeriod
	windowStart := 0

	for i, e := range sorted {
		ts := e.Timestamp

		for windowStart < i && ts-sorted[windowStart].Timestamp > f.cfg.FlapWindow {
			windowStart++
		}

		if i-windowStart+1 >= f.cfg.FlapThreshold {
			start := sorted[windowStart].Timestamp
			if len(periods) > 0 && periods[len(periods)-1].End >= start-f.cfg.FlapWindow {
				periods[len(periods)-1].End = ts
			} else {
				periods = append(periods, event.FlapPeriod{Start: start, End: ts})
			}
		}
	}

	return periods
}

// qualityScore starts at 1.0 and applies every penalty whose condition
// holds. Rounded to two decimals.
func (f *Filter) qualityScore(e event.Event, stats *event.EntityStats) float64 {
	score := 1.0

	if e.DuringFlap {
		score *= flapPenalty
	}
	if stats.UniqueStates <= stuckSensorStates {
		score *= stuckSensorPenalty
	}
	if e.SecondsSinceLastChange != nil && *e.SecondsSinceLastChange < rapidChangeSeconds {
		score *= rapidChangePenalty
	}

	return math.Round(score*100) / 100
}
