// Package temporal detects entities settling into a state at a consistent
// clock time, scoped to the narrowest set of days the data supports.
package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/autopilot-home/pattern-engine/internal/domain/event"
	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
	"github.com/autopilot-home/pattern-engine/internal/domain/stats"
)

// Config holds the analyzer thresholds.
type Config struct {
	MinConfidence   float64
	MinOccurrences  int
	ExcludeEntities []string
	Location        *time.Location
}

// Analyzer finds time-of-day patterns.
type Analyzer struct {
	minConfidence  float64
	minOccurrences int
	excluded       map[string]struct{}
	loc            *time.Location
	logger         *slog.Logger
}

// NewAnalyzer creates a temporal analyzer.
func NewAnalyzer(cfg Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludeEntities))
	for _, id := range cfg.ExcludeEntities {
		excluded[id] = struct{}{}
	}
	return &Analyzer{
		minConfidence:  cfg.MinConfidence,
		minOccurrences: cfg.MinOccurrences,
		excluded:       excluded,
		loc:            loc,
		logger:         logger,
	}
}

// Kind identifies the analysis this analyzer performs.
func (a *Analyzer) Kind() pattern.Kind { return pattern.KindTemporal }

type groupKey struct {
	entityID string
	state    string
	hour     int
}

// dayCensus counts, per universe, how many calendar days of that type fall
// inside the collection span. These are the trial denominators.
type dayCensus struct {
	total    int
	weekdays int
	weekends int
	perDow   [7]int
}

// Analyze groups events by (entity, state, hour) and retains, per group, the
// most specific day scope that clears the confidence and occurrence
// thresholds.
func (a *Analyzer) Analyze(ctx context.Context, events []event.Event, _ map[string]*event.EntityStats) ([]pattern.Pattern, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	census := a.countDays(events)
	groups := make(map[groupKey][]event.Event)
	for _, e := range events {
		if _, skip := a.excluded[e.EntityID]; skip {
			continue
		}
		k := groupKey{entityID: e.EntityID, state: e.NewState, hour: e.Hour}
		groups[k] = append(groups[k], e)
	}

	// Deterministic iteration over groups
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].entityID != keys[j].entityID {
			return keys[i].entityID < keys[j].entityID
		}
		if keys[i].state != keys[j].state {
			return keys[i].state < keys[j].state
		}
		return keys[i].hour < keys[j].hour
	})

	var patterns []pattern.Pattern
	for _, k := range keys {
		group := groups[k]
		if len(group) < a.minOccurrences {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p, ok := a.bestScope(k, group, census); ok {
			patterns = append(patterns, p)
		}
	}

	a.logger.Info("temporal analysis complete",
		"groups", len(groups), "patterns", len(patterns))
	return patterns, nil
}

// countDays walks the collection span one calendar day at a time.
func (a *Analyzer) countDays(events []event.Event) dayCensus {
	minTS, maxTS := events[0].Timestamp, events[0].Timestamp
	for _, e := range events[1:] {
		if e.Timestamp < minTS {
			minTS = e.Timestamp
		}
		if e.Timestamp > maxTS {
			maxTS = e.Timestamp
		}
	}

	start := event.Event{Timestamp: minTS}.Time(a.loc)
	end := event.Event{Timestamp: maxTS}.Time(a.loc)
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, a.loc)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, a.loc)

	var c dayCensus
	for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		c.total++
		c.perDow[int(d.Weekday())]++
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			c.weekends++
		} else {
			c.weekdays++
		}
	}
	return c
}

// scopeCoverage is the share of group events a narrower scope must account
// for before it can be preferred over a broader one. A weekday scope that
// ignores a third of the observations generalizes falsely.
const scopeCoverage = 0.9

// bestScope evaluates the four trial universes from most to least specific
// and returns the first candidate that clears both thresholds and covers
// nearly all of the group's events. The specific-day universe is only
// meaningful when its trial count reaches the occurrence minimum.
func (a *Analyzer) bestScope(k groupKey, group []event.Event, census dayCensus) (pattern.Pattern, bool) {
	var dowCounts [7]int
	weekdayCount, weekendCount := 0, 0
	for _, e := range group {
		dowCounts[e.DayOfWeek%7]++
		if e.IsWeekend {
			weekendCount++
		} else {
			weekdayCount++
		}
	}

	// Dominant day of week; smallest index wins ties for determinism
	bestDow := 0
	for dow := 1; dow < 7; dow++ {
		if dowCounts[dow] > dowCounts[bestDow] {
			bestDow = dow
		}
	}

	type candidate struct {
		scope     pattern.DayScope
		weekday   time.Weekday
		successes int
		trials    int
	}
	candidates := []candidate{
		{pattern.ScopeSpecificDay, time.Weekday(bestDow), dowCounts[bestDow], census.perDow[bestDow]},
		{pattern.ScopeWeekday, 0, weekdayCount, census.weekdays},
		{pattern.ScopeWeekend, 0, weekendCount, census.weekends},
		{pattern.ScopeDaily, 0, len(group), census.total},
	}

	for _, c := range candidates {
		if c.scope == pattern.ScopeSpecificDay && c.trials < a.minOccurrences {
			continue
		}
		if c.successes < a.minOccurrences {
			continue
		}
		if float64(c.successes) < scopeCoverage*float64(len(group)) {
			continue
		}
		conf := stats.Confidence(c.successes, c.trials)
		if conf < a.minConfidence {
			continue
		}
		return a.buildPattern(k, group, c.scope, c.weekday, conf, c.successes, c.trials), true
	}
	return pattern.Pattern{}, false
}

func (a *Analyzer) buildPattern(k groupKey, group []event.Event, scope pattern.DayScope, weekday time.Weekday, conf float64, successes, trials int) pattern.Pattern {
	minMin, maxMin := group[0].Minute, group[0].Minute
	for _, e := range group[1:] {
		if e.Minute < minMin {
			minMin = e.Minute
		}
		if e.Minute > maxMin {
			maxMin = e.Minute
		}
	}

	scopeDesc := string(scope)
	if scope == pattern.ScopeSpecificDay {
		scopeDesc = "every " + weekday.String()
	}
	desc := fmt.Sprintf("%s → '%s' %s at %02d:%02d–%02d:%02d (%d%% confidence, %d×)",
		pattern.FriendlyName(k.entityID), k.state, scopeDesc,
		k.hour, minMin, k.hour, maxMin, int(conf*100), successes)

	p := pattern.Pattern{
		Kind:        pattern.KindTemporal,
		Confidence:  conf,
		Occurrences: successes,
		Trials:      trials,
		Description: desc,
		Temporal: &pattern.Temporal{
			EntityID:    k.entityID,
			TargetState: k.state,
			Hour:        k.hour,
			MinuteMin:   minMin,
			MinuteMax:   maxMin,
			Scope:       scope,
			Weekday:     weekday,
		},
	}
	p.ID = pattern.DeterministicID(p.Signature())
	return p
}
