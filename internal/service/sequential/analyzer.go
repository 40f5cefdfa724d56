// Package sequential detects trigger-then-action chains: one entity changing
// state reliably followed by another within a bounded window.
package sequential

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/autopilot-home/pattern-engine/internal/domain/event"
	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
	"github.com/autopilot-home/pattern-engine/internal/domain/stats"
)

// Config holds the analyzer thresholds.
type Config struct {
	MinConfidence    float64
	MinOccurrences   int
	MaxWindowSeconds float64
	ExcludeEntities  []string
}

// Analyzer finds trigger-then-action patterns.
type Analyzer struct {
	minConfidence  float64
	minOccurrences int
	maxWindow      float64
	excluded       map[string]struct{}
	logger         *slog.Logger
}

// NewAnalyzer creates a sequential analyzer.
func NewAnalyzer(cfg Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxWindowSeconds <= 0 {
		cfg.MaxWindowSeconds = 300
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludeEntities))
	for _, id := range cfg.ExcludeEntities {
		excluded[id] = struct{}{}
	}
	return &Analyzer{
		minConfidence:  cfg.MinConfidence,
		minOccurrences: cfg.MinOccurrences,
		maxWindow:      cfg.MaxWindowSeconds,
		excluded:       excluded,
		logger:         logger,
	}
}

// Kind identifies the analysis this analyzer performs.
func (a *Analyzer) Kind() pattern.Kind { return pattern.KindSequential }

type triggerKey struct {
	entityID string
	state    string
}

type actionKey struct {
	entityID string
	state    string
}

// Analyze scans each qualifying trigger group for the first follow-up change
// of every other entity, scores the resulting pairs, and collapses symmetric
// duplicates keeping the stronger direction.
func (a *Analyzer) Analyze(ctx context.Context, events []event.Event, _ map[string]*event.EntityStats) ([]pattern.Pattern, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	event.SortByTime(sorted)

	byEntity := event.GroupByEntity(sorted)
	entityIDs := make([]string, 0, len(byEntity))
	for id := range byEntity {
		if _, skip := a.excluded[id]; skip {
			continue
		}
		entityIDs = append(entityIDs, id)
	}
	sort.Strings(entityIDs)

	triggers := make(map[triggerKey][]event.Event)
	for _, e := range sorted {
		if _, skip := a.excluded[e.EntityID]; skip {
			continue
		}
		k := triggerKey{entityID: e.EntityID, state: e.NewState}
		triggers[k] = append(triggers[k], e)
	}

	triggerKeys := make([]triggerKey, 0, len(triggers))
	for k := range triggers {
		triggerKeys = append(triggerKeys, k)
	}
	sort.Slice(triggerKeys, func(i, j int) bool {
		if triggerKeys[i].entityID != triggerKeys[j].entityID {
			return triggerKeys[i].entityID < triggerKeys[j].entityID
		}
		return triggerKeys[i].state < triggerKeys[j].state
	})

	var patterns []pattern.Pattern
	for _, tk := range triggerKeys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		group := triggers[tk]
		if len(group) < a.minOccurrences {
			continue
		}
		patterns = append(patterns, a.scanGroup(tk, group, byEntity, entityIDs)...)
	}

	deduped := dedupSymmetric(patterns)
	a.logger.Debug("sequential analysis complete",
		slog.Int("trigger_groups", len(triggers)),
		slog.Int("patterns", len(deduped)),
	)
	return deduped, nil
}

// scanGroup finds, for every trigger occurrence, the first state change of
// each other entity inside the window, then scores each (entity, state)
// follow-up against the trigger count.
func (a *Analyzer) scanGroup(tk triggerKey, group []event.Event, byEntity map[string][]event.Event, entityIDs []string) []pattern.Pattern {
	delays := make(map[actionKey][]float64)

	for _, trig := range group {
		for _, id := range entityIDs {
			if id == tk.entityID {
				continue
			}
			stream := byEntity[id]
			// First change of this entity strictly after the trigger
			i := sort.Search(len(stream), func(i int) bool {
				return stream[i].Timestamp > trig.Timestamp
			})
			if i == len(stream) {
				continue
			}
			d := stream[i].Timestamp - trig.Timestamp
			if d > a.maxWindow {
				continue
			}
			ak := actionKey{entityID: id, state: stream[i].NewState}
			delays[ak] = append(delays[ak], d)
		}
	}

	actionKeys := make([]actionKey, 0, len(delays))
	for k := range delays {
		actionKeys = append(actionKeys, k)
	}
	sort.Slice(actionKeys, func(i, j int) bool {
		if actionKeys[i].entityID != actionKeys[j].entityID {
			return actionKeys[i].entityID < actionKeys[j].entityID
		}
		return actionKeys[i].state < actionKeys[j].state
	})

	trials := len(group)
	var out []pattern.Pattern
	for _, ak := range actionKeys {
		ds := delays[ak]
		successes := len(ds)
		if successes < a.minOccurrences {
			continue
		}
		conf := stats.Confidence(successes, trials)
		if conf < a.minConfidence {
			continue
		}
		out = append(out, a.buildPattern(tk, ak, ds, conf, successes, trials))
	}
	return out
}

func (a *Analyzer) buildPattern(tk triggerKey, ak actionKey, delays []float64, conf float64, successes, trials int) pattern.Pattern {
	avg := round1(mean(delays))
	p := pattern.Pattern{
		Kind:        pattern.KindSequential,
		Confidence:  conf,
		Occurrences: successes,
		Trials:      trials,
		Sequential: &pattern.Sequential{
			TriggerEntity:   tk.entityID,
			TriggerState:    tk.state,
			ActionEntity:    ak.entityID,
			ActionState:     ak.state,
			WindowSeconds:   windowFor(delays),
			AvgDelaySeconds: avg,
		},
	}
	p.Description = fmt.Sprintf("%s turns '%s' within %s after %s becomes '%s' (avg %s)",
		pattern.FriendlyName(ak.entityID), ak.state,
		pattern.FormatDelay(float64(p.Sequential.WindowSeconds)),
		pattern.FriendlyName(tk.entityID), tk.state,
		pattern.FormatDelay(avg),
	)
	p.ID = pattern.DeterministicID(p.Signature())
	return p
}

// windowFor picks the automation trigger window from the observed delays:
// the 90th percentile, so one slow outlier does not stretch the window to
// the full scan limit.
func windowFor(delays []float64) int {
	ds := make([]float64, len(delays))
	copy(ds, delays)
	sort.Float64s(ds)
	idx := int(math.Ceil(0.9*float64(len(ds)))) - 1
	if idx < 0 {
		idx = 0
	}
	return int(math.Ceil(ds[idx]))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// dedupSymmetric collapses A→B and B→A onto the stronger direction. With
// equal confidence the higher occurrence count wins, then the smaller
// signature, so output order never depends on map iteration.
func dedupSymmetric(patterns []pattern.Pattern) []pattern.Pattern {
	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Signature() < patterns[j].Signature()
	})
	best := make(map[string]int, len(patterns))
	for i, p := range patterns {
		key := p.DedupKey()
		j, seen := best[key]
		if !seen || stronger(p, patterns[j]) {
			best[key] = i
		}
	}
	keep := make([]bool, len(patterns))
	for _, i := range best {
		keep[i] = true
	}
	out := make([]pattern.Pattern, 0, len(best))
	for i, p := range patterns {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func stronger(p, q pattern.Pattern) bool {
	if p.Confidence != q.Confidence {
		return p.Confidence > q.Confidence
	}
	if p.Occurrences != q.Occurrences {
		return p.Occurrences > q.Occurrences
	}
	return p.Signature() < q.Signature()
}
