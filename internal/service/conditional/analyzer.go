// Package conditional detects context correlations: an entity's state change
// co-occurring with a time-of-day, sun, presence, or other-entity condition
// far more often than chance. The score is P(condition | action); whether
// the condition drives the action is left to human review.
package conditional

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/autopilot-home/pattern-engine/internal/domain/event"
	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
	"github.com/autopilot-home/pattern-engine/internal/domain/stats"
)

const (
	eveningHour   = 18
	morningHour   = 9
	multiPresence = 2
	sunBelow      = "below_horizon"
	personPrefix  = "person."
)

// Config holds the analyzer thresholds.
type Config struct {
	MinConfidence   float64
	MinOccurrences  int
	ExcludeEntities []string
	Workers         int
}

// Analyzer finds condition-correlated patterns.
type Analyzer struct {
	minConfidence  float64
	minOccurrences int
	excluded       map[string]struct{}
	workers        int
	logger         *slog.Logger
}

// NewAnalyzer creates a conditional analyzer.
func NewAnalyzer(cfg Config, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludeEntities))
	for _, id := range cfg.ExcludeEntities {
		excluded[id] = struct{}{}
	}
	return &Analyzer{
		minConfidence:  cfg.MinConfidence,
		minOccurrences: cfg.MinOccurrences,
		excluded:       excluded,
		workers:        workers,
		logger:         logger,
	}
}

// Kind identifies the analysis this analyzer performs.
func (a *Analyzer) Kind() pattern.Kind { return pattern.KindConditional }

type actionKey struct {
	entityID string
	state    string
}

// Analyze shards action entities across a worker pool, scores every
// candidate condition per action group in a single pass over the group, and
// merges shard results into a deterministic order.
func (a *Analyzer) Analyze(ctx context.Context, events []event.Event, _ map[string]*event.EntityStats) ([]pattern.Pattern, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups := make(map[actionKey][]event.Event)
	for _, e := range events {
		if _, skip := a.excluded[e.EntityID]; skip {
			continue
		}
		k := actionKey{entityID: e.EntityID, state: e.NewState}
		groups[k] = append(groups[k], e)
	}

	// Shard whole entities so every group of one entity lands on the same
	// worker, assigned round-robin over the sorted entity list.
	byEntity := make(map[string][]actionKey)
	for k := range groups {
		byEntity[k.entityID] = append(byEntity[k.entityID], k)
	}
	entityIDs := make([]string, 0, len(byEntity))
	for id := range byEntity {
		entityIDs = append(entityIDs, id)
	}
	sort.Strings(entityIDs)

	workers := a.workers
	if workers > len(entityIDs) {
		workers = len(entityIDs)
	}
	if workers < 1 {
		workers = 1
	}

	shards := make([][]string, workers)
	for i, id := range entityIDs {
		shards[i%workers] = append(shards[i%workers], id)
	}

	results := make([][]pattern.Pattern, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for _, id := range shards[w] {
				if ctx.Err() != nil {
					return
				}
				keys := byEntity[id]
				sort.Slice(keys, func(i, j int) bool { return keys[i].state < keys[j].state })
				for _, k := range keys {
					results[w] = append(results[w], a.scoreGroup(k, groups[k])...)
				}
			}
		}(w)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var patterns []pattern.Pattern
	for _, r := range results {
		patterns = append(patterns, r...)
	}
	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Signature() < patterns[j].Signature()
	})

	a.logger.Debug("conditional analysis complete",
		slog.Int("action_groups", len(groups)),
		slog.Int("patterns", len(patterns)),
	)
	return patterns, nil
}

// scoreGroup tallies, in one pass over the group, how many occurrences of
// the action happened under each candidate condition.
func (a *Analyzer) scoreGroup(k actionKey, group []event.Event) []pattern.Pattern {
	trials := len(group)
	if trials < a.minOccurrences {
		return nil
	}

	counts := make(map[string]int)
	conditions := make(map[string]pattern.Condition)
	tally := func(c pattern.Condition) {
		sig := pattern.Pattern{Kind: pattern.KindConditional, Conditional: &pattern.Conditional{
			ActionEntity: k.entityID, ActionState: k.state, Condition: c,
		}}.Signature()
		counts[sig]++
		conditions[sig] = c
	}

	for _, e := range group {
		if e.Hour >= eveningHour {
			tally(pattern.Condition{Type: pattern.ConditionTime, Operator: ">=", Hour: eveningHour})
		}
		if e.Hour < morningHour {
			tally(pattern.Condition{Type: pattern.ConditionTime, Operator: "<", Hour: morningHour})
		}
		if e.SunPosition == sunBelow {
			tally(pattern.Condition{Type: pattern.ConditionSun, SunPosition: sunBelow})
		}
		if e.AnyoneHome {
			tally(pattern.Condition{Type: pattern.ConditionPresence, Presence: pattern.PresenceAnyoneHome})
		}
		if e.PeopleHome >= multiPresence {
			tally(pattern.Condition{Type: pattern.ConditionPresence, Presence: pattern.PresenceEveryoneHome})
		}
		for otherID, st := range e.ConcurrentStates {
			if otherID == k.entityID || strings.HasPrefix(otherID, personPrefix) {
				continue
			}
			if st == "" || st == "unknown" || st == "unavailable" {
				continue
			}
			tally(pattern.Condition{Type: pattern.ConditionState, EntityID: otherID, State: st})
		}
	}

	sigs := make([]string, 0, len(counts))
	for sig := range counts {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)

	var out []pattern.Pattern
	for _, sig := range sigs {
		successes := counts[sig]
		if successes < a.minOccurrences {
			continue
		}
		conf := stats.Confidence(successes, trials)
		if conf < a.minConfidence {
			continue
		}
		out = append(out, a.buildPattern(k, conditions[sig], conf, successes, trials))
	}
	return out
}

func (a *Analyzer) buildPattern(k actionKey, c pattern.Condition, conf float64, successes, trials int) pattern.Pattern {
	p := pattern.Pattern{
		Kind:        pattern.KindConditional,
		Confidence:  conf,
		Occurrences: successes,
		Trials:      trials,
		Conditional: &pattern.Conditional{
			ActionEntity: k.entityID,
			ActionState:  k.state,
			Condition:    c,
		},
	}
	p.Description = fmt.Sprintf("%s turns '%s' when %s",
		pattern.FriendlyName(k.entityID), k.state, c.Describe())
	p.ID = pattern.DeterministicID(p.Signature())
	return p
}
