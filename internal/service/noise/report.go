package noise

import (
	"math"

	"github.com/autopilot-home/pattern-engine/internal/domain/event"
)

// Entity recommendations for manual review
const (
	RecommendExclude            = "exclude_low_activity"
	RecommendExcludeHighFlap    = "exclude_high_flap"
	RecommendIncludeWithCaution = "include_with_caution"
	RecommendInclude            = "include"
)

// EntityReport summarizes one entity's behavior for manual review.
type EntityReport struct {
	TotalEvents       int     `json:"total_events"`
	FlapPeriods       int     `json:"flap_periods"`
	EventsDuringFlaps int     `json:"events_during_flaps"`
	FlapPercentage    float64 `json:"flap_percentage"`
	UniqueStates      int     `json:"unique_states"`
	Recommendation    string  `json:"recommendation"`
}

// EntityReports generates a per-entity quality report from the raw event
// collection.
func (f *Filter) EntityReports(events []event.Event) map[string]EntityReport {
	reports := make(map[string]EntityReport)

	for entityID, entityEvents := range event.GroupByEntity(events) {
		stats := f.entityStats(entityEvents)

		flapCount := 0
		for _, e := range entityEvents {
			if stats.InFlapPeriod(e.Timestamp) {
				flapCount++
			}
		}

		pct := 0.0
		if len(entityEvents) > 0 {
			pct = math.Round(1000*float64(flapCount)/float64(len(entityEvents))) / 10
		}

		reports[entityID] = EntityReport{
			TotalEvents:       len(entityEvents),
			FlapPeriods:       len(stats.FlapPeriods),
			EventsDuringFlaps: flapCount,
			FlapPercentage:    pct,
			UniqueStates:      stats.UniqueStates,
			Recommendation:    f.recommend(entityEvents, stats, flapCount),
		}
	}

	return reports
}

func (f *Filter) recommend(entityEvents []event.Event, stats *event.EntityStats, flapCount int) string {
	if len(entityEvents) < f.cfg.MinEventsPerEntity {
		return RecommendExclude
	}
	if float64(flapCount)/float64(len(entityEvents)) > 0.5 {
		return RecommendExcludeHighFlap
	}
	if len(stats.FlapPeriods) > 0 {
		return RecommendIncludeWithCaution
	}
	return RecommendInclude
}
