// Package metrics holds the OpenTelemetry instruments for the analysis
// pipeline.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/autopilot-home/pattern-engine/internal/infrastructure/telemetry"
)

// Registry holds all pipeline metrics.
type Registry struct {
	meter metric.Meter

	// Ingest metrics
	EventsCollected metric.Int64Counter
	EventsExcluded  metric.Int64Counter

	// Analyzer metrics
	AnalyzerDuration metric.Float64Histogram
	PatternsFound    metric.Int64Counter
	AnalyzerFailures metric.Int64Counter

	// Run metrics
	RunDuration  metric.Float64Histogram
	FlapsFlagged metric.Int64ObservableGauge

	mu           sync.RWMutex
	flapsFlagged int64
}

// NewRegistry creates the metrics registry on the global meter provider.
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{meter: telemetry.Meter(meterName)}

	var err error
	r.EventsCollected, err = r.meter.Int64Counter(
		"autopilot.events.collected_total",
		metric.WithDescription("State-change events collected per run"),
	)
	if err != nil {
		return nil, err
	}

	r.EventsExcluded, err = r.meter.Int64Counter(
		"autopilot.events.excluded_total",
		metric.WithDescription("Events excluded by the noise filter, by reason"),
	)
	if err != nil {
		return nil, err
	}

	r.AnalyzerDuration, err = r.meter.Float64Histogram(
		"autopilot.analyzer.duration",
		metric.WithDescription("Per-analyzer wall time in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	r.PatternsFound, err = r.meter.Int64Counter(
		"autopilot.patterns.found_total",
		metric.WithDescription("Patterns retained after ranking, by kind"),
	)
	if err != nil {
		return nil, err
	}

	r.AnalyzerFailures, err = r.meter.Int64Counter(
		"autopilot.analyzer.failure_total",
		metric.WithDescription("Analyzer runs that errored or panicked"),
	)
	if err != nil {
		return nil, err
	}

	r.RunDuration, err = r.meter.Float64Histogram(
		"autopilot.run.duration",
		metric.WithDescription("End-to-end analysis run wall time in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 300, 600, 1200),
	)
	if err != nil {
		return nil, err
	}

	r.FlapsFlagged, err = r.meter.Int64ObservableGauge(
		"autopilot.noise.flap_periods",
		metric.WithDescription("Flap periods detected in the latest run"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.flapsFlagged)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// SetFlapPeriods records the flap count of the latest run.
func (r *Registry) SetFlapPeriods(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flapsFlagged = n
}

// RecordExcluded records filtered events with their exclusion reason.
func (r *Registry) RecordExcluded(ctx context.Context, reason string, n int64) {
	r.EventsExcluded.Add(ctx, n, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordAnalyzer records one analyzer's outcome.
func (r *Registry) RecordAnalyzer(ctx context.Context, kind string, seconds float64, patterns int, failed bool) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	r.AnalyzerDuration.Record(ctx, seconds, attrs)
	if failed {
		r.AnalyzerFailures.Add(ctx, 1, attrs)
		return
	}
	r.PatternsFound.Add(ctx, int64(patterns), attrs)
}
