// Package engine runs the analyzers concurrently over one shared event
// snapshot and merges their findings. One analyzer failing, or panicking,
// never costs the run the other analyzers' patterns.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/autopilot-home/pattern-engine/internal/domain/errors"
	"github.com/autopilot-home/pattern-engine/internal/domain/event"
	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
	"github.com/autopilot-home/pattern-engine/internal/metrics"
)

// Analyzer is one detection strategy. Implementations must treat the event
// slice and stats map as read-only; they are shared across analyzers.
type Analyzer interface {
	Kind() pattern.Kind
	Analyze(ctx context.Context, events []event.Event, stats map[string]*event.EntityStats) ([]pattern.Pattern, error)
}

// Failure records one analyzer that did not complete.
type Failure struct {
	Kind pattern.Kind
	Err  error
}

// Result carries whatever the run produced. Failures and patterns are not
// mutually exclusive.
type Result struct {
	Patterns []pattern.Pattern
	Failures []Failure
	Elapsed  time.Duration
}

// Config holds engine settings.
type Config struct {
	// Timeout bounds the whole run; zero means no bound.
	Timeout time.Duration
	// Metrics, when set, receives per-analyzer timings and outcomes.
	Metrics *metrics.Registry
}

// Engine fans events out to registered analyzers.
type Engine struct {
	analyzers []Analyzer
	timeout   time.Duration
	metrics   *metrics.Registry
	logger    *slog.Logger
}

// New creates an engine running the given analyzers.
func New(cfg Config, logger *slog.Logger, analyzers ...Analyzer) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{analyzers: analyzers, timeout: cfg.Timeout, metrics: cfg.Metrics, logger: logger}
}

// Run executes every analyzer concurrently and merges results in
// registration order, so output ordering never depends on which goroutine
// finished first.
func (e *Engine) Run(ctx context.Context, events []event.Event, stats map[string]*event.EntityStats) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	patterns := make([][]pattern.Pattern, len(e.analyzers))
	errs := make([]error, len(e.analyzers))

	var wg sync.WaitGroup
	for i, a := range e.analyzers {
		wg.Add(1)
		go func(i int, a Analyzer) {
			defer wg.Done()
			began := time.Now()
			// Recording in the same defer as the recover keeps panicked
			// analyzers in the failure count.
			defer func() {
				if r := recover(); r != nil {
					errs[i] = apperrors.NewAnalyzerError(string(a.Kind()), fmt.Sprintf("panic: %v", r))
				}
				if e.metrics != nil {
					e.metrics.RecordAnalyzer(ctx, string(a.Kind()),
						time.Since(began).Seconds(), len(patterns[i]), errs[i] != nil)
				}
			}()
			patterns[i], errs[i] = a.Analyze(ctx, events, stats)
			e.logger.Debug("analyzer finished",
				slog.String("kind", string(a.Kind())),
				slog.Duration("elapsed", time.Since(began)),
				slog.Int("patterns", len(patterns[i])),
			)
		}(i, a)
	}
	wg.Wait()

	res := Result{Elapsed: time.Since(start)}
	for i, a := range e.analyzers {
		if errs[i] != nil {
			e.logger.Error("analyzer failed",
				slog.String("kind", string(a.Kind())),
				slog.Any("error", errs[i]),
			)
			res.Failures = append(res.Failures, Failure{Kind: a.Kind(), Err: errs[i]})
			continue
		}
		res.Patterns = append(res.Patterns, patterns[i]...)
	}
	return res, nil
}
