package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
	"github.com/autopilot-home/pattern-engine/internal/service/engine"
)

// Prometheus metrics for the analyze mode. The process is short-lived, so
// these matter most when runs are scheduled and scraped mid-flight.
var (
	runsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopilot_runs_started_total",
		Help: "Analysis runs started",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autopilot_run_duration_seconds",
		Help:    "End-to-end analysis run duration",
		Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1200},
	})

	eventsCollected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autopilot_events_collected",
		Help: "Events collected in the latest run",
	})

	eventsAnalyzed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autopilot_events_analyzed",
		Help: "Events surviving the noise filter in the latest run",
	})

	eventsExcluded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autopilot_events_excluded",
		Help: "Events excluded in the latest run, by reason",
	}, []string{"reason"})

	patternsFound = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autopilot_patterns_found",
		Help: "Patterns retained after ranking in the latest run, by kind",
	}, []string{"kind"})

	analyzerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autopilot_analyzer_failures_total",
		Help: "Analyzer runs that errored or panicked, by kind",
	}, []string{"kind"})
)

func observeRunStarted() {
	runsStarted.Inc()
}

func observeFiltering(collected, analyzed int, excluded map[string]int) {
	eventsCollected.Set(float64(collected))
	eventsAnalyzed.Set(float64(analyzed))
	for reason, n := range excluded {
		eventsExcluded.WithLabelValues(reason).Set(float64(n))
	}
}

func observeRunFinished(elapsed time.Duration, ranked []pattern.Pattern, failures []engine.Failure) {
	runDuration.Observe(elapsed.Seconds())

	counts := make(map[pattern.Kind]int)
	for _, p := range ranked {
		counts[p.Kind]++
	}
	for _, kind := range pattern.Kinds() {
		patternsFound.WithLabelValues(string(kind)).Set(float64(counts[kind]))
	}
	for _, f := range failures {
		analyzerFailures.WithLabelValues(string(f.Kind)).Inc()
	}
}

// startMetricsServer exposes /metrics and returns a shutdown func.
func startMetricsServer(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server listening", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
