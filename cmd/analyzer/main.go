// Command analyzer runs the behavioral pattern pipeline over captured or
// recorded state history: filter noise, detect patterns, rank them, and
// optionally turn the strongest into Home Assistant automations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/autopilot-home/pattern-engine/internal/domain/errors"
	"github.com/autopilot-home/pattern-engine/internal/domain/event"
	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
	"github.com/autopilot-home/pattern-engine/internal/infrastructure/config"
	"github.com/autopilot-home/pattern-engine/internal/infrastructure/database"
	"github.com/autopilot-home/pattern-engine/internal/infrastructure/export"
	"github.com/autopilot-home/pattern-engine/internal/infrastructure/telemetry"
	"github.com/autopilot-home/pattern-engine/internal/metrics"
	"github.com/autopilot-home/pattern-engine/internal/service/automation"
	"github.com/autopilot-home/pattern-engine/internal/service/conditional"
	"github.com/autopilot-home/pattern-engine/internal/service/engine"
	"github.com/autopilot-home/pattern-engine/internal/service/noise"
	"github.com/autopilot-home/pattern-engine/internal/service/ranking"
	"github.com/autopilot-home/pattern-engine/internal/service/sequential"
	"github.com/autopilot-home/pattern-engine/internal/service/temporal"

	"github.com/google/uuid"
)

// Command-line flags
var (
	configPath   = flag.String("config", "configs/config.yaml", "Path to configuration file")
	mode         = flag.String("mode", "analyze", "Operation mode: analyze, entities, install")
	days         = flag.Int("days", 0, "Override the analysis window in days")
	source       = flag.String("source", "", "Override the event source: database or jsonl")
	top          = flag.Int("top", 0, "Override patterns shown per kind in the report")
	patternsPath = flag.String("patterns", "patterns.json", "Pattern file written by analyze and read by install")
	dryRun       = flag.Bool("dry-run", false, "Analyze and report without writing files or database rows")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg)

	logger := telemetry.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	provider, err := telemetry.Initialize(ctx, &telemetry.Config{
		ServiceName:    "pattern-engine",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		ExportTimeout:  30 * time.Second,
		BatchTimeout:   5 * time.Second,
	})
	if err != nil {
		logger.Error("failed to initialize telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown incomplete", slog.Any("error", err))
		}
	}()

	if cfg.Telemetry.MetricsAddr != "" && *mode == "analyze" {
		stopMetrics := startMetricsServer(cfg.Telemetry.MetricsAddr, logger)
		defer stopMetrics()
	}

	switch *mode {
	case "analyze":
		err = runAnalyze(ctx, cfg, logger)
	case "entities":
		err = runEntityReport(ctx, cfg, logger)
	case "install":
		err = runInstall(cfg, logger)
	default:
		err = fmt.Errorf("unknown mode: %s", *mode)
	}
	if err != nil {
		logger.Error("operation failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func applyOverrides(cfg *config.Config) {
	if *days > 0 {
		cfg.Analysis.WindowDays = *days
	}
	if *source != "" {
		cfg.Source.Mode = *source
	}
	if *top > 0 {
		cfg.Automation.TopPerKind = *top
	}
}

// loadEvents fetches the raw window from the configured source and enriches
// it with temporal and environmental context.
func loadEvents(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]event.Event, error) {
	var (
		events []event.Event
		err    error
	)
	switch cfg.Source.Mode {
	case "jsonl":
		events, err = export.NewReader(logger).ReadLatest(cfg.Source.ExportDir)
	case "database":
		zl, zerr := zap.NewProduction()
		if zerr != nil {
			return nil, fmt.Errorf("creating database logger: %w", zerr)
		}
		defer zl.Sync()

		var pool *database.Pool
		pool, err = database.NewPool(ctx, cfg.Database, zl)
		if err != nil {
			return nil, err
		}
		defer pool.Close()

		to := time.Now()
		from := to.AddDate(0, 0, -cfg.Analysis.WindowDays)
		events, err = database.NewEventRepository(pool).FetchWindow(ctx, from, to)
	default:
		return nil, fmt.Errorf("unknown source mode: %s", cfg.Source.Mode)
	}
	if err != nil {
		return nil, err
	}

	builder := event.NewContextBuilder(int(cfg.Analysis.ConcurrentWindow.Seconds()), cfg.Location())
	return builder.Build(events), nil
}

func runAnalyze(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, span := telemetry.Tracer("analyzer").Start(ctx, "analysis.run")
	defer span.End()

	startedAt := time.Now()
	observeRunStarted()

	events, err := loadEvents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return apperrors.ErrNoEvents
	}
	logger.Info("events loaded",
		slog.Int("count", len(events)),
		slog.String("source", cfg.Source.Mode),
	)

	filter := noise.NewFilter(noise.Config{
		FlapThreshold:      cfg.Analysis.FlapThreshold,
		FlapWindow:         cfg.Analysis.FlapWindow.Seconds(),
		MinEventsPerEntity: cfg.Analysis.MinEventsPerEntity,
		SentinelStates:     []string{"unavailable", "unknown"},
		ExcludeSentinels:   true,
	}, logger)
	filtered := filter.Filter(events)
	observeFiltering(len(events), len(filtered.Events), filtered.Excluded)

	registry, err := metrics.NewRegistry("pattern-engine")
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}
	registry.EventsCollected.Add(ctx, int64(len(events)))
	for reason, n := range filtered.Excluded {
		registry.RecordExcluded(ctx, reason, int64(n))
	}
	flaps := 0
	for _, st := range filtered.Stats {
		flaps += len(st.FlapPeriods)
	}
	registry.SetFlapPeriods(int64(flaps))

	eng := engine.New(engine.Config{Timeout: cfg.Analysis.Timeout, Metrics: registry}, logger,
		temporal.NewAnalyzer(temporal.Config{
			MinConfidence:   cfg.Analysis.MinConfidence,
			MinOccurrences:  cfg.Analysis.MinOccurrences,
			ExcludeEntities: cfg.Analysis.ExcludeEntities,
			Location:        cfg.Location(),
		}, logger),
		sequential.NewAnalyzer(sequential.Config{
			MinConfidence:    cfg.Analysis.MinConfidence,
			MinOccurrences:   cfg.Analysis.MinOccurrences,
			MaxWindowSeconds: cfg.Analysis.MaxSequenceGap.Seconds(),
			ExcludeEntities:  cfg.Analysis.ExcludeEntities,
		}, logger),
		conditional.NewAnalyzer(conditional.Config{
			MinConfidence:   cfg.Analysis.MinConfidence,
			MinOccurrences:  cfg.Analysis.MinOccurrences,
			ExcludeEntities: cfg.Analysis.ExcludeEntities,
			Workers:         cfg.Analysis.Workers,
		}, logger),
	)

	result, err := eng.Run(ctx, filtered.Events, filtered.Stats)
	if err != nil {
		return err
	}
	ranked := ranking.Rank(result.Patterns)
	registry.RunDuration.Record(ctx, time.Since(startedAt).Seconds())
	observeRunFinished(time.Since(startedAt), ranked, result.Failures)

	report := ranking.Report{
		GeneratedAt:      startedAt,
		WindowDays:       cfg.Analysis.WindowDays,
		TotalEvents:      len(events),
		AnalyzedEvents:   len(filtered.Events),
		ExcludedByReason: filtered.Excluded,
		Patterns:         ranked,
		TopPerKind:       cfg.Automation.TopPerKind,
	}
	for _, f := range result.Failures {
		report.Failures = append(report.Failures, ranking.Failure{
			Kind: f.Kind, Message: f.Err.Error(),
		})
	}
	if err := report.Render(os.Stdout); err != nil {
		return err
	}

	if *dryRun {
		logger.Info("dry run, skipping writes", slog.Int("patterns", len(ranked)))
		return nil
	}

	doc := export.PatternExport{
		GeneratedAt: startedAt,
		WindowDays:  cfg.Analysis.WindowDays,
		Patterns:    ranked,
	}
	if err := export.WritePatterns(*patternsPath, doc); err != nil {
		return err
	}
	logger.Info("patterns written", slog.String("path", *patternsPath))

	if cfg.Source.Mode == "database" {
		if err := persistRun(ctx, cfg, startedAt, len(events), len(filtered.Events), ranked); err != nil {
			return err
		}
	}
	return nil
}

func persistRun(ctx context.Context, cfg *config.Config, startedAt time.Time, total, analyzed int, ranked []pattern.Pattern) error {
	zl, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("creating database logger: %w", err)
	}
	defer zl.Sync()

	pool, err := database.NewPool(ctx, cfg.Database, zl)
	if err != nil {
		return err
	}
	defer pool.Close()

	run := database.Run{
		ID:             uuid.New(),
		StartedAt:      startedAt,
		FinishedAt:     time.Now(),
		WindowDays:     cfg.Analysis.WindowDays,
		TotalEvents:    total,
		AnalyzedEvents: analyzed,
		PatternCount:   len(ranked),
	}
	repo := database.NewPatternRepository(pool)

	prev, err := repo.LatestRun(ctx)
	switch {
	case err == nil:
		zl.Info("previous run",
			zap.Time("finished_at", prev.FinishedAt),
			zap.Int("patterns", prev.PatternCount),
			zap.Int("patterns_now", len(ranked)),
		)
	case apperrors.IsType(err, apperrors.ErrorTypeNotFound):
		zl.Info("first analysis run for this database")
	default:
		return err
	}

	return repo.SaveRun(ctx, run, ranked)
}

// runEntityReport prints the per-entity noise summary operators use to
// build exclusion lists.
func runEntityReport(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	events, err := loadEvents(ctx, cfg, logger)
	if err != nil {
		return err
	}

	filter := noise.NewFilter(noise.Config{
		FlapThreshold:      cfg.Analysis.FlapThreshold,
		FlapWindow:         cfg.Analysis.FlapWindow.Seconds(),
		MinEventsPerEntity: cfg.Analysis.MinEventsPerEntity,
		SentinelStates:     []string{"unavailable", "unknown"},
		ExcludeSentinels:   true,
	}, logger)

	reports := filter.EntityReports(events)
	entityIDs := make([]string, 0, len(reports))
	for id := range reports {
		entityIDs = append(entityIDs, id)
	}
	sort.Strings(entityIDs)

	fmt.Printf("%-40s %8s %6s %7s %s\n", "ENTITY", "EVENTS", "FLAPS", "FLAP%", "RECOMMENDATION")
	for _, id := range entityIDs {
		r := reports[id]
		fmt.Printf("%-40s %8d %6d %6.1f%% %s\n",
			id, r.TotalEvents, r.FlapPeriods, r.FlapPercentage, r.Recommendation)
	}
	return nil
}

// runInstall converts a previously written pattern file into Home Assistant
// automations.
func runInstall(cfg *config.Config, logger *slog.Logger) error {
	data, err := os.ReadFile(*patternsPath)
	if err != nil {
		return fmt.Errorf("reading pattern file %s: %w", *patternsPath, err)
	}
	var doc export.PatternExport
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing pattern file %s: %w", *patternsPath, err)
	}

	gen := automation.NewGenerator(automation.Config{
		DenyDomains: cfg.Automation.DenyDomains,
	}, logger)
	automations := gen.GenerateAll(doc.Patterns)
	if len(automations) == 0 {
		logger.Warn("no automatable patterns in file", slog.String("path", *patternsPath))
		return nil
	}

	out, err := automation.Render(automations)
	if err != nil {
		return err
	}
	if *dryRun {
		fmt.Print(string(out))
		return nil
	}
	if err := os.WriteFile(cfg.Automation.OutputPath, out, 0o644); err != nil {
		return fmt.Errorf("writing automations to %s: %w", cfg.Automation.OutputPath, err)
	}
	logger.Info("automations written",
		slog.String("path", cfg.Automation.OutputPath),
		slog.Int("count", len(automations)),
	)
	return nil
}
