package database

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	apperrors "github.com/autopilot-home/pattern-engine/internal/domain/errors"
	"github.com/autopilot-home/pattern-engine/internal/domain/pattern"
)

// Run records one completed analysis.
type Run struct {
	ID             uuid.UUID
	StartedAt      time.Time
	FinishedAt     time.Time
	WindowDays     int
	TotalEvents    int
	AnalyzedEvents int
	PatternCount   int
}

// PatternRepository persists analysis runs and their patterns.
type PatternRepository struct {
	db *Pool
}

// NewPatternRepository creates a pattern repository over the pool.
func NewPatternRepository(db *Pool) *PatternRepository {
	return &PatternRepository{db: db}
}

// SaveRun stores the run and every pattern it found in one transaction, so a
// run never appears with half its patterns.
func (r *PatternRepository) SaveRun(ctx context.Context, run Run, patterns []pattern.Pattern) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO ha_autopilot_runs
			(id, started_at, finished_at, window_days, total_events, analyzed_events, pattern_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.StartedAt, run.FinishedAt, run.WindowDays,
		run.TotalEvents, run.AnalyzedEvents, run.PatternCount,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range patterns {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding pattern %s: %w", p.ID, err)
		}
		batch.Queue(`
			INSERT INTO ha_autopilot_patterns
				(id, run_id, kind, confidence, occurrences, trials, description, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, run.ID, string(p.Kind), p.Confidence,
			p.Occurrences, p.Trials, p.Description, payload,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting patterns: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}

	r.db.logger.Info("analysis run persisted",
		zap.String("run_id", run.ID.String()),
		zap.Int("patterns", len(patterns)),
	)
	return nil
}

// LatestRun returns the most recently finished run, or ErrRunNotFound when
// none exists yet.
func (r *PatternRepository) LatestRun(ctx context.Context) (Run, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var run Run
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, started_at, finished_at, window_days, total_events, analyzed_events, pattern_count
		FROM ha_autopilot_runs
		ORDER BY finished_at DESC
		LIMIT 1`).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.WindowDays,
		&run.TotalEvents, &run.AnalyzedEvents, &run.PatternCount,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return Run{}, apperrors.ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("querying latest run: %w", err)
	}
	return run, nil
}
