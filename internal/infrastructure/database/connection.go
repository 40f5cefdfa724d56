// Package database reads state history from a Home Assistant recorder
// database and persists analysis runs next to it.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/autopilot-home/pattern-engine/internal/infrastructure/config"
)

// Pool wraps the pgx connection pool with the query timeout policy every
// repository shares.
type Pool struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewPool connects to the database and verifies the connection.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxOpenConns)
	pc.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("database pool established",
		zap.Int("max_conns", cfg.MaxOpenConns),
		zap.Duration("query_timeout", cfg.QueryTimeout),
	)
	return &Pool{pool: pool, queryTimeout: cfg.QueryTimeout, logger: logger}, nil
}

// Close releases the pool.
func (p *Pool) Close() {
	p.pool.Close()
}

// withTimeout applies the configured query timeout when one is set.
func (p *Pool) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.queryTimeout > 0 {
		return context.WithTimeout(ctx, p.queryTimeout)
	}
	return context.WithCancel(ctx)
}
