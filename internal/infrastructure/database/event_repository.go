package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/autopilot-home/pattern-engine/internal/domain/event"
)

// recorder schema: states carries the transitions, states_meta the entity
// ids, and old_state_id links each row to the state it replaced.
const stateHistoryQuery = `
SELECT m.entity_id,
       s.state,
       COALESCE(prev.state, ''),
       s.last_updated_ts
FROM states s
JOIN states_meta m ON m.metadata_id = s.metadata_id
LEFT JOIN states prev ON prev.state_id = s.old_state_id
WHERE s.last_updated_ts >= $1
  AND s.last_updated_ts < $2
  AND s.state IS NOT NULL
ORDER BY s.last_updated_ts, m.entity_id`

// EventRepository loads raw state transitions from the recorder.
type EventRepository struct {
	db *Pool
}

// NewEventRepository creates an event repository over the pool.
func NewEventRepository(db *Pool) *EventRepository {
	return &EventRepository{db: db}
}

// FetchWindow returns every state transition inside [from, to), oldest
// first. Rows where the state did not actually change are dropped here so
// downstream counts reflect transitions, not recorder writes.
func (r *EventRepository) FetchWindow(ctx context.Context, from, to time.Time) ([]event.Event, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	fromTS := float64(from.UnixNano()) / 1e9
	toTS := float64(to.UnixNano()) / 1e9

	rows, err := r.db.pool.Query(ctx, stateHistoryQuery, fromTS, toTS)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	skipped := 0
	for rows.Next() {
		var e event.Event
		if err := rows.Scan(&e.EntityID, &e.NewState, &e.PreviousState, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning state row: %w", err)
		}
		if e.NewState == e.PreviousState {
			skipped++
			continue
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading state rows: %w", err)
	}

	r.db.logger.Debug("state history loaded",
		zap.Int("events", len(events)),
		zap.Int("unchanged_skipped", skipped),
		zap.Time("from", from),
		zap.Time("to", to),
	)
	return events, nil
}
