package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradeforge/robotengine/internal/domain"
)

// SignalEventStore implements domain.EventStore using PostgreSQL. Events are
// append-only; the engine never reads them back.
type SignalEventStore struct {
	pool *pgxpool.Pool
}

// NewSignalEventStore creates a SignalEventStore backed by the given pool.
func NewSignalEventStore(pool *pgxpool.Pool) *SignalEventStore {
	return &SignalEventStore{pool: pool}
}

// AppendEvents inserts a batch of signal events in one round trip.
func (s *SignalEventStore) AppendEvents(ctx context.Context, robotID string, events []domain.SignalEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const query = `
		INSERT INTO signal_events (
			id, robot_id, ts, position_id, position_prefix, position_code,
			position_parent_id, signal_type, action, order_type, price,
			candle_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	for _, e := range events {
		ts, err := time.Parse(domain.TimeLayout, e.Timestamp)
		if err != nil {
			return fmt.Errorf("postgres: event %s timestamp: %w", e.ID, err)
		}
		candleTs, err := time.Parse(domain.TimeLayout, e.CandleTimestamp)
		if err != nil {
			return fmt.Errorf("postgres: event %s candle timestamp: %w", e.ID, err)
		}
		var parentID *string
		if e.PositionParentID != "" {
			parentID = &e.PositionParentID
		}
		batch.Queue(query,
			e.ID, robotID, ts, e.PositionID, e.PositionPrefix, e.PositionCode,
			parentID, e.SignalType, e.Action, e.OrderType, e.Price, candleTs,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: append events for %s: %w", robotID, err)
		}
	}
	return nil
}

// ListEvents returns up to limit most recent events for a robot, newest
// first. Used by the status API only.
func (s *SignalEventStore) ListEvents(ctx context.Context, robotID string, limit int) ([]domain.SignalEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT id, ts, position_id, position_prefix, position_code,
			COALESCE(position_parent_id, ''), signal_type, action, order_type,
			price, candle_timestamp
		FROM signal_events
		WHERE robot_id = $1
		ORDER BY ts DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, robotID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for %s: %w", robotID, err)
	}
	defer rows.Close()

	var events []domain.SignalEvent
	for rows.Next() {
		var e domain.SignalEvent
		var ts, candleTs time.Time
		if err := rows.Scan(
			&e.ID, &ts, &e.PositionID, &e.PositionPrefix, &e.PositionCode,
			&e.PositionParentID, &e.SignalType, &e.Action, &e.OrderType,
			&e.Price, &candleTs,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Timestamp = ts.Format(domain.TimeLayout)
		e.CandleTimestamp = candleTs.Format(domain.TimeLayout)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events for %s: %w", robotID, err)
	}
	return events, nil
}

var _ domain.EventStore = (*SignalEventStore)(nil)
