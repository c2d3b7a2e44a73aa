package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradeforge/robotengine/internal/domain"
)

// RobotStateStore implements domain.StateStore using PostgreSQL. The
// position set is stored as a JSONB document, mirroring the snapshot wire
// form exactly.
type RobotStateStore struct {
	pool *pgxpool.Pool
}

// NewRobotStateStore creates a RobotStateStore backed by the given pool.
func NewRobotStateStore(pool *pgxpool.Pool) *RobotStateStore {
	return &RobotStateStore{pool: pool}
}

// SaveState upserts the position-set snapshot for a robot.
func (s *RobotStateStore) SaveState(ctx context.Context, robotID string, state domain.RobotState) error {
	positions, err := json.Marshal(state.Positions)
	if err != nil {
		return fmt.Errorf("postgres: marshal positions for %s: %w", robotID, err)
	}
	const query = `
		INSERT INTO robot_states (robot_id, position_last_num, positions, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (robot_id) DO UPDATE SET
			position_last_num = EXCLUDED.position_last_num,
			positions = EXCLUDED.positions,
			updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, robotID, state.PositionLastNum, positions); err != nil {
		return fmt.Errorf("postgres: save state for %s: %w", robotID, err)
	}
	return nil
}

// LoadState fetches the snapshot for a robot. A robot that has never been
// saved returns domain.ErrNotFound.
func (s *RobotStateStore) LoadState(ctx context.Context, robotID string) (domain.RobotState, error) {
	const query = `
		SELECT position_last_num, positions
		FROM robot_states
		WHERE robot_id = $1`

	var state domain.RobotState
	var positions []byte
	err := s.pool.QueryRow(ctx, query, robotID).Scan(&state.PositionLastNum, &positions)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RobotState{}, fmt.Errorf("postgres: robot %s: %w", robotID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RobotState{}, fmt.Errorf("postgres: load state for %s: %w", robotID, err)
	}
	if err := json.Unmarshal(positions, &state.Positions); err != nil {
		return domain.RobotState{}, fmt.Errorf("postgres: unmarshal positions for %s: %w", robotID, err)
	}
	return state, nil
}

// SaveStrategyState upserts the opaque strategy state document for a robot.
func (s *RobotStateStore) SaveStrategyState(ctx context.Context, robotID string, state []byte) error {
	const query = `
		INSERT INTO robot_states (robot_id, strategy_state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (robot_id) DO UPDATE SET
			strategy_state = EXCLUDED.strategy_state,
			updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, robotID, state); err != nil {
		return fmt.Errorf("postgres: save strategy state for %s: %w", robotID, err)
	}
	return nil
}

// LoadStrategyState fetches the opaque strategy state document for a robot.
// Returns nil bytes when the robot has no saved strategy state yet.
func (s *RobotStateStore) LoadStrategyState(ctx context.Context, robotID string) ([]byte, error) {
	const query = `SELECT strategy_state FROM robot_states WHERE robot_id = $1`

	var state []byte
	err := s.pool.QueryRow(ctx, query, robotID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load strategy state for %s: %w", robotID, err)
	}
	return state, nil
}

var _ domain.StateStore = (*RobotStateStore)(nil)
