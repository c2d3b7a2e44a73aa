package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradeforge/robotengine/internal/domain"
)

// defaultStateTTL bounds staleness of the cached snapshot; the store of
// record is PostgreSQL.
const defaultStateTTL = 24 * time.Hour

// StateCache keeps the latest robot snapshot in Redis so the status API can
// read it without touching the driver goroutine or the database.
type StateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStateCache creates a StateCache backed by the given Client.
func NewStateCache(c *Client) *StateCache {
	return &StateCache{rdb: c.Underlying(), ttl: defaultStateTTL}
}

func stateKey(robotID string) string { return "robot:" + robotID + ":state" }

// Set stores the snapshot for a robot.
func (sc *StateCache) Set(ctx context.Context, robotID string, state domain.RobotState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis: marshal state for %s: %w", robotID, err)
	}
	if err := sc.rdb.Set(ctx, stateKey(robotID), payload, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set state for %s: %w", robotID, err)
	}
	return nil
}

// Get fetches the cached snapshot for a robot. A cache miss returns
// domain.ErrNotFound.
func (sc *StateCache) Get(ctx context.Context, robotID string) (domain.RobotState, error) {
	payload, err := sc.rdb.Get(ctx, stateKey(robotID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RobotState{}, fmt.Errorf("redis: state for %s: %w", robotID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RobotState{}, fmt.Errorf("redis: get state for %s: %w", robotID, err)
	}
	var state domain.RobotState
	if err := json.Unmarshal(payload, &state); err != nil {
		return domain.RobotState{}, fmt.Errorf("redis: unmarshal state for %s: %w", robotID, err)
	}
	return state, nil
}
