package domain

import "context"

// StateStore persists robot position-set snapshots at run boundaries.
type StateStore interface {
	SaveState(ctx context.Context, robotID string, state RobotState) error
	LoadState(ctx context.Context, robotID string) (RobotState, error)
}

// EventStore appends emitted alert/trade events to a permanent ledger.
type EventStore interface {
	AppendEvents(ctx context.Context, robotID string, events []SignalEvent) error
}

// EventBus publishes emitted events to downstream subscribers.
type EventBus interface {
	PublishEvents(ctx context.Context, robotID string, events []SignalEvent) error
}
