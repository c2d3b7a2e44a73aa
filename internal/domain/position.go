package domain

import "fmt"

// PositionStatus is the lifecycle state of a position, and doubles as the
// entry/exit sub-phase token in persisted snapshots.
type PositionStatus string

const (
	PositionStatusNew    PositionStatus = "new"
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// ParsePositionStatus converts a wire token into a PositionStatus.
func ParsePositionStatus(s string) (PositionStatus, error) {
	switch s {
	case "new":
		return PositionStatusNew, nil
	case "open":
		return PositionStatusOpen, nil
	case "closed":
		return PositionStatusClosed, nil
	default:
		return "", fmt.Errorf("position status %q: %w", s, ErrInvalidEnumValue)
	}
}

// PositionDirection is the side a position holds, fixed at entry fill.
type PositionDirection string

const (
	PositionDirectionLong  PositionDirection = "long"
	PositionDirectionShort PositionDirection = "short"
)

// ParsePositionDirection converts a wire token into a PositionDirection.
func ParsePositionDirection(s string) (PositionDirection, error) {
	switch s {
	case "long":
		return PositionDirectionLong, nil
	case "short":
		return PositionDirectionShort, nil
	default:
		return "", fmt.Errorf("position direction %q: %w", s, ErrInvalidEnumValue)
	}
}

// PositionInternalState holds the running extrema and trailing-stop price
// tracked while a position is open. Nil means not yet observed.
type PositionInternalState struct {
	HighestHigh *float64 `json:"highestHigh"`
	LowestLow   *float64 `json:"lowestLow"`
	Stop        *float64 `json:"stop"`
}

// PositionState is the serializable snapshot of one position, exchanged with
// the external state store at run boundaries. Optional fields are empty
// strings / nil pointers until the corresponding transition happens.
type PositionState struct {
	ID                   string                `json:"id"`
	Prefix               string                `json:"prefix"`
	Code                 string                `json:"code"`
	ParentID             string                `json:"parentId,omitempty"`
	Direction            string                `json:"direction,omitempty"`
	Status               string                `json:"status"`
	EntryStatus          string                `json:"entryStatus,omitempty"`
	EntryPrice           *float64              `json:"entryPrice,omitempty"`
	EntryDate            string                `json:"entryDate,omitempty"`
	EntryOrderType       string                `json:"entryOrderType,omitempty"`
	EntryAction          string                `json:"entryAction,omitempty"`
	EntryCandleTimestamp string                `json:"entryCandleTimestamp,omitempty"`
	ExitStatus           string                `json:"exitStatus,omitempty"`
	ExitPrice            *float64              `json:"exitPrice,omitempty"`
	ExitDate             string                `json:"exitDate,omitempty"`
	ExitOrderType        string                `json:"exitOrderType,omitempty"`
	ExitAction           string                `json:"exitAction,omitempty"`
	ExitCandleTimestamp  string                `json:"exitCandleTimestamp,omitempty"`
	Alerts               []SignalState         `json:"alerts"`
	Internal             PositionInternalState `json:"internalState"`
}

// RobotState is the persisted position-set snapshot for one strategy run:
// the sequence counter and every live position.
type RobotState struct {
	PositionLastNum int             `json:"positionLastNum"`
	Positions       []PositionState `json:"positions"`
}
