package domain

import (
	"fmt"
	"time"
)

// SignalType distinguishes a pending order intent from a confirmed fill.
type SignalType string

const (
	SignalTypeAlert SignalType = "alert"
	SignalTypeTrade SignalType = "trade"
)

// ParseSignalType converts a wire token into a SignalType.
func ParseSignalType(s string) (SignalType, error) {
	switch s {
	case "alert":
		return SignalTypeAlert, nil
	case "trade":
		return SignalTypeTrade, nil
	default:
		return "", fmt.Errorf("signal type %q: %w", s, ErrInvalidEnumValue)
	}
}

// TradeAction is the entry/exit direction of a signal.
type TradeAction string

const (
	TradeActionLong       TradeAction = "long"
	TradeActionShort      TradeAction = "short"
	TradeActionCloseLong  TradeAction = "closeLong"
	TradeActionCloseShort TradeAction = "closeShort"
)

// ParseTradeAction converts a wire token into a TradeAction.
func ParseTradeAction(s string) (TradeAction, error) {
	switch s {
	case "long":
		return TradeActionLong, nil
	case "short":
		return TradeActionShort, nil
	case "closeLong":
		return TradeActionCloseLong, nil
	case "closeShort":
		return TradeActionCloseShort, nil
	default:
		return "", fmt.Errorf("trade action %q: %w", s, ErrInvalidEnumValue)
	}
}

// ParseEntryAction accepts only entry-side tokens (long, short).
func ParseEntryAction(s string) (TradeAction, error) {
	a, err := ParseTradeAction(s)
	if err != nil {
		return "", err
	}
	if !a.IsEntry() {
		return "", fmt.Errorf("entry action %q: %w", s, ErrInvalidEnumValue)
	}
	return a, nil
}

// ParseExitAction accepts only exit-side tokens (closeLong, closeShort).
func ParseExitAction(s string) (TradeAction, error) {
	a, err := ParseTradeAction(s)
	if err != nil {
		return "", err
	}
	if a.IsEntry() {
		return "", fmt.Errorf("exit action %q: %w", s, ErrInvalidEnumValue)
	}
	return a, nil
}

// IsEntry reports whether the action opens a position.
func (a TradeAction) IsEntry() bool {
	return a == TradeActionLong || a == TradeActionShort
}

// BuySide reports whether the action executes on the buy side of the book.
// Long entries and short covers buy; short entries and long exits sell. Fill
// price clamping polarity follows this split.
func (a TradeAction) BuySide() bool {
	return a == TradeActionLong || a == TradeActionCloseShort
}

// OrderType is the fill-trigger rule of a signal.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// ParseOrderType converts a wire token into an OrderType.
func ParseOrderType(s string) (OrderType, error) {
	switch s {
	case "market":
		return OrderTypeMarket, nil
	case "limit":
		return OrderTypeLimit, nil
	case "stop":
		return OrderTypeStop, nil
	default:
		return "", fmt.Errorf("order type %q: %w", s, ErrInvalidEnumValue)
	}
}

// Signal is one proposed (alert) or executed (trade) order action. Signals
// are immutable once created.
type Signal struct {
	Type            SignalType
	Action          TradeAction
	OrderType       OrderType
	Price           float64
	CandleTimestamp time.Time
}

// SignalState is the serializable wire form of a Signal.
type SignalState struct {
	SignalType      string  `json:"signalType"`
	Action          string  `json:"action"`
	OrderType       string  `json:"orderType"`
	Price           float64 `json:"price"`
	CandleTimestamp string  `json:"candleTimestamp"`
}

// State projects the signal into its wire form.
func (s Signal) State() SignalState {
	return SignalState{
		SignalType:      string(s.Type),
		Action:          string(s.Action),
		OrderType:       string(s.OrderType),
		Price:           s.Price,
		CandleTimestamp: s.CandleTimestamp.Format(TimeLayout),
	}
}

// SignalFromState parses a wire-form signal back into a Signal.
func SignalFromState(state SignalState) (Signal, error) {
	sigType, err := ParseSignalType(state.SignalType)
	if err != nil {
		return Signal{}, err
	}
	action, err := ParseTradeAction(state.Action)
	if err != nil {
		return Signal{}, err
	}
	orderType, err := ParseOrderType(state.OrderType)
	if err != nil {
		return Signal{}, err
	}
	ts, err := time.Parse(TimeLayout, state.CandleTimestamp)
	if err != nil {
		return Signal{}, fmt.Errorf("candle timestamp %q: %w", state.CandleTimestamp, err)
	}
	return Signal{
		Type:            sigType,
		Action:          action,
		OrderType:       orderType,
		Price:           state.Price,
		CandleTimestamp: ts,
	}, nil
}

// SignalEvent is a flat, globally identified alert/trade record emitted for
// external append-only logging. Events are never replayed back into the
// engine.
type SignalEvent struct {
	ID               string  `json:"id"`
	Timestamp        string  `json:"timestamp"`
	PositionID       string  `json:"positionId"`
	PositionPrefix   string  `json:"positionPrefix"`
	PositionCode     string  `json:"positionCode"`
	PositionParentID string  `json:"positionParentId,omitempty"`
	SignalType       string  `json:"signalType"`
	Action           string  `json:"action"`
	OrderType        string  `json:"orderType"`
	Price            float64 `json:"price"`
	CandleTimestamp  string  `json:"candleTimestamp"`
}
