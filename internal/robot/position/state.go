package position

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tradeforge/robotengine/internal/domain"
)

// The original implementation carried status, entry_status and exit_status as
// three overlapping fields. Here a single status plus the entry/exit records
// is authoritative; the sub-status tokens below are derived views kept for
// snapshot compatibility.
func subStatus(info *TradeInfo) string {
	if info == nil {
		return ""
	}
	return string(domain.PositionStatusClosed)
}

// State projects the position into its serializable snapshot. Volatile fields
// (the in-memory candle, recorded trades) are not part of the snapshot.
func (p *Position) State() domain.PositionState {
	state := domain.PositionState{
		ID:          p.id.String(),
		Prefix:      p.prefix,
		Code:        p.code,
		ParentID:    p.parentID,
		Direction:   string(p.direction),
		Status:      string(p.status),
		EntryStatus: subStatus(p.entry),
		ExitStatus:  subStatus(p.exit),
		Alerts:      p.AlertsState(),
		Internal: domain.PositionInternalState{
			HighestHigh: copyFloat(p.highestHigh),
			LowestLow:   copyFloat(p.lowestLow),
			Stop:        copyFloat(p.stop),
		},
	}
	if p.entry != nil {
		price := p.entry.Price
		state.EntryPrice = &price
		state.EntryDate = p.entry.Date.Format(domain.TimeLayout)
		state.EntryOrderType = string(p.entry.OrderType)
		state.EntryAction = string(p.entry.Action)
		state.EntryCandleTimestamp = p.entry.CandleTimestamp.Format(domain.TimeLayout)
	}
	if p.exit != nil {
		price := p.exit.Price
		state.ExitPrice = &price
		state.ExitDate = p.exit.Date.Format(domain.TimeLayout)
		state.ExitOrderType = string(p.exit.OrderType)
		state.ExitAction = string(p.exit.Action)
		state.ExitCandleTimestamp = p.exit.CandleTimestamp.Format(domain.TimeLayout)
	}
	return state
}

// FromState rehydrates a position from a persisted snapshot. Trades are not
// restored: the snapshot carries events since the last save, and those have
// already been handed to the event store.
func FromState(state domain.PositionState, candle *domain.Candle, backtest bool, clock domain.Clock) (*Position, error) {
	id, err := uuid.Parse(state.ID)
	if err != nil {
		return nil, fmt.Errorf("position id %q: %w", state.ID, err)
	}
	status, err := domain.ParsePositionStatus(state.Status)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = domain.SystemClock
	}

	p := &Position{
		id:          id,
		backtest:    backtest,
		clock:       clock,
		candle:      candle,
		prefix:      state.Prefix,
		code:        state.Code,
		parentID:    state.ParentID,
		status:      status,
		highestHigh: copyFloat(state.Internal.HighestHigh),
		lowestLow:   copyFloat(state.Internal.LowestLow),
		stop:        copyFloat(state.Internal.Stop),
	}

	if state.Direction != "" {
		direction, err := domain.ParsePositionDirection(state.Direction)
		if err != nil {
			return nil, err
		}
		p.direction = direction
	}

	if state.EntryPrice != nil {
		entry, err := tradeInfoFromState(
			*state.EntryPrice, state.EntryDate, state.EntryOrderType,
			state.EntryAction, state.EntryCandleTimestamp, domain.ParseEntryAction,
		)
		if err != nil {
			return nil, fmt.Errorf("position %s entry: %w", state.Code, err)
		}
		p.entry = entry
	}
	if state.ExitPrice != nil {
		exit, err := tradeInfoFromState(
			*state.ExitPrice, state.ExitDate, state.ExitOrderType,
			state.ExitAction, state.ExitCandleTimestamp, domain.ParseExitAction,
		)
		if err != nil {
			return nil, fmt.Errorf("position %s exit: %w", state.Code, err)
		}
		p.exit = exit
	}

	for _, alertState := range state.Alerts {
		alert, err := domain.SignalFromState(alertState)
		if err != nil {
			return nil, fmt.Errorf("position %s alert: %w", state.Code, err)
		}
		p.alerts = append(p.alerts, alert)
	}
	return p, nil
}

func tradeInfoFromState(
	price float64,
	date, orderType, action, candleTimestamp string,
	parseAction func(string) (domain.TradeAction, error),
) (*TradeInfo, error) {
	parsedAction, err := parseAction(action)
	if err != nil {
		return nil, err
	}
	parsedOrderType, err := domain.ParseOrderType(orderType)
	if err != nil {
		return nil, err
	}
	parsedDate, err := time.Parse(domain.TimeLayout, date)
	if err != nil {
		return nil, fmt.Errorf("date %q: %w", date, err)
	}
	parsedCandleTs, err := time.Parse(domain.TimeLayout, candleTimestamp)
	if err != nil {
		return nil, fmt.Errorf("candle timestamp %q: %w", candleTimestamp, err)
	}
	return &TradeInfo{
		Price:           price,
		Date:            parsedDate,
		OrderType:       parsedOrderType,
		Action:          parsedAction,
		CandleTimestamp: parsedCandleTs,
	}, nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
