// Package position implements the position lifecycle state machine and the
// manager that owns every position of a strategy run. A position accumulates
// pending alerts (order intents), evaluates them against the latest candle
// and turns at most one of them per candle into a confirmed trade.
package position

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tradeforge/robotengine/internal/domain"
)

// TradeInfo records the fill details stamped at an entry or exit transition.
// Written once, immutable afterward.
type TradeInfo struct {
	Price           float64
	Date            time.Time
	OrderType       domain.OrderType
	Action          domain.TradeAction
	CandleTimestamp time.Time
}

// Position is a state machine for one tradeable unit. It is owned exclusively
// by a Manager; external holders reference positions by code only.
type Position struct {
	id       uuid.UUID
	backtest bool
	clock    domain.Clock
	candle   *domain.Candle
	prefix   string
	code     string
	parentID string

	direction domain.PositionDirection
	status    domain.PositionStatus
	entry     *TradeInfo
	exit      *TradeInfo

	alerts []domain.Signal
	trades []domain.Signal

	highestHigh *float64
	lowestLow   *float64
	stop        *float64
}

// New creates a fresh position in status "new" with empty alert and trade
// collections. The candle may be nil when no bar has been seen yet.
func New(prefix, code, parentID string, candle *domain.Candle, backtest bool, clock domain.Clock) *Position {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Position{
		id:       uuid.New(),
		backtest: backtest,
		clock:    clock,
		candle:   candle,
		prefix:   prefix,
		code:     code,
		parentID: parentID,
		status:   domain.PositionStatusNew,
	}
}

func (p *Position) ID() string                          { return p.id.String() }
func (p *Position) Prefix() string                      { return p.prefix }
func (p *Position) Code() string                        { return p.code }
func (p *Position) ParentID() string                    { return p.parentID }
func (p *Position) Direction() domain.PositionDirection { return p.direction }
func (p *Position) Status() domain.PositionStatus       { return p.status }

// Entry returns the recorded entry fill, or nil before the position opened.
func (p *Position) Entry() *TradeInfo { return p.entry }

// Exit returns the recorded exit fill, or nil before the position closed.
func (p *Position) Exit() *TradeInfo { return p.exit }

// Alerts returns the pending alerts in insertion (priority) order.
func (p *Position) Alerts() []domain.Signal { return p.alerts }

// Trades returns the confirmed fills recorded since the last clear.
func (p *Position) Trades() []domain.Signal { return p.trades }

// IsActive reports whether the position still participates in trading.
func (p *Position) IsActive() bool {
	return p.status == domain.PositionStatusNew || p.status == domain.PositionStatusOpen
}

func (p *Position) IsLong() bool  { return p.direction == domain.PositionDirectionLong }
func (p *Position) IsShort() bool { return p.direction == domain.PositionDirectionShort }

// HasAlerts reports whether any order intents are pending.
func (p *Position) HasAlerts() bool { return len(p.alerts) > 0 }

// HandleCandle sets the current candle and, while the position is open,
// advances the running high/low extrema used for trailing stops.
func (p *Position) HandleCandle(candle domain.Candle) {
	c := candle
	p.candle = &c
	if p.status != domain.PositionStatusOpen {
		return
	}
	if p.highestHigh == nil || candle.High > *p.highestHigh {
		h := candle.High
		p.highestHigh = &h
	}
	if p.lowestLow == nil || candle.Low < *p.lowestLow {
		l := candle.Low
		p.lowestLow = &l
	}
}

// HighestHigh returns the running high extremum observed while open.
func (p *Position) HighestHigh() (float64, bool) {
	if p.highestHigh == nil {
		return 0, false
	}
	return *p.highestHigh, true
}

// LowestLow returns the running low extremum observed while open.
func (p *Position) LowestLow() (float64, bool) {
	if p.lowestLow == nil {
		return 0, false
	}
	return *p.lowestLow, true
}

// Stop returns the current trailing-stop trigger price.
func (p *Position) Stop() (float64, bool) {
	if p.stop == nil {
		return 0, false
	}
	return *p.stop, true
}

func (p *Position) currentCandle() (domain.Candle, error) {
	if p.candle == nil {
		return domain.Candle{}, fmt.Errorf("position %s: %w", p.code, domain.ErrNoCandle)
	}
	return *p.candle, nil
}

func (p *Position) checkOpen() error {
	if p.entry != nil {
		return fmt.Errorf("position %s: %w", p.code, domain.ErrAlreadyOpen)
	}
	return nil
}

func (p *Position) checkClose() error {
	if p.entry == nil {
		return fmt.Errorf("position %s: %w", p.code, domain.ErrNotOpenYet)
	}
	if p.exit != nil {
		return fmt.Errorf("position %s: %w", p.code, domain.ErrAlreadyClosed)
	}
	return nil
}

func (p *Position) addAlert(action domain.TradeAction, price float64, orderType domain.OrderType) error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	p.alerts = append(p.alerts, domain.Signal{
		Type:            domain.SignalTypeAlert,
		Action:          action,
		OrderType:       orderType,
		Price:           price,
		CandleTimestamp: candle.Timestamp,
	})
	return nil
}

func (p *Position) addTrade(action domain.TradeAction, price float64, orderType domain.OrderType) error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	p.trades = append(p.trades, domain.Signal{
		Type:            domain.SignalTypeTrade,
		Action:          action,
		OrderType:       orderType,
		Price:           price,
		CandleTimestamp: candle.Timestamp,
	})
	return nil
}

// BuyAtMarketPrice queues a long entry at market with an explicit price.
func (p *Position) BuyAtMarketPrice(price float64) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionLong, price, domain.OrderTypeMarket)
}

// BuyAtMarket queues a long entry at market using the candle close.
func (p *Position) BuyAtMarket() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.BuyAtMarketPrice(candle.Close)
}

// SellAtMarketPrice queues a long exit at market with an explicit price.
func (p *Position) SellAtMarketPrice(price float64) error {
	if err := p.checkClose(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionCloseLong, price, domain.OrderTypeMarket)
}

// SellAtMarket queues a long exit at market using the candle close.
func (p *Position) SellAtMarket() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.SellAtMarketPrice(candle.Close)
}

// ShortAtMarketPrice queues a short entry at market with an explicit price.
func (p *Position) ShortAtMarketPrice(price float64) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionShort, price, domain.OrderTypeMarket)
}

// ShortAtMarket queues a short entry at market using the candle close.
func (p *Position) ShortAtMarket() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.ShortAtMarketPrice(candle.Close)
}

// CoverAtMarketPrice queues a short exit at market with an explicit price.
func (p *Position) CoverAtMarketPrice(price float64) error {
	if err := p.checkClose(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionCloseShort, price, domain.OrderTypeMarket)
}

// CoverAtMarket queues a short exit at market using the candle close.
func (p *Position) CoverAtMarket() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.CoverAtMarketPrice(candle.Close)
}

// BuyAtStopPrice queues a long entry triggered when price trades at or above
// the given stop.
func (p *Position) BuyAtStopPrice(price float64) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionLong, price, domain.OrderTypeStop)
}

// BuyAtStop queues a long stop entry referenced at the candle open.
func (p *Position) BuyAtStop() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.BuyAtStopPrice(candle.Open)
}

// SellAtStopPrice queues a long exit triggered when price trades at or below
// the given stop.
func (p *Position) SellAtStopPrice(price float64) error {
	if err := p.checkClose(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionCloseLong, price, domain.OrderTypeStop)
}

// SellAtStop queues a long stop exit referenced at the candle open.
func (p *Position) SellAtStop() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.SellAtStopPrice(candle.Open)
}

// SellAtTrailingStopPrice ratchets the trailing stop up to the given
// reference price and queues a long stop exit at the ratcheted level.
func (p *Position) SellAtTrailingStopPrice(price float64) error {
	if err := p.checkClose(); err != nil {
		return err
	}
	if p.stop == nil || price > *p.stop {
		s := price
		p.stop = &s
	}
	return p.addAlert(domain.TradeActionCloseLong, *p.stop, domain.OrderTypeStop)
}

// SellAtTrailingStop ratchets the trailing stop from the candle open.
func (p *Position) SellAtTrailingStop() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.SellAtTrailingStopPrice(candle.Open)
}

// ShortAtStopPrice queues a short entry triggered when price trades at or
// below the given stop.
func (p *Position) ShortAtStopPrice(price float64) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionShort, price, domain.OrderTypeStop)
}

// ShortAtStop queues a short stop entry referenced at the candle open.
func (p *Position) ShortAtStop() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.ShortAtStopPrice(candle.Open)
}

// CoverAtStopPrice queues a short exit triggered when price trades at or
// above the given stop.
func (p *Position) CoverAtStopPrice(price float64) error {
	if err := p.checkClose(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionCloseShort, price, domain.OrderTypeStop)
}

// CoverAtStop queues a short stop exit referenced at the candle open.
func (p *Position) CoverAtStop() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.CoverAtStopPrice(candle.Open)
}

// CoverAtTrailingStopPrice ratchets the trailing stop down to the given
// reference price and queues a short stop exit at the ratcheted level.
func (p *Position) CoverAtTrailingStopPrice(price float64) error {
	if err := p.checkClose(); err != nil {
		return err
	}
	if p.stop == nil || price < *p.stop {
		s := price
		p.stop = &s
	}
	return p.addAlert(domain.TradeActionCloseShort, *p.stop, domain.OrderTypeStop)
}

// CoverAtTrailingStop ratchets the trailing stop from the candle open.
func (p *Position) CoverAtTrailingStop() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.CoverAtTrailingStopPrice(candle.Open)
}

// BuyAtLimitPrice queues a long entry filled when price trades at or below
// the given limit.
func (p *Position) BuyAtLimitPrice(price float64) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionLong, price, domain.OrderTypeLimit)
}

// BuyAtLimit queues a long limit entry referenced at the candle open.
func (p *Position) BuyAtLimit() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.BuyAtLimitPrice(candle.Open)
}

// SellAtLimitPrice queues a long exit filled when price trades at or above
// the given limit.
func (p *Position) SellAtLimitPrice(price float64) error {
	if err := p.checkClose(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionCloseLong, price, domain.OrderTypeLimit)
}

// SellAtLimit queues a long limit exit referenced at the candle open.
func (p *Position) SellAtLimit() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.SellAtLimitPrice(candle.Open)
}

// ShortAtLimitPrice queues a short entry filled when price trades at or above
// the given limit.
func (p *Position) ShortAtLimitPrice(price float64) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionShort, price, domain.OrderTypeLimit)
}

// ShortAtLimit queues a short limit entry referenced at the candle open.
func (p *Position) ShortAtLimit() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.ShortAtLimitPrice(candle.Open)
}

// CoverAtLimitPrice queues a short exit filled when price trades at or below
// the given limit.
func (p *Position) CoverAtLimitPrice(price float64) error {
	if err := p.checkClose(); err != nil {
		return err
	}
	return p.addAlert(domain.TradeActionCloseShort, price, domain.OrderTypeLimit)
}

// CoverAtLimit queues a short limit exit referenced at the candle open.
func (p *Position) CoverAtLimit() error {
	candle, err := p.currentCandle()
	if err != nil {
		return err
	}
	return p.CoverAtLimitPrice(candle.Open)
}

// CheckAlerts evaluates pending alerts in insertion order against the current
// candle. The first alert that fills applies its open/close transition and
// clears every remaining alert: only one order can execute against a single
// candle.
func (p *Position) CheckAlerts() error {
	pending := make([]domain.Signal, len(p.alerts))
	copy(pending, p.alerts)
	for _, alert := range pending {
		filled, err := p.checkAlert(alert)
		if err != nil {
			return err
		}
		if filled {
			p.ClearAlerts()
			return nil
		}
	}
	return nil
}

func (p *Position) checkAlert(alert domain.Signal) (bool, error) {
	var (
		fillPrice float64
		filled    bool
		err       error
	)
	switch alert.OrderType {
	case domain.OrderTypeMarket:
		fillPrice, filled, err = p.marketFill(alert)
	case domain.OrderTypeStop:
		fillPrice, filled, err = p.stopFill(alert)
	case domain.OrderTypeLimit:
		fillPrice, filled, err = p.limitFill(alert)
	default:
		return false, fmt.Errorf("order type %q: %w", alert.OrderType, domain.ErrInvalidEnumValue)
	}
	if err != nil || !filled {
		return false, err
	}

	fill := alert
	fill.Price = fillPrice
	if fill.Action.IsEntry() {
		return true, p.Open(fill)
	}
	return true, p.Close(fill)
}

// marketFill always fills. Live fills use the candle close clamped toward the
// alert price; backtest fills use the candle open, simulating next-bar-open
// execution.
func (p *Position) marketFill(alert domain.Signal) (float64, bool, error) {
	candle, err := p.currentCandle()
	if err != nil {
		return 0, false, err
	}
	if p.backtest {
		return candle.Open, true, nil
	}
	if alert.Action.BuySide() {
		return max(candle.Close, alert.Price), true, nil
	}
	return min(candle.Close, alert.Price), true, nil
}

// stopFill triggers when price touches the stop: high for buy-side, low for
// sell-side alerts.
func (p *Position) stopFill(alert domain.Signal) (float64, bool, error) {
	candle, err := p.currentCandle()
	if err != nil {
		return 0, false, err
	}
	reference := candle.Close
	if p.backtest {
		reference = candle.Open
	}
	if alert.Action.BuySide() {
		if candle.High >= alert.Price {
			return max(reference, alert.Price), true, nil
		}
		return 0, false, nil
	}
	if candle.Low <= alert.Price {
		return min(reference, alert.Price), true, nil
	}
	return 0, false, nil
}

// limitFill triggers with the opposite touch direction of stopFill, and
// clamps with the opposite polarity.
func (p *Position) limitFill(alert domain.Signal) (float64, bool, error) {
	candle, err := p.currentCandle()
	if err != nil {
		return 0, false, err
	}
	reference := candle.Close
	if p.backtest {
		reference = candle.Open
	}
	if alert.Action.BuySide() {
		if candle.Low <= alert.Price {
			return min(reference, alert.Price), true, nil
		}
		return 0, false, nil
	}
	if candle.High >= alert.Price {
		return max(reference, alert.Price), true, nil
	}
	return 0, false, nil
}

func (p *Position) transitionDate() (time.Time, error) {
	if p.backtest {
		candle, err := p.currentCandle()
		if err != nil {
			return time.Time{}, err
		}
		return candle.Timestamp, nil
	}
	return p.clock(), nil
}

// Open applies the entry transition for a validated fill signal. The position
// direction is derived from the entry action.
func (p *Position) Open(signal domain.Signal) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	switch signal.Action {
	case domain.TradeActionLong:
		p.direction = domain.PositionDirectionLong
	case domain.TradeActionShort:
		p.direction = domain.PositionDirectionShort
	default:
		return fmt.Errorf("entry action %q: %w", signal.Action, domain.ErrInvalidTransition)
	}
	date, err := p.transitionDate()
	if err != nil {
		return err
	}
	p.status = domain.PositionStatusOpen
	p.entry = &TradeInfo{
		Price:           signal.Price,
		Date:            date,
		OrderType:       signal.OrderType,
		Action:          signal.Action,
		CandleTimestamp: signal.CandleTimestamp,
	}
	return p.addTrade(signal.Action, signal.Price, signal.OrderType)
}

// Close applies the exit transition for a validated fill signal.
func (p *Position) Close(signal domain.Signal) error {
	if err := p.checkClose(); err != nil {
		return err
	}
	if signal.Action.IsEntry() {
		return fmt.Errorf("exit action %q: %w", signal.Action, domain.ErrInvalidTransition)
	}
	date, err := p.transitionDate()
	if err != nil {
		return err
	}
	p.status = domain.PositionStatusClosed
	p.exit = &TradeInfo{
		Price:           signal.Price,
		Date:            date,
		OrderType:       signal.OrderType,
		Action:          signal.Action,
		CandleTimestamp: signal.CandleTimestamp,
	}
	return p.addTrade(signal.Action, signal.Price, signal.OrderType)
}

// ClearAlerts drops every pending alert.
func (p *Position) ClearAlerts() { p.alerts = nil }

// ClearTrades drops recorded trades. Trades are events since the last
// snapshot, not a permanent ledger; the caller's event store keeps history.
func (p *Position) ClearTrades() { p.trades = nil }

// AlertsState projects pending alerts into wire form.
func (p *Position) AlertsState() []domain.SignalState {
	states := make([]domain.SignalState, 0, len(p.alerts))
	for _, alert := range p.alerts {
		states = append(states, alert.State())
	}
	return states
}

// TradesState projects recorded trades into wire form.
func (p *Position) TradesState() []domain.SignalState {
	states := make([]domain.SignalState, 0, len(p.trades))
	for _, trade := range p.trades {
		states = append(states, trade.State())
	}
	return states
}

func (p *Position) signalEvent(signal domain.Signal) domain.SignalEvent {
	timestamp := p.clock()
	if p.backtest {
		timestamp = signal.CandleTimestamp
	}
	return domain.SignalEvent{
		ID:               uuid.New().String(),
		Timestamp:        timestamp.Format(domain.TimeLayout),
		PositionID:       p.id.String(),
		PositionPrefix:   p.prefix,
		PositionCode:     p.code,
		PositionParentID: p.parentID,
		SignalType:       string(signal.Type),
		Action:           string(signal.Action),
		OrderType:        string(signal.OrderType),
		Price:            signal.Price,
		CandleTimestamp:  signal.CandleTimestamp.Format(domain.TimeLayout),
	}
}

// AlertEvents projects pending alerts into flat event records with fresh ids.
func (p *Position) AlertEvents() []domain.SignalEvent {
	events := make([]domain.SignalEvent, 0, len(p.alerts))
	for _, alert := range p.alerts {
		events = append(events, p.signalEvent(alert))
	}
	return events
}

// TradeEvents projects recorded trades into flat event records with fresh ids.
func (p *Position) TradeEvents() []domain.SignalEvent {
	events := make([]domain.SignalEvent, 0, len(p.trades))
	for _, trade := range p.trades {
		events = append(events, p.signalEvent(trade))
	}
	return events
}
