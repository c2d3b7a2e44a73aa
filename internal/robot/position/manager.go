package position

import (
	"fmt"

	"github.com/tradeforge/robotengine/internal/domain"
)

// DefaultPrefix tags the single "active" trading slot. Other prefixes denote
// auxiliary positions such as partial hedges.
const DefaultPrefix = "p"

// Manager owns every position of one strategy run. It creates positions with
// monotonically sequenced codes, broadcasts candles, resolves alerts and
// aggregates state across positions. Iteration always follows creation order
// so projections are reproducible.
type Manager struct {
	positions map[string]*Position
	order     []string
	lastNum   int
	candle    *domain.Candle
	backtest  bool
	clock     domain.Clock

	// strictActive makes the prefix-membership checks additionally require
	// is-active status. The original engine matched on prefix alone, which
	// counts a closed-but-unpruned "p" position as active; that behavior is
	// kept as the default.
	strictActive bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock injects the wall-clock source used by owned positions.
func WithClock(clock domain.Clock) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

// WithStrictActive makes HasActivePosition require active status in addition
// to prefix membership.
func WithStrictActive() ManagerOption {
	return func(m *Manager) { m.strictActive = true }
}

// NewManager builds a manager, rehydrating any persisted positions and
// seeding the sequence counter. The counter never decreases and codes are
// never reused.
func NewManager(states []domain.PositionState, lastNum int, backtest bool, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		positions: make(map[string]*Position, len(states)),
		lastNum:   lastNum,
		backtest:  backtest,
		clock:     domain.SystemClock,
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, state := range states {
		p, err := FromState(state, nil, backtest, m.clock)
		if err != nil {
			return nil, fmt.Errorf("rehydrate position %s: %w", state.Code, err)
		}
		if _, ok := m.positions[p.code]; ok {
			return nil, fmt.Errorf("position code %s: %w", p.code, domain.ErrAlreadyExists)
		}
		m.positions[p.code] = p
		m.order = append(m.order, p.code)
	}
	return m, nil
}

// LastPositionNum returns the current value of the sequence counter.
func (m *Manager) LastPositionNum() int { return m.lastNum }

// HandleCandle broadcasts the candle to every owned position.
func (m *Manager) HandleCandle(candle domain.Candle) {
	c := candle
	m.candle = &c
	for _, code := range m.order {
		m.positions[code].HandleCandle(candle)
	}
}

// Create inserts a new position under the given prefix (DefaultPrefix when
// empty) and returns it. A code collision cannot happen while the sequence
// counter is monotonic; if it does, the seeded state was corrupt.
func (m *Manager) Create(prefix, parentID string) (*Position, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	m.lastNum++
	code := fmt.Sprintf("%s_%d", prefix, m.lastNum)
	if _, ok := m.positions[code]; ok {
		return nil, fmt.Errorf("position code %s: %w", code, domain.ErrAlreadyExists)
	}
	p := New(prefix, code, parentID, m.candle, m.backtest, m.clock)
	m.positions[code] = p
	m.order = append(m.order, code)
	return p, nil
}

// HasActivePosition reports whether a position occupies the default slot.
func (m *Manager) HasActivePosition() bool {
	return m.HasActivePositionPrefix(DefaultPrefix)
}

// HasActivePositionPrefix reports whether a position with the given prefix
// exists. See the strictActive note on Manager.
func (m *Manager) HasActivePositionPrefix(prefix string) bool {
	for _, code := range m.order {
		p := m.positions[code]
		if p.prefix != prefix {
			continue
		}
		if !m.strictActive || p.IsActive() {
			return true
		}
	}
	return false
}

// GetActivePosition returns the position holding the default slot: prefix
// DefaultPrefix with status new or open. The strategy driver keeps at most
// one such position.
func (m *Manager) GetActivePosition() (*Position, error) {
	for _, code := range m.order {
		p := m.positions[code]
		if p.prefix == DefaultPrefix && p.IsActive() {
			return p, nil
		}
	}
	return nil, domain.ErrNoActivePosition
}

// Get returns the position with the given code.
func (m *Manager) Get(code string) (*Position, error) {
	p, ok := m.positions[code]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", code, domain.ErrNotFound)
	}
	return p, nil
}

// CheckAlerts resolves pending alerts on every position, failing fast on the
// first error. Each position's resolution is independent, so fills applied
// before a failure stand.
func (m *Manager) CheckAlerts() error {
	for _, code := range m.order {
		if err := m.positions[code].CheckAlerts(); err != nil {
			return err
		}
	}
	return nil
}

// ClearClosedPositions removes every closed position. This is the only path
// that destroys a position.
func (m *Manager) ClearClosedPositions() {
	kept := m.order[:0]
	for _, code := range m.order {
		if m.positions[code].Status() == domain.PositionStatusClosed {
			delete(m.positions, code)
			continue
		}
		kept = append(kept, code)
	}
	m.order = kept
}

// ClearAlerts drops pending alerts on every position.
func (m *Manager) ClearAlerts() {
	for _, code := range m.order {
		m.positions[code].ClearAlerts()
	}
}

// ClearTrades drops recorded trades on every position. Called after each
// reporting cycle once trade events have been handed off.
func (m *Manager) ClearTrades() {
	for _, code := range m.order {
		m.positions[code].ClearTrades()
	}
}

// HasAlerts reports whether any position has pending alerts.
func (m *Manager) HasAlerts() bool {
	for _, code := range m.order {
		if m.positions[code].HasAlerts() {
			return true
		}
	}
	return false
}

// PositionsState snapshots every position in creation order.
func (m *Manager) PositionsState() []domain.PositionState {
	states := make([]domain.PositionState, 0, len(m.order))
	for _, code := range m.order {
		states = append(states, m.positions[code].State())
	}
	return states
}

// State snapshots the full manager: sequence counter plus positions.
func (m *Manager) State() domain.RobotState {
	return domain.RobotState{
		PositionLastNum: m.lastNum,
		Positions:       m.PositionsState(),
	}
}

// AlertsState aggregates pending alerts across positions in creation order.
func (m *Manager) AlertsState() []domain.SignalState {
	var alerts []domain.SignalState
	for _, code := range m.order {
		alerts = append(alerts, m.positions[code].AlertsState()...)
	}
	return alerts
}

// TradesState aggregates recorded trades across positions in creation order.
func (m *Manager) TradesState() []domain.SignalState {
	var trades []domain.SignalState
	for _, code := range m.order {
		trades = append(trades, m.positions[code].TradesState()...)
	}
	return trades
}

// AlertEvents aggregates alert events across positions in creation order.
func (m *Manager) AlertEvents() []domain.SignalEvent {
	var events []domain.SignalEvent
	for _, code := range m.order {
		events = append(events, m.positions[code].AlertEvents()...)
	}
	return events
}

// TradeEvents aggregates trade events across positions in creation order.
func (m *Manager) TradeEvents() []domain.SignalEvent {
	var events []domain.SignalEvent
	for _, code := range m.order {
		events = append(events, m.positions[code].TradeEvents()...)
	}
	return events
}
