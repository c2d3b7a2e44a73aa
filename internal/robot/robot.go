// Package robot implements the per-candle strategy driver: it feeds candles
// to the indicators and the position manager, evaluates strategy rules and
// resolves pending alerts into fills.
package robot

import (
	"fmt"
	"log/slog"

	"github.com/tradeforge/robotengine/internal/domain"
	"github.com/tradeforge/robotengine/internal/robot/position"
	"github.com/tradeforge/robotengine/internal/robot/strategy"
)

// DefaultMaxBars bounds the rolling candle window when settings leave it
// unset. It must cover the largest indicator period (300).
const DefaultMaxBars = 300

// Settings identify one robot run.
type Settings struct {
	RobotID   string
	Exchange  string
	Asset     string
	Currency  string
	Timeframe int
	Backtest  bool
	MaxBars   int
}

// Snapshot is the caller-facing result of a run or check cycle.
type Snapshot struct {
	State  domain.RobotState
	Alerts []domain.SignalState
	Trades []domain.SignalState
}

// Robot orchestrates one strategy run. One robot is mutated by one driver
// goroutine; independent robots share nothing mutable.
type Robot struct {
	settings Settings
	strategy strategy.Strategy
	manager  *position.Manager
	candles  []domain.Candle
	logger   *slog.Logger
}

// Option configures a Robot.
type Option func(*options)

type options struct {
	clock  domain.Clock
	strict bool
}

// WithClock injects the wall-clock source for live-mode timestamps.
func WithClock(clock domain.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithStrictActive enables strict active-position checks on the manager.
func WithStrictActive() Option {
	return func(o *options) { o.strict = true }
}

// New builds a robot from settings, a persisted position-set snapshot and an
// already constructed strategy.
func New(settings Settings, state domain.RobotState, strat strategy.Strategy, logger *slog.Logger, opts ...Option) (*Robot, error) {
	if settings.MaxBars <= 0 {
		settings.MaxBars = DefaultMaxBars
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	managerOpts := []position.ManagerOption{}
	if o.clock != nil {
		managerOpts = append(managerOpts, position.WithClock(o.clock))
	}
	if o.strict {
		managerOpts = append(managerOpts, position.WithStrictActive())
	}
	manager, err := position.NewManager(state.Positions, state.PositionLastNum, settings.Backtest, managerOpts...)
	if err != nil {
		return nil, fmt.Errorf("robot %s: %w", settings.RobotID, err)
	}
	return &Robot{
		settings: settings,
		strategy: strat,
		manager:  manager,
		logger:   logger.With(slog.String("component", "robot"), slog.String("robot_id", settings.RobotID)),
	}, nil
}

// Manager exposes the position manager for rule evaluation and tests.
func (r *Robot) Manager() *position.Manager { return r.manager }

// ingest appends candles newer than the window tail and trims the window to
// the configured max bars.
func (r *Robot) ingest(candles []domain.Candle) {
	for _, candle := range candles {
		if n := len(r.candles); n > 0 && candle.Time <= r.candles[n-1].Time {
			continue
		}
		r.candles = append(r.candles, candle)
	}
	if overflow := len(r.candles) - r.settings.MaxBars; overflow > 0 {
		r.candles = append([]domain.Candle(nil), r.candles[overflow:]...)
	}
}

// Run executes one full strategy cycle over the given candle batch: ingest,
// recompute indicators, broadcast the latest candle, evaluate rules, resolve
// alerts. The first failing phase aborts the cycle; state from the phases
// that already completed is preserved for the next candle.
func (r *Robot) Run(candles []domain.Candle) (Snapshot, error) {
	if len(candles) == 0 {
		return Snapshot{}, fmt.Errorf("robot %s: %w", r.settings.RobotID, domain.ErrEmptyCandleBatch)
	}
	r.ingest(candles)
	latest := r.candles[len(r.candles)-1]

	if err := r.strategy.CalcIndicators(r.candles); err != nil {
		return Snapshot{}, fmt.Errorf("robot %s indicators: %w", r.settings.RobotID, err)
	}
	r.manager.HandleCandle(latest)
	if err := r.strategy.Check(r.manager, latest); err != nil {
		return Snapshot{}, fmt.Errorf("robot %s rules: %w", r.settings.RobotID, err)
	}
	if err := r.manager.CheckAlerts(); err != nil {
		return Snapshot{}, fmt.Errorf("robot %s alerts: %w", r.settings.RobotID, err)
	}
	return r.snapshot(), nil
}

// Check re-resolves pending alerts against a new candle without re-running
// the strategy rules: it prunes closed positions, clears reported trades,
// broadcasts the candle and checks alerts. This models intrabar order-fill
// checking between strategy evaluations.
func (r *Robot) Check(candle domain.Candle) (Snapshot, error) {
	r.manager.ClearClosedPositions()
	r.manager.ClearTrades()
	r.ingest([]domain.Candle{candle})
	r.manager.HandleCandle(candle)
	if err := r.manager.CheckAlerts(); err != nil {
		return Snapshot{}, fmt.Errorf("robot %s alerts: %w", r.settings.RobotID, err)
	}
	return r.snapshot(), nil
}

func (r *Robot) snapshot() Snapshot {
	return Snapshot{
		State:  r.manager.State(),
		Alerts: r.manager.AlertsState(),
		Trades: r.manager.TradesState(),
	}
}

// State returns the persisted position-set snapshot.
func (r *Robot) State() domain.RobotState { return r.manager.State() }

// StrategyState returns the strategy's persistable state as JSON.
func (r *Robot) StrategyState() ([]byte, error) { return r.strategy.State() }

// HasAlerts reports whether any position holds a pending order intent.
func (r *Robot) HasAlerts() bool { return r.manager.HasAlerts() }

// AlertEvents projects pending alerts into flat event records.
func (r *Robot) AlertEvents() []domain.SignalEvent { return r.manager.AlertEvents() }

// TradeEvents projects recorded fills into flat event records.
func (r *Robot) TradeEvents() []domain.SignalEvent { return r.manager.TradeEvents() }
