// Package backtest replays historical candles through the robot driver and
// summarizes the simulated fills into a report.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradeforge/robotengine/internal/domain"
	"github.com/tradeforge/robotengine/internal/robot"
	"github.com/tradeforge/robotengine/internal/robot/strategy"
)

// Config describes one backtest run.
type Config struct {
	Settings robot.Settings
	Strategy strategy.Type
	// Params is the strategy parameter payload, JSON-encoded.
	Params json.RawMessage
}

// Report summarizes one completed backtest.
type Report struct {
	RobotID    string            `json:"robotId"`
	Strategy   strategy.Type     `json:"strategy"`
	Params     json.RawMessage   `json:"params"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Candles    int               `json:"candles"`
	Trades     []domain.SignalEvent `json:"trades"`
	Closed     int               `json:"closedPositions"`
	Winning    int               `json:"winningPositions"`
	NetProfit  float64           `json:"netProfit"`
	FinalState domain.RobotState `json:"finalState"`
}

// Runner drives one robot over a candle series.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// NewRunner builds a backtest runner. The settings are forced into backtest
// mode regardless of what the caller passed.
func NewRunner(cfg Config, logger *slog.Logger) *Runner {
	cfg.Settings.Backtest = true
	return &Runner{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "backtest"), slog.String("robot_id", cfg.Settings.RobotID)),
	}
}

// Run replays candles in order. For every candle after the first it first
// re-checks pending alerts, so intents issued on candle i fill against candle
// i+1, then runs the full strategy cycle. Fills are accumulated before the
// check phase clears them.
func (r *Runner) Run(ctx context.Context, candles []domain.Candle) (Report, error) {
	if len(candles) == 0 {
		return Report{}, fmt.Errorf("backtest %s: %w", r.cfg.Settings.RobotID, domain.ErrEmptyCandleBatch)
	}
	settings := strategy.Settings{
		Type:      r.cfg.Strategy,
		Exchange:  r.cfg.Settings.Exchange,
		Asset:     r.cfg.Settings.Asset,
		Currency:  r.cfg.Settings.Currency,
		Timeframe: r.cfg.Settings.Timeframe,
		Backtest:  true,
	}
	strat, err := strategy.New(settings, r.cfg.Params, nil, r.logger)
	if err != nil {
		return Report{}, fmt.Errorf("backtest %s: %w", r.cfg.Settings.RobotID, err)
	}
	bot, err := robot.New(r.cfg.Settings, domain.RobotState{}, strat, r.logger)
	if err != nil {
		return Report{}, fmt.Errorf("backtest %s: %w", r.cfg.Settings.RobotID, err)
	}

	report := Report{
		RobotID:   r.cfg.Settings.RobotID,
		Strategy:  r.cfg.Strategy,
		Params:    r.cfg.Params,
		StartedAt: time.Now().UTC(),
		Candles:   len(candles),
	}
	counted := make(map[string]bool)

	for i, candle := range candles {
		if err := ctx.Err(); err != nil {
			return Report{}, fmt.Errorf("backtest %s: %w", r.cfg.Settings.RobotID, err)
		}
		if i > 0 {
			if _, err := bot.Check(candle); err != nil {
				return Report{}, err
			}
		}
		snap, err := bot.Run([]domain.Candle{candle})
		if err != nil {
			return Report{}, err
		}
		report.Trades = append(report.Trades, bot.TradeEvents()...)
		settle(&report, snap.State, counted)
	}

	report.FinalState = bot.State()
	report.FinishedAt = time.Now().UTC()
	r.logger.Info("backtest finished",
		slog.Int("candles", report.Candles),
		slog.Int("closed_positions", report.Closed),
		slog.Float64("net_profit", report.NetProfit))
	return report, nil
}

// settle folds newly closed positions into the report's profit tallies.
func settle(report *Report, state domain.RobotState, counted map[string]bool) {
	for _, pos := range state.Positions {
		if pos.Status != string(domain.PositionStatusClosed) || counted[pos.Code] {
			continue
		}
		counted[pos.Code] = true
		if pos.EntryPrice == nil || pos.ExitPrice == nil {
			continue
		}
		profit := *pos.ExitPrice - *pos.EntryPrice
		if pos.Direction == string(domain.PositionDirectionShort) {
			profit = -profit
		}
		report.NetProfit += profit
		report.Closed++
		if profit > 0 {
			report.Winning++
		}
	}
}
