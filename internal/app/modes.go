package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tradeforge/robotengine/internal/backtest"
	"github.com/tradeforge/robotengine/internal/domain"
	"github.com/tradeforge/robotengine/internal/feed"
	"github.com/tradeforge/robotengine/internal/robot"
	"github.com/tradeforge/robotengine/internal/robot/strategy"
	"github.com/tradeforge/robotengine/internal/server"
	"github.com/tradeforge/robotengine/internal/server/handler"
)

// feedBuffer bounds the candle channel between the feed and the driver.
const feedBuffer = 64

func (a *App) robotSettings() robot.Settings {
	return robot.Settings{
		RobotID:   a.cfg.Robot.ID,
		Exchange:  a.cfg.Robot.Exchange,
		Asset:     a.cfg.Robot.Asset,
		Currency:  a.cfg.Robot.Currency,
		Timeframe: a.cfg.Robot.Timeframe,
		MaxBars:   a.cfg.Robot.MaxBars,
	}
}

func (a *App) strategyType() (strategy.Type, error) {
	return strategy.ParseType(a.cfg.Strategy.Name)
}

// BacktestMode replays the configured CSV candle series through the strategy
// and writes a JSON report per run. With a parameter sweep configured it runs
// one backtest per parameter set and reports the most profitable one.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	stratType, err := a.strategyType()
	if err != nil {
		return err
	}
	candles, err := feed.LoadCandlesCSV(a.cfg.Backtest.CandlesPath)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}
	a.logger.InfoContext(ctx, "candles loaded",
		slog.String("path", a.cfg.Backtest.CandlesPath),
		slog.Int("count", len(candles)),
	)

	settings := a.robotSettings()
	settings.Backtest = true
	base := backtest.Config{Settings: settings, Strategy: stratType}

	var reports []backtest.Report
	if len(a.cfg.Strategy.Sweep) > 0 {
		paramSets := make([]json.RawMessage, len(a.cfg.Strategy.Sweep))
		for i, set := range a.cfg.Strategy.Sweep {
			raw, err := json.Marshal(set)
			if err != nil {
				return fmt.Errorf("backtest mode: encode sweep params: %w", err)
			}
			paramSets[i] = raw
		}
		reports, err = backtest.Sweep(ctx, base, paramSets, candles, a.logger)
		if err != nil {
			return err
		}
		best, err := backtest.Best(reports)
		if err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "sweep finished",
			slog.Int("runs", len(reports)),
			slog.String("best_robot_id", best.RobotID),
			slog.Float64("best_net_profit", best.NetProfit),
		)
	} else {
		params, err := json.Marshal(a.cfg.Strategy.Params)
		if err != nil {
			return fmt.Errorf("backtest mode: encode params: %w", err)
		}
		base.Params = params
		report, err := backtest.NewRunner(base, a.logger).Run(ctx, candles)
		if err != nil {
			return err
		}
		reports = []backtest.Report{report}
	}

	for _, report := range reports {
		if err := a.writeReport(ctx, deps, report); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) writeReport(ctx context.Context, deps *Dependencies, report backtest.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("backtest mode: encode report: %w", err)
	}
	if dir := a.cfg.Backtest.ReportDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("backtest mode: %w", err)
		}
		name := fmt.Sprintf("%s-%s.json", report.RobotID, report.FinishedAt.Format("20060102T150405Z"))
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("backtest mode: %w", err)
		}
		a.logger.InfoContext(ctx, "report written", slog.String("path", path))
	}
	if deps.Archiver != nil {
		key, err := deps.Archiver.ArchiveReport(ctx, report.RobotID, report.FinishedAt, report)
		if err != nil {
			return fmt.Errorf("backtest mode: %w", err)
		}
		a.logger.InfoContext(ctx, "report archived", slog.String("key", key))
	}
	return nil
}

// LiveMode streams candles from the websocket feed through the strategy,
// persisting state and publishing fills after every cycle. With serve set it
// also exposes the operator HTTP API.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies, serve bool) error {
	stratType, err := a.strategyType()
	if err != nil {
		return err
	}
	params, err := json.Marshal(a.cfg.Strategy.Params)
	if err != nil {
		return fmt.Errorf("live mode: encode params: %w", err)
	}

	robotID := a.cfg.Robot.ID
	priorState, err := deps.StateStore.LoadState(ctx, robotID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("live mode: load state: %w", err)
	}
	priorStratState, err := deps.StateStore.LoadStrategyState(ctx, robotID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("live mode: load strategy state: %w", err)
	}

	strat, err := strategy.New(strategy.Settings{
		Type:      stratType,
		Exchange:  a.cfg.Robot.Exchange,
		Asset:     a.cfg.Robot.Asset,
		Currency:  a.cfg.Robot.Currency,
		Timeframe: a.cfg.Robot.Timeframe,
	}, params, priorStratState, a.logger)
	if err != nil {
		return fmt.Errorf("live mode: %w", err)
	}

	var opts []robot.Option
	if a.cfg.Robot.StrictActive {
		opts = append(opts, robot.WithStrictActive())
	}
	bot, err := robot.New(a.robotSettings(), priorState, strat, a.logger, opts...)
	if err != nil {
		return fmt.Errorf("live mode: %w", err)
	}

	snap := newSnapshotter(a.cfg.Mode, robotID, stratType, a.robotSettings())
	candles := make(chan domain.Candle, feedBuffer)
	wsFeed := feed.NewWSFeed(a.cfg.Feed.WsURL, a.logger)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return wsFeed.Run(ctx, candles)
	})
	group.Go(func() error {
		return a.drive(ctx, deps, bot, candles, snap)
	})
	if serve {
		srv := server.New(server.Config{
			Addr:   a.cfg.Server.Addr,
			APIKey: a.cfg.Server.APIKey,
		}, snap, deps.Registry, a.logger)
		group.Go(srv.Start)
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return group.Wait()
}

// drive is the live driver loop: for every completed candle it first
// re-checks pending alerts (fills from intents issued on the previous
// candle), then runs the full strategy cycle, and persists and publishes the
// outcome of both phases.
func (a *App) drive(ctx context.Context, deps *Dependencies, bot *robot.Robot, candles <-chan domain.Candle, snap *snapshotter) error {
	robotID := a.cfg.Robot.ID
	started := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case candle, ok := <-candles:
			if !ok {
				return nil
			}
			published := 0
			if started {
				if _, err := bot.Check(candle); err != nil {
					deps.Metrics.RunErrors.Inc()
					return err
				}
				checkTrades := bot.TradeEvents()
				if err := a.publishTrades(ctx, deps, robotID, checkTrades); err != nil {
					return err
				}
				published = len(checkTrades)
			}
			result, err := bot.Run([]domain.Candle{candle})
			if err != nil {
				deps.Metrics.RunErrors.Inc()
				return err
			}
			started = true
			trades := bot.TradeEvents()
			if err := a.publishTrades(ctx, deps, robotID, trades[published:]); err != nil {
				return err
			}
			if err := a.persist(ctx, deps, bot, robotID); err != nil {
				return err
			}

			deps.Metrics.CandlesProcessed.Inc()
			deps.Metrics.AlertsPending.Set(float64(len(result.Alerts)))
			deps.Metrics.OpenPositions.Set(float64(countActive(result.State)))
			snap.update(bot, result)
		}
	}
}

func (a *App) publishTrades(ctx context.Context, deps *Dependencies, robotID string, events []domain.SignalEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, event := range events {
		deps.Metrics.TradesFilled.WithLabelValues(event.Action).Inc()
	}
	if err := deps.EventStore.AppendEvents(ctx, robotID, events); err != nil {
		return fmt.Errorf("live mode: store events: %w", err)
	}
	if err := deps.SignalBus.PublishEvents(ctx, robotID, events); err != nil {
		return fmt.Errorf("live mode: publish events: %w", err)
	}
	if err := deps.Notifier.NotifyTrades(ctx, robotID, events); err != nil {
		a.logger.WarnContext(ctx, "trade notification failed", slog.String("error", err.Error()))
	}
	return nil
}

func (a *App) persist(ctx context.Context, deps *Dependencies, bot *robot.Robot, robotID string) error {
	state := bot.State()
	if err := deps.StateStore.SaveState(ctx, robotID, state); err != nil {
		return fmt.Errorf("live mode: save state: %w", err)
	}
	stratState, err := bot.StrategyState()
	if err != nil {
		return fmt.Errorf("live mode: strategy state: %w", err)
	}
	if err := deps.StateStore.SaveStrategyState(ctx, robotID, stratState); err != nil {
		return fmt.Errorf("live mode: save strategy state: %w", err)
	}
	if err := deps.StateCache.Set(ctx, robotID, state); err != nil {
		a.logger.WarnContext(ctx, "state cache update failed", slog.String("error", err.Error()))
	}
	return nil
}

func countActive(state domain.RobotState) int {
	n := 0
	for _, pos := range state.Positions {
		if pos.Status != string(domain.PositionStatusClosed) {
			n++
		}
	}
	return n
}

// snapshotter holds the latest driver snapshot for the HTTP handlers. The
// driver goroutine writes, handler goroutines read.
type snapshotter struct {
	mu      sync.RWMutex
	status  handler.Status
	state   domain.RobotState
	alerts  []domain.SignalEvent
	trades  []domain.SignalEvent
	candles int
}

func newSnapshotter(mode, robotID string, stratType strategy.Type, settings robot.Settings) *snapshotter {
	return &snapshotter{
		status: handler.Status{
			RobotID:   robotID,
			Mode:      mode,
			Strategy:  string(stratType),
			Exchange:  settings.Exchange,
			Asset:     settings.Asset,
			Currency:  settings.Currency,
			Timeframe: settings.Timeframe,
		},
	}
}

func (s *snapshotter) update(bot *robot.Robot, result robot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles++
	s.status.Candles = s.candles
	s.status.HasAlerts = bot.HasAlerts()
	s.state = result.State
	s.alerts = bot.AlertEvents()
	s.trades = bot.TradeEvents()
}

func (s *snapshotter) Status() handler.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *snapshotter) State() domain.RobotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *snapshotter) Alerts() []domain.SignalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SignalEvent(nil), s.alerts...)
}

func (s *snapshotter) Trades() []domain.SignalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SignalEvent(nil), s.trades...)
}
