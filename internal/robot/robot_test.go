package robot

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tradeforge/robotengine/internal/domain"
	"github.com/tradeforge/robotengine/internal/robot/strategy"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testSettings() Settings {
	return Settings{
		RobotID:   "robot-test",
		Exchange:  "binance",
		Asset:     "BTC",
		Currency:  "USDT",
		Timeframe: 60,
		Backtest:  true,
	}
}

func series(values ...float64) []domain.Candle {
	candles := make([]domain.Candle, len(values))
	for i, v := range values {
		tm := int64(i+1) * 3_600_000
		candles[i] = domain.Candle{
			Time:      tm,
			Timestamp: time.UnixMilli(tm).UTC(),
			Timeframe: 60,
			Open:      v,
			High:      v + 1,
			Low:       v - 1,
			Close:     v,
			Volume:    10,
		}
	}
	return candles
}

func newTestRobot(t *testing.T) *Robot {
	t.Helper()
	strat, err := strategy.New(strategy.Settings{
		Type:      strategy.TypeT2TrendFriend,
		Exchange:  "binance",
		Asset:     "BTC",
		Currency:  "USDT",
		Timeframe: 60,
		Backtest:  true,
	}, []byte(`{"sma1":2,"sma2":3,"sma3":4,"minBarsToHold":1}`), nil, discardLogger)
	if err != nil {
		t.Fatalf("strategy.New: %v", err)
	}
	bot, err := New(testSettings(), domain.RobotState{}, strat, discardLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return bot
}

func TestRobot_RunRejectsEmptyBatch(t *testing.T) {
	bot := newTestRobot(t)
	if _, err := bot.Run(nil); !errors.Is(err, domain.ErrEmptyCandleBatch) {
		t.Errorf("Run(nil): err = %v, want ErrEmptyCandleBatch", err)
	}
}

func TestRobot_FullCycleOpensPosition(t *testing.T) {
	bot := newTestRobot(t)
	candles := series(10, 11, 12, 13, 14, 15, 16)

	snap, err := bot.Run(candles)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Entry signal on the stacked uptrend, filled by the same cycle's alert
	// check at the latest bar's open.
	if len(snap.State.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(snap.State.Positions))
	}
	pos := snap.State.Positions[0]
	if pos.Code != "p_1" {
		t.Errorf("code = %q, want p_1", pos.Code)
	}
	if pos.Status != "open" {
		t.Errorf("status = %q, want open", pos.Status)
	}
	if pos.Direction != "long" {
		t.Errorf("direction = %q, want long", pos.Direction)
	}
	if pos.EntryPrice == nil || *pos.EntryPrice != 16 {
		t.Errorf("entry price = %v, want 16 (bar open)", pos.EntryPrice)
	}
	if len(snap.Trades) != 1 {
		t.Errorf("trades = %d, want 1", len(snap.Trades))
	}
}

func TestRobot_ExitAndPrune(t *testing.T) {
	bot := newTestRobot(t)
	if _, err := bot.Run(series(10, 11, 12, 13, 14, 15, 16)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A collapsing bar: close drops below the fast SMA, the hold counter is
	// already past the minimum, so the cycle queues and fills a market exit.
	weak := domain.Candle{
		Time:      8 * 3_600_000,
		Timestamp: time.UnixMilli(8 * 3_600_000).UTC(),
		Timeframe: 60,
		Open:      14, High: 14.5, Low: 12, Close: 12.5,
		Volume: 10,
	}
	snap, err := bot.Run([]domain.Candle{weak})
	if err != nil {
		t.Fatalf("Run (exit): %v", err)
	}
	if len(snap.State.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(snap.State.Positions))
	}
	pos := snap.State.Positions[0]
	if pos.Status != "closed" {
		t.Fatalf("status = %q, want closed", pos.Status)
	}
	if pos.ExitPrice == nil || *pos.ExitPrice != 14 {
		t.Errorf("exit price = %v, want 14 (bar open)", pos.ExitPrice)
	}

	// The check phase on the next bar prunes the closed position and clears
	// reported trades.
	next := weak
	next.Time = 9 * 3_600_000
	next.Timestamp = time.UnixMilli(next.Time).UTC()
	checkSnap, err := bot.Check(next)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(checkSnap.State.Positions) != 0 {
		t.Errorf("positions after prune = %d, want 0", len(checkSnap.State.Positions))
	}
	if len(checkSnap.Trades) != 0 {
		t.Errorf("trades after clear = %d, want 0", len(checkSnap.Trades))
	}
	if bot.HasAlerts() {
		t.Error("alerts pending after flat exit")
	}
}

func TestRobot_IngestSkipsStaleAndTrimsWindow(t *testing.T) {
	settings := testSettings()
	settings.MaxBars = 5
	strat, err := strategy.New(strategy.Settings{
		Type:     strategy.TypeT2TrendFriend,
		Backtest: true,
	}, []byte(`{"sma1":2,"sma2":3,"sma3":4,"minBarsToHold":1}`), nil, discardLogger)
	if err != nil {
		t.Fatalf("strategy.New: %v", err)
	}
	bot, err := New(settings, domain.RobotState{}, strat, discardLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	candles := series(10, 11, 12, 13, 14, 15, 16)
	if _, err := bot.Run(candles); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(bot.candles); got != 5 {
		t.Errorf("window = %d candles, want max 5", got)
	}

	// Replaying an old candle must not grow the window.
	if _, err := bot.Run(candles[:3]); err != nil {
		t.Fatalf("Run replay: %v", err)
	}
	if got := len(bot.candles); got != 5 {
		t.Errorf("window after replay = %d candles, want 5", got)
	}
	if bot.candles[len(bot.candles)-1].Time != candles[len(candles)-1].Time {
		t.Error("window tail changed on stale replay")
	}
}

func TestRobot_ResumesFromPersistedState(t *testing.T) {
	bot := newTestRobot(t)
	if _, err := bot.Run(series(10, 11, 12, 13, 14, 15, 16)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	state := bot.State()
	stratState, err := bot.StrategyState()
	if err != nil {
		t.Fatalf("StrategyState: %v", err)
	}

	strat, err := strategy.New(strategy.Settings{
		Type:     strategy.TypeT2TrendFriend,
		Backtest: true,
	}, []byte(`{"sma1":2,"sma2":3,"sma3":4,"minBarsToHold":1}`), stratState, discardLogger)
	if err != nil {
		t.Fatalf("strategy.New resumed: %v", err)
	}
	resumed, err := New(testSettings(), state, strat, discardLogger)
	if err != nil {
		t.Fatalf("New resumed: %v", err)
	}

	got := resumed.State()
	if got.PositionLastNum != state.PositionLastNum {
		t.Errorf("lastNum = %d, want %d", got.PositionLastNum, state.PositionLastNum)
	}
	if len(got.Positions) != len(state.Positions) {
		t.Fatalf("positions = %d, want %d", len(got.Positions), len(state.Positions))
	}
	if got.Positions[0].Code != state.Positions[0].Code {
		t.Errorf("code = %q, want %q", got.Positions[0].Code, state.Positions[0].Code)
	}
}
