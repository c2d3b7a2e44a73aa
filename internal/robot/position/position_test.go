package position

import (
	"errors"
	"testing"
	"time"

	"github.com/tradeforge/robotengine/internal/domain"
)

var testClock domain.Clock = func() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func candleAt(tm int64, open, high, low, close float64) domain.Candle {
	return domain.Candle{
		Time:      tm,
		Timestamp: time.UnixMilli(tm).UTC(),
		Timeframe: 60,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    1000,
	}
}

// openLong drives a position through a market entry fill.
func openLong(t *testing.T, p *Position, candle domain.Candle) {
	t.Helper()
	p.HandleCandle(candle)
	if err := p.BuyAtMarket(); err != nil {
		t.Fatalf("BuyAtMarket: %v", err)
	}
	if err := p.CheckAlerts(); err != nil {
		t.Fatalf("CheckAlerts: %v", err)
	}
	if p.Status() != domain.PositionStatusOpen {
		t.Fatalf("status = %q, want open", p.Status())
	}
}

func TestPosition_BacktestMarketFillsAtOpen(t *testing.T) {
	p := New("p", "p_1", "", nil, true, testClock)
	p.HandleCandle(candleAt(1000, 95, 96, 94, 95))
	if err := p.BuyAtMarket(); err != nil {
		t.Fatalf("BuyAtMarket: %v", err)
	}

	// Alert fills against the next bar at its open.
	next := candleAt(2000, 100, 101, 99, 100.5)
	p.HandleCandle(next)
	if err := p.CheckAlerts(); err != nil {
		t.Fatalf("CheckAlerts: %v", err)
	}

	if p.Status() != domain.PositionStatusOpen {
		t.Fatalf("status = %q, want open", p.Status())
	}
	if p.Direction() != domain.PositionDirectionLong {
		t.Errorf("direction = %q, want long", p.Direction())
	}
	entry := p.Entry()
	if entry == nil {
		t.Fatal("entry not recorded")
	}
	if entry.Price != 100 {
		t.Errorf("entry price = %v, want 100 (bar open)", entry.Price)
	}
	if !entry.Date.Equal(next.Timestamp) {
		t.Errorf("entry date = %v, want candle timestamp %v", entry.Date, next.Timestamp)
	}
	if len(p.Alerts()) != 0 {
		t.Errorf("alerts not cleared after fill: %d left", len(p.Alerts()))
	}
	if len(p.Trades()) != 1 {
		t.Fatalf("trades = %d, want 1", len(p.Trades()))
	}
	if p.Trades()[0].Type != domain.SignalTypeTrade {
		t.Errorf("trade signal type = %q, want trade", p.Trades()[0].Type)
	}
}

func TestPosition_ShortEntrySetsDirection(t *testing.T) {
	p := New("p", "p_1", "", nil, true, testClock)
	p.HandleCandle(candleAt(1000, 100, 101, 99, 100))
	if err := p.ShortAtMarket(); err != nil {
		t.Fatalf("ShortAtMarket: %v", err)
	}
	if err := p.CheckAlerts(); err != nil {
		t.Fatalf("CheckAlerts: %v", err)
	}
	if p.Direction() != domain.PositionDirectionShort {
		t.Errorf("direction = %q, want short", p.Direction())
	}
	if !p.IsShort() {
		t.Error("IsShort() = false after short entry")
	}
}

func TestPosition_LiveMarketClampsTowardAlertPrice(t *testing.T) {
	cases := []struct {
		name  string
		alert float64
		close float64
		want  float64
		short bool
	}{
		{name: "buy pays at least alert", alert: 102, close: 100, want: 102},
		{name: "buy takes higher close", alert: 98, close: 100, want: 100},
		{name: "sell receives at most alert", alert: 97, close: 100, want: 97, short: true},
		{name: "sell takes lower close", alert: 100, close: 99, want: 99, short: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := New("p", "p_1", "", nil, false, testClock)
			p.HandleCandle(candleAt(1000, tc.close, tc.close+1, tc.close-1, tc.close))
			var err error
			if tc.short {
				err = p.ShortAtMarketPrice(tc.alert)
			} else {
				err = p.BuyAtMarketPrice(tc.alert)
			}
			if err != nil {
				t.Fatalf("queue alert: %v", err)
			}
			if err := p.CheckAlerts(); err != nil {
				t.Fatalf("CheckAlerts: %v", err)
			}
			if got := p.Entry().Price; got != tc.want {
				t.Errorf("fill price = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPosition_EntryGuards(t *testing.T) {
	p := New("p", "p_1", "", nil, true, testClock)
	candle := candleAt(1000, 100, 101, 99, 100)

	// No candle seen yet.
	if err := p.BuyAtMarket(); !errors.Is(err, domain.ErrNoCandle) {
		t.Errorf("BuyAtMarket without candle: err = %v, want ErrNoCandle", err)
	}

	// Exit before entry.
	p.HandleCandle(candle)
	if err := p.SellAtMarket(); !errors.Is(err, domain.ErrNotOpenYet) {
		t.Errorf("SellAtMarket on new position: err = %v, want ErrNotOpenYet", err)
	}

	openLong(t, p, candle)

	// Second entry on open position.
	if err := p.BuyAtMarket(); !errors.Is(err, domain.ErrAlreadyOpen) {
		t.Errorf("BuyAtMarket on open position: err = %v, want ErrAlreadyOpen", err)
	}
	if err := p.ShortAtStopPrice(90); !errors.Is(err, domain.ErrAlreadyOpen) {
		t.Errorf("ShortAtStopPrice on open position: err = %v, want ErrAlreadyOpen", err)
	}

	// Close, then exit again.
	if err := p.SellAtMarket(); err != nil {
		t.Fatalf("SellAtMarket: %v", err)
	}
	if err := p.CheckAlerts(); err != nil {
		t.Fatalf("CheckAlerts: %v", err)
	}
	if p.Status() != domain.PositionStatusClosed {
		t.Fatalf("status = %q, want closed", p.Status())
	}
	if err := p.SellAtMarket(); !errors.Is(err, domain.ErrAlreadyClosed) {
		t.Errorf("SellAtMarket on closed position: err = %v, want ErrAlreadyClosed", err)
	}
}

func TestPosition_OpenRejectsExitAction(t *testing.T) {
	p := New("p", "p_1", "", nil, true, testClock)
	p.HandleCandle(candleAt(1000, 100, 101, 99, 100))
	err := p.Open(domain.Signal{
		Type:            domain.SignalTypeTrade,
		Action:          domain.TradeActionCloseLong,
		OrderType:       domain.OrderTypeMarket,
		Price:           100,
		CandleTimestamp: time.UnixMilli(1000).UTC(),
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Open with closeLong: err = %v, want ErrInvalidTransition", err)
	}
}

func TestPosition_TrailingStopRatchetsMonotonically(t *testing.T) {
	p := New("p", "p_1", "", nil, true, testClock)
	openLong(t, p, candleAt(1000, 100, 101, 99, 100))

	// References 105, 110, 108: the stop never moves back down.
	steps := []struct {
		ref  float64
		want float64
	}{
		{105, 105},
		{110, 110},
		{108, 110},
	}
	for _, step := range steps {
		if err := p.SellAtTrailingStopPrice(step.ref); err != nil {
			t.Fatalf("SellAtTrailingStopPrice(%v): %v", step.ref, err)
		}
		stop, ok := p.Stop()
		if !ok {
			t.Fatal("stop not set")
		}
		if stop != step.want {
			t.Errorf("after ref %v: stop = %v, want %v", step.ref, stop, step.want)
		}
	}
}

func TestPosition_CoverTrailingStopRatchetsDown(t *testing.T) {
	p := New("p", "p_1", "", nil, true, testClock)
	p.HandleCandle(candleAt(1000, 100, 101, 99, 100))
	if err := p.ShortAtMarket(); err != nil {
		t.Fatalf("ShortAtMarket: %v", err)
	}
	if err := p.CheckAlerts(); err != nil {
		t.Fatalf("CheckAlerts: %v", err)
	}

	steps := []struct {
		ref  float64
		want float64
	}{
		{95, 95},
		{90, 90},
		{93, 90},
	}
	for _, step := range steps {
		if err := p.CoverAtTrailingStopPrice(step.ref); err != nil {
			t.Fatalf("CoverAtTrailingStopPrice(%v): %v", step.ref, err)
		}
		stop, _ := p.Stop()
		if stop != step.want {
			t.Errorf("after ref %v: stop = %v, want %v", step.ref, stop, step.want)
		}
	}
}

func TestPosition_StopAndLimitTouchComplementary(t *testing.T) {
	// Same candle, same trigger price: a buy stop fires on the high touching
	// from below, a buy limit fires on the low touching from above.
	candle := candleAt(2000, 100, 104, 97, 102)

	t.Run("buy stop fires on high touch", func(t *testing.T) {
		p := New("p", "p_1", "", nil, true, testClock)
		p.HandleCandle(candleAt(1000, 100, 101, 99, 100))
		if err := p.BuyAtStopPrice(103); err != nil {
			t.Fatalf("BuyAtStopPrice: %v", err)
		}
		p.HandleCandle(candle)
		if err := p.CheckAlerts(); err != nil {
			t.Fatalf("CheckAlerts: %v", err)
		}
		if p.Status() != domain.PositionStatusOpen {
			t.Fatalf("status = %q, want open (high 104 >= stop 103)", p.Status())
		}
		// Backtest reference is the open, clamped up to the stop.
		if got := p.Entry().Price; got != 103 {
			t.Errorf("fill price = %v, want 103", got)
		}
	})

	t.Run("buy stop above high stays pending", func(t *testing.T) {
		p := New("p", "p_1", "", nil, true, testClock)
		p.HandleCandle(candleAt(1000, 100, 101, 99, 100))
		if err := p.BuyAtStopPrice(105); err != nil {
			t.Fatalf("BuyAtStopPrice: %v", err)
		}
		p.HandleCandle(candle)
		if err := p.CheckAlerts(); err != nil {
			t.Fatalf("CheckAlerts: %v", err)
		}
		if p.Status() != domain.PositionStatusNew {
			t.Fatalf("status = %q, want new (high 104 < stop 105)", p.Status())
		}
		if len(p.Alerts()) != 1 {
			t.Errorf("unfilled alert dropped: %d alerts", len(p.Alerts()))
		}
	})

	t.Run("buy limit fires on low touch", func(t *testing.T) {
		p := New("p", "p_1", "", nil, true, testClock)
		p.HandleCandle(candleAt(1000, 100, 101, 99, 100))
		if err := p.BuyAtLimitPrice(98); err != nil {
			t.Fatalf("BuyAtLimitPrice: %v", err)
		}
		p.HandleCandle(candle)
		if err := p.CheckAlerts(); err != nil {
			t.Fatalf("CheckAlerts: %v", err)
		}
		if p.Status() != domain.PositionStatusOpen {
			t.Fatalf("status = %q, want open (low 97 <= limit 98)", p.Status())
		}
		// Backtest reference is the open, clamped down to the limit.
		if got := p.Entry().Price; got != 98 {
			t.Errorf("fill price = %v, want 98", got)
		}
	})

	t.Run("sell stop fires on low touch", func(t *testing.T) {
		p := New("p", "p_1", "", nil, true, testClock)
		openLong(t, p, candleAt(1000, 100, 101, 99, 100))
		if err := p.SellAtStopPrice(98); err != nil {
			t.Fatalf("SellAtStopPrice: %v", err)
		}
		p.HandleCandle(candle)
		if err := p.CheckAlerts(); err != nil {
			t.Fatalf("CheckAlerts: %v", err)
		}
		if p.Status() != domain.PositionStatusClosed {
			t.Fatalf("status = %q, want closed (low 97 <= stop 98)", p.Status())
		}
		if got := p.Exit().Price; got != 98 {
			t.Errorf("fill price = %v, want 98", got)
		}
	})
}

func TestPosition_FirstFillWinsAndClearsRest(t *testing.T) {
	p := New("p", "p_1", "", nil, true, testClock)
	p.HandleCandle(candleAt(1000, 100, 101, 99, 100))

	// Two entry intents queued; both would trigger against the next candle.
	if err := p.BuyAtStopPrice(101); err != nil {
		t.Fatalf("BuyAtStopPrice: %v", err)
	}
	if err := p.BuyAtLimitPrice(99); err != nil {
		t.Fatalf("BuyAtLimitPrice: %v", err)
	}

	p.HandleCandle(candleAt(2000, 100, 102, 98, 101))
	if err := p.CheckAlerts(); err != nil {
		t.Fatalf("CheckAlerts: %v", err)
	}

	if len(p.Trades()) != 1 {
		t.Fatalf("trades = %d, want exactly 1 fill per candle", len(p.Trades()))
	}
	// Insertion order: the stop queued first wins.
	if got := p.Entry().OrderType; got != domain.OrderTypeStop {
		t.Errorf("filled order type = %q, want stop", got)
	}
	if len(p.Alerts()) != 0 {
		t.Errorf("remaining alerts = %d, want 0", len(p.Alerts()))
	}
}

func TestPosition_LiveTransitionDateUsesClock(t *testing.T) {
	p := New("p", "p_1", "", nil, false, testClock)
	openLong(t, p, candleAt(1000, 100, 101, 99, 100))
	if got, want := p.Entry().Date, testClock(); !got.Equal(want) {
		t.Errorf("entry date = %v, want clock time %v", got, want)
	}
}

func TestPosition_StateRoundTrip(t *testing.T) {
	p := New("p", "p_3", "parent-1", nil, true, testClock)
	openLong(t, p, candleAt(1000, 100, 106, 99, 105))
	if err := p.SellAtTrailingStopPrice(104); err != nil {
		t.Fatalf("SellAtTrailingStopPrice: %v", err)
	}

	state := p.State()
	if state.Status != "open" {
		t.Fatalf("state status = %q, want open", state.Status)
	}
	if state.EntryStatus != "closed" {
		t.Errorf("entry sub-status = %q, want closed", state.EntryStatus)
	}
	if state.ExitStatus != "" {
		t.Errorf("exit sub-status = %q, want empty", state.ExitStatus)
	}

	restored, err := FromState(state, nil, true, testClock)
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}
	if restored.Code() != "p_3" || restored.ParentID() != "parent-1" {
		t.Errorf("identity = %s/%s, want p_3/parent-1", restored.Code(), restored.ParentID())
	}
	if restored.Status() != domain.PositionStatusOpen {
		t.Errorf("status = %q, want open", restored.Status())
	}
	if restored.Direction() != domain.PositionDirectionLong {
		t.Errorf("direction = %q, want long", restored.Direction())
	}
	if restored.Entry() == nil || restored.Entry().Price != p.Entry().Price {
		t.Error("entry record not restored")
	}
	if len(restored.Alerts()) != 1 {
		t.Errorf("alerts restored = %d, want 1", len(restored.Alerts()))
	}
	// Trades are events since the last snapshot; they do not survive a
	// round trip.
	if len(restored.Trades()) != 0 {
		t.Errorf("trades restored = %d, want 0", len(restored.Trades()))
	}
	stop, ok := restored.Stop()
	if !ok || stop != 104 {
		t.Errorf("trailing stop restored = %v (%v), want 104", stop, ok)
	}
}

func TestPosition_ExtremaTrackedOnlyWhileOpen(t *testing.T) {
	p := New("p", "p_1", "", nil, true, testClock)
	p.HandleCandle(candleAt(1000, 100, 120, 80, 100))
	if _, ok := p.HighestHigh(); ok {
		t.Error("extrema tracked before open")
	}

	openLong(t, p, candleAt(2000, 100, 103, 98, 100))
	p.HandleCandle(candleAt(3000, 100, 110, 95, 100))

	high, _ := p.HighestHigh()
	low, _ := p.LowestLow()
	if high != 110 {
		t.Errorf("highest high = %v, want 110", high)
	}
	if low != 95 {
		t.Errorf("lowest low = %v, want 95", low)
	}
}

func TestPosition_BacktestEventTimestampsFromCandle(t *testing.T) {
	p := New("p", "p_1", "", nil, true, testClock)
	candle := candleAt(1000, 100, 101, 99, 100)
	openLong(t, p, candle)

	events := p.TradeEvents()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	want := candle.Timestamp.Format(domain.TimeLayout)
	if events[0].Timestamp != want {
		t.Errorf("event timestamp = %q, want candle timestamp %q", events[0].Timestamp, want)
	}
	if events[0].PositionCode != "p_1" {
		t.Errorf("event position code = %q, want p_1", events[0].PositionCode)
	}
	// Every projection mints a fresh event id.
	again := p.TradeEvents()
	if events[0].ID == again[0].ID {
		t.Error("event ids should differ between projections")
	}
}
