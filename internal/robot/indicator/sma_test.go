package indicator

import (
	"errors"
	"testing"
	"time"

	"github.com/tradeforge/robotengine/internal/domain"
)

func closes(start int64, values ...float64) []domain.Candle {
	candles := make([]domain.Candle, len(values))
	for i, v := range values {
		tm := start + int64(i)*60_000
		candles[i] = domain.Candle{
			Time:      tm,
			Timestamp: time.UnixMilli(tm).UTC(),
			Timeframe: 60,
			Open:      v,
			High:      v,
			Low:       v,
			Close:     v,
			Volume:    1,
		}
	}
	return candles
}

func TestSMA_RollingMean(t *testing.T) {
	s, err := NewSMA(10, nil)
	if err != nil {
		t.Fatalf("NewSMA: %v", err)
	}

	candles := closes(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	value, ok, err := s.Calc(candles[:10])
	if err != nil {
		t.Fatalf("Calc: %v", err)
	}
	if !ok {
		t.Fatal("Calc not ready after a full window")
	}
	if value != 5.5 {
		t.Errorf("SMA(1..10) = %v, want 5.5", value)
	}

	// Next close 20 drops the 1: (2+..+10+20)/10.
	s.Update(closes(600_000, 20)[0])
	result, ok := s.Result()
	if !ok {
		t.Fatal("Result not ready")
	}
	if result.Value != 7.4 {
		t.Errorf("next SMA = %v, want 7.4", result.Value)
	}
}

func TestSMA_NotReadyBeforeFullWindow(t *testing.T) {
	s, err := NewSMA(5, nil)
	if err != nil {
		t.Fatalf("NewSMA: %v", err)
	}
	_, ok, err := s.Calc(closes(0, 1, 2, 3))
	if err != nil {
		t.Fatalf("Calc: %v", err)
	}
	if ok {
		t.Error("ready with 3 of 5 candles")
	}
	if s.Ready() {
		t.Error("Ready() = true with a partial window")
	}
}

func TestSMA_EmptyBatch(t *testing.T) {
	s, _ := NewSMA(3, nil)
	if _, _, err := s.Calc(nil); !errors.Is(err, domain.ErrEmptyCandleBatch) {
		t.Errorf("Calc(nil): err = %v, want ErrEmptyCandleBatch", err)
	}
}

func TestSMA_SkipsReplayedCandles(t *testing.T) {
	s, _ := NewSMA(3, nil)
	candles := closes(0, 1, 2, 3)
	if _, _, err := s.Calc(candles); err != nil {
		t.Fatalf("Calc: %v", err)
	}
	before, _ := s.Result()

	// Replaying the same batch must not shift the window.
	if _, _, err := s.Calc(candles); err != nil {
		t.Fatalf("Calc replay: %v", err)
	}
	after, _ := s.Result()
	if before != after {
		t.Errorf("replay changed result: %+v -> %+v", before, after)
	}
}

func TestSMA_ResumePrimesWindow(t *testing.T) {
	prior := &Result{Value: 4, Time: 120_000}
	s, err := NewSMA(3, prior)
	if err != nil {
		t.Fatalf("NewSMA: %v", err)
	}
	result, ok := s.Result()
	if !ok || result != *prior {
		t.Fatalf("resumed result = %+v (%v), want %+v", result, ok, *prior)
	}

	// One new close of 10 against a window primed at 4: (4+4+10)/3.
	s.Update(closes(180_000, 10)[0])
	result, _ = s.Result()
	if result.Value != 6 {
		t.Errorf("resumed SMA = %v, want 6", result.Value)
	}

	// Candles at or before the prior time are ignored.
	s2, _ := NewSMA(3, prior)
	s2.Update(closes(120_000, 99)[0])
	result, _ = s2.Result()
	if result.Value != 4 {
		t.Errorf("stale candle shifted resumed SMA to %v", result.Value)
	}
}

func TestSMA_RejectsNonPositivePeriod(t *testing.T) {
	if _, err := NewSMA(0, nil); err == nil {
		t.Error("NewSMA(0) accepted")
	}
}
