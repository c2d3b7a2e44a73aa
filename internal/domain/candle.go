// Package domain defines the core value types shared across the robot engine:
// candles, signals, position records and the enums that describe them.
package domain

import "time"

// TimeLayout is the wire format for all serialized timestamps.
const TimeLayout = time.RFC3339Nano

// Candle is a single OHLCV bar. Indicators is an optional side channel of
// externally computed indicator values attached to the bar, keyed by
// indicator name; it is carried through untouched.
type Candle struct {
	Time       int64              `json:"time"` // unix milliseconds
	Timestamp  time.Time          `json:"timestamp"`
	Timeframe  int                `json:"timeframe"` // minutes
	Open       float64            `json:"open"`
	High       float64            `json:"high"`
	Low        float64            `json:"low"`
	Close      float64            `json:"close"`
	Volume     float64            `json:"volume"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Clock supplies the current wall-clock time. It is injected anywhere the
// engine stamps real time so that backtests and tests stay deterministic.
type Clock func() time.Time

// SystemClock is the production Clock.
func SystemClock() time.Time { return time.Now().UTC() }
