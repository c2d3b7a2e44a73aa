// Package indicator provides the rolling technical indicators consumed by
// strategies. Indicators are deterministic: the same candle sequence applied
// to the same prior state always yields the same value.
package indicator

import (
	"fmt"

	"github.com/tradeforge/robotengine/internal/domain"
)

// Indicator is the contract strategies consume: batch or incremental candle
// input, last computed value out.
type Indicator interface {
	Calc(candles []domain.Candle) (float64, bool, error)
	Update(candle domain.Candle)
	Result() (Result, bool)
}

// Result is the persistable indicator state: the last value and the candle
// time it was computed at. Candles at or before Time are ignored on resume.
type Result struct {
	Value float64 `json:"result"`
	Time  int64   `json:"time"`
}

// SMA is a rolling arithmetic mean over closing prices.
type SMA struct {
	period int
	window []float64
	idx    int
	count  int
	sum    float64
	result *Result
}

// NewSMA creates an SMA over the given period, optionally resuming from a
// prior result. A resumed window is primed with the prior value, matching the
// original engine's warm-start behavior.
func NewSMA(period int, prior *Result) (*SMA, error) {
	if period < 1 {
		return nil, fmt.Errorf("sma period %d: must be positive", period)
	}
	s := &SMA{
		period: period,
		window: make([]float64, period),
	}
	if prior != nil {
		for i := range s.window {
			s.window[i] = prior.Value
		}
		s.count = period
		s.sum = prior.Value * float64(period)
		r := *prior
		s.result = &r
	}
	return s, nil
}

// Update feeds one candle. Candles at or before the last computed time are
// ignored so replayed batches cannot double-count.
func (s *SMA) Update(candle domain.Candle) {
	if s.result != nil && candle.Time <= s.result.Time {
		return
	}
	if s.count == s.period {
		s.sum -= s.window[s.idx]
	} else {
		s.count++
	}
	s.window[s.idx] = candle.Close
	s.sum += candle.Close
	s.idx = (s.idx + 1) % s.period
	if s.count == s.period {
		s.result = &Result{Value: s.sum / float64(s.period), Time: candle.Time}
	}
}

// Calc feeds a batch of candles and returns the resulting value. The second
// return is false while fewer than period candles have been observed.
func (s *SMA) Calc(candles []domain.Candle) (float64, bool, error) {
	if len(candles) == 0 {
		return 0, false, domain.ErrEmptyCandleBatch
	}
	for _, candle := range candles {
		s.Update(candle)
	}
	if s.result == nil {
		return 0, false, nil
	}
	return s.result.Value, true, nil
}

// Result returns the last computed value and its candle time.
func (s *SMA) Result() (Result, bool) {
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Ready reports whether a full window has been observed.
func (s *SMA) Ready() bool { return s.result != nil }
