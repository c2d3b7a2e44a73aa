package strategy

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tradeforge/robotengine/internal/domain"
	"github.com/tradeforge/robotengine/internal/robot/indicator"
	"github.com/tradeforge/robotengine/internal/robot/position"
)

// T2TrendFriendParams configure the triple-SMA trend-following strategy.
type T2TrendFriendParams struct {
	SMA1          int `json:"sma1"`
	SMA2          int `json:"sma2"`
	SMA3          int `json:"sma3"`
	MinBarsToHold int `json:"minBarsToHold"`
}

// Validate enforces the parameter bounds of the original schema.
func (p T2TrendFriendParams) Validate() error {
	for name, period := range map[string]int{"sma1": p.SMA1, "sma2": p.SMA2, "sma3": p.SMA3} {
		if period < 1 || period > 300 {
			return fmt.Errorf("t2TrendFriend %s window %d: out of range 1..300", name, period)
		}
	}
	if p.MinBarsToHold < 1 || p.MinBarsToHold > 100 {
		return fmt.Errorf("t2TrendFriend minBarsToHold %d: out of range 1..100", p.MinBarsToHold)
	}
	return nil
}

// T2TrendFriendState is the persistable strategy state: the three SMA
// snapshots plus the bars-held counter.
type T2TrendFriendState struct {
	SMA1Result *indicator.Result `json:"sma1Result"`
	SMA2Result *indicator.Result `json:"sma2Result"`
	SMA3Result *indicator.Result `json:"sma3Result"`
	HeldBars   int               `json:"heldBars"`
}

// T2TrendFriend enters long when the close sits above a stacked fast>mid>slow
// SMA alignment and exits at market once the close drops below the fast SMA
// after a minimum holding period.
type T2TrendFriend struct {
	settings Settings
	params   T2TrendFriendParams
	state    T2TrendFriendState
	sma1     *indicator.SMA
	sma2     *indicator.SMA
	sma3     *indicator.SMA
	logger   *slog.Logger
}

// NewT2TrendFriend builds the strategy, validating params and rehydrating
// indicator state when a prior state is supplied.
func NewT2TrendFriend(settings Settings, params, state []byte, logger *slog.Logger) (Strategy, error) {
	var p T2TrendFriendParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("t2TrendFriend params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var st T2TrendFriendState
	if len(state) > 0 {
		if err := json.Unmarshal(state, &st); err != nil {
			return nil, fmt.Errorf("t2TrendFriend state: %w", err)
		}
	}

	sma1, err := indicator.NewSMA(p.SMA1, st.SMA1Result)
	if err != nil {
		return nil, err
	}
	sma2, err := indicator.NewSMA(p.SMA2, st.SMA2Result)
	if err != nil {
		return nil, err
	}
	sma3, err := indicator.NewSMA(p.SMA3, st.SMA3Result)
	if err != nil {
		return nil, err
	}

	return &T2TrendFriend{
		settings: settings,
		params:   p,
		state:    st,
		sma1:     sma1,
		sma2:     sma2,
		sma3:     sma3,
		logger:   logger.With(slog.String("component", "strategy"), slog.String("strategy", string(TypeT2TrendFriend))),
	}, nil
}

func (s *T2TrendFriend) Type() Type { return TypeT2TrendFriend }

// CalcIndicators recomputes the three SMAs. The instances share no mutable
// state and read the same candle slice, so they are fanned out and joined
// before rule evaluation.
func (s *T2TrendFriend) CalcIndicators(candles []domain.Candle) error {
	var g errgroup.Group
	for _, sma := range []*indicator.SMA{s.sma1, s.sma2, s.sma3} {
		g.Go(func() error {
			_, _, err := sma.Calc(candles)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("calc indicators: %w", err)
	}
	s.state.SMA1Result = resultPtr(s.sma1)
	s.state.SMA2Result = resultPtr(s.sma2)
	s.state.SMA3Result = resultPtr(s.sma3)
	return nil
}

func resultPtr(sma *indicator.SMA) *indicator.Result {
	r, ok := sma.Result()
	if !ok {
		return nil
	}
	return &r
}

// Check evaluates the entry/exit rules against the latest candle.
func (s *T2TrendFriend) Check(mgr *position.Manager, candle domain.Candle) error {
	if s.state.SMA1Result == nil || s.state.SMA2Result == nil || s.state.SMA3Result == nil {
		return nil
	}
	sma1 := s.state.SMA1Result.Value
	sma2 := s.state.SMA2Result.Value
	sma3 := s.state.SMA3Result.Value

	if mgr.HasActivePosition() {
		pos, err := mgr.GetActivePosition()
		if err != nil {
			return err
		}
		if pos.IsLong() {
			s.state.HeldBars++
			if candle.Close < sma1 && s.state.HeldBars > s.params.MinBarsToHold {
				s.state.HeldBars = 0
				s.logger.Debug("exit signal",
					slog.Float64("close", candle.Close),
					slog.Float64("sma1", sma1),
				)
				return pos.SellAtMarket()
			}
		}
		return nil
	}

	if candle.Close > sma1 && sma1 > sma2 && sma1 > sma3 && sma2 > sma3 {
		s.state.HeldBars = 1
		pos, err := mgr.Create("", "")
		if err != nil {
			return err
		}
		s.logger.Debug("entry signal",
			slog.Float64("close", candle.Close),
			slog.Float64("sma1", sma1),
			slog.Float64("sma2", sma2),
			slog.Float64("sma3", sma3),
		)
		return pos.BuyAtMarket()
	}
	return nil
}

// State serializes the strategy state for persistence.
func (s *T2TrendFriend) State() ([]byte, error) {
	data, err := json.Marshal(s.state)
	if err != nil {
		return nil, fmt.Errorf("t2TrendFriend state: %w", err)
	}
	return data, nil
}
