// Package strategy defines the trading strategy contract and the strategy
// family. A strategy recomputes its indicators from the candle window and
// then issues order intents on positions through the manager.
package strategy

import (
	"fmt"
	"log/slog"

	"github.com/tradeforge/robotengine/internal/domain"
	"github.com/tradeforge/robotengine/internal/robot/position"
)

// Type identifies a member of the strategy family.
type Type string

const (
	TypeBreakout        Type = "breakout"
	TypeBreakoutV2      Type = "breakoutV2"
	TypeChannels        Type = "channels"
	TypeCounterCandle   Type = "counterCandle"
	TypeDoubleReverseMM Type = "doubleReverseMM"
	TypeFxCash          Type = "fxCash"
	TypeIRSTS           Type = "irsts"
	TypeParabolic       Type = "parabolic"
	TypeT2TrendFriend   Type = "t2TrendFriend"
	TypeTrendlineLong   Type = "trendlineLong"
	TypeTrendlineShort  Type = "trendlineShort"
)

var allTypes = []Type{
	TypeBreakout, TypeBreakoutV2, TypeChannels, TypeCounterCandle,
	TypeDoubleReverseMM, TypeFxCash, TypeIRSTS, TypeParabolic,
	TypeT2TrendFriend, TypeTrendlineLong, TypeTrendlineShort,
}

// ParseType converts a wire token into a strategy Type.
func ParseType(s string) (Type, error) {
	for _, t := range allTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("strategy type %q: %w", s, domain.ErrInvalidEnumValue)
}

// Settings identify what a strategy trades and how.
type Settings struct {
	Type      Type
	Exchange  string
	Asset     string
	Currency  string
	Timeframe int
	Backtest  bool
}

// Strategy is the contract the robot driver runs: recompute indicators from
// the candle window, then evaluate entry/exit rules against the latest
// candle, issuing alerts on positions via the manager.
type Strategy interface {
	Type() Type
	CalcIndicators(candles []domain.Candle) error
	Check(mgr *position.Manager, candle domain.Candle) error
	// State returns the strategy's persistable state as JSON.
	State() ([]byte, error)
}

// Factory builds a strategy from settings, JSON-encoded parameters and a
// JSON-encoded prior state (nil for a fresh run).
type Factory func(settings Settings, params, state []byte, logger *slog.Logger) (Strategy, error)

// Only t2TrendFriend carries real logic today. The remaining family members
// are declared types without a factory and resolve to an explicit
// not-implemented error, never a silent no-op.
var factories = map[Type]Factory{
	TypeT2TrendFriend: NewT2TrendFriend,
}

// New constructs the strategy for settings.Type.
func New(settings Settings, params, state []byte, logger *slog.Logger) (Strategy, error) {
	factory, ok := factories[settings.Type]
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", settings.Type, domain.ErrStrategyNotImplemented)
	}
	return factory(settings, params, state, logger)
}
