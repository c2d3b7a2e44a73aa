package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/tradeforge/robotengine/internal/domain"
)

// Sweep runs one backtest per parameter set over the same candle series,
// fanning out across CPUs. Each run gets its own robot, so the runs share
// nothing mutable. Results come back in parameter-set order.
func Sweep(ctx context.Context, base Config, paramSets []json.RawMessage, candles []domain.Candle, logger *slog.Logger) ([]Report, error) {
	if len(paramSets) == 0 {
		return nil, fmt.Errorf("backtest sweep: no parameter sets")
	}
	reports := make([]Report, len(paramSets))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i, params := range paramSets {
		group.Go(func() error {
			cfg := base
			cfg.Params = params
			cfg.Settings.RobotID = fmt.Sprintf("%s-sweep-%d", base.Settings.RobotID, i+1)
			report, err := NewRunner(cfg, logger).Run(ctx, candles)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Best returns the report with the highest net profit.
func Best(reports []Report) (Report, error) {
	if len(reports) == 0 {
		return Report{}, fmt.Errorf("backtest sweep: no reports")
	}
	best := reports[0]
	for _, report := range reports[1:] {
		if report.NetProfit > best.NetProfit {
			best = report
		}
	}
	return best, nil
}
