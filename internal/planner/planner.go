// Package planner estimates how a grid configuration would have behaved over
// historical candles. It replays closing prices through the same ladder math
// the live engine uses; it does not simulate an order book, so the numbers
// are an estimate of round-trip frequency, not a backtest.
package planner

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"weex-grid-bot-go/internal/downloader"
	"weex-grid-bot-go/internal/grid"
	"weex-grid-bot-go/internal/models"
)

// Result summarizes one replay.
type Result struct {
	Symbol    string
	Direction models.Direction
	GridCount int

	Start   time.Time
	End     time.Time
	Candles int

	InitialPrice float64
	FinalPrice   float64
	FinalLower   float64
	FinalUpper   float64

	Rebuilds        int
	RoundTrips      int
	EstimatedProfit float64 // sum of size * step over completed round trips
}

// Run replays candle closes against the ladder. A rung counts as filled when
// the close crosses its price, and as a completed round trip when the close
// later crosses the next rung in the profitable direction.
func Run(cfg *models.Config, candles []downloader.Candle, tickSize float64, logger *zap.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles to replay")
	}

	first := candles[0].Close
	lower, upper, prices, err := grid.ComputeGrid(first, cfg.Direction, cfg.GridCount, cfg.PriceRange, tickSize)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Symbol:       cfg.Symbol,
		Direction:    cfg.Direction,
		GridCount:    cfg.GridCount,
		Start:        time.UnixMilli(candles[0].OpenTime),
		End:          time.UnixMilli(candles[len(candles)-1].CloseTime),
		Candles:      len(candles),
		InitialPrice: first,
	}

	filled := make([]bool, len(prices))

	for _, c := range candles {
		p := c.Close
		if p <= 0 {
			continue
		}

		if grid.ShouldRebuild(p, upper, lower) {
			lower, upper, prices, err = grid.ComputeGrid(p, cfg.Direction, cfg.GridCount, cfg.PriceRange, tickSize)
			if err != nil {
				return nil, err
			}
			filled = make([]bool, len(prices))
			res.Rebuilds++
			continue
		}

		for i, rung := range prices {
			target, ok := grid.NextTarget(rung, prices, cfg.Direction)
			switch cfg.Direction {
			case models.Long:
				if !filled[i] && p <= rung {
					filled[i] = true
				} else if filled[i] && ok && p >= target {
					filled[i] = false
					res.RoundTrips++
					res.EstimatedProfit += cfg.SizePerGrid * (target - rung)
				}
			case models.Short:
				if !filled[i] && p >= rung {
					filled[i] = true
				} else if filled[i] && ok && p <= target {
					filled[i] = false
					res.RoundTrips++
					res.EstimatedProfit += cfg.SizePerGrid * (rung - target)
				}
			}
		}
	}

	res.FinalPrice = candles[len(candles)-1].Close
	res.FinalLower = lower
	res.FinalUpper = upper

	logger.Info("plan replay complete",
		zap.Int("candles", res.Candles),
		zap.Int("round_trips", res.RoundTrips),
		zap.Int("rebuilds", res.Rebuilds),
		zap.Float64("estimated_profit", res.EstimatedProfit))
	return res, nil
}
