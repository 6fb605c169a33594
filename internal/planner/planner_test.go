package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"weex-grid-bot-go/internal/downloader"
	"weex-grid-bot-go/internal/models"
)

func planConfig() *models.Config {
	return &models.Config{
		Symbol:      "BTCUSDT",
		Direction:   models.Long,
		GridCount:   5,
		SizePerGrid: 1,
		PriceRange:  0.03,
		MarginMode:  models.MarginCross,
	}
}

func candlesAt(closes ...float64) []downloader.Candle {
	out := make([]downloader.Candle, len(closes))
	for i, c := range closes {
		out[i] = downloader.Candle{
			OpenTime:  int64(i) * 60_000,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			CloseTime: int64(i+1)*60_000 - 1,
		}
	}
	return out
}

func TestRunCountsRoundTrips(t *testing.T) {
	// The ladder around 50000 snaps to roughly [48500, 49250, 49999.9,
	// 50750, 51500]. The middle rung sits just below the start price, so a
	// buy there needs the dip to 49900; the rise to 50800 then crosses its
	// target one step up for a single completed round trip.
	res, err := Run(planConfig(), candlesAt(50000, 49900, 50800), 0.1, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1, res.RoundTrips)
	assert.Zero(t, res.Rebuilds)
	assert.InDelta(t, 750.0, res.EstimatedProfit, 0.5)
	assert.Equal(t, 50000.0, res.InitialPrice)
	assert.Equal(t, 50800.0, res.FinalPrice)
}

func TestRunFlatPriceNoTrips(t *testing.T) {
	res, err := Run(planConfig(), candlesAt(50000, 50000, 50000), 0.1, zap.NewNop())
	require.NoError(t, err)

	assert.Zero(t, res.Rebuilds)
	assert.Zero(t, res.EstimatedProfit)
}

func TestRunRebuildsWhenPriceEscapes(t *testing.T) {
	res, err := Run(planConfig(), candlesAt(50000, 60000, 60100), 0.1, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Rebuilds)
	assert.Greater(t, res.FinalLower, 50000.0, "ladder recentered above the old range")
}

func TestRunRejectsEmptyInput(t *testing.T) {
	_, err := Run(planConfig(), nil, 0.1, zap.NewNop())
	assert.Error(t, err)
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := planConfig()
	cfg.GridCount = 1
	_, err := Run(cfg, candlesAt(50000), 0.1, zap.NewNop())
	assert.Error(t, err)
}
