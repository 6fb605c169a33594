// Package downloader fetches historical 1m candles from Binance's public
// kline endpoint and caches them as CSV for the planner.
package downloader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

// Candle is one bar of the cached kline file.
type Candle struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	CloseTime int64
}

// KlineDownloader pulls candles over the public REST surface; no API key
// is required.
type KlineDownloader struct {
	client *binance.Client
	logger *zap.Logger
}

func NewKlineDownloader(logger *zap.Logger) *KlineDownloader {
	return &KlineDownloader{
		client: binance.NewClient("", ""),
		logger: logger,
	}
}

// DownloadKlines writes 1m candles for [startTime, endTime) to filePath as
// CSV. An existing file is treated as a cache and left untouched.
func (d *KlineDownloader) DownloadKlines(ctx context.Context, symbol, filePath string, startTime, endTime time.Time) error {
	if _, err := os.Stat(filePath); err == nil {
		d.logger.Info("using cached kline data", zap.String("path", filePath))
		return nil
	}

	d.logger.Info("downloading klines",
		zap.String("symbol", symbol),
		zap.Time("start", startTime),
		zap.Time("end", endTime))

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create data file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"open_time", "open", "high", "low", "close", "volume", "close_time"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for t := startTime; t.Before(endTime); {
		klines, err := d.client.NewKlinesService().
			Symbol(symbol).
			Interval("1m").
			StartTime(t.UnixMilli()).
			EndTime(endTime.UnixMilli()).
			Limit(1000).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("fetch klines: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			record := []string{
				strconv.FormatInt(k.OpenTime, 10),
				k.Open,
				k.High,
				k.Low,
				k.Close,
				k.Volume,
				strconv.FormatInt(k.CloseTime, 10),
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}

		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		d.logger.Debug("downloaded chunk", zap.Time("through", t))

		// Binance throttles aggressive public clients.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	d.logger.Info("kline download complete", zap.String("path", filePath))
	return nil
}

// ReadCandles loads a CSV written by DownloadKlines.
func ReadCandles(filePath string) ([]Candle, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("data file %s has no candles", filePath)
	}

	candles := make([]Candle, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 7 {
			return nil, fmt.Errorf("row %d: expected 7 columns, got %d", i+2, len(row))
		}
		var c Candle
		var errs [6]error
		c.OpenTime, errs[0] = strconv.ParseInt(row[0], 10, 64)
		c.Open, errs[1] = strconv.ParseFloat(row[1], 64)
		c.High, errs[2] = strconv.ParseFloat(row[2], 64)
		c.Low, errs[3] = strconv.ParseFloat(row[3], 64)
		c.Close, errs[4] = strconv.ParseFloat(row[4], 64)
		c.CloseTime, errs[5] = strconv.ParseInt(row[6], 10, 64)
		for _, e := range errs {
			if e != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, e)
			}
		}
		candles = append(candles, c)
	}
	return candles, nil
}
