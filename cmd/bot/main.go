package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"weex-grid-bot-go/internal/config"
	"weex-grid-bot-go/internal/downloader"
	"weex-grid-bot-go/internal/engine"
	"weex-grid-bot-go/internal/exchange"
	"weex-grid-bot-go/internal/feed"
	"weex-grid-bot-go/internal/gateway"
	"weex-grid-bot-go/internal/logger"
	"weex-grid-bot-go/internal/models"
	"weex-grid-bot-go/internal/persistence"
	"weex-grid-bot-go/internal/planner"
	"weex-grid-bot-go/internal/reporter"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "live", "running mode: live or plan")
	dataPath := flag.String("data", "", "historical data file for plan mode")
	startDate := flag.String("start", "", "download start date for plan mode (YYYY-MM-DD)")
	endDate := flag.String("end", "", "download end date for plan mode (YYYY-MM-DD)")
	tickSize := flag.Float64("tick", 0.01, "tick size assumed for plan mode")
	reset := flag.Bool("reset", false, "discard persisted state before starting live mode")
	flag.Parse()

	// Bootstrap logger until the config file tells us better.
	lg := logger.New(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		lg.Info("no .env file found, reading credentials from environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		lg.Fatal("failed to load config", zap.Error(err))
	}

	lg = logger.New(cfg.LogConfig)
	defer lg.Sync()

	switch *mode {
	case "live":
		runLive(cfg, lg, *reset)
	case "plan":
		runPlan(cfg, lg, *dataPath, *startDate, *endDate, *tickSize)
	default:
		lg.Fatal("unknown mode, expected 'live' or 'plan'", zap.String("mode", *mode))
	}
}

func runLive(cfg *models.Config, lg *zap.Logger, reset bool) {
	apiKey := os.Getenv("WEEX_API_KEY")
	secretKey := os.Getenv("WEEX_SECRET_KEY")
	passphrase := os.Getenv("WEEX_PASSPHRASE")
	if apiKey == "" || secretKey == "" || passphrase == "" {
		lg.Fatal("WEEX_API_KEY, WEEX_SECRET_KEY and WEEX_PASSPHRASE must be set")
	}

	repo, err := newRepository(cfg)
	if err != nil {
		lg.Fatal("failed to open state store", zap.Error(err))
	}
	defer repo.Close()

	if reset {
		if err := repo.Erase(); err != nil {
			lg.Fatal("failed to erase persisted state", zap.Error(err))
		}
		lg.Info("persisted state discarded, starting fresh")
	}

	ex := exchange.NewLiveExchange(apiKey, secretKey, passphrase, cfg.APIBaseURL, lg)
	stream := feed.NewWSStream(cfg.WSURL, apiKey, secretKey, passphrase, lg)
	adapter := feed.NewAdapter(stream, lg)
	gw := gateway.New(ex, cfg.Symbol, cfg.MarginMode, lg)

	eng, err := engine.New(cfg, ex, gw, adapter, repo, lg)
	if err != nil {
		lg.Fatal("invalid strategy configuration", zap.Error(err))
	}
	if err := eng.Start(); err != nil {
		lg.Fatal("strategy failed to start", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		lg.Info("shutdown signal received")
	case <-eng.Done():
		lg.Warn("strategy halted on its own")
	}

	eng.Stop()

	state := eng.Snapshot()
	reporter.WriteSummary(os.Stdout, state)
	reporter.WriteLevels(os.Stdout, state)
}

func newRepository(cfg *models.Config) (persistence.StateRepository, error) {
	if cfg.DBPath != "" {
		return persistence.NewBadgerRepository(cfg.DBPath)
	}
	return persistence.NewFileRepository(cfg.StatePath)
}

func runPlan(cfg *models.Config, lg *zap.Logger, dataPath, startDate, endDate string, tickSize float64) {
	path, err := resolvePlanData(cfg, lg, dataPath, startDate, endDate)
	if err != nil {
		lg.Fatal("plan data unavailable", zap.Error(err))
	}

	candles, err := downloader.ReadCandles(path)
	if err != nil {
		lg.Fatal("failed to read candles", zap.Error(err))
	}

	res, err := planner.Run(cfg, candles, tickSize, lg)
	if err != nil {
		lg.Fatal("plan replay failed", zap.Error(err))
	}
	reporter.WritePlan(os.Stdout, res)
}

// resolvePlanData downloads candles when a date range is given, otherwise
// requires an explicit data file.
func resolvePlanData(cfg *models.Config, lg *zap.Logger, dataPath, startDate, endDate string) (string, error) {
	if startDate == "" || endDate == "" {
		if dataPath == "" {
			return "", fmt.Errorf("plan mode needs -data, or -start and -end for a download")
		}
		return dataPath, nil
	}

	startTime, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return "", fmt.Errorf("bad -start date: %w", err)
	}
	endTime, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return "", fmt.Errorf("bad -end date: %w", err)
	}

	path := dataPath
	if path == "" {
		path = fmt.Sprintf("data/%s-%s-%s.csv", cfg.Symbol, startDate, endDate)
	}

	dl := downloader.NewKlineDownloader(lg)
	if err := dl.DownloadKlines(context.Background(), cfg.Symbol, path, startTime, endTime); err != nil {
		return "", err
	}
	return path, nil
}
