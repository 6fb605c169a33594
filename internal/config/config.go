package config

import (
	"encoding/json"
	"fmt"
	"os"

	"weex-grid-bot-go/internal/models"
)

// Load reads and validates a JSON config file.
func Load(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := &models.Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.MarginMode == 0 {
		cfg.MarginMode = models.MarginCross
	}
	if cfg.StatePath == "" && cfg.DBPath == "" {
		cfg.StatePath = fmt.Sprintf("grid_state_%s_%s.json", cfg.Symbol, cfg.Direction)
	}
	if cfg.HealthCheckIntervalSec <= 0 {
		cfg.HealthCheckIntervalSec = 30
	}
}
