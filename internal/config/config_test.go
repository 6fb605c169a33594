package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weex-grid-bot-go/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"symbol": "cmt_btcusdt",
		"direction": "long",
		"grid_count": 5,
		"size_per_grid": 0.01,
		"price_range_percent": 0.03
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, models.MarginCross, cfg.MarginMode)
	assert.Equal(t, "grid_state_cmt_btcusdt_long.json", cfg.StatePath)
	assert.Equal(t, 30, cfg.HealthCheckIntervalSec)
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"symbol": "cmt_btcusdt",
		"direction": "short",
		"grid_count": 8,
		"size_per_grid": 0.5,
		"price_range_percent": 0.05,
		"margin_mode": 3,
		"db_path": "state.db",
		"health_check_interval_sec": 10
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, models.MarginIsolated, cfg.MarginMode)
	assert.Empty(t, cfg.StatePath, "db backend configured, no file default")
	assert.Equal(t, "state.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.HealthCheckIntervalSec)
}

func TestLoadRejectsBadDirection(t *testing.T) {
	path := writeConfig(t, `{
		"symbol": "cmt_btcusdt",
		"direction": "both",
		"grid_count": 5,
		"size_per_grid": 0.01,
		"price_range_percent": 0.03
	}`)

	_, err := Load(path)
	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "direction", vErr.Field)
}

func TestLoadRejectsTinyGrid(t *testing.T) {
	path := writeConfig(t, `{
		"symbol": "cmt_btcusdt",
		"direction": "long",
		"grid_count": 1,
		"size_per_grid": 0.01,
		"price_range_percent": 0.03
	}`)

	_, err := Load(path)
	var vErr *models.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "grid_count", vErr.Field)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"symbol": `)
	_, err := Load(path)
	assert.Error(t, err)
}
