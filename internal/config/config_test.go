package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
market:
  symbols: ["R_100", "R_50"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":9991", cfg.App.HTTPAddr)
	assert.Equal(t, "deriv", cfg.Market.Source)
	assert.Equal(t, []string{"R_100", "R_50"}, cfg.Market.Symbols)
	assert.Equal(t, 2, cfg.Market.PipDigits)
	assert.Equal(t, "over_under", cfg.Engine.Strategy)
	assert.InDelta(t, 0.35, cfg.Stake.Base, 1e-9)
	assert.InDelta(t, 2.0, cfg.Stake.Multiplier, 1e-9)
	assert.Equal(t, 10, cfg.Stake.MaxLossCap)
	assert.Equal(t, 3000, cfg.Engine.SingleLegCooldownMS)
	assert.Equal(t, 1000, cfg.Engine.DualLegCooldownMS)
}

func TestLoadExplicitValuesSurvive(t *testing.T) {
	path := writeConfig(t, `
engine:
  strategy: trend_rise
  duration_ticks: 10
  single_leg_cooldown_ms: 5000
stake:
  base: 1.00
  multiplier: 2.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trend_rise", cfg.Engine.Strategy)
	assert.Equal(t, 10, cfg.Engine.DurationTicks)
	assert.Equal(t, 5000, cfg.Engine.SingleLegCooldownMS)
	assert.InDelta(t, 1.00, cfg.Stake.Base, 1e-9)
	assert.InDelta(t, 2.5, cfg.Stake.Multiplier, 1e-9)
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	path := writeConfig(t, `
engine:
  strategy: straddle
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.strategy")
}

func TestLoadRejectsBadSource(t *testing.T) {
	path := writeConfig(t, `
market:
  source: kraken
  symbols: ["R_100"]
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market.source")
}

func TestLoadRejectsBaseBelowMinimum(t *testing.T) {
	path := writeConfig(t, `
stake:
  base: 0.10
  minimum: 0.35
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stake.base")
}

func TestDurationHelpers(t *testing.T) {
	cfg := EngineConfig{EvaluateIntervalMS: 1500, SettleQuietMS: 1000}
	assert.Equal(t, "1.5s", cfg.EvaluateInterval().String())
	assert.Equal(t, "1s", cfg.SettleQuiet().String())
}
