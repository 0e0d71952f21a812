package config

import (
	"fmt"
	"strings"

	"riptide/internal/types"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Trend.validate(); err != nil {
		return err
	}
	if err := c.Stake.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("app.log_level must be debug/info/warn/error, got %q", a.LogLevel)
}

func (m *MarketConfig) validate() error {
	switch m.Source {
	case "deriv", "binance":
	default:
		return fmt.Errorf("market.source only supports deriv or binance, got %q", m.Source)
	}
	if len(m.Symbols) == 0 {
		return fmt.Errorf("market.symbols requires at least one symbol")
	}
	for _, sym := range m.Symbols {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("market.symbols contains an empty symbol")
		}
	}
	if m.PipDigits < 0 || m.PipDigits > 8 {
		return fmt.Errorf("market.pip_digits must be in [0,8]")
	}
	return nil
}

func (t *TrendConfig) validate() error {
	for _, gran := range t.TimeframesSec {
		if gran <= 0 {
			return fmt.Errorf("trend.timeframes_sec entries must be > 0")
		}
	}
	return nil
}

func (s *StakeConfig) validate() error {
	if s.Base < s.Minimum {
		return fmt.Errorf("stake.base %.2f is below stake.minimum %.2f", s.Base, s.Minimum)
	}
	if s.Multiplier < 1 {
		return fmt.Errorf("stake.multiplier must be >= 1")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if _, err := types.ParseStrategyKind(e.Strategy); err != nil {
		return fmt.Errorf("engine.strategy: %w", err)
	}
	return nil
}
