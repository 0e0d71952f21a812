package config

import (
	"strings"
	"time"
)

// Config is the top-level configuration.
type Config struct {
	App    AppConfig    `toml:"app"`
	Market MarketConfig `toml:"market"`
	Deriv  DerivConfig  `toml:"deriv"`
	Trend  TrendConfig  `toml:"trend"`
	Stake  StakeConfig  `toml:"stake"`
	Engine EngineConfig `toml:"engine"`
	Store  StoreConfig  `toml:"store"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// MarketConfig selects the data venue and the traded universe.
type MarketConfig struct {
	// Source is the market data backend: "deriv" or "binance". Trading always
	// goes through deriv; binance is data only.
	Source    string   `toml:"source"`
	Symbols   []string `toml:"symbols"`
	PipDigits int      `toml:"pip_digits"`
	// TickBufferSize bounds the per-symbol rolling tick window.
	TickBufferSize int `toml:"tick_buffer_size"`
}

type DerivConfig struct {
	Endpoint string `toml:"endpoint"`
	AppID    string `toml:"app_id"`
	APIToken string `toml:"api_token"`
}

type TrendConfig struct {
	TimeframesSec  []int64 `toml:"timeframes_sec"`
	Alpha          float64 `toml:"alpha"`
	AlignThreshold float64 `toml:"align_threshold"`
	CandleCount    int     `toml:"candle_count"`
	RSIVeto        bool    `toml:"rsi_veto"`
	RSIPeriod      int     `toml:"rsi_period"`
}

type StakeConfig struct {
	Base       float64 `toml:"base"`
	Minimum    float64 `toml:"minimum"`
	Multiplier float64 `toml:"multiplier"`
	MaxLossCap int     `toml:"max_loss_cap"`
	DebounceMS int     `toml:"debounce_ms"`
}

type EngineConfig struct {
	Strategy            string `toml:"strategy"`
	DurationTicks       int    `toml:"duration_ticks"`
	DigitWindow         int    `toml:"digit_window"`
	EvaluateIntervalMS  int    `toml:"evaluate_interval_ms"`
	PollIntervalMS      int    `toml:"poll_interval_ms"`
	SingleLegCooldownMS int    `toml:"single_leg_cooldown_ms"`
	DualLegCooldownMS   int    `toml:"dual_leg_cooldown_ms"`
	SettleQuietMS       int    `toml:"settle_quiet_ms"`
}

type StoreConfig struct {
	Path        string `toml:"path"`
	JournalPath string `toml:"journal_path"`
}

func (e EngineConfig) EvaluateInterval() time.Duration {
	return time.Duration(e.EvaluateIntervalMS) * time.Millisecond
}

func (e EngineConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalMS) * time.Millisecond
}

func (e EngineConfig) SingleLegCooldown() time.Duration {
	return time.Duration(e.SingleLegCooldownMS) * time.Millisecond
}

func (e EngineConfig) DualLegCooldown() time.Duration {
	return time.Duration(e.DualLegCooldownMS) * time.Millisecond
}

func (e EngineConfig) SettleQuiet() time.Duration {
	return time.Duration(e.SettleQuietMS) * time.Millisecond
}

func (s StakeConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// keySet tracks which field paths were explicitly present in the file, so a
// deliberate zero survives default application.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault is one field's defaulting rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
