package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9991"
	defaultAppLogPath  = "/data/logs/riptide.log"

	defaultMarketSource   = "deriv"
	defaultPipDigits      = 2
	defaultTickBufferSize = 1000

	defaultDerivEndpoint = "wss://ws.derivws.com/websockets/v3"

	defaultStakeBase       = 0.35
	defaultStakeMinimum    = 0.35
	defaultStakeMultiplier = 2.0
	defaultStakeMaxLossCap = 10
	defaultStakeDebounceMS = 2000

	defaultStrategy            = "over_under"
	defaultDurationTicks       = 5
	defaultDigitWindow         = 100
	defaultEvaluateIntervalMS  = 1000
	defaultPollIntervalMS      = 1000
	defaultSingleLegCooldownMS = 3000
	defaultDualLegCooldownMS   = 1000
	defaultSettleQuietMS       = 1000

	defaultStorePath   = "/data/db/riptide.db"
	defaultJournalPath = "/data/db/riptide-events.db"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Deriv.applyDefaults(keys)
	c.Trend.applyDefaults(keys)
	c.Stake.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.source", &m.Source, defaultMarketSource),
		fieldDefault{
			key:   "market.pip_digits",
			need:  func() bool { return m.PipDigits <= 0 },
			apply: func() { m.PipDigits = defaultPipDigits },
		},
		fieldDefault{
			key:   "market.tick_buffer_size",
			need:  func() bool { return m.TickBufferSize <= 0 },
			apply: func() { m.TickBufferSize = defaultTickBufferSize },
		},
	)
	m.Source = strings.ToLower(strings.TrimSpace(m.Source))
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"R_100"}
	}
}

func (d *DerivConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("deriv.endpoint", &d.Endpoint, defaultDerivEndpoint),
	)
}

// Trend defaults live with the aggregator; zero values there pick up the
// package defaults, so only obviously broken inputs are corrected here.
func (t *TrendConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	if t.Alpha < 0 || t.Alpha > 1 {
		t.Alpha = 0
	}
	if t.AlignThreshold < 0 || t.AlignThreshold > 1 {
		t.AlignThreshold = 0
	}
}

func (s *StakeConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "stake.base",
			need:  func() bool { return s.Base <= 0 },
			apply: func() { s.Base = defaultStakeBase },
		},
		fieldDefault{
			key:   "stake.minimum",
			need:  func() bool { return s.Minimum <= 0 },
			apply: func() { s.Minimum = defaultStakeMinimum },
		},
		fieldDefault{
			key:   "stake.multiplier",
			need:  func() bool { return s.Multiplier < 1 },
			apply: func() { s.Multiplier = defaultStakeMultiplier },
		},
		fieldDefault{
			key:   "stake.max_loss_cap",
			need:  func() bool { return s.MaxLossCap <= 0 },
			apply: func() { s.MaxLossCap = defaultStakeMaxLossCap },
		},
		fieldDefault{
			key:   "stake.debounce_ms",
			need:  func() bool { return s.DebounceMS <= 0 },
			apply: func() { s.DebounceMS = defaultStakeDebounceMS },
		},
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("engine.strategy", &e.Strategy, defaultStrategy),
		fieldDefault{
			key:   "engine.duration_ticks",
			need:  func() bool { return e.DurationTicks <= 0 },
			apply: func() { e.DurationTicks = defaultDurationTicks },
		},
		fieldDefault{
			key:   "engine.digit_window",
			need:  func() bool { return e.DigitWindow <= 0 },
			apply: func() { e.DigitWindow = defaultDigitWindow },
		},
		fieldDefault{
			key:   "engine.evaluate_interval_ms",
			need:  func() bool { return e.EvaluateIntervalMS <= 0 },
			apply: func() { e.EvaluateIntervalMS = defaultEvaluateIntervalMS },
		},
		fieldDefault{
			key:   "engine.poll_interval_ms",
			need:  func() bool { return e.PollIntervalMS <= 0 },
			apply: func() { e.PollIntervalMS = defaultPollIntervalMS },
		},
		fieldDefault{
			key:   "engine.single_leg_cooldown_ms",
			need:  func() bool { return e.SingleLegCooldownMS <= 0 },
			apply: func() { e.SingleLegCooldownMS = defaultSingleLegCooldownMS },
		},
		fieldDefault{
			key:   "engine.dual_leg_cooldown_ms",
			need:  func() bool { return e.DualLegCooldownMS <= 0 },
			apply: func() { e.DualLegCooldownMS = defaultDualLegCooldownMS },
		},
		fieldDefault{
			key:   "engine.settle_quiet_ms",
			need:  func() bool { return e.SettleQuietMS <= 0 },
			apply: func() { e.SettleQuietMS = defaultSettleQuietMS },
		},
	)
	e.Strategy = strings.ToLower(strings.TrimSpace(e.Strategy))
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
		stringFieldDefault("store.journal_path", &s.JournalPath, defaultJournalPath),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
