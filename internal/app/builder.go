package app

import (
	"context"
	"fmt"

	"riptide/internal/analysis/trend"
	rtcfg "riptide/internal/config"
	"riptide/internal/engine"
	"riptide/internal/gateway/binance"
	"riptide/internal/gateway/deriv"
	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/stake"
	"riptide/internal/store/gormstore"
	httpapi "riptide/internal/transport/http"
	"riptide/internal/types"
)

// AppBuilder wires the application graph. The dial function is swappable so
// tests can build an App without a live venue connection.
type AppBuilder struct {
	cfg *rtcfg.Config

	dialDerivFn func(context.Context, deriv.Config) (*deriv.Client, error)
}

type AppBuilderOption func(*AppBuilder)

func WithDerivDialer(fn func(context.Context, deriv.Config) (*deriv.Client, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.dialDerivFn = fn }
}

func NewAppBuilder(cfg *rtcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		dialDerivFn: deriv.Dial,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	ticks := market.NewTickBuffer(cfg.Market.TickBufferSize)

	// Trading always goes through deriv; binance is a data-only alternative.
	derivClient, err := b.dialDerivFn(ctx, deriv.Config{
		Endpoint: cfg.Deriv.Endpoint,
		AppID:    cfg.Deriv.AppID,
		APIToken: cfg.Deriv.APIToken,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to deriv failed: %w", err)
	}

	var source market.Source = derivClient
	if cfg.Market.Source == "binance" {
		source = binance.New()
		logger.Infof("✓ market data from binance, trading stays on deriv")
	}

	store, err := gormstore.NewGormStore(cfg.Store.Path)
	if err != nil {
		derivClient.Close()
		return nil, fmt.Errorf("opening session store failed: %w", err)
	}

	journal, err := engine.OpenJournal(cfg.Store.JournalPath)
	if err != nil {
		store.Close()
		derivClient.Close()
		return nil, fmt.Errorf("opening event journal failed: %w", err)
	}

	stakes := stake.NewController(stake.Config{
		MinimumStake:   cfg.Stake.Minimum,
		Multiplier:     cfg.Stake.Multiplier,
		MaxLossCap:     cfg.Stake.MaxLossCap,
		DebounceWindow: cfg.Stake.Debounce(),
	}, store)
	base := stakes.Init(ctx, cfg.Stake.Base)
	logger.Infof("✓ stake controller ready base=%.2f multiplier=%.2f cap=%d",
		base, cfg.Stake.Multiplier, cfg.Stake.MaxLossCap)

	trendCfg := trend.Config{
		TimeframesSec:  cfg.Trend.TimeframesSec,
		Alpha:          cfg.Trend.Alpha,
		AlignThreshold: cfg.Trend.AlignThreshold,
		CandleCount:    cfg.Trend.CandleCount,
		RSIVeto:        cfg.Trend.RSIVeto,
		RSIPeriod:      cfg.Trend.RSIPeriod,
	}
	trends := trend.NewAggregator(trendCfg, source, ticks)

	strategy, err := types.ParseStrategyKind(cfg.Engine.Strategy)
	if err != nil {
		journal.Close()
		store.Close()
		derivClient.Close()
		return nil, err
	}
	eng := engine.New(engine.Config{
		Strategy:          strategy,
		Symbols:           cfg.Market.Symbols,
		PipDigits:         cfg.Market.PipDigits,
		DurationTicks:     cfg.Engine.DurationTicks,
		DigitWindow:       cfg.Engine.DigitWindow,
		SingleLegCooldown: cfg.Engine.SingleLegCooldown(),
		DualLegCooldown:   cfg.Engine.DualLegCooldown(),
		SettleQuiet:       cfg.Engine.SettleQuiet(),
	}, derivClient, stakes, trends, ticks, engine.Options{
		Store:   store,
		Journal: journal,
	})

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Engine:    eng,
		Stakes:    stakes,
		Store:     store,
		Journal:   journal,
		Source:    source,
		Ticks:     ticks,
		Trend:     trends.Config(),
		AppConfig: cfg,
	})
	if err != nil {
		journal.Close()
		store.Close()
		derivClient.Close()
		return nil, err
	}

	return &App{
		cfg:    cfg,
		engine: eng,
		http:   server,
		source: source,
		deriv:  derivClient,
		store:  store,
		ticks:  ticks,
	}, nil
}

// subscribeBuffer sizes the tick channel: each configured symbol ticks about
// once a second, so a minute of headroom is plenty.
func subscribeBuffer(symbols int) int {
	buf := symbols * 60
	if buf < 256 {
		buf = 256
	}
	return buf
}
