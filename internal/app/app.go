package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	rtcfg "riptide/internal/config"
	"riptide/internal/engine"
	"riptide/internal/gateway/deriv"
	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/scheduler"
	httpapi "riptide/internal/transport/http"
)

// App owns the running services: the engine actor, the tick feed, the two
// scheduler loops and the HTTP server.
type App struct {
	cfg    *rtcfg.Config
	engine *engine.Engine
	http   *httpapi.Server
	source market.Source
	deriv  *deriv.Client
	store  interface{ Close() error }
	ticks  *market.TickBuffer
}

// NewApp builds the application from cfg without starting it.
func NewApp(cfg *rtcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts every service and blocks until ctx is cancelled or one of them
// fails. Shutdown order matters: the engine stops last so in-flight
// settlement events still land.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	a.engine.Start()
	defer a.engine.Stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return a.runTickFeed(ctx)
	})

	group.Go(func() error {
		loop := scheduler.NewIntervalLoop("evaluate", a.cfg.Engine.EvaluateInterval())
		loop.Start(ctx, func() {
			if err := a.engine.Send(engine.NewEvent(engine.EvtEvaluate)); err != nil {
				logger.Warnf("app: evaluate tick dropped: %v", err)
			}
		})
		return nil
	})

	group.Go(func() error {
		loop := scheduler.NewIntervalLoop("poll-contracts", a.cfg.Engine.PollInterval())
		loop.Start(ctx, func() {
			if err := a.engine.Send(engine.NewEvent(engine.EvtPollContracts)); err != nil {
				logger.Warnf("app: poll tick dropped: %v", err)
			}
		})
		return nil
	})

	return group.Wait()
}

// runTickFeed subscribes the configured symbols and drains the stream into
// the shared tick buffer. The buffer feeds digit scoring and the candle
// synthesis fallback, so everything downstream sees one consistent window.
func (a *App) runTickFeed(ctx context.Context) error {
	symbols := a.cfg.Market.Symbols
	ch, err := a.source.SubscribeTicks(ctx, symbols, market.SubscribeOptions{
		Buffer: subscribeBuffer(len(symbols)),
		OnConnect: func() {
			logger.Infof("app: tick feed connected for %d symbol(s)", len(symbols))
		},
		OnDisconnect: func(err error) {
			logger.Warnf("app: tick feed disconnected: %v", err)
		},
	})
	if err != nil {
		return fmt.Errorf("subscribing ticks failed: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-ch:
			if !ok {
				return fmt.Errorf("tick stream closed")
			}
			a.ticks.Append(t)
		}
	}
}

// Engine exposes the coordinator for test harnesses.
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

func (a *App) close() {
	// In deriv data mode the source IS the deriv client; close it once.
	if a.source != nil && a.source != market.Source(a.deriv) {
		if err := a.source.Close(); err != nil {
			logger.Warnf("app: closing market source: %v", err)
		}
	}
	if a.deriv != nil {
		if err := a.deriv.Close(); err != nil {
			logger.Warnf("app: closing deriv client: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("app: closing store: %v", err)
		}
	}
}
