// Package binance provides an alternate market.Source backed by the Binance
// spot API, so the analysis pipeline can run against crypto symbols. It has
// no trading support; contracts are only placed through the primary venue.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/adshao/go-binance/v2"

	"riptide/internal/logger"
	"riptide/internal/market"
)

const maxHistoryLimit = 1000

// intervals maps candle granularities in seconds to Binance kline intervals.
// Unsupported granularities report an error and callers synthesize from ticks.
var intervals = map[int64]string{
	60:    "1m",
	180:   "3m",
	300:   "5m",
	900:   "15m",
	1800:  "30m",
	3600:  "1h",
	14400: "4h",
	86400: "1d",
}

type Source struct {
	client *binance.Client

	mu         sync.Mutex
	tickCancel []chan struct{}

	statsMu sync.Mutex
	stats   market.SourceStats
}

func New() *Source {
	return &Source{client: binance.NewClient("", "")}
}

func (s *Source) FetchCandles(ctx context.Context, symbol string, granularitySec int64, count int) ([]market.Candle, error) {
	interval, ok := intervals[granularitySec]
	if !ok {
		return nil, fmt.Errorf("binance: unsupported granularity %ds", granularitySec)
	}
	if count <= 0 {
		count = 100
	}
	if count > maxHistoryLimit {
		count = maxHistoryLimit
	}
	symbol = normalizeSymbol(symbol)

	kls, err := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(count).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime: kl.OpenTime / 1000,
			Open:     parseFloat(kl.Open),
			High:     parseFloat(kl.High),
			Low:      parseFloat(kl.Low),
			Close:    parseFloat(kl.Close),
		})
	}
	return out, nil
}

func (s *Source) SubscribeTicks(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.Tick, error) {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	out := make(chan market.Tick, buffer)

	for _, symbol := range symbols {
		symbol := normalizeSymbol(symbol)
		handler := func(event *binance.WsAggTradeEvent) {
			if event == nil {
				return
			}
			t := market.Tick{
				Symbol: event.Symbol,
				Price:  parseFloat(event.Price),
				Epoch:  event.Time / 1000,
			}
			select {
			case out <- t:
			default:
			}
		}
		errHandler := func(err error) {
			logger.Warnf("binance: trade stream %s: %v", symbol, err)
			s.recordError(err)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
		}
		doneC, stopC, err := binance.WsAggTradeServe(symbol, handler, errHandler)
		if err != nil {
			s.recordSubscribeError(err)
			return nil, fmt.Errorf("binance: subscribe %s: %w", symbol, err)
		}
		stop := make(chan struct{})
		s.mu.Lock()
		s.tickCancel = append(s.tickCancel, stop)
		s.mu.Unlock()
		go func() {
			select {
			case <-ctx.Done():
			case <-stop:
			case <-doneC:
				return
			}
			close(stopC)
		}()
	}
	if opts.OnConnect != nil {
		opts.OnConnect()
	}
	return out, nil
}

func (s *Source) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stop := range s.tickCancel {
		close(stop)
	}
	s.tickCancel = nil
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func (s *Source) recordError(err error) {
	s.statsMu.Lock()
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}

func (s *Source) recordSubscribeError(err error) {
	s.statsMu.Lock()
	s.stats.SubscribeErrors++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}
