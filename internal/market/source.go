package market

import "context"

// SubscribeOptions tunes a tick subscription.
type SubscribeOptions struct {
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

// SourceStats exposes feed health counters for the status API.
type SourceStats struct {
	Reconnects      int    `json:"reconnects"`
	SubscribeErrors int    `json:"subscribe_errors"`
	LastError       string `json:"last_error,omitempty"`
}

// Source is a market data feed. FetchCandles may be unsupported for some
// symbols; callers fall back to SynthesizeCandles over the tick buffer.
type Source interface {
	FetchCandles(ctx context.Context, symbol string, granularitySec int64, count int) ([]Candle, error)

	SubscribeTicks(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan Tick, error)

	Stats() SourceStats

	Close() error
}
