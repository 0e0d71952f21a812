package trend

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"riptide/internal/market"
)

func mkSamples(classes ...Classification) []Sample {
	out := make([]Sample, len(classes))
	for i, c := range classes {
		out[i] = Sample{GranularitySec: int64(60 * (i + 1)), Class: c, At: time.Now()}
	}
	return out
}

func newTestAggregator(threshold float64) *Aggregator {
	return NewAggregator(Config{AlignThreshold: threshold}, nil, market.NewTickBuffer(0))
}

func TestAlign(t *testing.T) {
	agg := newTestAggregator(0.8)

	t.Run("unanimous bullish", func(t *testing.T) {
		samples := mkSamples(Bullish, Bullish, Bullish, Bullish, Bullish, Bullish)
		assert.Equal(t, AlignedBullish, agg.align(samples))
	})

	t.Run("five of six above threshold", func(t *testing.T) {
		// 5/6 = 0.83 >= 0.8; the dissenter sits in the short half so the
		// reversal guard stays quiet.
		samples := mkSamples(Bearish, Bullish, Bullish, Bullish, Bullish, Bullish)
		assert.Equal(t, AlignedBullish, agg.align(samples))
	})

	t.Run("four against two is mixed", func(t *testing.T) {
		samples := mkSamples(Bullish, Bullish, Bullish, Bullish, Bearish, Bearish)
		assert.Equal(t, Mixed, agg.align(samples))
	})

	t.Run("unanimous bearish", func(t *testing.T) {
		samples := mkSamples(Bearish, Bearish, Bearish, Bearish)
		assert.Equal(t, AlignedBearish, agg.align(samples))
	})

	t.Run("no samples is neutral", func(t *testing.T) {
		assert.Equal(t, NoSignal, agg.align(nil))
	})
}

func TestReversalGuard(t *testing.T) {
	agg := newTestAggregator(0.5)

	t.Run("long half holds, short half flipped", func(t *testing.T) {
		// bull=3/6 meets the 0.5 threshold and beats bear=0, but the entire
		// bullish vote lives in the long half while the short half went
		// neutral: downgraded to mixed.
		samples := mkSamples(Neutral, Neutral, Neutral, Bullish, Bullish, Bullish)
		assert.Equal(t, Mixed, agg.align(samples))
	})

	t.Run("short half still participates", func(t *testing.T) {
		// One short-half timeframe (1/3 = 0.33) still agrees, so the guard
		// stays quiet and the verdict aligns.
		samples := mkSamples(Bullish, Neutral, Neutral, Bullish, Bullish, Bullish)
		assert.Equal(t, AlignedBullish, agg.align(samples))
	})

	t.Run("long half not dominant", func(t *testing.T) {
		// Long-half agreement is 2/3 (0.67 < 0.7): not the reversal shape.
		agg6 := newTestAggregator(0.3)
		samples := mkSamples(Neutral, Neutral, Neutral, Bullish, Bullish, Neutral)
		assert.Equal(t, AlignedBullish, agg6.align(samples))
	})
}

func TestAggregatorSourceFallback(t *testing.T) {
	ticks := market.NewTickBuffer(0)
	base := int64(1_700_000_000)
	prices := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}
	for i, p := range prices {
		ticks.Append(market.Tick{Symbol: "R_100", Price: p, Epoch: base + int64(i)*60})
	}

	agg := NewAggregator(Config{
		TimeframesSec:  []int64{60, 120},
		AlignThreshold: 0.8,
	}, failingSource{}, ticks)

	verdict := agg.Evaluate(context.Background(), "R_100")
	assert.Len(t, verdict.Samples, 2)
	for _, s := range verdict.Samples {
		assert.True(t, s.Synthesized)
		assert.Equal(t, Bullish, s.Class)
	}
	assert.Equal(t, AlignedBullish, verdict.Class)
}

type failingSource struct{}

func (failingSource) FetchCandles(context.Context, string, int64, int) ([]market.Candle, error) {
	return nil, fmt.Errorf("candles unsupported for symbol")
}

func (failingSource) SubscribeTicks(context.Context, []string, market.SubscribeOptions) (<-chan market.Tick, error) {
	return nil, fmt.Errorf("not implemented")
}

func (failingSource) Stats() market.SourceStats { return market.SourceStats{} }
func (failingSource) Close() error              { return nil }
