package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSynthesizeCandles(t *testing.T) {
	ticks := []Tick{
		{Symbol: "R_100", Price: 100.0, Epoch: 60},
		{Symbol: "R_100", Price: 102.0, Epoch: 75},
		{Symbol: "R_100", Price: 99.0, Epoch: 110},
		{Symbol: "R_100", Price: 101.0, Epoch: 125},
	}

	t.Run("buckets by granularity", func(t *testing.T) {
		candles := SynthesizeCandles(ticks, 60)
		assert.Len(t, candles, 2)

		assert.Equal(t, int64(60), candles[0].OpenTime)
		assert.Equal(t, 100.0, candles[0].Open)
		assert.Equal(t, 102.0, candles[0].High)
		assert.Equal(t, 99.0, candles[0].Low)
		assert.Equal(t, 99.0, candles[0].Close)

		assert.Equal(t, int64(120), candles[1].OpenTime)
		assert.Equal(t, 101.0, candles[1].Close)
	})

	t.Run("idempotent for same tick stream", func(t *testing.T) {
		first := SynthesizeCandles(ticks, 60)
		second := SynthesizeCandles(ticks, 60)
		assert.Equal(t, first, second)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, SynthesizeCandles(nil, 60))
		assert.Nil(t, SynthesizeCandles(ticks, 0))
	})
}

func TestTickBufferEviction(t *testing.T) {
	buf := NewTickBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Append(Tick{Symbol: "R_50", Price: float64(i), Epoch: int64(i)})
	}

	assert.Equal(t, 3, buf.Len("R_50"))
	recent := buf.Recent("R_50", 0)
	assert.Equal(t, 2.0, recent[0].Price)
	assert.Equal(t, 4.0, recent[2].Price)

	last, ok := buf.LastPrice("R_50")
	assert.True(t, ok)
	assert.Equal(t, 4.0, last)

	_, ok = buf.LastPrice("R_100")
	assert.False(t, ok)
}
