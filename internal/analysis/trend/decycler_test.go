package trend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecycler(t *testing.T) {
	t.Run("short input yields no output", func(t *testing.T) {
		assert.Nil(t, Decycler(nil, 0.07))
		assert.Nil(t, Decycler([]float64{1}, 0.07))
		assert.Nil(t, Decycler([]float64{1, 2}, 0.07))
	})

	t.Run("output length matches input", func(t *testing.T) {
		prices := []float64{100, 101, 102, 101.5, 103, 104}
		out := Decycler(prices, 0.07)
		assert.Len(t, out, len(prices))
		assert.Equal(t, prices[0], out[0])
		assert.Equal(t, prices[1], out[1])
	})

	t.Run("deterministic", func(t *testing.T) {
		prices := []float64{100, 99.5, 100.2, 101.7, 101.1, 102.9, 103.4}
		assert.Equal(t, Decycler(prices, 0.07), Decycler(prices, 0.07))
	})

	t.Run("matches the recurrence", func(t *testing.T) {
		prices := []float64{10, 12, 11}
		alpha := 0.5
		out := Decycler(prices, alpha)
		// f[2] = (0.25)(11+12) + 0.5*12 - 0.125*(12-10)
		assert.InDelta(t, 0.25*(11+12)+0.5*12-0.125*(12-10), out[2], 1e-12)
	})

	t.Run("invalid alpha falls back to default", func(t *testing.T) {
		prices := []float64{1, 2, 3, 4}
		assert.Equal(t, Decycler(prices, DefaultAlpha), Decycler(prices, -1))
		assert.Equal(t, Decycler(prices, DefaultAlpha), Decycler(prices, 2))
	})
}

func TestDecyclerStreamMatchesBatch(t *testing.T) {
	prices := []float64{100, 101.3, 99.8, 102.6, 104.1, 103.2, 105.5, 104.9}
	batch := Decycler(prices, 0.07)

	stream := NewDecyclerStream(0.07)
	for i, p := range prices {
		got := stream.Push(p)
		// Bit-identical, not merely close.
		assert.Equal(t, batch[i], got, "index %d", i)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		filtered []float64
		want     Classification
	}{
		{"strictly increasing", []float64{1, 2, 3}, Bullish},
		{"strictly decreasing", []float64{3, 2, 1}, Bearish},
		{"short down medium up", []float64{1, 2, 1.5}, Neutral},
		{"short up medium down", []float64{2, 1, 1.5}, Neutral},
		{"flat", []float64{1, 1, 1}, Neutral},
		{"too few points", []float64{1, 2}, Neutral},
		{"empty", nil, Neutral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.filtered))
		})
	}
}
