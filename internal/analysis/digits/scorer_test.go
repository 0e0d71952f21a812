package digits

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"riptide/internal/market"
)

func obsWith(current, least, leastCount, most, mostCount, sample int) Observation {
	obs := Observation{Symbol: "R_100", CurrentLastDigit: current, SampleSize: sample}
	// Spread the remainder over the other digits so least/most stay extreme.
	rest := sample - leastCount - mostCount
	perDigit := rest / 8
	for d := 0; d < 10; d++ {
		obs.Counts[d] = perDigit
	}
	obs.Counts[least] = leastCount
	obs.Counts[most] = mostCount
	return obs
}

func TestScore(t *testing.T) {
	t.Run("qualifying symbol", func(t *testing.T) {
		op := Score(obsWith(5, 4, 2, 9, 20, 100))
		assert.True(t, op.Ready)
		assert.True(t, op.MeetsConditions)
		assert.Equal(t, 4, op.LeastDigit)
		assert.Equal(t, 9, op.MostDigit)
		assert.InDelta(t, 18.0, op.Score, 1e-9)
	})

	t.Run("current digit outside 4-5", func(t *testing.T) {
		op := Score(obsWith(3, 4, 2, 9, 20, 100))
		assert.False(t, op.MeetsConditions)
		assert.Zero(t, op.Score)
	})

	t.Run("least digit outside 4-5", func(t *testing.T) {
		op := Score(obsWith(5, 1, 2, 9, 20, 100))
		assert.False(t, op.MeetsConditions)
	})

	t.Run("most digit inside 4-5", func(t *testing.T) {
		obs := obsWith(5, 4, 2, 5, 30, 100)
		op := Score(obs)
		assert.False(t, op.MeetsConditions)
	})

	t.Run("not ready below sample floor", func(t *testing.T) {
		op := Score(Observation{Symbol: "R_50", CurrentLastDigit: 5, SampleSize: MinSampleSize - 1})
		assert.False(t, op.Ready)
		assert.False(t, op.MeetsConditions)
	})

	t.Run("least-digit tie keeps lowest digit", func(t *testing.T) {
		var obs Observation
		obs.Symbol = "R_25"
		obs.SampleSize = 40
		for d := 0; d < 10; d++ {
			obs.Counts[d] = 4
		}
		obs.Counts[4] = 1
		obs.Counts[5] = 1 // tie between 4 and 5
		obs.Counts[9] = 10
		obs.CurrentLastDigit = 4
		op := Score(obs)
		assert.Equal(t, 4, op.LeastDigit)
		assert.True(t, op.MeetsConditions)
	})
}

func TestBest(t *testing.T) {
	a := obsWith(5, 4, 2, 9, 12, 100) // score 10
	b := obsWith(4, 5, 1, 0, 19, 100) // score 18
	c := obsWith(2, 4, 2, 9, 30, 100) // disqualified: current digit

	best, ok := Best([]Observation{a, b, c})
	assert.True(t, ok)
	assert.Equal(t, b.Symbol, best.Symbol)
	assert.InDelta(t, 18.0, best.Score, 1e-9)

	t.Run("tie favors first in order", func(t *testing.T) {
		first := obsWith(5, 4, 2, 9, 20, 100)
		first.Symbol = "R_10"
		second := obsWith(5, 4, 2, 9, 20, 100)
		second.Symbol = "R_25"
		got, ok := Best([]Observation{first, second})
		assert.True(t, ok)
		assert.Equal(t, "R_10", got.Symbol)
	})

	t.Run("no qualifier", func(t *testing.T) {
		_, ok := Best([]Observation{c})
		assert.False(t, ok)
	})
}

func TestLastDigit(t *testing.T) {
	assert.Equal(t, 5, LastDigit(1234.45, 2))
	assert.Equal(t, 0, LastDigit(100.0, 2))
	assert.Equal(t, 7, LastDigit(9.137, 3))
	assert.Equal(t, -1, LastDigit(math.NaN(), 2))
}

func TestObserve(t *testing.T) {
	ticks := []market.Tick{
		{Symbol: "R_100", Price: 100.04, Epoch: 1},
		{Symbol: "R_100", Price: 100.15, Epoch: 2},
		{Symbol: "R_100", Price: 100.24, Epoch: 3},
	}
	obs := Observe("R_100", ticks, 2)
	assert.Equal(t, 3, obs.SampleSize)
	assert.Equal(t, 4, obs.CurrentLastDigit)
	assert.Equal(t, 2, obs.Counts[4])
	assert.Equal(t, 1, obs.Counts[5])
}
