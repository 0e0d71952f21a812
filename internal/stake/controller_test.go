package stake

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time          { return f.now }
func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestController(store Store) (*Controller, *fakeClock) {
	c := NewController(Config{}, store)
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c.nowFn = clk.Now
	return c, clk
}

func TestMartingaleCycle(t *testing.T) {
	c, clk := newTestController(nil)
	ctx := context.Background()

	assert.Equal(t, 0.35, c.Init(ctx, 0.35))
	assert.Equal(t, 0.35, c.Get())

	clk.Advance(5 * time.Second)
	assert.Equal(t, 0.70, c.Martingale())
	assert.Equal(t, 1, c.Snapshot().ConsecutiveLosses)

	t.Run("debounced duplicate is a no-op", func(t *testing.T) {
		clk.Advance(500 * time.Millisecond)
		assert.Equal(t, 0.70, c.Martingale())
		assert.Equal(t, 1, c.Snapshot().ConsecutiveLosses)
	})

	t.Run("compounds again past the window", func(t *testing.T) {
		clk.Advance(3 * time.Second)
		assert.Equal(t, 1.40, c.Martingale())
		assert.Equal(t, 2, c.Snapshot().ConsecutiveLosses)
	})

	t.Run("reset returns to base", func(t *testing.T) {
		assert.Equal(t, 0.35, c.Reset())
		assert.Equal(t, 0.35, c.Get())
		assert.Equal(t, 0, c.Snapshot().ConsecutiveLosses)
	})
}

func TestMartingaleHintAndCap(t *testing.T) {
	c, clk := newTestController(nil)
	c.Init(context.Background(), 1)

	clk.Advance(5 * time.Second)
	assert.Equal(t, 8.0, c.Martingale(3))

	clk.Advance(5 * time.Second)
	// Hint far beyond the cap compounds at the cap, not unbounded.
	assert.Equal(t, 1024.0, c.Martingale(50))
	assert.Equal(t, 10, c.Snapshot().ConsecutiveLosses)
}

func TestInvalidInputClamped(t *testing.T) {
	ctx := context.Background()

	cases := []float64{0, -1, math.NaN(), math.Inf(1)}
	for _, v := range cases {
		c, _ := newTestController(nil)
		assert.Equal(t, 0.35, c.Init(ctx, v), "input %v", v)
	}

	t.Run("get before init falls back to minimum", func(t *testing.T) {
		c, _ := newTestController(nil)
		assert.Equal(t, 0.35, c.Get())
	})
}

type memStore struct {
	base  float64
	saved bool
}

func (m *memStore) LoadBaseStake(context.Context) (float64, bool, error) {
	return m.base, m.saved, nil
}

func (m *memStore) SaveBaseStake(_ context.Context, base float64) error {
	m.base = base
	m.saved = true
	return nil
}

func TestBaseStakeRestore(t *testing.T) {
	store := &memStore{}
	ctx := context.Background()

	first, _ := newTestController(store)
	first.Init(ctx, 1.25)
	assert.Equal(t, 1.25, store.base)

	// A later session ignores the configured value in favor of the stored one.
	second, _ := newTestController(store)
	assert.Equal(t, 1.25, second.Init(ctx, 0.35))
}

func TestRoundingToCurrencyPrecision(t *testing.T) {
	c, clk := newTestController(nil)
	c.cfg.Multiplier = 1.5
	c.Init(context.Background(), 0.35)

	clk.Advance(5 * time.Second)
	// 0.35 * 1.5 = 0.525 -> 0.53 at 2 decimals.
	assert.Equal(t, 0.53, c.Martingale())
}
