package stake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"riptide/internal/logger"
)

// Action names the last transition applied to the stake state.
type Action string

const (
	ActionInit       Action = "init"
	ActionReset      Action = "reset"
	ActionMartingale Action = "martingale"
)

// State is the stake bookkeeping for one strategy session. It is owned by the
// Controller and only mutated through its transitions.
type State struct {
	Base              float64   `json:"base"`
	Current           float64   `json:"current"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	LastAction        Action    `json:"last_action"`
	LastActionAt      time.Time `json:"last_action_at"`
}

// Config tunes the compounding policy.
type Config struct {
	MinimumStake float64
	Multiplier   float64
	MaxLossCap   int
	// DebounceWindow suppresses a second martingale arriving right after the
	// first, which happens when both settlement notification paths fire for
	// the same contract.
	DebounceWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinimumStake <= 0 || !isFinite(c.MinimumStake) {
		c.MinimumStake = 0.35
	}
	if c.Multiplier < 1 || !isFinite(c.Multiplier) {
		c.Multiplier = 2
	}
	if c.MaxLossCap <= 0 {
		c.MaxLossCap = 10
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 2 * time.Second
	}
	return c
}

// Store persists the base stake across sessions. Implementations are best
// effort; the controller never fails a transition on a store error.
type Store interface {
	LoadBaseStake(ctx context.Context) (float64, bool, error)
	SaveBaseStake(ctx context.Context, base float64) error
}

// Controller maintains the current stake under the martingale policy:
// multiply on consecutive losses, reset on win. Malformed numeric input is
// clamped to the minimum stake rather than rejected.
type Controller struct {
	mu    sync.Mutex
	cfg   Config
	state State
	store Store
	nowFn func() time.Time
}

func NewController(cfg Config, store Store) *Controller {
	return &Controller{
		cfg:   cfg.withDefaults(),
		store: store,
		nowFn: time.Now,
	}
}

// Init sets the base and current stake, clearing the loss counter. A stored
// base stake, when present, overrides the provided value so a restarted
// session resumes where it left off.
func (c *Controller) Init(ctx context.Context, value float64) float64 {
	if c.store != nil {
		if saved, ok, err := c.store.LoadBaseStake(ctx); err != nil {
			logger.Warnf("stake: restoring base stake failed: %v", err)
		} else if ok && saved > 0 {
			value = saved
		}
	}

	c.mu.Lock()
	base := c.clamp(value)
	c.state = State{
		Base:         base,
		Current:      base,
		LastAction:   ActionInit,
		LastActionAt: c.nowFn(),
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveBaseStake(ctx, base); err != nil {
			logger.Warnf("stake: persisting base stake failed: %v", err)
		}
	}
	return base
}

// Reset returns the stake to base after a win.
func (c *Controller) Reset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Current = c.ensureBase()
	c.state.ConsecutiveLosses = 0
	c.state.LastAction = ActionReset
	c.state.LastActionAt = c.nowFn()
	return c.state.Current
}

// Martingale compounds the stake after a loss. An optional hint pins the loss
// count instead of incrementing, capped either way. A martingale arriving
// within the debounce window of the previous one is a no-op so a doubly
// reported settlement cannot compound twice.
func (c *Controller) Martingale(lossCountHint ...int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	if c.state.LastAction == ActionMartingale && now.Sub(c.state.LastActionAt) < c.cfg.DebounceWindow {
		logger.Debugf("stake: martingale within debounce window, ignoring")
		return c.state.Current
	}

	losses := c.state.ConsecutiveLosses + 1
	if len(lossCountHint) > 0 && lossCountHint[0] > 0 {
		losses = lossCountHint[0]
	}
	if losses > c.cfg.MaxLossCap {
		losses = c.cfg.MaxLossCap
	}

	base := c.ensureBase()
	factor := decimal.NewFromFloat(c.cfg.Multiplier).Pow(decimal.NewFromInt(int64(losses)))
	next := decimal.NewFromFloat(base).Mul(factor).Round(2)

	c.state.ConsecutiveLosses = losses
	c.state.Current, _ = next.Float64()
	c.state.LastAction = ActionMartingale
	c.state.LastActionAt = now
	return c.state.Current
}

// Get returns the stake for the next trade, falling back to base when the
// current stake is unset.
func (c *Controller) Get() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Current > 0 {
		return c.state.Current
	}
	return c.ensureBase()
}

// Snapshot copies the state for read-only consumers.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) ensureBase() float64 {
	if c.state.Base <= 0 || !isFinite(c.state.Base) {
		c.state.Base = c.cfg.MinimumStake
	}
	return c.state.Base
}

func (c *Controller) clamp(v float64) float64 {
	if !isFinite(v) || v <= 0 {
		logger.Warnf("stake: invalid stake %v clamped to minimum %.2f", v, c.cfg.MinimumStake)
		return c.cfg.MinimumStake
	}
	if v < c.cfg.MinimumStake {
		return c.cfg.MinimumStake
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
