package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"riptide/internal/analysis/trend"
	"riptide/internal/gateway/exchange"
	"riptide/internal/logger"
	"riptide/internal/market"
	"riptide/internal/notifier"
	"riptide/internal/pkg/circuit"
	"riptide/internal/stake"
	"riptide/internal/store/gormstore"
	"riptide/internal/types"
)

// Config tunes the coordinator. The cooldown and quiet-period constants vary
// between deployments, so none of them is hard-coded.
type Config struct {
	Strategy types.StrategyKind
	Symbols  []string
	// PipDigits is the price precision used for last-digit extraction.
	PipDigits     int
	DurationTicks int
	// DigitWindow is how many recent ticks feed the digit scorer.
	DigitWindow int

	SingleLegCooldown time.Duration
	DualLegCooldown   time.Duration
	// SettleQuiet is the pause after a settlement before the next trade, so
	// the stake recompute is visible to the next placement.
	SettleQuiet  time.Duration
	PlaceTimeout time.Duration
	QueryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = types.StrategyOverUnder
	}
	if c.PipDigits < 0 {
		c.PipDigits = 2
	}
	if c.DurationTicks <= 0 {
		c.DurationTicks = 5
	}
	if c.DigitWindow <= 0 {
		c.DigitWindow = 100
	}
	if c.SingleLegCooldown <= 0 {
		c.SingleLegCooldown = 3000 * time.Millisecond
	}
	if c.DualLegCooldown <= 0 {
		c.DualLegCooldown = 1000 * time.Millisecond
	}
	if c.SettleQuiet <= 0 {
		c.SettleQuiet = 1000 * time.Millisecond
	}
	if c.PlaceTimeout <= 0 {
		c.PlaceTimeout = 15 * time.Second
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5 * time.Second
	}
	return c
}

// TradeStore persists trade records. Best effort from the engine's side.
type TradeStore interface {
	RecordTrade(ctx context.Context, rec gormstore.TradeRecord) error
}

// Engine is the contract lifecycle coordinator: a single-goroutine actor that
// owns the active ContractHandle and all trade gating flags. Every mutation
// happens on the loop goroutine, so the scheduler tick, the poll tick and the
// push callback cannot race.
type Engine struct {
	cfg     Config
	trading exchange.Trading
	mirrors []exchange.Trading
	breaker *circuit.Breaker
	stakes  *stake.Controller
	trends  *trend.Aggregator
	ticks   *market.TickBuffer
	store   TradeStore
	journal *Journal
	notify  notifier.TextNotifier

	msgCh  chan EventEnvelope
	stopCh chan struct{}
	wg     sync.WaitGroup

	state    *State
	snapshot atomic.Value
	nowFn    func() time.Time
}

// Options carries the optional collaborators.
type Options struct {
	Mirrors []exchange.Trading
	Store   TradeStore
	Journal *Journal
	Notify  notifier.TextNotifier
}

func New(cfg Config, trading exchange.Trading, stakes *stake.Controller, trends *trend.Aggregator, ticks *market.TickBuffer, opts Options) *Engine {
	e := &Engine{
		cfg:     cfg.withDefaults(),
		trading: trading,
		mirrors: opts.Mirrors,
		breaker: circuit.NewBreaker("trading", 5, 30*time.Second),
		stakes:  stakes,
		trends:  trends,
		ticks:   ticks,
		store:   opts.Store,
		journal: opts.Journal,
		notify:  opts.Notify,
		msgCh:   make(chan EventEnvelope, 100),
		stopCh:  make(chan struct{}),
		state:   NewState(),
		nowFn:   time.Now,
	}
	if e.notify == nil {
		e.notify = notifier.LogNotifier{}
	}
	e.refreshSnapshot()
	return e
}

func (e *Engine) Start() {
	e.wg.Add(1)
	go e.runLoop()
}

// Stop shuts the loop down. An already-placed trade is abandoned, not
// cancelled: it stays with the venue and would be picked up by monitoring if
// the engine restarts against the same session store.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			logger.Warnf("engine: journal close failed: %v", err)
		}
	}
}

func (e *Engine) Send(evt EventEnvelope) error {
	select {
	case e.msgCh <- evt:
		return nil
	case <-e.stopCh:
		return fmt.Errorf("engine is stopped")
	}
}

// SendSync delivers the event and waits for the handler to finish.
func (e *Engine) SendSync(ctx context.Context, evt EventEnvelope) error {
	if evt.ReplyCh == nil {
		evt.ReplyCh = make(chan error, 1)
	}
	if err := e.Send(evt); err != nil {
		return err
	}
	select {
	case err := <-evt.ReplyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopCh:
		return fmt.Errorf("engine stopped during sync call")
	}
}

// Snapshot returns a read-only copy of the loop state for the HTTP layer.
func (e *Engine) Snapshot() *State {
	val := e.snapshot.Load()
	if val == nil {
		return NewState()
	}
	return val.(*State)
}

func (e *Engine) refreshSnapshot() {
	e.snapshot.Store(e.state.clone())
}

func (e *Engine) runLoop() {
	defer e.wg.Done()
	logger.Infof("engine: actor started strategy=%s symbols=%v", e.cfg.Strategy, e.cfg.Symbols)

	for {
		select {
		case evt := <-e.msgCh:
			e.handleEvent(evt)
		case <-e.stopCh:
			logger.Infof("engine: actor stopping")
			return
		}
	}
}

func (e *Engine) handleEvent(evt EventEnvelope) {
	var err error
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("engine: panic handling %s: %v", evt.Type, r)
			debug.PrintStack()
			err = fmt.Errorf("panic: %v", r)
			// A panic mid-placement must not wedge the gate shut.
			e.state.TradeInProgress = false
		}
		if evt.ReplyCh != nil {
			evt.ReplyCh <- err
			close(evt.ReplyCh)
		}
		if dur := time.Since(start); dur > 100*time.Millisecond {
			logger.Warnf("engine: slow event %s took %v", evt.Type, dur)
		}
		e.refreshSnapshot()
	}()

	if e.journal != nil && shouldJournal(evt.Type) {
		if jerr := e.journal.Append(evt); jerr != nil {
			logger.Errorf("engine: journal append %s failed: %v", evt.Type, jerr)
		}
	}

	switch evt.Type {
	case EvtEvaluate:
		err = e.handleEvaluate()
	case EvtPollContracts:
		err = e.handlePoll()
	case EvtContractUpdate:
		err = e.handleContractUpdate(evt)
	case EvtPlacementResult:
		err = e.handlePlacementResult(evt)
	default:
		logger.Warnf("engine: no handler for event type %s", evt.Type)
	}
	if err != nil {
		logger.Errorf("engine: handling %s failed: %v", evt.Type, err)
	}
}

// The high-rate scheduler events carry no durable facts; only placement and
// settlement observations go to the journal.
func shouldJournal(t EventType) bool {
	switch t {
	case EvtEvaluate, EvtPollContracts:
		return false
	default:
		return true
	}
}

// NewEvent builds an envelope for t with a fresh id. Payload-free events
// (EVALUATE, POLL_CONTRACTS) are sent this way by the schedulers.
func NewEvent(t EventType) EventEnvelope {
	return EventEnvelope{ID: newEventID(), Type: t, CreatedAt: time.Now()}
}

func newEventID() string {
	return uuid.NewString()
}
