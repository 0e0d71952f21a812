package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riptide/internal/analysis/trend"
	"riptide/internal/gateway/exchange"
	"riptide/internal/market"
	"riptide/internal/stake"
	"riptide/internal/types"
)

// fakeTrading records placed orders and lets tests settle contracts through
// both the push callback and the poll query path.
type fakeTrading struct {
	mu     sync.Mutex
	placed []exchange.OrderSpec
	nextID int
	states map[string]exchange.ContractState
	subs   map[string]func(exchange.ContractState)
}

func newFakeTrading() *fakeTrading {
	return &fakeTrading{
		states: make(map[string]exchange.ContractState),
		subs:   make(map[string]func(exchange.ContractState)),
	}
}

func (f *fakeTrading) PlaceOrder(_ context.Context, spec exchange.OrderSpec) (*exchange.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("c-%d", f.nextID)
	f.placed = append(f.placed, spec)
	f.states[id] = exchange.ContractState{ContractID: id}
	return &exchange.OrderResult{ContractID: id, EntryPrice: 100}, nil
}

func (f *fakeTrading) QueryContract(_ context.Context, contractID string) (*exchange.ContractState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs, ok := f.states[contractID]
	if !ok {
		return nil, fmt.Errorf("no contract %s", contractID)
	}
	return &cs, nil
}

func (f *fakeTrading) SubscribeContract(_ context.Context, contractID string, fn func(exchange.ContractState)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[contractID] = fn
	return nil
}

// settle marks the contract sold and fires the push callback, like the venue
// stream would.
func (f *fakeTrading) settle(contractID string, profit float64) {
	f.mu.Lock()
	cs := exchange.ContractState{ContractID: contractID, IsSettled: true, Profit: profit}
	f.states[contractID] = cs
	fn := f.subs[contractID]
	f.mu.Unlock()
	if fn != nil {
		fn(cs)
	}
}

func (f *fakeTrading) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

// noCandles forces the aggregator onto tick synthesis.
type noCandles struct{}

func (noCandles) FetchCandles(context.Context, string, int64, int) ([]market.Candle, error) {
	return nil, fmt.Errorf("history unavailable")
}

func (noCandles) SubscribeTicks(context.Context, []string, market.SubscribeOptions) (<-chan market.Tick, error) {
	return nil, fmt.Errorf("not implemented")
}

func (noCandles) Stats() market.SourceStats { return market.SourceStats{} }
func (noCandles) Close() error              { return nil }

func risingTicks(symbol string, n int) []market.Tick {
	out := make([]market.Tick, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, market.Tick{
			Symbol: symbol,
			Price:  100 + float64(i)*0.5,
			Epoch:  int64(1000 + i*10),
		})
	}
	return out
}

func newTestEngine(t *testing.T, strategy types.StrategyKind) (*Engine, *fakeTrading, *stake.Controller) {
	t.Helper()

	ticks := market.NewTickBuffer(2000)
	for _, tk := range risingTicks("R_100", 100) {
		ticks.Append(tk)
	}
	trends := trend.NewAggregator(trend.Config{
		TimeframesSec: []int64{60, 120},
	}, noCandles{}, ticks)

	stakes := stake.NewController(stake.Config{MinimumStake: 0.35, Multiplier: 2}, nil)
	stakes.Init(context.Background(), 0.35)

	ft := newFakeTrading()
	eng := New(Config{
		Strategy: strategy,
		Symbols:  []string{"R_100"},
	}, ft, stakes, trends, ticks, Options{})
	eng.Start()
	t.Cleanup(eng.Stop)
	return eng, ft, stakes
}

func mustEvent(t *testing.T, typ EventType, payload any) EventEnvelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return EventEnvelope{ID: newEventID(), Type: typ, Payload: raw, CreatedAt: time.Now()}
}

func placementEvent(t *testing.T, legs ...Leg) EventEnvelope {
	t.Helper()
	return mustEvent(t, EvtPlacementResult, PlacementResultPayload{
		TradeID:  newEventID(),
		Strategy: types.StrategyTrendRise,
		Symbol:   "R_100",
		Stake:    0.35,
		Legs:     legs,
	})
}

func settledEvent(t *testing.T, contractID string, profit float64, source string) EventEnvelope {
	t.Helper()
	return mustEvent(t, EvtContractUpdate, ContractUpdatePayload{
		ContractID: contractID,
		IsSettled:  true,
		Profit:     profit,
		Source:     source,
	})
}

func TestEvaluateRejectedWhileTradeOpen(t *testing.T) {
	eng, ft, stakes := newTestEngine(t, types.StrategyTrendRise)
	ctx := context.Background()

	leg := Leg{ContractID: "open-1", Side: types.SideRise, Outcome: types.OutcomePending}
	require.NoError(t, eng.SendSync(ctx, placementEvent(t, leg)))
	require.NotNil(t, eng.Snapshot().Active)

	before := stakes.Snapshot()
	require.NoError(t, eng.SendSync(ctx, mustEvent(t, EvtEvaluate, nil)))

	assert.Equal(t, 0, ft.placedCount(), "no order may be placed while a trade is open")
	assert.Equal(t, before, stakes.Snapshot(), "a rejected evaluation must not touch the stake")
	assert.Equal(t, "open-1", eng.Snapshot().Active.Legs[0].ContractID)
}

func TestDuplicateSettlementIsIdempotent(t *testing.T) {
	eng, _, stakes := newTestEngine(t, types.StrategyTrendRise)
	ctx := context.Background()

	leg := Leg{ContractID: "dup-1", Side: types.SideRise, Outcome: types.OutcomePending}
	require.NoError(t, eng.SendSync(ctx, placementEvent(t, leg)))

	// Push and poll both report the same loss.
	require.NoError(t, eng.SendSync(ctx, settledEvent(t, "dup-1", -0.35, "push")))
	require.NoError(t, eng.SendSync(ctx, settledEvent(t, "dup-1", -0.35, "poll")))

	snap := eng.Snapshot()
	assert.Nil(t, snap.Active)
	assert.Equal(t, 1, snap.Losses, "second notification must not count the loss again")
	assert.Equal(t, 1, stakes.Snapshot().ConsecutiveLosses)
	assert.InDelta(t, 0.70, stakes.Get(), 1e-9, "stake compounds once, not per notification")
}

func TestDualLegCombinedOutcome(t *testing.T) {
	eng, _, stakes := newTestEngine(t, types.StrategyOverUnder)
	ctx := context.Background()

	over := Leg{ContractID: "ou-over", Side: types.SideDigitOver, Outcome: types.OutcomePending}
	under := Leg{ContractID: "ou-under", Side: types.SideDigitUnder, Outcome: types.OutcomePending}
	require.NoError(t, eng.SendSync(ctx, placementEvent(t, over, under)))

	require.NoError(t, eng.SendSync(ctx, settledEvent(t, "ou-over", 0.95, "push")))
	assert.NotNil(t, eng.Snapshot().Active, "trade stays open until every leg settles")

	require.NoError(t, eng.SendSync(ctx, settledEvent(t, "ou-under", -0.35, "poll")))

	snap := eng.Snapshot()
	assert.Nil(t, snap.Active)
	assert.Equal(t, 1, snap.Wins, "one profitable leg wins the combined trade")
	assert.Equal(t, 0, snap.Losses)
	assert.Equal(t, 0, stakes.Snapshot().ConsecutiveLosses)
	assert.InDelta(t, 0.35, stakes.Get(), 1e-9)
}

func TestTrendTradeLifecycle(t *testing.T) {
	eng, ft, stakes := newTestEngine(t, types.StrategyTrendRise)
	ctx := context.Background()

	require.NoError(t, eng.SendSync(ctx, mustEvent(t, EvtEvaluate, nil)))

	// Placement runs off the loop and reports back asynchronously.
	require.Eventually(t, func() bool {
		return eng.Snapshot().Active != nil
	}, 3*time.Second, 10*time.Millisecond, "rising ticks should produce a bullish placement")

	snap := eng.Snapshot()
	require.Len(t, snap.Active.Legs, 1)
	assert.Equal(t, 1, ft.placedCount())
	assert.Equal(t, PhaseMonitoring, snap.Phase)
	assert.InDelta(t, 0.35, snap.Active.Stake, 1e-9)

	ft.settle(snap.Active.Legs[0].ContractID, -0.35)

	require.Eventually(t, func() bool {
		return eng.Snapshot().Active == nil
	}, 3*time.Second, 10*time.Millisecond)

	snap = eng.Snapshot()
	assert.Equal(t, 1, snap.Losses)
	assert.Equal(t, 1, stakes.Snapshot().ConsecutiveLosses)
	assert.InDelta(t, 0.70, stakes.Get(), 1e-9, "next stake doubles after the loss")
}

func TestPollSettlesWithoutPush(t *testing.T) {
	eng, ft, _ := newTestEngine(t, types.StrategyTrendRise)
	ctx := context.Background()

	res, err := ft.PlaceOrder(ctx, exchange.OrderSpec{Symbol: "R_100", Side: types.SideRise})
	require.NoError(t, err)
	leg := Leg{ContractID: res.ContractID, Side: types.SideRise, Outcome: types.OutcomePending}
	require.NoError(t, eng.SendSync(ctx, placementEvent(t, leg)))

	// Settle on the venue without firing the callback, then poll.
	ft.mu.Lock()
	ft.states[res.ContractID] = exchange.ContractState{ContractID: res.ContractID, IsSettled: true, Profit: 0.60}
	ft.mu.Unlock()

	require.NoError(t, eng.SendSync(ctx, mustEvent(t, EvtPollContracts, nil)))

	require.Eventually(t, func() bool {
		return eng.Snapshot().Active == nil
	}, 3*time.Second, 10*time.Millisecond, "poll path alone must settle the trade")
	assert.Equal(t, 1, eng.Snapshot().Wins)
}

func TestJournalRoundTrip(t *testing.T) {
	j, err := OpenJournal(t.TempDir() + "/journal.db")
	require.NoError(t, err)
	defer j.Close()

	evt := EventEnvelope{
		ID:        newEventID(),
		Type:      EvtContractUpdate,
		Symbol:    "R_100",
		Payload:   json.RawMessage(`{"contract_id":"c-1"}`),
		CreatedAt: time.Now(),
	}
	require.NoError(t, j.Append(evt))

	got, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, evt.ID, got[0].ID)
	assert.Equal(t, EvtContractUpdate, got[0].Type)
	assert.JSONEq(t, `{"contract_id":"c-1"}`, string(got[0].Payload))
}
