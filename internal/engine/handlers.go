package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"riptide/internal/analysis/digits"
	"riptide/internal/analysis/trend"
	"riptide/internal/gateway/exchange"
	"riptide/internal/logger"
	"riptide/internal/store/gormstore"
	"riptide/internal/types"
)

// handleEvaluate is the entry gate: at most one trade may be live, and a new
// one may not start while a placement is still in flight.
func (e *Engine) handleEvaluate() error {
	if e.state.TradeInProgress {
		logger.Debugf("engine: evaluate skipped, placement in flight")
		return nil
	}
	if e.state.Active != nil {
		logger.Debugf("engine: evaluate skipped, contract %s still open", e.state.Active.ID)
		return nil
	}

	now := e.nowFn()
	if cd := e.cooldown(); !e.state.LastTradeAt.IsZero() && now.Sub(e.state.LastTradeAt) < cd {
		logger.Debugf("engine: evaluate skipped, cooldown %s not elapsed", cd)
		return nil
	}
	if !e.state.LastSettledAt.IsZero() && now.Sub(e.state.LastSettledAt) < e.cfg.SettleQuiet {
		logger.Debugf("engine: evaluate skipped, quiet period after settlement")
		return nil
	}
	if !e.breaker.Allow() {
		logger.Warnf("engine: evaluate skipped, trading breaker open")
		return nil
	}

	symbol, specs := e.findEntry()
	if len(specs) == 0 {
		return nil
	}

	e.state.TradeInProgress = true
	e.state.Phase = PhasePlacing
	e.dispatchPlacement(symbol, specs)
	return nil
}

// findEntry evaluates the configured strategy and returns the order legs for
// the first symbol with a signal, or none.
func (e *Engine) findEntry() (string, []exchange.OrderSpec) {
	switch e.cfg.Strategy {
	case types.StrategyTrendRise:
		return e.findTrendEntry(trend.AlignedBullish, types.SideRise)
	case types.StrategyTrendFall:
		return e.findTrendEntry(trend.AlignedBearish, types.SideFall)
	case types.StrategyOverUnder:
		return e.findDigitEntry()
	default:
		logger.Errorf("engine: unknown strategy %q", e.cfg.Strategy)
		return "", nil
	}
}

func (e *Engine) findTrendEntry(want trend.AlignmentClass, side types.ContractSide) (string, []exchange.OrderSpec) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.QueryTimeout)
	defer cancel()

	for _, symbol := range e.cfg.Symbols {
		verdict := e.trends.Evaluate(ctx, symbol)
		if verdict.Class != want {
			continue
		}
		logger.Infof("engine: %s signal on %s across %d timeframes", want, symbol, len(verdict.Samples))
		return symbol, []exchange.OrderSpec{{
			Symbol:        symbol,
			Side:          side,
			DurationTicks: e.cfg.DurationTicks,
		}}
	}
	return "", nil
}

func (e *Engine) findDigitEntry() (string, []exchange.OrderSpec) {
	universe := make([]digits.Observation, 0, len(e.cfg.Symbols))
	for _, symbol := range e.cfg.Symbols {
		window := e.ticks.Recent(symbol, e.cfg.DigitWindow)
		universe = append(universe, digits.Observe(symbol, window, e.cfg.PipDigits))
	}
	best, ok := digits.Best(universe)
	if !ok {
		return "", nil
	}
	logger.Infof("engine: over/under signal on %s score=%.2f least=%d most=%d",
		best.Symbol, best.Score, best.LeastDigit, best.MostDigit)
	return best.Symbol, []exchange.OrderSpec{
		{Symbol: best.Symbol, Side: types.SideDigitOver, DurationTicks: e.cfg.DurationTicks, Barrier: "5"},
		{Symbol: best.Symbol, Side: types.SideDigitUnder, DurationTicks: e.cfg.DurationTicks, Barrier: "4"},
	}
}

// dispatchPlacement runs the venue calls off the loop goroutine and always
// reports back with a PLACEMENT_RESULT event, so TradeInProgress is cleared
// exactly once no matter how the calls end.
func (e *Engine) dispatchPlacement(symbol string, specs []exchange.OrderSpec) {
	stakeAmt := e.stakes.Get()
	payload := PlacementResultPayload{
		TradeID:  newEventID(),
		Strategy: e.cfg.Strategy,
		Symbol:   symbol,
		Stake:    stakeAmt,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PlaceTimeout)
		defer cancel()

		var firstErr error
		for _, spec := range specs {
			spec.Stake = stakeAmt
			res, err := e.trading.PlaceOrder(ctx, spec)
			if err != nil {
				e.breaker.RecordFailure()
				logger.Errorf("engine: placing %s %s failed: %v", spec.Side, spec.Symbol, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			e.breaker.RecordSuccess()
			payload.Legs = append(payload.Legs, Leg{
				ContractID: res.ContractID,
				Side:       spec.Side,
				EntryPrice: res.EntryPrice,
				Outcome:    types.OutcomePending,
			})
			e.mirrorOrder(spec)
		}
		if len(payload.Legs) == 0 && firstErr != nil {
			payload.Error = firstErr.Error()
		}

		if err := e.sendEvent(EvtPlacementResult, symbol, payload); err != nil {
			logger.Errorf("engine: reporting placement result failed: %v", err)
		}
	}()
}

// mirrorOrder copies the order to the mirror venues. Fire and forget: mirror
// failures never affect the primary trade.
func (e *Engine) mirrorOrder(spec exchange.OrderSpec) {
	for _, m := range e.mirrors {
		m := m
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PlaceTimeout)
			defer cancel()
			if _, err := m.PlaceOrder(ctx, spec); err != nil {
				logger.Warnf("engine: mirror order %s %s failed: %v", spec.Side, spec.Symbol, err)
			}
		}()
	}
}

func (e *Engine) handlePlacementResult(evt EventEnvelope) error {
	defer func() { e.state.TradeInProgress = false }()

	var payload PlacementResultPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		e.state.Phase = PhaseIdle
		return fmt.Errorf("decode placement result: %w", err)
	}
	if len(payload.Legs) == 0 {
		e.state.Phase = PhaseIdle
		logger.Warnf("engine: placement produced no contracts: %s", payload.Error)
		return nil
	}
	if payload.Error != "" {
		// Partial fill on a dual-leg trade: keep what was placed.
		logger.Warnf("engine: partial placement, %d leg(s) live: %s", len(payload.Legs), payload.Error)
	}

	handle := &ContractHandle{
		ID:       payload.TradeID,
		Strategy: payload.Strategy,
		Symbol:   payload.Symbol,
		Stake:    payload.Stake,
		Legs:     payload.Legs,
		PlacedAt: e.nowFn(),
	}
	e.state.Active = handle
	e.state.LastTradeAt = handle.PlacedAt
	e.state.Phase = PhaseMonitoring

	for _, leg := range handle.Legs {
		e.subscribeLeg(leg.ContractID)
	}

	e.persistTrade(handle, "", 0)
	e.notify.SendText(fmt.Sprintf("placed %s on %s stake=%.2f legs=%d",
		handle.Strategy, handle.Symbol, handle.Stake, len(handle.Legs)))
	logger.Infof("engine: trade %s live on %s with %d leg(s)", handle.ID, handle.Symbol, len(handle.Legs))
	return nil
}

// subscribeLeg wires the venue's push stream into the loop. The callback runs
// on the gateway's read goroutine, so it only forwards an event.
func (e *Engine) subscribeLeg(contractID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.QueryTimeout)
	defer cancel()

	err := e.trading.SubscribeContract(ctx, contractID, func(cs exchange.ContractState) {
		payload := ContractUpdatePayload{
			ContractID:   cs.ContractID,
			IsSettled:    cs.IsSettled,
			Profit:       cs.Profit,
			CurrentPrice: cs.CurrentPrice,
			Source:       "push",
		}
		if err := e.sendEvent(EvtContractUpdate, "", payload); err != nil {
			logger.Warnf("engine: forwarding push update for %s failed: %v", cs.ContractID, err)
		}
	})
	if err != nil {
		// The poll loop still covers this leg.
		logger.Warnf("engine: push subscription for %s failed, poll only: %v", contractID, err)
	}
}

// handlePoll queries every pending leg of the active trade. It is the safety
// net for lost push updates and the only settlement path after a reconnect.
func (e *Engine) handlePoll() error {
	if e.state.Active == nil {
		return nil
	}
	for _, leg := range e.state.Active.Legs {
		if leg.Outcome != types.OutcomePending {
			continue
		}
		contractID := leg.ContractID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.QueryTimeout)
			defer cancel()

			cs, err := e.trading.QueryContract(ctx, contractID)
			if err != nil {
				logger.Warnf("engine: poll query %s failed: %v", contractID, err)
				return
			}
			payload := ContractUpdatePayload{
				ContractID:   cs.ContractID,
				IsSettled:    cs.IsSettled,
				Profit:       cs.Profit,
				CurrentPrice: cs.CurrentPrice,
				Source:       "poll",
			}
			if err := e.sendEvent(EvtContractUpdate, "", payload); err != nil {
				logger.Warnf("engine: forwarding poll update for %s failed: %v", contractID, err)
			}
		}()
	}
	return nil
}

// handleContractUpdate folds one status observation into the active trade.
// Push and poll race to deliver the same settlement; the last-processed marker
// and the pending-leg check make the second arrival a no-op, so the stake is
// adjusted exactly once per trade.
func (e *Engine) handleContractUpdate(evt EventEnvelope) error {
	var payload ContractUpdatePayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return fmt.Errorf("decode contract update: %w", err)
	}

	if e.state.alreadyProcessed(payload.ContractID) {
		logger.Debugf("engine: %s update for settled contract %s, ignoring", payload.Source, payload.ContractID)
		return nil
	}
	handle := e.state.Active
	if handle == nil {
		logger.Debugf("engine: %s update for %s with no active trade, ignoring", payload.Source, payload.ContractID)
		return nil
	}

	idx := -1
	for i, leg := range handle.Legs {
		if leg.ContractID == payload.ContractID {
			idx = i
			break
		}
	}
	if idx < 0 {
		logger.Debugf("engine: update for unknown contract %s, ignoring", payload.ContractID)
		return nil
	}
	if !payload.IsSettled {
		return nil
	}
	if handle.Legs[idx].Outcome != types.OutcomePending {
		return nil
	}

	handle.Legs[idx].Profit = payload.Profit
	if payload.Profit > 0 {
		handle.Legs[idx].Outcome = types.OutcomeWin
	} else {
		handle.Legs[idx].Outcome = types.OutcomeLoss
	}
	logger.Infof("engine: leg %s settled via %s profit=%.2f", payload.ContractID, payload.Source, payload.Profit)

	if !handle.allLegsTerminal() {
		return nil
	}
	e.settle(handle)
	return nil
}

// settle closes out the trade: one combined outcome over all legs, one stake
// transition, then the slot is freed for the next evaluation.
func (e *Engine) settle(handle *ContractHandle) {
	e.state.Phase = PhaseSettling

	var total float64
	won := false
	for _, leg := range handle.Legs {
		total += leg.Profit
		if leg.Profit > 0 {
			won = true
		}
	}

	var next float64
	outcome := "loss"
	if won {
		outcome = "win"
		next = e.stakes.Reset()
		e.state.Wins++
	} else {
		next = e.stakes.Martingale()
		e.state.Losses++
	}

	e.state.markProcessed(handle)
	e.state.LastSettledAt = e.nowFn()
	e.state.Active = nil
	e.state.Phase = PhaseIdle

	e.persistTrade(handle, outcome, total)
	e.notify.SendText(fmt.Sprintf("settled %s on %s: %s profit=%.2f next_stake=%.2f",
		handle.Strategy, handle.Symbol, outcome, total, next))
	logger.Infof("engine: trade %s settled %s profit=%.2f wins=%d losses=%d next_stake=%.2f",
		handle.ID, outcome, total, e.state.Wins, e.state.Losses, next)
}

func (e *Engine) persistTrade(handle *ContractHandle, outcome string, profit float64) {
	if e.store == nil {
		return
	}
	rec := gormstore.TradeRecord{
		ContractID: handle.ID,
		Strategy:   string(handle.Strategy),
		Symbol:     handle.Symbol,
		Stake:      handle.Stake,
		Outcome:    outcome,
		Profit:     profit,
		PlacedAt:   handle.PlacedAt,
	}
	for _, leg := range handle.Legs {
		rec.Legs = append(rec.Legs, gormstore.TradeLeg{
			ContractID: leg.ContractID,
			Side:       string(leg.Side),
			EntryPrice: leg.EntryPrice,
			Outcome:    string(leg.Outcome),
			Profit:     leg.Profit,
		})
	}
	if outcome != "" {
		rec.SettledAt = e.nowFn()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := e.store.RecordTrade(ctx, rec); err != nil {
		logger.Errorf("engine: persisting trade %s failed: %v", handle.ID, err)
	}
}

func (e *Engine) sendEvent(t EventType, symbol string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return e.Send(EventEnvelope{
		ID:        newEventID(),
		Type:      t,
		Payload:   raw,
		CreatedAt: time.Now(),
		Symbol:    symbol,
	})
}

func (e *Engine) cooldown() time.Duration {
	if e.cfg.Strategy.DualLeg() {
		return e.cfg.DualLegCooldown
	}
	return e.cfg.SingleLegCooldown
}
