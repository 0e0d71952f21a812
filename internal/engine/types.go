package engine

import (
	"encoding/json"
	"time"

	"riptide/internal/types"
)

// Phase is the coordinator lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePlacing    Phase = "placing"
	PhaseMonitoring Phase = "monitoring"
	PhaseSettling   Phase = "settling"
)

// Leg is one contract of a trade.
type Leg struct {
	ContractID string             `json:"contract_id"`
	Side       types.ContractSide `json:"side"`
	EntryPrice float64            `json:"entry_price"`
	Outcome    types.LegOutcome   `json:"outcome"`
	Profit     float64            `json:"profit"`
}

// ContractHandle is the single live trade. Created on successful placement,
// owned exclusively by the engine loop, discarded once settled and consumed.
type ContractHandle struct {
	ID       string             `json:"id"`
	Strategy types.StrategyKind `json:"strategy"`
	Symbol   string             `json:"symbol"`
	Stake    float64            `json:"stake"`
	Legs     []Leg              `json:"legs"`
	PlacedAt time.Time          `json:"placed_at"`
}

func (h *ContractHandle) allLegsTerminal() bool {
	for _, leg := range h.Legs {
		if leg.Outcome == types.OutcomePending {
			return false
		}
	}
	return len(h.Legs) > 0
}

// EventType tags messages into the engine loop.
type EventType string

const (
	// EvtEvaluate asks the loop to consider placing a trade.
	EvtEvaluate EventType = "EVALUATE"
	// EvtPollContracts triggers a status query for the active trade's legs.
	EvtPollContracts EventType = "POLL_CONTRACTS"
	// EvtContractUpdate carries a contract status observation, from either
	// the push subscription or the poll loop.
	EvtContractUpdate EventType = "CONTRACT_UPDATE"
	// EvtPlacementResult reports the outcome of an async placement.
	EvtPlacementResult EventType = "PLACEMENT_RESULT"
)

// EventEnvelope is the message format of the engine actor.
type EventEnvelope struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Symbol    string          `json:"symbol,omitempty"`

	// ReplyCh unblocks synchronous senders once the event is handled.
	ReplyCh chan error `json:"-"`
}

// ContractUpdatePayload is one observation of a contract's status.
type ContractUpdatePayload struct {
	ContractID   string  `json:"contract_id"`
	IsSettled    bool    `json:"is_settled"`
	Profit       float64 `json:"profit"`
	CurrentPrice float64 `json:"current_price"`
	// Source records which notification path produced the observation
	// ("push" or "poll"); settlement handling is idempotent across both.
	Source string `json:"source"`
}

// PlacementResultPayload reports an async placement back to the loop.
type PlacementResultPayload struct {
	TradeID  string             `json:"trade_id"`
	Strategy types.StrategyKind `json:"strategy"`
	Symbol   string             `json:"symbol"`
	Stake    float64            `json:"stake"`
	Legs     []Leg              `json:"legs"`
	Error    string             `json:"error,omitempty"`
}

// State is the engine's in-memory state, touched only by the loop goroutine.
type State struct {
	Phase  Phase           `json:"phase"`
	Active *ContractHandle `json:"active,omitempty"`
	// TradeInProgress is set while a placement attempt is in flight and
	// cleared in the placement-result handler, error or not.
	TradeInProgress bool      `json:"trade_in_progress"`
	LastTradeAt     time.Time `json:"last_trade_at"`
	LastSettledAt   time.Time `json:"last_settled_at"`
	Wins            int       `json:"wins"`
	Losses          int       `json:"losses"`

	// lastProcessedLegs holds the leg contract ids of the most recently
	// settled trade; a second notification for any of them is a no-op.
	lastProcessedLegs map[string]struct{}
}

func NewState() *State {
	return &State{
		Phase:             PhaseIdle,
		lastProcessedLegs: make(map[string]struct{}),
	}
}

func (s *State) markProcessed(h *ContractHandle) {
	s.lastProcessedLegs = make(map[string]struct{}, len(h.Legs))
	for _, leg := range h.Legs {
		s.lastProcessedLegs[leg.ContractID] = struct{}{}
	}
}

func (s *State) alreadyProcessed(contractID string) bool {
	_, ok := s.lastProcessedLegs[contractID]
	return ok
}

func (s *State) clone() *State {
	cp := *s
	if s.Active != nil {
		h := *s.Active
		h.Legs = append([]Leg(nil), s.Active.Legs...)
		cp.Active = &h
	}
	cp.lastProcessedLegs = nil
	return &cp
}
