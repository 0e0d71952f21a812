package exchange

import (
	"context"

	"riptide/internal/types"
)

// OrderSpec describes one contract leg to open.
type OrderSpec struct {
	Symbol        string
	Side          types.ContractSide
	Stake         float64
	DurationTicks int
	// Barrier is the digit barrier for digit contracts ("5" for over 5,
	// "4" for under 4). Empty for rise/fall.
	Barrier string
}

// OrderResult is the venue's confirmation of a placed order.
type OrderResult struct {
	ContractID string
	EntryPrice float64
}

// ContractState is a point-in-time view of an open or settled contract.
type ContractState struct {
	ContractID   string
	IsSettled    bool
	Profit       float64
	CurrentPrice float64
}

// Trading is the order side of the venue client. Calls are expected to carry
// their own timeouts; a timed-out call proves nothing about the underlying
// trade and callers must re-query instead of assuming an outcome.
type Trading interface {
	PlaceOrder(ctx context.Context, spec OrderSpec) (*OrderResult, error)

	QueryContract(ctx context.Context, contractID string) (*ContractState, error)

	// SubscribeContract registers a push callback for status changes of one
	// contract. Best effort: the poll path covers missed pushes.
	SubscribeContract(ctx context.Context, contractID string, fn func(ContractState)) error
}
