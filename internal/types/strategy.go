package types

import "fmt"

// StrategyKind identifies one of the built-in strategies. It is a closed set;
// the engine switches over it exhaustively.
type StrategyKind string

const (
	// StrategyTrendRise buys a single rise contract on an aligned bullish verdict.
	StrategyTrendRise StrategyKind = "trend_rise"
	// StrategyTrendFall buys a single fall contract on an aligned bearish verdict.
	StrategyTrendFall StrategyKind = "trend_fall"
	// StrategyOverUnder places the dual-leg digit trade (over 5 + under 4).
	StrategyOverUnder StrategyKind = "over_under"
)

func ParseStrategyKind(s string) (StrategyKind, error) {
	switch StrategyKind(s) {
	case StrategyTrendRise, StrategyTrendFall, StrategyOverUnder:
		return StrategyKind(s), nil
	}
	return "", fmt.Errorf("unknown strategy kind %q", s)
}

// DualLeg reports whether the strategy opens two correlated contracts per trade.
func (k StrategyKind) DualLeg() bool {
	return k == StrategyOverUnder
}

// ContractSide is the direction of a single contract leg.
type ContractSide string

const (
	SideRise       ContractSide = "rise"
	SideFall       ContractSide = "fall"
	SideDigitOver  ContractSide = "digit_over"
	SideDigitUnder ContractSide = "digit_under"
)

// LegOutcome is the terminal result of one contract leg.
type LegOutcome string

const (
	OutcomePending LegOutcome = "pending"
	OutcomeWin     LegOutcome = "win"
	OutcomeLoss    LegOutcome = "loss"
)
