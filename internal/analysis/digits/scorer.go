package digits

import (
	"math"
	"strconv"

	"riptide/internal/market"
)

// MinSampleSize is the tick count below which a symbol is not ready to score.
const MinSampleSize = 20

// Observation is the digit-frequency input for one symbol.
type Observation struct {
	Symbol           string
	CurrentLastDigit int
	Counts           [10]int
	SampleSize       int
}

// Opportunity is the scored output for one symbol. Score is non-zero only
// when every entry condition holds.
type Opportunity struct {
	Symbol          string  `json:"symbol"`
	Ready           bool    `json:"ready"`
	MeetsConditions bool    `json:"meets_conditions"`
	LeastDigit      int     `json:"least_digit"`
	MostDigit       int     `json:"most_digit"`
	Score           float64 `json:"score"`
}

// Observe builds an Observation from the recent tick window, reading each
// price's last digit at the symbol's pip precision.
func Observe(symbol string, ticks []market.Tick, pipDigits int) Observation {
	obs := Observation{Symbol: symbol, CurrentLastDigit: -1}
	for _, t := range ticks {
		d := LastDigit(t.Price, pipDigits)
		if d < 0 {
			continue
		}
		obs.Counts[d]++
		obs.SampleSize++
		obs.CurrentLastDigit = d
	}
	return obs
}

// LastDigit extracts the final digit of price rendered at pipDigits decimal
// places. Returns -1 for non-finite prices.
func LastDigit(price float64, pipDigits int) int {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return -1
	}
	if pipDigits < 0 {
		pipDigits = 2
	}
	s := strconv.FormatFloat(price, 'f', pipDigits, 64)
	return int(s[len(s)-1] - '0')
}

// Score evaluates the dual-leg over/under entry conditions:
//  1. the current last digit is 4 or 5,
//  2. the least-frequent digit (lowest digit wins ties) is 4 or 5,
//  3. the most-frequent digit lies outside {4,5}.
//
// When all hold, score = (mostCount-leastCount) * sampleSize/100.
func Score(obs Observation) Opportunity {
	op := Opportunity{
		Symbol: obs.Symbol,
		Ready:  obs.SampleSize >= MinSampleSize,
	}
	if !op.Ready {
		return op
	}

	least, most := 0, 0
	for d := 1; d < 10; d++ {
		if obs.Counts[d] < obs.Counts[least] {
			least = d
		}
		if obs.Counts[d] > obs.Counts[most] {
			most = d
		}
	}
	op.LeastDigit = least
	op.MostDigit = most

	midCurrent := obs.CurrentLastDigit == 4 || obs.CurrentLastDigit == 5
	midLeast := least == 4 || least == 5
	outerMost := most > 5 || most < 4
	if !midCurrent || !midLeast || !outerMost {
		return op
	}

	op.MeetsConditions = true
	op.Score = float64(obs.Counts[most]-obs.Counts[least]) * float64(obs.SampleSize) / 100
	return op
}

// Best scores every observation and returns the highest-scoring qualifying
// opportunity. Ties keep the first symbol in input order. ok is false when no
// symbol qualifies.
func Best(universe []Observation) (Opportunity, bool) {
	var best Opportunity
	found := false
	for _, obs := range universe {
		op := Score(obs)
		if !op.MeetsConditions {
			continue
		}
		if !found || op.Score > best.Score {
			best = op
			found = true
		}
	}
	return best, found
}
