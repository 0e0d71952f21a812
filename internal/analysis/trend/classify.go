package trend

import "time"

// Classification is the per-timeframe trend call.
type Classification string

const (
	Bullish Classification = "bullish"
	Bearish Classification = "bearish"
	Neutral Classification = "neutral"
)

// Sample is one timeframe's classification for one aggregation cycle.
// Samples are superseded each cycle, never mutated.
type Sample struct {
	GranularitySec int64          `json:"granularity_sec"`
	Class          Classification `json:"class"`
	FilterValue    float64        `json:"filter_value"`
	Synthesized    bool           `json:"synthesized"`
	At             time.Time      `json:"at"`
}

// Classify reads the short and medium slope off the filtered close series.
// Both slopes up is bullish, both down bearish, anything else neutral.
// Fewer than 3 filtered points is neutral by definition.
func Classify(filtered []float64) Classification {
	if len(filtered) < 3 {
		return Neutral
	}
	cur := filtered[len(filtered)-1]
	prev := filtered[len(filtered)-2]
	prev2 := filtered[len(filtered)-3]

	switch {
	case cur > prev && prev > prev2:
		return Bullish
	case cur < prev && prev < prev2:
		return Bearish
	default:
		return Neutral
	}
}
