package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RSI extreme levels used by the trend veto.
const (
	RSIOverbought = 70.0
	RSIOversold   = 30.0
)

// RSILatest returns the most recent valid RSI value for the close series.
// ok is false when the series is too short to produce one.
func RSILatest(closes []float64, period int) (float64, bool) {
	if period <= 0 {
		period = 14
	}
	if len(closes) <= period {
		return 0, false
	}
	series := sanitizeSeries(talib.Rsi(closes, period))
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// EMASeries computes an EMA with TALib's zero-seeded head trimmed off, so the
// series starts where enough candles exist.
func EMASeries(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	series := sanitizeSeries(talib.Ema(closes, period))
	start := 0
	for start < len(series) && math.Abs(series[start]) <= 1e-9 {
		start++
	}
	return series[start:]
}

func sanitizeSeries(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}
