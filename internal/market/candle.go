package market

// Tick is a single price update for a symbol.
type Tick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Epoch  int64   `json:"epoch"`
}

// Candle aggregates open/high/low/close over one granularity bucket.
// OpenTime is the bucket start, i.e. floor(epoch/granularity)*granularity.
type Candle struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
}

// SynthesizeCandles groups ticks into fixed-size buckets and tracks running
// OHLC per bucket. Only the most recent bucket is still mutable by later
// ticks; earlier buckets are final. The conversion is deterministic for a
// given tick stream, so re-running it over the same buffer yields the same
// candles.
func SynthesizeCandles(ticks []Tick, granularitySec int64) []Candle {
	if granularitySec <= 0 || len(ticks) == 0 {
		return nil
	}
	var out []Candle
	for _, t := range ticks {
		bucket := (t.Epoch / granularitySec) * granularitySec
		if n := len(out); n > 0 && out[n-1].OpenTime == bucket {
			c := &out[n-1]
			if t.Price > c.High {
				c.High = t.Price
			}
			if t.Price < c.Low {
				c.Low = t.Price
			}
			c.Close = t.Price
			continue
		}
		out = append(out, Candle{
			OpenTime: bucket,
			Open:     t.Price,
			High:     t.Price,
			Low:      t.Price,
			Close:    t.Price,
		})
	}
	return out
}

// Closes extracts the close series from candles.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
