package trend

import (
	"context"
	"sort"
	"time"

	"riptide/internal/analysis/indicator"
	"riptide/internal/logger"
	"riptide/internal/market"
)

// AlignmentClass is the combined verdict over all configured timeframes.
type AlignmentClass string

const (
	AlignedBullish AlignmentClass = "aligned_bullish"
	AlignedBearish AlignmentClass = "aligned_bearish"
	Mixed          AlignmentClass = "mixed"
	NoSignal       AlignmentClass = "neutral"
)

// Verdict carries the alignment call and the samples that produced it.
type Verdict struct {
	Class   AlignmentClass `json:"class"`
	Samples []Sample       `json:"samples"`
}

// Config tunes the multi-timeframe aggregation.
type Config struct {
	// TimeframesSec lists candle granularities in seconds, shortest first.
	TimeframesSec []int64
	Alpha         float64
	// AlignThreshold is the fraction of timeframes that must agree for an
	// aligned verdict when agreement is not unanimous.
	AlignThreshold float64
	CandleCount    int
	// RSIVeto suppresses an aligned verdict when the shortest timeframe is
	// already at an RSI extreme in the verdict direction.
	RSIVeto   bool
	RSIPeriod int
}

func (c Config) withDefaults() Config {
	if len(c.TimeframesSec) == 0 {
		c.TimeframesSec = []int64{60, 120, 180, 300, 600, 900}
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		c.Alpha = DefaultAlpha
	}
	if c.AlignThreshold <= 0 || c.AlignThreshold > 1 {
		c.AlignThreshold = 0.8
	}
	if c.CandleCount <= 0 {
		c.CandleCount = 60
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	sorted := append([]int64(nil), c.TimeframesSec...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	c.TimeframesSec = sorted
	return c
}

// Aggregator runs the decycler per timeframe and folds the per-timeframe
// classifications into one alignment verdict.
type Aggregator struct {
	cfg    Config
	source market.Source
	ticks  *market.TickBuffer
	nowFn  func() time.Time
}

func NewAggregator(cfg Config, source market.Source, ticks *market.TickBuffer) *Aggregator {
	return &Aggregator{
		cfg:    cfg.withDefaults(),
		source: source,
		ticks:  ticks,
		nowFn:  time.Now,
	}
}

// Config returns the normalized configuration, defaults applied.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Evaluate samples every configured timeframe for symbol and returns the
// alignment verdict. Timeframes without enough data degrade to neutral
// samples rather than failing the cycle.
func (a *Aggregator) Evaluate(ctx context.Context, symbol string) Verdict {
	samples := make([]Sample, 0, len(a.cfg.TimeframesSec))
	for _, gran := range a.cfg.TimeframesSec {
		samples = append(samples, a.sampleTimeframe(ctx, symbol, gran))
	}
	verdict := Verdict{Class: a.align(samples), Samples: samples}
	if a.cfg.RSIVeto {
		verdict.Class = a.applyRSIVeto(ctx, symbol, verdict.Class)
	}
	return verdict
}

func (a *Aggregator) sampleTimeframe(ctx context.Context, symbol string, gran int64) Sample {
	sample := Sample{GranularitySec: gran, Class: Neutral, At: a.nowFn()}

	candles, err := a.source.FetchCandles(ctx, symbol, gran, a.cfg.CandleCount)
	if err != nil || len(candles) < 3 {
		if err != nil {
			logger.Debugf("trend: candle fetch %s@%ds failed, synthesizing from ticks: %v", symbol, gran, err)
		}
		candles = market.SynthesizeCandles(a.ticks.Recent(symbol, 0), gran)
		sample.Synthesized = true
	}
	filtered := Decycler(market.Closes(candles), a.cfg.Alpha)
	if len(filtered) == 0 {
		return sample
	}
	sample.Class = Classify(filtered)
	sample.FilterValue = filtered[len(filtered)-1]
	return sample
}

// align folds sample classifications into a verdict. Unanimity wins outright;
// otherwise a direction needs at least AlignThreshold of all samples and must
// strictly beat the opposite count. The reversal guard downgrades to mixed
// when the short-horizon half has abandoned a direction the long-horizon half
// still holds.
func (a *Aggregator) align(samples []Sample) AlignmentClass {
	if len(samples) == 0 {
		return NoSignal
	}
	var bull, bear int
	for _, s := range samples {
		switch s.Class {
		case Bullish:
			bull++
		case Bearish:
			bear++
		}
	}
	total := len(samples)
	if bull == total {
		return AlignedBullish
	}
	if bear == total {
		return AlignedBearish
	}

	threshold := a.cfg.AlignThreshold
	if frac(bull, total) >= threshold && bull > bear {
		if a.reversing(samples, Bullish) {
			return Mixed
		}
		return AlignedBullish
	}
	if frac(bear, total) >= threshold && bear > bull {
		if a.reversing(samples, Bearish) {
			return Mixed
		}
		return AlignedBearish
	}
	return Mixed
}

// reversing reports a short-vs-long horizon split: the verdict direction is
// carried almost entirely by the longer half (>70% agreement) while the
// shorter half has abandoned it (<30%). Acting on dir in that state means
// trading into a flip.
func (a *Aggregator) reversing(samples []Sample, dir Classification) bool {
	if len(samples) < 4 {
		return false
	}
	half := len(samples) / 2
	short, long := samples[:half], samples[half:]

	return agreement(short, dir) < 0.3 && agreement(long, dir) > 0.7
}

func (a *Aggregator) applyRSIVeto(ctx context.Context, symbol string, class AlignmentClass) AlignmentClass {
	if class != AlignedBullish && class != AlignedBearish {
		return class
	}
	gran := a.cfg.TimeframesSec[0]
	candles, err := a.source.FetchCandles(ctx, symbol, gran, a.cfg.CandleCount)
	if err != nil || len(candles) == 0 {
		candles = market.SynthesizeCandles(a.ticks.Recent(symbol, 0), gran)
	}
	rsi, ok := indicator.RSILatest(market.Closes(candles), a.cfg.RSIPeriod)
	if !ok {
		return class
	}
	if (class == AlignedBullish && rsi >= indicator.RSIOverbought) ||
		(class == AlignedBearish && rsi <= indicator.RSIOversold) {
		logger.Infof("trend: %s verdict %s vetoed, rsi=%.1f at extreme", symbol, class, rsi)
		return Mixed
	}
	return class
}

func agreement(samples []Sample, dir Classification) float64 {
	if len(samples) == 0 {
		return 0
	}
	n := 0
	for _, s := range samples {
		if s.Class == dir {
			n++
		}
	}
	return frac(n, len(samples))
}

func frac(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
