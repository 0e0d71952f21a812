// Package visual renders the trend filter output as an interactive HTML page
// for the dashboard. One block per configured timeframe: the candle series
// with the decycler line overlaid, so a flat filter against a moving price is
// visible at a glance.
package visual

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"riptide/internal/analysis/trend"
	"riptide/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorFilter        = "#fbbf24"

	chartWidthPx  = 1400
	chartHeightPx = 480
)

// TimeframeBlock is the render input for one granularity.
type TimeframeBlock struct {
	GranularitySec int64
	Candles        []market.Candle
	Filtered       []float64
	Class          trend.Classification
}

// RenderTrendPage writes the composite page for symbol to w.
func RenderTrendPage(w io.Writer, symbol string, blocks []TimeframeBlock) error {
	if symbol == "" {
		return fmt.Errorf("symbol required for trend render")
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	for _, block := range blocks {
		if len(block.Candles) == 0 {
			continue
		}
		page.AddCharts(buildTimeframeChart(symbol, block))
	}
	if len(page.Charts) == 0 {
		return fmt.Errorf("no candle data to render for %s", symbol)
	}
	return page.Render(w)
}

func buildTimeframeChart(symbol string, block TimeframeBlock) *charts.Kline {
	minPrice, maxPrice := priceBounds(block.Candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", strings.ToUpper(symbol), granularityLabel(block.GranularitySec)),
			Subtitle:      fmt.Sprintf("decycler: %s", block.Class),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := buildXAxis(block.Candles)
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", buildKlineSeries(block.Candles))

	filter := charts.NewLine()
	filter.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	filter.SetXAxis(xAxis)
	filter.AddSeries("Decycler", toLineData(block.Filtered, len(block.Candles)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorFilter, Width: 2}))
	kline.Overlap(filter)
	return kline
}

func granularityLabel(sec int64) string {
	if sec >= 60 && sec%60 == 0 {
		return fmt.Sprintf("%dm", sec/60)
	}
	return fmt.Sprintf("%ds", sec)
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.Unix(c.OpenTime, 0).UTC().Format("01-02 15:04")
	}
	return x
}

func buildKlineSeries(candles []market.Candle) []opts.KlineData {
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	return data
}

// toLineData right-aligns the filter series under the candle axis; the filter
// is shorter than the candle series when seeding consumed the head.
func toLineData(series []float64, length int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		val := series[i]
		if math.IsNaN(val) {
			line[offset+i] = opts.LineData{Value: nil}
		} else {
			line[offset+i] = opts.LineData{Value: round(val, 4)}
		}
	}
	return line
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func priceBounds(candles []market.Candle) (minVal, maxVal float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	minVal = candles[0].Low
	maxVal = candles[0].High
	for _, c := range candles {
		if c.Low < minVal {
			minVal = c.Low
		}
		if c.High > maxVal {
			maxVal = c.High
		}
	}
	return minVal, maxVal
}
