package report

import (
	"fmt"
	"io"

	"momentum/internal/backtest"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorBackground    = "#0f172a"
	colorTextPrimary   = "#e2e8f0"
	colorTextSecondary = "#94a3b8"
	colorEquity        = "#22c55e"
	colorCash          = "#38bdf8"
	colorHoldings      = "#f59e0b"
)

// EquityChart renders the daily equity curve as a standalone HTML page.
func EquityChart(w io.Writer, title string, snaps []backtest.Snapshot) error {
	if len(snaps) == 0 {
		return fmt.Errorf("no snapshots to chart")
	}
	xAxis := make([]string, 0, len(snaps))
	equity := make([]opts.LineData, 0, len(snaps))
	cash := make([]opts.LineData, 0, len(snaps))
	holdings := make([]opts.LineData, 0, len(snaps))
	for _, s := range snaps {
		xAxis = append(xAxis, s.Date.Format("2006-01-02"))
		equity = append(equity, opts.LineData{Value: s.Equity.Round(2).InexactFloat64()})
		cash = append(cash, opts.LineData{Value: s.Cash.Round(2).InexactFloat64()})
		holdings = append(holdings, opts.LineData{Value: s.Holdings.Round(2).InexactFloat64()})
	}
	maxDD := backtest.MaxDrawdownPct(snaps)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           "1200px",
			Height:          "560px",
			BackgroundColor: colorBackground,
			PageTitle:       title,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      fmt.Sprintf("%s -> %s | max drawdown %s%%", xAxis[0], xAxis[len(xAxis)-1], maxDD.StringFixed(2)),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30", TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
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
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetXAxis(xAxis).
		AddSeries("Equity", equity, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2})).
		AddSeries("Cash", cash, charts.WithLineStyleOpts(opts.LineStyle{Color: colorCash, Width: 1})).
		AddSeries("Holdings", holdings, charts.WithLineStyleOpts(opts.LineStyle{Color: colorHoldings, Width: 1}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}
