package config

import (
	"time"

	"momentum/internal/analysis/indicator"
	"momentum/internal/backtest"

	"github.com/shopspring/decimal"
)

// BacktestDefaults converts the strategy and backtest sections into the run
// defaults requests are layered on.
func (c *Config) BacktestDefaults() backtest.Defaults {
	def := backtest.Defaults{
		Assets:           append([]string(nil), c.Backtest.Assets...),
		Volumes:          toDecimals(c.Backtest.PerAssetTradeVolume),
		InitialCash:      decimal.NewFromFloat(c.Backtest.InitialCashBalance),
		InitialPositions: toDecimals(c.Backtest.InitialPositions),
		TakeProfitPct:    c.Strategy.TakeProfitPercentage,
		Thresholds:       append([]float64{}, c.Strategy.TrailingStopThresholds...),
		FirstStopPct:     c.Strategy.FirstStopPercentage,
	}
	// validated on load
	def.Start, _ = parseOptionalDate("backtest.start_date", c.Backtest.StartDate)
	def.End, _ = parseOptionalDate("backtest.end_date", c.Backtest.EndDate)
	return def
}

func (c *Config) TrendSettings() indicator.Settings {
	return indicator.Settings{
		ShortWindow: c.Trend.ShortWindow,
		LongWindow:  c.Trend.LongWindow,
		RSIPeriod:   c.Trend.RSIPeriod,
		EMAPeriod:   c.Trend.EMAPeriod,
	}
}

func (d DataConfig) HTTPTimeout() time.Duration {
	return time.Duration(d.HTTPTimeoutSeconds) * time.Second
}

func toDecimals(in map[string]float64) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = decimal.NewFromFloat(v)
	}
	return out
}
