package config

import (
	"fmt"
	"strings"
	"time"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Trend.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	if !validLogLevels[a.LogLevel] {
		return fmt.Errorf("app.log_level must be one of debug|info|warn|error, got %q", a.LogLevel)
	}
	return nil
}

func (d *DataConfig) validate() error {
	switch d.Source {
	case "kraken", "binance":
	default:
		return fmt.Errorf("data.source must be kraken or binance, got %q", d.Source)
	}
	if strings.TrimSpace(d.CandleDBDir) == "" {
		return fmt.Errorf("data.candle_db_dir cannot be empty")
	}
	if strings.TrimSpace(d.ResultsDBPath) == "" {
		return fmt.Errorf("data.results_db_path cannot be empty")
	}
	if d.RateLimitPerMin <= 0 {
		return fmt.Errorf("data.rate_limit_per_min must be > 0")
	}
	return nil
}

func (t *TrendConfig) validate() error {
	if t.ShortWindow <= 0 || t.LongWindow <= 0 {
		return fmt.Errorf("trend windows must be > 0")
	}
	if t.ShortWindow >= t.LongWindow {
		return fmt.Errorf("trend.short_window (%d) must be below trend.long_window (%d)", t.ShortWindow, t.LongWindow)
	}
	if t.RSIPeriod < 2 || t.EMAPeriod < 2 {
		return fmt.Errorf("trend.rsi_period and trend.ema_period must be >= 2")
	}
	if t.WarmupDays < 0 {
		return fmt.Errorf("trend.warmup_days must be >= 0")
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	if s.TakeProfitPercentage <= 0 {
		return fmt.Errorf("strategy.take_profit_percentage must be > 0")
	}
	if s.FirstStopPercentage < 0 {
		return fmt.Errorf("strategy.first_stop_percentage must be >= 0")
	}
	for i, th := range s.TrailingStopThresholds {
		if th <= 0 {
			return fmt.Errorf("strategy.trailing_stop_thresholds[%d] must be > 0", i)
		}
		if i > 0 && th <= s.TrailingStopThresholds[i-1] {
			return fmt.Errorf("strategy.trailing_stop_thresholds must be strictly ascending")
		}
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	seen := make(map[string]bool, len(b.Assets))
	for _, sym := range b.Assets {
		if sym == "" {
			return fmt.Errorf("backtest.assets contains an empty symbol")
		}
		if seen[sym] {
			return fmt.Errorf("backtest.assets lists %s twice", sym)
		}
		seen[sym] = true
	}
	for sym, v := range b.PerAssetTradeVolume {
		if v <= 0 {
			return fmt.Errorf("backtest.per_asset_trade_volume.%s must be > 0", sym)
		}
	}
	for sym, v := range b.InitialPositions {
		if v < 0 {
			return fmt.Errorf("backtest.initial_positions.%s must be >= 0", sym)
		}
	}
	if b.InitialCashBalance < 0 {
		return fmt.Errorf("backtest.initial_cash_balance must be >= 0")
	}
	start, err := parseOptionalDate("backtest.start_date", b.StartDate)
	if err != nil {
		return err
	}
	end, err := parseOptionalDate("backtest.end_date", b.EndDate)
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("backtest.end_date is before backtest.start_date")
	}
	return nil
}

func parseOptionalDate(key, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", key, err)
	}
	return t, nil
}
