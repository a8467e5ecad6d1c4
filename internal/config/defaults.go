package config

import (
	"strings"
)

const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9991"
	defaultCandleDBDir       = "data/candles"
	defaultResultsDBPath     = "data/results.db"
	defaultDataSource        = "kraken"
	defaultKrakenREST        = "https://api.kraken.com"
	defaultBinanceREST       = "https://api.binance.com"
	defaultHTTPTimeout       = 15
	defaultRateLimitPerMin   = 30
	defaultDataConcurrent    = 2
	defaultShortWindow       = 50
	defaultLongWindow        = 200
	defaultRSIPeriod         = 14
	defaultEMAPeriod         = 20
	defaultWarmupDays        = 250
	defaultTakeProfitPct     = 0.30
	defaultFirstStopPct      = 0.05
	defaultProfilesPath      = "configs/presets.yaml"
	defaultInitialCash       = 500
	defaultMaxConcurrentRuns = 2
)

var (
	defaultThresholds = []float64{0.06, 0.10, 0.15, 0.20, 0.25}
	defaultAssets     = []string{"BTC-USD", "ETH-USD", "SOL-USD", "XRP-USD", "ADA-USD"}
	defaultVolumes    = map[string]float64{
		"BTC-USD": 0.0001,
		"ETH-USD": 0.002,
		"SOL-USD": 0.05,
		"XRP-USD": 10,
		"ADA-USD": 10,
	}
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Trend.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
	a.LogLevel = strings.ToLower(strings.TrimSpace(a.LogLevel))
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.candle_db_dir", &d.CandleDBDir, defaultCandleDBDir),
		stringFieldDefault("data.results_db_path", &d.ResultsDBPath, defaultResultsDBPath),
		stringFieldDefault("data.source", &d.Source, defaultDataSource),
		stringFieldDefault("data.kraken_rest_url", &d.KrakenRESTURL, defaultKrakenREST),
		stringFieldDefault("data.binance_rest_url", &d.BinanceRESTURL, defaultBinanceREST),
		intFieldDefault("data.http_timeout_seconds", &d.HTTPTimeoutSeconds, defaultHTTPTimeout),
		intFieldDefault("data.rate_limit_per_min", &d.RateLimitPerMin, defaultRateLimitPerMin),
		intFieldDefault("data.max_concurrent", &d.MaxConcurrent, defaultDataConcurrent),
	)
	d.Source = strings.ToLower(strings.TrimSpace(d.Source))
}

func (t *TrendConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("trend.short_window", &t.ShortWindow, defaultShortWindow),
		intFieldDefault("trend.long_window", &t.LongWindow, defaultLongWindow),
		intFieldDefault("trend.rsi_period", &t.RSIPeriod, defaultRSIPeriod),
		intFieldDefault("trend.ema_period", &t.EMAPeriod, defaultEMAPeriod),
		fieldDefault{
			key:   "trend.warmup_days",
			need:  func() bool { return t.WarmupDays <= 0 },
			apply: func() { t.WarmupDays = max(defaultWarmupDays, t.LongWindow+50) },
		},
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "strategy.take_profit_percentage",
			need:  func() bool { return s.TakeProfitPercentage <= 0 },
			apply: func() { s.TakeProfitPercentage = defaultTakeProfitPct },
		},
		fieldDefault{
			key:   "strategy.trailing_stop_thresholds",
			need:  func() bool { return len(s.TrailingStopThresholds) == 0 },
			apply: func() { s.TrailingStopThresholds = append([]float64(nil), defaultThresholds...) },
		},
		fieldDefault{
			key:   "strategy.first_stop_percentage",
			apply: func() { s.FirstStopPercentage = defaultFirstStopPct },
		},
		stringFieldDefault("strategy.profiles_path", &s.ProfilesPath, defaultProfilesPath),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "backtest.assets",
			need:  func() bool { return len(b.Assets) == 0 },
			apply: func() { b.Assets = append([]string(nil), defaultAssets...) },
		},
		fieldDefault{
			key:  "backtest.per_asset_trade_volume",
			need: func() bool { return len(b.PerAssetTradeVolume) == 0 },
			apply: func() {
				b.PerAssetTradeVolume = make(map[string]float64, len(defaultVolumes))
				for k, v := range defaultVolumes {
					b.PerAssetTradeVolume[k] = v
				}
			},
		},
		fieldDefault{
			key:   "backtest.initial_cash_balance",
			apply: func() { b.InitialCashBalance = defaultInitialCash },
		},
		intFieldDefault("backtest.max_concurrent_runs", &b.MaxConcurrentRuns, defaultMaxConcurrentRuns),
	)
	for i, sym := range b.Assets {
		b.Assets[i] = strings.ToUpper(strings.TrimSpace(sym))
	}
	// viper lower-cases map keys
	b.PerAssetTradeVolume = upperKeys(b.PerAssetTradeVolume)
	b.InitialPositions = upperKeys(b.InitialPositions)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func upperKeys(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return in
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}
