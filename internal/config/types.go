package config

import "strings"

// Config is the root configuration of the backtester.
type Config struct {
	App      AppConfig      `toml:"app"`
	Data     DataConfig     `toml:"data"`
	Trend    TrendConfig    `toml:"trend"`
	Strategy StrategyConfig `toml:"strategy"`
	Backtest BacktestConfig `toml:"backtest"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	LogJSON  bool   `toml:"log_json"`
	HTTPAddr string `toml:"http_addr"`
}

// DataConfig covers history download and both sqlite databases.
type DataConfig struct {
	CandleDBDir        string `toml:"candle_db_dir"`
	ResultsDBPath      string `toml:"results_db_path"`
	Source             string `toml:"source"`
	KrakenRESTURL      string `toml:"kraken_rest_url"`
	BinanceRESTURL     string `toml:"binance_rest_url"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	ProxyURL           string `toml:"proxy_url"`
	RateLimitPerMin    int    `toml:"rate_limit_per_min"`
	MaxConcurrent      int    `toml:"max_concurrent"`
}

// TrendConfig sets the windows of the stored trend label.
type TrendConfig struct {
	ShortWindow int `toml:"short_window"`
	LongWindow  int `toml:"long_window"`
	RSIPeriod   int `toml:"rsi_period"`
	EMAPeriod   int `toml:"ema_period"`
	WarmupDays  int `toml:"warmup_days"`
}

// StrategyConfig is the default exit ladder. An explicitly empty
// trailing_stop_thresholds list disables the trailing stop.
type StrategyConfig struct {
	TakeProfitPercentage   float64   `toml:"take_profit_percentage"`
	TrailingStopThresholds []float64 `toml:"trailing_stop_thresholds"`
	FirstStopPercentage    float64   `toml:"first_stop_percentage"`
	ProfilesPath           string    `toml:"profiles_path"`
}

type BacktestConfig struct {
	Assets              []string           `toml:"assets"`
	PerAssetTradeVolume map[string]float64 `toml:"per_asset_trade_volume"`
	InitialCashBalance  float64            `toml:"initial_cash_balance"`
	InitialPositions    map[string]float64 `toml:"initial_positions"`
	StartDate           string             `toml:"start_date"`
	EndDate             string             `toml:"end_date"`
	MaxConcurrentRuns   int                `toml:"max_concurrent_runs"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
