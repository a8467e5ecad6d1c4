package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"momentum/internal/market"
)

// Settings are the look-back windows of the daily trend label.
type Settings struct {
	ShortWindow int `json:"short_window"`
	LongWindow  int `json:"long_window"`
	RSIPeriod   int `json:"rsi_period"`
	EMAPeriod   int `json:"ema_period"`
}

func DefaultSettings() Settings {
	return Settings{ShortWindow: 50, LongWindow: 200, RSIPeriod: 14, EMAPeriod: 20}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.ShortWindow <= 0 {
		s.ShortWindow = def.ShortWindow
	}
	if s.LongWindow <= 0 {
		s.LongWindow = def.LongWindow
	}
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = def.RSIPeriod
	}
	if s.EMAPeriod <= 0 {
		s.EMAPeriod = def.EMAPeriod
	}
	return s
}

// Row is one candle with its indicators. Values inside an indicator's
// warm-up window are NaN.
type Row struct {
	market.Candle
	RSI      float64
	EMA      float64
	SMAShort float64
	SMALong  float64
	Trend    market.Trend
}

// Label computes RSI, EMA and both SMAs over daily candles and tags each
// day Bullish when the short SMA is above the long SMA. Days where either
// SMA is undefined are Bearish.
func Label(candles []market.Candle, cfg Settings) ([]Row, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles")
	}
	cfg = cfg.withDefaults()
	if cfg.ShortWindow >= cfg.LongWindow {
		return nil, fmt.Errorf("short window %d must be below long window %d", cfg.ShortWindow, cfg.LongWindow)
	}
	closes := market.Candles(candles).Closes()

	smaShort := movingAverage(closes, cfg.ShortWindow, talib.Sma)
	smaLong := movingAverage(closes, cfg.LongWindow, talib.Sma)
	ema := movingAverage(closes, cfg.EMAPeriod, talib.Ema)
	rsi := rsiSeries(closes, cfg.RSIPeriod)

	rows := make([]Row, len(candles))
	for i, c := range candles {
		rows[i] = Row{
			Candle:   c,
			RSI:      rsi[i],
			EMA:      ema[i],
			SMAShort: smaShort[i],
			SMALong:  smaLong[i],
			Trend:    trendOf(smaShort[i], smaLong[i]),
		}
	}
	return rows, nil
}

func trendOf(short, long float64) market.Trend {
	// NaN compares false, so warm-up days fall through to bearish
	if short > long {
		return market.TrendBullish
	}
	return market.TrendBearish
}

// movingAverage runs a talib average and blanks the first period-1 values,
// which talib leaves as zero.
func movingAverage(closes []float64, period int, fn func([]float64, int) []float64) []float64 {
	out := nanSeries(len(closes))
	if len(closes) < period {
		return out
	}
	raw := fn(closes, period)
	for i := period - 1; i < len(closes) && i < len(raw); i++ {
		out[i] = round4(raw[i])
	}
	return out
}

func rsiSeries(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if len(closes) <= period {
		return out
	}
	raw := talib.Rsi(closes, period)
	for i := period; i < len(closes) && i < len(raw); i++ {
		out[i] = round4(raw[i])
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Defined reports whether v is a computed indicator value.
func Defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round4(v float64) float64 {
	if !Defined(v) {
		return v
	}
	return math.Round(v*10000) / 10000
}
