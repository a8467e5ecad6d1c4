package market

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Trend is the precomputed moving-average label of a trading day.
type Trend string

const (
	TrendBullish Trend = "Bullish"
	TrendBearish Trend = "Bearish"
)

// ParseTrend accepts the stored label in any case.
func ParseTrend(raw string) (Trend, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bullish":
		return TrendBullish, nil
	case "bearish":
		return TrendBearish, nil
	default:
		return "", fmt.Errorf("unknown trend label %q", raw)
	}
}

// Bar is the only view of market data the simulator consumes.
type Bar struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
	Trend Trend           `json:"trend"`
}

// Series is a per-asset run of bars, ascending by date with one bar per day.
type Series []Bar

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// First returns the first bar; ok is false for an empty series.
func (s Series) First() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[0], true
}

// Last returns the last bar; ok is false for an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Between returns the bars whose day lies in [from, to].
func (s Series) Between(from, to time.Time) Series {
	from, to = DayOf(from), DayOf(to)
	lo := sort.Search(len(s), func(i int) bool { return !DayOf(s[i].Date).Before(from) })
	hi := sort.Search(len(s), func(i int) bool { return DayOf(s[i].Date).After(to) })
	if lo >= hi {
		return nil
	}
	return s[lo:hi]
}

// Index maps each day to its bar for constant-time lookup in the replay loop.
func (s Series) Index() map[time.Time]Bar {
	out := make(map[time.Time]Bar, len(s))
	for _, b := range s {
		out[DayOf(b.Date)] = b
	}
	return out
}

// Validate checks ordering, uniqueness and positive prices.
func (s Series) Validate() error {
	for i, b := range s {
		if !b.Close.IsPositive() {
			return fmt.Errorf("bar %s: close must be > 0, got %s", b.Date.Format(time.DateOnly), b.Close)
		}
		if b.Trend != TrendBullish && b.Trend != TrendBearish {
			return fmt.Errorf("bar %s: invalid trend %q", b.Date.Format(time.DateOnly), b.Trend)
		}
		if i > 0 && !DayOf(b.Date).After(DayOf(s[i-1].Date)) {
			return fmt.Errorf("bar %s: series must be strictly ascending by day", b.Date.Format(time.DateOnly))
		}
	}
	return nil
}

func sortCandles(cs Candles) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].OpenTime < cs[j].OpenTime })
}
