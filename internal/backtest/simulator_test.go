package backtest

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"momentum/internal/market"
	"momentum/internal/strategy/exit"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultSteps = []float64{0.06, 0.10, 0.15, 0.20, 0.25}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), append([]any{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func date(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// series builds consecutive daily bars from close/trend pairs, e.g.
// series("10", "B", "13.5", "B"). "B" is bullish, "S" bearish.
func series(pairs ...string) market.Series {
	return seriesFrom(0, pairs...)
}

func seriesFrom(offset int, pairs ...string) market.Series {
	out := make(market.Series, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		trend := market.TrendBullish
		if pairs[i+1] == "S" {
			trend = market.TrendBearish
		}
		out = append(out, market.Bar{Date: date(offset + i/2), Close: dec(pairs[i]), Trend: trend})
	}
	return out
}

func ladder(t *testing.T, steps []float64) exit.Ladder {
	t.Helper()
	l, err := exit.NewLadder(0.30, steps, 0.05)
	require.NoError(t, err)
	return l
}

func engineFor(t *testing.T, cash string, vols map[string]string, steps []float64, assets ...string) *Engine {
	t.Helper()
	volumes := make(map[string]decimal.Decimal, len(vols))
	for sym, v := range vols {
		volumes[sym] = dec(v)
	}
	e, err := NewEngine(EngineConfig{
		Assets:      assets,
		Volumes:     volumes,
		InitialCash: dec(cash),
		Ladder:      ladder(t, steps),
	})
	require.NoError(t, err)
	return e
}

func TestEngineKeepsLastDayOfIntradayBars(t *testing.T) {
	e := engineFor(t, "100", map[string]string{"X": "1"}, defaultSteps, "X")
	s := series("10", "B", "11", "B", "13.5", "B")
	for i := range s {
		s[i].Date = s[i].Date.Add(12 * time.Hour)
	}
	res, err := e.Run(context.Background(), map[string]market.Series{"X": s})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Days)
	assert.Equal(t, 3, res.Counters.Buys)
	assert.Equal(t, 1, res.Counters.LimitSells)
	assertDec(t, "13.5", res.LastClose["X"])
	require.Len(t, res.Snapshots, 3)
}

func TestEngineLimitSellFillsBeforeNewBuy(t *testing.T) {
	e := engineFor(t, "100", map[string]string{"X": "1"}, defaultSteps, "X")
	var steps []StepInfo
	e.Observe(func(s StepInfo) { steps = append(steps, s) })

	res, err := e.Run(context.Background(), map[string]market.Series{
		"X": series("10.00", "B", "13.50", "B"),
	})
	require.NoError(t, err)

	require.Len(t, steps, 2)
	assertDec(t, "90", steps[0].Cash)
	assertDec(t, "1", steps[0].Held)
	assertDec(t, "1", steps[0].Reserved)

	require.Len(t, res.Filled, 3)
	buy, limit, rebuy := res.Filled[0], res.Filled[1], res.Filled[2]
	assert.Equal(t, "buy", buy.Label())
	assertDec(t, "10", buy.FillPrice)
	assert.Equal(t, "limit_sell", limit.Label())
	assertDec(t, "13", limit.TakeProfit)
	assertDec(t, "13.5", limit.FillPrice)
	assert.Equal(t, FillTakeProfit, limit.FillReason)
	assert.Equal(t, buy.ID, limit.ParentID)
	assert.Equal(t, "buy", rebuy.Label())
	assertDec(t, "13.5", rebuy.FillPrice)

	// 90 + 13.50 - 13.50
	assertDec(t, "90", res.FinalCash)
	assertDec(t, "1", res.FinalPositions["X"])
	require.Len(t, res.Open, 1)
	assertDec(t, "17.55", res.Open[0].TakeProfit)
	assert.Equal(t, Counters{Buys: 2, LimitSells: 1, TakeProfitFills: 1}, res.Counters)

	require.Len(t, res.Snapshots, 2)
	assertDec(t, "100", res.Snapshots[0].Equity)
	assertDec(t, "103.5", res.Snapshots[1].Equity)
}

func TestEngineSkipsUnaffordableBuy(t *testing.T) {
	e := engineFor(t, "5", map[string]string{"X": "1"}, defaultSteps, "X")
	res, err := e.Run(context.Background(), map[string]market.Series{"X": series("10", "B")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counters.SkippedBuys)
	assert.Equal(t, 0, res.Counters.Buys)
	assertDec(t, "5", res.FinalCash)
	assert.Empty(t, res.Filled)
	assert.Empty(t, res.Open)
}

func TestEngineMarketSellNeverTouchesReservedVolume(t *testing.T) {
	e := engineFor(t, "100", map[string]string{"X": "1"}, defaultSteps, "X")
	res, err := e.Run(context.Background(), map[string]market.Series{
		"X": series("10", "B", "9", "S"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counters.SkippedSells)
	assert.Equal(t, 0, res.Counters.Sells)
	assertDec(t, "1", res.FinalPositions["X"])
	assert.Len(t, res.Open, 1)
}

func TestEngineSellsInitialHoldings(t *testing.T) {
	e, err := NewEngine(EngineConfig{
		Assets:           []string{"X"},
		Volumes:          map[string]decimal.Decimal{"X": dec("1")},
		InitialCash:      dec("0"),
		InitialPositions: map[string]decimal.Decimal{"X": dec("2")},
		Ladder:           ladder(t, defaultSteps),
	})
	require.NoError(t, err)
	res, err := e.Run(context.Background(), map[string]market.Series{
		"X": series("10", "S", "11", "S", "12", "S"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Counters.Sells)
	assert.Equal(t, 1, res.Counters.SkippedSells)
	assertDec(t, "21", res.FinalCash)
	assertDec(t, "0", res.FinalPositions["X"])

	rep := BuildReport(res)
	// initial: 2 units at the first close of 10
	assertDec(t, "20", rep.InitialValue)
	assertDec(t, "21", rep.TotalValue)
	assertDec(t, "1", rep.ProfitLoss)
	assert.Empty(t, rep.RoundTrips)
}

func TestEngineTrailingStopFill(t *testing.T) {
	e := engineFor(t, "1000", map[string]string{"X": "1"}, []float64{0.06, 0.10, 0.15}, "X")
	res, err := e.Run(context.Background(), map[string]market.Series{
		"X": series("100", "B", "107", "S", "112", "S", "105", "S"),
	})
	require.NoError(t, err)
	require.Len(t, res.Filled, 2)
	limit := res.Filled[1]
	assert.Equal(t, FillTrailingStop, limit.FillReason)
	assertDec(t, "105", limit.FillPrice)
	assertDec(t, "106", limit.Trail.StopLoss)
	assert.Equal(t, 2, limit.Trail.Step)
	assert.Equal(t, 1, res.Counters.TrailingStopFills)
	assert.Equal(t, 3, res.Counters.SkippedSells)
	assertDec(t, "1005", res.FinalCash)
	assertDec(t, "0", res.FinalPositions["X"])
}

func TestEngineDisabledTrailingStopOnlyTakesProfit(t *testing.T) {
	e := engineFor(t, "100", map[string]string{"X": "1"}, nil, "X")
	res, err := e.Run(context.Background(), map[string]market.Series{
		"X": series("10", "B", "12.9", "S", "10.6", "S", "5", "S", "12.99", "S"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Counters.LimitSells)
	require.Len(t, res.Open, 1)
	assert.False(t, res.Open[0].Trail.Armed)

	res, err = e.Run(context.Background(), map[string]market.Series{
		"X": series("10", "B", "5", "S", "13", "S"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Counters.TakeProfitFills)
	assertDec(t, "13", res.Filled[1].FillPrice)
}

func TestEngineProcessingOrderDecidesSharedCash(t *testing.T) {
	data := map[string]market.Series{
		"A": series("10", "B"),
		"B": series("10", "B"),
	}
	vols := map[string]string{"A": "1", "B": "1"}

	res, err := engineFor(t, "10", vols, defaultSteps, "A", "B").Run(context.Background(), data)
	require.NoError(t, err)
	assertDec(t, "1", res.FinalPositions["A"])
	assertDec(t, "0", res.FinalPositions["B"])
	assert.Equal(t, 1, res.Counters.SkippedBuys)

	res, err = engineFor(t, "10", vols, defaultSteps, "B", "A").Run(context.Background(), data)
	require.NoError(t, err)
	assertDec(t, "0", res.FinalPositions["A"])
	assertDec(t, "1", res.FinalPositions["B"])
}

func TestEngineSkipsAssetGaps(t *testing.T) {
	b := series("10", "B", "11", "B", "12", "B")
	gappy := market.Series{b[0], b[2]}
	e := engineFor(t, "1000", map[string]string{"A": "1", "B": "1"}, defaultSteps, "A", "B")
	res, err := e.Run(context.Background(), map[string]market.Series{"A": b, "B": gappy})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Days)
	assert.Equal(t, 5, res.Counters.Buys)
	assertDec(t, "12", res.LastClose["B"])
}

func TestEngineUsesOverlapOnly(t *testing.T) {
	e := engineFor(t, "1000", map[string]string{"A": "1", "B": "1"}, defaultSteps, "A", "B")
	res, err := e.Run(context.Background(), map[string]market.Series{
		"A": series("10", "B", "11", "B", "12", "B", "13", "B"),
		"B": seriesFrom(1, "20", "B", "21", "B", "22", "B", "23", "B"),
	})
	require.NoError(t, err)
	assert.Equal(t, date(1), res.Start)
	assert.Equal(t, date(3), res.End)
	assertDec(t, "11", res.FirstClose["A"])
	assertDec(t, "22", res.LastClose["B"])
}

func TestEngineDateRangeClipsSeries(t *testing.T) {
	e, err := NewEngine(EngineConfig{
		Assets:      []string{"A"},
		Volumes:     map[string]decimal.Decimal{"A": dec("1")},
		InitialCash: dec("100"),
		Ladder:      ladder(t, defaultSteps),
		Start:       date(1),
		End:         date(2),
	})
	require.NoError(t, err)
	res, err := e.Run(context.Background(), map[string]market.Series{
		"A": series("10", "B", "11", "S", "12", "S", "13", "B"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Days)
	assert.Equal(t, 0, res.Counters.Buys)
	assert.Equal(t, 2, res.Counters.SkippedSells)
}

func TestEngineInsufficientData(t *testing.T) {
	e := engineFor(t, "100", map[string]string{"A": "1", "B": "1"}, defaultSteps, "A", "B")

	_, err := e.Run(context.Background(), map[string]market.Series{"A": series("10", "B")})
	var dataErr *InsufficientDataError
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, "B", dataErr.Symbol)

	_, err = e.Run(context.Background(), map[string]market.Series{
		"A": series("10", "B", "11", "B"),
		"B": seriesFrom(5, "10", "B"),
	})
	require.True(t, errors.As(err, &dataErr))
	assert.Empty(t, dataErr.Symbol)
}

func TestEngineHonoursCancellation(t *testing.T) {
	e := engineFor(t, "100", map[string]string{"A": "1"}, defaultSteps, "A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, map[string]market.Series{"A": series("10", "B")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineConfigValidation(t *testing.T) {
	base := func() EngineConfig {
		return EngineConfig{
			Assets:      []string{"A"},
			Volumes:     map[string]decimal.Decimal{"A": dec("1")},
			InitialCash: dec("100"),
			Ladder:      ladder(t, defaultSteps),
		}
	}
	cases := []struct {
		name   string
		mutate func(*EngineConfig)
		want   error
	}{
		{"missing volume", func(c *EngineConfig) { c.Volumes = nil }, ErrMissingVolume},
		{"unknown initial position", func(c *EngineConfig) {
			c.InitialPositions = map[string]decimal.Decimal{"Z": dec("1")}
		}, ErrUnknownAsset},
		{"no assets", func(c *EngineConfig) { c.Assets = nil }, ErrInvalidConfig},
		{"duplicate asset", func(c *EngineConfig) { c.Assets = []string{"A", "A"} }, ErrInvalidConfig},
		{"zero volume", func(c *EngineConfig) { c.Volumes["A"] = decimal.Zero }, ErrInvalidConfig},
		{"negative cash", func(c *EngineConfig) { c.InitialCash = dec("-1") }, ErrInvalidConfig},
		{"inverted range", func(c *EngineConfig) { c.Start, c.End = date(3), date(1) }, ErrInvalidConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			_, err := NewEngine(cfg)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEngineInvariantsHoldOnRandomWalk(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	assets := []string{"A", "B", "C"}
	data := make(map[string]market.Series, len(assets))
	for _, sym := range assets {
		px := 100.0
		var s market.Series
		for i := 0; i < 400; i++ {
			px *= 1 + (rng.Float64()-0.47)*0.12
			if px < 1 {
				px = 1
			}
			trend := market.TrendBearish
			if rng.Intn(3) > 0 {
				trend = market.TrendBullish
			}
			if rng.Intn(10) == 0 {
				continue
			}
			s = append(s, market.Bar{Date: date(i), Close: decimal.NewFromFloat(px).Round(2), Trend: trend})
		}
		data[sym] = s
	}
	e := engineFor(t, "1500", map[string]string{"A": "1", "B": "2", "C": "0.5"}, defaultSteps, assets...)
	e.Observe(func(s StepInfo) {
		require.False(t, s.Cash.IsNegative(), "cash negative on %s", s.Day)
		require.True(t, s.Held.GreaterThanOrEqual(s.Reserved), "%s %s held %s < reserved %s", s.Day, s.Symbol, s.Held, s.Reserved)
	})
	res, err := e.Run(context.Background(), data)
	require.NoError(t, err)

	for _, o := range append(res.Filled, res.Open...) {
		if o.Kind != KindTrailingLimit || !o.Trail.Armed {
			continue
		}
		assert.True(t, o.Trail.StopLoss.LessThanOrEqual(o.TakeProfit), "order %s", o)
	}
	for _, o := range res.Filled {
		if o.FillReason == FillTakeProfit {
			assert.True(t, o.FillPrice.GreaterThanOrEqual(o.TakeProfit))
		}
	}
}
