package backtest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filledOrder(id OrderID, sym string, side Side, kind OrderKind, price, vol string) Order {
	return Order{ID: id, Symbol: sym, Side: side, Kind: kind, Volume: dec(vol), Price: dec(price), FillPrice: dec(price), Status: OrderFilled}
}

func TestMatchRoundTripsFirstBuyFirstMatched(t *testing.T) {
	filled := []Order{
		filledOrder(1, "X", SideBuy, KindMarket, "10", "1"),
		filledOrder(3, "X", SideBuy, KindMarket, "12", "1"),
		filledOrder(5, "Y", SideBuy, KindMarket, "100", "0.5"),
		filledOrder(4, "X", SideSell, KindTrailingLimit, "15.6", "1"),
		filledOrder(6, "X", SideSell, KindMarket, "11", "1.5"),
		filledOrder(7, "Y", SideSell, KindMarket, "90", "0.5"),
	}
	trips := MatchRoundTrips(filled)
	require.Len(t, trips, 3)

	assert.Equal(t, OrderID(1), trips[0].BuyID)
	assert.Equal(t, OrderID(4), trips[0].SellID)
	assertDec(t, "5.6", trips[0].Profit)

	// only one unit left to match; the extra half came from nowhere
	assert.Equal(t, OrderID(3), trips[1].BuyID)
	assertDec(t, "1", trips[1].Volume)
	assertDec(t, "-1", trips[1].Profit)

	assert.Equal(t, "Y", trips[2].Symbol)
	assertDec(t, "-5", trips[2].Profit)
}

func TestMatchRoundTripsSplitsLots(t *testing.T) {
	trips := MatchRoundTrips([]Order{
		filledOrder(1, "X", SideBuy, KindMarket, "10", "2"),
		filledOrder(2, "X", SideSell, KindMarket, "11", "0.5"),
		filledOrder(3, "X", SideSell, KindMarket, "12", "1.5"),
	})
	require.Len(t, trips, 2)
	assertDec(t, "0.5", trips[0].Profit)
	assertDec(t, "3", trips[1].Profit)
}

func TestMaxDrawdownPct(t *testing.T) {
	snaps := []Snapshot{
		{Equity: dec("100")},
		{Equity: dec("120")},
		{Equity: dec("90")},
		{Equity: dec("130")},
		{Equity: dec("117")},
	}
	assertDec(t, "25", MaxDrawdownPct(snaps))
	assert.True(t, MaxDrawdownPct(nil).IsZero())
}

func TestBuildReportFromRun(t *testing.T) {
	res := &Result{
		Assets:           []string{"X", "Y"},
		Days:             3,
		InitialCash:      dec("100"),
		InitialPositions: map[string]decimal.Decimal{"Y": dec("2")},
		FinalCash:        dec("90"),
		FinalPositions:   map[string]decimal.Decimal{"X": dec("1"), "Y": dec("2")},
		FirstClose:       map[string]decimal.Decimal{"X": dec("10"), "Y": dec("5")},
		LastClose:        map[string]decimal.Decimal{"X": dec("13.5"), "Y": dec("6")},
		Filled: []Order{
			filledOrder(1, "X", SideBuy, KindMarket, "10", "1"),
			filledOrder(2, "X", SideSell, KindTrailingLimit, "13.5", "1"),
			filledOrder(3, "X", SideBuy, KindMarket, "13.5", "1"),
		},
		Open: []Order{limitSell("X", "1")},
		Counters: Counters{Buys: 2, LimitSells: 1, TakeProfitFills: 1},
		Snapshots: []Snapshot{
			{Equity: dec("110")},
			{Equity: dec("115.5")},
		},
	}
	rep := BuildReport(res)

	assertDec(t, "110", rep.InitialValue)
	// 90 + 13.5 + 12
	assertDec(t, "115.5", rep.TotalValue)
	assertDec(t, "5.5", rep.ProfitLoss)
	assertDec(t, "5", rep.ProfitLossPct)
	assert.Equal(t, 3, rep.TotalTrades)
	assert.Equal(t, 1, rep.OpenLimitSells)
	assertDec(t, "11.75", rep.AvgBuyPrice)
	assert.True(t, rep.AvgSellPrice.IsZero())
	require.Len(t, rep.RoundTrips, 1)
	assertDec(t, "3.5", rep.RealizedProfit)
	assertDec(t, "3.5", rep.AvgProfitPerTrade)
	assert.True(t, rep.MaxDrawdownPct.IsZero())

	require.Len(t, rep.Assets, 2)
	x := rep.Assets[0]
	assert.Equal(t, "X", x.Symbol)
	assert.Equal(t, 2, x.Buys)
	assert.Equal(t, 1, x.LimitSells)
	assert.Equal(t, 1, x.OpenLimitSells)
	assertDec(t, "13.5", x.FinalValue)
	assertDec(t, "12", rep.Assets[1].FinalValue)
}

func TestBuildReportZeroInitialValue(t *testing.T) {
	rep := BuildReport(&Result{Assets: []string{"X"}})
	assert.True(t, rep.ProfitLossPct.IsZero())
	assert.Empty(t, rep.RoundTrips)
}
