package backtest

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AssetReport values one asset's final position and summarises its trades.
type AssetReport struct {
	Symbol         string          `json:"symbol"`
	InitialVolume  decimal.Decimal `json:"initial_volume"`
	FirstPrice     decimal.Decimal `json:"first_price"`
	FinalVolume    decimal.Decimal `json:"final_volume"`
	LastPrice      decimal.Decimal `json:"last_price"`
	FinalValue     decimal.Decimal `json:"final_value"`
	Buys           int             `json:"buys"`
	Sells          int             `json:"sells"`
	LimitSells     int             `json:"limit_sells"`
	OpenLimitSells int             `json:"open_limit_sells"`
}

// RoundTrip is one buy matched against a later sell by volume overlap.
type RoundTrip struct {
	Symbol    string          `json:"symbol"`
	BuyID     OrderID         `json:"buy_id"`
	SellID    OrderID         `json:"sell_id"`
	Volume    decimal.Decimal `json:"volume"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	Profit    decimal.Decimal `json:"profit"`
}

// Report is the structured performance summary of one run.
type Report struct {
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Days           int             `json:"days"`
	InitialCash    decimal.Decimal `json:"initial_cash"`
	InitialValue   decimal.Decimal `json:"initial_value"`
	FinalCash      decimal.Decimal `json:"final_cash"`
	TotalValue     decimal.Decimal `json:"total_value"`
	ProfitLoss     decimal.Decimal `json:"profit_loss"`
	ProfitLossPct  decimal.Decimal `json:"profit_loss_pct"`
	MaxDrawdownPct decimal.Decimal `json:"max_drawdown_pct"`
	Assets         []AssetReport   `json:"assets"`
	TotalTrades    int             `json:"total_trades"`
	Counters       Counters        `json:"counters"`
	OpenLimitSells int             `json:"open_limit_sells"`
	AvgBuyPrice    decimal.Decimal `json:"avg_buy_price"`
	AvgSellPrice   decimal.Decimal `json:"avg_sell_price"`
	// RoundTrips pairs buys with later sells first-buy-first-matched. It is
	// an approximation, not lot accounting: it ignores which buy a limit
	// sell was actually paired with.
	RoundTrips        []RoundTrip     `json:"round_trips"`
	RealizedProfit    decimal.Decimal `json:"realized_profit"`
	AvgProfitPerTrade decimal.Decimal `json:"avg_profit_per_trade"`
}

// BuildReport values the final ledger and summarises the order history.
func BuildReport(res *Result) Report {
	rep := Report{
		Start:        res.Start,
		End:          res.End,
		Days:         res.Days,
		InitialCash:  res.InitialCash,
		InitialValue: res.InitialCash,
		FinalCash:    res.FinalCash,
		TotalValue:   res.FinalCash,
		TotalTrades:  len(res.Filled),
		Counters:     res.Counters,
	}
	perAsset := make(map[string]*AssetReport, len(res.Assets))
	for _, sym := range res.Assets {
		ar := &AssetReport{
			Symbol:        sym,
			InitialVolume: res.InitialPositions[sym],
			FirstPrice:    res.FirstClose[sym],
			FinalVolume:   res.FinalPositions[sym],
			LastPrice:     res.LastClose[sym],
		}
		ar.FinalValue = ar.FinalVolume.Mul(ar.LastPrice)
		rep.InitialValue = rep.InitialValue.Add(ar.InitialVolume.Mul(ar.FirstPrice))
		rep.TotalValue = rep.TotalValue.Add(ar.FinalValue)
		perAsset[sym] = ar
	}
	rep.ProfitLoss = rep.TotalValue.Sub(rep.InitialValue)
	if rep.InitialValue.IsPositive() {
		rep.ProfitLossPct = rep.ProfitLoss.Div(rep.InitialValue).Mul(hundred)
	}

	var buySum, sellSum decimal.Decimal
	var buys, sells int
	for _, o := range res.Filled {
		ar := perAsset[o.Symbol]
		switch {
		case o.Kind == KindTrailingLimit:
			if ar != nil {
				ar.LimitSells++
			}
		case o.Side == SideBuy:
			buys++
			buySum = buySum.Add(o.FillPrice)
			if ar != nil {
				ar.Buys++
			}
		case o.Side == SideSell:
			sells++
			sellSum = sellSum.Add(o.FillPrice)
			if ar != nil {
				ar.Sells++
			}
		}
	}
	if buys > 0 {
		rep.AvgBuyPrice = buySum.Div(decimal.NewFromInt(int64(buys)))
	}
	if sells > 0 {
		rep.AvgSellPrice = sellSum.Div(decimal.NewFromInt(int64(sells)))
	}
	for _, o := range res.Open {
		if o.Kind != KindTrailingLimit {
			continue
		}
		rep.OpenLimitSells++
		if ar := perAsset[o.Symbol]; ar != nil {
			ar.OpenLimitSells++
		}
	}
	for _, sym := range res.Assets {
		rep.Assets = append(rep.Assets, *perAsset[sym])
	}

	rep.RoundTrips = MatchRoundTrips(res.Filled)
	for _, rt := range rep.RoundTrips {
		rep.RealizedProfit = rep.RealizedProfit.Add(rt.Profit)
	}
	if n := len(rep.RoundTrips); n > 0 {
		rep.AvgProfitPerTrade = rep.RealizedProfit.Div(decimal.NewFromInt(int64(n)))
	}
	rep.MaxDrawdownPct = MaxDrawdownPct(res.Snapshots)
	return rep
}

type lot struct {
	order     Order
	remaining decimal.Decimal
}

// MatchRoundTrips walks fills in order and matches every sell or limit-sell
// fill against the earliest buys of the same asset that still have volume.
// Sells with nothing left to match (initial holdings) are ignored.
func MatchRoundTrips(filled []Order) []RoundTrip {
	queues := make(map[string][]*lot)
	var out []RoundTrip
	for _, o := range filled {
		if o.Side == SideBuy {
			queues[o.Symbol] = append(queues[o.Symbol], &lot{order: o, remaining: o.Volume})
			continue
		}
		need := o.Volume
		q := queues[o.Symbol]
		for len(q) > 0 && need.IsPositive() {
			head := q[0]
			take := decimal.Min(head.remaining, need)
			out = append(out, RoundTrip{
				Symbol:    o.Symbol,
				BuyID:     head.order.ID,
				SellID:    o.ID,
				Volume:    take,
				BuyPrice:  head.order.FillPrice,
				SellPrice: o.FillPrice,
				Profit:    o.FillPrice.Sub(head.order.FillPrice).Mul(take),
			})
			head.remaining = head.remaining.Sub(take)
			need = need.Sub(take)
			if !head.remaining.IsPositive() {
				q = q[1:]
			}
		}
		queues[o.Symbol] = q
	}
	return out
}

// MaxDrawdownPct is the largest peak-to-trough equity decline in percent.
func MaxDrawdownPct(snaps []Snapshot) decimal.Decimal {
	var peak, worst decimal.Decimal
	for _, s := range snaps {
		if s.Equity.GreaterThan(peak) {
			peak = s.Equity
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(s.Equity).Div(peak).Mul(hundred)
		if dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst
}
