package backtest

import (
	"context"
	"fmt"
	"time"

	"momentum/internal/logger"
	"momentum/internal/market"
	"momentum/internal/strategy/exit"

	"github.com/shopspring/decimal"
)

// Counters tallies executed and skipped signals over a run.
type Counters struct {
	Buys              int `json:"buys"`
	Sells             int `json:"sells"`
	LimitSells        int `json:"limit_sells"`
	TakeProfitFills   int `json:"take_profit_fills"`
	TrailingStopFills int `json:"trailing_stop_fills"`
	SkippedBuys       int `json:"skipped_buys"`
	SkippedSells      int `json:"skipped_sells"`
}

// Snapshot is the portfolio at the close of one simulated day.
type Snapshot struct {
	Date     time.Time       `json:"date"`
	Cash     decimal.Decimal `json:"cash"`
	Holdings decimal.Decimal `json:"holdings"`
	Equity   decimal.Decimal `json:"equity"`
}

// Result is the raw outcome of a run; BuildReport turns it into figures.
// Filled is in fill order, Open in placement order.
type Result struct {
	Assets           []string                   `json:"assets"`
	Start            time.Time                  `json:"start"`
	End              time.Time                  `json:"end"`
	Days             int                        `json:"days"`
	InitialCash      decimal.Decimal            `json:"initial_cash"`
	InitialPositions map[string]decimal.Decimal `json:"initial_positions"`
	FinalCash        decimal.Decimal            `json:"final_cash"`
	FinalPositions   map[string]decimal.Decimal `json:"final_positions"`
	FirstClose       map[string]decimal.Decimal `json:"first_close"`
	LastClose        map[string]decimal.Decimal `json:"last_close"`
	Filled           []Order                    `json:"filled"`
	Open             []Order                    `json:"open"`
	Counters         Counters                   `json:"counters"`
	Snapshots        []Snapshot                 `json:"snapshots"`
}

// StepInfo describes the book right after one asset was processed on one day.
type StepInfo struct {
	Day      time.Time
	Symbol   string
	Cash     decimal.Decimal
	Held     decimal.Decimal
	Reserved decimal.Decimal
}

// StepObserver is called after every (day, asset) step.
type StepObserver func(StepInfo)

// Engine replays daily bars for a fixed set of assets. It is synchronous and
// keeps no state between runs.
type Engine struct {
	cfg      EngineConfig
	observer StepObserver
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Observe registers fn to run after every step.
func (e *Engine) Observe(fn StepObserver) {
	e.observer = fn
}

// Run simulates the overlapping range of all series. ctx is only checked
// between days.
func (e *Engine) Run(ctx context.Context, series map[string]market.Series) (*Result, error) {
	for _, sym := range e.cfg.Assets {
		if len(series[sym]) == 0 {
			return nil, &InsufficientDataError{Symbol: sym, Reason: "empty series"}
		}
	}
	lo, hi, err := e.cfg.overlap(series)
	if err != nil {
		return nil, err
	}
	r := newReplay(e.cfg, series, lo, hi)
	r.observer = e.observer
	logger.Infof("[backtest] replay %d assets %s..%s ladder=%s", len(e.cfg.Assets), lo.Format(time.DateOnly), hi.Format(time.DateOnly), e.cfg.Ladder.Describe())
	for day := lo; !day.After(hi); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay interrupted at %s: %w", day.Format(time.DateOnly), err)
		}
		r.processDay(day)
	}
	return r.result(), nil
}

type replay struct {
	cfg        EngineConfig
	bars       map[string]map[time.Time]market.Bar
	ledger     *Ledger
	book       *OrderBook
	counters   Counters
	snapshots  []Snapshot
	firstClose map[string]decimal.Decimal
	lastClose  map[string]decimal.Decimal
	start, end time.Time
	days       int
	observer   StepObserver
}

func newReplay(cfg EngineConfig, series map[string]market.Series, lo, hi time.Time) *replay {
	r := &replay{
		cfg:        cfg,
		bars:       make(map[string]map[time.Time]market.Bar, len(cfg.Assets)),
		ledger:     NewLedger(cfg.InitialCash, cfg.InitialPositions),
		book:       NewOrderBook(),
		firstClose: make(map[string]decimal.Decimal, len(cfg.Assets)),
		lastClose:  make(map[string]decimal.Decimal, len(cfg.Assets)),
		start:      lo,
		end:        hi,
	}
	for _, sym := range cfg.Assets {
		window := series[sym].Between(lo, hi)
		r.bars[sym] = window.Index()
		if first, ok := window.First(); ok {
			r.firstClose[sym] = first.Close
		}
	}
	return r
}

func (r *replay) processDay(day time.Time) {
	r.days++
	for _, sym := range r.cfg.Assets {
		bar, ok := r.bars[sym][day]
		if !ok {
			continue
		}
		r.lastClose[sym] = bar.Close
		r.resolveOrders(sym, bar)
		r.evaluateSignal(sym, bar)
		if r.observer != nil {
			r.observer(StepInfo{
				Day:      day,
				Symbol:   sym,
				Cash:     r.ledger.Cash(),
				Held:     r.ledger.Held(sym),
				Reserved: r.book.Reserved(sym),
			})
		}
	}
	r.snapshot(day)
}

// resolveOrders advances every open limit sell of sym, then fills those
// whose take-profit or trailing stop the close reached.
func (r *replay) resolveOrders(sym string, bar market.Bar) {
	for _, id := range r.book.OpenIDs(sym) {
		o, _ := r.book.Get(id)
		if o.Kind != KindTrailingLimit {
			continue
		}
		trail := r.cfg.Ladder.Advance(o.Trail, o.Price, bar.Close)
		if trail.Step != o.Trail.Step {
			logger.Debugf("[backtest] %s order #%d trailing stop -> %s", sym, id, trail)
		}
		if err := r.book.UpdateTrail(id, trail); err != nil {
			logger.Errorf("[backtest] %s order #%d: %v", sym, id, err)
			continue
		}
		reason := exit.Trigger(trail, o.TakeProfit, bar.Close)
		if reason == exit.ReasonNone {
			continue
		}
		// the order sells the very volume it reserved
		reserved := r.book.Reserved(sym).Sub(o.Volume)
		if err := r.ledger.ApplySell(sym, bar.Close, o.Volume, reserved); err != nil {
			logger.Errorf("[backtest] %s order #%d cannot fill: %v", sym, id, err)
			continue
		}
		filled, err := r.book.Fill(id, bar.Close, bar.Date, FillReason(reason))
		if err != nil {
			logger.Errorf("[backtest] %s order #%d: %v", sym, id, err)
			continue
		}
		r.counters.LimitSells++
		if reason == exit.ReasonTakeProfit {
			r.counters.TakeProfitFills++
		} else {
			r.counters.TrailingStopFills++
		}
		logger.Debugf("[backtest] %s %s filled %s at %s (%s)", bar.Date.Format(time.DateOnly), filled.Label(), sym, bar.Close, reason)
	}
}

// evaluateSignal turns the day's trend into at most one market order.
func (r *replay) evaluateSignal(sym string, bar market.Bar) {
	volume := r.cfg.Volumes[sym]
	switch bar.Trend {
	case market.TrendBullish:
		r.buy(sym, bar, volume)
	case market.TrendBearish:
		r.sell(sym, bar, volume)
	}
}

func (r *replay) buy(sym string, bar market.Bar, volume decimal.Decimal) {
	if !r.ledger.CanAfford(bar.Close.Mul(volume)) {
		r.counters.SkippedBuys++
		return
	}
	if err := r.ledger.ApplyBuy(sym, bar.Close, volume); err != nil {
		r.counters.SkippedBuys++
		return
	}
	buyID := r.book.Place(Order{
		Symbol:     sym,
		Kind:       KindMarket,
		Side:       SideBuy,
		Price:      bar.Close,
		Volume:     volume,
		PlacedAt:   bar.Date,
		Status:     OrderFilled,
		FillPrice:  bar.Close,
		FilledAt:   bar.Date,
		FillReason: FillMarket,
	})
	r.counters.Buys++
	r.book.Place(Order{
		ParentID:   buyID,
		Symbol:     sym,
		Kind:       KindTrailingLimit,
		Side:       SideSell,
		Price:      bar.Close,
		Volume:     volume,
		PlacedAt:   bar.Date,
		Status:     OrderOpen,
		TakeProfit: r.cfg.Ladder.TakeProfitPrice(bar.Close),
	})
}

func (r *replay) sell(sym string, bar market.Bar, volume decimal.Decimal) {
	if err := r.ledger.ApplySell(sym, bar.Close, volume, r.book.Reserved(sym)); err != nil {
		if !IsSkippable(err) {
			logger.Errorf("[backtest] %s sell: %v", sym, err)
		}
		r.counters.SkippedSells++
		return
	}
	r.book.Place(Order{
		Symbol:     sym,
		Kind:       KindMarket,
		Side:       SideSell,
		Price:      bar.Close,
		Volume:     volume,
		PlacedAt:   bar.Date,
		Status:     OrderFilled,
		FillPrice:  bar.Close,
		FilledAt:   bar.Date,
		FillReason: FillMarket,
	})
	r.counters.Sells++
}

func (r *replay) snapshot(day time.Time) {
	holdings := decimal.Zero
	for _, sym := range r.cfg.Assets {
		px, ok := r.lastClose[sym]
		if !ok {
			px = r.firstClose[sym]
		}
		holdings = holdings.Add(r.ledger.Held(sym).Mul(px))
	}
	cash := r.ledger.Cash()
	r.snapshots = append(r.snapshots, Snapshot{
		Date:     day,
		Cash:     cash,
		Holdings: holdings,
		Equity:   cash.Add(holdings),
	})
}

func (r *replay) result() *Result {
	initial := make(map[string]decimal.Decimal, len(r.cfg.InitialPositions))
	for sym, vol := range r.cfg.InitialPositions {
		initial[sym] = vol
	}
	final := r.ledger.Positions()
	for _, sym := range r.cfg.Assets {
		if _, ok := final[sym]; !ok {
			final[sym] = decimal.Zero
		}
	}
	return &Result{
		Assets:           append([]string(nil), r.cfg.Assets...),
		Start:            r.start,
		End:              r.end,
		Days:             r.days,
		InitialCash:      r.cfg.InitialCash,
		InitialPositions: initial,
		FinalCash:        r.ledger.Cash(),
		FinalPositions:   final,
		FirstClose:       r.firstClose,
		LastClose:        r.lastClose,
		Filled:           r.book.Filled(),
		Open:             r.book.Open(),
		Counters:         r.counters,
		Snapshots:        r.snapshots,
	}
}
