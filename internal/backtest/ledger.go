package backtest

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Ledger tracks the shared cash pool and the volume held per asset.
// Reserved volume lives in the OrderBook; callers pass it in so the ledger
// never sells inventory already promised to an open limit sell.
type Ledger struct {
	cash decimal.Decimal
	held map[string]decimal.Decimal
}

// NewLedger starts a ledger with cash and optional initial holdings.
func NewLedger(cash decimal.Decimal, positions map[string]decimal.Decimal) *Ledger {
	l := &Ledger{cash: cash, held: make(map[string]decimal.Decimal, len(positions))}
	for sym, vol := range positions {
		if vol.IsPositive() {
			l.held[sym] = vol
		}
	}
	return l
}

func (l *Ledger) Cash() decimal.Decimal { return l.cash }

func (l *Ledger) Held(symbol string) decimal.Decimal { return l.held[symbol] }

func (l *Ledger) CanAfford(cost decimal.Decimal) bool {
	return l.cash.GreaterThanOrEqual(cost)
}

// Debit removes cash; it fails rather than letting the pool go negative.
func (l *Ledger) Debit(amount decimal.Decimal) error {
	if !l.CanAfford(amount) {
		return &InsufficientFundsError{Need: amount, Have: l.cash}
	}
	l.cash = l.cash.Sub(amount)
	return nil
}

func (l *Ledger) Credit(amount decimal.Decimal) {
	l.cash = l.cash.Add(amount)
}

// Available is the held volume not committed to open limit sells.
func (l *Ledger) Available(symbol string, reserved decimal.Decimal) decimal.Decimal {
	return l.held[symbol].Sub(reserved)
}

// ApplyBuy debits price*volume and credits the position.
func (l *Ledger) ApplyBuy(symbol string, price, volume decimal.Decimal) error {
	if err := l.Debit(price.Mul(volume)); err != nil {
		return err
	}
	l.held[symbol] = l.held[symbol].Add(volume)
	return nil
}

// ApplySell credits price*volume and debits the position. reserved must
// exclude the volume of the order being filled when that order is itself
// the reservation.
func (l *Ledger) ApplySell(symbol string, price, volume, reserved decimal.Decimal) error {
	if avail := l.Available(symbol, reserved); avail.LessThan(volume) {
		return &InsufficientInventoryError{Symbol: symbol, Need: volume, Have: avail}
	}
	l.cash = l.cash.Add(price.Mul(volume))
	l.held[symbol] = l.held[symbol].Sub(volume)
	return nil
}

// Positions returns a copy of the holdings, zero entries included.
func (l *Ledger) Positions() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(l.held))
	for sym, vol := range l.held {
		out[sym] = vol
	}
	return out
}

// Symbols lists every asset the ledger has touched, sorted.
func (l *Ledger) Symbols() []string {
	out := make([]string, 0, len(l.held))
	for sym := range l.held {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
