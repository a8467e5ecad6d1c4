package backtest

import (
	"fmt"
	"time"

	"momentum/internal/strategy/exit"

	"github.com/shopspring/decimal"
)

// OrderID is a stable 1-based handle into an OrderBook.
type OrderID int64

type OrderKind string

const (
	KindMarket        OrderKind = "market"
	KindTrailingLimit OrderKind = "trailing_limit"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderStatus string

const (
	OrderOpen   OrderStatus = "open"
	OrderFilled OrderStatus = "filled"
)

// FillReason records what filled an order.
type FillReason string

const (
	FillMarket       FillReason = "market"
	FillTakeProfit   FillReason = FillReason(exit.ReasonTakeProfit)
	FillTrailingStop FillReason = FillReason(exit.ReasonTrailingStop)
)

// Order is one trade intent and its fill state. Price is the reference
// price: the execution price of a market order, or the buy price a
// trailing-limit sell trails from.
type Order struct {
	ID         OrderID         `json:"id"`
	ParentID   OrderID         `json:"parent_id,omitempty"`
	Symbol     string          `json:"symbol"`
	Kind       OrderKind       `json:"kind"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	PlacedAt   time.Time       `json:"placed_at"`
	Status     OrderStatus     `json:"status"`
	FillPrice  decimal.Decimal `json:"fill_price"`
	FilledAt   time.Time       `json:"filled_at"`
	FillReason FillReason      `json:"fill_reason,omitempty"`

	// trailing-limit only
	TakeProfit decimal.Decimal `json:"take_profit"`
	Trail      exit.TrailState `json:"trail"`
}

// Label is the trade type used in reports: buy, sell or limit_sell.
func (o Order) Label() string {
	if o.Kind == KindTrailingLimit {
		return "limit_sell"
	}
	return string(o.Side)
}

// Notional is the cash moved by the fill.
func (o Order) Notional() decimal.Decimal {
	return o.FillPrice.Mul(o.Volume)
}

func (o Order) String() string {
	if o.Kind == KindTrailingLimit {
		return fmt.Sprintf("#%d %s %s %s@%s tp=%s %s", o.ID, o.Label(), o.Symbol, o.Volume, o.Price, o.TakeProfit, o.Trail)
	}
	return fmt.Sprintf("#%d %s %s %s@%s", o.ID, o.Label(), o.Symbol, o.Volume, o.Price)
}

// OrderBook is the arena of every order of a run. Orders are addressed by ID;
// open and filled are ID lists in placement and fill order respectively.
type OrderBook struct {
	orders []Order
	open   []OrderID
	filled []OrderID
}

func NewOrderBook() *OrderBook {
	return &OrderBook{}
}

// Place stores o, assigns its ID and files it as open or filled by Status.
func (b *OrderBook) Place(o Order) OrderID {
	o.ID = OrderID(len(b.orders) + 1)
	if o.Status == "" {
		o.Status = OrderOpen
	}
	b.orders = append(b.orders, o)
	if o.Status == OrderFilled {
		b.filled = append(b.filled, o.ID)
	} else {
		b.open = append(b.open, o.ID)
	}
	return o.ID
}

// Get returns a copy of the order.
func (b *OrderBook) Get(id OrderID) (Order, bool) {
	idx := int(id) - 1
	if idx < 0 || idx >= len(b.orders) {
		return Order{}, false
	}
	return b.orders[idx], true
}

// UpdateTrail replaces the trailing state of an open order.
func (b *OrderBook) UpdateTrail(id OrderID, st exit.TrailState) error {
	o, ok := b.Get(id)
	if !ok {
		return fmt.Errorf("order %d not found", id)
	}
	if o.Status != OrderOpen {
		return fmt.Errorf("order %d is %s", id, o.Status)
	}
	b.orders[id-1].Trail = st
	return nil
}

// Fill transitions an open order to filled and moves it to history.
func (b *OrderBook) Fill(id OrderID, price decimal.Decimal, at time.Time, reason FillReason) (Order, error) {
	o, ok := b.Get(id)
	if !ok {
		return Order{}, fmt.Errorf("order %d not found", id)
	}
	if o.Status != OrderOpen {
		return Order{}, fmt.Errorf("order %d already %s", id, o.Status)
	}
	o.Status = OrderFilled
	o.FillPrice = price
	o.FilledAt = at
	o.FillReason = reason
	b.orders[id-1] = o
	for i, openID := range b.open {
		if openID == id {
			b.open = append(b.open[:i:i], b.open[i+1:]...)
			break
		}
	}
	b.filled = append(b.filled, id)
	return o, nil
}

// OpenIDs returns the open orders of symbol in placement order. The slice
// is a copy, so filling while ranging over it is safe.
func (b *OrderBook) OpenIDs(symbol string) []OrderID {
	out := make([]OrderID, 0, len(b.open))
	for _, id := range b.open {
		if b.orders[id-1].Symbol == symbol {
			out = append(out, id)
		}
	}
	return out
}

// Reserved is the volume of symbol committed to open trailing-limit sells.
func (b *OrderBook) Reserved(symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, id := range b.open {
		o := b.orders[id-1]
		if o.Symbol == symbol && o.Kind == KindTrailingLimit {
			total = total.Add(o.Volume)
		}
	}
	return total
}

// Open returns the open orders in placement order.
func (b *OrderBook) Open() []Order {
	return b.collect(b.open)
}

// Filled returns the filled orders in fill order.
func (b *OrderBook) Filled() []Order {
	return b.collect(b.filled)
}

// All returns every order in placement order.
func (b *OrderBook) All() []Order {
	return append([]Order(nil), b.orders...)
}

func (b *OrderBook) collect(ids []OrderID) []Order {
	out := make([]Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.orders[id-1])
	}
	return out
}
