package exit

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var decOne = decimal.NewFromInt(1)

// Reason explains why a trailing-limit order left the book.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonTakeProfit   Reason = "take_profit"
	ReasonTrailingStop Reason = "trailing_stop"
)

// Ladder is a stepped trailing stop paired with a fixed take-profit target.
// Thresholds are gains relative to the reference (buy) price, ascending.
type Ladder struct {
	Thresholds    []decimal.Decimal
	TakeProfitPct decimal.Decimal
	FirstStopPct  decimal.Decimal
}

// TrailState is the per-order trailing stop state. The zero value is unarmed.
type TrailState struct {
	Armed    bool            `json:"armed"`
	StopLoss decimal.Decimal `json:"stop_loss"`
	Step     int             `json:"step"`
}

// NewLadder builds a ladder from plain percentages (0.30 == 30%).
func NewLadder(takeProfitPct float64, thresholds []float64, firstStopPct float64) (Ladder, error) {
	if takeProfitPct <= 0 {
		return Ladder{}, fmt.Errorf("take profit percentage must be > 0, got %v", takeProfitPct)
	}
	if firstStopPct < 0 {
		return Ladder{}, fmt.Errorf("first stop percentage must be >= 0, got %v", firstStopPct)
	}
	steps := make([]decimal.Decimal, 0, len(thresholds))
	for i, th := range thresholds {
		if th <= 0 {
			return Ladder{}, fmt.Errorf("trailing threshold #%d must be > 0, got %v", i+1, th)
		}
		if i > 0 && th <= thresholds[i-1] {
			return Ladder{}, fmt.Errorf("trailing thresholds must be strictly ascending (#%d=%v after %v)", i+1, th, thresholds[i-1])
		}
		steps = append(steps, decimal.NewFromFloat(th))
	}
	return Ladder{
		Thresholds:    steps,
		TakeProfitPct: decimal.NewFromFloat(takeProfitPct),
		FirstStopPct:  decimal.NewFromFloat(firstStopPct),
	}, nil
}

// Enabled reports whether the ladder can ever arm a stop.
func (l Ladder) Enabled() bool { return len(l.Thresholds) > 0 }

// TakeProfitPrice is the limit price of the sell paired with a buy at ref.
func (l Ladder) TakeProfitPrice(ref decimal.Decimal) decimal.Decimal {
	return ref.Mul(decOne.Add(l.TakeProfitPct))
}

func (l Ladder) tierPrice(ref decimal.Decimal, i int) decimal.Decimal {
	return ref.Mul(decOne.Add(l.Thresholds[i]))
}

// Advance moves the trailing stop for a close price. It never lowers the
// stop or the step. The first arming uses FirstStopPct; after that the stop
// sits one tier behind the highest tier reached, and tiers are only crossed
// in order, stopping at the first one price has not reached.
func (l Ladder) Advance(state TrailState, ref, price decimal.Decimal) TrailState {
	if !l.Enabled() || !ref.IsPositive() {
		return state
	}
	next := state
	if !next.Armed {
		if price.GreaterThanOrEqual(l.tierPrice(ref, 0)) {
			next.Armed = true
			next.Step = 1
			next.StopLoss = l.clamp(ref, ref.Mul(decOne.Add(l.FirstStopPct)))
		}
		return next
	}
	for next.Step < len(l.Thresholds) && price.GreaterThanOrEqual(l.tierPrice(ref, next.Step)) {
		next.Step++
		candidate := l.clamp(ref, l.tierPrice(ref, next.Step-2))
		if candidate.GreaterThan(next.StopLoss) {
			next.StopLoss = candidate
		}
	}
	return next
}

// stop can never sit above the take-profit price it trails.
func (l Ladder) clamp(ref, stop decimal.Decimal) decimal.Decimal {
	return decimal.Min(stop, l.TakeProfitPrice(ref))
}

// Trigger decides whether an order with the given state exits at price.
// Take-profit wins when both conditions hold.
func Trigger(state TrailState, takeProfit, price decimal.Decimal) Reason {
	if price.GreaterThanOrEqual(takeProfit) {
		return ReasonTakeProfit
	}
	if state.Armed && price.LessThanOrEqual(state.StopLoss) {
		return ReasonTrailingStop
	}
	return ReasonNone
}

func (s TrailState) String() string {
	if !s.Armed {
		return "unarmed"
	}
	return fmt.Sprintf("stop=%s step=%d", s.StopLoss.StringFixed(8), s.Step)
}

// Describe renders the ladder as "6%/10%/15% tp=30%".
func (l Ladder) Describe() string {
	parts := make([]string, 0, len(l.Thresholds))
	for _, th := range l.Thresholds {
		parts = append(parts, th.Shift(2).String()+"%")
	}
	steps := strings.Join(parts, "/")
	if steps == "" {
		steps = "off"
	}
	return fmt.Sprintf("%s tp=%s%% first_stop=%s%%", steps, l.TakeProfitPct.Shift(2).String(), l.FirstStopPct.Shift(2).String())
}
