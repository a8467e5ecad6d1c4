package backtest

import (
	"fmt"
	"strings"
	"time"

	"momentum/internal/market"
	"momentum/internal/strategy/exit"

	"github.com/shopspring/decimal"
)

// EngineConfig is everything a single simulation needs besides the series.
type EngineConfig struct {
	// Assets fixes the per-day processing order; it decides which asset
	// spends shared cash first.
	Assets           []string
	Volumes          map[string]decimal.Decimal
	InitialCash      decimal.Decimal
	InitialPositions map[string]decimal.Decimal
	Ladder           exit.Ladder
	Start            time.Time
	End              time.Time
}

// Validate rejects programmer errors before any bar is replayed.
func (c EngineConfig) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("%w: no assets", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Assets))
	for _, sym := range c.Assets {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("%w: empty asset symbol", ErrInvalidConfig)
		}
		if seen[sym] {
			return fmt.Errorf("%w: duplicate asset %s", ErrInvalidConfig, sym)
		}
		seen[sym] = true
		vol, ok := c.Volumes[sym]
		if !ok {
			return fmt.Errorf("%w for %s", ErrMissingVolume, sym)
		}
		if !vol.IsPositive() {
			return fmt.Errorf("%w: volume for %s must be > 0", ErrInvalidConfig, sym)
		}
	}
	for sym, vol := range c.InitialPositions {
		if !seen[sym] {
			return fmt.Errorf("%w: initial position %s", ErrUnknownAsset, sym)
		}
		if vol.IsNegative() {
			return fmt.Errorf("%w: initial position for %s must be >= 0", ErrInvalidConfig, sym)
		}
	}
	if c.InitialCash.IsNegative() {
		return fmt.Errorf("%w: initial cash must be >= 0", ErrInvalidConfig)
	}
	if !c.Ladder.TakeProfitPct.IsPositive() {
		return fmt.Errorf("%w: take profit percentage must be > 0", ErrInvalidConfig)
	}
	if !c.Start.IsZero() && !c.End.IsZero() && c.End.Before(c.Start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidConfig, c.End.Format(time.DateOnly), c.Start.Format(time.DateOnly))
	}
	return nil
}

// overlap finds the day range every asset covers, clipped to [Start, End].
func (c EngineConfig) overlap(series map[string]market.Series) (time.Time, time.Time, error) {
	var lo, hi time.Time
	for i, sym := range c.Assets {
		s := series[sym]
		if !c.Start.IsZero() || !c.End.IsZero() {
			from, to := c.Start, c.End
			if to.IsZero() {
				to = farFuture
			}
			s = s.Between(from, to)
		}
		first, ok := s.First()
		if !ok {
			return time.Time{}, time.Time{}, &InsufficientDataError{Symbol: sym, Reason: "no bars in range"}
		}
		last, _ := s.Last()
		f, l := market.DayOf(first.Date), market.DayOf(last.Date)
		if i == 0 || f.After(lo) {
			lo = f
		}
		if i == 0 || l.Before(hi) {
			hi = l
		}
	}
	if hi.Before(lo) {
		return time.Time{}, time.Time{}, &InsufficientDataError{
			Reason: fmt.Sprintf("no overlapping range (latest start %s, earliest end %s)", lo.Format(time.DateOnly), hi.Format(time.DateOnly)),
		}
	}
	return lo, hi, nil
}

var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
