package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"momentum/internal/market"

	"golang.org/x/sync/errgroup"
)

// SeriesProvider loads the labelled daily bars of one asset. A zero from or
// to leaves that side of the range open.
type SeriesProvider interface {
	LoadSeries(ctx context.Context, symbol string, from, to time.Time) (market.Series, error)
}

// LoadAll fetches every asset's series concurrently.
func LoadAll(ctx context.Context, p SeriesProvider, assets []string, from, to time.Time) (map[string]market.Series, error) {
	var mu sync.Mutex
	out := make(map[string]market.Series, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range assets {
		sym := sym
		g.Go(func() error {
			s, err := p.LoadSeries(gctx, sym, from, to)
			if err != nil {
				return fmt.Errorf("load %s: %w", sym, err)
			}
			if err := s.Validate(); err != nil {
				return fmt.Errorf("load %s: %w", sym, err)
			}
			mu.Lock()
			out[sym] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MemoryProvider serves fixed series; handy for tests and one-off replays.
type MemoryProvider map[string]market.Series

func (m MemoryProvider) LoadSeries(_ context.Context, symbol string, from, to time.Time) (market.Series, error) {
	s := m[symbol]
	if from.IsZero() && to.IsZero() {
		return s, nil
	}
	if to.IsZero() {
		to = farFuture
	}
	return s.Between(from, to), nil
}
