package market

import (
	"context"
	"time"
)

// HistorySource fetches daily candles from a market-data provider.
type HistorySource interface {
	Name() string
	// FetchDaily returns daily candles opening in [start, end], ascending.
	// Sources may return fewer than requested; callers page by OpenTime.
	FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]Candle, error)
}
