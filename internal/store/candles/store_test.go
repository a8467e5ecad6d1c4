package candles

import (
	"context"
	"math"
	"testing"
	"time"

	"momentum/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(i int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndLoadSeries(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	n, err := s.Upsert(ctx, []Record{
		{Ticker: "BTC-USD", Date: day(0), Close: 61000.5, RSI: math.NaN(), EMA: math.NaN(), Trend: market.TrendBearish},
		{Ticker: "BTC-USD", Date: day(1), Close: 62000, RSI: 55.1, EMA: 61500, Trend: market.TrendBullish},
		{Ticker: "ETH-USD", Date: day(0), Close: 3400, Trend: market.TrendBullish},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// re-labelling a day replaces the row
	_, err = s.Upsert(ctx, []Record{{Ticker: "BTC-USD", Date: day(0).Add(7 * time.Hour), Close: 61001, RSI: math.NaN(), EMA: math.NaN(), Trend: market.TrendBullish}})
	require.NoError(t, err)

	recs, err := s.Query(ctx, "BTC-USD", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, math.IsNaN(recs[0].RSI))
	assert.InDelta(t, 55.1, recs[1].RSI, 1e-9)

	series, err := s.LoadSeries(ctx, "BTC-USD", day(0), day(5))
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, day(0), series[0].Date)
	assert.Equal(t, "61001", series[0].Close.String())
	assert.Equal(t, market.TrendBullish, series[0].Trend)
	require.NoError(t, series.Validate())

	series, err = s.LoadSeries(ctx, "BTC-USD", day(1), time.Time{})
	require.NoError(t, err)
	assert.Len(t, series, 1)
}

func TestCoverage(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, []Record{
		{Ticker: "SOL-USD", Date: day(2), Close: 1, Trend: market.TrendBearish},
		{Ticker: "SOL-USD", Date: day(4), Close: 1, Trend: market.TrendBearish},
		{Ticker: "BTC-USD", Date: day(1), Close: 1, Trend: market.TrendBearish},
	})
	require.NoError(t, err)
	cov, err := s.Coverage(ctx)
	require.NoError(t, err)
	require.Len(t, cov, 2)
	assert.Equal(t, "BTC-USD", cov[0].Ticker)
	assert.Equal(t, Coverage{Ticker: "SOL-USD", First: day(2), Last: day(4), Rows: 2}, cov[1])
}

func TestQueryReadsLegacyTimestamps(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, []Record{
		{Ticker: "BTC-USD", Date: day(0), Close: 10, Trend: market.TrendBullish},
		{Ticker: "BTC-USD", Date: day(1), Close: 11, Trend: market.TrendBullish},
	})
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO crypto_data (ticker, timestamp, close, ground_truth_trend) VALUES
		('BTC-USD', '2024-03-02 00:00:00', 99, 'Bearish'),
		('BTC-USD', '2024-03-03 00:00:00', 12, 'Bullish')`)
	require.NoError(t, err)

	series, err := s.LoadSeries(ctx, "BTC-USD", day(0), day(2))
	require.NoError(t, err)
	require.Len(t, series, 3)
	require.NoError(t, series.Validate())
	assert.Equal(t, "11", series[1].Close.String())
	assert.Equal(t, day(2), series[2].Date)
	assert.Equal(t, "12", series[2].Close.String())

	cov, err := s.Coverage(ctx)
	require.NoError(t, err)
	require.Len(t, cov, 1)
	assert.Equal(t, int64(3), cov[0].Rows)
	assert.Equal(t, day(2), cov[0].Last)
}

func TestLoadSeriesRejectsBadTrend(t *testing.T) {
	s := openStore(t)
	_, err := s.Upsert(context.Background(), []Record{{Ticker: "X", Date: day(0), Close: 1, Trend: "Sideways"}})
	require.NoError(t, err)
	_, err = s.LoadSeries(context.Background(), "X", time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestStoreValidation(t *testing.T) {
	_, err := NewStore(" ")
	assert.Error(t, err)
	s := openStore(t)
	_, err = s.Upsert(context.Background(), []Record{{Date: day(0)}})
	assert.Error(t, err)
	_, err = s.Query(context.Background(), "", time.Time{}, time.Time{}, 0)
	assert.Error(t, err)
}
