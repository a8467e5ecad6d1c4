package indicator

import (
	"testing"
	"time"

	"momentum/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candles(closes ...float64) []market.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		ts := start.AddDate(0, 0, i)
		out[i] = market.Candle{OpenTime: ts.UnixMilli(), Close: c, Open: c, High: c, Low: c}
	}
	return out
}

func TestLabelWarmupIsBearish(t *testing.T) {
	rows, err := Label(candles(1, 2, 3, 4, 5), Settings{ShortWindow: 2, LongWindow: 3, RSIPeriod: 2, EMAPeriod: 2})
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.False(t, Defined(rows[0].SMAShort))
	assert.True(t, Defined(rows[1].SMAShort))
	assert.False(t, Defined(rows[1].SMALong))
	assert.Equal(t, market.TrendBearish, rows[1].Trend)

	// rising closes put the short average above the long one
	assert.InDelta(t, 2.5, rows[2].SMAShort, 1e-9)
	assert.InDelta(t, 2.0, rows[2].SMALong, 1e-9)
	assert.Equal(t, market.TrendBullish, rows[2].Trend)
	assert.Equal(t, market.TrendBullish, rows[4].Trend)

	assert.False(t, Defined(rows[1].RSI))
	assert.True(t, Defined(rows[2].RSI))
}

func TestLabelFallingMarket(t *testing.T) {
	rows, err := Label(candles(9, 8, 7, 6, 5, 4), Settings{ShortWindow: 2, LongWindow: 4, RSIPeriod: 2, EMAPeriod: 3})
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, market.TrendBearish, r.Trend)
	}
	assert.InDelta(t, 0, rows[5].RSI, 1e-9)
}

func TestLabelShortHistory(t *testing.T) {
	rows, err := Label(candles(1, 2), DefaultSettings())
	require.NoError(t, err)
	for _, r := range rows {
		assert.False(t, Defined(r.SMALong))
		assert.False(t, Defined(r.RSI))
		assert.Equal(t, market.TrendBearish, r.Trend)
	}
}

func TestLabelRejectsBadInput(t *testing.T) {
	_, err := Label(nil, DefaultSettings())
	assert.Error(t, err)
	_, err = Label(candles(1), Settings{ShortWindow: 5, LongWindow: 5})
	assert.Error(t, err)
}
