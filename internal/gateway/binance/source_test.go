package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const klinesBody = `[
[1704067200000,"42283.58","44184.10","42180.77","44179.55","27174.29",1704153599999,"0",1000,"0","0","0"],
[1704153600000,"44179.55","45879.63","44148.34","44946.91","65146.40",1704239999999,"0",2000,"0","0","0"]
]`

func TestFetchDaily(t *testing.T) {
	var symbol, interval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		symbol = r.URL.Query().Get("symbol")
		interval = r.URL.Query().Get("interval")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(klinesBody))
	}))
	defer srv.Close()

	src, err := New(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "binance", src.Name())

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles, err := src.FetchDaily(context.Background(), "BTC-USD", start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", symbol)
	assert.Equal(t, "1d", interval)
	require.Len(t, candles, 2)
	assert.InDelta(t, 44179.55, candles[0].Close, 1e-9)
	assert.Equal(t, int64(2000), candles[1].Trades)
}

func TestFetchDailyRejectsBadRange(t *testing.T) {
	src, err := New(Config{})
	require.NoError(t, err)
	now := time.Now()
	_, err = src.FetchDaily(context.Background(), "BTC-USD", now, now.AddDate(0, 0, -3))
	assert.Error(t, err)
	_, err = src.FetchDaily(context.Background(), "", now, now)
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := (&Config{RESTBaseURL: " https://example.com/ ", PageLimit: 5000}).withDefaults()
	assert.Equal(t, "https://example.com", cfg.RESTBaseURL)
	assert.Equal(t, maxPageLimit, cfg.PageLimit)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
}
