package kraken

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ohlcBody = `{"error":[],"result":{"XXBTZUSD":[
[1704067200,"42280.0","44200.0","42180.1","44179.9","43300.2","1590.1",41000],
[1704153600,"44179.9","45900.0","44100.0","44950.0","45000.0","4210.4",62000],
[1704240000,"44950.0","45500.0","40750.0","42840.0","43000.0","6012.3",90000]
],"last":1704240000}}`

func TestFetchDaily(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/OHLC", r.URL.Path)
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(ohlcBody))
	}))
	defer srv.Close()

	src := New(Config{RESTBaseURL: srv.URL})
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	candles, err := src.FetchDaily(context.Background(), "BTC-USD", start, end)
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "pair=XBTUSD")
	assert.Contains(t, gotQuery, "interval=1440")
	require.Len(t, candles, 2)
	assert.Equal(t, start, candles[0].Day())
	assert.InDelta(t, 44950.0, candles[0].Close, 1e-9)
	assert.InDelta(t, 4210.4, candles[0].Volume, 1e-9)
	assert.Equal(t, int64(90000), candles[1].Trades)
}

func TestFetchDailyAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":["EQuery:Unknown asset pair"]}`))
	}))
	defer srv.Close()

	_, err := New(Config{RESTBaseURL: srv.URL}).FetchDaily(context.Background(), "FOO-USD", time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown asset pair")
}

func TestParseOHLCRejectsGarbage(t *testing.T) {
	_, err := parseOHLC([]byte("<html>"))
	assert.Error(t, err)
}
