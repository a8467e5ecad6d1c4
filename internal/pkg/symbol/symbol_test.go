package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"btc-usd", "BTC-USD"},
		{"SOL/USD", "SOL-USD"},
		{"BTCUSDT", "BTC-USD"},
		{"XBTUSD", "BTC-USD"},
		{"XXBTZUSD", "BTC-USD"},
		{"XETHZUSD", "ETH-USD"},
		{"XRPUSD", "XRP-USD"},
		{"ETH/USDT:USDT", "ETH-USD"},
		{"", ""},
		{"USD", ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestConverters(t *testing.T) {
	assert.Equal(t, "XBTUSD", KrakenConverter{}.ToExchange("BTC-USD"))
	assert.Equal(t, "SOLUSD", KrakenConverter{}.ToExchange("SOL-USD"))
	assert.Equal(t, "BTCUSDT", BinanceConverter{}.ToExchange("BTC-USD"))
	assert.Equal(t, "ETHBTC", BinanceConverter{}.ToExchange("ETH-BTC"))
	assert.Equal(t, "BTC-USD", BinanceConverter{}.FromExchange("BTCUSDT"))
	assert.Empty(t, BinanceConverter{}.ToExchange("garbage"))

	assert.Equal(t, FormatKraken, For("Kraken").Format())
	assert.Equal(t, FormatBinance, For("binance").Format())
	assert.Nil(t, For("ftx"))
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"btc-usd", "BTC/USD", "XRP-USD", " ", "weird"})
	assert.Equal(t, []string{"BTC-USD", "XRP-USD", "WEIRD"}, got)
	assert.True(t, IsValid("ETH-USD"))
	assert.False(t, IsValid("ETH"))
}
