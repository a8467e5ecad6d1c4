package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"momentum/internal/backtest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleReport() backtest.Report {
	return backtest.Report{
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Days:           10,
		InitialCash:    dec("100"),
		InitialValue:   dec("110"),
		FinalCash:      dec("90"),
		TotalValue:     dec("115.5"),
		ProfitLoss:     dec("5.5"),
		ProfitLossPct:  dec("5"),
		MaxDrawdownPct: dec("1.25"),
		Assets: []backtest.AssetReport{
			{Symbol: "BTC-USD", FinalVolume: dec("1"), LastPrice: dec("13.5"), FinalValue: dec("13.5"), Buys: 2, LimitSells: 1, OpenLimitSells: 1},
		},
		TotalTrades:       3,
		Counters:          backtest.Counters{Buys: 2, LimitSells: 2, TakeProfitFills: 1, SkippedBuys: 4},
		OpenLimitSells:    1,
		AvgBuyPrice:       dec("11.75"),
		RoundTrips:        []backtest.RoundTrip{{Symbol: "BTC-USD", BuyID: 1, SellID: 2, Volume: dec("1"), Profit: dec("3.5")}},
		RealizedProfit:    dec("3.5"),
		AvgProfitPerTrade: dec("3.5"),
	}
}

func TestText(t *testing.T) {
	out := Text(sampleReport())
	for _, want := range []string{
		"BACKTESTING SUMMARY",
		"Period: 2024-01-01 -> 2024-01-10 (10 days)",
		"Initial Balance: $100.00",
		"Total Value: $115.50",
		"Profit/Loss: $5.50 (5.00%)",
		"Max Drawdown: 1.25%",
		"  BTC-USD: 1.000000 ($13.50 @ 13.50)",
		"  Buy Orders: 2",
		"  Limit Sell Orders: 1",
		"    Take Profit: 1",
		"  Average Buy Price: $11.75",
		"  Realized Profit: $3.50",
		"  Skipped Buy Orders: 4",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Average Sell Price")
}

func TestJSONAndYAMLShareKeys(t *testing.T) {
	var jbuf, ybuf bytes.Buffer
	require.NoError(t, Render(&jbuf, FormatJSON, sampleReport()))
	require.NoError(t, Render(&ybuf, FormatYAML, sampleReport()))

	var fromJSON, fromYAML map[string]any
	require.NoError(t, json.Unmarshal(jbuf.Bytes(), &fromJSON))
	require.NoError(t, yaml.Unmarshal(ybuf.Bytes(), &fromYAML))
	assert.Equal(t, "115.5", fromJSON["total_value"])
	assert.Equal(t, "115.5", fromYAML["total_value"])
	assert.Contains(t, ybuf.String(), "profit_loss_pct:")
	assert.NotContains(t, ybuf.String(), "{")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)
	f, err = ParseFormat(" YML ")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestEquityChart(t *testing.T) {
	snaps := []backtest.Snapshot{
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Cash: dec("90"), Holdings: dec("10"), Equity: dec("100")},
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Cash: dec("90"), Holdings: dec("5"), Equity: dec("95")},
	}
	var buf bytes.Buffer
	require.NoError(t, EquityChart(&buf, "run r1", snaps))
	html := buf.String()
	assert.True(t, strings.Contains(html, "echarts"))
	assert.Contains(t, html, "Equity")
	assert.Contains(t, html, "2024-01-02")
	assert.Contains(t, html, "max drawdown 5.00%")

	assert.Error(t, EquityChart(&buf, "empty", nil))
}
