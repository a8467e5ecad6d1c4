// Package report renders a backtest report for terminals, files and the API.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"momentum/internal/backtest"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q (text|json|yaml)", raw)
	}
}

// Render writes rep to w in the given format.
func Render(w io.Writer, format Format, rep backtest.Report) error {
	switch format {
	case FormatText, "":
		_, err := io.WriteString(w, Text(rep))
		return err
	case FormatJSON:
		return JSON(w, rep)
	case FormatYAML:
		return YAML(w, rep)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func JSON(w io.Writer, rep backtest.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// YAML goes through the JSON encoding so keys and decimal strings match the
// API output.
func YAML(w io.Writer, rep backtest.Report) error {
	raw, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	blockStyle(&doc)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// Text is the plain terminal summary.
func Text(rep backtest.Report) string {
	var buf bytes.Buffer
	line := strings.Repeat("=", 50)
	fmt.Fprintf(&buf, "%s\nBACKTESTING SUMMARY\n%s\n\n", line, line)
	if !rep.Start.IsZero() {
		fmt.Fprintf(&buf, "Period: %s -> %s (%d days)\n", rep.Start.Format("2006-01-02"), rep.End.Format("2006-01-02"), rep.Days)
	}
	fmt.Fprintf(&buf, "Initial Balance: $%s\n", rep.InitialCash.StringFixed(2))
	fmt.Fprintf(&buf, "Initial Value: $%s\n", rep.InitialValue.StringFixed(2))
	fmt.Fprintf(&buf, "Final Balance: $%s\n", rep.FinalCash.StringFixed(2))
	fmt.Fprintf(&buf, "Total Value: $%s\n", rep.TotalValue.StringFixed(2))
	fmt.Fprintf(&buf, "Profit/Loss: $%s (%s%%)\n", rep.ProfitLoss.StringFixed(2), rep.ProfitLossPct.StringFixed(2))
	fmt.Fprintf(&buf, "Max Drawdown: %s%%\n", rep.MaxDrawdownPct.StringFixed(2))

	buf.WriteString("\nFinal Positions:\n")
	var buys, sells, limitSells int
	for _, a := range rep.Assets {
		fmt.Fprintf(&buf, "  %s: %s ($%s @ %s)\n", a.Symbol, a.FinalVolume.StringFixed(6), a.FinalValue.StringFixed(2), a.LastPrice.StringFixed(2))
		buys += a.Buys
		sells += a.Sells
		limitSells += a.LimitSells
	}

	buf.WriteString("\nTrading Activity:\n")
	fmt.Fprintf(&buf, "  Total Trades: %d\n", rep.TotalTrades)
	fmt.Fprintf(&buf, "  Buy Orders: %d\n", buys)
	fmt.Fprintf(&buf, "  Sell Orders: %d\n", sells)
	fmt.Fprintf(&buf, "  Limit Sell Orders: %d\n", limitSells)
	fmt.Fprintf(&buf, "    Take Profit: %d\n", rep.Counters.TakeProfitFills)
	fmt.Fprintf(&buf, "    Trailing Stop: %d\n", rep.Counters.TrailingStopFills)
	fmt.Fprintf(&buf, "  Open Limit Sells: %d\n", rep.OpenLimitSells)
	if buys > 0 {
		fmt.Fprintf(&buf, "  Average Buy Price: $%s\n", rep.AvgBuyPrice.StringFixed(2))
	}
	if sells > 0 {
		fmt.Fprintf(&buf, "  Average Sell Price: $%s\n", rep.AvgSellPrice.StringFixed(2))
	}
	if n := len(rep.RoundTrips); n > 0 {
		fmt.Fprintf(&buf, "  Round Trips: %d\n", n)
		fmt.Fprintf(&buf, "  Realized Profit: $%s\n", rep.RealizedProfit.StringFixed(2))
		fmt.Fprintf(&buf, "  Average Profit per Trade: $%s\n", rep.AvgProfitPerTrade.StringFixed(2))
	}

	buf.WriteString("\nSkipped Orders:\n")
	fmt.Fprintf(&buf, "  Skipped Buy Orders: %d\n", rep.Counters.SkippedBuys)
	fmt.Fprintf(&buf, "  Skipped Sell Orders: %d\n", rep.Counters.SkippedSells)
	return buf.String()
}
