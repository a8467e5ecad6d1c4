package app

import (
	"fmt"
	"sort"
	"strings"

	"momentum/internal/config"
	"momentum/internal/logger"
	"momentum/internal/market"
	"momentum/internal/profile"
	"momentum/internal/strategy/exit"
)

type StartupSummary struct {
	Data     DataSummary
	Trend    config.TrendConfig
	Ladder   string
	Backtest BacktestSummary
	Presets  []PresetSummary
	HTTPAddr string
}

type DataSummary struct {
	CandleDB  string
	ResultsDB string
	Source    string
	Sources   []string
	RatePerM  int
}

type BacktestSummary struct {
	Assets      []string
	Volumes     map[string]float64
	InitialCash float64
	Start       string
	End         string
}

type PresetSummary struct {
	Name    string
	Default bool
	Ladder  string
}

func buildSummary(cfg *config.Config, presets *profile.Registry, sources map[string]market.HistorySource) *StartupSummary {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	s := &StartupSummary{
		Data: DataSummary{
			CandleDB:  cfg.Data.CandleDBDir,
			ResultsDB: cfg.Data.ResultsDBPath,
			Source:    cfg.Data.Source,
			Sources:   names,
			RatePerM:  cfg.Data.RateLimitPerMin,
		},
		Trend:  cfg.Trend,
		Ladder: describeLadder(cfg.Strategy.TakeProfitPercentage, cfg.Strategy.TrailingStopThresholds, cfg.Strategy.FirstStopPercentage),
		Backtest: BacktestSummary{
			Assets:      cfg.Backtest.Assets,
			Volumes:     cfg.Backtest.PerAssetTradeVolume,
			InitialCash: cfg.Backtest.InitialCashBalance,
			Start:       orDash(cfg.Backtest.StartDate),
			End:         orDash(cfg.Backtest.EndDate),
		},
		HTTPAddr: cfg.App.HTTPAddr,
	}
	if presets != nil {
		for _, p := range presets.List() {
			tp := p.TakeProfitPercentage
			if tp <= 0 {
				tp = cfg.Strategy.TakeProfitPercentage
			}
			th := p.Thresholds()
			if th == nil {
				th = cfg.Strategy.TrailingStopThresholds
			}
			first := cfg.Strategy.FirstStopPercentage
			if p.FirstStopPercentage != nil {
				first = *p.FirstStopPercentage
			}
			s.Presets = append(s.Presets, PresetSummary{Name: p.Name, Default: p.Default, Ladder: describeLadder(tp, th, first)})
		}
	}
	return s
}

func describeLadder(tp float64, thresholds []float64, first float64) string {
	l, err := exit.NewLadder(tp, thresholds, first)
	if err != nil {
		return "invalid: " + err.Error()
	}
	return l.Describe()
}

// String renders the summary block.
func (s *StartupSummary) String() string {
	var b strings.Builder
	line := strings.Repeat("=", 72)
	b.WriteString(line + "\n")
	b.WriteString("STARTUP SUMMARY\n")
	b.WriteString(line + "\n")
	b.WriteString("[data]\n")
	fmt.Fprintf(&b, "  candle db: %s\n", s.Data.CandleDB)
	fmt.Fprintf(&b, "  results db: %s\n", s.Data.ResultsDB)
	fmt.Fprintf(&b, "  source: %s (available: %s, %d req/min)\n", s.Data.Source, formatList(s.Data.Sources), s.Data.RatePerM)
	b.WriteString("[trend]\n")
	fmt.Fprintf(&b, "  sma %d/%d rsi %d ema %d warmup %dd\n", s.Trend.ShortWindow, s.Trend.LongWindow, s.Trend.RSIPeriod, s.Trend.EMAPeriod, s.Trend.WarmupDays)
	b.WriteString("[strategy]\n")
	fmt.Fprintf(&b, "  ladder: %s\n", s.Ladder)
	if len(s.Presets) == 0 {
		b.WriteString("  presets: (none)\n")
	}
	for _, p := range s.Presets {
		mark := ""
		if p.Default {
			mark = " (default)"
		}
		fmt.Fprintf(&b, "  preset %s%s: %s\n", p.Name, mark, p.Ladder)
	}
	b.WriteString("[backtest]\n")
	fmt.Fprintf(&b, "  assets: %s\n", formatList(s.Backtest.Assets))
	for _, sym := range s.Backtest.Assets {
		fmt.Fprintf(&b, "    %s volume %g\n", sym, s.Backtest.Volumes[sym])
	}
	fmt.Fprintf(&b, "  initial cash: %.2f\n", s.Backtest.InitialCash)
	fmt.Fprintf(&b, "  range: %s -> %s\n", s.Backtest.Start, s.Backtest.End)
	fmt.Fprintf(&b, "[http] %s\n", s.HTTPAddr)
	b.WriteString(line)
	return b.String()
}

func (s *StartupSummary) Print() {
	logger.InfoBlock(s.String())
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
