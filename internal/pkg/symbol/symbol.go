package symbol

import (
	"strings"
)

type Format string

const (
	FormatTicker  Format = "ticker"
	FormatPair    Format = "pair"
	FormatKraken  Format = "kraken"
	FormatBinance Format = "binance"
)

// Converter maps a ticker such as BTC-USD to an exchange pair and back.
type Converter interface {
	ToExchange(ticker string) string

	FromExchange(raw string) string

	Format() Format
}

type Symbol struct {
	Base  string
	Quote string
}

// Ticker is the canonical form used throughout the backtester: BASE-QUOTE.
func (s Symbol) Ticker() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "-" + s.Quote
}

// Pair is the slash form, e.g. BTC/USD.
func (s Symbol) Pair() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

var quoteCurrencies = []string{"USDT", "USDC", "ZUSD", "USD", "EUR", "BTC", "ETH"}

// Parse accepts BTC-USD, BTC/USD, BTCUSDT or XBTUSD.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	for _, sep := range []string{"-", "/"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			return canonical(Symbol{
				Base:  strings.TrimSpace(parts[0]),
				Quote: strings.TrimSpace(parts[1]),
			})
		}
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return canonical(Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			})
		}
	}

	return Symbol{}
}

func canonical(s Symbol) Symbol {
	s.Base = fromKrakenAsset(s.Base)
	s.Quote = fromKrakenAsset(s.Quote)
	if s.Quote == "USDT" {
		s.Quote = "USD"
	}
	return s
}

// Normalize returns the ticker form, or "" when s cannot be parsed.
func Normalize(s string) string {
	return Parse(s).Ticker()
}

// NormalizeList normalizes and de-duplicates symbols, keeping first-seen order.
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {

			norm = strings.ToUpper(strings.TrimSpace(s))
			if norm == "" {
				continue
			}
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}

// For returns the converter of an exchange name, nil when unknown.
func For(exchange string) Converter {
	switch strings.ToLower(strings.TrimSpace(exchange)) {
	case string(FormatKraken):
		return KrakenConverter{}
	case string(FormatBinance):
		return BinanceConverter{}
	default:
		return nil
	}
}
