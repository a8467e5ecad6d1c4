package symbol

// BinanceConverter quotes USD tickers in USDT, e.g. BTC-USD -> BTCUSDT.
type BinanceConverter struct{}

func (BinanceConverter) ToExchange(ticker string) string {
	s := Parse(ticker)
	if s.Base == "" {
		return ""
	}
	quote := s.Quote
	if quote == "USD" {
		quote = "USDT"
	}
	return s.Base + quote
}

func (BinanceConverter) FromExchange(raw string) string {
	return Parse(raw).Ticker()
}

func (BinanceConverter) Format() Format {
	return FormatBinance
}
