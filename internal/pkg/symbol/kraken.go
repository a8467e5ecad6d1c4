package symbol

import "strings"

// KrakenConverter uses Kraken's legacy asset codes, e.g. BTC-USD -> XBTUSD.
type KrakenConverter struct{}

var krakenAssets = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

func (KrakenConverter) ToExchange(ticker string) string {
	s := Parse(ticker)
	if s.Base == "" {
		return ""
	}
	base := s.Base
	if alias, ok := krakenAssets[base]; ok {
		base = alias
	}
	return base + s.Quote
}

func (KrakenConverter) FromExchange(raw string) string {
	return Parse(raw).Ticker()
}

func (KrakenConverter) Format() Format {
	return FormatKraken
}

// fromKrakenAsset strips the X/Z class prefix of four-letter codes such as
// XXBT or ZUSD and maps legacy aliases back.
func fromKrakenAsset(code string) string {
	code = strings.ToUpper(code)
	if len(code) == 4 && (code[0] == 'X' || code[0] == 'Z') {
		switch code[1:] {
		case "XBT", "ETH", "XRP", "USD", "EUR", "XDG", "LTC":
			code = code[1:]
		}
	}
	for std, alias := range krakenAssets {
		if code == alias {
			return std
		}
	}
	return code
}
