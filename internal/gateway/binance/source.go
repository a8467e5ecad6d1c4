package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"momentum/internal/logger"
	"momentum/internal/market"
	symbolpkg "momentum/internal/pkg/symbol"

	gobinance "github.com/adshao/go-binance/v2"
)

const (
	maxPageLimit = 1000
	dailyMillis  = int64(24 * time.Hour / time.Millisecond)
)

// Source fetches spot daily klines through the go-binance SDK.
type Source struct {
	cfg    Config
	client *gobinance.Client
	conv   symbolpkg.Converter
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := gobinance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client, conv: symbolpkg.BinanceConverter{}}, nil
}

func (s *Source) Name() string { return "binance" }

// FetchDaily pages through 1d klines opening in [start, end]. Klines that
// have not closed yet are dropped.
func (s *Source) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]market.Candle, error) {
	pair := s.conv.ToExchange(symbol)
	if pair == "" {
		return nil, fmt.Errorf("binance: cannot map symbol %q", symbol)
	}
	from := market.DayOf(start).UnixMilli()
	to := market.DayOf(end).UnixMilli()
	if to < from {
		return nil, fmt.Errorf("binance: end before start")
	}
	now := time.Now().UnixMilli()
	var out []market.Candle
	for cursor := from; cursor <= to; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kls, err := s.client.NewKlinesService().
			Symbol(pair).
			Interval("1d").
			StartTime(cursor).
			EndTime(to + dailyMillis - 1).
			Limit(s.cfg.PageLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s: %w", pair, err)
		}
		if len(kls) == 0 {
			break
		}
		last := cursor
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			last = kl.OpenTime
			if kl.OpenTime > to || kl.CloseTime >= now {
				continue
			}
			out = append(out, market.Candle{
				OpenTime:  kl.OpenTime,
				CloseTime: kl.CloseTime,
				Open:      parseFloat(kl.Open),
				High:      parseFloat(kl.High),
				Low:       parseFloat(kl.Low),
				Close:     parseFloat(kl.Close),
				Volume:    parseFloat(kl.Volume),
				Trades:    kl.TradeNum,
			})
		}
		if len(kls) < s.cfg.PageLimit {
			break
		}
		cursor = last + dailyMillis
	}
	logger.Debugf("[binance] %s %d daily candles", pair, len(out))
	return market.Candles(out).Dedup(), nil
}

func parseFloat(raw string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return f
}
