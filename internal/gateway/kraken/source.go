package kraken

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"momentum/internal/logger"
	"momentum/internal/market"
	symbolpkg "momentum/internal/pkg/symbol"

	"github.com/tidwall/gjson"
)

const dailyInterval = "1440"

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
}

// Source reads daily OHLC from Kraken's public REST API. Kraken only serves
// the most recent 720 intervals, so older ranges come back short.
type Source struct {
	baseURL string
	client  *http.Client
	conv    symbolpkg.Converter
}

func New(cfg Config) *Source {
	base := strings.TrimRight(strings.TrimSpace(cfg.RESTBaseURL), "/")
	if base == "" {
		base = "https://api.kraken.com"
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Source{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
		conv:    symbolpkg.KrakenConverter{},
	}
}

func (s *Source) Name() string { return "kraken" }

func (s *Source) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]market.Candle, error) {
	pair := s.conv.ToExchange(symbol)
	if pair == "" {
		return nil, fmt.Errorf("kraken: cannot map symbol %q", symbol)
	}
	from, to := market.DayOf(start), market.DayOf(end)
	if to.Before(from) {
		return nil, fmt.Errorf("kraken: end before start")
	}

	u, err := url.Parse(s.baseURL + "/0/public/OHLC")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("pair", pair)
	q.Set("interval", dailyInterval)
	// since is exclusive
	q.Set("since", strconv.FormatInt(from.Unix()-1, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("kraken returned status %d", resp.StatusCode)
	}
	candles, err := parseOHLC(body)
	if err != nil {
		return nil, fmt.Errorf("kraken %s: %w", pair, err)
	}

	out := make([]market.Candle, 0, len(candles))
	for _, c := range candles {
		day := c.Day()
		if day.Before(from) || day.After(to) {
			continue
		}
		out = append(out, c)
	}
	// the newest row is the still-open day
	if n := len(out); n > 0 && out[n-1].CloseTime > time.Now().UnixMilli() {
		out = out[:n-1]
	}
	logger.Debugf("[kraken] %s %d daily candles", pair, len(out))
	return market.Candles(out).Dedup(), nil
}

// parseOHLC decodes {"error":[],"result":{"<PAIR>":[[time,o,h,l,c,vwap,vol,count],...],"last":n}}.
func parseOHLC(body []byte) ([]market.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json response")
	}
	parsed := gjson.ParseBytes(body)
	if errs := parsed.Get("error").Array(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("api error: %s", strings.Join(msgs, "; "))
	}
	var out []market.Candle
	parsed.Get("result").ForEach(func(key, value gjson.Result) bool {
		if key.String() == "last" || !value.IsArray() {
			return true
		}
		value.ForEach(func(_, row gjson.Result) bool {
			cols := row.Array()
			if len(cols) < 8 {
				return true
			}
			open := time.Unix(cols[0].Int(), 0).UTC()
			out = append(out, market.Candle{
				OpenTime:  open.UnixMilli(),
				CloseTime: open.Add(24*time.Hour).UnixMilli() - 1,
				Open:      cols[1].Float(),
				High:      cols[2].Float(),
				Low:       cols[3].Float(),
				Close:     cols[4].Float(),
				Volume:    cols[6].Float(),
				Trades:    cols[7].Int(),
			})
			return true
		})
		return false
	})
	return out, nil
}
