package market

import "time"

// Candle is one raw OHLCV bar as returned by a history source.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

type Candles []Candle

// Day returns the UTC calendar day the candle opened on.
func (c Candle) Day() time.Time {
	return DayOf(time.UnixMilli(c.OpenTime))
}

// Closes extracts the close column, the input of every indicator we compute.
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// Dedup sorts by open time and keeps the last candle seen for each day.
func (cs Candles) Dedup() Candles {
	if len(cs) == 0 {
		return cs
	}
	byDay := make(map[time.Time]int, len(cs))
	out := make(Candles, 0, len(cs))
	for _, c := range cs {
		day := c.Day()
		if idx, ok := byDay[day]; ok {
			out[idx] = c
			continue
		}
		byDay[day] = len(out)
		out = append(out, c)
	}
	sortCandles(out)
	return out
}
