package candles

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"momentum/internal/market"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const fileName = "crypto_data.db"

// Record is one labelled daily row of crypto_data. RSI and EMA are NaN
// inside their warm-up window and stored as NULL.
type Record struct {
	Ticker string       `json:"ticker"`
	Date   time.Time    `json:"date"`
	Open   float64      `json:"open"`
	High   float64      `json:"high"`
	Low    float64      `json:"low"`
	Close  float64      `json:"close"`
	Volume float64      `json:"volume"`
	RSI    float64      `json:"rsi"`
	EMA    float64      `json:"ema"`
	Trend  market.Trend `json:"ground_truth_trend"`
}

// Coverage summarises the stored range of one ticker.
type Coverage struct {
	Ticker string    `json:"ticker"`
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
	Rows   int64     `json:"rows"`
}

// Store keeps labelled daily candles in a single sqlite file.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("candle store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, fileName)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS crypto_data (
			ticker TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			volume REAL,
			rsi REAL,
			ema REAL,
			ground_truth_trend TEXT,
			PRIMARY KEY (ticker, timestamp)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create crypto_data schema: %w", err)
		}
	}
	return nil
}

// Upsert writes records; an existing (ticker, day) row is replaced.
func (s *Store) Upsert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO crypto_data (ticker, timestamp, open, high, low, close, volume, rsi, ema, ground_truth_trend)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, timestamp) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume,
		    rsi=excluded.rsi,
		    ema=excluded.ema,
		    ground_truth_trend=excluded.ground_truth_trend`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, r := range records {
		if r.Ticker == "" {
			_ = tx.Rollback()
			return 0, fmt.Errorf("record without ticker")
		}
		_, err := stmt.ExecContext(ctx, r.Ticker, formatDay(r.Date),
			r.Open, r.High, r.Low, r.Close, r.Volume,
			nullable(r.RSI), nullable(r.EMA), string(r.Trend))
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// Query returns rows of ticker whose day lies in [from, to], ascending and
// one per day. Zero bounds are open; limit <= 0 means no limit. Legacy rows
// stamped with a time of day are read as their day; a date-only row for the
// same day wins.
func (s *Store) Query(ctx context.Context, ticker string, from, to time.Time, limit int) ([]Record, error) {
	if strings.TrimSpace(ticker) == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	q := `SELECT ticker, timestamp, open, high, low, close, volume, rsi, ema, ground_truth_trend
		FROM crypto_data WHERE ticker = ?`
	args := []any{ticker}
	if !from.IsZero() {
		q += ` AND timestamp >= ?`
		args = append(args, formatDay(from))
	}
	if !to.IsZero() {
		q += ` AND timestamp < ?`
		args = append(args, formatDay(market.DayOf(to).AddDate(0, 0, 1)))
	}
	q += ` ORDER BY timestamp`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			r          Record
			day        string
			rsi, ema   sql.NullFloat64
			trend      sql.NullString
			o, h, l, c sql.NullFloat64
			vol        sql.NullFloat64
		)
		if err := rows.Scan(&r.Ticker, &day, &o, &h, &l, &c, &vol, &rsi, &ema, &trend); err != nil {
			return nil, err
		}
		if r.Date, err = parseDay(day); err != nil {
			return nil, err
		}
		r.Open, r.High, r.Low, r.Close, r.Volume = o.Float64, h.Float64, l.Float64, c.Float64, vol.Float64
		r.RSI, r.EMA = fromNull(rsi), fromNull(ema)
		r.Trend = market.Trend(trend.String)
		if n := len(out); n > 0 && out[n-1].Date.Equal(r.Date) {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadSeries turns stored rows into simulator bars.
func (s *Store) LoadSeries(ctx context.Context, ticker string, from, to time.Time) (market.Series, error) {
	recs, err := s.Query(ctx, ticker, from, to, 0)
	if err != nil {
		return nil, err
	}
	out := make(market.Series, 0, len(recs))
	for _, r := range recs {
		trend, err := market.ParseTrend(string(r.Trend))
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", ticker, formatDay(r.Date), err)
		}
		out = append(out, market.Bar{
			Date:  r.Date,
			Close: decimal.NewFromFloat(r.Close),
			Trend: trend,
		})
	}
	return out, nil
}

// Coverage lists every stored ticker with its date range.
func (s *Store) Coverage(ctx context.Context) ([]Coverage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, MIN(timestamp), MAX(timestamp), COUNT(DISTINCT substr(timestamp, 1, 10))
		FROM crypto_data GROUP BY ticker ORDER BY ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Coverage
	for rows.Next() {
		var c Coverage
		var first, last string
		if err := rows.Scan(&c.Ticker, &first, &last, &c.Rows); err != nil {
			return nil, err
		}
		if c.First, err = parseDay(first); err != nil {
			return nil, err
		}
		if c.Last, err = parseDay(last); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func formatDay(t time.Time) string {
	return market.DayOf(t).Format(time.DateOnly)
}

func parseDay(raw string) (time.Time, error) {
	// rows written by older tooling may carry a time part
	if len(raw) > len(time.DateOnly) {
		raw = raw[:len(time.DateOnly)]
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", raw, err)
	}
	return t, nil
}

func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
