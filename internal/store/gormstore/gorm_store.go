package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"momentum/internal/backtest"
	"momentum/internal/pkg/symbol"
	storemodel "momentum/internal/store/model"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type (
	runModel      = storemodel.BacktestRunModel
	tradeModel    = storemodel.TradeHistoryModel
	snapshotModel = storemodel.EquitySnapshotModel
)

const insertBatch = 200

// GormStore persists backtest runs, their trade journal and equity curve.
type GormStore struct {
	db *gorm.DB
}

var _ backtest.RunStore = (*GormStore)(nil)

// NewGormStore opens (and migrates) the result database at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: result db path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &snapshotModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// background runs write while HTTP handlers read
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) InsertRun(ctx context.Context, run backtest.Run) error {
	m, err := newRunModel(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) UpdateRun(ctx context.Context, run backtest.Run) error {
	m, err := newRunModel(run)
	if err != nil {
		return err
	}
	updates := clause.Assignments(map[string]interface{}{
		"status":       gorm.Expr("excluded.status"),
		"message":      gorm.Expr("excluded.message"),
		"config_json":  gorm.Expr("excluded.config_json"),
		"report_json":  gorm.Expr("COALESCE(excluded.report_json, backtest_runs.report_json)"),
		"updated_at":   gorm.Expr("excluded.updated_at"),
		"completed_at": gorm.Expr("COALESCE(excluded.completed_at, backtest_runs.completed_at)"),
	})
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: updates,
		}).
		Create(&m).Error
}

// SaveResult replaces the journal and equity curve stored for runID.
func (s *GormStore) SaveResult(ctx context.Context, runID string, res *backtest.Result) error {
	if res == nil {
		return fmt.Errorf("nil result for run %s", runID)
	}
	trades := make([]tradeModel, 0, len(res.Filled)+len(res.Open))
	for _, o := range res.Filled {
		trades = append(trades, newTradeModel(runID, o))
	}
	for _, o := range res.Open {
		trades = append(trades, newTradeModel(runID, o))
	}
	snaps := make([]snapshotModel, 0, len(res.Snapshots))
	for _, sn := range res.Snapshots {
		snaps = append(snaps, snapshotModel{
			RunID:    runID,
			Day:      sn.Date.UTC().Format(time.DateOnly),
			Cash:     sn.Cash.InexactFloat64(),
			Holdings: sn.Holdings.InexactFloat64(),
			Equity:   sn.Equity.InexactFloat64(),
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&tradeModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", runID).Delete(&snapshotModel{}).Error; err != nil {
			return err
		}
		if len(trades) > 0 {
			if err := tx.CreateInBatches(trades, insertBatch).Error; err != nil {
				return err
			}
		}
		if len(snaps) > 0 {
			if err := tx.CreateInBatches(snaps, insertBatch).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) GetRun(ctx context.Context, id string) (backtest.Run, error) {
	var m runModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return backtest.Run{}, backtest.ErrRunNotFound
		}
		return backtest.Run{}, err
	}
	return toRun(m)
}

// ListRuns returns the newest runs first.
func (s *GormStore) ListRuns(ctx context.Context, limit int) ([]backtest.Run, error) {
	var models []runModel
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]backtest.Run, 0, len(models))
	for _, m := range models {
		run, err := toRun(m)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// ListOrders returns the run's journal by order ID.
func (s *GormStore) ListOrders(ctx context.Context, runID string, limit int) ([]backtest.Order, error) {
	var models []tradeModel
	q := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("order_id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]backtest.Order, 0, len(models))
	for _, m := range models {
		out = append(out, toOrder(m))
	}
	return out, nil
}

func (s *GormStore) ListSnapshots(ctx context.Context, runID string, limit int) ([]backtest.Snapshot, error) {
	var models []snapshotModel
	q := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("day")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]backtest.Snapshot, 0, len(models))
	for _, m := range models {
		day, err := time.Parse(time.DateOnly, m.Day)
		if err != nil {
			return nil, err
		}
		out = append(out, backtest.Snapshot{
			Date:     day,
			Cash:     decimal.NewFromFloat(m.Cash),
			Holdings: decimal.NewFromFloat(m.Holdings),
			Equity:   decimal.NewFromFloat(m.Equity),
		})
	}
	return out, nil
}

// DeleteRun drops a run with its journal and snapshots.
func (s *GormStore) DeleteRun(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&runModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return backtest.ErrRunNotFound
		}
		if err := tx.Where("run_id = ?", id).Delete(&tradeModel{}).Error; err != nil {
			return err
		}
		return tx.Where("run_id = ?", id).Delete(&snapshotModel{}).Error
	})
}

func newRunModel(run backtest.Run) (runModel, error) {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return runModel{}, fmt.Errorf("encode run config: %w", err)
	}
	m := runModel{
		ID:            run.ID,
		Status:        storemodel.RunStatus(run.Status),
		Profile:       run.Profile,
		Assets:        strings.Join(run.Assets, ","),
		Message:       run.Message,
		ConfigJSON:    datatypes.JSON(cfg),
		CreatedAtUnix: run.CreatedAt.Unix(),
		UpdatedAtUnix: run.UpdatedAt.Unix(),
	}
	if run.Report != nil {
		raw, err := json.Marshal(run.Report)
		if err != nil {
			return runModel{}, fmt.Errorf("encode run report: %w", err)
		}
		m.ReportJSON = datatypes.JSON(raw)
	}
	if !run.CompletedAt.IsZero() {
		ts := run.CompletedAt.Unix()
		m.CompletedAtUnix = &ts
	}
	return m, nil
}

func toRun(m runModel) (backtest.Run, error) {
	run := backtest.Run{
		ID:        m.ID,
		Status:    string(m.Status),
		Profile:   m.Profile,
		Message:   m.Message,
		CreatedAt: time.Unix(m.CreatedAtUnix, 0).UTC(),
		UpdatedAt: time.Unix(m.UpdatedAtUnix, 0).UTC(),
	}
	if m.Assets != "" {
		run.Assets = strings.Split(m.Assets, ",")
	}
	if m.CompletedAtUnix != nil {
		run.CompletedAt = time.Unix(*m.CompletedAtUnix, 0).UTC()
	}
	if len(m.ConfigJSON) > 0 {
		if err := json.Unmarshal(m.ConfigJSON, &run.Config); err != nil {
			return backtest.Run{}, fmt.Errorf("decode config of run %s: %w", m.ID, err)
		}
	}
	if len(m.ReportJSON) > 0 && string(m.ReportJSON) != "null" {
		var rep backtest.Report
		if err := json.Unmarshal(m.ReportJSON, &rep); err != nil {
			return backtest.Run{}, fmt.Errorf("decode report of run %s: %w", m.ID, err)
		}
		run.Report = &rep
	}
	return run, nil
}

func newTradeModel(runID string, o backtest.Order) tradeModel {
	m := tradeModel{
		RunID:      runID,
		OrderID:    int64(o.ID),
		ParentID:   int64(o.ParentID),
		Ticker:     o.Symbol,
		Pair:       pairOf(o.Symbol),
		TradeType:  o.Label(),
		Price:      o.Price.InexactFloat64(),
		Volume:     o.Volume.InexactFloat64(),
		Timestamp:  o.PlacedAt.UTC().Format(time.DateOnly),
		FillReason: string(o.FillReason),
	}
	if o.Kind == backtest.KindTrailingLimit {
		m.LimitOrder = 1
		m.LimitPrice = floatPtr(o.TakeProfit)
		m.TakeProfit = floatPtr(o.TakeProfit)
		m.CurrentStep = o.Trail.Step
		if o.Trail.Armed {
			m.TrailingStopPrice = floatPtr(o.Trail.StopLoss)
		}
	}
	if o.Status == backtest.OrderFilled {
		m.Filled = 1
		m.FilledAt = floatPtr(o.FillPrice)
		if !o.FilledAt.IsZero() {
			ts := o.FilledAt.UTC().Format(time.DateOnly)
			m.FilledTimestamp = &ts
		}
	}
	return m
}

func toOrder(m tradeModel) backtest.Order {
	o := backtest.Order{
		ID:         backtest.OrderID(m.OrderID),
		ParentID:   backtest.OrderID(m.ParentID),
		Symbol:     m.Ticker,
		Kind:       backtest.KindMarket,
		Side:       backtest.SideBuy,
		Price:      decimal.NewFromFloat(m.Price),
		Volume:     decimal.NewFromFloat(m.Volume),
		Status:     backtest.OrderOpen,
		FillReason: backtest.FillReason(m.FillReason),
	}
	if t, err := time.Parse(time.DateOnly, m.Timestamp); err == nil {
		o.PlacedAt = t
	}
	switch m.TradeType {
	case "sell":
		o.Side = backtest.SideSell
	case "limit_sell":
		o.Side = backtest.SideSell
		o.Kind = backtest.KindTrailingLimit
	}
	if m.TakeProfit != nil {
		o.TakeProfit = decimal.NewFromFloat(*m.TakeProfit)
	}
	o.Trail.Step = m.CurrentStep
	if m.TrailingStopPrice != nil {
		o.Trail.Armed = true
		o.Trail.StopLoss = decimal.NewFromFloat(*m.TrailingStopPrice)
	}
	if m.Filled == 1 {
		o.Status = backtest.OrderFilled
		if m.FilledAt != nil {
			o.FillPrice = decimal.NewFromFloat(*m.FilledAt)
		}
		if m.FilledTimestamp != nil {
			if t, err := time.Parse(time.DateOnly, *m.FilledTimestamp); err == nil {
				o.FilledAt = t
			}
		}
	}
	return o
}

func pairOf(ticker string) string {
	if pair := (symbol.KrakenConverter{}).ToExchange(ticker); pair != "" {
		return pair
	}
	return ticker
}

func floatPtr(d decimal.Decimal) *float64 {
	v := d.InexactFloat64()
	return &v
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
