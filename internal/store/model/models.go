package model

import (
	"gorm.io/datatypes"
)

type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

type BacktestRunModel struct {
	ID              string         `gorm:"column:id;primaryKey"`
	Status          RunStatus      `gorm:"column:status;index"`
	Profile         string         `gorm:"column:profile"`
	Assets          string         `gorm:"column:assets"`
	Message         string         `gorm:"column:message"`
	ConfigJSON      datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	ReportJSON      datatypes.JSON `gorm:"column:report_json;type:TEXT"`
	CreatedAtUnix   int64          `gorm:"column:created_at;index"`
	UpdatedAtUnix   int64          `gorm:"column:updated_at"`
	CompletedAtUnix *int64         `gorm:"column:completed_at"`
}

func (BacktestRunModel) TableName() string { return "backtest_runs" }

// TradeHistoryModel keeps the journal columns of the trading script and adds
// the run/order identity needed to replay a run.
type TradeHistoryModel struct {
	ID                int64    `gorm:"column:id;primaryKey;autoIncrement"`
	RunID             string   `gorm:"column:run_id;uniqueIndex:idx_trade_run_order,priority:1"`
	OrderID           int64    `gorm:"column:order_id;uniqueIndex:idx_trade_run_order,priority:2"`
	ParentID          int64    `gorm:"column:parent_id"`
	Ticker            string   `gorm:"column:ticker"`
	Pair              string   `gorm:"column:pair"`
	TradeType         string   `gorm:"column:trade_type"`
	Price             float64  `gorm:"column:price"`
	Volume            float64  `gorm:"column:volume"`
	Timestamp         string   `gorm:"column:timestamp"`
	LimitOrder        int      `gorm:"column:limit_order"`
	LimitPrice        *float64 `gorm:"column:limit_price"`
	TakeProfit        *float64 `gorm:"column:take_profit"`
	Filled            int      `gorm:"column:filled;default:0"`
	FilledAt          *float64 `gorm:"column:filled_at"`
	FilledTimestamp   *string  `gorm:"column:filled_timestamp"`
	FillReason        string   `gorm:"column:fill_reason"`
	TrailingStopPrice *float64 `gorm:"column:trailing_stop_price"`
	CurrentStep       int      `gorm:"column:current_step;default:0"`
}

func (TradeHistoryModel) TableName() string { return "trade_history" }

type EquitySnapshotModel struct {
	ID       int64   `gorm:"column:id;primaryKey;autoIncrement"`
	RunID    string  `gorm:"column:run_id;uniqueIndex:idx_equity_run_day,priority:1"`
	Day      string  `gorm:"column:day;uniqueIndex:idx_equity_run_day,priority:2"`
	Cash     float64 `gorm:"column:cash"`
	Holdings float64 `gorm:"column:holdings"`
	Equity   float64 `gorm:"column:equity"`
}

func (EquitySnapshotModel) TableName() string { return "equity_snapshots" }
