package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"momentum/internal/profile"
	"momentum/internal/strategy/exit"

	"github.com/shopspring/decimal"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

var ErrRunNotFound = errors.New("run not found")

// Defaults are the configured parameters a run starts from before a preset
// and the request overlay them.
type Defaults struct {
	Assets           []string
	Volumes          map[string]decimal.Decimal
	InitialCash      decimal.Decimal
	InitialPositions map[string]decimal.Decimal
	TakeProfitPct    float64
	Thresholds       []float64
	FirstStopPct     float64
	Start            time.Time
	End              time.Time
}

// RunRequest is what the API and CLI submit. Nil or empty fields inherit.
// An explicit empty trailing_stop_thresholds list disables the trailing stop.
type RunRequest struct {
	Profile          string                     `json:"profile"`
	Assets           []string                   `json:"assets"`
	Volumes          map[string]decimal.Decimal `json:"volumes"`
	InitialCash      decimal.NullDecimal        `json:"initial_cash"`
	InitialPositions map[string]decimal.Decimal `json:"initial_positions"`
	TakeProfitPct    *float64                   `json:"take_profit_percentage"`
	Thresholds       *[]float64                 `json:"trailing_stop_thresholds"`
	FirstStopPct     *float64                   `json:"first_stop_percentage"`
	StartDate        string                     `json:"start_date"`
	EndDate          string                     `json:"end_date"`
	Notes            string                     `json:"notes"`
}

// RunConfig is the fully resolved parameter snapshot stored with a run.
type RunConfig struct {
	Profile          string                     `json:"profile,omitempty"`
	Assets           []string                   `json:"assets"`
	Volumes          map[string]decimal.Decimal `json:"volumes"`
	InitialCash      decimal.Decimal            `json:"initial_cash"`
	InitialPositions map[string]decimal.Decimal `json:"initial_positions,omitempty"`
	TakeProfitPct    float64                    `json:"take_profit_percentage"`
	Thresholds       []float64                  `json:"trailing_stop_thresholds"`
	FirstStopPct     float64                    `json:"first_stop_percentage"`
	Start            time.Time                  `json:"start,omitempty"`
	End              time.Time                  `json:"end,omitempty"`
	Notes            string                     `json:"notes,omitempty"`
}

// Ladder builds the exit ladder of the config.
func (c RunConfig) Ladder() (exit.Ladder, error) {
	return exit.NewLadder(c.TakeProfitPct, c.Thresholds, c.FirstStopPct)
}

// EngineConfig converts the snapshot into a validated engine config.
func (c RunConfig) EngineConfig() (EngineConfig, error) {
	ladder, err := c.Ladder()
	if err != nil {
		return EngineConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg := EngineConfig{
		Assets:           c.Assets,
		Volumes:          c.Volumes,
		InitialCash:      c.InitialCash,
		InitialPositions: c.InitialPositions,
		Ladder:           ladder,
		Start:            c.Start,
		End:              c.End,
	}
	return cfg, cfg.Validate()
}

// Run is one simulation job and, once done, its report.
type Run struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Profile     string    `json:"profile,omitempty"`
	Assets      []string  `json:"assets"`
	Message     string    `json:"message,omitempty"`
	Config      RunConfig `json:"config"`
	Report      *Report   `json:"report,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// RunStore persists runs with their fills and equity curve.
type RunStore interface {
	InsertRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
	SaveResult(ctx context.Context, runID string, res *Result) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListOrders(ctx context.Context, runID string, limit int) ([]Order, error)
	ListSnapshots(ctx context.Context, runID string, limit int) ([]Snapshot, error)
}

// PresetSource looks up named strategy presets.
type PresetSource interface {
	Get(name string) (profile.Preset, bool)
}

// Resolve layers defaults, the named preset and the request, in that order.
func Resolve(def Defaults, presets PresetSource, req RunRequest) (RunConfig, error) {
	cfg := RunConfig{
		Assets:           append([]string(nil), def.Assets...),
		Volumes:          copyDecimals(def.Volumes),
		InitialCash:      def.InitialCash,
		InitialPositions: copyDecimals(def.InitialPositions),
		TakeProfitPct:    def.TakeProfitPct,
		Thresholds:       append([]float64(nil), def.Thresholds...),
		FirstStopPct:     def.FirstStopPct,
		Start:            def.Start,
		End:              def.End,
		Notes:            strings.TrimSpace(req.Notes),
	}

	if name := strings.TrimSpace(req.Profile); name != "" {
		if presets == nil {
			return RunConfig{}, fmt.Errorf("%w: unknown profile %s", ErrInvalidConfig, name)
		}
		p, ok := presets.Get(name)
		if !ok {
			return RunConfig{}, fmt.Errorf("%w: unknown profile %s", ErrInvalidConfig, name)
		}
		cfg.Profile = p.Name
		applyPreset(&cfg, p)
	}

	if len(req.Assets) > 0 {
		cfg.Assets = normalizeAssets(req.Assets)
	}
	for sym, v := range req.Volumes {
		cfg.Volumes[normalizeAsset(sym)] = v
	}
	if req.InitialCash.Valid {
		cfg.InitialCash = req.InitialCash.Decimal
	}
	if req.InitialPositions != nil {
		cfg.InitialPositions = make(map[string]decimal.Decimal, len(req.InitialPositions))
		for sym, v := range req.InitialPositions {
			cfg.InitialPositions[normalizeAsset(sym)] = v
		}
	}
	if req.TakeProfitPct != nil {
		cfg.TakeProfitPct = *req.TakeProfitPct
	}
	if req.Thresholds != nil {
		cfg.Thresholds = append([]float64{}, (*req.Thresholds)...)
	}
	if req.FirstStopPct != nil {
		cfg.FirstStopPct = *req.FirstStopPct
	}
	var err error
	if cfg.Start, err = parseDate(req.StartDate, cfg.Start); err != nil {
		return RunConfig{}, err
	}
	if cfg.End, err = parseDate(req.EndDate, cfg.End); err != nil {
		return RunConfig{}, err
	}

	// inherited volumes and holdings of assets outside the run are
	// irrelevant; explicitly requested holdings are still validated
	cfg.Volumes = onlyAssets(cfg.Volumes, cfg.Assets)
	if req.InitialPositions == nil {
		cfg.InitialPositions = onlyAssets(cfg.InitialPositions, cfg.Assets)
	}
	return cfg, nil
}

func onlyAssets(src map[string]decimal.Decimal, assets []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(assets))
	for _, sym := range assets {
		if v, ok := src[sym]; ok {
			out[sym] = v
		}
	}
	return out
}

func applyPreset(cfg *RunConfig, p profile.Preset) {
	if p.TakeProfitPercentage > 0 {
		cfg.TakeProfitPct = p.TakeProfitPercentage
	}
	if th := p.Thresholds(); th != nil {
		cfg.Thresholds = th
	}
	if p.FirstStopPercentage != nil {
		cfg.FirstStopPct = *p.FirstStopPercentage
	}
	if len(p.Assets) > 0 {
		cfg.Assets = normalizeAssets(p.Assets)
	}
	for sym, v := range p.TradeVolumes {
		cfg.Volumes[normalizeAsset(sym)] = decimal.NewFromFloat(v)
	}
	if p.InitialCashBalance > 0 {
		cfg.InitialCash = decimal.NewFromFloat(p.InitialCashBalance)
	}
}

func parseDate(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidConfig, raw)
	}
	return t, nil
}

func normalizeAsset(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

func normalizeAssets(in []string) []string {
	out := make([]string, 0, len(in))
	for _, sym := range in {
		out = append(out, normalizeAsset(sym))
	}
	return out
}

func copyDecimals(src map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
