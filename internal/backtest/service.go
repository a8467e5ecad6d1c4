package backtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"momentum/internal/logger"

	"github.com/google/uuid"
)

type ServiceConfig struct {
	Series        SeriesProvider
	Runs          RunStore
	Presets       PresetSource
	Defaults      Defaults
	MaxConcurrent int
}

// Outcome bundles everything one finished run produced.
type Outcome struct {
	Run    Run
	Result *Result
	Report Report
}

// Service resolves run requests, replays them and persists the outcome.
type Service struct {
	series   SeriesProvider
	runs     RunStore
	presets  PresetSource
	defaults Defaults

	sem     chan struct{}
	wg      sync.WaitGroup
	baseCtx context.Context
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Series == nil {
		return nil, fmt.Errorf("series provider is required")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		series:   cfg.Series,
		runs:     cfg.Runs,
		presets:  cfg.Presets,
		defaults: cfg.Defaults,
		sem:      make(chan struct{}, maxConcurrent),
		baseCtx:  context.Background(),
	}, nil
}

// SetContext sets the host context that background runs are cancelled with.
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Service) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// Resolve applies defaults and the preset to req and validates the result.
func (s *Service) Resolve(req RunRequest) (RunConfig, error) {
	cfg, err := Resolve(s.defaults, s.presets, req)
	if err != nil {
		return RunConfig{}, err
	}
	if _, err := cfg.EngineConfig(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// StartRun stores a pending run and replays it in the background.
func (s *Service) StartRun(req RunRequest) (Run, error) {
	if s.runs == nil {
		return Run{}, fmt.Errorf("run store is not configured")
	}
	cfg, err := s.Resolve(req)
	if err != nil {
		return Run{}, err
	}
	run := newRun(cfg)
	if err := s.runs.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	logger.Infof("[backtest] run %s queued: %s", run.ID, strings.Join(run.Assets, ","))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(run)
	}()
	return run, nil
}

// RunSync replays req on the caller's goroutine. The run is persisted when
// a store is configured.
func (s *Service) RunSync(ctx context.Context, req RunRequest) (Outcome, error) {
	cfg, err := s.Resolve(req)
	if err != nil {
		return Outcome{}, err
	}
	run := newRun(cfg)
	if s.runs != nil {
		if err := s.runs.InsertRun(ctx, run); err != nil {
			return Outcome{}, err
		}
	}
	out, err := s.execute(ctx, run)
	if err != nil {
		s.fail(ctx, run, err)
		return Outcome{}, err
	}
	return out, nil
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) runLoop(run Run) {
	ctx := s.ctx()
	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warnf("[backtest] run %s waiting for a free worker", run.ID)
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			s.fail(context.Background(), run, ctx.Err())
			return
		}
	}
	defer func() { <-s.sem }()

	if _, err := s.execute(ctx, run); err != nil {
		s.fail(context.Background(), run, err)
	}
}

func (s *Service) execute(ctx context.Context, run Run) (Outcome, error) {
	started := time.Now()
	run.Status = RunStatusRunning
	run.UpdatedAt = started
	if s.runs != nil {
		if err := s.runs.UpdateRun(ctx, run); err != nil {
			return Outcome{}, err
		}
	}

	engineCfg, err := run.Config.EngineConfig()
	if err != nil {
		return Outcome{}, err
	}
	series, err := LoadAll(ctx, s.series, run.Config.Assets, run.Config.Start, run.Config.End)
	if err != nil {
		return Outcome{}, err
	}
	engine, err := NewEngine(engineCfg)
	if err != nil {
		return Outcome{}, err
	}
	res, err := engine.Run(ctx, series)
	if err != nil {
		return Outcome{}, err
	}
	rep := BuildReport(res)

	if s.runs != nil {
		if err := s.runs.SaveResult(ctx, run.ID, res); err != nil {
			return Outcome{}, fmt.Errorf("save result: %w", err)
		}
	}
	now := time.Now()
	run.Status = RunStatusDone
	run.Report = &rep
	run.Message = fmt.Sprintf("%d days, %d trades", rep.Days, rep.TotalTrades)
	run.UpdatedAt = now
	run.CompletedAt = now
	if s.runs != nil {
		if err := s.runs.UpdateRun(ctx, run); err != nil {
			return Outcome{}, err
		}
	}
	logger.Infof("[backtest] run %s done in %s: value %s -> %s (%s%%)", run.ID, time.Since(started).Round(time.Millisecond),
		rep.InitialValue.StringFixed(2), rep.TotalValue.StringFixed(2), rep.ProfitLossPct.StringFixed(2))
	return Outcome{Run: run, Result: res, Report: rep}, nil
}

func (s *Service) fail(ctx context.Context, run Run, cause error) {
	logger.Errorf("[backtest] run %s failed: %v", run.ID, cause)
	if s.runs == nil {
		return
	}
	now := time.Now()
	run.Status = RunStatusFailed
	run.Message = cause.Error()
	run.UpdatedAt = now
	run.CompletedAt = now
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		logger.Errorf("[backtest] run %s: cannot record failure: %v", run.ID, err)
	}
}

func newRun(cfg RunConfig) Run {
	now := time.Now()
	return Run{
		ID:        uuid.NewString(),
		Status:    RunStatusPending,
		Profile:   cfg.Profile,
		Assets:    append([]string(nil), cfg.Assets...),
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
