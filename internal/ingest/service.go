package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"momentum/internal/analysis/indicator"
	"momentum/internal/logger"
	"momentum/internal/market"
	"momentum/internal/pkg/circuit"
	"momentum/internal/pkg/symbol"
	"momentum/internal/store/candles"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// maxPages bounds the paging loop of one symbol.
const maxPages = 64

const (
	breakerThreshold = 3
	breakerCooldown  = time.Minute
)

// CandleWriter is the part of the candle store ingestion needs.
type CandleWriter interface {
	Upsert(ctx context.Context, records []candles.Record) (int, error)
}

type ServiceConfig struct {
	Store           CandleWriter
	Sources         map[string]market.HistorySource
	DefaultSource   string
	RateLimitPerMin int
	MaxConcurrent   int
	Trend           indicator.Settings
	WarmupDays      int
}

// Service fetches daily history, labels it and writes it to the candle store.
type Service struct {
	store         CandleWriter
	sources       map[string]market.HistorySource
	defaultSource string
	trend         indicator.Settings
	warmupDays    int

	limiter  *rate.Limiter
	breakers map[string]*circuit.Breaker
	sem      chan struct{}

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup

	baseCtx context.Context
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("candle store is required")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("at least one history source is required")
	}
	ratePerSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		ratePerSec = 1
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	warmup := cfg.WarmupDays
	if warmup < 0 {
		warmup = 0
	}
	svc := &Service{
		store:         cfg.Store,
		sources:       make(map[string]market.HistorySource, len(cfg.Sources)),
		defaultSource: strings.ToLower(strings.TrimSpace(cfg.DefaultSource)),
		trend:         cfg.Trend,
		warmupDays:    warmup,
		limiter:       rate.NewLimiter(ratePerSec, 1),
		breakers:      make(map[string]*circuit.Breaker, len(cfg.Sources)),
		sem:           make(chan struct{}, maxConcurrent),
		jobs:          make(map[string]*Job),
		baseCtx:       context.Background(),
	}
	for k, v := range cfg.Sources {
		if v != nil {
			name := strings.ToLower(k)
			svc.sources[name] = v
			svc.breakers[name] = circuit.New(name, breakerThreshold, breakerCooldown)
		}
	}
	if svc.defaultSource == "" || svc.sources[svc.defaultSource] == nil {
		names := make([]string, 0, len(svc.sources))
		for k := range svc.sources {
			names = append(names, k)
		}
		sort.Strings(names)
		if len(names) == 0 {
			return nil, fmt.Errorf("at least one history source is required")
		}
		svc.defaultSource = names[0]
	}
	return svc, nil
}

// SetContext sets the host context used to cancel background jobs.
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Service) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// Submit validates params, registers a job and runs it in the background.
func (s *Service) Submit(params Params) (Job, error) {
	job, src, err := s.newJob(params)
	if err != nil {
		return Job{}, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJob(s.ctx(), job.ID, src)
	}()
	return job, nil
}

// Run executes params synchronously and returns the finished job.
func (s *Service) Run(ctx context.Context, params Params) (Job, error) {
	job, src, err := s.newJob(params)
	if err != nil {
		return Job{}, err
	}
	s.runJob(ctx, job.ID, src)
	final, _ := s.GetJob(job.ID)
	if final.Status == JobStatusFailed {
		return final, errors.New(final.Message)
	}
	return final, nil
}

// Wait blocks until every submitted job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) GetJob(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

// ListJobs returns jobs newest first.
func (s *Service) ListJobs() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.copy())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].StartedAt.After(out[k].StartedAt)
	})
	return out
}

func (s *Service) newJob(params Params) (Job, market.HistorySource, error) {
	symbols := symbol.NormalizeList(params.Symbols)
	if len(symbols) == 0 {
		return Job{}, nil, fmt.Errorf("at least one valid symbol is required")
	}
	name := strings.ToLower(strings.TrimSpace(params.Source))
	if name == "" {
		name = s.defaultSource
	}
	src := s.sources[name]
	if src == nil {
		return Job{}, nil, fmt.Errorf("unknown history source: %s", params.Source)
	}
	start, end := market.DayOf(params.Start), market.DayOf(params.End)
	if params.End.IsZero() {
		end = market.DayOf(time.Now())
	}
	if params.Start.IsZero() || end.Before(start) {
		return Job{}, nil, fmt.Errorf("invalid range %s..%s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Params:    Params{Symbols: symbols, Source: name, Start: start, End: end},
		Total:     len(symbols),
		StartedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	logger.Infof("[ingest] job %s submitted: %s %v %s..%s", job.ID, name, symbols, start.Format(time.DateOnly), end.Format(time.DateOnly))
	return job.copy(), src, nil
}

func (s *Service) runJob(ctx context.Context, jobID string, src market.HistorySource) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		s.finish(jobID, JobStatusFailed, "service stopped")
		return
	}
	defer func() { <-s.sem }()

	job, ok := s.GetJob(jobID)
	if !ok {
		return
	}
	s.updateJob(jobID, func(j *Job) {
		j.Status = JobStatusRunning
	})
	logger.Infof("[ingest] job %s running", jobID)

	failed := 0
	for _, sym := range job.Params.Symbols {
		if err := ctx.Err(); err != nil {
			s.finish(jobID, JobStatusFailed, err.Error())
			return
		}
		progress, err := s.ingestSymbol(ctx, src, s.breakers[job.Params.Source], sym, job.Params.Start, job.Params.End)
		if err != nil {
			failed++
			progress.Error = err.Error()
			logger.Warnf("[ingest] %s %s failed: %v", jobID, sym, err)
		}
		s.updateJob(jobID, func(j *Job) {
			j.Completed++
			j.Rows += progress.Stored
			j.Progress = append(j.Progress, progress)
			if err != nil {
				j.Warnings = append(j.Warnings, fmt.Sprintf("%s: %v", sym, err))
			}
		})
	}
	switch {
	case failed == 0:
		s.finish(jobID, JobStatusDone, "ingest finished")
	case failed < len(job.Params.Symbols):
		s.finish(jobID, JobStatusPartial, fmt.Sprintf("%d of %d symbols failed", failed, len(job.Params.Symbols)))
	default:
		s.finish(jobID, JobStatusFailed, "every symbol failed")
	}
}

// ingestSymbol pages through the source from start minus the warm-up window,
// labels the whole history and stores the rows inside [start, end].
func (s *Service) ingestSymbol(ctx context.Context, src market.HistorySource, breaker *circuit.Breaker, sym string, start, end time.Time) (SymbolProgress, error) {
	progress := SymbolProgress{Symbol: sym}
	from := start.AddDate(0, 0, -s.warmupDays)
	var all market.Candles
	cursor := from
	for page := 0; page < maxPages && !cursor.After(end); page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return progress, err
		}
		var batch market.Candles
		fetch := func() (err error) {
			batch, err = src.FetchDaily(ctx, sym, cursor, end)
			return err
		}
		var err error
		if breaker != nil {
			err = breaker.Do(fetch)
		} else {
			err = fetch()
		}
		if err != nil {
			return progress, fmt.Errorf("%s fetch: %w", src.Name(), err)
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		next := batch[len(batch)-1].Day().AddDate(0, 0, 1)
		if !next.After(cursor) {
			break
		}
		cursor = next
	}
	all = all.Dedup()
	progress.Fetched = len(all)
	if len(all) == 0 {
		return progress, fmt.Errorf("no candles returned")
	}
	rows, err := indicator.Label(all, s.trend)
	if err != nil {
		return progress, err
	}
	records := make([]candles.Record, 0, len(rows))
	for _, r := range rows {
		day := r.Day()
		if day.Before(start) || day.After(end) {
			continue
		}
		records = append(records, candles.Record{
			Ticker: sym,
			Date:   day,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
			RSI:    r.RSI,
			EMA:    r.EMA,
			Trend:  r.Trend,
		})
	}
	if len(records) == 0 {
		return progress, fmt.Errorf("no candles inside %s..%s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	n, err := s.store.Upsert(ctx, records)
	if err != nil {
		return progress, fmt.Errorf("store: %w", err)
	}
	progress.Stored = n
	progress.First = records[0].Date
	progress.Last = records[len(records)-1].Date
	logger.Infof("[ingest] %s stored %d rows %s..%s", sym, n, progress.First.Format(time.DateOnly), progress.Last.Format(time.DateOnly))
	return progress, nil
}

func (s *Service) finish(jobID, status, message string) {
	s.updateJob(jobID, func(j *Job) {
		j.Status = status
		j.Message = message
		j.FinishedAt = time.Now()
	})
	logger.Infof("[ingest] job %s %s: %s", jobID, status, message)
}

func (s *Service) updateJob(jobID string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		fn(job)
		job.UpdatedAt = time.Now()
	}
}
