package backtesthttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"momentum/internal/backtest"
	"momentum/internal/ingest"
	"momentum/internal/logger"
	"momentum/internal/profile"
	"momentum/internal/report"
	"momentum/internal/store/candles"

	"github.com/gin-gonic/gin"
)

// RunStarter queues backtest runs.
type RunStarter interface {
	StartRun(req backtest.RunRequest) (backtest.Run, error)
}

// IngestService submits and tracks history download jobs.
type IngestService interface {
	Submit(params ingest.Params) (ingest.Job, error)
	GetJob(id string) (ingest.Job, bool)
	ListJobs() []ingest.Job
}

// CandleReader reads the labelled candle store.
type CandleReader interface {
	Query(ctx context.Context, ticker string, from, to time.Time, limit int) ([]candles.Record, error)
	Coverage(ctx context.Context) ([]candles.Coverage, error)
}

type PresetLister interface {
	List() []profile.Preset
}

// Server exposes runs, ingestion and stored data over HTTP.
type Server struct {
	addr     string
	runs     RunStarter
	results  backtest.RunStore
	ingest   IngestService
	candles  CandleReader
	profiles PresetLister
	router   *gin.Engine
}

type Config struct {
	Addr     string
	Runs     RunStarter
	Results  backtest.RunStore
	Ingest   IngestService
	Candles  CandleReader
	Profiles PresetLister
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Runs == nil {
		return nil, errors.New("run service is required")
	}
	if cfg.Results == nil {
		return nil, errors.New("result store is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:     cfg.Addr,
		runs:     cfg.Runs,
		results:  cfg.Results,
		ingest:   cfg.Ingest,
		candles:  cfg.Candles,
		profiles: cfg.Profiles,
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api := s.router.Group("/api/backtest")
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/orders", s.handleRunOrders)
	api.GET("/runs/:id/snapshots", s.handleRunSnapshots)
	api.GET("/runs/:id/chart", s.handleRunChart)
	api.GET("/runs/:id/summary", s.handleRunSummary)
	api.POST("/ingest", s.handleIngest)
	api.GET("/jobs", s.handleJobs)
	api.GET("/jobs/:id", s.handleJobStatus)
	api.GET("/data", s.handleCoverage)
	api.GET("/candles", s.handleCandles)
	api.GET("/profiles", s.handleProfiles)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("[http] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req backtest.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.runs.StartRun(req)
	if err != nil {
		c.JSON(runErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func runErrorStatus(err error) int {
	switch {
	case errors.Is(err, backtest.ErrInvalidConfig),
		errors.Is(err, backtest.ErrUnknownAsset),
		errors.Is(err, backtest.ErrMissingVolume):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.results.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) loadRun(c *gin.Context) (backtest.Run, bool) {
	run, err := s.results.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, backtest.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return backtest.Run{}, false
	}
	return run, true
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
	orders, err := s.results.ListOrders(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) handleRunSnapshots(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	snaps, err := s.results.ListSnapshots(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

func (s *Server) handleRunChart(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}
	snaps, err := s.results.ListSnapshots(c.Request.Context(), run.ID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(snaps) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("run %s has no equity curve (status %s)", run.ID, run.Status)})
		return
	}
	var buf bytes.Buffer
	title := fmt.Sprintf("%s %s", strings.Join(run.Assets, ","), run.ID)
	if err := report.EquityChart(&buf, title, snaps); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleRunSummary(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}
	if run.Report == nil {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("run %s has no report (status %s)", run.ID, run.Status)})
		return
	}
	c.String(http.StatusOK, report.Text(*run.Report))
}

func (s *Server) handleIngest(c *gin.Context) {
	if s.ingest == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingest is disabled"})
		return
	}
	var req struct {
		Symbols   []string `json:"symbols" binding:"required"`
		Source    string   `json:"source"`
		StartDate string   `json:"start_date" binding:"required"`
		EndDate   string   `json:"end_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := parseDay(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	end, err := parseDay(req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.ingest.Submit(ingest.Params{Symbols: req.Symbols, Source: req.Source, Start: start, End: end})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) handleJobs(c *gin.Context) {
	if s.ingest == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []ingest.Job{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": s.ingest.ListJobs()})
}

func (s *Server) handleJobStatus(c *gin.Context) {
	if s.ingest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	job, ok := s.ingest.GetJob(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *Server) handleCoverage(c *gin.Context) {
	if s.candles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle store is disabled"})
		return
	}
	cov, err := s.candles.Coverage(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cov})
}

// candleView replaces warm-up NaNs with nulls; encoding/json rejects NaN.
type candleView struct {
	Ticker string   `json:"ticker"`
	Date   string   `json:"date"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume float64  `json:"volume"`
	RSI    *float64 `json:"rsi"`
	EMA    *float64 `json:"ema"`
	Trend  string   `json:"ground_truth_trend"`
}

func (s *Server) handleCandles(c *gin.Context) {
	if s.candles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle store is disabled"})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	from, err := parseDay(c.Query("start_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, err := parseDay(c.Query("end_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "400"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	recs, err := s.candles.Query(c.Request.Context(), symbol, from, to, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out := make([]candleView, 0, len(recs))
	for _, r := range recs {
		out = append(out, candleView{
			Ticker: r.Ticker,
			Date:   r.Date.Format(time.DateOnly),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
			RSI:    finite(r.RSI),
			EMA:    finite(r.EMA),
			Trend:  string(r.Trend),
		})
	}
	c.JSON(http.StatusOK, gin.H{"candles": out})
}

func (s *Server) handleProfiles(c *gin.Context) {
	if s.profiles == nil {
		c.JSON(http.StatusOK, gin.H{"profiles": []profile.Preset{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": s.profiles.List()})
}

func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD", raw)
	}
	return t, nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("[http] listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
