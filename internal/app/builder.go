package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"momentum/internal/backtest"
	"momentum/internal/config"
	"momentum/internal/gateway/binance"
	"momentum/internal/gateway/kraken"
	"momentum/internal/ingest"
	"momentum/internal/logger"
	"momentum/internal/market"
	"momentum/internal/profile"
	"momentum/internal/store/candles"
	"momentum/internal/store/gormstore"
	backtesthttp "momentum/internal/transport/http/backtest"
)

type AppBuilder struct {
	cfg *config.Config

	sourcesFn  func(config.DataConfig) (map[string]market.HistorySource, error)
	profilesFn func(path string) (*profile.Registry, error)
}

type AppBuilderOption func(*AppBuilder)

// WithSources replaces the exchange clients, mainly for tests.
func WithSources(fn func(config.DataConfig) (map[string]market.HistorySource, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.sourcesFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		sourcesFn:  buildSources,
		profilesFn: loadProfiles,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (app *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	app = &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	if app.candles, err = candles.NewStore(cfg.Data.CandleDBDir); err != nil {
		return nil, fmt.Errorf("open candle store: %w", err)
	}
	if app.results, err = gormstore.NewGormStore(cfg.Data.ResultsDBPath); err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	if app.profiles, err = b.profilesFn(cfg.Strategy.ProfilesPath); err != nil {
		return nil, err
	}
	app.profiles.Subscribe(func(s profile.Snapshot) {
		logger.Infof("[profile] presets reloaded: version=%d count=%d", s.Version, len(s.Presets))
	})

	sources, err := b.sourcesFn(cfg.Data)
	if err != nil {
		return nil, err
	}
	app.ingest, err = ingest.NewService(ingest.ServiceConfig{
		Store:           app.candles,
		Sources:         sources,
		DefaultSource:   cfg.Data.Source,
		RateLimitPerMin: cfg.Data.RateLimitPerMin,
		MaxConcurrent:   cfg.Data.MaxConcurrent,
		Trend:           cfg.TrendSettings(),
		WarmupDays:      cfg.Trend.WarmupDays,
	})
	if err != nil {
		return nil, err
	}
	app.backtest, err = backtest.NewService(backtest.ServiceConfig{
		Series:        app.candles,
		Runs:          app.results,
		Presets:       app.profiles,
		Defaults:      cfg.BacktestDefaults(),
		MaxConcurrent: cfg.Backtest.MaxConcurrentRuns,
	})
	if err != nil {
		return nil, err
	}
	app.server, err = backtesthttp.NewServer(backtesthttp.Config{
		Addr:     cfg.App.HTTPAddr,
		Runs:     app.backtest,
		Results:  app.results,
		Ingest:   app.ingest,
		Candles:  app.candles,
		Profiles: app.profiles,
	})
	if err != nil {
		return nil, err
	}
	app.SetContext(ctx)
	app.Summary = buildSummary(cfg, app.profiles, sources)
	return app, nil
}

func buildSources(cfg config.DataConfig) (map[string]market.HistorySource, error) {
	bn, err := binance.New(binance.Config{
		RESTBaseURL:  cfg.BinanceRESTURL,
		HTTPTimeout:  cfg.HTTPTimeout(),
		ProxyEnabled: strings.TrimSpace(cfg.ProxyURL) != "",
		RESTProxyURL: cfg.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("binance source: %w", err)
	}
	kr := kraken.New(kraken.Config{RESTBaseURL: cfg.KrakenRESTURL, HTTPTimeout: cfg.HTTPTimeout()})
	return map[string]market.HistorySource{
		bn.Name(): bn,
		kr.Name(): kr,
	}, nil
}

// loadProfiles watches the preset file; a missing file yields an empty set.
func loadProfiles(path string) (*profile.Registry, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Warnf("[profile] %s not found, running without presets", path)
		return profile.NewStatic()
	}
	reg, err := profile.NewRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	return reg, nil
}
