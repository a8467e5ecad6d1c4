package app

import (
	"context"
	"errors"
	"fmt"

	"momentum/internal/backtest"
	"momentum/internal/config"
	"momentum/internal/ingest"
	"momentum/internal/logger"
	"momentum/internal/profile"
	"momentum/internal/store/candles"
	"momentum/internal/store/gormstore"
	backtesthttp "momentum/internal/transport/http/backtest"

	"golang.org/x/sync/errgroup"
)

// App owns every long-lived component: both databases, the preset registry,
// the ingest and backtest services and the HTTP server.
type App struct {
	cfg      *config.Config
	candles  *candles.Store
	results  *gormstore.GormStore
	profiles *profile.Registry
	ingest   *ingest.Service
	backtest *backtest.Service
	server   *backtesthttp.Server
	Summary  *StartupSummary
}

// NewApp builds the application without starting anything.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run serves the HTTP API until ctx is cancelled, then waits for queued
// runs and ingest jobs.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.server == nil {
		return fmt.Errorf("http server not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	a.SetContext(ctx)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(gctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		a.backtest.Wait()
		a.ingest.Wait()
		logger.Infof("[app] background work drained")
		return nil
	})
	return group.Wait()
}

// SetContext hands ctx to the background services.
func (a *App) SetContext(ctx context.Context) {
	a.backtest.SetContext(ctx)
	a.ingest.SetContext(ctx)
}

func (a *App) Config() *config.Config { return a.cfg }
func (a *App) Backtest() *backtest.Service { return a.backtest }
func (a *App) Ingest() *ingest.Service { return a.ingest }
func (a *App) Candles() *candles.Store { return a.candles }
func (a *App) Results() *gormstore.GormStore { return a.results }
func (a *App) Profiles() *profile.Registry { return a.profiles }

// Close releases both databases.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.results != nil {
		errs = append(errs, a.results.Close())
	}
	if a.candles != nil {
		errs = append(errs, a.candles.Close())
	}
	return errors.Join(errs...)
}
