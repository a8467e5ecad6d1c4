package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"momentum/internal/app"
	"momentum/internal/backtest"
	"momentum/internal/config"
	"momentum/internal/ingest"
	"momentum/internal/logger"
	"momentum/internal/report"

	"github.com/urfave/cli/v2"
)

var (
	configPath string
	logLevel   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := cli.NewApp()
	a.Name = "momentum"
	a.Usage = "daily trend-following backtester for crypto pairs"
	a.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "config file path (default $" + config.EnvConfigPath + " or " + config.DefaultConfigPath + ")",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "overrides app.log_level",
			Destination: &logLevel,
		},
	}
	a.Commands = []*cli.Command{
		{
			Name:  "ingest",
			Usage: "download daily candles, label the trend and store them",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{Name: "symbols", Usage: "symbols to download, defaults to backtest.assets"},
				&cli.StringFlag{Name: "source", Usage: "history source (kraken or binance)"},
				&cli.StringFlag{Name: "start", Usage: "first stored day, YYYY-MM-DD"},
				&cli.StringFlag{Name: "end", Usage: "last stored day, YYYY-MM-DD"},
			},
			Action: runIngest,
		},
		{
			Name:  "backtest",
			Usage: "replay the stored candles and print the summary",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "profile", Usage: "preset name from the presets file"},
				&cli.StringSliceFlag{Name: "assets", Usage: "assets to trade, defaults to backtest.assets"},
				&cli.StringFlag{Name: "start", Usage: "first day, YYYY-MM-DD"},
				&cli.StringFlag{Name: "end", Usage: "last day, YYYY-MM-DD"},
				&cli.StringFlag{Name: "format", Value: string(report.FormatText), Usage: "text, json or yaml"},
				&cli.StringFlag{Name: "chart", Usage: "write an equity chart to this html file"},
			},
			Action: runBacktest,
		},
		{
			Name:   "serve",
			Usage:  "serve the HTTP API",
			Action: runServe,
		},
	}

	if err := a.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads the config, routes logging and builds the app. The returned
// cleanup closes the app and the log file.
func setup() (*app.App, func(), error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	logFile, err := logger.TeeFile(cfg.App.LogPath)
	if err != nil {
		return nil, nil, err
	}
	logger.SetJSON(cfg.App.LogJSON)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded from %s (env=%s)", path, cfg.App.Env)

	application, err := app.NewApp(cfg)
	if err != nil {
		logFile.Close()
		return nil, nil, fmt.Errorf("init app: %w", err)
	}
	cleanup := func() {
		if err := application.Close(); err != nil {
			logger.Warnf("close app: %v", err)
		}
		logFile.Close()
	}
	return application, cleanup, nil
}

func runIngest(c *cli.Context) error {
	application, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	def := application.Config().BacktestDefaults()
	params := ingest.Params{
		Symbols: splitList(c.StringSlice("symbols")),
		Source:  c.String("source"),
		Start:   def.Start,
		End:     def.End,
	}
	if len(params.Symbols) == 0 {
		params.Symbols = def.Assets
	}
	if params.Start, err = dayFlag(c, "start", params.Start); err != nil {
		return err
	}
	if params.End, err = dayFlag(c, "end", params.End); err != nil {
		return err
	}
	job, err := application.Ingest().Run(c.Context, params)
	for _, p := range job.Progress {
		line := fmt.Sprintf("%-10s fetched=%d stored=%d", p.Symbol, p.Fetched, p.Stored)
		if p.Error != "" {
			line += " error=" + p.Error
		}
		fmt.Println(line)
	}
	for _, w := range job.Warnings {
		fmt.Println("warning:", w)
	}
	if err != nil {
		return err
	}
	fmt.Printf("job %s %s: %d rows\n", job.ID, job.Status, job.Rows)
	return nil
}

func runBacktest(c *cli.Context) error {
	format, err := report.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}
	application, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	req := backtest.RunRequest{
		Profile:   c.String("profile"),
		Assets:    splitList(c.StringSlice("assets")),
		StartDate: c.String("start"),
		EndDate:   c.String("end"),
	}
	out, err := application.Backtest().RunSync(c.Context, req)
	if err != nil {
		return err
	}
	if err := report.Render(os.Stdout, format, out.Report); err != nil {
		return err
	}
	if path := c.String("chart"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create chart file: %w", err)
		}
		defer f.Close()
		if err := report.EquityChart(f, "Run "+out.Run.ID, out.Result.Snapshots); err != nil {
			return err
		}
		logger.Infof("[backtest] equity chart written to %s", path)
	}
	return nil
}

func runServe(c *cli.Context) error {
	application, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()
	return application.Run(c.Context)
}

func dayFlag(c *cli.Context, name string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(c.String(name))
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return t, nil
}

// splitList accepts both repeated flags and comma separated values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
