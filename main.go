package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/config"
	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/engine"
	"github.com/foldline/backtester/exchange"
	"github.com/foldline/backtester/portfolio"
	"github.com/foldline/backtester/report"
	"github.com/foldline/backtester/statistics"
	"github.com/foldline/backtester/store"
	"github.com/foldline/backtester/strategies"
	"github.com/foldline/backtester/strategies/momentum"
	"github.com/foldline/backtester/walkforward"
)

const (
	exitConfig        = 1
	exitLookahead     = 2
	exitIntegrity     = 3
	exitNonDegenerate = 4
)

func main() {
	app := &cli.App{
		Name:  "backtester",
		Usage: "event-driven walk-forward backtesting for systematic strategies",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to the run configuration",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "artifacts",
				Usage: "override the configured artifacts directory",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log at debug level",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	switch {
	case errors.Is(err, engine.ErrLookahead):
		return exitLookahead
	case errors.Is(err, walkforward.ErrNonDegenerate):
		return exitNonDegenerate
	case errors.Is(err, config.ErrConfig), errors.Is(err, data.ErrData):
		return exitConfig
	}
	return exitConfig
}

func run(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	if dir := ctx.String("artifacts"); dir != "" {
		cfg.ArtifactsDir = dir
	}
	if cfg.ArtifactsDir == "" {
		cfg.ArtifactsDir = "artifacts"
	}

	logger, err := buildLogger(ctx.Bool("verbose"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	dir, runID, err := report.NewRunDir(cfg.ArtifactsDir, time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Infow("run starting", "run_id", runID, "artifacts", dir)

	feed, err := loadFeed(cfg)
	if err != nil {
		return err
	}
	var universe momentum.Universe
	if cfg.UniversePath != "" {
		if universe, err = momentum.LoadUniverseCSV(cfg.UniversePath); err != nil {
			return err
		}
	}

	var runStore *store.Store
	if cfg.Store.Path != "" {
		if runStore, err = store.Open(cfg.Store.Path); err != nil {
			return err
		}
		defer runStore.Close()
		if err = runStore.BeginRun(runID, cfg.SHA256, cfg.Seed); err != nil {
			return err
		}
	}

	manifest := report.NewManifest(runID, cfg.Seed, cfg.Path, cfg.SHA256, cfg.Summary())
	master := rand.New(rand.NewSource(cfg.Seed))

	if cfg.WalkForward != nil {
		err = runWalkForward(cfg, feed, universe, master, logger, dir, manifest, runStore)
	} else {
		err = runSingle(cfg, feed, universe, master, logger, dir, manifest, runStore)
	}
	if err != nil {
		return err
	}
	if err = report.CopyConfig(dir, cfg.Path, cfg.Raw); err != nil {
		return err
	}
	if manifest.RunInvalid {
		return cli.Exit("integrity check failed, see integrity.json", exitIntegrity)
	}
	logger.Infow("run finished", "run_id", runID)
	return nil
}

func runSingle(cfg *config.Config, feed *data.Feed, universe momentum.Universe, master *rand.Rand, logger *zap.SugaredLogger, dir string, manifest *report.Manifest, runStore *store.Store) error {
	start, end := fullRange()
	strat, err := newStrategy(cfg, universe, nil)
	if err != nil {
		return err
	}
	pf, err := newPortfolio(cfg, feed, logger)
	if err != nil {
		return err
	}
	if runStore != nil {
		pf.SetTradeLogger(runStore)
	}
	ex, err := newExchange(cfg, feed, common.SpawnRNG(master), start)
	if err != nil {
		return err
	}
	if err = feed.SetDateRange(start, end); err != nil {
		return err
	}
	eng, err := engine.New(feed, strat, pf, ex, dir, logger)
	if err != nil {
		return err
	}
	if err = eng.Run(); err != nil {
		return err
	}

	metrics, err := statistics.Calculate(pf.EquityCurve(), pf.Trades(), pf.InitialCash(), pf.TotalTurnover(),
		statistics.Settings{HACLags: cfg.HACLags})
	if err != nil {
		return err
	}
	integrity := report.CheckIntegrity(pf)
	manifest.RunInvalid = !integrity.OK

	if err = writeCommonArtifacts(dir, manifest, metrics, pf.EquityCurve(), pf.Trades(), integrity); err != nil {
		return err
	}
	if runStore != nil {
		metricsJSON, merr := json.Marshal(metrics)
		if merr != nil {
			return merr
		}
		if err = runStore.FinishRun(pf.Equity(), metricsJSON); err != nil {
			return err
		}
	}
	return nil
}

func runWalkForward(cfg *config.Config, feed *data.Feed, universe momentum.Universe, master *rand.Rand, logger *zap.SugaredLogger, dir string, manifest *report.Manifest, runStore *store.Store) error {
	wfStart, err := cfg.WalkForward.StartTime()
	if err != nil {
		return err
	}
	wfEnd, err := cfg.WalkForward.EndTime()
	if err != nil {
		return err
	}
	settings := walkforward.Settings{
		Start:         wfStart,
		End:           wfEnd,
		TrainingDays:  cfg.WalkForward.TrainingDays,
		TestingDays:   cfg.WalkForward.TestingDays,
		Grid:          cfg.Grid,
		Method:        cfg.RealityCheck.Method,
		BlockLength:   cfg.RealityCheck.BlockLength,
		Samples:       cfg.RealityCheck.Samples,
		WarmupBars:    cfg.WalkForward.WarmupBars,
		NonDegenerate: cfg.WalkForward.NonDegenerate,
		HACLags:       cfg.HACLags,
	}
	factories := walkforward.Factories{
		NewStrategy: func(params map[string]any) (strategies.Handler, error) {
			return newStrategy(cfg, universe, params)
		},
		NewPortfolio: func() (*portfolio.Portfolio, error) {
			return newPortfolio(cfg, feed, logger)
		},
		NewExchange: func(rng *rand.Rand) (*exchange.Exchange, error) {
			return newExchange(cfg, feed, rng, wfStart)
		},
	}
	runner, err := walkforward.New(settings, feed, factories, master, logger)
	if err != nil {
		return err
	}
	result, err := runner.Run()
	if err != nil {
		return err
	}

	metrics, err := statistics.Calculate(result.StitchedCurve, result.Trades, result.InitialEquity, result.TotalTurnover,
		statistics.Settings{HACLags: cfg.HACLags})
	if err != nil {
		return err
	}
	integrity := stitchedIntegrity(result)
	manifest.RunInvalid = !integrity.OK

	if err = writeCommonArtifacts(dir, manifest, metrics, result.StitchedCurve, result.Trades, integrity); err != nil {
		return err
	}
	if err = report.WriteFolds(dir, result.Folds); err != nil {
		return err
	}
	if err = report.WriteBootstrap(dir, result.Folds); err != nil {
		return err
	}
	if runStore != nil {
		metricsJSON, merr := json.Marshal(metrics)
		if merr != nil {
			return merr
		}
		final := result.InitialEquity
		if n := len(result.StitchedCurve); n > 0 {
			final = result.StitchedCurve[n-1].Equity
		}
		if err = runStore.FinishRun(final, metricsJSON); err != nil {
			return err
		}
	}
	return nil
}

func writeCommonArtifacts(dir string, manifest *report.Manifest, metrics statistics.Summary, curve []portfolio.EquityRecord, trades []*portfolio.TradeRecord, integrity *report.Integrity) error {
	if err := report.WriteManifest(dir, manifest); err != nil {
		return err
	}
	if err := report.WriteMetrics(dir, metrics); err != nil {
		return err
	}
	if err := report.WriteEquityCurve(dir, curve); err != nil {
		return err
	}
	if err := report.WriteTrades(dir, trades); err != nil {
		return err
	}
	return report.WriteIntegrity(dir, integrity)
}

// stitchedIntegrity runs the cross fold consistency checks. Cash level
// reconciliation happens per fold inside each portfolio, so only the
// aggregate relations are asserted here.
func stitchedIntegrity(result *walkforward.Result) *report.Integrity {
	out := &report.Integrity{OK: true, Reasons: []string{}, Details: map[string]string{}}
	out.Details["num_trades"] = fmt.Sprintf("%d", len(result.Trades))
	out.Details["total_turnover"] = result.TotalTurnover.String()
	if result.TotalTurnover.IsPositive() && len(result.Trades) == 0 {
		out.OK = false
		out.Reasons = append(out.Reasons, "turnover_without_trades")
	}
	if len(result.Trades) > 0 && !result.TotalTurnover.IsPositive() {
		out.OK = false
		out.Reasons = append(out.Reasons, "trades_without_turnover")
	}
	return out
}

// fullRange covers any plausible dataset when no walk-forward geometry
// restricts the run
func fullRange() (time.Time, time.Time) {
	return time.Unix(0, 0).UTC(), time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)
}

func buildLogger(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
