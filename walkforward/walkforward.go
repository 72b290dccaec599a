package walkforward

import (
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/engine"
	"github.com/foldline/backtester/portfolio"
	"github.com/foldline/backtester/statistics"
)

// Runner drives the fold loop: grid search on each train window, a
// bootstrap reality check over the evaluated grid, then an out of sample
// test run with warm-up history carried across the boundary
type Runner struct {
	settings  Settings
	data      data.Handler
	factories Factories
	rng       *rand.Rand
	log       *zap.SugaredLogger
}

// New creates a walk-forward runner. The master RNG seeds every per-run
// stream deterministically.
func New(s Settings, d data.Handler, f Factories, master *rand.Rand, logger *zap.SugaredLogger) (*Runner, error) {
	if d == nil || master == nil || f.NewStrategy == nil || f.NewPortfolio == nil || f.NewExchange == nil {
		return nil, common.ErrNilArguments
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{settings: s, data: d, factories: f, rng: master, log: logger}, nil
}

// Run executes every fold and returns the stitched results
func (r *Runner) Run() (*Result, error) {
	windows := r.windows()
	if len(windows) == 0 {
		return nil, ErrNoFolds
	}
	combos, err := gridCombinations(r.settings.Grid)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, w := range windows {
		fold, err := r.runFold(w, combos, result)
		if err != nil {
			return nil, err
		}
		result.Folds = append(result.Folds, *fold)
	}
	return result, nil
}

// windows lays out the fold geometry. Folds are produced while a full
// train plus test span still fits before the end date.
func (r *Runner) windows() []Window {
	trainSpan := time.Duration(r.settings.TrainingDays) * 24 * time.Hour
	testSpan := time.Duration(r.settings.TestingDays) * 24 * time.Hour
	day := 24 * time.Hour

	var out []Window
	current := r.settings.Start
	for !current.Add(trainSpan + testSpan).After(r.settings.End) {
		trainEnd := current.Add(trainSpan)
		out = append(out, Window{
			Index:      len(out),
			TrainStart: current,
			TrainEnd:   trainEnd,
			TestStart:  trainEnd.Add(day),
			TestEnd:    trainEnd.Add(testSpan),
		})
		current = current.Add(testSpan)
	}
	return out
}

func (r *Runner) runFold(w Window, combos []map[string]any, result *Result) (*FoldResult, error) {
	candidates := make([]candidate, 0, len(combos))
	for _, params := range combos {
		pf, err := r.runWindow(params, w.TrainStart, w.TrainEnd, nil)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, summarize(params, pf, r.periods()))
	}

	best, err := selectBest(candidates, r.settings.NonDegenerate)
	if err != nil {
		return nil, err
	}
	rc := realityCheck(candidates, r.settings, common.SpawnRNG(r.rng))

	warmup := r.collectWarmup(w.TrainEnd)
	testPF, err := r.runWindow(best.params, w.TestStart, w.TestEnd, warmup)
	if err != nil {
		return nil, err
	}
	testMetrics, err := statistics.Calculate(
		testPF.EquityCurve(), testPF.Trades(), testPF.InitialCash(), testPF.TotalTurnover(),
		statistics.Settings{PeriodsPerYear: r.periods(), HACLags: r.settings.HACLags})
	if err != nil {
		return nil, err
	}

	r.stitch(result, testPF)
	r.log.Infow("fold complete",
		"fold", w.Index,
		"best_params", best.params,
		"train_sharpe", best.sharpe,
		"p_value", rc.PValue,
		"test_trades", len(testPF.Trades()))

	return &FoldResult{
		Window:     w,
		BestParams: best.params,
		TrainMetrics: map[string]float64{
			"sharpe_ratio":   best.sharpe,
			"num_trades":     float64(best.trades),
			"total_turnover": best.turnover.InexactFloat64(),
		},
		TestMetrics:  testMetrics,
		RealityCheck: rc,
	}, nil
}

// runWindow restricts the data range and drives one fresh engine over it
func (r *Runner) runWindow(params map[string]any, start, end time.Time, warmup map[string][]data.PricePoint) (*portfolio.Portfolio, error) {
	strat, err := r.factories.NewStrategy(params)
	if err != nil {
		return nil, err
	}
	if warmup != nil {
		strat.SetWarmup(warmup)
	}
	pf, err := r.factories.NewPortfolio()
	if err != nil {
		return nil, err
	}
	ex, err := r.factories.NewExchange(common.SpawnRNG(r.rng))
	if err != nil {
		return nil, err
	}
	if err = r.data.SetDateRange(start, end); err != nil {
		return nil, err
	}
	eng, err := engine.New(r.data, strat, pf, ex, "", r.log)
	if err != nil {
		return nil, err
	}
	if err = eng.Run(); err != nil {
		return nil, err
	}
	return pf, nil
}

func (r *Runner) collectWarmup(trainEnd time.Time) map[string][]data.PricePoint {
	if r.settings.WarmupBars <= 0 {
		return nil
	}
	out := make(map[string][]data.PricePoint)
	for _, sym := range r.data.Symbols() {
		if h := r.data.RecentHistory(sym, trainEnd, r.settings.WarmupBars); len(h) > 0 {
			out[sym] = h
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// stitch chains a test fold's equity onto the global curve by scaling it
// to continue from the previous fold's final equity
func (r *Runner) stitch(result *Result, pf *portfolio.Portfolio) {
	curve := pf.EquityCurve()
	if len(curve) == 0 {
		return
	}
	factor := decimal.NewFromInt(1)
	if len(result.StitchedCurve) == 0 {
		result.InitialEquity = pf.InitialCash()
	} else {
		last := result.StitchedCurve[len(result.StitchedCurve)-1].Equity
		if pf.InitialCash().IsPositive() {
			factor = last.Div(pf.InitialCash())
		}
	}
	for _, rec := range curve {
		scaled := rec
		scaled.Equity = rec.Equity.Mul(factor)
		result.StitchedCurve = append(result.StitchedCurve, scaled)
	}
	result.Trades = append(result.Trades, pf.Trades()...)
	result.TotalTurnover = result.TotalTurnover.Add(pf.TotalTurnover())
}

func (r *Runner) periods() float64 {
	if r.settings.PeriodsPerYear > 0 {
		return r.settings.PeriodsPerYear
	}
	return statistics.DefaultPeriodsPerYear
}

func summarize(params map[string]any, pf *portfolio.Portfolio, periods float64) candidate {
	curve := pf.EquityCurve()
	values := make([]float64, len(curve))
	flat := true
	for i := range curve {
		values[i] = curve[i].Equity.InexactFloat64()
		if i > 0 && values[i] != values[0] {
			flat = false
		}
	}
	rets := statistics.Returns(values)
	return candidate{
		params:   params,
		sharpe:   statistics.Sharpe(rets, periods),
		returns:  rets,
		trades:   len(pf.Trades()),
		turnover: pf.TotalTurnover(),
		flat:     flat,
	}
}

// selectBest maximizes train Sharpe, optionally discarding degenerate
// candidates first. Ties resolve to the earliest combination in grid
// order so selection stays deterministic.
func selectBest(candidates []candidate, nonDegenerate bool) (*candidate, error) {
	var best *candidate
	for i := range candidates {
		c := &candidates[i]
		if nonDegenerate && (c.trades == 0 || !c.turnover.IsPositive() || c.flat) {
			continue
		}
		if best == nil || c.sharpe > best.sharpe {
			best = c
		}
	}
	if best == nil {
		if nonDegenerate {
			return nil, ErrNonDegenerate
		}
		return nil, ErrEmptyGrid
	}
	return best, nil
}

// gridCombinations enumerates the Cartesian product of the grid in sorted
// key order. An empty grid yields one empty combination, the base params.
func gridCombinations(grid map[string][]any) ([]map[string]any, error) {
	if len(grid) == 0 {
		return []map[string]any{{}}, nil
	}
	keys := make([]string, 0, len(grid))
	for k := range grid {
		if len(grid[k]) == 0 {
			return nil, ErrEmptyGrid
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []map[string]any{{}}
	for _, k := range keys {
		next := make([]map[string]any, 0, len(out)*len(grid[k]))
		for _, base := range out {
			for _, v := range grid[k] {
				combo := make(map[string]any, len(base)+1)
				for bk, bv := range base {
					combo[bk] = bv
				}
				combo[k] = v
				next = append(next, combo)
			}
		}
		out = next
	}
	return out, nil
}
