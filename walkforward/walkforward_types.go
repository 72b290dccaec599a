package walkforward

import (
	"errors"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/exchange"
	"github.com/foldline/backtester/portfolio"
	"github.com/foldline/backtester/strategies"
)

var (
	// ErrNonDegenerate is returned when the non-degenerate policy rejects
	// every candidate in a fold
	ErrNonDegenerate = errors.New("no candidate passed the non-degenerate policy")
	// ErrNoFolds is returned when the window geometry yields no folds
	ErrNoFolds = errors.New("window geometry produces no folds")
	// ErrEmptyGrid is returned when the parameter grid has no combinations
	ErrEmptyGrid = errors.New("parameter grid is empty")
)

// Bootstrap methods for the reality check. The iid method is kept for
// backwards compatibility only.
const (
	MethodStationary = "stationary"
	MethodCircular   = "circular"
	MethodIID        = "iid"
)

// Settings describes the fold geometry, the search grid and the reality
// check
type Settings struct {
	Start, End   time.Time
	TrainingDays int
	TestingDays  int

	Grid map[string][]any

	Method      string
	BlockLength float64
	Samples     int

	// WarmupBars is the trailing per symbol history carried from the end
	// of each train window into the test fold strategy
	WarmupBars int
	// NonDegenerate rejects candidates with zero trades, zero turnover or
	// flat equity during selection
	NonDegenerate bool

	PeriodsPerYear float64
	HACLags        int
}

// Factories builds fresh components per candidate run so no state leaks
// between grid evaluations
type Factories struct {
	NewStrategy  func(params map[string]any) (strategies.Handler, error)
	NewPortfolio func() (*portfolio.Portfolio, error)
	NewExchange  func(rng *rand.Rand) (*exchange.Exchange, error)
}

// Window is one fold's train and test date ranges
type Window struct {
	Index      int       `json:"index"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
}

// RealityCheck summarizes the bootstrap over one fold's grid
type RealityCheck struct {
	PValue       float64   `json:"p_value"`
	BestSharpe   float64   `json:"best_sharpe"`
	Method       string    `json:"method"`
	BlockLength  float64   `json:"block_length"`
	NumBootstrap int       `json:"num_bootstrap"`
	Distribution []float64 `json:"distribution"`
}

// FoldResult is the per fold record written to folds.json
type FoldResult struct {
	Window       Window             `json:"window"`
	BestParams   map[string]any     `json:"best_params"`
	TrainMetrics map[string]float64 `json:"train_metrics"`
	TestMetrics  map[string]float64 `json:"test_metrics"`
	RealityCheck RealityCheck       `json:"reality_check"`
}

// Result aggregates the walk-forward outputs
type Result struct {
	Folds         []FoldResult
	StitchedCurve []portfolio.EquityRecord
	Trades        []*portfolio.TradeRecord
	TotalTurnover decimal.Decimal
	InitialEquity decimal.Decimal
}

// candidate is one evaluated grid combination on a train window
type candidate struct {
	params   map[string]any
	sharpe   float64
	returns  []float64
	trades   int
	turnover decimal.Decimal
	flat     bool
}
