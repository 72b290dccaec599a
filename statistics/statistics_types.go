package statistics

import "errors"

// ErrNoEquity is returned when metrics are requested for an empty run
var ErrNoEquity = errors.New("no equity records to calculate statistics from")

// DefaultPeriodsPerYear is the annualization factor for daily bars
const DefaultPeriodsPerYear = 252.0

// Settings controls annualization and the optional HAC correction
type Settings struct {
	PeriodsPerYear float64
	// HACLags enables a Newey-West long-run variance for the Sharpe
	// standard error when greater than zero
	HACLags int
	// Benchmark is an optional per period benchmark return series, aligned
	// by index with the run's returns
	Benchmark []float64
}

// Summary is a flat, deterministic set of scalar metrics. Keys never
// contain paths, run ids or timestamps so two runs of the same config
// serialize identically.
type Summary map[string]float64
