package statistics

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldline/backtester/portfolio"
)

func equityCurve(values ...float64) []portfolio.EquityRecord {
	curve := make([]portfolio.EquityRecord, len(values))
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		curve[i] = portfolio.EquityRecord{Time: at.AddDate(0, 0, i), Equity: decimal.NewFromFloat(v)}
	}
	return curve
}

func TestReturns(t *testing.T) {
	t.Parallel()
	rets := Returns([]float64{100, 110, 99})
	require.Len(t, rets, 2)
	assert.InDelta(t, 0.1, rets[0], 1e-12)
	assert.InDelta(t, -0.1, rets[1], 1e-12)

	assert.Nil(t, Returns([]float64{100}))
}

func TestSharpe(t *testing.T) {
	t.Parallel()
	// mean 0.02, population sd 0.01
	got := Sharpe([]float64{0.01, 0.03}, 252)
	assert.InDelta(t, math.Sqrt(252)*2, got, 1e-9)

	// constant returns have zero variance
	assert.Zero(t, Sharpe([]float64{0.01, 0.01, 0.01}, 252))
}

func TestSortino(t *testing.T) {
	t.Parallel()
	// downside deviation sqrt(0.01/2), mean 0.05
	got := Sortino([]float64{0.2, -0.1}, 252)
	want := math.Sqrt(252) * 0.05 / math.Sqrt(0.005)
	assert.InDelta(t, want, got, 1e-9)

	// no losing periods
	assert.Zero(t, Sortino([]float64{0.01, 0.02}, 252))
}

func TestMaxDrawdown(t *testing.T) {
	t.Parallel()
	dd, duration := MaxDrawdown([]float64{100, 120, 90, 100, 130})
	assert.InDelta(t, 0.25, dd, 1e-12)
	assert.Equal(t, 2, duration)

	dd, duration = MaxDrawdown([]float64{100, 110, 120})
	assert.Zero(t, dd)
	assert.Zero(t, duration)
}

func TestCAGR(t *testing.T) {
	t.Parallel()
	// doubling over exactly two years
	assert.InDelta(t, 0.1, CAGR(100, 121, 252, 504), 1e-9)

	// wiped out accounts pin at a full loss
	assert.Equal(t, float64(-1), CAGR(100, 0, 252, 252))
	assert.Equal(t, float64(-1), CAGR(100, -5, 252, 252))
}

func TestCalculateSummary(t *testing.T) {
	t.Parallel()
	curve := equityCurve(100000, 101000, 100500, 102000)
	summary, err := Calculate(curve, nil, decimal.NewFromInt(100000), decimal.NewFromInt(5000), Settings{})
	require.NoError(t, err)

	assert.Equal(t, float64(4), summary["num_periods"])
	assert.InDelta(t, 102000, summary["final_equity"], 1e-6)
	assert.InDelta(t, 100000, summary["initial_equity"], 1e-6)
	assert.InDelta(t, 5000, summary["total_turnover"], 1e-6)
	assert.InDelta(t, 1250, summary["turnover_per_day"], 1e-6)
	assert.Greater(t, summary["sharpe_ratio"], 0.0)
	assert.InDelta(t, 500.0/101000, summary["max_drawdown"], 1e-9)
	assert.Equal(t, float64(0), summary["num_trades"])

	// unset lag count leaves the error bands out
	_, ok := summary["sharpe_se"]
	assert.False(t, ok)
}

func TestCalculateHACBands(t *testing.T) {
	t.Parallel()
	curve := equityCurve(100, 101, 99, 102, 101, 103, 102, 105)
	summary, err := Calculate(curve, nil, decimal.NewFromInt(100), decimal.Zero, Settings{HACLags: 2})
	require.NoError(t, err)

	se := summary["sharpe_se"]
	assert.Greater(t, se, 0.0)
	assert.InDelta(t, summary["sharpe_ratio"]-1.96*se, summary["sharpe_ci_low"], 1e-12)
	assert.InDelta(t, summary["sharpe_ratio"]+1.96*se, summary["sharpe_ci_high"], 1e-12)
	assert.InDelta(t, summary["sharpe_ratio"]/se, summary["sharpe_tstat"], 1e-12)
}

func TestCalculateTradeStats(t *testing.T) {
	t.Parallel()
	trades := []*portfolio.TradeRecord{
		{Qty: 100, Price: decimal.NewFromInt(10)},
		{Qty: -100, Price: decimal.NewFromInt(11), RealizedPNL: decimal.NewFromInt(100)},
		{Qty: 50, Price: decimal.NewFromInt(20)},
		{Qty: -50, Price: decimal.NewFromInt(18), RealizedPNL: decimal.NewFromInt(-100)},
	}
	summary, err := Calculate(equityCurve(1000, 1000), trades, decimal.NewFromInt(1000), decimal.Zero, Settings{})
	require.NoError(t, err)

	assert.Equal(t, float64(4), summary["num_trades"])
	assert.InDelta(t, 0.5, summary["win_rate"], 1e-12)
	assert.InDelta(t, 0, summary["total_realized_pnl"], 1e-12)
	// (1000 + 1100 + 1000 + 900) / 4
	assert.InDelta(t, 1000, summary["avg_trade_notional"], 1e-9)
}

func TestCalculateBenchmark(t *testing.T) {
	t.Parallel()
	curve := equityCurve(100, 101, 99, 102, 101)
	rets := Returns([]float64{100, 101, 99, 102, 101})
	summary, err := Calculate(curve, nil, decimal.NewFromInt(100), decimal.Zero, Settings{Benchmark: rets})
	require.NoError(t, err)

	// the run tracks its benchmark exactly
	assert.InDelta(t, 1, summary["beta"], 1e-9)
	assert.InDelta(t, 0, summary["alpha"], 1e-9)
	assert.InDelta(t, 0, summary["information_ratio"], 1e-9)
}

func TestCalculateEmptyCurve(t *testing.T) {
	t.Parallel()
	_, err := Calculate(nil, nil, decimal.Zero, decimal.Zero, Settings{})
	assert.ErrorIs(t, err, ErrNoEquity)
}
