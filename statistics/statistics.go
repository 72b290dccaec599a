package statistics

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/portfolio"
)

// Calculate derives the full metric set from a finished run's equity curve
// and trade log
func Calculate(equity []portfolio.EquityRecord, trades []*portfolio.TradeRecord, initial, totalTurnover decimal.Decimal, s Settings) (Summary, error) {
	if len(equity) == 0 {
		return nil, ErrNoEquity
	}
	periods := s.PeriodsPerYear
	if periods <= 0 {
		periods = DefaultPeriodsPerYear
	}

	values := make([]float64, len(equity))
	for i := range equity {
		values[i] = equity[i].Equity.InexactFloat64()
	}
	rets := Returns(values)
	n := float64(len(equity))

	out := Summary{
		"initial_equity": initial.InexactFloat64(),
		"final_equity":   values[len(values)-1],
		"num_periods":    n,
	}

	sharpe := Sharpe(rets, periods)
	out["sharpe_ratio"] = sharpe
	if s.HACLags > 0 {
		se := hacSharpeSE(rets, periods, s.HACLags)
		out["sharpe_se"] = se
		if se > 0 {
			out["sharpe_tstat"] = sharpe / se
		} else {
			out["sharpe_tstat"] = 0
		}
		out["sharpe_ci_low"] = sharpe - 1.96*se
		out["sharpe_ci_high"] = sharpe + 1.96*se
	}
	out["sortino_ratio"] = Sortino(rets, periods)
	out["ann_vol"] = stdDev(rets) * math.Sqrt(periods)

	dd, duration := MaxDrawdown(values)
	out["max_drawdown"] = dd
	out["max_drawdown_duration"] = float64(duration)

	cagr := CAGR(initial.InexactFloat64(), values[len(values)-1], periods, n)
	out["cagr"] = cagr
	if dd > 0 {
		out["calmar_ratio"] = cagr / dd
	} else {
		out["calmar_ratio"] = 0
	}

	out["total_turnover"] = totalTurnover.InexactFloat64()
	out["turnover_per_day"] = totalTurnover.InexactFloat64() / n

	addTradeStats(out, trades)
	if len(s.Benchmark) > 0 {
		addBenchmarkStats(out, rets, s.Benchmark, periods)
	}
	return out, nil
}

// Returns converts an equity series into simple per period returns
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	rets := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			rets = append(rets, 0)
			continue
		}
		rets = append(rets, values[i]/values[i-1]-1)
	}
	return rets
}

// Sharpe is the annualized ratio of mean return to population standard
// deviation
func Sharpe(rets []float64, periods float64) float64 {
	sd := stdDev(rets)
	if sd == 0 {
		return 0
	}
	return math.Sqrt(periods) * mean(rets) / sd
}

// Sortino penalizes only downside deviation
func Sortino(rets []float64, periods float64) float64 {
	if len(rets) == 0 {
		return 0
	}
	var downside float64
	for _, r := range rets {
		if r < 0 {
			downside += r * r
		}
	}
	downside = math.Sqrt(downside / float64(len(rets)))
	if downside == 0 {
		return 0
	}
	return math.Sqrt(periods) * mean(rets) / downside
}

// MaxDrawdown returns the deepest peak to trough loss and the longest
// stretch of periods spent below the running maximum
func MaxDrawdown(values []float64) (maxDD float64, maxDuration int) {
	if len(values) == 0 {
		return 0, 0
	}
	runningMax := values[0]
	var current int
	for _, v := range values {
		if v > runningMax {
			runningMax = v
		}
		if runningMax > 0 {
			if dd := (runningMax - v) / runningMax; dd > maxDD {
				maxDD = dd
			}
		}
		if v < runningMax {
			current++
			if current > maxDuration {
				maxDuration = current
			}
		} else {
			current = 0
		}
	}
	return maxDD, maxDuration
}

// CAGR is the compound annual growth rate over n periods
func CAGR(initial, final, periods, n float64) float64 {
	if final <= 0 {
		return -1
	}
	if initial <= 0 || n == 0 {
		return 0
	}
	return math.Pow(final/initial, periods/n) - 1
}

// hacSharpeSE computes a Newey-West standard error for the Sharpe ratio.
// The long run variance replaces the iid variance of the mean, with
// Bartlett weights over the first L autocovariances.
func hacSharpeSE(rets []float64, periods float64, lags int) float64 {
	n := len(rets)
	if n < 2 {
		return 0
	}
	sd := stdDev(rets)
	if sd == 0 {
		return 0
	}
	mu := mean(rets)
	gamma := func(k int) float64 {
		var sum float64
		for i := k; i < n; i++ {
			sum += (rets[i] - mu) * (rets[i-k] - mu)
		}
		return sum / float64(n)
	}
	lrv := gamma(0)
	if lags >= n {
		lags = n - 1
	}
	for k := 1; k <= lags; k++ {
		lrv += 2 * (1 - float64(k)/float64(lags+1)) * gamma(k)
	}
	if lrv < 0 {
		lrv = 0
	}
	varMean := lrv / float64(n)
	return math.Sqrt(periods) * math.Sqrt(varMean) / sd
}

func addTradeStats(out Summary, trades []*portfolio.TradeRecord) {
	out["num_trades"] = float64(len(trades))
	if len(trades) == 0 {
		out["avg_trade_notional"] = 0
		out["win_rate"] = 0
		out["total_realized_pnl"] = 0
		return
	}
	var notional, realized decimal.Decimal
	var wins, closed int
	for _, t := range trades {
		qty := t.Qty
		if qty < 0 {
			qty = -qty
		}
		notional = notional.Add(t.Price.Mul(decimal.NewFromInt(qty)))
		realized = realized.Add(t.RealizedPNL)
		if !t.RealizedPNL.IsZero() {
			closed++
			if t.RealizedPNL.IsPositive() {
				wins++
			}
		}
	}
	out["avg_trade_notional"] = notional.Div(decimal.NewFromInt(int64(len(trades)))).InexactFloat64()
	out["total_realized_pnl"] = realized.InexactFloat64()
	if closed > 0 {
		out["win_rate"] = float64(wins) / float64(closed)
	} else {
		out["win_rate"] = 0
	}
}

// addBenchmarkStats aligns the run's returns with the benchmark by index
// and reports the usual relative measures
func addBenchmarkStats(out Summary, rets, benchmark []float64, periods float64) {
	n := len(rets)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < 2 {
		return
	}
	r := rets[:n]
	b := benchmark[:n]
	mr, mb := mean(r), mean(b)
	var cov, varB float64
	for i := 0; i < n; i++ {
		cov += (r[i] - mr) * (b[i] - mb)
		varB += (b[i] - mb) * (b[i] - mb)
	}
	cov /= float64(n)
	varB /= float64(n)

	var beta float64
	if varB > 0 {
		beta = cov / varB
	}
	out["beta"] = beta
	out["alpha"] = (mr - beta*mb) * periods

	active := make([]float64, n)
	for i := 0; i < n; i++ {
		active[i] = r[i] - b[i]
	}
	sd := stdDev(active)
	if sd > 0 {
		out["information_ratio"] = math.Sqrt(periods) * mean(active) / sd
	} else {
		out["information_ratio"] = 0
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev is the population standard deviation
func stdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mu := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}
