package report

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/portfolio"
)

// CheckIntegrity reconciles a finished portfolio's books. Failures do not
// abort anything; they taint the manifest and land in integrity.json.
func CheckIntegrity(pf *portfolio.Portfolio) *Integrity {
	out := &Integrity{OK: true, Reasons: []string{}, Details: map[string]string{}}

	initial := pf.InitialCash()
	final := pf.Equity()
	expected := initial.
		Add(pf.RealizedPNL()).
		Add(pf.UnrealizedPNL()).
		Sub(pf.TotalCommission()).
		Sub(pf.BorrowCostTotal())

	diff := final.Sub(expected).Abs()
	tolerance := decimal.NewFromFloat(math.Max(1e-6, 1e-8*initial.InexactFloat64()))
	out.Details["final_equity"] = final.String()
	out.Details["expected_equity"] = expected.String()
	out.Details["reconciliation_diff"] = diff.String()
	if diff.GreaterThan(tolerance) {
		out.OK = false
		out.Reasons = append(out.Reasons, "cash_reconciliation_mismatch")
	}

	numTrades := len(pf.Trades())
	turnover := pf.TotalTurnover()
	out.Details["num_trades"] = fmt.Sprintf("%d", numTrades)
	out.Details["total_turnover"] = turnover.String()
	if turnover.IsPositive() && numTrades == 0 {
		out.OK = false
		out.Reasons = append(out.Reasons, "turnover_without_trades")
	}
	if numTrades > 0 && !turnover.IsPositive() {
		out.OK = false
		out.Reasons = append(out.Reasons, "trades_without_turnover")
	}

	if numTrades > 0 && constantEquity(pf.EquityCurve()) {
		costs := pf.TotalCommission().Add(pf.BorrowCostTotal())
		if costs.IsPositive() {
			out.OK = false
			out.Reasons = append(out.Reasons, "constant_equity_despite_costs")
		}
	}
	return out
}

func constantEquity(curve []portfolio.EquityRecord) bool {
	for i := 1; i < len(curve); i++ {
		if !curve[i].Equity.Equal(curve[0].Equity) {
			return false
		}
	}
	return len(curve) > 1
}
