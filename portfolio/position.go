package portfolio

import (
	"github.com/shopspring/decimal"
)

// Position tracks one symbol's signed quantity with average cost
// attribution. AvgCost is undefined (zero) when the position is flat.
type Position struct {
	Symbol      string
	Qty         int64
	AvgCost     decimal.Decimal
	RealizedPNL decimal.Decimal
}

// ApplyFill mutates the position with a signed fill and returns the
// realized PnL delta. Increases blend the average cost; decreases close at
// the standing average cost and any residual flips into a fresh position at
// the fill price.
func (p *Position) ApplyFill(signedQty int64, price decimal.Decimal) decimal.Decimal {
	if signedQty == 0 {
		return decimal.Zero
	}
	if p.Qty == 0 || sameSign(p.Qty, signedQty) {
		oldAbs := decimal.NewFromInt(abs(p.Qty))
		addAbs := decimal.NewFromInt(abs(signedQty))
		p.AvgCost = p.AvgCost.Mul(oldAbs).Add(price.Mul(addAbs)).Div(oldAbs.Add(addAbs))
		p.Qty += signedQty
		return decimal.Zero
	}

	closed := abs(signedQty)
	if q := abs(p.Qty); closed > q {
		closed = q
	}
	var realized decimal.Decimal
	closedDec := decimal.NewFromInt(closed)
	if p.Qty > 0 {
		realized = price.Sub(p.AvgCost).Mul(closedDec)
	} else {
		realized = p.AvgCost.Sub(price).Mul(closedDec)
	}
	p.RealizedPNL = p.RealizedPNL.Add(realized)
	p.Qty += signedQty

	switch {
	case p.Qty == 0:
		p.AvgCost = decimal.Zero
	case sameSign(p.Qty, signedQty):
		// flipped through zero, the residual opens at the fill price
		p.AvgCost = price
	}
	return realized
}

func sameSign(a, b int64) bool {
	return (a > 0) == (b > 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
