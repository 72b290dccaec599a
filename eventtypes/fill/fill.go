package fill

import (
	"github.com/shopspring/decimal"
)

// Notional returns |price * qty|
func (f *Fill) Notional() decimal.Decimal {
	return f.FillPrice.Mul(decimal.NewFromInt(f.Qty)).Abs()
}

// CashDelta returns the change in cash the fill causes,
// -price*qty - commission
func (f *Fill) CashDelta() decimal.Decimal {
	return f.FillPrice.Mul(decimal.NewFromInt(f.Qty)).Neg().Sub(f.Commission)
}

// IsNil says if the event is nil
func (f *Fill) IsNil() bool {
	return f == nil
}
