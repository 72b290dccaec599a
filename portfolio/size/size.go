package size

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/eventtypes/signal"
)

// ErrNoPrice is returned when sizing is requested without a usable price
var ErrNoPrice = errors.New("cannot size order without a price")

// Policy scales the default quantity from market conditions
type Policy interface {
	Scale(baseQty int64, price decimal.Decimal, recent []decimal.Decimal) int64
}

// Manager resolves a signal into an order quantity. The ladder is: explicit
// meta qty, target weight, kelly fraction, capital policy, default lot.
type Manager struct {
	DefaultQty    int64
	KellyFraction float64
	Policy        Policy
}

// Calculate returns the unsigned order quantity for a long or short signal.
// A zero result means the trade is dropped.
func (m *Manager) Calculate(sig *signal.Signal, price, equity decimal.Decimal, recent []decimal.Decimal) (int64, error) {
	if sig == nil {
		return 0, errors.New("nil signal")
	}
	if sig.Meta.Qty > 0 {
		return sig.Meta.Qty, nil
	}
	if !price.IsPositive() {
		return 0, ErrNoPrice
	}
	if sig.Meta.Weight.Valid && equity.IsPositive() {
		target := sig.Meta.Weight.Decimal.Abs().Mul(equity).Div(price)
		return target.IntPart(), nil
	}
	if m.KellyFraction > 0 && equity.IsPositive() {
		target := decimal.NewFromFloat(m.KellyFraction).Mul(equity).Div(price)
		return target.IntPart(), nil
	}
	if m.Policy != nil {
		return m.Policy.Scale(m.DefaultQty, price, recent), nil
	}
	return m.DefaultQty, nil
}

// VolScaled scales the default quantity so the position targets a constant
// dollar volatility estimated from trailing returns
type VolScaled struct {
	TargetDollarVol float64
	Lookback        int
	MinQty          int64
}

// Scale implements Policy. Volatility is estimated over the trailing
// Lookback returns only; older prices in the supplied window are ignored.
func (p *VolScaled) Scale(baseQty int64, price decimal.Decimal, recent []decimal.Decimal) int64 {
	if p.Lookback > 0 && len(recent) > p.Lookback+1 {
		recent = recent[len(recent)-p.Lookback-1:]
	}
	sigma := sampleStd(recent)
	if sigma <= 0 || baseQty <= 0 || !price.IsPositive() {
		return baseQty
	}
	scale := p.TargetDollarVol / (price.InexactFloat64() * float64(baseQty) * sigma)
	qty := int64(math.Floor(float64(baseQty) * scale))
	if qty < p.MinQty {
		qty = p.MinQty
	}
	return qty
}

// sampleStd is the sample standard deviation of simple returns over the
// trailing price window
func sampleStd(prices []decimal.Decimal) float64 {
	if len(prices) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1].InexactFloat64()
		if prev == 0 {
			continue
		}
		returns = append(returns, prices[i].InexactFloat64()/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss / float64(len(returns)-1))
}
