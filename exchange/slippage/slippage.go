package slippage

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/common"
)

// ErrUnknownModel is returned when a slippage model name is not recognised
var ErrUnknownModel = errors.New("unknown slippage model")

// Model estimates a signed per-share impact for an order. The returned
// impact carries the same sign as the signed quantity.
type Model interface {
	PerShare(signedQty int64, price decimal.Decimal, meta *common.SymbolMeta, recent []decimal.Decimal) decimal.Decimal
}

// New returns a slippage model by name
func New(name string, impact float64) (Model, error) {
	switch name {
	case "volume_squared", "":
		return &VolumeSquared{Impact: impact}, nil
	case "linear":
		return &Linear{Impact: impact}, nil
	case "sqrt":
		return &SquareRoot{Impact: impact}, nil
	case "linear_sqrt":
		return &LinearPlusSquareRoot{Linear: Linear{Impact: impact}, SquareRoot: SquareRoot{Impact: impact}}, nil
	case "kyle":
		return &Kyle{Lambda: impact}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownModel, name)
}

// VolumeSquared scales impact with the square of participation against ADV
type VolumeSquared struct {
	Impact float64
}

// PerShare implements Model
func (m *VolumeSquared) PerShare(signedQty int64, price decimal.Decimal, meta *common.SymbolMeta, _ []decimal.Decimal) decimal.Decimal {
	part := participation(signedQty, price, meta)
	return signed(signedQty, m.Impact*part*part*price.InexactFloat64())
}

// Linear scales impact linearly with participation against ADV
type Linear struct {
	Impact float64
}

// PerShare implements Model
func (m *Linear) PerShare(signedQty int64, price decimal.Decimal, meta *common.SymbolMeta, _ []decimal.Decimal) decimal.Decimal {
	return signed(signedQty, m.Impact*participation(signedQty, price, meta)*price.InexactFloat64())
}

// SquareRoot charges k*sqrt(|qty|) per share
type SquareRoot struct {
	Impact float64
}

// PerShare implements Model
func (m *SquareRoot) PerShare(signedQty int64, _ decimal.Decimal, _ *common.SymbolMeta, _ []decimal.Decimal) decimal.Decimal {
	return signed(signedQty, m.Impact*math.Sqrt(math.Abs(float64(signedQty))))
}

// LinearPlusSquareRoot sums the linear and square root terms
type LinearPlusSquareRoot struct {
	Linear     Linear
	SquareRoot SquareRoot
}

// PerShare implements Model
func (m *LinearPlusSquareRoot) PerShare(signedQty int64, price decimal.Decimal, meta *common.SymbolMeta, recent []decimal.Decimal) decimal.Decimal {
	return m.Linear.PerShare(signedQty, price, meta, recent).
		Add(m.SquareRoot.PerShare(signedQty, price, meta, recent))
}

// Kyle charges lambda*qty per share, signed
type Kyle struct {
	Lambda float64
}

// PerShare implements Model
func (m *Kyle) PerShare(signedQty int64, _ decimal.Decimal, _ *common.SymbolMeta, _ []decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(m.Lambda * float64(signedQty))
}

// SpreadFloor returns the minimum half-spread impact for a symbol,
// 0.5 * spread_bps / 10_000 * price, zero when metadata is absent
func SpreadFloor(price decimal.Decimal, meta *common.SymbolMeta) decimal.Decimal {
	if meta == nil || meta.SpreadBps <= 0 {
		return decimal.Zero
	}
	return price.Mul(decimal.NewFromFloat(0.5 * meta.SpreadBps / 10000))
}

// ApplyFloor raises the magnitude of impact to at least floor, keeping the
// sign of the signed quantity
func ApplyFloor(impact, floor decimal.Decimal, signedQty int64) decimal.Decimal {
	if impact.Abs().GreaterThanOrEqual(floor) {
		return impact
	}
	return signDecimal(signedQty, floor)
}

func participation(signedQty int64, price decimal.Decimal, meta *common.SymbolMeta) float64 {
	notional := math.Abs(float64(signedQty)) * price.InexactFloat64()
	if meta == nil || !meta.ADV.IsPositive() {
		// fall back to full participation of a nominal day
		return 1
	}
	return notional / meta.ADV.InexactFloat64()
}

func signed(signedQty int64, magnitude float64) decimal.Decimal {
	if signedQty < 0 {
		return decimal.NewFromFloat(-magnitude)
	}
	return decimal.NewFromFloat(magnitude)
}

func signDecimal(signedQty int64, magnitude decimal.Decimal) decimal.Decimal {
	if signedQty < 0 {
		return magnitude.Neg()
	}
	return magnitude
}
