package slippage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldline/backtester/common"
)

func TestNew(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]Model{
		"":               &VolumeSquared{},
		"volume_squared": &VolumeSquared{},
		"linear":         &Linear{},
		"sqrt":           &SquareRoot{},
		"linear_sqrt":    &LinearPlusSquareRoot{},
		"kyle":           &Kyle{},
	} {
		m, err := New(name, 0.1)
		require.NoError(t, err, name)
		assert.IsType(t, want, m, name)
	}

	_, err := New("psychic", 0.1)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestVolumeSquared(t *testing.T) {
	t.Parallel()
	m := &VolumeSquared{Impact: 0.1}
	meta := &common.SymbolMeta{ADV: decimal.NewFromInt(100000)}
	price := decimal.NewFromInt(100)

	// 100 shares at 100 is 10% of ADV: 0.1 * 0.01 * 100 = 0.1 per share
	got := m.PerShare(100, price, meta, nil)
	assert.InDelta(t, 0.1, got.InexactFloat64(), 1e-12)

	// sells carry negative impact
	got = m.PerShare(-100, price, meta, nil)
	assert.InDelta(t, -0.1, got.InexactFloat64(), 1e-12)

	// missing ADV falls back to full participation
	got = m.PerShare(100, price, nil, nil)
	assert.InDelta(t, 10, got.InexactFloat64(), 1e-12)
}

func TestLinear(t *testing.T) {
	t.Parallel()
	m := &Linear{Impact: 0.2}
	meta := &common.SymbolMeta{ADV: decimal.NewFromInt(100000)}

	// 10% participation: 0.2 * 0.1 * 100 = 2 per share
	got := m.PerShare(100, decimal.NewFromInt(100), meta, nil)
	assert.InDelta(t, 2, got.InexactFloat64(), 1e-12)
}

func TestSquareRoot(t *testing.T) {
	t.Parallel()
	m := &SquareRoot{Impact: 0.5}
	got := m.PerShare(100, decimal.NewFromInt(50), nil, nil)
	assert.InDelta(t, 5, got.InexactFloat64(), 1e-12)
	got = m.PerShare(-100, decimal.NewFromInt(50), nil, nil)
	assert.InDelta(t, -5, got.InexactFloat64(), 1e-12)
}

func TestKyle(t *testing.T) {
	t.Parallel()
	m := &Kyle{Lambda: 0.01}
	got := m.PerShare(-500, decimal.NewFromInt(50), nil, nil)
	assert.InDelta(t, -5, got.InexactFloat64(), 1e-12)
}

func TestLinearPlusSquareRoot(t *testing.T) {
	t.Parallel()
	m := &LinearPlusSquareRoot{
		Linear:     Linear{Impact: 0.2},
		SquareRoot: SquareRoot{Impact: 0.5},
	}
	meta := &common.SymbolMeta{ADV: decimal.NewFromInt(100000)}
	got := m.PerShare(100, decimal.NewFromInt(100), meta, nil)
	assert.InDelta(t, 7, got.InexactFloat64(), 1e-12)
}

func TestSpreadFloor(t *testing.T) {
	t.Parallel()
	price := decimal.NewFromInt(100)
	assert.True(t, SpreadFloor(price, nil).IsZero())

	meta := &common.SymbolMeta{SpreadBps: 10}
	// half of 10bps on 100 is 0.05
	got := SpreadFloor(price, meta)
	assert.InDelta(t, 0.05, got.InexactFloat64(), 1e-12)
}

func TestApplyFloor(t *testing.T) {
	t.Parallel()
	floor := decimal.NewFromFloat(0.05)

	// impact below the floor is raised to it with the trade's sign
	got := ApplyFloor(decimal.NewFromFloat(0.01), floor, -100)
	assert.InDelta(t, -0.05, got.InexactFloat64(), 1e-12)

	// impact above the floor passes through
	got = ApplyFloor(decimal.NewFromFloat(0.2), floor, 100)
	assert.InDelta(t, 0.2, got.InexactFloat64(), 1e-12)
}
