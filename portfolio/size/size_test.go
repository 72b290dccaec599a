package size

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldline/backtester/eventtypes/signal"
)

func TestCalculateLadder(t *testing.T) {
	t.Parallel()
	m := &Manager{DefaultQty: 100}
	equity := decimal.NewFromInt(100000)
	price := decimal.NewFromInt(50)

	// explicit qty wins
	qty, err := m.Calculate(&signal.Signal{Meta: signal.Meta{Qty: 7}}, price, equity, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), qty)

	// weight converts to shares, floored
	qty, err = m.Calculate(&signal.Signal{
		Meta: signal.Meta{Weight: decimal.NullDecimal{Decimal: decimal.NewFromFloat(0.0153), Valid: true}},
	}, price, equity, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(30), qty)

	// a weight too small for one share floors to zero
	qty, err = m.Calculate(&signal.Signal{
		Meta: signal.Meta{Weight: decimal.NullDecimal{Decimal: decimal.NewFromFloat(0.0001), Valid: true}},
	}, price, equity, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), qty)

	// default lot when nothing else applies
	qty, err = m.Calculate(&signal.Signal{}, price, equity, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), qty)
}

func TestCalculateKelly(t *testing.T) {
	t.Parallel()
	m := &Manager{DefaultQty: 100, KellyFraction: 0.05}
	qty, err := m.Calculate(&signal.Signal{}, decimal.NewFromInt(50), decimal.NewFromInt(100000), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), qty)
}

func TestCalculateNoPrice(t *testing.T) {
	t.Parallel()
	m := &Manager{DefaultQty: 100}
	_, err := m.Calculate(&signal.Signal{}, decimal.Zero, decimal.NewFromInt(1000), nil)
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestVolScaled(t *testing.T) {
	t.Parallel()
	p := &VolScaled{TargetDollarVol: 100, Lookback: 3, MinQty: 1}
	recent := []decimal.Decimal{
		decimal.NewFromInt(100),
		decimal.NewFromInt(101),
		decimal.NewFromInt(100),
		decimal.NewFromInt(101),
	}
	qty := p.Scale(100, decimal.NewFromInt(100), recent)
	assert.Greater(t, qty, int64(0))
	assert.Less(t, qty, int64(100))

	// no history falls back to the base lot
	assert.Equal(t, int64(100), p.Scale(100, decimal.NewFromInt(100), nil))
}

func TestVolScaledHonorsLookback(t *testing.T) {
	t.Parallel()
	p := &VolScaled{TargetDollarVol: 100, Lookback: 3, MinQty: 1}

	// a long window that whipsaws early but is flat over the trailing
	// lookback has zero estimated volatility, so the base lot passes through
	recent := make([]decimal.Decimal, 0, 64)
	for i := 0; i < 60; i++ {
		px := int64(100)
		if i%2 == 0 {
			px = 150
		}
		recent = append(recent, decimal.NewFromInt(px))
	}
	for i := 0; i < 4; i++ {
		recent = append(recent, decimal.NewFromInt(100))
	}
	assert.Equal(t, int64(100), p.Scale(100, decimal.NewFromInt(100), recent))

	// the same window with volatility inside the lookback scales down
	recent[len(recent)-2] = decimal.NewFromInt(103)
	scaled := p.Scale(100, decimal.NewFromInt(100), recent)
	assert.Greater(t, scaled, int64(0))
	assert.Less(t, scaled, int64(100))
}
