package orderbook

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldline/backtester/eventtypes/order"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func restLimit(t *testing.T, b *Book, side order.Side, qty int64, price float64, at time.Time) *order.Order {
	t.Helper()
	o, err := order.NewLimit(at, "AAA", side, qty, decimal.NewFromFloat(price))
	require.NoError(t, err)
	fills, err := b.Execute(o, at)
	require.NoError(t, err)
	require.Nil(t, fills)
	return o
}

func TestFIFOPartialFill(t *testing.T) {
	t.Parallel()
	b := New(nil)
	b.TPlus1 = false

	a := restLimit(t, b, order.Buy, 10, 100, day0)
	bOrder := restLimit(t, b, order.Buy, 10, 100, day0.Add(time.Minute))

	// a market sell of 8 takes from A only, leaving A at the queue head
	sell, err := order.New(day0.Add(2*time.Minute), "AAA", order.Sell, 8)
	require.NoError(t, err)
	fills, err := b.Execute(sell, day0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, int64(-8), fills[0].Qty)
	assert.True(t, fills[0].FillPrice.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int64(2), b.RestingQty(a.ID))
	assert.Equal(t, int64(10), b.RestingQty(bOrder.ID))

	// the next sell exhausts A before B sees any flow
	sell2, err := order.New(day0.Add(3*time.Minute), "AAA", order.Sell, 12)
	require.NoError(t, err)
	fills, err = b.Execute(sell2, day0.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, int64(-2), fills[0].Qty)
	assert.Equal(t, int64(-10), fills[1].Qty)
	assert.Equal(t, int64(0), b.RestingQty(a.ID))
	assert.Equal(t, int64(0), b.RestingQty(bOrder.ID))
	_, ok := b.BestBid()
	assert.False(t, ok)
}

func TestSeedAndMarketSweep(t *testing.T) {
	t.Parallel()
	b := New(nil)
	b.TPlus1 = false
	b.Seed(2, 100, decimal.NewFromFloat(0.5), decimal.NewFromInt(100), day0)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(decimal.NewFromFloat(99.5)))
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Equal(decimal.NewFromFloat(100.5)))

	// a buy of 150 sweeps the first ask level and half the second
	buy, err := order.New(day0.Add(time.Minute), "AAA", order.Buy, 150)
	require.NoError(t, err)
	fills, err := b.Execute(buy, day0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.True(t, fills[0].FillPrice.Equal(decimal.NewFromFloat(100.5)))
	assert.Equal(t, int64(100), fills[0].Qty)
	assert.True(t, fills[1].FillPrice.Equal(decimal.NewFromFloat(101)))
	assert.Equal(t, int64(50), fills[1].Qty)

	ask, ok = b.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Equal(decimal.NewFromInt(101)))
}

func TestLimitCrossesThenRests(t *testing.T) {
	t.Parallel()
	b := New(nil)
	b.TPlus1 = false
	restLimit(t, b, order.Sell, 30, 100, day0)

	o, err := order.NewLimit(day0.Add(time.Minute), "AAA", order.Buy, 50, decimal.NewFromInt(100))
	require.NoError(t, err)
	fills, err := b.Execute(o, day0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, int64(30), fills[0].Qty)

	// the residual 20 rests on the bid
	assert.Equal(t, int64(20), b.RestingQty(o.ID))
	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(decimal.NewFromInt(100)))
}

func TestLimitDoesNotCrossThroughPrice(t *testing.T) {
	t.Parallel()
	b := New(nil)
	b.TPlus1 = false
	restLimit(t, b, order.Sell, 10, 102, day0)

	o, err := order.NewLimit(day0.Add(time.Minute), "AAA", order.Buy, 10, decimal.NewFromInt(101))
	require.NoError(t, err)
	fills, err := b.Execute(o, day0.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, fills)
	assert.Equal(t, RejectNoLiquidity, b.LastRejectReason())
	assert.Equal(t, int64(10), b.RestingQty(o.ID))
}

func TestCancel(t *testing.T) {
	t.Parallel()
	b := New(nil)
	b.TPlus1 = false
	o := restLimit(t, b, order.Buy, 10, 100, day0)

	cancel := &order.Order{ID: o.ID, OrderType: order.Cancel}
	fills, err := b.Execute(cancel, day0.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, fills)
	assert.Equal(t, ReasonCancelled, b.LastRejectReason())
	assert.Equal(t, int64(0), b.RestingQty(o.ID))
	_, ok := b.BestBid()
	assert.False(t, ok)

	err = b.Cancel("missing")
	assert.ErrorIs(t, err, ErrUnknownOrderID)
}

func TestLatencyCarried(t *testing.T) {
	t.Parallel()
	b := New(NewLatencyModel(0.5, 1.5, 0, 0, nil))
	b.TPlus1 = false
	restLimit(t, b, order.Sell, 10, 100, day0)

	buy, err := order.New(day0.Add(time.Minute), "AAA", order.Buy, 10)
	require.NoError(t, err)
	fills, err := b.Execute(buy, day0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, 0.5, fills[0].LatencyAck)
	assert.Equal(t, 1.5, fills[0].LatencyFill)
}
