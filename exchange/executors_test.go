package exchange

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/eventtypes/order"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testFeed(t *testing.T, closes ...float64) *data.Feed {
	t.Helper()
	s := &data.Series{Symbol: "AAA"}
	for i := range closes {
		s.Times = append(s.Times, day0.AddDate(0, 0, i))
		s.Closes = append(s.Closes, decimal.NewFromFloat(closes[i]))
		s.Volumes = append(s.Volumes, decimal.NewFromInt(1000))
	}
	feed, err := data.NewFeed(data.FFill, s)
	require.NoError(t, err)
	require.NoError(t, feed.SetDateRange(day0, day0.AddDate(0, 0, len(closes))))
	return feed
}

func testBase(t *testing.T, s Settings, closes ...float64) *Base {
	t.Helper()
	return NewBase(testFeed(t, closes...), s, rand.New(rand.NewSource(1)))
}

func TestInstantFillsAtNextTimestamp(t *testing.T) {
	t.Parallel()
	x := &Instant{Base: testBase(t, Settings{
		CommissionPerShare: decimal.NewFromFloat(0.01),
	}, 100, 101)}

	o, err := order.New(day0, "AAA", order.Buy, 100)
	require.NoError(t, err)
	fills, err := x.Execute(o, day0)
	require.NoError(t, err)
	require.Len(t, fills, 1)

	f := fills[0]
	assert.Equal(t, day0.AddDate(0, 0, 1), f.GetTime())
	assert.Equal(t, int64(100), f.Qty)
	assert.True(t, f.FillPrice.Equal(decimal.NewFromInt(101)), "got %v", f.FillPrice)
	assert.True(t, f.Commission.Equal(decimal.NewFromInt(1)))
}

func TestInstantRejects(t *testing.T) {
	t.Parallel()
	x := &Instant{Base: testBase(t, Settings{}, 100, 101)}

	o, err := order.New(day0, "AAA", order.Buy, 100)
	require.NoError(t, err)

	// no timestamp after the final bar
	fills, err := x.Execute(o, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, fills)
	assert.Equal(t, RejectNoFutureTimestamp, x.LastRejectReason())

	o.OrderType = order.Cancel
	fills, err = x.Execute(o, day0)
	require.NoError(t, err)
	assert.Nil(t, fills)
	assert.Equal(t, RejectCancelUnsupported, x.LastRejectReason())

	lo, err := order.NewLimit(day0, "AAA", order.Buy, 100, decimal.NewFromInt(101))
	require.NoError(t, err)
	fills, err = x.Execute(lo, day0)
	require.NoError(t, err)
	assert.Nil(t, fills)
	assert.Equal(t, RejectLimitModeUnset, x.LastRejectReason())
}

func TestTWAPSplit(t *testing.T) {
	t.Parallel()
	x := &TWAP{Base: testBase(t, Settings{}, 99, 100, 102), Slices: 2}

	o, err := order.New(day0, "AAA", order.Buy, 4)
	require.NoError(t, err)
	fills, err := x.Execute(o, day0)
	require.NoError(t, err)
	require.Len(t, fills, 1)

	// (100*2 + 102*2) / 4 = 101 stamped at the last child timestamp
	f := fills[0]
	assert.Equal(t, int64(4), f.Qty)
	assert.True(t, f.FillPrice.Equal(decimal.NewFromInt(101)), "got %v", f.FillPrice)
	assert.Equal(t, day0.AddDate(0, 0, 2), f.GetTime())
}

func TestTWAPRemainderFrontLoaded(t *testing.T) {
	t.Parallel()
	x := &TWAP{Base: testBase(t, Settings{}, 100, 100, 100, 100), Slices: 3}
	o, err := order.New(day0, "AAA", order.Sell, 7)
	require.NoError(t, err)
	fills, err := x.Execute(o, day0)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, int64(-7), fills[0].Qty)
}

func TestVWAPWeightsByVolume(t *testing.T) {
	t.Parallel()
	s := &data.Series{
		Symbol:  "AAA",
		Times:   []time.Time{day0, day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 2)},
		Closes:  []decimal.Decimal{decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(104)},
		Volumes: []decimal.Decimal{decimal.NewFromInt(100), decimal.NewFromInt(300), decimal.NewFromInt(100)},
	}
	feed, err := data.NewFeed(data.FFill, s)
	require.NoError(t, err)
	require.NoError(t, feed.SetDateRange(day0, day0.AddDate(0, 0, 3)))
	x := &VWAP{Base: NewBase(feed, Settings{}, rand.New(rand.NewSource(1))), Slices: 2}

	o, err := order.New(day0, "AAA", order.Buy, 4)
	require.NoError(t, err)
	fills, err := x.Execute(o, day0)
	require.NoError(t, err)
	require.Len(t, fills, 1)

	// 3 shares at 100 on the heavy day, 1 at 104: avg 101
	assert.True(t, fills[0].FillPrice.Equal(decimal.NewFromInt(101)), "got %v", fills[0].FillPrice)
}

func TestImplementationShortfallCompletes(t *testing.T) {
	t.Parallel()
	x := &ImplementationShortfall{
		Base:    testBase(t, Settings{}, 100, 100, 100, 100),
		Slices:  3,
		Urgency: 0.5,
	}
	o, err := order.New(day0, "AAA", order.Buy, 8)
	require.NoError(t, err)
	fills, err := x.Execute(o, day0)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, int64(8), fills[0].Qty)
}

func TestQueueLimitIOC(t *testing.T) {
	t.Parallel()
	x := &Instant{Base: testBase(t, Settings{LimitMode: LimitModeIOC}, 100, 100, 100)}

	// buy limit below the market price does not cross
	lo, err := order.NewLimit(day0, "AAA", order.Buy, 100, decimal.NewFromInt(99))
	require.NoError(t, err)
	fills, err := x.Execute(lo, day0)
	require.NoError(t, err)
	assert.Nil(t, fills)
	assert.Equal(t, RejectLimitNotCrossed, x.LastRejectReason())

	// crossable limit fills at no worse than the limit
	lo, err = order.NewLimit(day0, "AAA", order.Buy, 100, decimal.NewFromInt(101))
	require.NoError(t, err)
	fills, err = x.Execute(lo, day0)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].FillPrice.LessThanOrEqual(decimal.NewFromInt(101)))
	assert.Positive(t, fills[0].Qty)
}

func TestQueueLimitPostOnly(t *testing.T) {
	t.Parallel()
	x := &Instant{Base: testBase(t, Settings{
		LimitMode:              LimitModePO,
		QueuePassiveMultiplier: 0.5,
	}, 100, 100, 100)}

	lo, err := order.NewLimit(day0, "AAA", order.Sell, 100, decimal.NewFromInt(100))
	require.NoError(t, err)
	fills, err := x.Execute(lo, day0)
	require.NoError(t, err)
	require.Len(t, fills, 1)

	// post-only trades at its own price with partial size
	f := fills[0]
	assert.True(t, f.FillPrice.Equal(decimal.NewFromInt(100)))
	assert.Negative(t, f.Qty)
	assert.GreaterOrEqual(t, int64(-50), f.Qty)
	assert.True(t, f.Slippage.IsZero())
}

func TestQueueLimitPostOnlyDefaultMultiplier(t *testing.T) {
	t.Parallel()
	x := &Instant{Base: testBase(t, Settings{LimitMode: LimitModePO}, 100, 100, 100)}

	// an unset passive multiplier defaults to 1 instead of zero-filling
	lo, err := order.NewLimit(day0, "AAA", order.Sell, 100, decimal.NewFromInt(100))
	require.NoError(t, err)
	fills, err := x.Execute(lo, day0)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, int64(-100), fills[0].Qty)
	assert.True(t, fills[0].FillPrice.Equal(decimal.NewFromInt(100)))
}

func TestExchangeCountsRejects(t *testing.T) {
	t.Parallel()
	x := &Instant{Base: testBase(t, Settings{}, 100, 101)}
	broker := New(x)

	o, err := order.New(day0, "AAA", order.Buy, 100)
	require.NoError(t, err)
	fills, err := broker.ExecuteOrder(o, day0)
	require.NoError(t, err)
	assert.Len(t, fills, 1)
	assert.Equal(t, int64(1), broker.Accepted)

	fills, err = broker.ExecuteOrder(o, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, fills)
	assert.Equal(t, int64(1), broker.Rejected)
	assert.Equal(t, int64(1), broker.RejectReasons[RejectNoFutureTimestamp])
}
