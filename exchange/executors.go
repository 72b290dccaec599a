package exchange

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/eventtypes/event"
	"github.com/foldline/backtester/eventtypes/fill"
	"github.com/foldline/backtester/eventtypes/order"
)

// Instant executes the full quantity in one fill at the first future
// timestamp. The slippage model is interchangeable, so this executor also
// covers the square root impact and Kyle lambda microstructure assumptions.
type Instant struct {
	*Base
}

// Execute implements Executor
func (x *Instant) Execute(o *order.Order, current time.Time) ([]*fill.Fill, error) {
	if o == nil {
		return nil, common.ErrNilEvent
	}
	if o.OrderType == order.Cancel {
		return x.reject(RejectCancelUnsupported)
	}
	if o.Qty <= 0 {
		return x.reject(RejectZeroQty)
	}
	if o.OrderType == order.Limit {
		if x.LimitMode == "" {
			return x.reject(RejectLimitModeUnset)
		}
		return x.executeQueueLimit(o, current)
	}
	ts, ok := x.fillTime(current)
	if !ok {
		return x.reject(RejectNoFutureTimestamp)
	}
	px, ok := x.marketPrice(o.GetSymbol(), ts)
	if !ok {
		return x.reject(RejectNoPrice)
	}
	signedQty := o.SignedQty()
	impact := x.impact(signedQty, px, o.GetSymbol(), current)
	f := newFill(o, ts, signedQty, px.Add(impact), x.commission(signedQty), impact)
	return []*fill.Fill{f}, nil
}

// TWAP splits the order evenly across the next Slices future timestamps and
// reports one aggregate fill at the last child timestamp
type TWAP struct {
	*Base
	Slices int
}

// Execute implements Executor
func (x *TWAP) Execute(o *order.Order, current time.Time) ([]*fill.Fill, error) {
	if o == nil {
		return nil, common.ErrNilEvent
	}
	if o.Qty <= 0 {
		return x.reject(RejectZeroQty)
	}
	future := x.Data.FutureTimestamps(current, x.Slices)
	if len(future) == 0 {
		return x.reject(RejectNoFutureTimestamp)
	}
	k := int64(len(future))
	alloc := make([]int64, k)
	base := o.Qty / k
	extra := o.Qty % k
	for i := range alloc {
		alloc[i] = base
		if int64(i) < extra {
			alloc[i]++
		}
	}
	return x.executeSchedule(o, alloc, future)
}

// VWAP weights child orders by the volume traded at each future timestamp,
// falling back to a uniform split when volumes are zero or missing
type VWAP struct {
	*Base
	Slices int
}

// Execute implements Executor
func (x *VWAP) Execute(o *order.Order, current time.Time) ([]*fill.Fill, error) {
	if o == nil {
		return nil, common.ErrNilEvent
	}
	if o.Qty <= 0 {
		return x.reject(RejectZeroQty)
	}
	future := x.Data.FutureTimestamps(current, x.Slices)
	if len(future) == 0 {
		return x.reject(RejectNoFutureTimestamp)
	}
	weights := make([]float64, len(future))
	var total float64
	for i := range future {
		if v, ok := x.Data.VolumeAt(o.GetSymbol(), future[i]); ok {
			weights[i] = v.InexactFloat64()
			total += weights[i]
		}
	}
	if total <= 0 {
		for i := range weights {
			weights[i] = 1
		}
	}
	return x.executeSchedule(o, largestRemainder(o.Qty, weights), future)
}

// ImplementationShortfall front loads child orders with geometric weights
// urgency^i so the order completes early when urgency is below one
type ImplementationShortfall struct {
	*Base
	Slices  int
	Urgency float64
}

// Execute implements Executor
func (x *ImplementationShortfall) Execute(o *order.Order, current time.Time) ([]*fill.Fill, error) {
	if o == nil {
		return nil, common.ErrNilEvent
	}
	if o.Qty <= 0 {
		return x.reject(RejectZeroQty)
	}
	future := x.Data.FutureTimestamps(current, x.Slices)
	if len(future) == 0 {
		return x.reject(RejectNoFutureTimestamp)
	}
	urgency := x.Urgency
	if urgency <= 0 || urgency > 1 {
		urgency = 1
	}
	weights := make([]float64, len(future))
	w := 1.0
	for i := range weights {
		weights[i] = w
		w *= urgency
	}
	return x.executeSchedule(o, largestRemainder(o.Qty, weights), future)
}

// executeSchedule attempts a child fill per scheduled timestamp and
// aggregates the successful children into one average priced fill stamped
// at the last child timestamp
func (b *Base) executeSchedule(o *order.Order, alloc []int64, future []time.Time) ([]*fill.Fill, error) {
	var (
		filled    int64
		notional  decimal.Decimal
		slipTotal decimal.Decimal
		lastTS    time.Time
	)
	sign := int64(1)
	if o.Side == order.Sell {
		sign = -1
	}
	for i := range alloc {
		if alloc[i] == 0 {
			continue
		}
		px, ok := b.marketPrice(o.GetSymbol(), future[i])
		if !ok {
			continue
		}
		child := sign * alloc[i]
		impact := b.impact(child, px, o.GetSymbol(), future[i])
		childPrice := px.Add(impact)
		filled += alloc[i]
		notional = notional.Add(childPrice.Mul(decimal.NewFromInt(alloc[i])))
		slipTotal = slipTotal.Add(impact.Mul(decimal.NewFromInt(alloc[i])))
		lastTS = future[i]
	}
	if filled == 0 {
		return b.reject(RejectNoLiquidity)
	}
	avgPrice := notional.Div(decimal.NewFromInt(filled))
	avgSlip := slipTotal.Div(decimal.NewFromInt(filled))
	f := newFill(o, lastTS, sign*filled, avgPrice, b.commission(filled), avgSlip)
	return []*fill.Fill{f}, nil
}

// largestRemainder allocates qty integer shares proportionally to weights,
// assigning leftovers by descending fractional part with stable index order
func largestRemainder(qty int64, weights []float64) []int64 {
	var total float64
	for i := range weights {
		if weights[i] > 0 {
			total += weights[i]
		}
	}
	alloc := make([]int64, len(weights))
	if total <= 0 {
		return alloc
	}
	type frac struct {
		idx int
		rem float64
	}
	var assigned int64
	fracs := make([]frac, 0, len(weights))
	for i := range weights {
		if weights[i] <= 0 {
			fracs = append(fracs, frac{idx: i})
			continue
		}
		raw := float64(qty) * weights[i] / total
		alloc[i] = int64(math.Floor(raw))
		assigned += alloc[i]
		fracs = append(fracs, frac{idx: i, rem: raw - math.Floor(raw)})
	}
	sort.SliceStable(fracs, func(i, j int) bool { return fracs[i].rem > fracs[j].rem })
	for i := 0; assigned < qty && i < len(fracs); i++ {
		alloc[fracs[i].idx]++
		assigned++
	}
	return alloc
}

func newFill(o *order.Order, ts time.Time, signedQty int64, price, commission, impact decimal.Decimal) *fill.Fill {
	return &fill.Fill{
		Base: event.Base{
			Time:   ts,
			Symbol: o.GetSymbol(),
			Offset: o.GetOffset(),
			Reason: o.Reason,
		},
		OrderID:    o.ID,
		Side:       o.Side,
		Qty:        signedQty,
		FillPrice:  price,
		Commission: commission,
		Slippage:   impact,
	}
}
