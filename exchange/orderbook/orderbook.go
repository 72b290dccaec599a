package orderbook

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/eventtypes/event"
	"github.com/foldline/backtester/eventtypes/fill"
	"github.com/foldline/backtester/eventtypes/order"
)

// NewLatencyModel creates a latency model on its own seeded stream
func NewLatencyModel(ackBase, fillBase, ackJitter, fillJitter float64, rng *rand.Rand) *LatencyModel {
	return &LatencyModel{
		AckBase:    ackBase,
		FillBase:   fillBase,
		AckJitter:  ackJitter,
		FillJitter: fillJitter,
		rng:        rng,
	}
}

// Draw returns ack and fill latencies in seconds
func (l *LatencyModel) Draw() (ack, fillLatency float64) {
	if l == nil {
		return 0, 0
	}
	ack, fillLatency = l.AckBase, l.FillBase
	if l.rng != nil {
		ack += l.AckJitter * l.rng.Float64()
		fillLatency += l.FillJitter * l.rng.Float64()
	}
	return ack, fillLatency
}

// New creates an empty book
func New(latency *LatencyModel) *Book {
	return &Book{
		bids:    bookSide{bids: true},
		asks:    bookSide{},
		orders:  make(map[string]*LimitOrder),
		latency: latency,
		TPlus1:  true,
	}
}

// Seed populates both sides of the book with synthetic resting liquidity:
// levels price steps away from mid on each side, each holding one order of
// levelSize shares
func (b *Book) Seed(levels int, levelSize int64, tick, mid decimal.Decimal, at time.Time) {
	for i := 1; i <= levels; i++ {
		step := tick.Mul(decimal.NewFromInt(int64(i)))
		b.rest(&LimitOrder{
			ID:           fmt.Sprintf("seed-bid-%d", i),
			Side:         order.Buy,
			Price:        mid.Sub(step),
			QtyRemaining: levelSize,
			Time:         at,
		})
		b.rest(&LimitOrder{
			ID:           fmt.Sprintf("seed-ask-%d", i),
			Side:         order.Sell,
			Price:        mid.Add(step),
			QtyRemaining: levelSize,
			Time:         at,
		})
	}
}

// LastRejectReason returns the categorical reason for the most recent
// rejection
func (b *Book) LastRejectReason() string {
	return b.lastRejectReason
}

// Execute submits an order to the book. Matching walks the opposite side
// best price first, consuming FIFO heads, and emits one fill per consumed
// resting order. Residual limit quantity rests in the book.
func (b *Book) Execute(o *order.Order, current time.Time) ([]*fill.Fill, error) {
	if o == nil {
		return nil, common.ErrNilEvent
	}
	if o.OrderType == order.Cancel {
		if err := b.Cancel(o.ID); err != nil {
			return nil, err
		}
		b.lastRejectReason = ReasonCancelled
		return nil, nil
	}
	if o.Qty <= 0 {
		b.lastRejectReason = RejectZeroQty
		return nil, nil
	}

	fillTime := current
	if b.TPlus1 {
		if b.Data == nil {
			b.lastRejectReason = RejectNoFutureTimestamp
			return nil, nil
		}
		future := b.Data.FutureTimestamps(current, 1)
		if len(future) == 0 {
			b.lastRejectReason = RejectNoFutureTimestamp
			return nil, nil
		}
		fillTime = future[0]
	}
	ack, fillLatency := b.latency.Draw()

	limit, hasLimit := o.LimitPrice()
	opposite := &b.asks
	if o.Side == order.Sell {
		opposite = &b.bids
	}

	remaining := o.Qty
	var fills []*fill.Fill
	for remaining > 0 && len(opposite.levels) > 0 {
		best := opposite.levels[0]
		if hasLimit && o.OrderType == order.Limit && !crossable(o.Side, limit, best.price) {
			break
		}
		// consume the FIFO queue head by head so a partially filled
		// resting order keeps its priority
		for remaining > 0 && len(best.queue) > 0 {
			head := best.queue[0]
			take := head.QtyRemaining
			if take > remaining {
				take = remaining
			}
			head.QtyRemaining -= take
			remaining -= take
			if head.QtyRemaining == 0 {
				best.queue = best.queue[1:]
				delete(b.orders, head.ID)
			}
			signedQty := take
			if o.Side == order.Sell {
				signedQty = -take
			}
			fills = append(fills, &fill.Fill{
				Base: event.Base{
					Time:   fillTime,
					Symbol: o.GetSymbol(),
					Offset: o.GetOffset(),
				},
				OrderID:     o.ID,
				Side:        o.Side,
				Qty:         signedQty,
				FillPrice:   best.price,
				Commission:  b.CommissionPerShare.Mul(decimal.NewFromInt(take)),
				LatencyAck:  ack,
				LatencyFill: fillLatency,
			})
		}
		if len(best.queue) == 0 {
			opposite.removeLevel(best.price)
		}
	}

	if remaining > 0 && o.OrderType == order.Limit && hasLimit {
		b.rest(&LimitOrder{
			ID:           o.ID,
			Side:         o.Side,
			Price:        limit,
			QtyRemaining: remaining,
			Time:         o.GetTime(),
		})
	}
	if len(fills) == 0 {
		b.lastRejectReason = RejectNoLiquidity
		return nil, nil
	}
	return fills, nil
}

// Cancel removes a resting order from its level, cleaning up the level when
// it empties
func (b *Book) Cancel(id string) error {
	lo, ok := b.orders[id]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownOrderID, id)
	}
	side := &b.asks
	if lo.Side == order.Buy {
		side = &b.bids
	}
	side.remove(lo)
	delete(b.orders, id)
	return nil
}

// RestingQty returns the remaining quantity of a resting order, zero when
// the order is not in the book
func (b *Book) RestingQty(id string) int64 {
	if lo, ok := b.orders[id]; ok {
		return lo.QtyRemaining
	}
	return 0
}

// BestBid returns the highest resting bid price
func (b *Book) BestBid() (decimal.Decimal, bool) {
	if len(b.bids.levels) == 0 {
		return decimal.Zero, false
	}
	return b.bids.levels[0].price, true
}

// BestAsk returns the lowest resting ask price
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	if len(b.asks.levels) == 0 {
		return decimal.Zero, false
	}
	return b.asks.levels[0].price, true
}

func (b *Book) rest(lo *LimitOrder) {
	side := &b.asks
	if lo.Side == order.Buy {
		side = &b.bids
	}
	side.add(lo)
	b.orders[lo.ID] = lo
}

func crossable(side order.Side, limit, levelPrice decimal.Decimal) bool {
	if side == order.Buy {
		return levelPrice.LessThanOrEqual(limit)
	}
	return levelPrice.GreaterThanOrEqual(limit)
}

func (s *bookSide) add(lo *LimitOrder) {
	i := s.search(lo.Price)
	if i < len(s.levels) && s.levels[i].price.Equal(lo.Price) {
		s.levels[i].queue = append(s.levels[i].queue, lo)
		return
	}
	s.levels = append(s.levels, nil)
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = &level{price: lo.Price, queue: []*LimitOrder{lo}}
}

func (s *bookSide) remove(lo *LimitOrder) {
	i := s.search(lo.Price)
	if i >= len(s.levels) || !s.levels[i].price.Equal(lo.Price) {
		return
	}
	lv := s.levels[i]
	for j := range lv.queue {
		if lv.queue[j].ID == lo.ID {
			lv.queue = append(lv.queue[:j], lv.queue[j+1:]...)
			break
		}
	}
	if len(lv.queue) == 0 {
		s.removeLevel(lo.Price)
	}
}

func (s *bookSide) removeLevel(price decimal.Decimal) {
	i := s.search(price)
	if i < len(s.levels) && s.levels[i].price.Equal(price) {
		s.levels = append(s.levels[:i], s.levels[i+1:]...)
	}
}

// search returns the insertion index keeping levels best-first
func (s *bookSide) search(price decimal.Decimal) int {
	return sort.Search(len(s.levels), func(i int) bool {
		if s.bids {
			return s.levels[i].price.LessThanOrEqual(price)
		}
		return s.levels[i].price.GreaterThanOrEqual(price)
	})
}
