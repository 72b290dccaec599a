package orderbook

import (
	"errors"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/eventtypes/order"
)

var (
	// ErrUnknownOrderID is returned when a cancel references an order that
	// is not resting in the book
	ErrUnknownOrderID = errors.New("unknown order id")
)

// Categorical reject reasons for the book executor
const (
	RejectNoLiquidity       = "no_liquidity"
	RejectZeroQty           = "zero_qty"
	RejectNoFutureTimestamp = "no_future_timestamp"
	ReasonCancelled         = "cancelled"
)

// LimitOrder is a resting queue entry at a price level
type LimitOrder struct {
	ID           string
	Side         order.Side
	Price        decimal.Decimal
	QtyRemaining int64
	Time         time.Time
}

// level is a FIFO queue of resting orders at one price
type level struct {
	price decimal.Decimal
	queue []*LimitOrder
}

// bookSide keeps levels sorted best-first: bids descending, asks ascending
type bookSide struct {
	bids   bool
	levels []*level
}

// LatencyModel draws ack and fill latencies with uniform jitter on a
// seeded stream
type LatencyModel struct {
	AckBase    float64
	FillBase   float64
	AckJitter  float64
	FillJitter float64
	rng        *rand.Rand
}

// Book is a two-sided limit order book with FIFO price levels. It satisfies
// the exchange Executor contract so it can be routed to by the broker.
type Book struct {
	bids bookSide
	asks bookSide

	orders  map[string]*LimitOrder
	latency *LatencyModel

	// TPlus1 stamps fills at the next future data timestamp; when false the
	// book preserves same-tick matching
	TPlus1             bool
	CommissionPerShare decimal.Decimal
	Data               data.Handler

	lastRejectReason string
}
