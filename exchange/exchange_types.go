package exchange

import (
	"errors"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/eventtypes/fill"
	"github.com/foldline/backtester/eventtypes/order"
	"github.com/foldline/backtester/exchange/slippage"
)

// ErrUnknownExecutor is returned when an executor type name is not recognised
var ErrUnknownExecutor = errors.New("unknown executor type")

// Categorical reject reasons surfaced when an executor returns no fill
const (
	RejectNoPrice           = "no_price"
	RejectZeroQty           = "zero_qty"
	RejectNoFutureTimestamp = "no_future_timestamp"
	RejectNoLiquidity       = "no_liquidity"
	RejectLimitNotCrossed   = "limit_not_crossed"
	RejectZeroQueueFill     = "zero_queue_fill"
	RejectLimitModeUnset    = "limit_mode_unset"
	RejectCancelUnsupported = "cancel_unsupported"
)

// Limit modes for queue-aware limit execution
const (
	LimitModeIOC = "IOC"
	LimitModePO  = "PO"
)

// Executor converts an order into zero or more fills under a microstructure
// assumption. A nil, error-free result is a rejection; the categorical
// reason is available from LastRejectReason.
type Executor interface {
	Execute(o *order.Order, current time.Time) ([]*fill.Fill, error)
	LastRejectReason() string
}

// Settings are the execution parameters shared by all executors
type Settings struct {
	CommissionPerShare decimal.Decimal
	Slippage           slippage.Model
	Meta               map[string]common.SymbolMeta
	LimitMode          string

	QueueCoefficient       float64
	QueuePassiveMultiplier float64
	QueueJitter            bool
	MinFillQty             int64
	VolatilityLookback     int
}

// Base holds the helpers shared by every executor: the t+1 fill timestamp
// policy, market price lookup, slippage and commission
type Base struct {
	Data data.Handler
	Settings
	rng              *rand.Rand
	lastRejectReason string
}

// Exchange is the thin broker coordinating orders to an executor and fills
// back to the portfolio, recording accept/reject diagnostics
type Exchange struct {
	Executor      Executor
	Accepted      int64
	Rejected      int64
	RejectReasons map[string]int64
}
