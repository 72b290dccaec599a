package fill

import (
	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/eventtypes/event"
	"github.com/foldline/backtester/eventtypes/order"
)

// Fill is emitted by an executor and consumed by the portfolio.
// Qty is signed: positive for buys, negative for sells.
type Fill struct {
	event.Base
	OrderID     string
	Side        order.Side
	Qty         int64
	FillPrice   decimal.Decimal
	Commission  decimal.Decimal
	Slippage    decimal.Decimal
	LatencyAck  float64
	LatencyFill float64
}
