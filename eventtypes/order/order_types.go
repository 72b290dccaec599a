package order

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/eventtypes/event"
)

// ErrInvalidQty is returned when an order is constructed with a
// non-positive quantity; direction is carried by Side, never by sign
var ErrInvalidQty = errors.New("order quantity must be positive")

// Side is the direction of an order
type Side string

const (
	// Buy increases the position
	Buy Side = "BUY"
	// Sell decreases the position
	Sell Side = "SELL"
)

// Type is the order type routed to an executor
type Type string

const (
	// Market executes at the prevailing market price
	Market Type = "MARKET"
	// Limit executes at or better than the stated price
	Limit Type = "LIMIT"
	// Cancel removes a resting order from the book by ID
	Cancel Type = "CANCEL"
)

// Order is emitted by the portfolio and consumed by the broker/executor
type Order struct {
	event.Base
	ID        string
	Side      Side
	OrderType Type
	Qty       int64
	Price     decimal.NullDecimal
}
