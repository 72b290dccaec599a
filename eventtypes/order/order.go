package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/eventtypes/event"
)

// New creates a market order with a fresh ID
func New(t time.Time, symbol string, side Side, qty int64) (*Order, error) {
	if qty <= 0 {
		return nil, ErrInvalidQty
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return &Order{
		Base: event.Base{
			Time:   t,
			Symbol: symbol,
		},
		ID:        id.String(),
		Side:      side,
		OrderType: Market,
		Qty:       qty,
	}, nil
}

// NewLimit creates a limit order with a fresh ID
func NewLimit(t time.Time, symbol string, side Side, qty int64, price decimal.Decimal) (*Order, error) {
	o, err := New(t, symbol, side, qty)
	if err != nil {
		return nil, err
	}
	o.OrderType = Limit
	o.Price = decimal.NullDecimal{Decimal: price, Valid: true}
	return o, nil
}

// GetSide returns the order side
func (o *Order) GetSide() Side {
	return o.Side
}

// SignedQty returns the quantity signed by side, positive for buys
func (o *Order) SignedQty() int64 {
	if o.Side == Sell {
		return -o.Qty
	}
	return o.Qty
}

// LimitPrice returns the limit price and whether one was set
func (o *Order) LimitPrice() (decimal.Decimal, bool) {
	return o.Price.Decimal, o.Price.Valid
}
