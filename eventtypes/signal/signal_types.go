package signal

import (
	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/eventtypes/event"
)

// Direction is the intent a strategy expresses for a symbol
type Direction string

const (
	// Long requests a long position in the symbol
	Long Direction = "LONG"
	// Short requests a short position in the symbol
	Short Direction = "SHORT"
	// Exit requests the position be flattened
	Exit Direction = "EXIT"
)

// Signal is emitted by a strategy and consumed by the portfolio
type Signal struct {
	event.Base
	Direction Direction
	Meta      Meta
}

// Meta carries optional sizing and diagnostic payload alongside a signal.
// Qty of zero and an invalid Weight mean the field was not set.
type Meta struct {
	Qty          int64
	Weight       decimal.NullDecimal
	Sleeve       string
	Sector       string
	SectorZ      float64
	Momentum     float64
	ADV          decimal.Decimal
	TurnoverHeat float64
	PeriodEnd    string
}
