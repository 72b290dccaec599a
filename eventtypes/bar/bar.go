package bar

import (
	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/eventtypes/event"
)

// Bar is a single market data event for one symbol at one timestamp.
// Synthetic bars produced by forward-filling carry a zero volume.
type Bar struct {
	event.Base
	ClosePrice decimal.Decimal
	Vol        decimal.Decimal
	Synthetic  bool
}

// Price returns the close price of the bar
func (b *Bar) Price() decimal.Decimal {
	return b.ClosePrice
}

// Volume returns the traded volume of the bar
func (b *Bar) Volume() decimal.Decimal {
	return b.Vol
}
