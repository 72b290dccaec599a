package common

import (
	"errors"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNilEvent is returned when a nil event is received by a handler
	ErrNilEvent = errors.New("nil event received")
	// ErrNilArguments is returned when a nil argument is received
	ErrNilArguments = errors.New("received nil argument(s)")
)

// Event is the minimum surface shared by every event flowing through the engine
type Event interface {
	GetTime() time.Time
	GetSymbol() string
	GetOffset() int64
	GetReason() string
}

// DataEvent describes a market data event that components can price against
type DataEvent interface {
	Event
	Price() decimal.Decimal
	Volume() decimal.Decimal
}

// SymbolMeta is a per-symbol metadata snapshot used by slippage, queue and
// borrow estimates. Zero values mean the field was absent and the consumer
// applies its documented fallback.
type SymbolMeta struct {
	Symbol             string
	ADV                decimal.Decimal
	SpreadBps          float64
	BorrowFeeAnnualBps float64
	VolatilityBps      float64
}

// SpawnRNG deterministically derives a child RNG from a parent so every
// component receives its own reproducible stream from one master seed
func SpawnRNG(parent *rand.Rand) *rand.Rand {
	return rand.New(rand.NewSource(parent.Int63()))
}

// CountTradingDays returns the number of weekdays strictly after from, up to
// and including to. Borrow accrual steps on this basis so a weekend gap
// accrues a single day
func CountTradingDays(from, to time.Time) int64 {
	if !to.After(from) {
		return 0
	}
	var days int64
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}
