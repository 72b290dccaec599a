package data

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/eventtypes/bar"
)

var (
	// ErrData is the base kind for all data construction and streaming failures
	ErrData = errors.New("data error")
	// ErrNoRangeSet is returned when streaming is attempted before SetDateRange
	ErrNoRangeSet = errors.New("no date range set")
	// ErrEmptySlice is returned when the active date range contains no bars
	ErrEmptySlice = errors.New("date range contains no data")
	// ErrUnknownSymbol is returned when a lookup references an unloaded symbol
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrUnsortedSeries is returned when a series is not in ascending time order
	ErrUnsortedSeries = errors.New("series timestamps not ascending")
	// ErrMissingColumn is returned when a required csv column is absent
	ErrMissingColumn = errors.New("missing required column")
)

// LookupMode controls how price lookups and missing union bars are resolved
type LookupMode string

const (
	// Exact only matches bars at the precise timestamp
	Exact LookupMode = "exact"
	// FFill carries the last observed price forward
	FFill LookupMode = "ffill"
)

// Handler streams ordered market events across one or many symbols and
// answers price, volume and schedule lookups against the active date range
type Handler interface {
	Symbols() []string
	SetDateRange(start, end time.Time) error
	Active() error
	Next() (*bar.Bar, bool)
	NextBatch() ([]*bar.Bar, bool)
	LatestPrice(symbol string, at time.Time, mode LookupMode) (decimal.Decimal, bool)
	FutureTimestamps(after time.Time, n int) []time.Time
	RecentPrices(symbol string, end time.Time, k int) []decimal.Decimal
	RecentHistory(symbol string, end time.Time, k int) []PricePoint
	VolumeAt(symbol string, at time.Time) (decimal.Decimal, bool)
}

// PricePoint is a single timestamped close, used for warm-up history carry
type PricePoint struct {
	Time  time.Time
	Close decimal.Decimal
}

// Series holds one symbol's ordered bars
type Series struct {
	Symbol  string
	Times   []time.Time
	Closes  []decimal.Decimal
	Volumes []decimal.Decimal
}

// Feed merges per-symbol series into one globally ordered event stream.
// Within a single timestamp events appear in declared symbol order.
type Feed struct {
	symbols []string
	series  map[string]*Series
	mode    LookupMode

	rangeSet   bool
	start, end time.Time
	lo, hi     map[string]int

	cursors    map[string]int
	lastSeen   map[string]decimal.Decimal
	merge      *timeHeap
	unionTimes []time.Time
	offset     int64
	pending    []*bar.Bar
}
