package strategies

import (
	"errors"

	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/eventtypes/bar"
	"github.com/foldline/backtester/eventtypes/signal"
)

// ErrStrategyNotFound is returned when a strategy name is not registered
var ErrStrategyNotFound = errors.New("strategy not found")

// Handler defines what is expected of all strategies. OnMarket is always
// supported; strategies that need to see every symbol at one timestamp
// opt into simultaneous processing and receive whole batches instead.
type Handler interface {
	Name() string
	Description() string
	OnMarket(b *bar.Bar) ([]*signal.Signal, error)
	OnMarketBatch(bars []*bar.Bar) ([]*signal.Signal, error)
	UsesSimultaneousProcessing() bool
	SetCustomSettings(map[string]any) error
	SetDefaults()
	SetWarmup(history map[string][]data.PricePoint)
}
