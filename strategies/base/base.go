package base

import (
	"errors"
	"fmt"

	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/eventtypes/bar"
	"github.com/foldline/backtester/eventtypes/signal"
)

// ErrInvalidCustomSettings is returned when a strategy parameter cannot be
// parsed from its configured value
var ErrInvalidCustomSettings = errors.New("invalid custom settings")

// Strategy is embedded by strategy implementations and carries the shared
// warm-up plumbing
type Strategy struct {
	warmup map[string][]data.PricePoint
}

// SetWarmup hands the strategy trailing price history so it can emit
// signals at the start of a new window
func (s *Strategy) SetWarmup(history map[string][]data.PricePoint) {
	s.warmup = history
}

// Warmup returns the carried history, nil when none was set
func (s *Strategy) Warmup() map[string][]data.PricePoint {
	return s.warmup
}

// UsesSimultaneousProcessing is overridden by cross-sectional strategies
func (s *Strategy) UsesSimultaneousProcessing() bool {
	return false
}

// FanOut forwards a batch to OnMarket event by event, the default batch
// behaviour for strategies that do not make cross-sectional decisions
func FanOut(h interface {
	OnMarket(*bar.Bar) ([]*signal.Signal, error)
}, bars []*bar.Bar) ([]*signal.Signal, error) {
	var out []*signal.Signal
	for i := range bars {
		sigs, err := h.OnMarket(bars[i])
		if err != nil {
			return nil, err
		}
		out = append(out, sigs...)
	}
	return out, nil
}

// FetchFloat reads a float64 parameter from custom settings
func FetchFloat(settings map[string]any, key string) (float64, bool, error) {
	v, ok := settings[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	}
	return 0, false, fmt.Errorf("%w: %v value %v is not numeric", ErrInvalidCustomSettings, key, v)
}

// FetchInt reads an integer parameter from custom settings
func FetchInt(settings map[string]any, key string) (int, bool, error) {
	f, ok, err := FetchFloat(settings, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	return int(f), true, nil
}
