package rsi

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/gct-ta/indicators"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/eventtypes/bar"
	"github.com/foldline/backtester/eventtypes/event"
	"github.com/foldline/backtester/eventtypes/signal"
	"github.com/foldline/backtester/strategies/base"
)

const (
	// Name is the strategy name
	Name         = "rsi"
	rsiPeriodKey = "rsi-period"
	rsiLowKey    = "rsi-low"
	rsiHighKey   = "rsi-high"
	description  = `The relative strength index is a technical indicator used in the analysis of financial markets. It charts the current and historical strength or weakness of an instrument based on the closing prices of a recent trading period. This strategy buys when RSI crosses below the low threshold and sells short when it crosses above the high threshold, exiting any opposing position first`
)

// Strategy is a per symbol mean reversion implementation of the Handler
// interface
type Strategy struct {
	base.Strategy
	rsiPeriod decimal.Decimal
	rsiLow    decimal.Decimal
	rsiHigh   decimal.Decimal

	closes map[string][]decimal.Decimal
	side   map[string]int
	warmed bool
}

// New creates the strategy with defaults applied
func New() *Strategy {
	s := &Strategy{}
	s.SetDefaults()
	return s
}

// Name returns the name of the strategy
func (s *Strategy) Name() string {
	return Name
}

// Description provides a nice overview of the strategy
// be it definition of terms or to highlight its purpose
func (s *Strategy) Description() string {
	return description
}

// OnMarket handles a data event and returns what action the strategy
// believes should occur. For rsi this means entering long when rsi is at or
// below the low threshold, and entering short when it is at or above the
// high threshold. Flips exit the existing position first.
func (s *Strategy) OnMarket(b *bar.Bar) ([]*signal.Signal, error) {
	if b == nil {
		return nil, common.ErrNilEvent
	}
	s.absorbWarmup()
	symbol := b.GetSymbol()
	s.closes[symbol] = append(s.closes[symbol], b.Price())

	period := int(s.rsiPeriod.IntPart())
	series := s.closes[symbol]
	if len(series) <= period {
		return nil, nil
	}

	closes := make([]float64, len(series))
	for i := range series {
		closes[i] = series[i].InexactFloat64()
	}
	rsi := indicators.RSI(closes, period)
	latestRSIValue := decimal.NewFromFloat(rsi[len(rsi)-1])

	var target int
	switch {
	case latestRSIValue.GreaterThanOrEqual(s.rsiHigh):
		target = -1
	case latestRSIValue.LessThanOrEqual(s.rsiLow):
		target = 1
	default:
		return nil, nil
	}
	current := s.side[symbol]
	if current == target {
		return nil, nil
	}

	var out []*signal.Signal
	if current != 0 {
		exit := s.newSignal(b, signal.Exit)
		exit.AppendReasonf("RSI at %v, exiting before flip", latestRSIValue)
		out = append(out, exit)
	}
	dir := signal.Long
	if target < 0 {
		dir = signal.Short
	}
	entry := s.newSignal(b, dir)
	entry.AppendReasonf("RSI at %v", latestRSIValue)
	out = append(out, entry)
	s.side[symbol] = target
	return out, nil
}

// OnMarketBatch fans the batch out event by event, this strategy considers
// each symbol on its own
func (s *Strategy) OnMarketBatch(bars []*bar.Bar) ([]*signal.Signal, error) {
	return base.FanOut(s, bars)
}

func (s *Strategy) newSignal(b *bar.Bar, dir signal.Direction) *signal.Signal {
	return &signal.Signal{
		Base: event.Base{
			Time:   b.GetTime(),
			Symbol: b.GetSymbol(),
			Offset: b.GetOffset(),
		},
		Direction: dir,
	}
}

func (s *Strategy) absorbWarmup() {
	if s.warmed {
		return
	}
	s.warmed = true
	for sym, history := range s.Warmup() {
		carried := make([]decimal.Decimal, 0, len(history))
		for i := range history {
			carried = append(carried, history[i].Close)
		}
		s.closes[sym] = append(carried, s.closes[sym]...)
	}
}

// SetCustomSettings allows a user to modify the RSI limits in their config
func (s *Strategy) SetCustomSettings(customSettings map[string]any) error {
	for k, v := range customSettings {
		switch k {
		case rsiHighKey:
			rsiHigh, _, err := base.FetchFloat(customSettings, k)
			if err != nil || rsiHigh <= 0 {
				return fmt.Errorf("%w provided rsi-high value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			s.rsiHigh = decimal.NewFromFloat(rsiHigh)
		case rsiLowKey:
			rsiLow, _, err := base.FetchFloat(customSettings, k)
			if err != nil || rsiLow <= 0 {
				return fmt.Errorf("%w provided rsi-low value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			s.rsiLow = decimal.NewFromFloat(rsiLow)
		case rsiPeriodKey:
			rsiPeriod, _, err := base.FetchFloat(customSettings, k)
			if err != nil || rsiPeriod <= 0 {
				return fmt.Errorf("%w provided rsi-period value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			s.rsiPeriod = decimal.NewFromFloat(rsiPeriod)
		default:
			return fmt.Errorf("%w unrecognised custom setting key %v with value %v. Cannot apply", base.ErrInvalidCustomSettings, k, v)
		}
	}
	return nil
}

// SetDefaults sets the custom settings to their default values
func (s *Strategy) SetDefaults() {
	s.rsiHigh = decimal.NewFromInt(70)
	s.rsiLow = decimal.NewFromInt(30)
	s.rsiPeriod = decimal.NewFromInt(14)
	s.closes = make(map[string][]decimal.Decimal)
	s.side = make(map[string]int)
}
