package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/config"
	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/exchange"
	"github.com/foldline/backtester/exchange/orderbook"
	"github.com/foldline/backtester/exchange/slippage"
	"github.com/foldline/backtester/portfolio"
	"github.com/foldline/backtester/portfolio/risk"
	"github.com/foldline/backtester/portfolio/size"
	"github.com/foldline/backtester/strategies"
	"github.com/foldline/backtester/strategies/momentum"
)

// loadFeed builds the merged data handler from per symbol csv files. A
// single symbol may point data_path straight at a file; multi symbol
// configs use data_path as a directory of SYMBOL.csv files.
func loadFeed(c *config.Config) (*data.Feed, error) {
	symbols := c.SymbolList()
	series := make([]*data.Series, 0, len(symbols))
	info, err := os.Stat(c.DataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", data.ErrData, err)
	}
	for _, sym := range symbols {
		path := c.DataPath
		if info.IsDir() {
			path = filepath.Join(c.DataPath, strings.ToUpper(sym)+".csv")
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("%w %q: no series at %v", data.ErrUnknownSymbol, sym, path)
			}
		}
		s, err := data.LoadCSV(path, sym)
		if err != nil {
			return nil, err
		}
		series = append(series, s)
	}
	return data.NewFeed(data.FFill, series...)
}

func symbolMeta(c *config.Config) map[string]common.SymbolMeta {
	if len(c.Metadata) == 0 {
		return nil
	}
	out := make(map[string]common.SymbolMeta, len(c.Metadata))
	for sym, m := range c.Metadata {
		key := strings.ToUpper(sym)
		out[key] = common.SymbolMeta{
			Symbol:             key,
			ADV:                decimal.NewFromFloat(m.ADV),
			SpreadBps:          m.SpreadBps,
			BorrowFeeAnnualBps: m.BorrowFeeAnnualBps,
			VolatilityBps:      m.VolatilityBps,
		}
	}
	return out
}

// newExchange builds the broker with the configured execution model.
// rangeStart anchors the synthetic book seed for the lob model.
func newExchange(c *config.Config, feed *data.Feed, rng *rand.Rand, rangeStart time.Time) (*exchange.Exchange, error) {
	execType := strings.ToLower(c.Exec.Type)

	slip, err := newSlippage(c, execType)
	if err != nil {
		return nil, err
	}
	settings := exchange.Settings{
		CommissionPerShare:     decimal.NewFromFloat(c.Exec.Commission),
		Slippage:               slip,
		Meta:                   symbolMeta(c),
		LimitMode:              strings.ToUpper(c.Exec.LimitMode),
		QueueCoefficient:       c.Exec.QueueCoefficient,
		QueuePassiveMultiplier: c.Exec.QueuePassiveMultiplier,
		QueueJitter:            c.Exec.QueueJitter,
		MinFillQty:             c.Exec.MinFillQty,
		VolatilityLookback:     c.Exec.VolatilityLookback,
	}
	base := exchange.NewBase(feed, settings, rng)

	slices := c.Exec.Slices
	if slices <= 0 {
		slices = 4
	}
	var executor exchange.Executor
	switch execType {
	case "instant", "sqrt", "kyle":
		executor = &exchange.Instant{Base: base}
	case "twap":
		executor = &exchange.TWAP{Base: base, Slices: slices}
	case "vwap":
		executor = &exchange.VWAP{Base: base, Slices: slices}
	case "is":
		executor = &exchange.ImplementationShortfall{Base: base, Slices: slices, Urgency: c.Exec.Urgency}
	case "lob":
		executor = newBook(c, feed, rng, rangeStart)
	default:
		return nil, fmt.Errorf("%w %q", exchange.ErrUnknownExecutor, c.Exec.Type)
	}
	return exchange.New(executor), nil
}

// newSlippage resolves the impact model. The sqrt and kyle exec types are
// the instant executor under their namesake models unless an explicit
// slippage section overrides them.
func newSlippage(c *config.Config, execType string) (slippage.Model, error) {
	if c.Exec.Slippage.Type != "" {
		return slippage.New(strings.ToLower(c.Exec.Slippage.Type), c.Exec.Slippage.Impact)
	}
	switch execType {
	case "sqrt":
		return &slippage.SquareRoot{Impact: c.Exec.PriceImpact}, nil
	case "kyle":
		return &slippage.Kyle{Lambda: c.Exec.Lam}, nil
	}
	return slippage.New("", c.Exec.PriceImpact)
}

func newBook(c *config.Config, feed *data.Feed, rng *rand.Rand, rangeStart time.Time) *orderbook.Book {
	latency := orderbook.NewLatencyModel(
		c.Exec.LatencyAck, c.Exec.LatencyFill,
		c.Exec.LatencyAckJitter, c.Exec.LatencyFillJit, rng)
	book := orderbook.New(latency)
	book.Data = feed
	book.CommissionPerShare = decimal.NewFromFloat(c.Exec.Commission)
	book.TPlus1 = c.Exec.LOBTPlus1 == nil || *c.Exec.LOBTPlus1

	levels := c.Exec.BookLevels
	if levels <= 0 {
		levels = 5
	}
	levelSize := c.Exec.LevelSize
	if levelSize <= 0 {
		levelSize = 1000
	}
	tick := c.Exec.TickSize
	if tick <= 0 {
		tick = 0.01
	}
	if c.Exec.MidPrice > 0 {
		book.Seed(levels, levelSize,
			decimal.NewFromFloat(tick), decimal.NewFromFloat(c.Exec.MidPrice), rangeStart)
	}
	return book
}

func newPortfolio(c *config.Config, feed *data.Feed, logger *zap.SugaredLogger) (*portfolio.Portfolio, error) {
	defaultQty := c.Risk.DefaultQty
	if defaultQty <= 0 {
		defaultQty = 100
	}
	sm := &size.Manager{
		DefaultQty:    defaultQty,
		KellyFraction: c.Risk.KellyFraction,
	}
	if c.Risk.VolTargetAnnualized > 0 {
		lookback := c.Risk.VolLookback
		if lookback <= 0 {
			lookback = 20
		}
		sm.Policy = &size.VolScaled{
			TargetDollarVol: c.Risk.VolTargetAnnualized * c.Cash / math.Sqrt(252),
			Lookback:        lookback,
			MinQty:          1,
		}
	}
	rm := &risk.Manager{
		MaxGrossLeverage:      c.Risk.MaxExposure,
		MaxNetLeverage:        c.Risk.MaxNetExposure,
		MaxSingleNameWeight:   c.Risk.MaxSingleNameWeight,
		MaxPortfolioHeat:      c.Risk.MaxPortfolioHeat,
		MaxPositionsPerSector: c.Risk.MaxPositionsPerSector,
		TurnoverCap:           c.Risk.TurnoverCap,
		Sectors:               c.Risk.Sectors,
		Meta:                  symbolMeta(c),
	}
	return portfolio.Setup(portfolio.Settings{
		InitialCash:     decimal.NewFromFloat(c.Cash),
		MaxDrawdownStop: c.Risk.MaxDrawdownStop,
		Meta:            symbolMeta(c),
	}, sm, rm, feed, logger)
}

// newStrategy loads the named strategy with base params merged under any
// per candidate overrides
func newStrategy(c *config.Config, universe momentum.Universe, overrides map[string]any) (strategies.Handler, error) {
	s, err := strategies.LoadStrategyByName(c.Strategy.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	merged := make(map[string]any, len(c.Strategy.Params)+len(overrides))
	for k, v := range c.Strategy.Params {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	if len(merged) > 0 {
		if err = s.SetCustomSettings(merged); err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
		}
	}
	if ms, ok := s.(*momentum.Strategy); ok && universe != nil {
		ms.SetUniverse(universe)
	}
	return s, nil
}
