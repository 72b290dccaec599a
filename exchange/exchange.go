package exchange

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/eventtypes/fill"
	"github.com/foldline/backtester/eventtypes/order"
	"github.com/foldline/backtester/exchange/slippage"
)

// New creates a broker around an executor
func New(exec Executor) *Exchange {
	return &Exchange{
		Executor:      exec,
		RejectReasons: make(map[string]int64),
	}
}

// ExecuteOrder routes an order to the configured executor and returns the
// resulting fills. Rejections are counted, not fatal.
func (e *Exchange) ExecuteOrder(o *order.Order, current time.Time) ([]*fill.Fill, error) {
	if o == nil {
		return nil, common.ErrNilEvent
	}
	fills, err := e.Executor.Execute(o, current)
	if err != nil {
		return nil, err
	}
	if len(fills) == 0 {
		e.Rejected++
		if reason := e.Executor.LastRejectReason(); reason != "" {
			e.RejectReasons[reason]++
		}
		return nil, nil
	}
	e.Accepted++
	return fills, nil
}

// NewBase creates the shared executor base
func NewBase(d data.Handler, s Settings, rng *rand.Rand) *Base {
	if s.Slippage == nil {
		s.Slippage = &slippage.VolumeSquared{}
	}
	return &Base{Data: d, Settings: s, rng: rng}
}

// LastRejectReason returns the categorical reason for the most recent
// rejection
func (b *Base) LastRejectReason() string {
	return b.lastRejectReason
}

func (b *Base) reject(reason string) ([]*fill.Fill, error) {
	b.lastRejectReason = reason
	return nil, nil
}

// fillTime returns the first future timestamp strictly after current,
// enforcing the t+1 execution contract
func (b *Base) fillTime(current time.Time) (time.Time, bool) {
	future := b.Data.FutureTimestamps(current, 1)
	if len(future) == 0 {
		return time.Time{}, false
	}
	return future[0], true
}

func (b *Base) marketPrice(symbol string, at time.Time) (decimal.Decimal, bool) {
	return b.Data.LatestPrice(symbol, at, data.FFill)
}

func (b *Base) commission(qty int64) decimal.Decimal {
	if qty < 0 {
		qty = -qty
	}
	return b.CommissionPerShare.Mul(decimal.NewFromInt(qty))
}

func (b *Base) symbolMeta(symbol string) *common.SymbolMeta {
	if b.Meta == nil {
		return nil
	}
	m, ok := b.Meta[symbol]
	if !ok {
		return nil
	}
	return &m
}

// impact returns the signed per-share slippage for a child order, with the
// half-spread floor applied when spread metadata is available
func (b *Base) impact(signedQty int64, price decimal.Decimal, symbol string, at time.Time) decimal.Decimal {
	meta := b.symbolMeta(symbol)
	var recent []decimal.Decimal
	if b.VolatilityLookback > 0 {
		recent = b.Data.RecentPrices(symbol, at, b.VolatilityLookback+1)
	}
	impact := b.Slippage.PerShare(signedQty, price, meta, recent)
	if floor := slippage.SpreadFloor(price, meta); floor.IsPositive() {
		impact = slippage.ApplyFloor(impact, floor, signedQty)
	}
	return impact
}
