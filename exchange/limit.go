package exchange

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/eventtypes/fill"
	"github.com/foldline/backtester/eventtypes/order"
)

// executeQueueLimit simulates probabilistic queue fills for IOC and
// post-only limit orders without a full order book. The fill fraction is
// derived from spread, volatility and participation, with documented
// fallbacks when metadata is missing.
func (b *Base) executeQueueLimit(o *order.Order, current time.Time) ([]*fill.Fill, error) {
	limit, ok := o.LimitPrice()
	if !ok {
		return b.reject(RejectNoPrice)
	}
	ts, ok := b.fillTime(current)
	if !ok {
		return b.reject(RejectNoFutureTimestamp)
	}
	market, ok := b.marketPrice(o.GetSymbol(), ts)
	if !ok {
		return b.reject(RejectNoPrice)
	}
	if b.LimitMode == LimitModeIOC {
		if o.Side == order.Buy && limit.LessThan(market) {
			return b.reject(RejectLimitNotCrossed)
		}
		if o.Side == order.Sell && limit.GreaterThan(market) {
			return b.reject(RejectLimitNotCrossed)
		}
	}

	f := b.fillFraction(o, market, ts)
	if f <= 0 {
		return b.reject(RejectZeroQueueFill)
	}
	filled := int64(math.Floor(float64(o.Qty) * f))
	if filled < b.MinFillQty {
		filled = b.MinFillQty
	}
	if filled > o.Qty {
		filled = o.Qty
	}
	if filled <= 0 {
		return b.reject(RejectZeroQueueFill)
	}

	signedQty := filled
	if o.Side == order.Sell {
		signedQty = -filled
	}
	var price, impact decimal.Decimal
	if b.LimitMode == LimitModePO {
		// post-only rests passively and trades at its own price
		price = limit
	} else {
		impact = b.impact(signedQty, market, o.GetSymbol(), current)
		adjusted := market.Add(impact)
		if o.Side == order.Buy {
			price = decimal.Min(limit, adjusted)
		} else {
			price = decimal.Max(limit, adjusted)
		}
	}
	return []*fill.Fill{newFill(o, ts, signedQty, price, b.commission(filled), impact)}, nil
}

// fillFraction returns clamp(coeff * (spread/vol) * (adv/qty), 0, 1)
func (b *Base) fillFraction(o *order.Order, market decimal.Decimal, at time.Time) float64 {
	meta := b.symbolMeta(o.GetSymbol())

	spreadBps := 10.0
	if meta != nil && meta.SpreadBps > 0 {
		spreadBps = meta.SpreadBps
	}

	volBps := 0.0
	if meta != nil && meta.VolatilityBps > 0 {
		volBps = meta.VolatilityBps
	}
	if volBps <= 0 {
		lookback := b.VolatilityLookback
		if lookback <= 0 {
			lookback = 20
		}
		recent := b.Data.RecentPrices(o.GetSymbol(), at, lookback+1)
		volBps = sampleVol(recent) * 10000
	}
	if volBps <= 0 {
		volBps = spreadBps
	}

	adv := float64(o.Qty) * 20
	if meta != nil && meta.ADV.IsPositive() {
		adv = meta.ADV.InexactFloat64()
	}

	coeff := b.QueueCoefficient
	if coeff <= 0 {
		coeff = 1
	}
	f := coeff * (spreadBps / volBps) * (adv / float64(o.Qty))
	if b.LimitMode == LimitModePO {
		mult := b.QueuePassiveMultiplier
		if mult <= 0 {
			mult = 1
		}
		f *= mult
	}
	if b.QueueJitter && b.rng != nil {
		f *= 0.8 + 0.4*b.rng.Float64()
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// sampleVol is the sample standard deviation of simple returns over the
// supplied price window
func sampleVol(prices []decimal.Decimal) float64 {
	if len(prices) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1].InexactFloat64()
		if prev == 0 {
			continue
		}
		returns = append(returns, prices[i].InexactFloat64()/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss / float64(len(returns)-1))
}
