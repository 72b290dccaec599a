package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/eventtypes/order"
)

// Evaluate runs the cap chain against a candidate entry order. A cap may
// clip the quantity; a cap that cannot be satisfied at any size drops the
// order. Ratio math runs in float64; exact money math happens at fill time.
func (m *Manager) Evaluate(symbol string, side order.Side, qty int64, price decimal.Decimal, s *State) Decision {
	if qty <= 0 || s == nil || !s.Equity.IsPositive() || !price.IsPositive() {
		return Decision{Dropped: true, Reason: "invalid_candidate"}
	}
	if s.Halted {
		return Decision{Dropped: true, Reason: ReasonDrawdownHalted}
	}

	px := price.InexactFloat64()
	equity := s.Equity.InexactFloat64()
	delta := qty
	if side == order.Sell {
		delta = -qty
	}
	current := s.Positions[symbol]
	currentMV := float64(current) * m.lastPrice(symbol, price, s)

	gross, net, heat := 0.0, 0.0, 0.0
	for sym, q := range s.Positions {
		if q == 0 || sym == symbol {
			continue
		}
		mv := float64(q) * m.lastPrice(sym, decimal.Zero, s)
		gross += math.Abs(mv)
		net += mv
		heat += math.Abs(mv) * m.vol(sym)
	}

	decision := Decision{Qty: qty}
	clip := func(allowed int64, reason string) bool {
		if allowed >= decision.Qty {
			return true
		}
		if allowed <= 0 {
			decision.Qty = 0
			decision.Dropped = true
			decision.Reason = reason
			return false
		}
		decision.Qty = allowed
		decision.Clipped = true
		decision.Reason = reason
		return true
	}
	projectedAbs := func(q int64) float64 {
		d := q
		if side == order.Sell {
			d = -q
		}
		return math.Abs(float64(current+d)) * px
	}

	// gross leverage: sum |MV| over equity
	if m.MaxGrossLeverage > 0 {
		budget := m.MaxGrossLeverage*equity - gross
		allowed := sharesWithin(budget, projectedAbs(decision.Qty), current, delta, px)
		if !clip(allowed, ReasonGrossLeverage) {
			return decision
		}
	}
	// net leverage: |sum MV| over equity
	if m.MaxNetLeverage > 0 {
		d := decision.Qty
		if side == order.Sell {
			d = -d
		}
		projectedNet := net + (float64(current)+float64(d))*px
		if math.Abs(projectedNet) > m.MaxNetLeverage*equity {
			budget := m.MaxNetLeverage*equity - math.Abs(net+currentMV)
			allowed := int64(math.Floor(budget / px))
			if !clip(allowed, ReasonNetLeverage) {
				return decision
			}
		}
	}
	// single name weight
	if m.MaxSingleNameWeight > 0 {
		budget := m.MaxSingleNameWeight * equity
		allowed := sharesWithin(budget, projectedAbs(decision.Qty), current, delta, px)
		if !clip(allowed, ReasonSingleName) {
			return decision
		}
	}
	// portfolio heat: vol weighted gross exposure over equity
	if m.MaxPortfolioHeat > 0 {
		v := m.vol(symbol)
		if v > 0 {
			budget := (m.MaxPortfolioHeat*equity - heat) / v
			allowed := sharesWithin(budget, projectedAbs(decision.Qty), current, delta, px)
			if !clip(allowed, ReasonPortfolioHeat) {
				return decision
			}
		}
	}
	// sector position cap: entering a new name must not exceed the per
	// sector position count
	if m.MaxPositionsPerSector > 0 && current == 0 && m.Sectors != nil {
		sector := m.Sectors[symbol]
		count := 0
		for sym, q := range s.Positions {
			if q != 0 && sym != symbol && m.Sectors[sym] == sector {
				count++
			}
		}
		if count >= m.MaxPositionsPerSector {
			decision.Qty = 0
			decision.Dropped = true
			decision.Reason = ReasonSectorCap
			return decision
		}
	}
	// turnover cap: cumulative traded notional over equity
	if m.TurnoverCap > 0 {
		budget := m.TurnoverCap*equity - s.TotalTurnover.InexactFloat64()
		allowed := int64(math.Floor(budget / px))
		if !clip(allowed, ReasonTurnoverCap) {
			return decision
		}
	}
	return decision
}

// sharesWithin converts a notional budget into the largest order quantity
// whose projected absolute position value stays within it
func sharesWithin(budget, projected float64, current, delta int64, px float64) int64 {
	if projected <= budget {
		return math.MaxInt64
	}
	if budget <= 0 {
		return 0
	}
	// the projected |position| grows by px per extra share once past zero
	maxAbsShares := int64(math.Floor(budget / px))
	if delta > 0 {
		allowed := maxAbsShares - current
		if allowed < 0 {
			return 0
		}
		return allowed
	}
	allowed := maxAbsShares + current
	if allowed < 0 {
		return 0
	}
	return allowed
}

func (m *Manager) lastPrice(symbol string, fallback decimal.Decimal, s *State) float64 {
	if px, ok := s.LastPrice[symbol]; ok && px.IsPositive() {
		return px.InexactFloat64()
	}
	return fallback.InexactFloat64()
}

func (m *Manager) vol(symbol string) float64 {
	if m.Meta == nil {
		return 0
	}
	return m.Meta[symbol].VolatilityBps / 10000
}
