package portfolio

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/eventtypes/bar"
	"github.com/foldline/backtester/eventtypes/fill"
	"github.com/foldline/backtester/eventtypes/order"
	"github.com/foldline/backtester/eventtypes/signal"
	"github.com/foldline/backtester/portfolio/risk"
	"github.com/foldline/backtester/portfolio/size"
)

// Setup creates a portfolio manager and sets private fields
func Setup(s Settings, sm *size.Manager, rm *risk.Manager, d data.Handler, logger *zap.SugaredLogger) (*Portfolio, error) {
	if sm == nil {
		return nil, errSizeManagerUnset
	}
	if rm == nil {
		return nil, errRiskManagerUnset
	}
	if !s.InitialCash.IsPositive() {
		return nil, errNoInitialCash
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Portfolio{
		settings:      s,
		sizeManager:   sm,
		riskManager:   rm,
		data:          d,
		log:           logger,
		cash:          s.InitialCash,
		positions:     make(map[string]*Position),
		lastPrice:     make(map[string]decimal.Decimal),
		highWaterMark: s.InitialCash,
		DropReasons:   make(map[string]int64),
		ClipReasons:   make(map[string]int64),
	}, nil
}

// SetTradeLogger attaches a persistence sink for trade records
func (p *Portfolio) SetTradeLogger(l TradeLogger) {
	p.tradeLogger = l
}

// OnMarket marks all positions to market, accrues borrow on day
// boundaries and appends an equity record
func (p *Portfolio) OnMarket(b *bar.Bar) error {
	if b == nil {
		return common.ErrNilEvent
	}
	p.accrueBorrow(b.GetTime())
	p.lastPrice[b.GetSymbol()] = b.Price()

	equity := p.Equity()
	record := EquityRecord{
		Time:   b.GetTime(),
		Equity: equity,
	}
	eq := equity.InexactFloat64()
	if eq != 0 {
		var net, gross, sumSq float64
		for sym, pos := range p.positions {
			if pos.Qty == 0 {
				continue
			}
			mv := float64(pos.Qty) * p.lastPrice[sym].InexactFloat64()
			net += mv
			gross += math.Abs(mv)
			record.NumPositions++
		}
		record.Exposure = net / eq
		record.GrossExposure = gross / eq
		if gross > 0 {
			for sym, pos := range p.positions {
				if pos.Qty == 0 {
					continue
				}
				w := math.Abs(float64(pos.Qty)*p.lastPrice[sym].InexactFloat64()) / gross
				sumSq += w * w
			}
		}
		record.Concentration = sumSq
	}
	if n := len(p.equityCurve); n > 0 {
		prev := p.equityCurve[n-1].Equity
		if prev.IsPositive() {
			record.Returns = equity.Sub(prev).Div(prev).InexactFloat64()
		}
	}
	p.equityCurve = append(p.equityCurve, record)

	if equity.GreaterThan(p.highWaterMark) {
		p.highWaterMark = equity
	}
	if !p.halted && p.settings.MaxDrawdownStop > 0 && p.highWaterMark.IsPositive() {
		dd := p.highWaterMark.Sub(equity).Div(p.highWaterMark).InexactFloat64()
		if dd >= p.settings.MaxDrawdownStop {
			p.halted = true
			p.log.Warnw("drawdown stop tripped, new entries blocked",
				"time", b.GetTime(), "drawdown", dd)
		}
	}
	return nil
}

// OnSignal translates a strategy intent into zero or one order. Exits
// flatten unconditionally; entries run the sizing ladder and the risk cap
// chain.
func (p *Portfolio) OnSignal(sig *signal.Signal) ([]*order.Order, error) {
	if sig == nil {
		return nil, common.ErrNilEvent
	}
	symbol := sig.GetSymbol()
	pos := p.positions[symbol]

	if sig.Direction == signal.Exit {
		if pos == nil || pos.Qty == 0 {
			return nil, nil
		}
		side := order.Sell
		if pos.Qty < 0 {
			side = order.Buy
		}
		o, err := order.New(sig.GetTime(), symbol, side, abs(pos.Qty))
		if err != nil {
			return nil, err
		}
		o.SetOffset(sig.GetOffset())
		return []*order.Order{o}, nil
	}

	side := order.Buy
	if sig.Direction == signal.Short {
		side = order.Sell
	}
	price, ok := p.lastPrice[symbol]
	if !ok || !price.IsPositive() {
		if p.data != nil {
			price, ok = p.data.LatestPrice(symbol, sig.GetTime(), data.FFill)
		}
		if !ok || !price.IsPositive() {
			p.drop("no_price")
			return nil, nil
		}
	}
	var recent []decimal.Decimal
	if p.data != nil {
		recent = p.data.RecentPrices(symbol, sig.GetTime(), 64)
	}
	qty, err := p.sizeManager.Calculate(sig, price, p.Equity(), recent)
	if err != nil {
		// sizing failures drop the trade, they do not stop the run
		p.drop(ReasonSizedToZero)
		return nil, nil
	}
	if qty <= 0 {
		p.drop(ReasonSizedToZero)
		return nil, nil
	}

	decision := p.riskManager.Evaluate(symbol, side, qty, price, p.riskState())
	if decision.Dropped {
		p.drop(decision.Reason)
		return nil, nil
	}
	if decision.Clipped {
		p.ClipReasons[decision.Reason]++
	}
	o, err := order.New(sig.GetTime(), symbol, side, decision.Qty)
	if err != nil {
		return nil, err
	}
	o.SetOffset(sig.GetOffset())
	if decision.Clipped {
		o.AppendReasonf("qty clipped from %v to %v by %v", qty, decision.Qty, decision.Reason)
	}
	return []*order.Order{o}, nil
}

// OnFill applies an executed fill to the books
func (p *Portfolio) OnFill(f *fill.Fill) error {
	if f == nil {
		return common.ErrNilEvent
	}
	symbol := f.GetSymbol()
	pos := p.positions[symbol]
	if pos == nil {
		pos = &Position{Symbol: symbol}
		p.positions[symbol] = pos
	}
	realized := pos.ApplyFill(f.Qty, f.FillPrice)
	p.realizedPNL = p.realizedPNL.Add(realized)
	p.cash = p.cash.Add(f.CashDelta())
	p.totalCommission = p.totalCommission.Add(f.Commission)
	p.totalTurnover = p.totalTurnover.Add(f.Notional())

	trade := &TradeRecord{
		Time:        f.GetTime(),
		OrderID:     f.OrderID,
		Symbol:      symbol,
		Side:        f.Side,
		Qty:         f.Qty,
		Price:       f.FillPrice,
		Commission:  f.Commission,
		Slippage:    f.Slippage,
		Inventory:   pos.Qty,
		Cash:        p.cash,
		RealizedPNL: realized,
	}
	p.trades = append(p.trades, trade)
	if p.tradeLogger != nil {
		if err := p.tradeLogger.LogTrade(trade); err != nil {
			return err
		}
	}
	return nil
}

// accrueBorrow charges the daily borrow fee for every short position on
// each trading day boundary. A weekend gap accrues a single day.
func (p *Portfolio) accrueBorrow(now time.Time) {
	day := now.Truncate(24 * time.Hour)
	if p.lastAccrualDay.IsZero() {
		p.lastAccrualDay = day
		return
	}
	days := common.CountTradingDays(p.lastAccrualDay, day)
	if days == 0 {
		return
	}
	p.lastAccrualDay = day
	daysDec := decimal.NewFromInt(days)
	for sym, pos := range p.positions {
		if pos.Qty >= 0 {
			continue
		}
		feeBps := p.settings.Meta[sym].BorrowFeeAnnualBps
		if feeBps <= 0 {
			continue
		}
		px, ok := p.lastPrice[sym]
		if !ok {
			continue
		}
		cost := decimal.NewFromInt(-pos.Qty).
			Mul(px).
			Mul(decimal.NewFromFloat(feeBps / 10000)).
			Div(decimal.NewFromInt(252)).
			Mul(daysDec)
		p.cash = p.cash.Sub(cost)
		p.borrowCostTotal = p.borrowCostTotal.Add(cost)
	}
}

// Equity returns cash plus the mark to market value of all positions
func (p *Portfolio) Equity() decimal.Decimal {
	equity := p.cash
	for sym, pos := range p.positions {
		if pos.Qty == 0 {
			continue
		}
		if px, ok := p.lastPrice[sym]; ok {
			equity = equity.Add(px.Mul(decimal.NewFromInt(pos.Qty)))
		}
	}
	return equity
}

func (p *Portfolio) riskState() *risk.State {
	positions := make(map[string]int64, len(p.positions))
	for sym, pos := range p.positions {
		positions[sym] = pos.Qty
	}
	return &risk.State{
		Equity:        p.Equity(),
		Halted:        p.halted,
		Positions:     positions,
		LastPrice:     p.lastPrice,
		TotalTurnover: p.totalTurnover,
	}
}

func (p *Portfolio) drop(reason string) {
	p.DropReasons[reason]++
}

// Cash returns the current cash balance
func (p *Portfolio) Cash() decimal.Decimal { return p.cash }

// InitialCash returns the configured starting cash
func (p *Portfolio) InitialCash() decimal.Decimal { return p.settings.InitialCash }

// EquityCurve returns the per event equity records
func (p *Portfolio) EquityCurve() []EquityRecord { return p.equityCurve }

// Trades returns the applied trade records
func (p *Portfolio) Trades() []*TradeRecord { return p.trades }

// TotalTurnover returns the cumulative traded notional
func (p *Portfolio) TotalTurnover() decimal.Decimal { return p.totalTurnover }

// TotalCommission returns cumulative commissions paid
func (p *Portfolio) TotalCommission() decimal.Decimal { return p.totalCommission }

// BorrowCostTotal returns cumulative borrow fees charged to shorts
func (p *Portfolio) BorrowCostTotal() decimal.Decimal { return p.borrowCostTotal }

// RealizedPNL returns cumulative realized profit and loss
func (p *Portfolio) RealizedPNL() decimal.Decimal { return p.realizedPNL }

// UnrealizedPNL returns the open positions' mark to market gain over average cost
func (p *Portfolio) UnrealizedPNL() decimal.Decimal {
	var pnl decimal.Decimal
	for sym, pos := range p.positions {
		if pos.Qty == 0 {
			continue
		}
		px, ok := p.lastPrice[sym]
		if !ok {
			continue
		}
		pnl = pnl.Add(px.Sub(pos.AvgCost).Mul(decimal.NewFromInt(pos.Qty)))
	}
	return pnl
}

// PositionQty returns the signed quantity held in a symbol
func (p *Portfolio) PositionQty(symbol string) int64 {
	if pos, ok := p.positions[symbol]; ok {
		return pos.Qty
	}
	return 0
}

// Halted reports whether the drawdown stop has tripped
func (p *Portfolio) Halted() bool { return p.halted }
