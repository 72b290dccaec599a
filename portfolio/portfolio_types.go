package portfolio

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/eventtypes/order"
	"github.com/foldline/backtester/portfolio/risk"
	"github.com/foldline/backtester/portfolio/size"
)

var (
	errSizeManagerUnset = errors.New("size manager unset")
	errRiskManagerUnset = errors.New("risk manager unset")
	errNoInitialCash    = errors.New("initial cash must be positive")
)

// Drop reason recorded when sizing floors a trade to zero shares
const ReasonSizedToZero = "sized_to_zero"

// EquityRecord is the per market event snapshot appended to the equity curve
type EquityRecord struct {
	Time          time.Time
	Equity        decimal.Decimal
	Exposure      float64
	GrossExposure float64
	NumPositions  int
	Concentration float64
	Returns       float64
}

// TradeRecord is one fill as applied to the books. Inventory is the running
// signed position of the symbol after the fill.
type TradeRecord struct {
	Time        time.Time
	OrderID     string
	Symbol      string
	Side        order.Side
	Qty         int64
	Price       decimal.Decimal
	Commission  decimal.Decimal
	Slippage    decimal.Decimal
	Inventory   int64
	Cash        decimal.Decimal
	RealizedPNL decimal.Decimal
}

// TradeLogger persists trade records as they happen
type TradeLogger interface {
	LogTrade(t *TradeRecord) error
}

// Settings configure a portfolio at construction
type Settings struct {
	InitialCash     decimal.Decimal
	MaxDrawdownStop float64
	Meta            map[string]common.SymbolMeta
}

// Portfolio is the single owner of positions, cash, the equity curve and
// the trade log. It sizes signals into orders, enforces risk caps, applies
// fills and accrues borrow on short positions.
type Portfolio struct {
	settings    Settings
	sizeManager *size.Manager
	riskManager *risk.Manager
	data        data.Handler
	tradeLogger TradeLogger
	log         *zap.SugaredLogger

	cash      decimal.Decimal
	positions map[string]*Position
	lastPrice map[string]decimal.Decimal

	equityCurve     []EquityRecord
	trades          []*TradeRecord
	totalTurnover   decimal.Decimal
	totalCommission decimal.Decimal
	borrowCostTotal decimal.Decimal
	realizedPNL     decimal.Decimal

	highWaterMark  decimal.Decimal
	halted         bool
	lastAccrualDay time.Time

	DropReasons map[string]int64
	ClipReasons map[string]int64
}
