package risk

import (
	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/common"
)

// Drop and clip reasons recorded by the portfolio for diagnostics
const (
	ReasonDrawdownHalted = "drawdown_halted"
	ReasonGrossLeverage  = "max_gross_leverage"
	ReasonNetLeverage    = "max_net_leverage"
	ReasonSingleName     = "max_single_name_weight"
	ReasonPortfolioHeat  = "max_portfolio_heat"
	ReasonSectorCap      = "max_positions_per_sector"
	ReasonTurnoverCap    = "turnover_cap"
)

// Manager evaluates candidate orders against the configured caps, in a
// fixed order: drawdown stop, gross leverage, net leverage, single name
// weight, portfolio heat, sector position cap, turnover cap. Zero values
// disable a cap.
type Manager struct {
	MaxGrossLeverage      float64
	MaxNetLeverage        float64
	MaxSingleNameWeight   float64
	MaxPortfolioHeat      float64
	MaxPositionsPerSector int
	TurnoverCap           float64
	Sectors               map[string]string
	Meta                  map[string]common.SymbolMeta
}

// State is the portfolio snapshot the caps are assessed against
type State struct {
	Equity        decimal.Decimal
	Halted        bool
	Positions     map[string]int64
	LastPrice     map[string]decimal.Decimal
	TotalTurnover decimal.Decimal
}

// Decision is the outcome of evaluating one candidate order
type Decision struct {
	Qty     int64
	Dropped bool
	Clipped bool
	Reason  string
}
