package momentum

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/strategies/base"
)

const (
	// Name is the strategy name
	Name = "xs-momentum"

	lookbackKey     = "lookback-months"
	skipKey         = "skip-months"
	topFracKey      = "top-frac"
	bottomFracKey   = "bottom-frac"
	sectorCapKey    = "max-positions-per-sector"
	minPriceKey     = "min-price"
	minADVKey       = "min-adv"
	grossBudgetKey  = "gross-budget"
	tradingDaysPerM = 21

	description = `Cross-sectional momentum ranks the eligible universe on the return from t-(skip+lookback) months to t-skip months, z-scored within sector, and holds the top fraction long against the bottom fraction short, rebalancing monthly`
)

// UniverseRow is one eligible name in a universe snapshot
type UniverseRow struct {
	Symbol         string
	Sector         string
	ADV20          decimal.Decimal
	Close          decimal.Decimal
	MarketCapProxy float64
}

// Snapshot is the universe as of one rebalance date
type Snapshot struct {
	Date time.Time
	Rows []UniverseRow
}

// Universe is an ordered list of snapshots. At returns the latest snapshot
// at or before a time.
type Universe []Snapshot

// At returns the most recent snapshot at or before t
func (u Universe) At(t time.Time) *Snapshot {
	for i := len(u) - 1; i >= 0; i-- {
		if !u[i].Date.After(t) {
			return &u[i]
		}
	}
	return nil
}

// Strategy is the cross-sectional flagship momentum implementation
type Strategy struct {
	base.Strategy

	lookbackMonths int
	skipMonths     int
	topFrac        float64
	bottomFrac     float64
	sectorCap      int
	minPrice       decimal.Decimal
	minADV         decimal.Decimal
	grossBudget    float64

	universe Universe

	prices       map[string][]data.PricePoint
	side         map[string]int
	lastRebalPer int
	warmedUp     bool
}

type scored struct {
	symbol   string
	sector   string
	momentum float64
	z        float64
	adv      decimal.Decimal
}
