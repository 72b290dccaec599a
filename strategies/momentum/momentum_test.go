package momentum

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/eventtypes/bar"
	"github.com/foldline/backtester/eventtypes/event"
	"github.com/foldline/backtester/eventtypes/signal"
	"github.com/foldline/backtester/strategies/base"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "xs-momentum", New().Name())
	assert.NotEmpty(t, New().Description())
	assert.True(t, New().UsesSimultaneousProcessing())
}

func TestSetCustomSettings(t *testing.T) {
	t.Parallel()
	s := New()
	require.NoError(t, s.SetCustomSettings(map[string]any{
		"lookback-months":          6,
		"skip-months":              0,
		"top-frac":                 0.25,
		"bottom-frac":              0.25,
		"max-positions-per-sector": 2,
		"min-price":                1.0,
		"gross-budget":             0.5,
	}))
	assert.Equal(t, 6, s.lookbackMonths)
	assert.Equal(t, 0, s.skipMonths)
	assert.Equal(t, 0.25, s.topFrac)
	assert.Equal(t, 2, s.sectorCap)
	assert.Equal(t, 0.5, s.grossBudget)

	err := s.SetCustomSettings(map[string]any{"lookback-months": -1})
	assert.ErrorIs(t, err, base.ErrInvalidCustomSettings)

	err = s.SetCustomSettings(map[string]any{"no-such-key": 1})
	assert.ErrorIs(t, err, base.ErrInvalidCustomSettings)
}

func TestUniverseAt(t *testing.T) {
	t.Parallel()
	u := Universe{
		{Date: jan1},
		{Date: jan1.AddDate(0, 1, 0)},
	}
	assert.Nil(t, u.At(jan1.AddDate(0, 0, -1)))
	assert.Equal(t, jan1, u.At(jan1).Date)
	assert.Equal(t, jan1, u.At(jan1.AddDate(0, 0, 15)).Date)
	assert.Equal(t, jan1.AddDate(0, 1, 0), u.At(jan1.AddDate(0, 2, 0)).Date)
}

func TestShouldRebalance(t *testing.T) {
	t.Parallel()
	s := New()
	assert.True(t, s.shouldRebalance(jan1))
	s.lastRebalPer = jan1.Year()*12 + int(jan1.Month()) - 1
	assert.False(t, s.shouldRebalance(jan1.AddDate(0, 0, 20)))
	assert.True(t, s.shouldRebalance(jan1.AddDate(0, 1, 0)))
}

// testStrategy uses a one month lookback with no skip so 22 bars of history
// are enough to score
func testStrategy(t *testing.T, symbols []string) *Strategy {
	t.Helper()
	s := New()
	require.NoError(t, s.SetCustomSettings(map[string]any{
		"lookback-months": 1,
		"skip-months":     0,
		"top-frac":        0.25,
		"bottom-frac":     0.25,
	}))

	rows := make([]UniverseRow, len(symbols))
	warmup := make(map[string][]data.PricePoint)
	for i, sym := range symbols {
		rows[i] = UniverseRow{
			Symbol: sym,
			Sector: "tech",
			ADV20:  decimal.NewFromInt(1000000),
			Close:  decimal.NewFromInt(100),
		}
		history := make([]data.PricePoint, 22)
		for j := range history {
			history[j] = data.PricePoint{
				Time:  jan1.AddDate(0, 0, j-22),
				Close: decimal.NewFromInt(100),
			}
		}
		warmup[sym] = history
	}
	s.SetUniverse(Universe{{Date: jan1.AddDate(0, 0, -1), Rows: rows}})
	s.SetWarmup(warmup)
	return s
}

func batch(at time.Time, symbols []string, closes []float64) []*bar.Bar {
	bars := make([]*bar.Bar, len(symbols))
	for i := range symbols {
		bars[i] = &bar.Bar{
			Base:       event.Base{Time: at, Symbol: symbols[i]},
			ClosePrice: decimal.NewFromFloat(closes[i]),
		}
	}
	return bars
}

func TestRebalanceSelectsSleeves(t *testing.T) {
	t.Parallel()
	symbols := []string{"AAA", "BBB", "CCC", "DDD"}
	s := testStrategy(t, symbols)

	// AAA leads the cross-section, DDD trails it
	sigs, err := s.OnMarketBatch(batch(jan1, symbols, []float64{130, 110, 100, 80}))
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	long := sigs[0]
	assert.Equal(t, "AAA", long.GetSymbol())
	assert.Equal(t, signal.Long, long.Direction)
	assert.Equal(t, "long", long.Meta.Sleeve)
	assert.Equal(t, "tech", long.Meta.Sector)
	assert.Equal(t, "2024-01", long.Meta.PeriodEnd)
	assert.InDelta(t, 0.3, long.Meta.Momentum, 1e-9)
	require.True(t, long.Meta.Weight.Valid)
	assert.InDelta(t, 0.5, long.Meta.Weight.Decimal.InexactFloat64(), 1e-9)
	assert.Equal(t, 1.0, long.Meta.TurnoverHeat)

	short := sigs[1]
	assert.Equal(t, "DDD", short.GetSymbol())
	assert.Equal(t, signal.Short, short.Direction)
	assert.Equal(t, "short", short.Meta.Sleeve)
	require.True(t, short.Meta.Weight.Valid)
	assert.InDelta(t, -0.5, short.Meta.Weight.Decimal.InexactFloat64(), 1e-9)

	// a second batch in the same month stays quiet
	sigs, err = s.OnMarketBatch(batch(jan1.AddDate(0, 0, 5), symbols, []float64{130, 110, 100, 80}))
	require.NoError(t, err)
	assert.Nil(t, sigs)
}

func TestRebalanceExitsLeaversAndFlips(t *testing.T) {
	t.Parallel()
	symbols := []string{"AAA", "BBB", "CCC", "DDD"}
	s := testStrategy(t, symbols)

	sigs, err := s.OnMarketBatch(batch(jan1, symbols, []float64{130, 110, 100, 80}))
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	// next month BBB takes over the long sleeve and AAA collapses into the
	// short sleeve, while DDD simply drops out
	feb1 := jan1.AddDate(0, 1, 0)
	sigs, err = s.OnMarketBatch(batch(feb1, symbols, []float64{70, 140, 100, 100}))
	require.NoError(t, err)
	require.Len(t, sigs, 4)

	assert.Equal(t, "DDD", sigs[0].GetSymbol())
	assert.Equal(t, signal.Exit, sigs[0].Direction)

	assert.Equal(t, "BBB", sigs[1].GetSymbol())
	assert.Equal(t, signal.Long, sigs[1].Direction)

	// the long position in AAA exits before the short entry
	assert.Equal(t, "AAA", sigs[2].GetSymbol())
	assert.Equal(t, signal.Exit, sigs[2].Direction)
	assert.Equal(t, "AAA", sigs[3].GetSymbol())
	assert.Equal(t, signal.Short, sigs[3].Direction)
}

func TestRebalanceRequiresHistory(t *testing.T) {
	t.Parallel()
	s := New()
	require.NoError(t, s.SetCustomSettings(map[string]any{"lookback-months": 1, "skip-months": 0}))
	s.SetUniverse(Universe{{Date: jan1, Rows: []UniverseRow{{
		Symbol: "AAA", Sector: "tech", Close: decimal.NewFromInt(100), ADV20: decimal.NewFromInt(1000),
	}}}})

	sigs, err := s.OnMarketBatch(batch(jan1, []string{"AAA"}, []float64{100}))
	require.NoError(t, err)
	assert.Nil(t, sigs)
	// an empty cross-section leaves the rebalance pending
	assert.True(t, s.shouldRebalance(jan1.AddDate(0, 0, 1)))
}

func TestSelectSleevesResolvesOverlap(t *testing.T) {
	t.Parallel()
	s := New()
	require.NoError(t, s.SetCustomSettings(map[string]any{
		"top-frac":                 0.5,
		"bottom-frac":              0.5,
		"max-positions-per-sector": 1,
	}))

	// the sector cap pushes CCC into both sleeves; its negative score
	// resolves it short
	longs, shorts := s.selectSleeves([]scored{
		{symbol: "AAA", sector: "tech", z: 2},
		{symbol: "BBB", sector: "tech", z: 1},
		{symbol: "CCC", sector: "energy", z: -0.5},
	})
	assert.Equal(t, []string{"AAA"}, longs)
	assert.Equal(t, []string{"CCC", "BBB"}, shorts)

	// a positive score resolves the overlap long
	longs, shorts = s.selectSleeves([]scored{
		{symbol: "AAA", sector: "tech", z: 2},
		{symbol: "BBB", sector: "tech", z: -1},
		{symbol: "CCC", sector: "energy", z: 0.5},
	})
	assert.Equal(t, []string{"AAA", "CCC"}, longs)
	assert.Equal(t, []string{"BBB"}, shorts)
}

func TestPickSleeveSectorCap(t *testing.T) {
	t.Parallel()
	ordered := []scored{
		{symbol: "AAA", sector: "tech", z: 3},
		{symbol: "BBB", sector: "tech", z: 2},
		{symbol: "CCC", sector: "energy", z: 1},
	}
	assert.Equal(t, []string{"AAA", "CCC"}, pickSleeve(ordered, 2, 1))
	assert.Equal(t, []string{"AAA", "BBB"}, pickSleeve(ordered, 2, 0))
	assert.Nil(t, pickSleeve(ordered, 0, 1))
}

func TestLoadUniverseCSV(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "universe.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"date,symbol,sector,adv_20,close,market_cap_proxy\n"+
			"2024-02-01,bbb,tech,2000,20,0.5\n"+
			"2024-01-01,aaa,tech,1000,10,\n"+
			"2024-01-01,ccc,energy,3000,30,1.5\n"), 0o644))

	u, err := LoadUniverseCSV(path)
	require.NoError(t, err)
	require.Len(t, u, 2)

	// snapshots ascend, rows sort by symbol, symbols uppercase
	assert.Equal(t, jan1, u[0].Date)
	require.Len(t, u[0].Rows, 2)
	assert.Equal(t, "AAA", u[0].Rows[0].Symbol)
	assert.Equal(t, "CCC", u[0].Rows[1].Symbol)
	assert.Equal(t, 1.5, u[0].Rows[1].MarketCapProxy)
	assert.Equal(t, "BBB", u[1].Rows[0].Symbol)
}

func TestLoadUniverseCSVMissingColumn(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "universe.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,symbol,adv_20,close\n"), 0o644))

	_, err := LoadUniverseCSV(path)
	assert.ErrorIs(t, err, data.ErrMissingColumn)
}

func TestLoadUniverseCSVRaggedRowIsFatal(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "universe.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"date,symbol,sector,adv_20,close\n"+
			"2024-01-01,aaa,tech,1000,10\n"+
			"2024-01-02,bbb\n"+
			"2024-01-03,ccc,tech,3000,30\n"), 0o644))

	// a malformed row mid file must not silently truncate the table
	_, err := LoadUniverseCSV(path)
	assert.ErrorIs(t, err, data.ErrData)
}
