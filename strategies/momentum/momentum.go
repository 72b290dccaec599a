package momentum

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/common"
	"github.com/foldline/backtester/data"
	"github.com/foldline/backtester/eventtypes/bar"
	"github.com/foldline/backtester/eventtypes/event"
	"github.com/foldline/backtester/eventtypes/signal"
	"github.com/foldline/backtester/strategies/base"
)

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

// Description provides an overview of the strategy
func (s *Strategy) Description() string {
	return description
}

// SetDefaults sets the default strategy parameters
func (s *Strategy) SetDefaults() {
	s.lookbackMonths = 12
	s.skipMonths = 1
	s.topFrac = 0.1
	s.bottomFrac = 0.1
	s.sectorCap = 0
	s.minPrice = decimal.NewFromInt(5)
	s.minADV = decimal.Zero
	s.grossBudget = 1
	s.prices = make(map[string][]data.PricePoint)
	s.side = make(map[string]int)
	s.lastRebalPer = -1
}

// SetUniverse installs the universe snapshot table the strategy selects from
func (s *Strategy) SetUniverse(u Universe) {
	s.universe = u
}

// SetCustomSettings applies grid or config parameters
func (s *Strategy) SetCustomSettings(settings map[string]any) error {
	for key := range settings {
		switch key {
		case lookbackKey, skipKey, sectorCapKey:
			v, _, err := base.FetchInt(settings, key)
			if err != nil {
				return err
			}
			if v < 0 {
				return fmt.Errorf("%w: %v must not be negative", base.ErrInvalidCustomSettings, key)
			}
			switch key {
			case lookbackKey:
				s.lookbackMonths = v
			case skipKey:
				s.skipMonths = v
			case sectorCapKey:
				s.sectorCap = v
			}
		case topFracKey, bottomFracKey, grossBudgetKey, minPriceKey, minADVKey:
			v, _, err := base.FetchFloat(settings, key)
			if err != nil {
				return err
			}
			switch key {
			case topFracKey:
				s.topFrac = v
			case bottomFracKey:
				s.bottomFrac = v
			case grossBudgetKey:
				s.grossBudget = v
			case minPriceKey:
				s.minPrice = decimal.NewFromFloat(v)
			case minADVKey:
				s.minADV = decimal.NewFromFloat(v)
			}
		default:
			return fmt.Errorf("%w: unknown key %q", base.ErrInvalidCustomSettings, key)
		}
	}
	return nil
}

// UsesSimultaneousProcessing reports that this strategy makes
// cross-sectional decisions and must see whole timestamp batches
func (s *Strategy) UsesSimultaneousProcessing() bool {
	return true
}

// OnMarket accumulates history and rebalances on the first event of a new
// calendar month
func (s *Strategy) OnMarket(b *bar.Bar) ([]*signal.Signal, error) {
	if b == nil {
		return nil, common.ErrNilEvent
	}
	s.absorbWarmup()
	s.record(b)
	if !s.shouldRebalance(b.GetTime()) {
		return nil, nil
	}
	return s.rebalance(b.GetTime(), b.GetOffset())
}

// OnMarketBatch absorbs every event of a timestamp before deciding, so the
// cross-section is complete when the ranking runs
func (s *Strategy) OnMarketBatch(bars []*bar.Bar) ([]*signal.Signal, error) {
	if len(bars) == 0 {
		return nil, nil
	}
	s.absorbWarmup()
	for i := range bars {
		s.record(bars[i])
	}
	last := bars[len(bars)-1]
	if !s.shouldRebalance(last.GetTime()) {
		return nil, nil
	}
	return s.rebalance(last.GetTime(), last.GetOffset())
}

func (s *Strategy) record(b *bar.Bar) {
	sym := b.GetSymbol()
	s.prices[sym] = append(s.prices[sym], data.PricePoint{Time: b.GetTime(), Close: b.Price()})
}

func (s *Strategy) absorbWarmup() {
	if s.warmedUp {
		return
	}
	s.warmedUp = true
	for sym, history := range s.Warmup() {
		s.prices[sym] = append(history, s.prices[sym]...)
	}
}

// shouldRebalance is true on the first event whose calendar month is
// strictly later than the last recorded rebalance
func (s *Strategy) shouldRebalance(t time.Time) bool {
	period := t.Year()*12 + int(t.Month()) - 1
	return period > s.lastRebalPer
}

// minBars is the warm-up requirement before a symbol can be scored
func (s *Strategy) minBars() int {
	return (s.lookbackMonths+s.skipMonths)*tradingDaysPerM + 1
}

func (s *Strategy) rebalance(t time.Time, offset int64) ([]*signal.Signal, error) {
	scoredNames := s.score(t)
	if len(scoredNames) == 0 {
		return nil, nil
	}
	s.lastRebalPer = t.Year()*12 + int(t.Month()) - 1

	longs, shorts := s.selectSleeves(scoredNames)
	periodEnd := t.Format("2006-01")

	entering := make(map[string]int, len(longs)+len(shorts))
	byName := make(map[string]scored, len(scoredNames))
	for i := range scoredNames {
		byName[scoredNames[i].symbol] = scoredNames[i]
	}
	for _, sym := range longs {
		entering[sym] = 1
	}
	for _, sym := range shorts {
		entering[sym] = -1
	}

	turnoverHeat := s.turnoverHeat(entering)
	weight := 0.0
	if n := len(longs) + len(shorts); n > 0 {
		weight = s.grossBudget / float64(n)
	}

	var out []*signal.Signal
	emit := func(sym string, dir signal.Direction, sc scored, sleeve string, w float64) {
		sig := &signal.Signal{
			Base: event.Base{
				Time:   t,
				Symbol: sym,
				Offset: offset,
			},
			Direction: dir,
			Meta: signal.Meta{
				Sleeve:       sleeve,
				Sector:       sc.sector,
				SectorZ:      sc.z,
				Momentum:     sc.momentum,
				ADV:          sc.adv,
				TurnoverHeat: turnoverHeat,
				PeriodEnd:    periodEnd,
			},
		}
		if w != 0 {
			sig.Meta.Weight = decimal.NullDecimal{Decimal: decimal.NewFromFloat(w), Valid: true}
		}
		out = append(out, sig)
	}

	// exits for names leaving both sleeves
	held := make([]string, 0, len(s.side))
	for sym, side := range s.side {
		if side != 0 {
			held = append(held, sym)
		}
	}
	sort.Strings(held)
	for _, sym := range held {
		if _, stays := entering[sym]; stays {
			continue
		}
		emit(sym, signal.Exit, byName[sym], "", 0)
		s.side[sym] = 0
	}

	ordered := append(append([]string{}, longs...), shorts...)
	for _, sym := range ordered {
		dir := signal.Long
		sleeve := "long"
		w := weight
		target := entering[sym]
		if target < 0 {
			dir = signal.Short
			sleeve = "short"
			w = -weight
		}
		if cur := s.side[sym]; cur != 0 && cur != target {
			emit(sym, signal.Exit, byName[sym], sleeve, 0)
		}
		emit(sym, dir, byName[sym], sleeve, w)
		s.side[sym] = target
	}
	return out, nil
}

// score computes sector normalized momentum for every eligible name with
// sufficient history
func (s *Strategy) score(t time.Time) []scored {
	snap := s.universe.At(t)
	if snap == nil {
		return nil
	}
	minBars := s.minBars()
	skipIdx := s.skipMonths * tradingDaysPerM
	baseIdx := (s.skipMonths + s.lookbackMonths) * tradingDaysPerM

	var names []scored
	for i := range snap.Rows {
		row := snap.Rows[i]
		if row.Close.LessThan(s.minPrice) {
			continue
		}
		if s.minADV.IsPositive() && row.ADV20.LessThan(s.minADV) {
			continue
		}
		h := s.prices[row.Symbol]
		if len(h) < minBars {
			continue
		}
		p1 := h[len(h)-1-skipIdx].Close
		p0 := h[len(h)-1-baseIdx].Close
		if !p0.IsPositive() {
			continue
		}
		names = append(names, scored{
			symbol:   row.Symbol,
			sector:   row.Sector,
			momentum: p1.Div(p0).InexactFloat64() - 1,
			adv:      row.ADV20,
		})
	}
	if len(names) == 0 {
		return nil
	}
	sectorZScores(names)
	return names
}

// sectorZScores normalizes momentum within each sector, falling back to the
// cross-sectional distribution for singleton sectors
func sectorZScores(names []scored) {
	crossMean, crossStd := meanStd(names, func(scored) bool { return true })
	bySector := make(map[string]int)
	for i := range names {
		bySector[names[i].sector]++
	}
	for sector, count := range bySector {
		if count < 2 {
			for i := range names {
				if names[i].sector == sector {
					names[i].z = zScore(names[i].momentum, crossMean, crossStd)
				}
			}
			continue
		}
		mean, std := meanStd(names, func(n scored) bool { return n.sector == sector })
		for i := range names {
			if names[i].sector == sector {
				names[i].z = zScore(names[i].momentum, mean, std)
			}
		}
	}
}

// selectSleeves picks the top and bottom fractions by z score, honouring
// the per sector position cap per sleeve and resolving long/short overlap
// by the sign of the score
func (s *Strategy) selectSleeves(names []scored) (longs, shorts []string) {
	nLong := int(math.Round(float64(len(names)) * s.topFrac))
	nShort := int(math.Round(float64(len(names)) * s.bottomFrac))

	desc := make([]scored, len(names))
	copy(desc, names)
	sort.SliceStable(desc, func(i, j int) bool {
		if desc[i].z != desc[j].z {
			return desc[i].z > desc[j].z
		}
		return desc[i].symbol < desc[j].symbol
	})

	longs = pickSleeve(desc, nLong, s.sectorCap)
	asc := make([]scored, len(desc))
	for i := range desc {
		asc[i] = desc[len(desc)-1-i]
	}
	shorts = pickSleeve(asc, nShort, s.sectorCap)

	longSet := make(map[string]float64, len(longs))
	for _, sym := range longs {
		longSet[sym] = 0
	}
	for i := range desc {
		if _, ok := longSet[desc[i].symbol]; ok {
			longSet[desc[i].symbol] = desc[i].z
		}
	}
	filteredShorts := shorts[:0]
	for _, sym := range shorts {
		z, conflict := longSet[sym]
		if !conflict {
			filteredShorts = append(filteredShorts, sym)
			continue
		}
		// a name scores once, so a negative score belongs in the short sleeve
		if z < 0 {
			delete(longSet, sym)
			filteredShorts = append(filteredShorts, sym)
		}
	}
	shorts = filteredShorts
	filteredLongs := longs[:0]
	for _, sym := range longs {
		if _, ok := longSet[sym]; ok {
			filteredLongs = append(filteredLongs, sym)
		}
	}
	return filteredLongs, shorts
}

func pickSleeve(ordered []scored, n, sectorCap int) []string {
	if n <= 0 {
		return nil
	}
	perSector := make(map[string]int)
	out := make([]string, 0, n)
	for i := range ordered {
		if len(out) == n {
			break
		}
		if sectorCap > 0 && perSector[ordered[i].sector] >= sectorCap {
			continue
		}
		perSector[ordered[i].sector]++
		out = append(out, ordered[i].symbol)
	}
	return out
}

// turnoverHeat is the fraction of targeted names whose side changes at this
// rebalance
func (s *Strategy) turnoverHeat(entering map[string]int) float64 {
	if len(entering) == 0 {
		return 0
	}
	changed := 0
	for sym, target := range entering {
		if s.side[sym] != target {
			changed++
		}
	}
	return float64(changed) / float64(len(entering))
}

func meanStd(names []scored, include func(scored) bool) (mean, std float64) {
	var sum float64
	var n int
	for i := range names {
		if include(names[i]) {
			sum += names[i].momentum
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	mean = sum / float64(n)
	var ss float64
	for i := range names {
		if include(names[i]) {
			d := names[i].momentum - mean
			ss += d * d
		}
	}
	return mean, math.Sqrt(ss / float64(n))
}

func zScore(x, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (x - mean) / std
}
