package data

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/eventtypes/bar"
	"github.com/foldline/backtester/eventtypes/event"
)

// NewFeed creates a feed from one or more per-symbol series. Symbol order is
// preserved and becomes the intra-timestamp event order.
func NewFeed(mode LookupMode, series ...*Series) (*Feed, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no series supplied", ErrData)
	}
	if mode != Exact && mode != FFill {
		return nil, fmt.Errorf("%w: unknown lookup mode %q", ErrData, mode)
	}
	f := &Feed{
		mode:   mode,
		series: make(map[string]*Series, len(series)),
	}
	for i := range series {
		s := series[i]
		if s == nil || len(s.Times) == 0 {
			return nil, fmt.Errorf("%w: empty series", ErrData)
		}
		s.Symbol = strings.ToUpper(s.Symbol)
		for j := 1; j < len(s.Times); j++ {
			if !s.Times[j].After(s.Times[j-1]) {
				return nil, fmt.Errorf("%w for %v at index %v", ErrUnsortedSeries, s.Symbol, j)
			}
		}
		if _, ok := f.series[s.Symbol]; ok {
			return nil, fmt.Errorf("%w: duplicate series for %v", ErrData, s.Symbol)
		}
		f.symbols = append(f.symbols, s.Symbol)
		f.series[s.Symbol] = s
	}
	return f, nil
}

// Symbols returns the declared symbol order
func (f *Feed) Symbols() []string {
	return f.symbols
}

// SetDateRange restricts the active slice to [start, end] and re-arms the
// stream. All subsequent calls honour the filter.
func (f *Feed) SetDateRange(start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end %v before start %v", ErrData, end, start)
	}
	f.start, f.end = start, end
	f.lo = make(map[string]int, len(f.symbols))
	f.hi = make(map[string]int, len(f.symbols))
	f.cursors = make(map[string]int, len(f.symbols))
	f.lastSeen = make(map[string]decimal.Decimal, len(f.symbols))
	f.merge = &timeHeap{}
	f.pending = nil
	f.offset = 0

	total := 0
	for _, sym := range f.symbols {
		s := f.series[sym]
		lo := sort.Search(len(s.Times), func(i int) bool { return !s.Times[i].Before(start) })
		hi := sort.Search(len(s.Times), func(i int) bool { return s.Times[i].After(end) })
		f.lo[sym], f.hi[sym] = lo, hi
		f.cursors[sym] = lo
		total += hi - lo
		if lo < hi {
			heap.Push(f.merge, mergeEntry{t: s.Times[lo], symbol: sym})
		}
	}
	if total == 0 {
		f.rangeSet = false
		return fmt.Errorf("%w between %v and %v", ErrEmptySlice, start, end)
	}
	f.unionTimes = f.buildUnionIndex()
	f.rangeSet = true
	return nil
}

// Active reports whether the feed is ready to stream
func (f *Feed) Active() error {
	if !f.rangeSet {
		return fmt.Errorf("%w: call SetDateRange first", ErrNoRangeSet)
	}
	return nil
}

// Next returns the next event in the globally ordered stream
func (f *Feed) Next() (*bar.Bar, bool) {
	if len(f.pending) == 0 {
		if !f.fillPending() {
			return nil, false
		}
	}
	b := f.pending[0]
	f.pending = f.pending[1:]
	return b, true
}

// NextBatch returns the maximal run of events sharing the next timestamp
func (f *Feed) NextBatch() ([]*bar.Bar, bool) {
	if len(f.pending) == 0 {
		if !f.fillPending() {
			return nil, false
		}
	}
	batch := f.pending
	f.pending = nil
	return batch, true
}

// fillPending advances the k-way merge by one union timestamp, emitting one
// event per symbol with a real bar and, in ffill mode, a synthetic zero
// volume event for every symbol with a previously observed price
func (f *Feed) fillPending() bool {
	if !f.rangeSet || f.merge.Len() == 0 {
		return false
	}
	ts := (*f.merge)[0].t
	real := make(map[string]bool, len(f.symbols))
	for f.merge.Len() > 0 && (*f.merge)[0].t.Equal(ts) {
		entry, ok := heap.Pop(f.merge).(mergeEntry)
		if !ok {
			return false
		}
		real[entry.symbol] = true
		s := f.series[entry.symbol]
		cur := f.cursors[entry.symbol] + 1
		f.cursors[entry.symbol] = cur
		if cur < f.hi[entry.symbol] {
			heap.Push(f.merge, mergeEntry{t: s.Times[cur], symbol: entry.symbol})
		}
	}
	for _, sym := range f.symbols {
		s := f.series[sym]
		if real[sym] {
			idx := f.cursors[sym] - 1
			f.lastSeen[sym] = s.Closes[idx]
			f.pending = append(f.pending, &bar.Bar{
				Base:       event.Base{Time: ts, Symbol: sym, Offset: f.offset},
				ClosePrice: s.Closes[idx],
				Vol:        volumeAt(s, idx),
			})
			f.offset++
			continue
		}
		if f.mode != FFill {
			continue
		}
		last, seen := f.lastSeen[sym]
		if !seen {
			continue
		}
		f.pending = append(f.pending, &bar.Bar{
			Base:       event.Base{Time: ts, Symbol: sym, Offset: f.offset},
			ClosePrice: last,
			Synthetic:  true,
		})
		f.offset++
	}
	return len(f.pending) > 0
}

// LatestPrice returns the price for a symbol at a timestamp under the given
// lookup mode, honouring the active date range
func (f *Feed) LatestPrice(symbol string, at time.Time, mode LookupMode) (decimal.Decimal, bool) {
	s, ok := f.series[strings.ToUpper(symbol)]
	if !ok || !f.rangeSet {
		return decimal.Zero, false
	}
	sym := s.Symbol
	lo, hi := f.lo[sym], f.hi[sym]
	// index of the last bar at or before the lookup time
	i := sort.Search(hi-lo, func(i int) bool { return s.Times[lo+i].After(at) }) + lo - 1
	if i < lo {
		return decimal.Zero, false
	}
	if mode == Exact && !s.Times[i].Equal(at) {
		return decimal.Zero, false
	}
	return s.Closes[i], true
}

// FutureTimestamps returns up to n union timestamps strictly after the
// given time
func (f *Feed) FutureTimestamps(after time.Time, n int) []time.Time {
	if !f.rangeSet || n <= 0 {
		return nil
	}
	i := sort.Search(len(f.unionTimes), func(i int) bool { return f.unionTimes[i].After(after) })
	if i >= len(f.unionTimes) {
		return nil
	}
	j := i + n
	if j > len(f.unionTimes) {
		j = len(f.unionTimes)
	}
	out := make([]time.Time, j-i)
	copy(out, f.unionTimes[i:j])
	return out
}

// RecentPrices returns the trailing k closes at or before end for a symbol
func (f *Feed) RecentPrices(symbol string, end time.Time, k int) []decimal.Decimal {
	s, ok := f.series[strings.ToUpper(symbol)]
	if !ok || !f.rangeSet || k <= 0 {
		return nil
	}
	sym := s.Symbol
	lo, hi := f.lo[sym], f.hi[sym]
	j := sort.Search(hi-lo, func(i int) bool { return s.Times[lo+i].After(end) }) + lo
	i := j - k
	if i < lo {
		i = lo
	}
	out := make([]decimal.Decimal, j-i)
	copy(out, s.Closes[i:j])
	return out
}

// RecentHistory returns the trailing k price points at or before end,
// used to carry warm-up history across a train/test boundary
func (f *Feed) RecentHistory(symbol string, end time.Time, k int) []PricePoint {
	s, ok := f.series[strings.ToUpper(symbol)]
	if !ok || !f.rangeSet || k <= 0 {
		return nil
	}
	sym := s.Symbol
	lo, hi := f.lo[sym], f.hi[sym]
	j := sort.Search(hi-lo, func(i int) bool { return s.Times[lo+i].After(end) }) + lo
	i := j - k
	if i < lo {
		i = lo
	}
	out := make([]PricePoint, 0, j-i)
	for ; i < j; i++ {
		out = append(out, PricePoint{Time: s.Times[i], Close: s.Closes[i]})
	}
	return out
}

// VolumeAt returns the volume at an exact timestamp
func (f *Feed) VolumeAt(symbol string, at time.Time) (decimal.Decimal, bool) {
	s, ok := f.series[strings.ToUpper(symbol)]
	if !ok || !f.rangeSet {
		return decimal.Zero, false
	}
	sym := s.Symbol
	lo, hi := f.lo[sym], f.hi[sym]
	i := sort.Search(hi-lo, func(i int) bool { return !s.Times[lo+i].Before(at) }) + lo
	if i >= hi || !s.Times[i].Equal(at) {
		return decimal.Zero, false
	}
	return volumeAt(s, i), true
}

func (f *Feed) buildUnionIndex() []time.Time {
	h := &timeHeap{}
	idx := make(map[string]int, len(f.symbols))
	for _, sym := range f.symbols {
		idx[sym] = f.lo[sym]
		if f.lo[sym] < f.hi[sym] {
			heap.Push(h, mergeEntry{t: f.series[sym].Times[f.lo[sym]], symbol: sym})
		}
	}
	var union []time.Time
	for h.Len() > 0 {
		entry, ok := heap.Pop(h).(mergeEntry)
		if !ok {
			break
		}
		if len(union) == 0 || !union[len(union)-1].Equal(entry.t) {
			union = append(union, entry.t)
		}
		next := idx[entry.symbol] + 1
		idx[entry.symbol] = next
		if next < f.hi[entry.symbol] {
			heap.Push(h, mergeEntry{t: f.series[entry.symbol].Times[next], symbol: entry.symbol})
		}
	}
	return union
}

func volumeAt(s *Series, i int) decimal.Decimal {
	if i >= len(s.Volumes) {
		return decimal.Zero
	}
	return s.Volumes[i]
}

type mergeEntry struct {
	t      time.Time
	symbol string
}

type timeHeap []mergeEntry

func (h timeHeap) Len() int { return len(h) }
func (h timeHeap) Less(i, j int) bool {
	if h[i].t.Equal(h[j].t) {
		return h[i].symbol < h[j].symbol
	}
	return h[i].t.Before(h[j].t)
}
func (h timeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timeHeap) Push(x any) {
	entry, ok := x.(mergeEntry)
	if !ok {
		return
	}
	*h = append(*h, entry)
}

func (h *timeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
