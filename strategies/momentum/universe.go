package momentum

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foldline/backtester/data"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadUniverseCSV reads a universe snapshot table keyed by rebalance date.
// Required columns: date, symbol, sector, adv_20, close. Optional:
// market_cap_proxy. Snapshots come back in ascending date order.
func LoadUniverseCSV(path string) (Universe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", data.ErrData, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read header of %v: %v", data.ErrData, path, err)
	}
	cols := map[string]int{}
	for i := range header {
		cols[strings.ToLower(strings.TrimSpace(header[i]))] = i
	}
	for _, required := range []string{"date", "symbol", "sector", "adv_20", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w %q in %v", data.ErrMissingColumn, required, path)
		}
	}

	byDate := make(map[time.Time][]UniverseRow)
	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v line %v: %v", data.ErrData, path, line, err)
		}
		t, err := parseDate(record[cols["date"]])
		if err != nil {
			return nil, fmt.Errorf("%w: %v line %v: %v", data.ErrData, path, line, err)
		}
		adv, err := decimal.NewFromString(record[cols["adv_20"]])
		if err != nil {
			return nil, fmt.Errorf("%w: %v line %v: bad adv_20 %q", data.ErrData, path, line, record[cols["adv_20"]])
		}
		px, err := decimal.NewFromString(record[cols["close"]])
		if err != nil {
			return nil, fmt.Errorf("%w: %v line %v: bad close %q", data.ErrData, path, line, record[cols["close"]])
		}
		row := UniverseRow{
			Symbol: strings.ToUpper(strings.TrimSpace(record[cols["symbol"]])),
			Sector: strings.TrimSpace(record[cols["sector"]]),
			ADV20:  adv,
			Close:  px,
		}
		if i, ok := cols["market_cap_proxy"]; ok && record[i] != "" {
			row.MarketCapProxy, _ = strconv.ParseFloat(record[i], 64)
		}
		byDate[t] = append(byDate[t], row)
	}
	if len(byDate) == 0 {
		return nil, fmt.Errorf("%w: %v has no rows", data.ErrData, path)
	}

	u := make(Universe, 0, len(byDate))
	for t, rows := range byDate {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
		u = append(u, Snapshot{Date: t, Rows: rows})
	}
	sort.Slice(u, func(i, j int) bool { return u[i].Date.Before(u[j].Date) })
	return u, nil
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for i := range dateLayouts {
		if t, err := time.Parse(dateLayouts[i], v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", v)
}
