package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadCSV reads a per-symbol series from a csv file. The file must carry a
// header with at least timestamp and close columns; volume is optional.
func LoadCSV(path, symbol string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrData, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read header of %v: %v", ErrData, path, err)
	}
	tsCol, closeCol, volCol := -1, -1, -1
	for i := range header {
		switch strings.ToLower(strings.TrimSpace(header[i])) {
		case "timestamp", "date", "datetime":
			tsCol = i
		case "close":
			closeCol = i
		case "volume":
			volCol = i
		}
	}
	if tsCol == -1 {
		return nil, fmt.Errorf("%w %q in %v", ErrMissingColumn, "timestamp", path)
	}
	if closeCol == -1 {
		return nil, fmt.Errorf("%w %q in %v", ErrMissingColumn, "close", path)
	}

	s := &Series{Symbol: strings.ToUpper(symbol)}
	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v line %v: %v", ErrData, path, line, err)
		}
		t, err := parseTimestamp(record[tsCol])
		if err != nil {
			return nil, fmt.Errorf("%w: %v line %v: %v", ErrData, path, line, err)
		}
		c, err := decimal.NewFromString(record[closeCol])
		if err != nil || c.IsNegative() {
			return nil, fmt.Errorf("%w: %v line %v: bad close %q", ErrData, path, line, record[closeCol])
		}
		v := decimal.Zero
		if volCol != -1 && record[volCol] != "" {
			v, err = decimal.NewFromString(record[volCol])
			if err != nil {
				return nil, fmt.Errorf("%w: %v line %v: bad volume %q", ErrData, path, line, record[volCol])
			}
		}
		s.Times = append(s.Times, t)
		s.Closes = append(s.Closes, c)
		s.Volumes = append(s.Volumes, v)
	}
	if len(s.Times) == 0 {
		return nil, fmt.Errorf("%w: %v has no rows", ErrData, path)
	}
	return s, nil
}

func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for i := range timestampLayouts {
		if t, err := time.Parse(timestampLayouts[i], v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", v)
}
