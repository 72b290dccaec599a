package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/foldline/backtester/portfolio"
	"github.com/foldline/backtester/statistics"
	"github.com/foldline/backtester/walkforward"
)

// NewRunDir creates the artifacts directory for one run. The run id is
// the start timestamp plus the short git SHA; a numeric suffix
// disambiguates collisions.
func NewRunDir(base string, now time.Time) (dir, runID string, err error) {
	if err = os.MkdirAll(base, 0o755); err != nil {
		return "", "", err
	}
	runID = now.Format("20060102-150405") + "-" + shortGitSHA()
	dir = filepath.Join(base, runID)
	for i := 1; ; i++ {
		if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
			break
		}
		dir = filepath.Join(base, fmt.Sprintf("%s-%d", runID, i))
	}
	runID = filepath.Base(dir)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return dir, runID, nil
}

// NewManifest fills in the environment facts of a run
func NewManifest(runID string, seed int64, configPath, configSHA string, summary map[string]any) *Manifest {
	host, _ := os.Hostname()
	return &Manifest{
		RunID:         runID,
		GitSHA:        gitSHA(),
		Version:       Version,
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		Host:          host,
		Seed:          seed,
		ConfigPath:    configPath,
		ConfigSHA256:  configSHA,
		ConfigSummary: summary,
	}
}

// WriteManifest persists manifest.json
func WriteManifest(dir string, m *Manifest) error {
	return writeJSON(filepath.Join(dir, "manifest.json"), m)
}

// WriteMetrics persists metrics.json. Map keys marshal sorted so two runs
// of the same config produce byte identical output.
func WriteMetrics(dir string, metrics statistics.Summary) error {
	return writeJSON(filepath.Join(dir, "metrics.json"), metrics)
}

// WriteEquityCurve persists equity_curve.csv with one row per market event
func WriteEquityCurve(dir string, curve []portfolio.EquityRecord) error {
	f, err := os.Create(filepath.Join(dir, "equity_curve.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err = w.Write([]string{"timestamp", "equity", "exposure", "gross_exposure", "num_positions", "concentration", "returns"}); err != nil {
		return err
	}
	for i := range curve {
		rec := curve[i]
		row := []string{
			rec.Time.UTC().Format(time.RFC3339),
			rec.Equity.String(),
			formatFloat(rec.Exposure),
			formatFloat(rec.GrossExposure),
			strconv.Itoa(rec.NumPositions),
			formatFloat(rec.Concentration),
			formatFloat(rec.Returns),
		}
		if err = w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteTrades persists trades.jsonl, one line per fill in event order
func WriteTrades(dir string, trades []*portfolio.TradeRecord) error {
	f, err := os.Create(filepath.Join(dir, "trades.jsonl"))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, t := range trades {
		line := tradeLine{
			Timestamp:   t.Time.UTC().Format(time.RFC3339),
			OrderID:     t.OrderID,
			Symbol:      t.Symbol,
			Side:        string(t.Side),
			Qty:         t.Qty,
			Price:       t.Price.String(),
			Commission:  t.Commission.String(),
			Slippage:    t.Slippage.String(),
			Inventory:   t.Inventory,
			Cash:        t.Cash.String(),
			RealizedPNL: t.RealizedPNL.String(),
		}
		if err = enc.Encode(&line); err != nil {
			return err
		}
	}
	return nil
}

// WriteFolds persists the per fold walk-forward records
func WriteFolds(dir string, folds []walkforward.FoldResult) error {
	return writeJSON(filepath.Join(dir, "folds.json"), folds)
}

// WriteBootstrap persists the per fold bootstrap distributions
func WriteBootstrap(dir string, folds []walkforward.FoldResult) error {
	out := make([]walkforward.RealityCheck, 0, len(folds))
	for i := range folds {
		out = append(out, folds[i].RealityCheck)
	}
	return writeJSON(filepath.Join(dir, "bootstrap.json"), out)
}

// WriteIntegrity persists integrity.json
func WriteIntegrity(dir string, integrity *Integrity) error {
	return writeJSON(filepath.Join(dir, "integrity.json"), integrity)
}

// CopyConfig writes the raw config bytes next to the other artifacts
func CopyConfig(dir, originalPath string, raw []byte) error {
	name := filepath.Base(originalPath)
	if name == "" || name == "." {
		name = "config.yaml"
	}
	return os.WriteFile(filepath.Join(dir, name), raw, 0o644)
}

func writeJSON(path string, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(out, '\n'), 0o644)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}

func gitSHA() string {
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func shortGitSHA() string {
	sha := gitSHA()
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
