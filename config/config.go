package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	validExecTypes    = []string{"instant", "twap", "vwap", "is", "sqrt", "kyle", "lob"}
	validSlippage     = []string{"", "volume_squared", "linear", "sqrt", "linear_sqrt", "kyle"}
	validLimitModes   = []string{"", "IOC", "PO"}
	validRealityCheck = []string{"", "stationary", "circular", "iid"}
)

// Load reads, validates and hashes a config file. The SHA-256 of the raw
// bytes is recorded so the manifest can prove which config produced a run.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err = v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: could not parse %v: %v", ErrConfig, path, err)
	}

	var c Config
	if err = v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if c.Exec.Type == "" {
		c.Exec.Type = "instant"
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	c.Path = abs
	c.Raw = raw
	sum := sha256.Sum256(raw)
	c.SHA256 = hex.EncodeToString(sum[:])

	if err = c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate enforces the schema. Unknown enum values are fatal, never
// silently defaulted.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("%w: data_path is required", ErrConfig)
	}
	if len(c.SymbolList()) == 0 {
		return fmt.Errorf("%w: symbol or symbols is required", ErrConfig)
	}
	if c.Cash <= 0 {
		return fmt.Errorf("%w: cash must be positive", ErrConfig)
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("%w: strategy.name is required", ErrConfig)
	}
	if !contains(validExecTypes, strings.ToLower(c.Exec.Type)) {
		return fmt.Errorf("%w: unknown exec type %q", ErrConfig, c.Exec.Type)
	}
	if !contains(validSlippage, strings.ToLower(c.Exec.Slippage.Type)) {
		return fmt.Errorf("%w: unknown slippage type %q", ErrConfig, c.Exec.Slippage.Type)
	}
	if !contains(validLimitModes, strings.ToUpper(c.Exec.LimitMode)) {
		return fmt.Errorf("%w: invalid limit_mode %q, want IOC or PO", ErrConfig, c.Exec.LimitMode)
	}
	if !contains(validRealityCheck, strings.ToLower(c.RealityCheck.Method)) {
		return fmt.Errorf("%w: unknown reality_check method %q", ErrConfig, c.RealityCheck.Method)
	}
	if c.RealityCheck.BlockLength < 0 {
		return fmt.Errorf("%w: reality_check block_length must not be negative", ErrConfig)
	}
	if c.WalkForward != nil {
		wf := c.WalkForward
		if wf.TrainingDays <= 0 || wf.TestingDays <= 0 {
			return fmt.Errorf("%w: walkforward training_days and testing_days must be positive", ErrConfig)
		}
		if _, err := wf.StartTime(); err != nil {
			return err
		}
		if _, err := wf.EndTime(); err != nil {
			return err
		}
	}
	return nil
}

// SymbolList normalizes the single and multi symbol forms
func (c *Config) SymbolList() []string {
	if len(c.Symbols) > 0 {
		return c.Symbols
	}
	if c.Symbol != "" {
		return []string{c.Symbol}
	}
	return nil
}

// Summary returns the fields worth echoing into the manifest: the caps and
// cost model that shaped the run
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"strategy":          c.Strategy.Name,
		"exec_type":         c.Exec.Type,
		"slippage_type":     c.Exec.Slippage.Type,
		"commission":        c.Exec.Commission,
		"max_exposure":      c.Risk.MaxExposure,
		"max_drawdown_stop": c.Risk.MaxDrawdownStop,
		"turnover_cap":      c.Risk.TurnoverCap,
		"kelly_fraction":    c.Risk.KellyFraction,
		"symbols":           c.SymbolList(),
		"cash":              c.Cash,
	}
}

// StartTime parses the walk-forward start date
func (w *WalkForwardConfig) StartTime() (time.Time, error) {
	return parseDate(w.Start, "walkforward.start")
}

// EndTime parses the walk-forward end date
func (w *WalkForwardConfig) EndTime() (time.Time, error) {
	return parseDate(w.End, "walkforward.end")
}

func parseDate(s, field string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %v %q is not a date", ErrConfig, field, s)
}

func contains(list []string, v string) bool {
	for i := range list {
		if list[i] == v {
			return true
		}
	}
	return false
}
