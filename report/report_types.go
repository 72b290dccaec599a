package report

// Version identifies the library build recorded in every manifest
const Version = "1.0.0"

// Manifest is the reproducibility record written alongside every run
type Manifest struct {
	RunID         string         `json:"run_id"`
	GitSHA        string         `json:"git_sha"`
	Version       string         `json:"version"`
	GoVersion     string         `json:"go_version"`
	Platform      string         `json:"platform"`
	Host          string         `json:"host"`
	Seed          int64          `json:"seed"`
	ConfigPath    string         `json:"config_path"`
	ConfigSHA256  string         `json:"config_sha256"`
	ConfigSummary map[string]any `json:"config_summary"`
	RunInvalid    bool           `json:"run_invalid"`
}

// Integrity is the post run reconciliation verdict
type Integrity struct {
	OK      bool              `json:"ok"`
	Reasons []string          `json:"reasons"`
	Details map[string]string `json:"details"`
}

// tradeLine is the stable trades.jsonl row shape
type tradeLine struct {
	Timestamp   string `json:"timestamp"`
	OrderID     string `json:"order_id,omitempty"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Qty         int64  `json:"qty"`
	Price       string `json:"price"`
	Commission  string `json:"commission"`
	Slippage    string `json:"slippage"`
	Inventory   int64  `json:"inventory"`
	Cash        string `json:"cash"`
	RealizedPNL string `json:"realized_pnl"`
}
