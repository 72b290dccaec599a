package config

import "errors"

// ErrConfig is the base kind for every configuration failure. Runs never
// continue on partial defaults.
var ErrConfig = errors.New("config error")

// ExecConfig selects and parameterizes the execution model
type ExecConfig struct {
	Type        string  `mapstructure:"type"`
	Slices      int     `mapstructure:"slices"`
	Urgency     float64 `mapstructure:"urgency"`
	Commission  float64 `mapstructure:"commission"`
	PriceImpact float64 `mapstructure:"price_impact"`
	Lam         float64 `mapstructure:"lam"`

	BookLevels       int     `mapstructure:"book_levels"`
	LevelSize        int64   `mapstructure:"level_size"`
	TickSize         float64 `mapstructure:"tick_size"`
	MidPrice         float64 `mapstructure:"mid_price"`
	LatencyAck       float64 `mapstructure:"latency_ack"`
	LatencyAckJitter float64 `mapstructure:"latency_ack_jitter"`
	LatencyFill      float64 `mapstructure:"latency_fill"`
	LatencyFillJit   float64 `mapstructure:"latency_fill_jitter"`
	LOBTPlus1        *bool   `mapstructure:"lob_tplus1"`

	Slippage SlippageConfig `mapstructure:"slippage"`

	LimitMode              string  `mapstructure:"limit_mode"`
	QueueCoefficient       float64 `mapstructure:"queue_coefficient"`
	QueuePassiveMultiplier float64 `mapstructure:"queue_passive_multiplier"`
	QueueJitter            bool    `mapstructure:"queue_jitter"`
	MinFillQty             int64   `mapstructure:"min_fill_qty"`
	VolatilityLookback     int     `mapstructure:"volatility_lookback"`
}

// SlippageConfig selects the per share impact model
type SlippageConfig struct {
	Type   string  `mapstructure:"type"`
	Impact float64 `mapstructure:"impact"`
}

// StrategyConfig names the strategy and carries its custom settings
type StrategyConfig struct {
	Name   string         `mapstructure:"name"`
	Params map[string]any `mapstructure:"params"`
}

// RiskConfig carries the portfolio cap chain and sizing knobs
type RiskConfig struct {
	MaxExposure           float64            `mapstructure:"max_exposure"`
	MaxNetExposure        float64            `mapstructure:"max_net_exposure"`
	MaxSingleNameWeight   float64            `mapstructure:"max_single_name_weight"`
	MaxDrawdownStop       float64            `mapstructure:"max_drawdown_stop"`
	TurnoverCap           float64            `mapstructure:"turnover_cap"`
	KellyFraction         float64            `mapstructure:"kelly_fraction"`
	VolTargetAnnualized   float64            `mapstructure:"vol_target_annualized"`
	VolLookback           int                `mapstructure:"vol_lookback"`
	MaxPortfolioHeat      float64            `mapstructure:"max_portfolio_heat"`
	MaxPositionsPerSector int                `mapstructure:"max_positions_per_sector"`
	Sectors               map[string]string  `mapstructure:"sectors"`
	DefaultQty            int64              `mapstructure:"default_qty"`
}

// SymbolMetaConfig mirrors the optional symbol metadata table
type SymbolMetaConfig struct {
	ADV                float64 `mapstructure:"adv"`
	SpreadBps          float64 `mapstructure:"spread_bps"`
	BorrowFeeAnnualBps float64 `mapstructure:"borrow_fee_annual_bps"`
	VolatilityBps      float64 `mapstructure:"volatility_bps"`
}

// WalkForwardConfig sets the fold geometry
type WalkForwardConfig struct {
	Start        string `mapstructure:"start"`
	End          string `mapstructure:"end"`
	TrainingDays int    `mapstructure:"training_days"`
	TestingDays  int    `mapstructure:"testing_days"`
	// NonDegenerate rejects candidates that produced zero trades, zero
	// turnover or a flat equity curve
	NonDegenerate bool `mapstructure:"non_degenerate"`
	// WarmupBars is the per symbol history carried across the train/test
	// boundary
	WarmupBars int `mapstructure:"warmup_bars"`
}

// RealityCheckConfig parameterizes the bootstrap over the train grid
type RealityCheckConfig struct {
	Method      string  `mapstructure:"method"`
	BlockLength float64 `mapstructure:"block_length"`
	Samples     int     `mapstructure:"samples"`
}

// StoreConfig enables the optional sqlite run store
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Config is the full recognized option set
type Config struct {
	DataPath     string   `mapstructure:"data_path"`
	Symbol       string   `mapstructure:"symbol"`
	Symbols      []string `mapstructure:"symbols"`
	UniversePath string   `mapstructure:"universe_path"`
	Cash         float64  `mapstructure:"cash"`
	Seed         int64    `mapstructure:"seed"`
	HACLags      int      `mapstructure:"hac_lags"`

	Exec         ExecConfig                  `mapstructure:"exec"`
	Strategy     StrategyConfig              `mapstructure:"strategy"`
	Risk         RiskConfig                  `mapstructure:"risk"`
	Metadata     map[string]SymbolMetaConfig `mapstructure:"metadata"`
	WalkForward  *WalkForwardConfig          `mapstructure:"walkforward"`
	Grid         map[string][]any            `mapstructure:"grid"`
	RealityCheck RealityCheckConfig          `mapstructure:"reality_check"`
	Store        StoreConfig                 `mapstructure:"store"`

	ArtifactsDir string `mapstructure:"artifacts_dir"`

	// Path and SHA256 describe the canonical config bytes for the manifest
	Path   string `mapstructure:"-"`
	SHA256 string `mapstructure:"-"`
	Raw    []byte `mapstructure:"-"`
}
