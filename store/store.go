// Package store persists runs and their trades to a sqlite database so
// results can be compared across research sessions
package store

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/foldline/backtester/portfolio"
)

// Run is one persisted backtest run
type Run struct {
	ID           string `gorm:"primaryKey"`
	ConfigSHA256 string
	Seed         int64
	FinalEquity  string
	MetricsJSON  string
	CreatedAt    time.Time
}

// Trade is one persisted fill belonging to a run
type Trade struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RunID       string `gorm:"index"`
	Timestamp   time.Time
	OrderID     string
	Symbol      string
	Side        string
	Qty         int64
	Price       string
	Commission  string
	Slippage    string
	Inventory   int64
	Cash        string
	RealizedPNL string
}

// Store wraps the database handle and the active run
type Store struct {
	db    *gorm.DB
	runID string
}

// Open connects to the sqlite file and migrates the schema
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, err
	}
	if err = db.AutoMigrate(&Run{}, &Trade{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// BeginRun records the run row and scopes subsequent trades to it
func (s *Store) BeginRun(runID, configSHA string, seed int64) error {
	s.runID = runID
	return s.db.Create(&Run{
		ID:           runID,
		ConfigSHA256: configSHA,
		Seed:         seed,
		CreatedAt:    time.Now().UTC(),
	}).Error
}

// LogTrade satisfies the portfolio's trade logger interface
func (s *Store) LogTrade(t *portfolio.TradeRecord) error {
	return s.db.Create(&Trade{
		RunID:       s.runID,
		Timestamp:   t.Time,
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
	}).Error
}

// FinishRun stores the run outcome
func (s *Store) FinishRun(finalEquity decimal.Decimal, metricsJSON []byte) error {
	return s.db.Model(&Run{ID: s.runID}).Updates(map[string]any{
		"final_equity": finalEquity.String(),
		"metrics_json": string(metricsJSON),
	}).Error
}

// Close releases the underlying connection
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
