package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gridtrading/gridbot/grid"
	"github.com/gridtrading/gridbot/market"
)

// Config represents the complete backtest configuration
type Config struct {
	Run     RunConfig     `json:"run" yaml:"run"`
	Grid    grid.Config   `json:"grid" yaml:"grid"`
	Cache   CacheConfig   `json:"cache" yaml:"cache"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
}

// RunConfig contains the run window and starting capital
type RunConfig struct {
	Symbol       string  `json:"symbol" yaml:"symbol"`
	Algorithm    string  `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	StartDate    string  `json:"start_date" yaml:"start_date"`
	EndDate      string  `json:"end_date" yaml:"end_date"`
	StartCapital float64 `json:"start_capital" yaml:"start_capital"`
}

// CacheConfig contains bar-cache parameters
type CacheConfig struct {
	DBPath     string `json:"db_path" yaml:"db_path"`
	ChunkDays  int    `json:"chunk_days,omitempty" yaml:"chunk_days,omitempty"`
	BatchSize  int    `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	BatchDelay string `json:"batch_delay,omitempty" yaml:"batch_delay,omitempty"` // e.g., "250ms", "1s"
}

// ParseBatchDelay converts the batch delay string to time.Duration
func (c CacheConfig) ParseBatchDelay() (time.Duration, error) {
	if c.BatchDelay == "" {
		return 0, nil
	}
	return time.ParseDuration(c.BatchDelay)
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoadFromFile loads configuration from a file (JSON or YAML based on content)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Run.Symbol == "" {
		return fmt.Errorf("run.symbol is required")
	}
	if _, err := market.ParseDate(c.Run.StartDate); err != nil {
		return fmt.Errorf("run.start_date: %w", err)
	}
	if _, err := market.ParseDate(c.Run.EndDate); err != nil {
		return fmt.Errorf("run.end_date: %w", err)
	}
	if market.Date(c.Run.EndDate).Before(market.Date(c.Run.StartDate)) {
		return fmt.Errorf("run.end_date must not precede run.start_date")
	}
	if c.Run.StartCapital <= 0 {
		return fmt.Errorf("run.start_capital must be positive")
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if c.Cache.DBPath == "" {
		return fmt.Errorf("cache.db_path is required")
	}
	if c.Cache.ChunkDays < 0 {
		return fmt.Errorf("cache.chunk_days must not be negative")
	}
	if c.Cache.BatchSize < 0 {
		return fmt.Errorf("cache.batch_size must not be negative")
	}
	if _, err := c.Cache.ParseBatchDelay(); err != nil {
		return fmt.Errorf("cache.batch_delay: %w", err)
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "none", "":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Symbol:       "AAPL",
			Algorithm:    "grid",
			StartDate:    "2024-01-02",
			EndDate:      "2024-06-28",
			StartCapital: 10000,
		},
		Grid: grid.Config{
			CapitalPct:      60,
			BuyBelowPct:     2,
			SellAbovePct:    18,
			BuyAfterSellPct: 2,
			CashFloor:       200,
			OrderGapPct:     1.5,
		},
		Cache: CacheConfig{
			DBPath:     "./bars.db",
			ChunkDays:  90,
			BatchSize:  5,
			BatchDelay: "250ms",
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
			EquityFile: "./equity.csv",
		},
	}
}
