package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Default().Validate())
}

func TestLoadFromFileYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gridbot.yaml")
	data := `
run:
  symbol: MSFT
  start_date: "2023-01-03"
  end_date: "2023-12-29"
  start_capital: 5000
grid:
  capital_pct: 50
  buy_below_pct: 3
  sell_above_pct: 15
  cash_floor: 100
  order_gap_pct: 2
cache:
  db_path: ./bars.db
  batch_delay: 100ms
journal:
  type: sqlite
  db_path: ./journal.db
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "MSFT", cfg.Run.Symbol)
	assert.Equal(t, 5000.0, cfg.Run.StartCapital)
	assert.Equal(t, 50.0, cfg.Grid.CapitalPct)
	assert.Equal(t, "sqlite", cfg.Journal.Type)

	delay, err := cfg.Cache.ParseBatchDelay()
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, delay)
}

func TestLoadFromFileJSONFallback(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gridbot.json")
	cfg := Default()
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Run, loaded.Run)
	assert.Equal(t, cfg.Grid, loaded.Grid)
	assert.Equal(t, cfg.Journal, loaded.Journal)
}

func TestSaveToFileYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gridbot.yml")
	cfg := Default()
	cfg.Run.Symbol = "NVDA"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "NVDA", loaded.Run.Symbol)
	assert.Equal(t, cfg.Grid, loaded.Grid)
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing symbol", func(c *Config) { c.Run.Symbol = "" }},
		{"bad start date", func(c *Config) { c.Run.StartDate = "01/02/2024" }},
		{"inverted window", func(c *Config) { c.Run.StartDate, c.Run.EndDate = c.Run.EndDate, c.Run.StartDate }},
		{"zero capital", func(c *Config) { c.Run.StartCapital = 0 }},
		{"bad grid pct", func(c *Config) { c.Grid.CapitalPct = 150 }},
		{"missing cache path", func(c *Config) { c.Cache.DBPath = "" }},
		{"bad batch delay", func(c *Config) { c.Cache.BatchDelay = "soon" }},
		{"unknown journal type", func(c *Config) { c.Journal.Type = "parquet" }},
		{"csv without paths", func(c *Config) { c.Journal.TradesFile = "" }},
		{"sqlite without path", func(c *Config) {
			c.Journal = JournalConfig{Type: "sqlite"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateJournalNoneNeedsNoPaths(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Journal = JournalConfig{Type: "none"}
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not: [valid"), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}
