package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioConfig() Config {
	return Config{
		CapitalPct:   60,
		BuyBelowPct:  2,
		SellAbovePct: 18,
		CashFloor:    200,
		OrderGapPct:  1.5,
	}
}

func newTestStrategy(t *testing.T, cfg Config, startCapital float64) (*GridStrategy, *SimulationState) {
	t.Helper()
	require.NoError(t, cfg.Validate())

	state := NewSimulationState(startCapital)
	exec := &BacktestContext{State: state}
	start := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	return NewGridStrategy(cfg, exec, state, start), state
}

func stepBars(t *testing.T, s Strategy, prices []float64) {
	t.Helper()
	ts := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	for _, p := range prices {
		require.NoError(t, s.OnBar(p, ts))
		ts = ts.Add(time.Minute)
	}
}

func TestFlatSeriesNeverTrades(t *testing.T) {
	t.Parallel()

	strat, state := newTestStrategy(t, scenarioConfig(), 1000)

	// Ten trading days of a flat $50 tape.
	prices := make([]float64, 10*390)
	for i := range prices {
		prices[i] = 50
	}
	stepBars(t, strat, prices)

	require.Len(t, state.Book.Buys, 1)
	assert.Equal(t, 49.0, state.Book.Buys[0].AtPrice) // 50 * (1 - 2%)
	assert.Empty(t, state.OpenTrades)
	assert.Empty(t, state.History)
	assert.Equal(t, 1000.0, state.Cash)
	assert.Equal(t, 1000.0, state.Equity)
}

func TestDropFiresInitialBuy(t *testing.T) {
	t.Parallel()

	strat, state := newTestStrategy(t, scenarioConfig(), 1000)
	stepBars(t, strat, []float64{50, 48.9})

	// $49 trigger fired once at $48.9: spend 60% of cash.
	assert.Equal(t, 400.0, state.Cash)
	require.Len(t, state.OpenTrades, 1)
	lot := state.OpenTrades[0]
	assert.InDelta(t, 600.0/48.9, lot.Shares, 1e-12)
	assert.Equal(t, 48.9, lot.Price)

	require.Len(t, state.History, 1)
	assert.Equal(t, SideBuy, state.History[0].Side)

	// Grid rebuilt around the fill.
	require.Len(t, state.Book.Buys, 1)
	assert.InDelta(t, 48.9*0.98, state.Book.Buys[0].AtPrice, 1e-12) // ≈47.92
	require.Len(t, state.Book.Sells, 1)
	sell := state.Book.Sells[0]
	assert.InDelta(t, 48.9*1.18, sell.AtPrice, 1e-12) // ≈57.70
	assert.Equal(t, lot.ID, sell.TradeID)
	assert.Equal(t, lot.Shares, sell.Shares)

	// Equity is marked at the bar price; the buy itself moves no equity.
	assert.InDelta(t, 400.0+lot.Shares*48.9, state.Equity, 1e-9)
}

func TestCashFloorBlocksBuys(t *testing.T) {
	t.Parallel()

	cfg := scenarioConfig()
	cfg.CashFloor = 500 // 1000 - 600 = 400 < 500: rejected
	strat, state := newTestStrategy(t, cfg, 1000)

	stepBars(t, strat, []float64{50, 48.9, 48.9, 48.9})

	assert.Empty(t, state.OpenTrades)
	assert.Empty(t, state.History)
	assert.Equal(t, 1000.0, state.Cash)
	// The rejected trigger is still pending.
	require.Len(t, state.Book.Buys, 1)
	assert.Equal(t, 49.0, state.Book.Buys[0].AtPrice)
}

func TestSellClosesLotAndReenters(t *testing.T) {
	t.Parallel()

	strat, state := newTestStrategy(t, scenarioConfig(), 1000)

	stepBars(t, strat, []float64{50, 48.9})
	require.Len(t, state.OpenTrades, 1)
	shares := state.OpenTrades[0].Shares

	// Rally through the sell trigger at ≈57.70.
	stepBars(t, strat, []float64{58})

	assert.Empty(t, state.OpenTrades)
	assert.Empty(t, state.Book.Sells)
	assert.InDelta(t, 400.0+shares*58, state.Cash, 1e-9)

	require.Len(t, state.History, 2)
	assert.Equal(t, SideSell, state.History[1].Side)

	// Re-entry trigger above the sell price joins the grid.
	var hasReentry bool
	for _, b := range state.Book.Buys {
		if b.AtPrice == 58.0 { // buy_after_sell_pct defaults to 0
			hasReentry = true
		}
	}
	assert.True(t, hasReentry)
}

func TestBuyAfterSellSpawnsAbove(t *testing.T) {
	t.Parallel()

	cfg := scenarioConfig()
	cfg.BuyAfterSellPct = 3
	strat, state := newTestStrategy(t, cfg, 1000)

	stepBars(t, strat, []float64{50, 48.9, 58})

	var prices []float64
	for _, b := range state.Book.Buys {
		prices = append(prices, b.AtPrice)
	}
	assert.Contains(t, prices, 58*1.03)
}

func TestContributionsAccrueOnSchedule(t *testing.T) {
	t.Parallel()

	cfg := scenarioConfig()
	cfg.ContributionAmount = 100
	cfg.ContributionDays = 7
	strat, state := newTestStrategy(t, cfg, 1000)

	start := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC)
	require.NoError(t, strat.OnBar(50, start))
	assert.Equal(t, 1000.0, state.Cash)

	// A bar two intervals later catches up both contributions.
	require.NoError(t, strat.OnBar(50, start.AddDate(0, 0, 15)))
	assert.Equal(t, 1200.0, state.Cash)
	assert.Equal(t, 1200.0, state.Equity)
}

func TestDeterministicHistory(t *testing.T) {
	t.Parallel()

	prices := []float64{50, 48.9, 47.9, 46.8, 58, 59, 50, 48.5}

	run := func() ([]TradeEvent, float64, float64) {
		strat, state := newTestStrategy(t, scenarioConfig(), 1000)
		stepBars(t, strat, prices)
		return state.History, state.Cash, state.Equity
	}

	h1, c1, e1 := run()
	h2, c2, e2 := run()

	assert.Equal(t, h1, h2)
	assert.Equal(t, c1, c2)
	assert.Equal(t, e1, e2)
	assert.NotEmpty(t, h1)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"join disabled", func(c *Config) { c.OrderGapPct = -1 }, false},
		{"zero capital", func(c *Config) { c.CapitalPct = 0 }, true},
		{"capital above 100", func(c *Config) { c.CapitalPct = 150 }, true},
		{"negative floor", func(c *Config) { c.CashFloor = -1 }, true},
		{"bad gap", func(c *Config) { c.OrderGapPct = -2 }, true},
		{"zero buy below", func(c *Config) { c.BuyBelowPct = 0 }, true},
		{"contribution without interval", func(c *Config) { c.ContributionAmount = 50 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := scenarioConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUnknownAlgorithmIsNoop(t *testing.T) {
	t.Parallel()

	state := NewSimulationState(1000)
	exec := &BacktestContext{State: state}
	strat, ok := ForAlgorithm("martingale", scenarioConfig(), exec, state, time.Now())

	assert.False(t, ok)
	require.NoError(t, strat.OnBar(50, barTime))
	assert.Empty(t, state.Book.Buys)
	assert.Equal(t, 1000.0, state.Cash)
}
