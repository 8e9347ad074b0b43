package backtest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridtrading/gridbot/cache"
	"github.com/gridtrading/gridbot/grid"
	"github.com/gridtrading/gridbot/market"
)

// scriptedSource serves a per-day price script; weekdays without a script
// entry trade flat at basePrice, days before firstDay (and weekends) are
// non-trading.
type scriptedSource struct {
	mu        sync.Mutex
	firstDay  market.Date
	basePrice float64
	script    map[market.Date]float64
	fetches   int
}

func (s *scriptedSource) FetchDayBars(_ context.Context, _ string, day market.Date) ([]market.Bar, error) {
	s.mu.Lock()
	s.fetches++
	price, scripted := s.script[day]
	s.mu.Unlock()

	if day.Before(s.firstDay) || day.IsWeekend() {
		return nil, cache.ErrNotTradingDay
	}
	if !scripted {
		price = s.basePrice
	}

	open := market.OpenTime(day)
	bars := make([]market.Bar, market.TradingMinutesPerDay)
	for i := range bars {
		ts := open.Add(time.Duration(i) * time.Minute)
		bars[i] = market.Bar{Timestamp: ts, Open: price, High: price, Low: price, Close: price, VWAP: price, Volume: 500}
	}
	return bars, nil
}

func (s *scriptedSource) FetchSplits(context.Context, string) ([]market.SplitInfo, error) {
	return nil, nil
}

func testNow() time.Time {
	return time.Date(2024, 6, 28, 22, 0, 0, 0, time.UTC)
}

func newTestDriver(t *testing.T, src cache.BarSource, sink Sink) *Driver {
	t.Helper()

	store, err := cache.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.UpsertSymbolRange(context.Background(), &cache.SymbolRange{
		Symbol:         "AAPL",
		FirstDay:       "2024-01-02",
		LastSplitCheck: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}))

	recon := cache.NewReconciler(store, src, cache.Options{
		BatchDelay: time.Millisecond,
		Now:        testNow,
	})
	return NewDriver(recon, sink, Options{Now: testNow})
}

func gridConfig() grid.Config {
	return grid.Config{
		CapitalPct:   60,
		BuyBelowPct:  2,
		SellAbovePct: 18,
		CashFloor:    200,
		OrderGapPct:  1.5,
	}
}

func TestRunFlatWeekEndsFlat(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{firstDay: "2024-01-02", basePrice: 50}
	var events []Event
	d := newTestDriver(t, src, func(ev Event) { events = append(events, ev) })

	res, err := d.Run(context.Background(), RunConfig{
		Symbol:       "AAPL",
		StartDate:    "2024-06-03",
		EndDate:      "2024-06-07",
		StartCapital: 1000,
		Grid:         gridConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, StateFinished, res.State)
	assert.Equal(t, 5*market.TradingMinutesPerDay, res.BarsProcessed)
	assert.Equal(t, 1000.0, res.Cash)
	assert.Equal(t, 1000.0, res.Equity)
	assert.Empty(t, res.History)
	assert.NotEmpty(t, res.RunID)

	// The final event always reports completion.
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, 100.0, last.Data.Progress)
}

func TestRunDipTriggersRoundTrip(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{
		firstDay:  "2024-01-02",
		basePrice: 50,
		script: map[market.Date]float64{
			"2024-06-04": 48.9, // fires the $49 buy trigger
			"2024-06-06": 58,   // fires the ≈$57.70 sell trigger
		},
	}
	d := newTestDriver(t, src, nil)

	res, err := d.Run(context.Background(), RunConfig{
		Symbol:       "AAPL",
		StartDate:    "2024-06-03",
		EndDate:      "2024-06-07",
		StartCapital: 1000,
		Grid:         gridConfig(),
	})
	require.NoError(t, err)

	// Buy the dip, sell the rally, then the re-entry trigger buys back in
	// on the next bar of the rally day.
	require.Len(t, res.History, 3)
	assert.Equal(t, grid.SideBuy, res.History[0].Side)
	assert.Equal(t, 48.9, res.History[0].Price)
	assert.Equal(t, grid.SideSell, res.History[1].Side)
	assert.Equal(t, 58.0, res.History[1].Price)
	assert.Equal(t, grid.SideBuy, res.History[2].Side)

	// Sold 600/48.9 shares at 58, then redeployed 60% of that cash.
	cashAfterSell := 400.0 + (600.0/48.9)*58
	wantCash := cashAfterSell * 0.4
	assert.InDelta(t, wantCash, res.Cash, 1e-9)

	require.Len(t, res.OpenTrades, 1)
	reentryShares := cashAfterSell * 0.6 / 58
	assert.InDelta(t, reentryShares, res.OpenTrades[0].Shares, 1e-9)

	// Final mark is the 50 close of the last day.
	assert.InDelta(t, wantCash+reentryShares*50, res.Equity, 1e-9)
	assert.Greater(t, res.EquityMax, 1000.0)
}

func TestRunSkipsNonTradingDays(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{firstDay: "2024-01-02", basePrice: 50}
	d := newTestDriver(t, src, nil)

	// Saturday through Monday: only Monday trades.
	res, err := d.Run(context.Background(), RunConfig{
		Symbol:       "AAPL",
		StartDate:    "2024-06-01",
		EndDate:      "2024-06-03",
		StartCapital: 1000,
		Grid:         gridConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, market.TradingMinutesPerDay, res.BarsProcessed)
}

func TestRunResumeTimestamp(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{firstDay: "2024-01-02", basePrice: 50}
	d := newTestDriver(t, src, nil)

	// Resume halfway through the only day: half the bars.
	res, err := d.Run(context.Background(), RunConfig{
		Symbol:       "AAPL",
		StartDate:    "2024-06-03",
		EndDate:      "2024-06-03",
		StartCapital: 1000,
		Resume:       time.Date(2024, 6, 3, 16, 45, 0, 0, time.UTC),
		Grid:         gridConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, market.TradingMinutesPerDay/2, res.BarsProcessed)
}

func TestRunCancellation(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{firstDay: "2024-01-02", basePrice: 50}
	d := newTestDriver(t, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := d.Run(ctx, RunConfig{
		Symbol:       "AAPL",
		StartDate:    "2024-06-03",
		EndDate:      "2024-06-07",
		StartCapital: 1000,
		Grid:         gridConfig(),
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, res.State)
}

func TestRunUnknownAlgorithmWarnsAndNoops(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{firstDay: "2024-01-02", basePrice: 50}
	var events []Event
	d := newTestDriver(t, src, func(ev Event) { events = append(events, ev) })

	res, err := d.Run(context.Background(), RunConfig{
		Symbol:       "AAPL",
		Algorithm:    "momentum-ml",
		StartDate:    "2024-06-03",
		EndDate:      "2024-06-04",
		StartCapital: 1000,
		Grid:         gridConfig(),
	})
	require.NoError(t, err)

	assert.Empty(t, res.History)
	assert.Equal(t, 1000.0, res.Cash)

	var warned bool
	for _, ev := range events {
		if ev.Stage == StageWarning {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRunInvalidConfigFailsFast(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{firstDay: "2024-01-02", basePrice: 50}
	d := newTestDriver(t, src, nil)

	cfg := RunConfig{
		Symbol:       "AAPL",
		StartDate:    "2024-06-03",
		EndDate:      "2024-06-07",
		StartCapital: 1000,
		Grid:         gridConfig(),
	}
	cfg.Grid.CapitalPct = 0

	_, err := d.Run(context.Background(), cfg)
	require.Error(t, err)
	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Zero(t, src.fetches, "invalid config must not fetch")
}

func TestRunSecondPassHitsCache(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{firstDay: "2024-01-02", basePrice: 50}
	d := newTestDriver(t, src, nil)

	cfg := RunConfig{
		Symbol:       "AAPL",
		StartDate:    "2024-06-03",
		EndDate:      "2024-06-07",
		StartCapital: 1000,
		Grid:         gridConfig(),
	}

	_, err := d.Run(context.Background(), cfg)
	require.NoError(t, err)
	src.mu.Lock()
	fetched := src.fetches
	src.mu.Unlock()
	require.Positive(t, fetched)

	res, err := d.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, StateFinished, res.State)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, fetched, src.fetches, "second run must be served from cache")
}
