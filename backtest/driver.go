package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridtrading/gridbot/cache"
	"github.com/gridtrading/gridbot/grid"
	"github.com/gridtrading/gridbot/internal/id"
	"github.com/gridtrading/gridbot/internal/metrics"
	"github.com/gridtrading/gridbot/market"
)

// RunState is the driver's lifecycle state.
type RunState string

const (
	StateBeforeStart RunState = "before-start"
	StateStepping    RunState = "stepping"
	StateFinished    RunState = "finished"
	StateCancelled   RunState = "cancelled"
)

// RunConfig describes one backtest run.
type RunConfig struct {
	Symbol       string
	Algorithm    string // empty selects the grid strategy
	StartDate    market.Date
	EndDate      market.Date
	StartCapital float64

	// Resume, when set, overrides the start-of-day clamp with an explicit
	// simulated timestamp inside the run window.
	Resume time.Time

	Grid grid.Config
}

func (c RunConfig) validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("end date %s precedes start date %s", c.EndDate, c.StartDate)
	}
	if c.StartCapital <= 0 {
		return fmt.Errorf("start capital must be positive, got %v", c.StartCapital)
	}
	return c.Grid.Validate()
}

// Result is the run summary. SimulationState itself is discarded with the
// run; everything a caller needs flows out here.
type Result struct {
	RunID string
	State RunState

	Cash      float64
	CashMax   float64
	Equity    float64
	EquityMax float64

	History    []grid.TradeEvent
	OpenTrades []grid.OpenTrade

	BarsProcessed int
	Elapsed       time.Duration
}

// Options tunes the driver.
type Options struct {
	// LookAheadDays controls how far past the first touch of an uncached
	// day the reconciler is asked to fill, so fetching happens in chunks
	// rather than day by day.
	LookAheadDays int

	// Now is the wall clock used for elapsed time and progress pacing —
	// never for strategy decisions. Injectable for tests.
	Now func() time.Time

	Logger *slog.Logger
}

// Driver steps simulated time minute by minute through cached bars,
// feeding the strategy and reporting throttled progress.
type Driver struct {
	recon *cache.Reconciler
	sink  Sink
	opts  Options
	log   *slog.Logger
}

func NewDriver(recon *cache.Reconciler, sink Sink, opts Options) *Driver {
	if opts.LookAheadDays <= 0 {
		opts.LookAheadDays = 30
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Driver{recon: recon, sink: sink, opts: opts, log: opts.Logger}
}

// Run executes one backtest. Cancellation is cooperative: it is checked at
// the top of every simulated minute and between fetch batches, never
// mid-mutation, and leaves persisted cache state intact.
func (d *Driver) Run(ctx context.Context, cfg RunConfig) (Result, error) {
	res := Result{RunID: id.New(), State: StateBeforeStart}

	if err := cfg.validate(); err != nil {
		return res, fmt.Errorf("invalid run config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		res.State = StateCancelled
		return res, err
	}

	// The driver owns the window-clamping policy: it backtests what can
	// exist, while the reconciler stays strict about caller bounds.
	if today := market.DateOf(d.opts.Now()); cfg.EndDate.After(today) {
		d.log.Info("clamping end to today", "symbol", cfg.Symbol, "end", cfg.EndDate, "today", today)
		cfg.EndDate = today
	}
	if first, err := d.recon.FirstAvailableDay(ctx, cfg.Symbol); err != nil {
		return res, err
	} else if !first.IsZero() && cfg.StartDate.Before(first) {
		d.log.Info("clamping start to first available day", "symbol", cfg.Symbol, "first", first)
		cfg.StartDate = first
	}
	if cfg.EndDate.Before(cfg.StartDate) {
		return res, fmt.Errorf("no simulatable window for %s: start %s, end %s", cfg.Symbol, cfg.StartDate, cfg.EndDate)
	}

	state := grid.NewSimulationState(cfg.StartCapital)
	exec := &grid.BacktestContext{State: state}

	simTime := market.OpenTime(cfg.StartDate)
	if !cfg.Resume.IsZero() && cfg.Resume.After(simTime) {
		simTime = cfg.Resume.UTC()
		if market.SecondOfDay(simTime) < market.OpenSecond {
			simTime = market.OpenTime(market.DateOf(simTime))
		}
	}
	endTime := market.CloseTime(cfg.EndDate)

	strat, known := grid.ForAlgorithm(cfg.Algorithm, cfg.Grid, exec, state, simTime)
	em := newEmitter(d.sink, d.opts.Now)
	if !known {
		// Historically a silent no-op run; surfaced as a warning but
		// deliberately not an error.
		d.log.Warn("unknown algorithm, run will be a no-op", "algorithm", cfg.Algorithm)
		em.emit(StageWarning, fmt.Sprintf("unknown algorithm %q: no trades will be generated", cfg.Algorithm), 0, 1)
	}

	est := newEstimator(simTime, endTime)
	wallStart := d.opts.Now()
	res.State = StateStepping

	loaded := make(map[market.Date]*market.DayBlob)
	calendarDays := cfg.StartDate.DaysUntil(cfg.EndDate) + 1
	daysFetched := 0
	onDayReady := func(b market.DayBlob) {
		daysFetched++
		em.emit(StageFetching, fmt.Sprintf("cached %s %s", b.Symbol, b.Day), daysFetched, calendarDays)
	}

	currentDay := market.Date("")

	for {
		if ctx.Err() != nil {
			res.State = StateCancelled
			d.finish(&res, state, est.processed, wallStart)
			return res, ctx.Err()
		}
		if !simTime.Before(endTime) {
			break
		}

		day := market.DateOf(simTime)
		if day != currentDay {
			currentDay = day
			est.reestimate(simTime)
		}

		blob, ok := loaded[day]
		if !ok {
			if err := d.ensureThrough(ctx, cfg, day, loaded, onDayReady); err != nil {
				d.finish(&res, state, est.processed, wallStart)
				return res, err
			}
			blob = loaded[day]
		}

		// A day with no market activity is not worth stepping through.
		if blob == nil || blob.Empty() {
			simTime = market.OpenTime(day.Next())
			continue
		}

		if close, found := blob.CloseAt(market.SecondOfDay(simTime)); found {
			if err := strat.OnBar(close, simTime); err != nil {
				d.finish(&res, state, est.processed, wallStart)
				return res, fmt.Errorf("strategy failed at %s: %w", simTime, err)
			}
			est.processed++
			metrics.BarsProcessed.Inc()
			em.emit(StageStepping, "", est.processed, est.total)
		}

		simTime = simTime.Add(time.Minute)
		if market.SecondOfDay(simTime) >= market.CloseSecond {
			simTime = market.OpenTime(day.Next())
		}
	}

	res.State = StateFinished
	d.finish(&res, state, est.processed, wallStart)

	total := est.processed
	if total < 1 {
		total = 1
		// A run with zero bars still completes; emit 100% against a
		// non-zero denominator.
	}
	em.emit(StageStepping, "backtest complete", total, total)

	d.log.Info("backtest finished",
		"run_id", res.RunID, "symbol", cfg.Symbol,
		"bars", res.BarsProcessed, "trades", len(res.History),
		"cash", res.Cash, "equity", res.Equity, "elapsed", res.Elapsed)
	return res, nil
}

// ensureThrough asks the reconciler for [day, day+lookahead] and indexes
// the returned blobs. Days the reconciler did not return (before the
// symbol's first available day) are marked absent so they are skipped, not
// re-requested.
func (d *Driver) ensureThrough(ctx context.Context, cfg RunConfig, day market.Date, loaded map[market.Date]*market.DayBlob, onDayReady func(market.DayBlob)) error {
	chunkEnd := market.MinDate(day.AddDays(d.opts.LookAheadDays-1), cfg.EndDate)

	blobs, err := d.recon.EnsureRange(ctx, cfg.Symbol, day, chunkEnd, onDayReady)
	if err != nil {
		// First-day discovery may reveal the whole chunk predates the
		// symbol's listing; those days are simply absent, not an error.
		var rangeErr *cache.RangeError
		if errors.As(err, &rangeErr) {
			if first, ferr := d.recon.FirstAvailableDay(ctx, cfg.Symbol); ferr == nil && !first.IsZero() && chunkEnd.Before(first) {
				for dd := day; !dd.After(chunkEnd); dd = dd.Next() {
					loaded[dd] = nil
				}
				return nil
			}
		}
		return err
	}

	for dd := day; !dd.After(chunkEnd); dd = dd.Next() {
		loaded[dd] = nil
	}
	for i := range blobs {
		loaded[blobs[i].Day] = &blobs[i]
	}
	return nil
}

func (d *Driver) finish(res *Result, state *grid.SimulationState, processed int, wallStart time.Time) {
	res.Cash = state.Cash
	res.CashMax = state.CashMax
	res.Equity = state.Equity
	res.EquityMax = state.EquityMax
	res.History = state.History
	res.OpenTrades = state.OpenTrades
	res.BarsProcessed = processed
	res.Elapsed = d.opts.Now().Sub(wallStart)
}
