package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridtrading/gridbot/internal/metrics"
	"github.com/gridtrading/gridbot/market"
)

// Options tunes the reconciler's fetch behavior. Zero values take defaults.
type Options struct {
	// ChunkDays is the size of the fetch window the reconciler works
	// through at a time when filling a gap.
	ChunkDays int

	// BatchSize caps how many day fetches run concurrently inside a
	// chunk; BatchDelay is the mandatory pause between batches so the
	// upstream rate limit is respected.
	BatchSize  int
	BatchDelay time.Duration

	// ProbeLimit bounds first-available-day discovery iterations.
	ProbeLimit int

	// EarliestProbe is the lower bound for first-day bisection.
	EarliestProbe market.Date

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ChunkDays <= 0 {
		o.ChunkDays = 90
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	} else if o.BatchDelay == 0 {
		o.BatchDelay = 250 * time.Millisecond
	}
	if o.ProbeLimit <= 0 {
		o.ProbeLimit = 16
	}
	if o.EarliestProbe.IsZero() {
		o.EarliestProbe = "2004-01-01"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Reconciler guarantees that a requested date span for a symbol is fully
// covered by persisted per-day blobs, fetching only what is missing.
// Reconciliations for the same symbol are serialized; different symbols
// proceed independently.
type Reconciler struct {
	store  Store
	source BarSource
	opts   Options
	log    *slog.Logger

	mu      sync.Mutex
	symbols map[string]*sync.Mutex
}

func NewReconciler(store Store, source BarSource, opts Options) *Reconciler {
	opts = opts.withDefaults()
	return &Reconciler{
		store:   store,
		source:  source,
		opts:    opts,
		log:     opts.Logger,
		symbols: make(map[string]*sync.Mutex),
	}
}

func (r *Reconciler) symbolLock(symbol string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.symbols[symbol]
	if !ok {
		m = &sync.Mutex{}
		r.symbols[symbol] = m
	}
	return m
}

// EnsureRange makes every day in [from, to] locally available and returns
// the covering blobs in chronological order. onDayReady, when non-nil, is
// invoked synchronously for each freshly fetched day. A request fully
// inside existing coverage performs zero upstream fetches.
func (r *Reconciler) EnsureRange(ctx context.Context, symbol string, from, to market.Date, onDayReady func(market.DayBlob)) ([]market.DayBlob, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, &RangeError{Symbol: symbol, From: from, To: to, Reason: "from must not exceed to"}
	}
	today := market.DateOf(r.opts.Now())
	if to.After(today) {
		return nil, &RangeError{Symbol: symbol, From: from, To: to, Reason: "to is in the future"}
	}

	lock := r.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	rng, err := r.store.ReadSymbolRange(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = &SymbolRange{Symbol: symbol}
		r.refreshSplitsLocked(ctx, rng)
	}

	// Fail fast when the bound is already known; a bound discovered during
	// this call clamps instead (the caller could not have known it yet).
	if !rng.FirstDay.IsZero() && from.Before(rng.FirstDay) {
		return nil, &RangeError{Symbol: symbol, From: from, To: to, Reason: "from precedes first available day " + string(rng.FirstDay)}
	}

	if rng.FirstDay.IsZero() {
		first, err := r.discoverFirstDay(ctx, symbol, today)
		if err != nil {
			return nil, err
		}
		rng.FirstDay = first
		if err := r.store.UpsertSymbolRange(ctx, rng); err != nil {
			return nil, err
		}
		r.log.Info("discovered first available day", "symbol", symbol, "day", first)
		if to.Before(first) {
			return nil, &RangeError{Symbol: symbol, From: from, To: to, Reason: "range ends before first available day " + string(first)}
		}
		from = market.MaxDate(from, first)
	}

	if rng.Covers(from, to) {
		metrics.CacheHits.Inc()
		return r.store.LoadDays(ctx, symbol, from, to)
	}

	// At most two gaps relative to current coverage. The left gap is
	// filled newest-first so coverage extends downward contiguously and a
	// mid-gap failure still leaves a valid [have_from, have_to].
	if rng.HaveFrom.IsZero() {
		if err := r.fillGap(ctx, rng, from, to, false, onDayReady); err != nil {
			return nil, err
		}
	} else {
		if from.Before(rng.HaveFrom) {
			if err := r.fillGap(ctx, rng, from, rng.HaveFrom.Prev(), true, onDayReady); err != nil {
				return nil, err
			}
		}
		if to.After(rng.HaveTo) {
			if err := r.fillGap(ctx, rng, rng.HaveTo.Next(), to, false, onDayReady); err != nil {
				return nil, err
			}
		}
	}

	return r.store.LoadDays(ctx, symbol, from, to)
}

type dayResult struct {
	day  market.Date
	bars []market.Bar
	err  error
}

// fillGap fetches [from, to] in chunk windows of bounded-concurrency
// batches. Results are committed strictly in traversal order, so a failure
// leaves a durable contiguous prefix.
func (r *Reconciler) fillGap(ctx context.Context, rng *SymbolRange, from, to market.Date, descending bool, onDayReady func(market.DayBlob)) error {
	days := make([]market.Date, 0, from.DaysUntil(to)+1)
	for d := from; !d.After(to); d = d.Next() {
		days = append(days, d)
	}
	if descending {
		for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
			days[i], days[j] = days[j], days[i]
		}
	}

	r.log.Info("filling gap", "symbol", rng.Symbol, "from", from, "to", to, "days", len(days))

	chunk := r.opts.ChunkDays
	for start := 0; start < len(days); start += chunk {
		window := days[start:min(start+chunk, len(days))]

		for bstart := 0; bstart < len(window); bstart += r.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch := window[bstart:min(bstart+r.opts.BatchSize, len(window))]

			results := make([]dayResult, len(batch))
			g, gctx := errgroup.WithContext(ctx)
			for i, day := range batch {
				g.Go(func() error {
					bars, err := r.source.FetchDayBars(gctx, rng.Symbol, day)
					results[i] = dayResult{day: day, bars: bars, err: err}
					return nil
				})
			}
			_ = g.Wait() // fetch errors travel in results

			for _, res := range results {
				if err := r.commitDay(ctx, rng, res, onDayReady); err != nil {
					return err
				}
			}

			if bstart+r.opts.BatchSize < len(window) || start+chunk < len(days) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(r.opts.BatchDelay):
				}
			}
		}
	}
	return nil
}

func (r *Reconciler) commitDay(ctx context.Context, rng *SymbolRange, res dayResult, onDayReady func(market.DayBlob)) error {
	switch {
	case res.err == nil:
		metrics.FetchDays.WithLabelValues("ok").Inc()
	case errors.Is(res.err, ErrNotTradingDay):
		metrics.FetchDays.WithLabelValues("empty").Inc()
		res.bars = nil
	default:
		metrics.FetchDays.WithLabelValues("error").Inc()
		return &FetchError{Symbol: rng.Symbol, Day: res.day, Err: res.err}
	}

	adjusted := market.ApplySplitAdjustment(res.bars, rng.Splits)
	blob := market.BuildDayBlob(rng.Symbol, res.day, adjusted)

	if err := r.store.SaveDay(ctx, blob); err != nil {
		return err
	}

	if rng.HaveFrom.IsZero() {
		rng.HaveFrom, rng.HaveTo = res.day, res.day
	} else {
		rng.HaveFrom = market.MinDate(rng.HaveFrom, res.day)
		rng.HaveTo = market.MaxDate(rng.HaveTo, res.day)
	}
	if err := r.store.UpsertSymbolRange(ctx, rng); err != nil {
		return err
	}

	if onDayReady != nil {
		onDayReady(blob)
	}
	return nil
}

// discoverFirstDay bisects for the earliest day upstream has data. The
// predicate probes one week at a candidate so weekends and holidays do not
// masquerade as "no data yet". Probe iterations are hard-capped.
func (r *Reconciler) discoverFirstDay(ctx context.Context, symbol string, upTo market.Date) (market.Date, error) {
	lo := r.opts.EarliestProbe
	hi := upTo
	var best market.Date

	for i := 0; i < r.opts.ProbeLimit; i++ {
		span := lo.DaysUntil(hi)
		if span <= 7 {
			break
		}
		mid := lo.AddDays(span / 2)
		day, ok, err := r.probeWeek(ctx, symbol, mid)
		if err != nil {
			return "", err
		}
		if ok {
			hi = mid
			if best.IsZero() || day.Before(best) {
				best = day
			}
		} else {
			lo = mid.AddDays(7)
		}
	}

	// Final window is at most a handful of days; sweep it.
	for d := lo; !d.After(hi); d = d.Next() {
		metrics.ProbeFetches.Inc()
		bars, err := r.source.FetchDayBars(ctx, symbol, d)
		if err == nil && len(bars) > 0 {
			return d, nil
		}
		if err != nil && !errors.Is(err, ErrNotTradingDay) {
			return "", &FetchError{Symbol: symbol, Day: d, Err: err}
		}
	}

	if !best.IsZero() {
		return best, nil
	}
	return "", &RangeError{Symbol: symbol, From: lo, To: upTo, Reason: "no data found while probing for first available day"}
}

// probeWeek reports whether any of the seven days starting at d has data,
// returning the first such day.
func (r *Reconciler) probeWeek(ctx context.Context, symbol string, d market.Date) (market.Date, bool, error) {
	for i := 0; i < 7; i++ {
		day := d.AddDays(i)
		metrics.ProbeFetches.Inc()
		bars, err := r.source.FetchDayBars(ctx, symbol, day)
		if err == nil && len(bars) > 0 {
			return day, true, nil
		}
		if err != nil && !errors.Is(err, ErrNotTradingDay) {
			return "", false, &FetchError{Symbol: symbol, Day: day, Err: err}
		}
	}
	return "", false, nil
}

// FirstAvailableDay returns the persisted first-available day for a
// symbol, or the zero Date when it has not been discovered yet.
func (r *Reconciler) FirstAvailableDay(ctx context.Context, symbol string) (market.Date, error) {
	rng, err := r.store.ReadSymbolRange(ctx, symbol)
	if err != nil || rng == nil {
		return "", err
	}
	return rng.FirstDay, nil
}

// RefreshSplits re-fetches the split history. New splits invalidate every
// cached bar for the symbol: coverage resets and the next EnsureRange
// re-fetches with the new adjustment.
func (r *Reconciler) RefreshSplits(ctx context.Context, symbol string) (changed bool, err error) {
	lock := r.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	rng, err := r.store.ReadSymbolRange(ctx, symbol)
	if err != nil {
		return false, err
	}
	if rng == nil {
		rng = &SymbolRange{Symbol: symbol}
	}

	splits, err := r.source.FetchSplits(ctx, symbol)
	if err != nil {
		return false, &FetchError{Symbol: symbol, Err: err}
	}

	changed = !splitsEqual(rng.Splits, splits)
	if changed && !rng.HaveFrom.IsZero() {
		r.log.Warn("split history changed, invalidating cached bars", "symbol", symbol)
		if err := r.store.DeleteSymbolBars(ctx, symbol); err != nil {
			return false, err
		}
		rng.HaveFrom, rng.HaveTo = "", ""
	}

	rng.Splits = splits
	rng.LastSplitCheck = r.opts.Now().UTC()
	if err := r.store.UpsertSymbolRange(ctx, rng); err != nil {
		return false, err
	}
	return changed, nil
}

// refreshSplitsLocked is the best-effort first-contact split fetch for a
// brand-new symbol. A failure only delays adjustment until RefreshSplits
// succeeds, so it logs instead of aborting.
func (r *Reconciler) refreshSplitsLocked(ctx context.Context, rng *SymbolRange) {
	splits, err := r.source.FetchSplits(ctx, rng.Symbol)
	if err != nil {
		r.log.Warn("initial split fetch failed", "symbol", rng.Symbol, "err", err)
		return
	}
	rng.Splits = splits
	rng.LastSplitCheck = r.opts.Now().UTC()
}

func splitsEqual(a, b []market.SplitInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
