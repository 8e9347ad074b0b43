package cache

import (
	"context"

	"github.com/gridtrading/gridbot/market"
)

// BarSource is the upstream data contract the reconciler consumes. Concrete
// network clients live outside this module; implementations must return
// ErrNotTradingDay (possibly wrapped) when a day has no data, and a real
// error only for genuine upstream failures.
type BarSource interface {
	FetchDayBars(ctx context.Context, symbol string, day market.Date) ([]market.Bar, error)

	// FetchSplits returns the full known split history for a symbol, or
	// nil when the provider has none.
	FetchSplits(ctx context.Context, symbol string) ([]market.SplitInfo, error)
}
