package cache

import (
	"errors"
	"fmt"

	"github.com/gridtrading/gridbot/market"
)

// ErrNotTradingDay is returned by a BarSource when a day simply has no
// market data (holiday, weekend, pre-listing). It is not a failure: the
// reconciler records such days as empty so coverage stays contiguous.
var ErrNotTradingDay = errors.New("not a trading day")

// RangeError reports a requested span outside the allowed window. It is
// returned before any upstream fetch happens.
type RangeError struct {
	Symbol string
	From   market.Date
	To     market.Date
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range %s [%s, %s]: %s", e.Symbol, e.From, e.To, e.Reason)
}

// FetchError wraps an upstream failure for a specific day. Days committed
// before the failure remain durable.
type FetchError struct {
	Symbol string
	Day    market.Date
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Symbol, e.Day, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
