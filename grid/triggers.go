package grid

import (
	"sort"
	"time"
)

// Side tags which direction a fired trigger acted on.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// BuyTrigger is a pending conditional buy: it fires when price drops to or
// below AtPrice.
type BuyTrigger struct {
	ID      string
	AtPrice float64
}

// SellTrigger is a pending conditional sell bound to one open lot: it fires
// when price rises to or above AtPrice.
type SellTrigger struct {
	ID      string
	AtPrice float64
	Shares  float64
	TradeID string
}

// AllowFunc lets the book's owner veto a firing candidate — the hook for
// trading-session or PDT-style constraints, which are not the book's
// concern. tradeID is empty for buys.
type AllowFunc func(ts time.Time, side Side, tradeID string) bool

// Book holds the two trigger sets. Identifiers are caller-supplied opaque
// strings; uniqueness is the caller's responsibility.
type Book struct {
	Buys  []BuyTrigger
	Sells []SellTrigger
}

// Evaluate returns the triggers that fire at price and removes them from
// the book; the caller realizes them into trades (and re-adds any it
// rejects). A candidate is included only if allow approves it.
func (b *Book) Evaluate(price float64, ts time.Time, allow AllowFunc) (firedBuys []BuyTrigger, firedSells []SellTrigger) {
	keepBuys := b.Buys[:0]
	for _, t := range b.Buys {
		if price <= t.AtPrice && (allow == nil || allow(ts, SideBuy, "")) {
			firedBuys = append(firedBuys, t)
			continue
		}
		keepBuys = append(keepBuys, t)
	}
	b.Buys = keepBuys

	keepSells := b.Sells[:0]
	for _, t := range b.Sells {
		if price >= t.AtPrice && (allow == nil || allow(ts, SideSell, t.TradeID)) {
			firedSells = append(firedSells, t)
			continue
		}
		keepSells = append(keepSells, t)
	}
	b.Sells = keepSells

	return firedBuys, firedSells
}

// Join collapses near-duplicate triggers in both sets with the given gap
// percent. A gap of -1 disables merging.
func (b *Book) Join(gapPct float64) {
	b.Buys = JoinNearBuys(b.Buys, gapPct)
	b.Sells = JoinNearSells(b.Sells, gapPct)
}

func withinGap(lower, higher, gapPct float64) bool {
	if lower <= 0 {
		return false
	}
	return (higher-lower)/lower*100 <= gapPct
}

// JoinNearBuys merges adjacent buy triggers whose prices differ by at most
// gapPct percent (relative to the lower of the pair), keeping the lowest
// price of each run — the safer side for a buy-below trigger.
func JoinNearBuys(triggers []BuyTrigger, gapPct float64) []BuyTrigger {
	if gapPct < 0 || len(triggers) < 2 {
		return triggers
	}

	sorted := make([]BuyTrigger, len(triggers))
	copy(sorted, triggers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AtPrice < sorted[j].AtPrice })

	var out []BuyTrigger
	for i := 0; i < len(sorted); {
		// Extend the run while adjacent neighbors stay within the gap,
		// then keep the run's lowest.
		j := i
		for j+1 < len(sorted) && withinGap(sorted[j].AtPrice, sorted[j+1].AtPrice, gapPct) {
			j++
		}
		out = append(out, sorted[i])
		i = j + 1
	}
	return out
}

// JoinNearSells merges adjacent sell triggers within gapPct, keeping the
// highest price of each run. The discarded trigger's lot binding is dropped
// with it, so a merged-away lot keeps no exit trigger; with default grid
// spacing sell triggers sit further apart than the join gap, so this does
// not occur in practice.
func JoinNearSells(triggers []SellTrigger, gapPct float64) []SellTrigger {
	if gapPct < 0 || len(triggers) < 2 {
		return triggers
	}

	sorted := make([]SellTrigger, len(triggers))
	copy(sorted, triggers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AtPrice < sorted[j].AtPrice })

	var out []SellTrigger
	for i := 0; i < len(sorted); {
		// Extend the run while neighbors stay within the gap, then keep
		// the run's highest.
		j := i
		for j+1 < len(sorted) && withinGap(sorted[j].AtPrice, sorted[j+1].AtPrice, gapPct) {
			j++
		}
		out = append(out, sorted[j])
		i = j + 1
	}
	return out
}
