package grid

import (
	"fmt"
	"time"
)

// Config holds the grid strategy parameters. Percentages are whole
// percents (60 means 60%).
type Config struct {
	CapitalPct      float64 `json:"capital_pct" yaml:"capital_pct"`
	BuyBelowPct     float64 `json:"buy_below_pct" yaml:"buy_below_pct"`
	SellAbovePct    float64 `json:"sell_above_pct" yaml:"sell_above_pct"`
	BuyAfterSellPct float64 `json:"buy_after_sell_pct" yaml:"buy_after_sell_pct"`
	CashFloor       float64 `json:"cash_floor" yaml:"cash_floor"`

	// OrderGapPct controls near-duplicate trigger merging; -1 disables.
	OrderGapPct float64 `json:"order_gap_pct" yaml:"order_gap_pct"`

	// Periodic capital contributions; amount 0 disables.
	ContributionAmount float64 `json:"contribution_amount" yaml:"contribution_amount"`
	ContributionDays   int     `json:"contribution_days" yaml:"contribution_days"`
}

// Validate fails fast on configs that would silently produce misleading
// results.
func (c Config) Validate() error {
	if c.CapitalPct <= 0 || c.CapitalPct > 100 {
		return fmt.Errorf("capital_pct must be in (0, 100], got %v", c.CapitalPct)
	}
	if c.BuyBelowPct <= 0 || c.BuyBelowPct >= 100 {
		return fmt.Errorf("buy_below_pct must be in (0, 100), got %v", c.BuyBelowPct)
	}
	if c.SellAbovePct <= 0 {
		return fmt.Errorf("sell_above_pct must be positive, got %v", c.SellAbovePct)
	}
	if c.BuyAfterSellPct < 0 {
		return fmt.Errorf("buy_after_sell_pct must not be negative, got %v", c.BuyAfterSellPct)
	}
	if c.CashFloor < 0 {
		return fmt.Errorf("cash_floor must not be negative, got %v", c.CashFloor)
	}
	if c.OrderGapPct < 0 && c.OrderGapPct != -1 {
		return fmt.Errorf("order_gap_pct must be >= 0, or -1 to disable, got %v", c.OrderGapPct)
	}
	if c.ContributionAmount < 0 {
		return fmt.Errorf("contribution_amount must not be negative, got %v", c.ContributionAmount)
	}
	if c.ContributionAmount > 0 && c.ContributionDays <= 0 {
		return fmt.Errorf("contribution_days must be positive when contributions are enabled")
	}
	return nil
}

// Strategy is driven once per minute bar by the simulation driver. No
// wall-clock reads happen behind this call; ts is simulated time.
type Strategy interface {
	OnBar(price float64, ts time.Time) error
}

// GridStrategy places buy triggers below and sell triggers above the last
// transacted price, rebuilding the grid after each fill.
type GridStrategy struct {
	cfg   Config
	exec  ExecutionContext
	state *SimulationState

	nextContribution time.Time
}

func NewGridStrategy(cfg Config, exec ExecutionContext, state *SimulationState, start time.Time) *GridStrategy {
	g := &GridStrategy{cfg: cfg, exec: exec, state: state}
	if cfg.ContributionAmount > 0 {
		g.nextContribution = start.AddDate(0, 0, cfg.ContributionDays)
	}
	return g
}

func (g *GridStrategy) OnBar(price float64, ts time.Time) error {
	if price <= 0 {
		return fmt.Errorf("non-positive bar price %v at %s", price, ts)
	}
	s := g.state

	// 1. Contributions due at or before this bar.
	for !g.nextContribution.IsZero() && !g.nextContribution.After(ts) {
		s.Cash += g.cfg.ContributionAmount
		s.Equity += g.cfg.ContributionAmount
		g.nextContribution = g.nextContribution.AddDate(0, 0, g.cfg.ContributionDays)
	}

	// 2. Mark to market.
	g.exec.UpdateEquity(price, ts)

	// Seed the grid on the first bar (or after it fully unwinds).
	if len(s.Book.Buys) == 0 && len(s.Book.Sells) == 0 && len(s.OpenTrades) == 0 {
		g.exec.AddBuyOrder(BuyTrigger{
			ID:      s.NextID("B"),
			AtPrice: price * (1 - g.cfg.BuyBelowPct/100),
		})
		s.Book.Join(g.cfg.OrderGapPct)
		return nil
	}

	// 3. Fired triggers.
	buys, sells := g.exec.ActionableOrders(price, ts)

	// 4. Realize buys into lots, floor permitting.
	for _, trig := range buys {
		spend := s.Cash * g.cfg.CapitalPct / 100
		if s.Cash-spend < g.cfg.CashFloor {
			// Rejected buys are no-ops: the trigger goes back untouched.
			g.exec.AddBuyOrder(trig)
			continue
		}

		lot := OpenTrade{
			ID:        s.NextID("T"),
			Timestamp: ts,
			Price:     price,
			Shares:    spend / price,
		}
		s.Cash -= spend
		s.OpenTrades = append(s.OpenTrades, lot)
		s.History = append(s.History, TradeEvent{
			Timestamp: ts, Side: SideBuy, Price: price,
			Shares: lot.Shares, TradeID: lot.ID,
			Cash: s.Cash, Equity: s.Equity,
		})

		g.exec.AddBuyOrder(BuyTrigger{
			ID:      s.NextID("B"),
			AtPrice: price * (1 - g.cfg.BuyBelowPct/100),
		})
		g.exec.AddSellOrder(SellTrigger{
			ID:      s.NextID("S"),
			AtPrice: price * (1 + g.cfg.SellAbovePct/100),
			Shares:  lot.Shares,
			TradeID: lot.ID,
		})
	}

	// 5. Realize sells: close the bound lot fully, re-enter above.
	for _, trig := range sells {
		lot, ok := s.removeTrade(trig.TradeID)
		if !ok {
			// Lot already gone (merged-away binding); nothing to close.
			continue
		}
		s.Cash += lot.Shares * price
		s.History = append(s.History, TradeEvent{
			Timestamp: ts, Side: SideSell, Price: price,
			Shares: lot.Shares, TradeID: lot.ID,
			Cash: s.Cash, Equity: s.Equity,
		})

		g.exec.AddBuyOrder(BuyTrigger{
			ID:      s.NextID("B"),
			AtPrice: price * (1 + g.cfg.BuyAfterSellPct/100),
		})
	}

	// 6. Keep the grid free of near-duplicates.
	s.Book.Join(g.cfg.OrderGapPct)
	return nil
}

// NoopStrategy ignores every bar. It backs unrecognized algorithm names,
// which are deliberately non-fatal; see ForAlgorithm.
type NoopStrategy struct{}

func (NoopStrategy) OnBar(float64, time.Time) error { return nil }

// ForAlgorithm resolves a strategy by name. Unknown names return a noop
// and ok=false: the historical behavior is a silently empty run, so the
// caller is expected to surface a warning rather than fail.
func ForAlgorithm(name string, cfg Config, exec ExecutionContext, state *SimulationState, start time.Time) (Strategy, bool) {
	switch name {
	case "grid", "":
		return NewGridStrategy(cfg, exec, state, start), true
	default:
		return NoopStrategy{}, false
	}
}
