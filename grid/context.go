package grid

import "time"

// ExecutionContext is the capability surface a strategy acts through. The
// backtest variant below mutates in-memory state; a live variant would
// route the same calls to a brokerage. Selecting behavior here keeps
// mode conditionals out of the strategy itself.
type ExecutionContext interface {
	// UpdateEquity marks the portfolio to the given price and refreshes
	// the running cash/equity maxima.
	UpdateEquity(price float64, ts time.Time)

	// ActionableOrders returns (and consumes) the triggers that fire at
	// the given price.
	ActionableOrders(price float64, ts time.Time) (buys []BuyTrigger, sells []SellTrigger)

	AddBuyOrder(t BuyTrigger)
	AddSellOrder(t SellTrigger)
}

// BacktestContext executes against a SimulationState. Allow, when set, is
// consulted per firing candidate.
type BacktestContext struct {
	State *SimulationState
	Allow AllowFunc
}

func (c *BacktestContext) UpdateEquity(price float64, _ time.Time) {
	s := c.State
	s.Equity = s.Cash + s.PositionValue(price)
	if s.Cash > s.CashMax {
		s.CashMax = s.Cash
	}
	if s.Equity > s.EquityMax {
		s.EquityMax = s.Equity
	}
}

func (c *BacktestContext) ActionableOrders(price float64, ts time.Time) ([]BuyTrigger, []SellTrigger) {
	return c.State.Book.Evaluate(price, ts, c.Allow)
}

func (c *BacktestContext) AddBuyOrder(t BuyTrigger) {
	c.State.Book.Buys = append(c.State.Book.Buys, t)
}

func (c *BacktestContext) AddSellOrder(t SellTrigger) {
	c.State.Book.Sells = append(c.State.Book.Sells, t)
}
