package grid

import (
	"fmt"
	"time"
)

// OpenTrade is one lot: a discrete purchase tracked until fully sold.
type OpenTrade struct {
	ID        string
	Timestamp time.Time
	Price     float64
	Shares    float64
}

// TradeEvent is one realized fill in the run's history.
type TradeEvent struct {
	Timestamp time.Time
	Side      Side
	Price     float64
	Shares    float64
	TradeID   string
	Cash      float64
	Equity    float64
}

// SimulationState is the single-writer state of one run. It is created by
// the driver, mutated only by the strategy during sequential bar
// processing, and discarded when the run ends; results flow out through
// the driver's result summary.
type SimulationState struct {
	Cash      float64
	CashMax   float64
	Equity    float64
	EquityMax float64

	OpenTrades []OpenTrade
	Book       Book
	History    []TradeEvent

	seq int
}

func NewSimulationState(startCapital float64) *SimulationState {
	return &SimulationState{
		Cash:      startCapital,
		CashMax:   startCapital,
		Equity:    startCapital,
		EquityMax: startCapital,
	}
}

// NextID returns a run-scoped identifier. Deterministic by construction:
// identical bar sequences must produce bit-identical histories, so ids
// come from a counter, never from clocks or entropy.
func (s *SimulationState) NextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%06d", prefix, s.seq)
}

// PositionValue is the mark-to-market value of all open lots at price.
func (s *SimulationState) PositionValue(price float64) float64 {
	var v float64
	for _, t := range s.OpenTrades {
		v += t.Shares * price
	}
	return v
}

func (s *SimulationState) removeTrade(tradeID string) (OpenTrade, bool) {
	for i, t := range s.OpenTrades {
		if t.ID == tradeID {
			s.OpenTrades = append(s.OpenTrades[:i], s.OpenTrades[i+1:]...)
			return t, true
		}
	}
	return OpenTrade{}, false
}
