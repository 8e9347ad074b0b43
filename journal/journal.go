// Package journal persists backtest results: one row per realized fill and
// periodic equity snapshots, keyed by the run's ULID so multiple runs share
// one database or CSV pair.
package journal

import "time"

type TradeRecord struct {
	RunID   string
	TradeID string
	Symbol  string
	Side    string
	Time    time.Time
	Price   float64
	Shares  float64
	Cash    float64
	Equity  float64
}

type EquitySnapshot struct {
	RunID     string
	Time      time.Time
	Cash      float64
	CashMax   float64
	Equity    float64
	EquityMax float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}
