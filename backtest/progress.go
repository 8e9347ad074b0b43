package backtest

import (
	"time"

	"github.com/gridtrading/gridbot/market"
)

// Progress is the numeric part of a progress event.
type Progress struct {
	Current  int     `json:"current"`
	Total    int     `json:"total"`
	Progress float64 `json:"progress"` // percent, 0..100
}

// Event is one progress notification. Events are emitted, never stored.
type Event struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message,omitempty"`
	Data      Progress  `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives throttled progress events.
type Sink func(Event)

const (
	StageFetching = "fetching"
	StageStepping = "stepping"
	StageWarning  = "warning"
)

// emitter throttles progress callbacks: long runs stay quiet, large jumps
// and the completion event always get through.
type emitter struct {
	sink Sink
	now  func() time.Time

	emitted   bool
	lastStage string
	lastTotal int
	lastPct   float64
	lastWall  time.Time
}

func newEmitter(sink Sink, now func() time.Time) *emitter {
	if now == nil {
		now = time.Now
	}
	return &emitter{sink: sink, now: now}
}

func (e *emitter) emit(stage, message string, current, total int) {
	if e.sink == nil {
		return
	}

	var pct float64
	if total > 0 {
		pct = float64(current) / float64(total) * 100
		if pct > 100 {
			pct = 100
		}
	}

	wall := e.now()
	send := !e.emitted ||
		stage != e.lastStage ||
		total != e.lastTotal ||
		pct-e.lastPct >= 20 ||
		(pct >= 100 && e.lastPct < 100) ||
		(wall.Sub(e.lastWall) >= 10*time.Second && pct-e.lastPct >= 1)
	if !send {
		return
	}

	e.emitted = true
	e.lastStage = stage
	e.lastTotal = total
	e.lastPct = pct
	e.lastWall = wall

	e.sink(Event{
		Stage:     stage,
		Message:   message,
		Data:      Progress{Current: current, Total: total, Progress: pct},
		Timestamp: wall,
	})
}

// weekdayRatio approximates the share of calendar days the market trades.
const weekdayRatio = 5.0 / 7.0

// estimator tracks the expected number of bars in a run. The upfront
// estimate comes from the calendar span; once enough of the run has been
// stepped it is re-projected from the observed bar density. Re-estimates
// never shrink below the processed count or a previous estimate, and stop
// entirely inside the final simulated day to avoid churn at the end.
type estimator struct {
	total     int
	processed int

	simStart time.Time
	simEnd   time.Time
}

func newEstimator(simStart, simEnd time.Time) *estimator {
	days := float64(simEnd.Sub(simStart))/float64(24*time.Hour) + 1
	if days < 1 {
		days = 1
	}
	total := int(days * weekdayRatio * market.TradingMinutesPerDay)
	if total < 1 {
		total = 1
	}
	return &estimator{total: total, simStart: simStart, simEnd: simEnd}
}

func (e *estimator) reestimate(simNow time.Time) {
	remaining := float64(e.simEnd.Sub(simNow)) / float64(24*time.Hour)
	if remaining < 1 {
		return
	}
	elapsed := float64(simNow.Sub(e.simStart)) / float64(24*time.Hour)
	if elapsed <= 0 || e.processed == 0 {
		return
	}

	barsPerDay := float64(e.processed) / elapsed
	projected := e.processed + int(barsPerDay*remaining)
	if projected >= e.processed && projected >= e.total {
		e.total = projected
	}
}
