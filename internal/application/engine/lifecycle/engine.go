// Package lifecycle contains the position lifecycle engine shared by the live
// trading loop and the replay engine. It never reads the wall clock and never
// uses randomness: time comes in with every cycle.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

// Config holds every knob the engine reads.
type Config struct {
	Edge   domain.EdgeParams
	Sizing domain.SizingLimits

	// Bankroll is the starting capital; Kelly sizing uses Bankroll + cumulative P&L.
	Bankroll float64

	TakeProfit          float64
	StopLoss            float64
	MaxHolding          time.Duration
	MinContinuationEdge float64

	MaxEntriesPerCycle     int // 0 = unlimited
	UnavailableGraceCycles int // consecutive unavailable quotes before force-close
}

// CycleInput is one snapshot of the market as seen by a cycle.
type CycleInput struct {
	Now    time.Time
	Quotes map[string]domain.Quote
	// Unavailable marks tickers whose quote source answered NotAvailable.
	// Tickers missing from both maps failed transiently and are skipped.
	Unavailable map[string]bool
	Signals     domain.SignalBook
}

// Engine owns the EngineState and is its only mutator.
type Engine struct {
	mu    sync.Mutex
	cfg   Config
	state *domain.EngineState
}

// New creates an engine over state. A nil state starts empty.
func New(cfg Config, state *domain.EngineState) *Engine {
	if state == nil {
		state = domain.NewEngineState()
	}
	if cfg.UnavailableGraceCycles <= 0 {
		cfg.UnavailableGraceCycles = 1
	}
	return &Engine{cfg: cfg, state: state}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() *domain.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// RunCycle executes one serialized decision unit: day roll, exits, entries,
// invariant check. Exits always run before entries so sizing sees the capital
// and slots they free.
func (e *Engine) RunCycle(ctx context.Context, in CycleInput, exec ports.OrderExecutor) (domain.CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state
	res := domain.CycleResult{At: in.Now}
	res.DayRolled = st.RollTradingDay(in.Now)

	e.evaluateExits(ctx, in, exec, &res)
	if err := e.scanEntries(ctx, in, exec, &res); err != nil {
		return res, fmt.Errorf("lifecycle.RunCycle: entries: %w", err)
	}

	st.Cycles++
	st.UpdatedAt = in.Now

	res.Cycle = st.Cycles
	res.OpenPositions = len(st.OpenPositions)
	res.OpenExposure = st.OpenExposure()
	res.CumulativePnL = st.CumulativePnL
	res.CumulativeFees = st.CumulativeFees
	res.DailyTradeCount = st.DailyTradeCount

	if err := st.CheckInvariants(); err != nil {
		return res, fmt.Errorf("lifecycle.RunCycle: %w", err)
	}

	slog.Debug("lifecycle: cycle complete",
		"cycle", res.Cycle,
		"exits", len(res.Exits),
		"entries", len(res.Entries),
		"open", res.OpenPositions,
		"exposure", fmt.Sprintf("$%.2f", res.OpenExposure),
	)
	return res, nil
}

// bankroll is the capital Kelly sizes against.
func (e *Engine) bankroll() float64 {
	return math.Max(0, e.cfg.Bankroll+e.state.CumulativePnL)
}

func (e *Engine) fees(contracts int64) float64 {
	return e.cfg.Edge.FeeRate * float64(contracts)
}
