// Package replay runs the lifecycle engine over historical snapshots.
// It is single-threaded and deterministic: the same snapshots and config
// always produce byte-identical state.
package replay

import (
	"context"
	"fmt"
	"slices"

	"github.com/alejandrodnm/edgebot/internal/application/engine/lifecycle"
	"github.com/alejandrodnm/edgebot/internal/application/engine/paper"
	"github.com/alejandrodnm/edgebot/internal/application/gate"
	"github.com/alejandrodnm/edgebot/internal/domain"
)

// Result is the outcome of one replay.
type Result struct {
	State   *domain.EngineState `json:"state"`
	Metrics gate.Metrics        `json:"metrics"`
	Cycles  int                 `json:"cycles"`
	Entries int                 `json:"entries"`
	Exits   int                 `json:"exits"`
	Orders  int64               `json:"orders"`
}

// Run replays snapshots in order. Simulated time is the snapshot timestamp;
// signals accumulate in a latest-by-ticker book; tickers with an open
// position but no quote in a snapshot are treated as unavailable.
// windows are the holdout windows reported in Metrics.
func Run(ctx context.Context, cfg lifecycle.Config, snapshots []domain.Snapshot, windows []int) (*Result, error) {
	eng := lifecycle.New(cfg, nil)
	exec := paper.NewExecutor()
	book := domain.SignalBook{}
	res := &Result{}

	for i, snap := range snapshots {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay.Run: %w", err)
		}
		if i > 0 && !snap.Timestamp.After(snapshots[i-1].Timestamp) {
			return nil, fmt.Errorf("replay.Run: snapshot %d at %s not after previous %s",
				i, snap.Timestamp, snapshots[i-1].Timestamp)
		}

		for _, q := range snap.Quotes {
			if err := q.Validate(); err != nil {
				return nil, fmt.Errorf("replay.Run: snapshot %d: %w", i, err)
			}
		}
		for _, ticker := range sortedKeys(snap.Signals) {
			sig := snap.Signals[ticker]
			if sig.Ticker == "" {
				sig.Ticker = ticker
			}
			if sig.Ticker != ticker {
				return nil, fmt.Errorf("replay.Run: snapshot %d: signal key %q names ticker %q", i, ticker, sig.Ticker)
			}
			book.Merge(sig)
		}

		quotes := snap.QuoteMap()
		unavailable := make(map[string]bool)
		for _, p := range eng.Snapshot().OpenPositions {
			if _, ok := quotes[p.Ticker]; !ok {
				unavailable[p.Ticker] = true
			}
		}

		cycle, err := eng.RunCycle(ctx, lifecycle.CycleInput{
			Now:         snap.Timestamp.UTC(),
			Quotes:      quotes,
			Unavailable: unavailable,
			Signals:     book,
		}, exec)
		if err != nil {
			return nil, fmt.Errorf("replay.Run: snapshot %d: %w", i, err)
		}
		res.Cycles++
		res.Entries += len(cycle.Entries)
		res.Exits += len(cycle.Exits)
	}

	res.State = eng.Snapshot()
	if err := res.State.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("replay.Run: %w", err)
	}
	res.Metrics = gate.ComputeMetrics(res.State.ClosedPositions, cfg.Bankroll, windows)
	res.Orders = exec.Orders()
	return res, nil
}

func sortedKeys(m map[string]domain.AlphaSignal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
