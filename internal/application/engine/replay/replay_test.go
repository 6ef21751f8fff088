package replay_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alejandrodnm/edgebot/internal/application/engine/lifecycle"
	"github.com/alejandrodnm/edgebot/internal/application/engine/replay"
	"github.com/alejandrodnm/edgebot/internal/application/gate"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func makeConfig() lifecycle.Config {
	return lifecycle.Config{
		Edge: domain.EdgeParams{
			FeeRate:        0.01,
			SlippageFactor: 0.2,
			MinEdge:        0.03,
			MinNetEdge:     0.015,
			MaxSpread:      0.08,
			MinConfidence:  0.6,
			MinPrice:       0.02,
			MaxPrice:       0.98,
		},
		Sizing: domain.SizingLimits{
			KellyFraction:   0.25,
			PerTradeCap:     20,
			MinPosition:     5,
			MaxExposure:     150,
			MaxTradesPerDay: 1000,
		},
		Bankroll:   250,
		TakeProfit: 0.20,
		StopLoss:   0.12,
		MaxHolding: 240 * time.Minute,
	}
}

func makeSnapshot(seq int, at time.Time, quotes []domain.Quote, sigs ...domain.AlphaSignal) domain.Snapshot {
	snap := domain.Snapshot{Timestamp: at, Sequence: int64(seq), Quotes: quotes}
	if len(sigs) > 0 {
		snap.Signals = make(map[string]domain.AlphaSignal, len(sigs))
		for _, s := range sigs {
			snap.Signals[s.Ticker] = s
		}
	}
	return snap
}

func makeSignal(ticker string, fair float64, at time.Time, ttl time.Duration) domain.AlphaSignal {
	return domain.AlphaSignal{
		Ticker:             ticker,
		FairYesProbability: fair,
		Confidence:         0.9,
		ObservedAt:         at,
		Expiry:             at.Add(ttl),
	}
}

// makeSeries genera una serie oscilante sobre varios tickers.
func makeSeries(n int) []domain.Snapshot {
	snaps := make([]domain.Snapshot, 0, n)
	for i := range n {
		at := t0.Add(time.Duration(i) * 10 * time.Minute)
		var quotes []domain.Quote
		var sigs []domain.AlphaSignal
		for k := range 4 {
			ticker := fmt.Sprintf("M%d", k)
			yes := 0.30 + 0.02*float64((i+k)%6)
			quotes = append(quotes, domain.Quote{Ticker: ticker, YesPrice: yes, NoPrice: 1.02 - yes, Volume: 1000})
			sigs = append(sigs, makeSignal(ticker, 0.42+0.01*float64(k), at, 15*time.Minute))
		}
		snaps = append(snaps, makeSnapshot(i, at, quotes, sigs...))
	}
	return snaps
}

func TestRun_TakeProfitAcrossSnapshots(t *testing.T) {
	snaps := []domain.Snapshot{
		makeSnapshot(0, t0,
			[]domain.Quote{{Ticker: "X", YesPrice: 0.30, NoPrice: 0.72}},
			makeSignal("X", 0.50, t0, 3*time.Minute)),
		makeSnapshot(1, t0.Add(5*time.Minute),
			[]domain.Quote{{Ticker: "X", YesPrice: 0.39, NoPrice: 0.63}}),
	}

	res, err := replay.Run(context.Background(), makeConfig(), snaps, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Cycles)
	assert.Equal(t, 1, res.Entries)
	assert.Equal(t, 1, res.Exits)
	assert.Equal(t, int64(2), res.Orders)
	require.Len(t, res.State.ClosedPositions, 1)
	assert.Equal(t, domain.ExitTakeProfit, res.State.ClosedPositions[0].ExitReason)
	assert.Equal(t, t0.Add(5*time.Minute), res.State.UpdatedAt)
	assert.Equal(t, 1, res.Metrics.Trades)
}

func TestRun_MissingQuoteForceCloses(t *testing.T) {
	snaps := []domain.Snapshot{
		makeSnapshot(0, t0,
			[]domain.Quote{{Ticker: "X", YesPrice: 0.50, NoPrice: 0.52}},
			makeSignal("X", 0.70, t0, time.Hour)),
		makeSnapshot(1, t0.Add(time.Minute), nil),
	}

	res, err := replay.Run(context.Background(), makeConfig(), snaps, nil)
	require.NoError(t, err)
	require.Len(t, res.State.ClosedPositions, 1)
	assert.Equal(t, domain.ExitUnavailable, res.State.ClosedPositions[0].ExitReason)
	assert.Equal(t, int64(1), res.Orders)
}

func TestRun_RejectsNonIncreasingTimestamps(t *testing.T) {
	snaps := []domain.Snapshot{
		makeSnapshot(0, t0, nil),
		makeSnapshot(1, t0, nil),
	}
	_, err := replay.Run(context.Background(), makeConfig(), snaps, nil)
	assert.Error(t, err)
}

func TestRun_RejectsInvalidQuote(t *testing.T) {
	snaps := []domain.Snapshot{
		makeSnapshot(0, t0, []domain.Quote{{Ticker: "X", YesPrice: 0.40, NoPrice: 0.62, YesBid: 1.5}}),
	}
	_, err := replay.Run(context.Background(), makeConfig(), snaps, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot 0")
}

func TestRun_RejectsSignalKeyMismatch(t *testing.T) {
	snap := makeSnapshot(0, t0, []domain.Quote{
		{Ticker: "A", YesPrice: 0.40, NoPrice: 0.62},
		{Ticker: "B", YesPrice: 0.40, NoPrice: 0.62},
	})
	snap.Signals = map[string]domain.AlphaSignal{
		"A": makeSignal("B", 0.70, t0, time.Hour),
	}
	_, err := replay.Run(context.Background(), makeConfig(), []domain.Snapshot{snap}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `signal key "A" names ticker "B"`)
}

func TestRun_SignalWithoutTickerUsesKey(t *testing.T) {
	snap := makeSnapshot(0, t0, []domain.Quote{{Ticker: "A", YesPrice: 0.40, NoPrice: 0.62, Volume: 1000}})
	sig := makeSignal("", 0.70, t0, time.Hour)
	snap.Signals = map[string]domain.AlphaSignal{"A": sig}

	res, err := replay.Run(context.Background(), makeConfig(), []domain.Snapshot{snap}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Entries)
	assert.Equal(t, "", snap.Signals["A"].Ticker, "replay must not mutate its input")
}

func TestRun_Deterministic(t *testing.T) {
	snaps := makeSeries(60)

	first, err := replay.Run(context.Background(), makeConfig(), snaps, []int{10})
	require.NoError(t, err)
	second, err := replay.Run(context.Background(), makeConfig(), snaps, []int{10})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.NotZero(t, first.Entries, "the series should trade")
	assert.NoError(t, first.State.CheckInvariants())
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := replay.Run(ctx, makeConfig(), makeSeries(3), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitTrainHoldout(t *testing.T) {
	snaps := makeSeries(10)

	train, holdout, err := replay.SplitTrainHoldout(snaps, 0.3, 2)
	require.NoError(t, err)
	assert.Len(t, train, 7)
	assert.Len(t, holdout, 3)
	assert.Equal(t, snaps[7].Timestamp, holdout[0].Timestamp)

	// min_holdout domina pero siempre queda al menos un snapshot de train
	train, holdout, err = replay.SplitTrainHoldout(snaps, 0.3, 50)
	require.NoError(t, err)
	assert.Len(t, train, 1)
	assert.Len(t, holdout, 9)

	_, _, err = replay.SplitTrainHoldout(snaps[:2], 0.3, 1)
	assert.Error(t, err)
}

func TestCombinations_DedupAndCap(t *testing.T) {
	base := makeConfig()
	grid := replay.Grid{
		TakeProfit:        []float64{0.25, 0.15, 0.25},
		StopLoss:          []float64{0.10, 0.12},
		MaxHoldingMinutes: []int{240, 0, 120},
	}

	all := replay.Combinations(base, grid, 0)
	require.Len(t, all, 2*2*2)
	assert.InDelta(t, 0.15, all[0].TakeProfit, 1e-9)
	assert.InDelta(t, 0.10, all[0].StopLoss, 1e-9)
	assert.Equal(t, 120, all[0].MaxHoldingMinutes)
	assert.InDelta(t, base.Edge.MinNetEdge, all[0].MinNetEdge, 1e-9, "empty axis keeps base value")

	capped := replay.Combinations(base, grid, 3)
	assert.Len(t, capped, 3)

	cfg := all[0].Apply(base)
	assert.Equal(t, 120*time.Minute, cfg.MaxHolding)
	assert.InDelta(t, 0.15, cfg.TakeProfit, 1e-9)
}

func TestSweep_RejectsInvalidGrid(t *testing.T) {
	_, err := replay.Sweep(context.Background(), makeConfig(), makeSeries(10), replay.SweepConfig{
		Grid:         replay.Grid{StopLoss: []float64{0.10, 0}, FeeRate: []float64{-0.01}},
		HoldoutRatio: 0.3,
		MinHoldout:   2,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigurationInvalid)
	assert.Contains(t, err.Error(), "stop_loss")
	assert.Contains(t, err.Error(), "fee_rate")
}

func TestRank_Ordering(t *testing.T) {
	runs := []replay.RunResult{
		{RunID: 1, Holdout: gate.Metrics{Expectancy: 0.1, ProfitFactor: 1.1, MaxDrawdown: 3}},
		{RunID: 2, Holdout: gate.Metrics{Expectancy: 0.3, ProfitFactor: 1.0, MaxDrawdown: 9}},
		{RunID: 3, Holdout: gate.Metrics{Expectancy: 0.1, ProfitFactor: 1.4, MaxDrawdown: 5}},
		{RunID: 4, Holdout: gate.Metrics{Expectancy: 0.1, ProfitFactor: 1.4, MaxDrawdown: 2}},
		{RunID: 5, Holdout: gate.Metrics{Expectancy: 0.1, ProfitFactor: 1.4, MaxDrawdown: 2}},
	}
	replay.Rank(runs)

	ids := make([]int, len(runs))
	for i, r := range runs {
		ids[i] = r.RunID
	}
	assert.Equal(t, []int{2, 4, 5, 3, 1}, ids)
}

func TestSweep_RanksAndCapsTopN(t *testing.T) {
	snaps := makeSeries(40)
	res, err := replay.Sweep(context.Background(), makeConfig(), snaps, replay.SweepConfig{
		Grid: replay.Grid{
			TakeProfit: []float64{0.05, 0.10, 0.20},
			StopLoss:   []float64{0.05, 0.12},
		},
		HoldoutRatio: 0.3,
		MinHoldout:   5,
		TopN:         4,
		Workers:      3,
	})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Runs)
	assert.Equal(t, 28, res.TrainSnapshots)
	assert.Equal(t, 12, res.HoldoutSnapshots)
	require.Len(t, res.Top, 4)
	for i := 1; i < len(res.Top); i++ {
		assert.GreaterOrEqual(t, res.Top[i-1].Holdout.Expectancy, res.Top[i].Holdout.Expectancy)
	}

	again, err := replay.Sweep(context.Background(), makeConfig(), snaps, replay.SweepConfig{
		Grid: replay.Grid{
			TakeProfit: []float64{0.05, 0.10, 0.20},
			StopLoss:   []float64{0.05, 0.12},
		},
		HoldoutRatio: 0.3,
		MinHoldout:   5,
		TopN:         4,
		Workers:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, res.Top, again.Top, "parallelism must not change the ranking")
}
