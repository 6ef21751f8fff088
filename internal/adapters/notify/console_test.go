package notify_test

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/edgebot/internal/adapters/notify"
	"github.com/alejandrodnm/edgebot/internal/application/engine/replay"
	"github.com/alejandrodnm/edgebot/internal/application/gate"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)

func makeCycle() domain.CycleResult {
	exit := domain.Position{
		Ticker: "KX-RAIN", Side: domain.SideYes, Size: 40,
		EntryPrice: 0.30, ExitPrice: 0.37, RealizedPnL: 2.0,
		ExitReason: domain.ExitTakeProfit, Status: domain.PositionClosed,
	}
	entry := domain.Position{
		Ticker: "KX-SNOW", Side: domain.SideNo, Size: 20,
		EntryPrice: 0.55, Notional: 11, NetEdgeAtEntry: 0.08, Status: domain.PositionOpen,
	}
	return domain.CycleResult{
		Cycle:           12,
		At:              t0,
		Exits:           []domain.Position{exit},
		Entries:         []domain.Position{entry},
		Skips:           []domain.TickerEvent{{Ticker: "KX-WIND", Reason: "net_edge_below_min"}},
		Errors:          []domain.TickerEvent{{Ticker: "KX-HAIL", Reason: "quote_fetch_failed"}},
		OpenPositions:   1,
		OpenExposure:    11,
		CumulativePnL:   -3.5,
		CumulativeFees:  1.2,
		DailyTradeCount: 4,
	}
}

func TestConsole_NotifyCycle_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.NotifyCycle(context.Background(), makeCycle()))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"), "compact mode prints one line")
	assert.Contains(t, out, "[14:30:00] cycle 12")
	assert.Contains(t, out, "open 1 ($11.00)")
	assert.Contains(t, out, "+1 -1 (+$2.00)")
	assert.Contains(t, out, "pnl -$3.50")
	assert.Contains(t, out, "skip:1 err:1")
}

func TestConsole_NotifyCycle_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.NotifyCycle(context.Background(), makeCycle()))

	out := buf.String()
	assert.Contains(t, out, "KX-RAIN")
	assert.Contains(t, out, "TAKE_PROFIT")
	assert.Contains(t, out, "KX-SNOW")
	assert.Contains(t, out, "$11.00")
	assert.Contains(t, out, "quote_fetch_failed")
}

func TestConsole_NotifyCycle_Quiet(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.NotifyCycle(context.Background(), domain.CycleResult{Cycle: 1, At: t0}))
	out := buf.String()
	assert.Contains(t, out, "cycle 1")
	assert.NotContains(t, out, "skip:")
	assert.NotContains(t, out, "Ticker", "no table without positions")
}

func TestConsole_PrintGateReport(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	n.PrintGateReport(gate.Report{
		Passed:         false,
		FailingReasons: []string{"min_trades: value=12.0000 threshold=300.0000"},
		Checks: []gate.Check{
			{Name: "min_trades", Passed: false, Value: 12, Threshold: 300},
			{Name: "min_profit_factor", Passed: true, Value: gate.Ratio(math.Inf(1)), Threshold: 1.15},
		},
		Metrics: gate.Metrics{Trades: 12, Wins: 12, ProfitFactor: gate.Ratio(math.Inf(1))},
	})

	out := buf.String()
	assert.Contains(t, out, "min_trades")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "VEREDICTO: FAIL (1 criterios)")
}

func TestConsole_PrintSweep(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	n.PrintSweep(&replay.SweepResult{
		Runs: 2, TrainSnapshots: 28, HoldoutSnapshots: 12,
		Top: []replay.RunResult{
			{RunID: 2, Params: replay.Params{TakeProfit: 0.2, StopLoss: 0.12, MaxHoldingMinutes: 240}, Holdout: gate.Metrics{Trades: 9, Expectancy: 0.31}},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "2 runs")
	assert.Contains(t, out, "240m")
	assert.Contains(t, out, "0.3100")
}

func TestConsole_PrintReplaySummary(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	st := domain.NewEngineState()
	st.ClosedPositions = []domain.Position{
		{Ticker: "A", ExitReason: domain.ExitStopLoss, Status: domain.PositionClosed},
		{Ticker: "B", ExitReason: domain.ExitStopLoss, Status: domain.PositionClosed},
		{Ticker: "C", ExitReason: domain.ExitTimeStop, Status: domain.PositionClosed},
	}
	n.PrintReplaySummary(&replay.Result{State: st, Cycles: 60, Entries: 3, Exits: 3, Orders: 6})

	out := buf.String()
	assert.Contains(t, out, "Cycles:   60")
	assert.Contains(t, out, "STOP_LOSS=2 TIME_STOP=1")
}
