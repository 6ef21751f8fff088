package notify

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/alejandrodnm/edgebot/internal/application/engine/replay"
	"github.com/alejandrodnm/edgebot/internal/application/gate"
	"github.com/olekukonko/tablewriter"
)

// PrintGateReport imprime cada criterio del gate y el veredicto.
func (c *Console) PrintGateReport(r gate.Report) {
	fmt.Fprintf(c.out, "\n=== GO-LIVE GATE ===\n")
	c.printMetrics(r.Metrics)

	table := tablewriter.NewWriter(c.out)
	table.Header("Check", "Value", "Threshold", "Result", "Detail")
	for _, ch := range r.Checks {
		result := "PASS"
		if !ch.Passed {
			result = "FAIL"
		}
		table.Append(
			ch.Name,
			ratio(ch.Value),
			fmt.Sprintf("%.4f", ch.Threshold),
			result,
			ch.Detail,
		)
	}
	table.Render()

	if r.Passed {
		fmt.Fprintf(c.out, "\n  VEREDICTO: PASS, listo para live\n\n")
		return
	}
	fmt.Fprintf(c.out, "\n  VEREDICTO: FAIL (%d criterios)\n", len(r.FailingReasons))
	for _, reason := range r.FailingReasons {
		fmt.Fprintf(c.out, "    - %s\n", reason)
	}
	fmt.Fprintln(c.out)
}

// PrintReplaySummary imprime el resultado de un replay.
func (c *Console) PrintReplaySummary(res *replay.Result) {
	fmt.Fprintf(c.out, "\n=== REPLAY ===\n")
	fmt.Fprintf(c.out, "  Cycles:   %d\n", res.Cycles)
	fmt.Fprintf(c.out, "  Entries:  %d | Exits: %d | Orders: %d\n", res.Entries, res.Exits, res.Orders)
	fmt.Fprintf(c.out, "  Open:     %d positions ($%.2f)\n", len(res.State.OpenPositions), res.State.OpenExposure())
	c.printMetrics(res.Metrics)
	c.printExitReasons(res)
	fmt.Fprintln(c.out)
}

// PrintSweep imprime el ranking de un sweep.
func (c *Console) PrintSweep(res *replay.SweepResult) {
	fmt.Fprintf(c.out, "\n=== SWEEP: %d runs | train %d snapshots | holdout %d snapshots ===\n",
		res.Runs, res.TrainSnapshots, res.HoldoutSnapshots)

	if len(res.Top) == 0 {
		fmt.Fprintln(c.out, "  (no runs)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Run", "NetEdge", "Spread", "Conf", "TP", "SL", "Hold", "Train exp", "Hold trades", "Hold exp", "Hold PF", "Hold DD")
	for i, r := range res.Top {
		p := r.Params
		table.Append(
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%d", r.RunID),
			fmt.Sprintf("%.3f", p.MinNetEdge),
			fmt.Sprintf("%.3f", p.MaxSpread),
			fmt.Sprintf("%.2f", p.MinConfidence),
			fmt.Sprintf("%.2f", p.TakeProfit),
			fmt.Sprintf("%.2f", p.StopLoss),
			fmt.Sprintf("%dm", p.MaxHoldingMinutes),
			fmt.Sprintf("%.4f", r.Train.Expectancy),
			fmt.Sprintf("%d", r.Holdout.Trades),
			fmt.Sprintf("%.4f", r.Holdout.Expectancy),
			ratio(r.Holdout.ProfitFactor),
			fmt.Sprintf("$%.2f", r.Holdout.MaxDrawdown),
		)
	}
	table.Render()
	fmt.Fprintln(c.out, "  Ranking: holdout expectancy > profit factor > drawdown (asc) > run id")
	fmt.Fprintln(c.out)
}

func (c *Console) printMetrics(m gate.Metrics) {
	fmt.Fprintf(c.out, "  Trades:   %d (W %d / L %d, win rate %.1f%%)\n", m.Trades, m.Wins, m.Losses, m.WinRate*100)
	fmt.Fprintf(c.out, "  PnL:      %s (expectancy %s/trade, PF %s)\n", signed(m.TotalPnL), signed(m.Expectancy), ratio(m.ProfitFactor))
	fmt.Fprintf(c.out, "  Drawdown: $%.2f (%.1f%% of bankroll)\n", m.MaxDrawdown, m.MaxDrawdownPct*100)
	fmt.Fprintf(c.out, "  Cost telemetry: %.1f%% | avg hold %.1f min\n", m.CostCoverage*100, m.AvgHoldingMinutes)
	if m.MaxTicker != "" {
		fmt.Fprintf(c.out, "  Top ticker: %s (%.1f%% of |pnl|)\n", m.MaxTicker, m.MaxTickerShare*100)
	}
	if len(m.HoldoutExpectancy) > 0 {
		windows := make([]int, 0, len(m.HoldoutExpectancy))
		for w := range m.HoldoutExpectancy {
			windows = append(windows, w)
		}
		slices.Sort(windows)
		parts := make([]string, len(windows))
		for i, w := range windows {
			parts[i] = fmt.Sprintf("last %d: %s", w, signed(m.HoldoutExpectancy[w]))
		}
		fmt.Fprintf(c.out, "  Holdout:  %s\n", strings.Join(parts, " | "))
	}
}

func (c *Console) printExitReasons(res *replay.Result) {
	counts := make(map[string]int)
	for _, p := range res.State.ClosedPositions {
		counts[string(p.ExitReason)]++
	}
	if len(counts) == 0 {
		return
	}
	reasons := make([]string, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	slices.Sort(reasons)
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = fmt.Sprintf("%s=%d", r, counts[r])
	}
	fmt.Fprintf(c.out, "  Exits:    %s\n", strings.Join(parts, " "))
}

func ratio(v gate.Ratio) string {
	if math.IsInf(float64(v), 1) {
		return "INF"
	}
	return fmt.Sprintf("%.4f", float64(v))
}
