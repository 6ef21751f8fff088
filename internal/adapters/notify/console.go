package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
	"github.com/olekukonko/tablewriter"
)

var _ ports.Notifier = (*Console)(nil)

// Console implementa ports.Notifier y además imprime los reportes de
// replay, sweep y gate.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
// Con table=true cada ciclo imprime la tabla de entradas y salidas.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyCycle imprime el resumen del ciclo.
func (c *Console) NotifyCycle(_ context.Context, res domain.CycleResult) error {
	c.printCompact(res)
	if c.table && (len(res.Entries) > 0 || len(res.Exits) > 0) {
		c.printPositions(res)
	}
	if c.table && len(res.Errors) > 0 {
		for _, e := range res.Errors {
			fmt.Fprintf(c.out, "  ! %-20s %s\n", truncate(e.Ticker, 20), e.Reason)
		}
	}
	return nil
}

// printCompact imprime el ciclo en una línea.
func (c *Console) printCompact(res domain.CycleResult) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] cycle %d | open %d ($%.2f) | +%d -%d",
		res.At.Format("15:04:05"), res.Cycle,
		res.OpenPositions, res.OpenExposure,
		len(res.Entries), len(res.Exits))

	if len(res.Exits) > 0 {
		fmt.Fprintf(&sb, " (%s)", signed(res.RealizedPnL()))
	}
	fmt.Fprintf(&sb, " | pnl %s fees $%.2f | today %d",
		signed(res.CumulativePnL), res.CumulativeFees, res.DailyTradeCount)

	if len(res.Skips) > 0 || len(res.Errors) > 0 || res.ExpiredSignals > 0 {
		fmt.Fprintf(&sb, " | skip:%d err:%d expired:%d", len(res.Skips), len(res.Errors), res.ExpiredSignals)
	}
	if res.DayRolled {
		sb.WriteString(" | new day")
	}
	fmt.Fprintln(c.out, sb.String())
}

// printPositions imprime una fila por entrada o salida del ciclo.
func (c *Console) printPositions(res domain.CycleResult) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Event", "Ticker", "Side", "Size", "Entry", "Exit", "Net edge", "PnL", "Reason")

	for _, p := range res.Exits {
		table.Append(
			"EXIT",
			truncate(p.Ticker, 24),
			string(p.Side),
			fmt.Sprintf("%d", p.Size),
			fmt.Sprintf("%.4f", p.EntryPrice),
			fmt.Sprintf("%.4f", p.ExitPrice),
			fmt.Sprintf("%.4f", p.NetEdgeAtEntry),
			signed(p.RealizedPnL),
			string(p.ExitReason),
		)
	}
	for _, p := range res.Entries {
		table.Append(
			"ENTRY",
			truncate(p.Ticker, 24),
			string(p.Side),
			fmt.Sprintf("%d", p.Size),
			fmt.Sprintf("%.4f", p.EntryPrice),
			"-",
			fmt.Sprintf("%.4f", p.NetEdgeAtEntry),
			"-",
			fmt.Sprintf("$%.2f", p.Notional),
		)
	}
	table.Render()
}

// signed formatea dólares con signo explícito.
func signed(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
