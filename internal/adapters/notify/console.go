package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// Console implementa ports.Notifier escribiendo el resumen del ciclo
// por stdout: una línea compacta por defecto, o tablas completas en
// modo -table.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el reporte en el modo configurado.
func (c *Console) Notify(_ context.Context, report domain.StatusReport) error {
	if c.table {
		c.printFull(report)
	} else {
		c.printCompact(report)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(r domain.StatusReport) {
	passed, failed := countAssertions(r.Assertions)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d windows | %d open | %d closed | pnl $%.2f | bank $%.2f | inv %d/%d",
		r.At.Format("15:04:05"), r.ActiveWindows, len(r.OpenTrades), r.ClosedToday,
		r.RealizedPnL, r.Bankroll, passed, passed+failed)

	if r.BreachesActive > 0 {
		fmt.Fprintf(&sb, " | BREACH:%d", r.BreachesActive)
	}
	if failed > 0 {
		fmt.Fprintf(&sb, " | FAIL:%d", failed)
	}
	for _, sp := range r.Spreads {
		fmt.Fprintf(&sb, " | %s %+0.3f%%", sp.Symbol, sp.Pct*100)
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime el estado completo: precios, posiciones abiertas y
// assertions.
func (c *Console) printFull(r domain.StatusReport) {
	passed, failed := countAssertions(r.Assertions)
	fmt.Fprintf(c.out, "\n[%s] %d active windows — open:%d closed:%d pnl:$%.2f bank:$%.2f inv:%d/%d\n",
		r.At.Format("15:04:05"), r.ActiveWindows, len(r.OpenTrades), r.ClosedToday,
		r.RealizedPnL, r.Bankroll, passed, passed+failed)

	c.printPrices(r)
	c.printTrades(r.OpenTrades)
	c.printAssertions(r.Assertions)
}

func (c *Console) printPrices(r domain.StatusReport) {
	if len(r.Composites) == 0 && len(r.Spreads) == 0 {
		return
	}
	spreads := make(map[string]domain.Spread, len(r.Spreads))
	for _, sp := range r.Spreads {
		spreads[sp.Symbol] = sp
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Asset", "Composite", "Venues", "Spread %", "Direction", "Breach")

	for _, snap := range r.Composites {
		spreadCol, dirCol, breachCol := "-", "-", ""
		if sp, ok := spreads[snap.Symbol]; ok {
			spreadCol = fmt.Sprintf("%+.4f%%", sp.Pct*100)
			dirCol = string(sp.Direction)
			if sp.Breached {
				breachCol = "BREACH"
			}
		}
		table.Append(
			snap.Symbol,
			fmt.Sprintf("%.2f", snap.Price),
			fmt.Sprintf("%d", snap.VenueCount),
			spreadCol,
			dirCol,
			breachCol,
		)
	}
	table.Render()
}

func (c *Console) printTrades(trades []domain.SimulatedTrade) {
	if len(trades) == 0 {
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Strategy", "Window", "Side", "Shares", "Entry", "Cost", "Age")

	now := time.Now()
	for i, t := range trades {
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.Strategy+"/"+t.Variation,
			compactSlug(t.Slug, 28),
			string(t.Side),
			fmt.Sprintf("%.1f", t.Shares),
			fmt.Sprintf("%.3f", t.EntryPrice),
			fmt.Sprintf("$%.2f", t.Cost),
			now.Sub(t.OpenedAt).Round(time.Second).String(),
		)
	}
	table.Render()
}

func (c *Console) printAssertions(assertions []domain.Assertion) {
	failing := 0
	for _, a := range assertions {
		if a.Failed() {
			failing++
		}
	}
	if failing == 0 {
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Invariant", "State", "Message")
	for _, a := range assertions {
		if !a.Failed() {
			continue
		}
		table.Append(a.Name, "FAIL", a.Message)
	}
	table.Render()
}

func countAssertions(assertions []domain.Assertion) (passed, failed int) {
	for _, a := range assertions {
		switch {
		case a.Pending():
		case a.Failed():
			failed++
		default:
			passed++
		}
	}
	return passed, failed
}

// compactSlug recorta un slug largo para la tabla.
func compactSlug(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
