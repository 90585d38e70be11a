package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/amezcua/tightbot/internal/domain"
	"github.com/amezcua/tightbot/internal/ports"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier escribiendo a stdout.
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

var _ ports.Notifier = (*Console)(nil)

// Status imprime el estado de los mercados trackeados en el modo configurado.
func (c *Console) Status(_ context.Context, profiles []domain.TightnessProfile) error {
	if len(profiles) == 0 {
		fmt.Fprintf(c.out, "[%s] no markets tracked\n", time.Now().Format("15:04:05"))
		return nil
	}

	if c.table {
		c.printTable(profiles)
	} else {
		c.printCompact(profiles)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(profiles []domain.TightnessProfile) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d mkts", now, len(profiles))

	shown := 0
	for _, p := range profiles {
		if shown >= 4 {
			break
		}
		name := domain.TruncateQuestion(p.Market.Question, p.Market.ConditionID, 25)
		fmt.Fprintf(&sb, " | %s %s Y:%.2f N:%.2f tight:%.0f%% %.0fs",
			p.Market.Asset, name,
			p.CurrentYes, p.CurrentNo,
			p.TightRatio*100, p.SecondsRemaining)
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printTable imprime la tabla completa de mercados trackeados.
func (c *Console) printTable(profiles []domain.TightnessProfile) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] %d markets tracked\n", now, len(profiles))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Asset", "Market", "Strike", "YES ask", "NO ask", "Tight", "AvgSpread", "Snaps", "Left")

	for i, p := range profiles {
		strike := "-"
		if p.Market.Strike != nil {
			strike = fmt.Sprintf("$%.2f", *p.Market.Strike)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			p.Market.Asset,
			domain.TruncateQuestion(p.Market.Question, p.Market.ConditionID, 35),
			strike,
			fmt.Sprintf("%.3f", p.CurrentYes),
			fmt.Sprintf("%.3f", p.CurrentNo),
			fmt.Sprintf("%.0f%%", p.TightRatio*100),
			fmt.Sprintf("%.3f", p.AvgSpread),
			fmt.Sprintf("%d", len(p.Snapshots)),
			fmt.Sprintf("%.0fs", p.SecondsRemaining),
		)
	}

	table.Render()
}

// TradeReport imprime el resumen del ledger de trades.
func (c *Console) TradeReport(_ context.Context, stats domain.TradeStats) error {
	if stats.Total == 0 {
		fmt.Fprintln(c.out, "no trades recorded")
		return nil
	}

	fmt.Fprintf(c.out, "\n=== TRADE REPORT ===\n")

	table := tablewriter.NewWriter(c.out)
	table.Header("Total", "Open", "Wins", "Losses", "Failed", "Staked", "Net")
	table.Append(
		fmt.Sprintf("%d", stats.Total),
		fmt.Sprintf("%d", stats.Open),
		fmt.Sprintf("%d", stats.Wins),
		fmt.Sprintf("%d", stats.Losses),
		fmt.Sprintf("%d", stats.Failed),
		fmt.Sprintf("$%.2f", stats.TotalStake),
		fmt.Sprintf("$%+.2f", stats.NetReturn),
	)
	table.Render()

	if resolved := stats.Wins + stats.Losses; resolved > 0 {
		fmt.Fprintf(c.out, "  win rate: %.0f%% (%d/%d resolved)\n",
			float64(stats.Wins)/float64(resolved)*100, stats.Wins, resolved)
	}
	return nil
}
