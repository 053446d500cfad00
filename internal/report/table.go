package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"

	"ai-trading-floor/internal/types"
)

// RenderAccounts prints one row per account summary.
func RenderAccounts(w io.Writer, rows []Summary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Trader", "Strategy", "Cash", "Value", "P&L", "Return", "Max DD", "Samples", "Holdings"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoWrapText(false)

	for _, s := range rows {
		table.Append([]string{
			s.Name,
			s.Strategy,
			s.Cash.StringFixed(2),
			s.Value.StringFixed(2),
			s.ProfitLoss.StringFixed(2),
			fmt.Sprintf("%.2f%%", s.TotalReturn*100),
			fmt.Sprintf("%.2f%%", s.MaxDrawdown*100),
			fmt.Sprint(s.Samples),
			s.HoldingsString(),
		})
	}
	table.Render()
}

// RenderStatus prints the floor state and per-trader turn counters.
func RenderStatus(w io.Writer, st types.FloorStatus) {
	fmt.Fprintf(w, "Floor %s after %d cycles\n", st.State, st.Cycle)

	names := make([]string, 0, len(st.Traders))
	for n := range st.Traders {
		names = append(names, n)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Trader", "Turns", "Succeeded", "Failures", "Last Status", "Last Error"})
	table.SetColumnSeparator("")
	for _, n := range names {
		ts := st.Traders[n]
		table.Append([]string{
			n,
			fmt.Sprint(ts.TurnsAttempted),
			fmt.Sprint(ts.TurnsSucceeded),
			fmt.Sprint(ts.Failures),
			string(ts.LastStatus),
			ts.LastError,
		})
	}
	table.Render()
}
