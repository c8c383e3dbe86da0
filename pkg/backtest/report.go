package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantpulse/quantpulse/internal/models"
)

// Report renders a finished result as a plain-text summary for the CLI.
func Report(r *models.BacktestResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Backtest %s\n", r.ID)
	fmt.Fprintf(&b, "  symbol:   %s\n", r.Config.Symbol)
	fmt.Fprintf(&b, "  range:    %s .. %s\n",
		r.Config.Start.Format("2006-01-02"), r.Config.End.Format("2006-01-02"))
	fmt.Fprintf(&b, "  capital:  %.2f\n", r.Config.InitialCapital)
	fmt.Fprintf(&b, "  status:   %s\n", r.Status)

	if r.Status == models.BacktestFailed {
		fmt.Fprintf(&b, "  error:    %s\n", r.Error)
		return b.String()
	}

	m := r.Metrics
	fmt.Fprintf(&b, "\nPerformance\n")
	fmt.Fprintf(&b, "  total return:  %+.2f%%\n", m.TotalReturn*100)
	fmt.Fprintf(&b, "  sharpe:        %.3f\n", m.Sharpe)
	fmt.Fprintf(&b, "  max drawdown:  %.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(&b, "  win rate:      %.1f%%\n", m.WinRate*100)
	fmt.Fprintf(&b, "  trades:        %d\n", m.TotalTrades)
	if m.TotalTrades > 0 {
		fmt.Fprintf(&b, "  avg duration:  %s\n",
			(time.Duration(m.AvgDurationMS) * time.Millisecond).Round(time.Minute))
	}

	if len(r.Equity) > 0 {
		final := r.Equity[len(r.Equity)-1]
		fmt.Fprintf(&b, "  final equity:  %.2f (%s)\n",
			final.Equity, final.Timestamp.Format("2006-01-02"))
	}

	if len(r.Trades) > 0 {
		fmt.Fprintf(&b, "\nTrades\n")
		for _, t := range r.Trades {
			fmt.Fprintf(&b, "  %s  %s  %8.2f -> %8.2f  qty %.4f  pnl %+10.2f\n",
				t.EnteredAt.Format("2006-01-02"), t.Symbol,
				t.EntryPrice, t.ExitPrice, t.Quantity, t.PnL)
		}
	}

	return b.String()
}
