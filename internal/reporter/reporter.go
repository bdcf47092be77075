// Package reporter renders the end-of-replay performance summary.
package reporter

import (
	"fmt"
	"io"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"alpha-tick-bot-go/internal/gateway"
)

// Summary holds the aggregate statistics computed from a replay run.
type Summary struct {
	Trades        int
	Wins          int
	Losses        int
	WinRate       float64
	NetProfit     float64
	GrossProfit   float64
	GrossLoss     float64
	ProfitFactor  float64
	MaxDrawdown   float64 // fraction of peak equity
	TotalFees     float64
	FinalEquity   float64
	InitialEquity float64
}

// Summarize folds the paper gateway's trade log and equity curve into a
// Summary. Partial exits count as separate trades; that matches how the
// ladder realizes profit.
func Summarize(g *gateway.PaperGateway) Summary {
	s := Summary{
		InitialEquity: g.InitialEquity(),
		TotalFees:     g.TotalFees(),
	}

	for _, t := range g.TradeLog() {
		s.Trades++
		if t.Profit >= 0 {
			s.Wins++
			s.GrossProfit += t.Profit
		} else {
			s.Losses++
			s.GrossLoss += -t.Profit
		}
		s.NetProfit += t.Profit
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	} else if s.GrossProfit > 0 {
		s.ProfitFactor = math.Inf(1)
	}

	curve := g.EquityCurve()
	peak := s.InitialEquity
	for _, eq := range curve {
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			dd := (peak - eq) / peak
			if dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
	}
	s.FinalEquity = s.InitialEquity + s.NetProfit
	if n := len(curve); n > 0 {
		s.FinalEquity = curve[n-1]
	}

	return s
}

// Render writes the summary and the closed-trade table to w.
func Render(w io.Writer, g *gateway.PaperGateway) {
	s := Summarize(g)

	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetStyle(table.StyleLight)
	summary.SetTitle("Replay Performance")
	summary.AppendRows([]table.Row{
		{"Initial Equity", fmt.Sprintf("%.2f", s.InitialEquity)},
		{"Final Equity", fmt.Sprintf("%.2f", s.FinalEquity)},
		{"Net Profit", fmt.Sprintf("%.2f", s.NetProfit)},
		{"Closed Trades", s.Trades},
		{"Win Rate", fmt.Sprintf("%.1f%%", s.WinRate*100)},
		{"Profit Factor", formatProfitFactor(s.ProfitFactor)},
		{"Max Drawdown", fmt.Sprintf("%.1f%%", s.MaxDrawdown*100)},
		{"Total Fees", fmt.Sprintf("%.2f", s.TotalFees)},
	})
	summary.Render()

	trades := g.TradeLog()
	if len(trades) == 0 {
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("Closed Trades")
	tw.AppendHeader(table.Row{"#", "Ticket", "Side", "Qty", "Entry", "Exit", "P&L", "Reason", "Closed At"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "P&L", Align: text.AlignRight},
		{Name: "Qty", Align: text.AlignRight},
	})
	for i, t := range trades {
		tw.AppendRow(table.Row{
			i + 1,
			t.Ticket,
			t.Direction,
			fmt.Sprintf("%.5f", t.Quantity),
			fmt.Sprintf("%.5f", t.EntryPrice),
			fmt.Sprintf("%.5f", t.ExitPrice),
			fmt.Sprintf("%.2f", t.Profit),
			t.Reason,
			t.ExitTime.Format("2006-01-02 15:04"),
		})
	}
	tw.Render()
}

func formatProfitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}
