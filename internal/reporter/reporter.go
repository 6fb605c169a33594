// Package reporter renders human-readable tables for strategy state and
// plan replays.
package reporter

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"weex-grid-bot-go/internal/models"
	"weex-grid-bot-go/internal/planner"
)

// WriteSummary prints the headline figures of a strategy run.
func WriteSummary(w io.Writer, state *models.StrategyState) {
	runtime := time.Duration(0)
	if state.StartTime > 0 {
		end := state.LastUpdate
		if end < state.StartTime {
			end = time.Now().UnixMilli()
		}
		runtime = time.Duration(end-state.StartTime) * time.Millisecond
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Strategy Summary")
	t.AppendRows([]table.Row{
		{"Symbol", state.Symbol},
		{"Direction", state.Direction},
		{"Runtime", runtime.Round(time.Second)},
		{"Current Price", fmt.Sprintf("%.4f", state.CurrentPrice)},
		{"Grid Range", fmt.Sprintf("%.4f .. %.4f", state.LowerBound, state.UpperBound)},
		{"Realized PnL", fmt.Sprintf("%.4f", state.RealizedPnL)},
		{"Stop-Loss Triggered", state.StopLossTriggered},
	})
	t.Render()
}

// WriteLevels prints one row per grid level with its lifecycle state and
// accumulated profit.
func WriteLevels(w io.Writer, state *models.StrategyState) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Grid Levels")
	t.AppendHeader(table.Row{"#", "Price", "State", "Filled", "Close Target", "Realized PnL"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Price", Align: text.AlignRight},
		{Name: "Filled", Align: text.AlignRight},
		{Name: "Close Target", Align: text.AlignRight},
		{Name: "Realized PnL", Align: text.AlignRight},
	})

	var total float64
	for i, lvl := range state.GridLevels {
		filled := "-"
		if lvl.FilledPrice > 0 {
			filled = fmt.Sprintf("%.4f", lvl.FilledPrice)
		}
		target := "-"
		if lvl.CloseTargetPrice > 0 {
			target = fmt.Sprintf("%.4f", lvl.CloseTargetPrice)
		}
		t.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.4f", lvl.Price),
			lvl.State,
			filled,
			target,
			fmt.Sprintf("%.4f", lvl.RealizedPnL),
		})
		total += lvl.RealizedPnL
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", fmt.Sprintf("%.4f", total)})
	t.Render()
}

// WritePlan prints a plan replay result.
func WritePlan(w io.Writer, res *planner.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Grid Plan Estimate")
	t.AppendRows([]table.Row{
		{"Symbol", res.Symbol},
		{"Direction", res.Direction},
		{"Grid Count", res.GridCount},
		{"Period", fmt.Sprintf("%s .. %s",
			res.Start.Format("2006-01-02 15:04"), res.End.Format("2006-01-02 15:04"))},
		{"Candles", res.Candles},
		{"Initial Price", fmt.Sprintf("%.4f", res.InitialPrice)},
		{"Final Price", fmt.Sprintf("%.4f", res.FinalPrice)},
		{"Final Range", fmt.Sprintf("%.4f .. %.4f", res.FinalLower, res.FinalUpper)},
		{"Rebuilds", res.Rebuilds},
		{"Round Trips", res.RoundTrips},
		{"Estimated Profit", fmt.Sprintf("%.4f", res.EstimatedProfit)},
	})
	t.Render()
}
