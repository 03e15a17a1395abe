package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/optionlab/stratcalc/internal/engine"
)

func newMoveCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <symbol>",
		Short: "Show the expected one-standard-deviation price move",
		Example: `  stratcalc move AAPL
  stratcalc move SPY --dte 45
  stratcalc move TSLA --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			dte, _ := cmd.Flags().GetInt("dte")
			move, err := app.Calc.Move(ctx, strings.ToUpper(args[0]), dte)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(move)
			}
			renderMove(output, move, dte)
			return nil
		},
	}

	cmd.Flags().Int("dte", 0, "also compute the band out to this many days")

	return cmd
}

func renderMove(output *Output, m *engine.ExpectedMove, dte int) {
	output.Bold("Expected move for %s @ %.2f (IV %.1f)", m.Symbol, m.Price, m.IV)

	table := NewTable(output, "horizon", "low", "high", "move", "move%")
	addBand := func(name string, b engine.MoveBand) {
		table.AddRow(name,
			fmt.Sprintf("%.2f", b.Low),
			fmt.Sprintf("%.2f", b.High),
			fmt.Sprintf("%.2f", b.Move),
			fmt.Sprintf("%.1f%%", b.MovePct),
		)
	}
	addBand("daily", m.Daily)
	addBand("weekly", m.Weekly)
	if m.ToExpiry != nil {
		label := "expiry"
		if dte > 0 {
			label = fmt.Sprintf("%dd", dte)
		}
		addBand(label, *m.ToExpiry)
	}
	table.Render()
}
