package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/optionlab/stratcalc/internal/engine"
	"github.com/optionlab/stratcalc/internal/strategy"
)

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <symbol>",
		Short: "Compute a strategy position for a symbol",
		Long: `Compute a full strategy position: selected legs, premiums, risk
bounds, breakevens, probability of profit, and expected move.`,
		Example: `  stratcalc analyze AAPL
  stratcalc analyze SPY --strategy iron_condor --dte 45
  stratcalc analyze TSLA --strategy butterfly_spread --expiration 2026-10-16
  stratcalc analyze MSFT --json --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			name, _ := cmd.Flags().GetString("strategy")
			st, err := strategy.ParseType(name)
			if err != nil {
				return err
			}

			req := engine.Request{
				Symbol:   strings.ToUpper(args[0]),
				Strategy: st,
			}
			req.DTE, _ = cmd.Flags().GetInt("dte")
			if expStr, _ := cmd.Flags().GetString("expiration"); expStr != "" {
				exp, err := time.Parse("2006-01-02", expStr)
				if err != nil {
					return fmt.Errorf("invalid expiration %q, want YYYY-MM-DD", expStr)
				}
				req.Expiration = exp
			}

			analysis, err := app.Calc.Analyze(ctx, req)
			if err != nil {
				return err
			}

			if save, _ := cmd.Flags().GetBool("save"); save {
				paths, err := app.Writer.WriteAnalysis(analysis)
				if err != nil {
					return err
				}
				if !output.IsJSON() {
					for _, p := range paths {
						output.Dim("wrote %s", p)
					}
				}
			}

			if output.IsJSON() {
				return output.JSON(analysis)
			}
			renderAnalysis(output, analysis)
			return nil
		},
	}

	cmd.Flags().String("strategy", "long_strangle", "strategy to compute ("+strategyNames()+")")
	cmd.Flags().Int("dte", 0, "target days to expiration (0 uses the configured default)")
	cmd.Flags().String("expiration", "", "exact expiration date YYYY-MM-DD, overrides --dte")
	cmd.Flags().Bool("save", false, "also write the result to the report directory")

	return cmd
}

func strategyNames() string {
	names := make([]string, 0, len(strategy.All()))
	for _, t := range strategy.All() {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

func catalogName(t strategy.Type) string {
	for _, d := range strategy.Catalog() {
		if d.Type == t {
			return d.Name
		}
	}
	return t.String()
}

func renderAnalysis(output *Output, a *engine.Analysis) {
	p := a.Position

	output.Bold("%s on %s @ %.2f", catalogName(p.Strategy), p.Symbol, p.Underlying)
	output.Printf("  expiration:   %s (%d DTE)\n", p.Expiration.Format("2006-01-02"), p.DaysToExpiry)
	output.Printf("  net premium:  %s\n", fmtPremium(p.NetPremium))
	output.Printf("  max loss:     %s\n", p.MaxLoss.String())
	output.Printf("  max profit:   %s\n", p.MaxProfit.String())
	output.Printf("  breakevens:   %s\n", fmtBreakevens(p.Lower, p.Upper))
	if p.Probability != nil {
		output.Printf("  prob profit:  %.1f%%\n", p.Probability.ProbOfProfit*100)
	}
	output.Printf("  implied vol:  %.1f (percentile %.0f)\n", p.ImpliedVol, p.IVPercentile)
	if p.Collateral != "" {
		output.Printf("  collateral:   %s\n", p.Collateral)
	}

	output.Println()
	output.Println("  legs:")
	for _, leg := range p.Legs {
		output.Printf("    %-4s %dx %-4s %8.2f @ %.2f  exp %s\n",
			leg.Action, leg.Quantity, leg.ContractType,
			leg.Strike, leg.Premium, leg.Expiration.Format("2006-01-02"))
	}

	output.Println()
	output.Println("  expected move (1 std dev):")
	output.Printf("    daily   ±%.2f (%.1f%%)\n", a.ExpectedMove.Daily.Move, a.ExpectedMove.Daily.MovePct)
	output.Printf("    weekly  ±%.2f (%.1f%%)\n", a.ExpectedMove.Weekly.Move, a.ExpectedMove.Weekly.MovePct)
	if a.ExpectedMove.ToExpiry != nil {
		output.Printf("    expiry  ±%.2f (%.1f%%)\n", a.ExpectedMove.ToExpiry.Move, a.ExpectedMove.ToExpiry.MovePct)
	}

	if t := p.Trace; t != nil {
		if t.BandRelaxed {
			output.Warning("  note: the strike filter was relaxed to fill this position")
		}
		if t.SeparationAdjusted {
			output.Warning("  note: leg separation was adjusted to keep strikes distinct")
		}
	}
}

func fmtPremium(net float64) string {
	if net < 0 {
		return fmt.Sprintf("%.2f credit", -net)
	}
	return fmt.Sprintf("%.2f debit", net)
}

func fmtBreakevens(lower, upper *float64) string {
	if lower == nil && upper == nil {
		return "unknown"
	}
	side := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.2f", *v)
	}
	return side(lower) + " / " + side(upper)
}
