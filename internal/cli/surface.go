package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/optionlab/stratcalc/internal/engine"
)

func newSurfaceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "surface <symbol>",
		Short: "Build the implied-volatility surface for a symbol",
		Long: `Build an IV grid over strikes and expirations. Chain quotes are used
where available; gaps are filled from a parametric smile.`,
		Example: `  stratcalc surface AAPL
  stratcalc surface SPY --json
  stratcalc surface NVDA --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			surf, err := app.Calc.Surface(ctx, strings.ToUpper(args[0]))
			if err != nil {
				return err
			}

			if save, _ := cmd.Flags().GetBool("save"); save {
				paths, err := app.Writer.WriteSurface(surf)
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
				return output.JSON(surf)
			}
			renderSurface(output, surf)
			return nil
		},
	}

	cmd.Flags().Bool("save", false, "also write the surface to the report directory")

	return cmd
}

func renderSurface(output *Output, s *engine.VolatilitySurfaceData) {
	expirations := map[time.Time]bool{}
	for _, pt := range s.Points {
		expirations[pt.Expiration] = true
	}

	output.Bold("IV surface for %s @ %.2f", s.Symbol, s.CurrentPrice)
	output.Printf("  source:       %s\n", s.Source)
	output.Printf("  grid:         %d points over %d expirations\n", len(s.Points), len(expirations))
	output.Printf("  iv range:     %.1f .. %.1f (avg %.1f)\n", s.Stats.MinIV, s.Stats.MaxIV, s.Stats.AvgIV)
	output.Printf("  put skew:     %+.1f\n", s.Stats.PutSkew)
	output.Printf("  term slope:   %s\n", s.Stats.TermStructure)
}
