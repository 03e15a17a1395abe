package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/optionlab/stratcalc/internal/refresh"
	"github.com/optionlab/stratcalc/internal/strategy"
)

func newRefreshCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute tracked symbols and write reports",
		Long: `Recompute every configured (symbol, strategy) pair plus a volatility
surface per symbol, and write the batch to the report directory. With
--watch the batch repeats on the configured cron schedule until
interrupted.`,
		Example: `  stratcalc refresh
  stratcalc refresh --symbols SPY,QQQ --strategies iron_condor
  stratcalc refresh --watch
  stratcalc refresh --watch --cron "@every 5m"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			runnerCfg, err := refreshConfig(cmd, app)
			if err != nil {
				return err
			}
			runner := refresh.NewRunner(app.Calc, runnerCfg, app.Logger)

			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				spec := app.Config.Refresh.Cron
				if override, _ := cmd.Flags().GetString("cron"); override != "" {
					spec = override
				}

				job := refresh.NewBatchJob(ctx, runner, app.Writer, 0, app.Logger)
				sched := refresh.NewScheduler(app.Logger)
				if err := sched.AddJob(spec, job); err != nil {
					return fmt.Errorf("cron spec %q: %w", spec, err)
				}

				// First batch right away; later failures only log.
				if err := sched.RunNow(job); err != nil {
					return err
				}

				output.Printf("watching %d symbols on %q, interrupt to stop\n",
					len(runnerCfg.Symbols), spec)
				sched.Start()
				<-ctx.Done()
				sched.Stop()
				return nil
			}

			batch, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			if err := app.Writer.WriteBatch(ctx, batch); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(batch)
			}
			output.Printf("computed %d positions and %d surfaces in %s\n",
				len(batch.Analyses), len(batch.Surfaces),
				batch.Finished.Sub(batch.Started).Round(time.Millisecond))
			for _, f := range batch.Failures {
				output.Warning("  %s %s failed: %s", f.Symbol, f.Op, f.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("symbols", nil, "override the configured symbols")
	cmd.Flags().StringSlice("strategies", nil, "override the configured strategies")
	cmd.Flags().Bool("surfaces", true, "also refresh volatility surfaces")
	cmd.Flags().Bool("watch", false, "keep refreshing on the cron schedule")
	cmd.Flags().String("cron", "", "override the configured cron spec")

	return cmd
}

// refreshConfig merges the refresh section of the config with any flag
// overrides.
func refreshConfig(cmd *cobra.Command, app *App) (refresh.Config, error) {
	cfg := refresh.Config{
		Symbols:     app.Config.Refresh.Symbols,
		Strategies:  app.Config.RefreshStrategies(),
		Concurrency: app.Config.Refresh.Concurrency,
	}
	cfg.Surfaces, _ = cmd.Flags().GetBool("surfaces")

	if symbols, _ := cmd.Flags().GetStringSlice("symbols"); len(symbols) > 0 {
		cfg.Symbols = symbols
	}
	if names, _ := cmd.Flags().GetStringSlice("strategies"); len(names) > 0 {
		types := make([]strategy.Type, 0, len(names))
		for _, name := range names {
			t, err := strategy.ParseType(name)
			if err != nil {
				return refresh.Config{}, err
			}
			types = append(types, t)
		}
		cfg.Strategies = types
	}
	return cfg, nil
}
