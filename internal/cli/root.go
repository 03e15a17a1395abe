// Package cli implements the stratcalc command tree.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/optionlab/stratcalc/internal/config"
	"github.com/optionlab/stratcalc/internal/engine"
	"github.com/optionlab/stratcalc/internal/logger"
	"github.com/optionlab/stratcalc/internal/marketdata"
	"github.com/optionlab/stratcalc/internal/report"
)

// Version of the stratcalc binary.
const Version = "0.2.0"

// App holds the dependencies the commands share, wired up once per
// invocation by the root command's PersistentPreRunE.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Provider marketdata.Provider
	Calc     *engine.Calculator
	Writer   *report.Writer
}

// NewRootCmd builds the stratcalc command tree.
func NewRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "stratcalc",
		Short: "Options strategy calculation engine",
		Long: `stratcalc computes multi-leg option strategy positions from live or
synthetic chains: strike selection, risk metrics, probability of profit,
expected moves, and volatility surfaces.

Without a Polygon API key it runs against a deterministic synthetic
provider, so every command works out of the box.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "strategies", "help", "completion":
				return nil
			}
			return app.init(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().Bool("json", false, "output results as JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newSurfaceCmd(app))
	rootCmd.AddCommand(newMoveCmd(app))
	rootCmd.AddCommand(newRefreshCmd(app))
	rootCmd.AddCommand(newStrategiesCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// init loads configuration and builds the provider, calculator, and report
// writer the subcommands use.
func (a *App) init(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := cfg.LoggerConfig()
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logCfg.Level = "debug"
	}
	log := logger.New(logCfg)
	logger.SetGlobalLogger(log)

	provider, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}

	a.Config = cfg
	a.Logger = log
	a.Provider = provider
	a.Calc = engine.New(provider, cfg.EngineConfig(), log)
	a.Writer = report.NewWriter(cfg.Report.Dir, cfg.Report.Format, log)
	return nil
}

// buildProvider picks the market-data source: polygon when configured or
// when an API key is present, synthetic otherwise. The polygon provider
// gets the synthetic one as fallback, and everything is wrapped in a TTL
// cache when one is configured.
func buildProvider(cfg *config.Config, log zerolog.Logger) (marketdata.Provider, error) {
	kind := cfg.Provider.Kind
	if kind == "" {
		if cfg.Provider.APIKey != "" {
			kind = "polygon"
		} else {
			kind = "synthetic"
		}
	}

	var base marketdata.Provider
	switch kind {
	case "polygon":
		p := marketdata.NewPolygonProvider(cfg.Provider.APIKey, log)
		if cfg.Provider.BaseURL != "" {
			p = p.WithBaseURL(cfg.Provider.BaseURL)
		}
		base = p.WithSecondary(marketdata.NewSyntheticProvider())
		log.Info().Msg("polygon provider enabled")
	case "synthetic":
		base = marketdata.NewSyntheticProvider()
		log.Info().Msg("synthetic provider enabled")
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}

	if ttl := cfg.Provider.CacheTTL.Duration; ttl > 0 {
		base = marketdata.NewCachingProvider(base, ttl, cfg.Provider.CacheEntries, log)
	}
	return base, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{"version": Version})
				return
			}
			output.Printf("stratcalc v%s\n", Version)
		},
	}
}
