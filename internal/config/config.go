// Package config defines the stratcalc configuration: defaults, an optional
// TOML file, and STRATCALC_* environment overrides, merged in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/optionlab/stratcalc/internal/engine"
	"github.com/optionlab/stratcalc/internal/logger"
	"github.com/optionlab/stratcalc/internal/strategy"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by STRATCALC_* environment
// variables.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Engine   EngineConfig   `toml:"engine"`
	Strategy StrategyConfig `toml:"strategy"`
	Surface  SurfaceConfig  `toml:"surface"`
	Refresh  RefreshConfig  `toml:"refresh"`
	Report   ReportConfig   `toml:"report"`
	Log      LogConfig      `toml:"log"`
}

// ProviderConfig selects and tunes the market-data source.
type ProviderConfig struct {
	// Kind picks the provider: "polygon", "synthetic", or empty to choose
	// polygon when an API key is present and synthetic otherwise.
	Kind         string   `toml:"kind"`
	APIKey       string   `toml:"api_key"`
	BaseURL      string   `toml:"base_url"`
	CacheTTL     duration `toml:"cache_ttl"`
	CacheEntries int      `toml:"cache_entries"`
}

// EngineConfig carries the calculation heuristics.
type EngineConfig struct {
	RiskFreeRate     float64 `toml:"risk_free_rate"`
	TargetDTE        int     `toml:"target_dte"`
	HistoryDays      int     `toml:"history_days"`
	MoneynessBandPct float64 `toml:"moneyness_band_pct"`
	StrikeWindow     float64 `toml:"strike_window"`
	MinSeparation    float64 `toml:"min_separation"`
	SigmaSpan        float64 `toml:"sigma_span"`
}

// StrategyConfig places the computed strategies' strikes.
type StrategyConfig struct {
	StrangleOTMPct    float64 `toml:"strangle_otm_pct"`
	CondorShortOTMPct float64 `toml:"condor_short_otm_pct"`
	CondorWingPct     float64 `toml:"condor_wing_pct"`
	ButterflyWingPct  float64 `toml:"butterfly_wing_pct"`
	CalendarNearDTE   int     `toml:"calendar_near_dte"`
	CalendarFarDTE    int     `toml:"calendar_far_dte"`
	CalendarOTMPct    float64 `toml:"calendar_otm_pct"`
}

// SurfaceConfig shapes the volatility-surface grid and its parametric
// fallback.
type SurfaceConfig struct {
	WeeklyCount   int                `toml:"weekly_count"`
	MonthlyCount  int                `toml:"monthly_count"`
	LadderSpanPct float64            `toml:"ladder_span_pct"`
	BaseIV        map[string]float64 `toml:"base_iv"`
	DefaultBaseIV float64            `toml:"default_base_iv"`
}

// RefreshConfig drives the batch refresh service.
type RefreshConfig struct {
	Symbols     []string `toml:"symbols"`
	Strategies  []string `toml:"strategies"`
	Concurrency int      `toml:"concurrency"`
	Cron        string   `toml:"cron"`
}

// ReportConfig controls where and how results are written.
type ReportConfig struct {
	Dir    string `toml:"dir"`
	Format string `toml:"format"` // json, csv, or both
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level      string `toml:"level"`
	Pretty     bool   `toml:"pretty"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// duration wraps time.Duration so the TOML decoder accepts "5m" strings.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the documented heuristics. These
// match the values in config.example.toml.
func Defaults() Config {
	eng := engine.DefaultConfig()
	params := strategy.DefaultParams()

	return Config{
		Provider: ProviderConfig{
			CacheTTL:     duration{time.Minute},
			CacheEntries: 512,
		},
		Engine: EngineConfig{
			RiskFreeRate:     eng.RiskFreeRate,
			TargetDTE:        eng.TargetDTE,
			HistoryDays:      eng.HistoryDays,
			MoneynessBandPct: eng.Filter.BandPct,
			StrikeWindow:     eng.Filter.AbsWindow,
			MinSeparation:    eng.Selector.MinSeparation,
			SigmaSpan:        eng.Grid.SigmaSpan,
		},
		Strategy: StrategyConfig{
			StrangleOTMPct:    params.StrangleOTMPct,
			CondorShortOTMPct: params.CondorShortOTMPct,
			CondorWingPct:     params.CondorWingPct,
			ButterflyWingPct:  params.ButterflyWingPct,
			CalendarNearDTE:   params.CalendarNearDTE,
			CalendarFarDTE:    params.CalendarFarDTE,
			CalendarOTMPct:    params.CalendarOTMPct,
		},
		Surface: SurfaceConfig{
			WeeklyCount:   eng.Surface.WeeklyCount,
			MonthlyCount:  eng.Surface.MonthlyCount,
			LadderSpanPct: eng.Surface.LadderSpanPct,
			BaseIV:        eng.Surface.BaseIV,
			DefaultBaseIV: eng.Surface.DefaultBaseIV,
		},
		Refresh: RefreshConfig{
			Symbols:     []string{"AAPL", "MSFT", "SPY", "TSLA", "NVDA", "AMZN"},
			Strategies:  []string{"long_strangle", "iron_condor"},
			Concurrency: 5,
			Cron:        "@every 15m",
		},
		Report: ReportConfig{
			Dir:    "reports",
			Format: "json",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validFormats = map[string]bool{
	"json": true, "csv": true, "both": true,
}

var validProviderKinds = map[string]bool{
	"": true, "polygon": true, "synthetic": true,
}

// Validate checks the merged configuration and reports every problem at
// once.
func (c *Config) Validate() error {
	var errs []string

	if !validProviderKinds[c.Provider.Kind] {
		errs = append(errs, fmt.Sprintf("provider: unknown kind %q (valid: polygon, synthetic)", c.Provider.Kind))
	}
	if c.Provider.Kind == "polygon" && c.Provider.APIKey == "" {
		errs = append(errs, "provider: api_key is required for kind polygon")
	}
	if c.Provider.CacheTTL.Duration < 0 {
		errs = append(errs, "provider: cache_ttl must not be negative")
	}

	if c.Engine.RiskFreeRate < 0 || c.Engine.RiskFreeRate > 0.25 {
		errs = append(errs, fmt.Sprintf("engine: risk_free_rate %.4f outside [0, 0.25]", c.Engine.RiskFreeRate))
	}
	if c.Engine.TargetDTE <= 0 {
		errs = append(errs, "engine: target_dte must be positive")
	}
	if c.Engine.HistoryDays <= 0 {
		errs = append(errs, "engine: history_days must be positive")
	}
	if c.Engine.MoneynessBandPct <= 0 || c.Engine.MoneynessBandPct > 100 {
		errs = append(errs, fmt.Sprintf("engine: moneyness_band_pct %.2f outside (0, 100]", c.Engine.MoneynessBandPct))
	}
	if c.Engine.StrikeWindow < 0 {
		errs = append(errs, "engine: strike_window must not be negative")
	}
	if c.Engine.MinSeparation < 0 {
		errs = append(errs, "engine: min_separation must not be negative")
	}
	if c.Engine.SigmaSpan < 2 {
		errs = append(errs, fmt.Sprintf("engine: sigma_span %.1f below the minimum of 2", c.Engine.SigmaSpan))
	}

	if c.Strategy.StrangleOTMPct <= 0 || c.Strategy.CondorShortOTMPct <= 0 ||
		c.Strategy.CondorWingPct <= 0 || c.Strategy.ButterflyWingPct <= 0 ||
		c.Strategy.CalendarOTMPct <= 0 {
		errs = append(errs, "strategy: strike offsets must be positive")
	}
	if c.Strategy.CalendarFarDTE <= c.Strategy.CalendarNearDTE {
		errs = append(errs, "strategy: calendar_far_dte must exceed calendar_near_dte")
	}

	if c.Surface.WeeklyCount <= 0 || c.Surface.MonthlyCount <= 0 {
		errs = append(errs, "surface: weekly_count and monthly_count must be positive")
	}
	if c.Surface.LadderSpanPct <= 0 || c.Surface.LadderSpanPct > 100 {
		errs = append(errs, fmt.Sprintf("surface: ladder_span_pct %.2f outside (0, 100]", c.Surface.LadderSpanPct))
	}

	if len(c.Refresh.Symbols) == 0 {
		errs = append(errs, "refresh: at least one symbol is required")
	}
	if c.Refresh.Concurrency <= 0 {
		errs = append(errs, "refresh: concurrency must be positive")
	}
	for _, name := range c.Refresh.Strategies {
		if _, err := strategy.ParseType(name); err != nil {
			errs = append(errs, fmt.Sprintf("refresh: unknown strategy %q", name))
		}
	}

	if !validFormats[strings.ToLower(c.Report.Format)] {
		errs = append(errs, fmt.Sprintf("report: unknown format %q (valid: json, csv, both)", c.Report.Format))
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EngineConfig assembles the engine configuration from the merged values.
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.RiskFreeRate = c.Engine.RiskFreeRate
	cfg.TargetDTE = c.Engine.TargetDTE
	cfg.HistoryDays = c.Engine.HistoryDays
	cfg.Filter.BandPct = c.Engine.MoneynessBandPct
	cfg.Filter.AbsWindow = c.Engine.StrikeWindow
	cfg.Selector.MinSeparation = c.Engine.MinSeparation
	cfg.Grid.SigmaSpan = c.Engine.SigmaSpan
	cfg.Surface.WeeklyCount = c.Surface.WeeklyCount
	cfg.Surface.MonthlyCount = c.Surface.MonthlyCount
	cfg.Surface.LadderSpanPct = c.Surface.LadderSpanPct
	cfg.Surface.DefaultBaseIV = c.Surface.DefaultBaseIV
	if len(c.Surface.BaseIV) > 0 {
		cfg.Surface.BaseIV = c.Surface.BaseIV
	}
	cfg.Strategy = strategy.Params{
		StrangleOTMPct:    c.Strategy.StrangleOTMPct,
		CondorShortOTMPct: c.Strategy.CondorShortOTMPct,
		CondorWingPct:     c.Strategy.CondorWingPct,
		ButterflyWingPct:  c.Strategy.ButterflyWingPct,
		CalendarNearDTE:   c.Strategy.CalendarNearDTE,
		CalendarFarDTE:    c.Strategy.CalendarFarDTE,
		CalendarOTMPct:    c.Strategy.CalendarOTMPct,
	}
	return cfg
}

// LoggerConfig maps the log section onto the logger package's config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Pretty:     c.Log.Pretty,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

// RefreshStrategies resolves the configured strategy names. Call Validate
// first; unknown names are skipped here.
func (c *Config) RefreshStrategies() []strategy.Type {
	out := make([]strategy.Type, 0, len(c.Refresh.Strategies))
	for _, name := range c.Refresh.Strategies {
		if t, err := strategy.ParseType(name); err == nil {
			out = append(out, t)
		}
	}
	return out
}
