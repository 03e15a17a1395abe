package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges defaults, the optional TOML file at path, a .env file when one
// is present, and STRATCALC_* environment overrides, in that order. The
// returned Config has NOT been validated; callers invoke Validate after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env if present (silently ignore when missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STRATCALC_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject the API key and tunables at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Provider ──
	setStr(&cfg.Provider.Kind, "STRATCALC_PROVIDER_KIND")
	setStr(&cfg.Provider.APIKey, "STRATCALC_PROVIDER_API_KEY")
	setStr(&cfg.Provider.APIKey, "POLYGON_API_KEY") // compatibility alias
	setStr(&cfg.Provider.BaseURL, "STRATCALC_PROVIDER_BASE_URL")
	setDuration(&cfg.Provider.CacheTTL, "STRATCALC_PROVIDER_CACHE_TTL")
	setInt(&cfg.Provider.CacheEntries, "STRATCALC_PROVIDER_CACHE_ENTRIES")

	// ── Engine ──
	setFloat64(&cfg.Engine.RiskFreeRate, "STRATCALC_ENGINE_RISK_FREE_RATE")
	setInt(&cfg.Engine.TargetDTE, "STRATCALC_ENGINE_TARGET_DTE")
	setInt(&cfg.Engine.HistoryDays, "STRATCALC_ENGINE_HISTORY_DAYS")
	setFloat64(&cfg.Engine.MoneynessBandPct, "STRATCALC_ENGINE_MONEYNESS_BAND_PCT")
	setFloat64(&cfg.Engine.StrikeWindow, "STRATCALC_ENGINE_STRIKE_WINDOW")
	setFloat64(&cfg.Engine.MinSeparation, "STRATCALC_ENGINE_MIN_SEPARATION")
	setFloat64(&cfg.Engine.SigmaSpan, "STRATCALC_ENGINE_SIGMA_SPAN")

	// ── Strategy ──
	setFloat64(&cfg.Strategy.StrangleOTMPct, "STRATCALC_STRATEGY_STRANGLE_OTM_PCT")
	setFloat64(&cfg.Strategy.CondorShortOTMPct, "STRATCALC_STRATEGY_CONDOR_SHORT_OTM_PCT")
	setFloat64(&cfg.Strategy.CondorWingPct, "STRATCALC_STRATEGY_CONDOR_WING_PCT")
	setFloat64(&cfg.Strategy.ButterflyWingPct, "STRATCALC_STRATEGY_BUTTERFLY_WING_PCT")
	setInt(&cfg.Strategy.CalendarNearDTE, "STRATCALC_STRATEGY_CALENDAR_NEAR_DTE")
	setInt(&cfg.Strategy.CalendarFarDTE, "STRATCALC_STRATEGY_CALENDAR_FAR_DTE")
	setFloat64(&cfg.Strategy.CalendarOTMPct, "STRATCALC_STRATEGY_CALENDAR_OTM_PCT")

	// ── Surface ──
	setInt(&cfg.Surface.WeeklyCount, "STRATCALC_SURFACE_WEEKLY_COUNT")
	setInt(&cfg.Surface.MonthlyCount, "STRATCALC_SURFACE_MONTHLY_COUNT")
	setFloat64(&cfg.Surface.LadderSpanPct, "STRATCALC_SURFACE_LADDER_SPAN_PCT")
	setFloat64(&cfg.Surface.DefaultBaseIV, "STRATCALC_SURFACE_DEFAULT_BASE_IV")

	// ── Refresh ──
	setStringSlice(&cfg.Refresh.Symbols, "STRATCALC_REFRESH_SYMBOLS")
	setStringSlice(&cfg.Refresh.Strategies, "STRATCALC_REFRESH_STRATEGIES")
	setInt(&cfg.Refresh.Concurrency, "STRATCALC_REFRESH_CONCURRENCY")
	setStr(&cfg.Refresh.Cron, "STRATCALC_REFRESH_CRON")

	// ── Report ──
	setStr(&cfg.Report.Dir, "STRATCALC_REPORT_DIR")
	setStr(&cfg.Report.Format, "STRATCALC_REPORT_FORMAT")

	// ── Log ──
	setStr(&cfg.Log.Level, "STRATCALC_LOG_LEVEL")
	setBool(&cfg.Log.Pretty, "STRATCALC_LOG_PRETTY")
	setStr(&cfg.Log.File, "STRATCALC_LOG_FILE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
