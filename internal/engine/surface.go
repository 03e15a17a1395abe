package engine

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/optionlab/stratcalc/internal/marketdata"
)

// SurfaceConfig shapes the IV grid and the parametric fallback.
type SurfaceConfig struct {
	WeeklyCount   int     // weekly expirations on the grid
	MonthlyCount  int     // monthly expirations on the grid
	LadderSpanPct float64 // strike ladder half-width around spot, percent

	// BaseIV anchors the parametric fallback per symbol, in vol points;
	// symbols not listed use DefaultBaseIV. Chain-median IV wins over both
	// when the chain carries any real IVs.
	BaseIV        map[string]float64
	DefaultBaseIV float64
}

// DefaultSurfaceConfig grids 8 weeklies and 6 monthlies over a ±20% ladder.
func DefaultSurfaceConfig() SurfaceConfig {
	return SurfaceConfig{
		WeeklyCount:   8,
		MonthlyCount:  6,
		LadderSpanPct: 20,
		BaseIV: map[string]float64{
			"AAPL": 25, "MSFT": 24, "SPY": 16,
			"TSLA": 55, "NVDA": 45, "AMZN": 32,
		},
		DefaultBaseIV: 30,
	}
}

const (
	minIV = 5
	maxIV = 150

	// ATM band and OTM-put threshold for skew statistics, in moneyness.
	atmLow     = 0.98
	atmHigh    = 1.02
	otmPutEdge = 0.95

	// term-structure classification threshold, vol points
	termThreshold = 2
)

// SurfaceBuilder assembles IV(strike, expiration) grids. Real chain IVs are
// authoritative; cells the chain cannot fill fall back to a parametric
// approximation of base IV, put skew, and term structure.
type SurfaceBuilder struct {
	cfg SurfaceConfig
	now func() time.Time
}

// NewSurfaceBuilder constructs a builder with the given config; zero counts
// fall back to the defaults.
func NewSurfaceBuilder(cfg SurfaceConfig) *SurfaceBuilder {
	def := DefaultSurfaceConfig()
	if cfg.WeeklyCount <= 0 {
		cfg.WeeklyCount = def.WeeklyCount
	}
	if cfg.MonthlyCount <= 0 {
		cfg.MonthlyCount = def.MonthlyCount
	}
	if cfg.LadderSpanPct <= 0 {
		cfg.LadderSpanPct = def.LadderSpanPct
	}
	if cfg.DefaultBaseIV <= 0 {
		cfg.DefaultBaseIV = def.DefaultBaseIV
	}
	return &SurfaceBuilder{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock fixes the builder's notion of now, used by tests.
func (b *SurfaceBuilder) WithClock(now func() time.Time) *SurfaceBuilder {
	b.now = now
	return b
}

// Build assembles the surface for one underlying. chain may be nil, which
// produces a fully parametric surface on the canonical expiration schedule.
func (b *SurfaceBuilder) Build(symbol string, spot float64, chain *marketdata.Chain) (VolatilitySurfaceData, error) {
	if spot <= 0 {
		return VolatilitySurfaceData{}, invalidf("non-positive price %.2f for %s", spot, symbol)
	}

	now := b.now()
	exps := b.expirations(now, chain)
	strikes := strikeLadder(spot, b.cfg.LadderSpanPct)

	chainIV := indexChainIV(chain)
	baseIV := b.baseIVFor(symbol, chainIV)

	points := make([]VolatilitySurfacePoint, 0, len(exps)*len(strikes))
	fromChain := 0
	for _, exp := range exps {
		dte := daysBetween(now, exp)
		for _, k := range strikes {
			iv, real := lookupIV(chainIV, exp, k)
			if !real {
				iv = parametricIV(baseIV, k/spot, dte)
			} else {
				fromChain++
			}
			points = append(points, VolatilitySurfacePoint{
				Strike:     k,
				Expiration: exp,
				DaysToExp:  dte,
				ImpliedVol: clampIV(iv),
				Moneyness:  k / spot,
				FromChain:  real,
			})
		}
	}

	source := "parametric"
	switch {
	case fromChain == len(points) && len(points) > 0:
		source = "chain"
	case fromChain > 0:
		source = "mixed"
	}

	return VolatilitySurfaceData{
		Symbol:       symbol,
		CurrentPrice: spot,
		Points:       points,
		Stats:        surfaceStats(points),
		Source:       source,
		GeneratedAt:  now,
	}, nil
}

// expirations picks the grid's expiration axis: real chain dates when
// available, the canonical weekly/monthly schedule otherwise. Chain dates
// within nine weeks count against the weekly budget, later ones against the
// monthly budget.
func (b *SurfaceBuilder) expirations(now time.Time, chain *marketdata.Chain) []time.Time {
	if chain == nil || len(chain.Contracts) == 0 {
		return marketdata.ExpirationSchedule(now, b.cfg.WeeklyCount, b.cfg.MonthlyCount)
	}

	var weekly, monthly []time.Time
	for _, exp := range chain.Expirations() {
		if daysBetween(now, exp) <= 63 {
			if len(weekly) < b.cfg.WeeklyCount {
				weekly = append(weekly, exp)
			}
		} else if len(monthly) < b.cfg.MonthlyCount {
			monthly = append(monthly, exp)
		}
	}
	return append(weekly, monthly...)
}

func (b *SurfaceBuilder) baseIVFor(symbol string, chainIV map[ivKey]float64) float64 {
	if len(chainIV) > 0 {
		ivs := make([]float64, 0, len(chainIV))
		for _, v := range chainIV {
			ivs = append(ivs, v)
		}
		sort.Float64s(ivs)
		return stat.Quantile(0.5, stat.Empirical, ivs, nil)
	}
	if iv, ok := b.cfg.BaseIV[symbol]; ok {
		return iv
	}
	return b.cfg.DefaultBaseIV
}

// parametricIV layers put skew and a short-dated bump onto the base IV,
// mirroring the smile the synthetic provider quotes with.
func parametricIV(baseIV, moneyness float64, dte int) float64 {
	iv := baseIV
	if moneyness < 1 {
		iv *= 1 + math.Min(1-moneyness, 0.20)*2
	}
	if dte < 14 && baseIV > 30 {
		iv *= 1.15
	}
	return iv
}

type ivKey struct {
	exp    int64
	strike int64
}

func makeIVKey(exp time.Time, strike float64) ivKey {
	return ivKey{exp: exp.UTC().Truncate(24 * time.Hour).Unix(), strike: int64(math.Round(strike * 100))}
}

// indexChainIV averages the call and put IVs the chain carries per
// (expiration, strike) cell.
func indexChainIV(chain *marketdata.Chain) map[ivKey]float64 {
	if chain == nil {
		return nil
	}
	sums := map[ivKey]float64{}
	counts := map[ivKey]int{}
	for _, c := range chain.Contracts {
		if c.ImpliedVol <= 0 {
			continue
		}
		k := makeIVKey(c.Expiration, c.Strike)
		sums[k] += c.ImpliedVol
		counts[k]++
	}
	out := make(map[ivKey]float64, len(sums))
	for k, sum := range sums {
		out[k] = sum / float64(counts[k])
	}
	return out
}

func lookupIV(chainIV map[ivKey]float64, exp time.Time, strike float64) (float64, bool) {
	iv, ok := chainIV[makeIVKey(exp, strike)]
	return iv, ok
}

// strikeLadder builds strikes around spot on the price-tier listing
// increment.
func strikeLadder(spot, spanPct float64) []float64 {
	step := marketdata.StrikeInterval(spot)
	lo := spot * (1 - spanPct/100)
	hi := spot * (1 + spanPct/100)

	var out []float64
	for k := math.Ceil(lo/step) * step; k <= hi+1e-9; k += step {
		out = append(out, math.Round(k*100)/100)
	}
	return out
}

// surfaceStats derives the summary block: IV range, put skew, and the
// term-structure classification from short-dated versus long-dated ATM IV.
func surfaceStats(points []VolatilitySurfacePoint) SurfaceStats {
	if len(points) == 0 {
		return SurfaceStats{TermStructure: TermFlat}
	}

	ivs := make([]float64, len(points))
	for i, p := range points {
		ivs[i] = p.ImpliedVol
	}

	stats := SurfaceStats{
		AvgIV: stat.Mean(ivs, nil),
		MinIV: floats.Min(ivs),
		MaxIV: floats.Max(ivs),
	}

	var otmPuts, atm []float64
	firstExp, lastExp := points[0].DaysToExp, points[0].DaysToExp
	for _, p := range points {
		if p.DaysToExp < firstExp {
			firstExp = p.DaysToExp
		}
		if p.DaysToExp > lastExp {
			lastExp = p.DaysToExp
		}
		switch {
		case p.Moneyness < otmPutEdge:
			otmPuts = append(otmPuts, p.ImpliedVol)
		case p.Moneyness >= atmLow && p.Moneyness <= atmHigh:
			atm = append(atm, p.ImpliedVol)
		}
	}
	if len(otmPuts) > 0 && len(atm) > 0 {
		stats.PutSkew = stat.Mean(otmPuts, nil) - stat.Mean(atm, nil)
	}

	var shortATM, longATM []float64
	for _, p := range points {
		if p.Moneyness < atmLow || p.Moneyness > atmHigh {
			continue
		}
		if p.DaysToExp == firstExp {
			shortATM = append(shortATM, p.ImpliedVol)
		}
		if p.DaysToExp == lastExp {
			longATM = append(longATM, p.ImpliedVol)
		}
	}

	stats.TermStructure = TermFlat
	if len(shortATM) > 0 && len(longATM) > 0 && lastExp > firstExp {
		diff := stat.Mean(longATM, nil) - stat.Mean(shortATM, nil)
		switch {
		case diff > termThreshold:
			stats.TermStructure = TermUpward
		case diff < -termThreshold:
			stats.TermStructure = TermDownward
		}
	}

	return stats
}

func clampIV(v float64) float64 {
	if v < minIV {
		return minIV
	}
	if v > maxIV {
		return maxIV
	}
	return v
}
