package engine

import (
	"math"

	"github.com/optionlab/stratcalc/internal/pricing"
)

// GridConfig shapes the discretized outcome grid.
type GridConfig struct {
	// SigmaSpan is the half-width of the grid in standard deviations.
	// Values below 2 are treated as 2 so the tiered spacing stays intact.
	SigmaSpan float64
}

// DefaultGridConfig spans four standard deviations each way.
func DefaultGridConfig() GridConfig { return GridConfig{SigmaSpan: 4} }

// BuildCurve models the outcome distribution as a normal around spot with
// stdDev = spot * (IV/100) * sqrt(DTE/365) and samples it on a grid that is
// denser near the mean. lower and upper are the position's breakevens when
// known. A zero stdDev takes the degenerate branch: the whole mass sits at
// spot and every probability is exactly 0 or 1.
func BuildCurve(spot, ivPct, dte float64, payoff PayoffFunc, lower, upper *float64, cfg GridConfig) ([]ProbabilityCurvePoint, ProbabilitySummary) {
	if payoff == nil {
		payoff = func(float64) float64 { return 0 }
	}

	stdDev := spot * (ivPct / 100) * math.Sqrt(dte/365)
	if stdDev <= 0 || math.IsNaN(stdDev) {
		return degenerateCurve(spot, payoff, lower, upper)
	}

	span := cfg.SigmaSpan
	if span < 2 {
		span = 2
	}
	zs := gridZ(span)

	points := make([]ProbabilityCurvePoint, 0, len(zs))
	for _, z := range zs {
		price := spot + z*stdDev
		if price <= 0 {
			continue
		}
		pnl := payoff(price)
		points = append(points, ProbabilityCurvePoint{
			Price:           price,
			Density:         pricing.NormPDF(z) / stdDev,
			CumulativeBelow: pricing.NormCDF(z),
			PnL:             pnl,
			IsProfitable:    pnl > 0,
			ZScore:          z,
		})
	}

	summary := ProbabilitySummary{StdDev: stdDev}
	if lower != nil {
		summary.ProbBelowLower = pricing.NormCDF((*lower - spot) / stdDev)
	}
	if upper != nil {
		summary.ProbAboveUpper = 1 - pricing.NormCDF((*upper - spot) / stdDev)
	}
	if lower != nil || upper != nil {
		summary.ProbBetween = clamp01(1 - summary.ProbBelowLower - summary.ProbAboveUpper)
	}
	summary.ProbOfProfit = probOfProfit(spot, stdDev, zs, payoff)

	return points, summary
}

// probOfProfit integrates the normal mass over the regions where the payoff
// is positive: each grid cell contributes its mass when the payoff at the
// cell midpoint profits, plus the two tails evaluated one sigma past the
// grid edge.
func probOfProfit(spot, stdDev float64, zs []float64, payoff PayoffFunc) float64 {
	var pop float64

	span := zs[len(zs)-1]
	if payoff(math.Max(0, spot-(span+1)*stdDev)) > 0 {
		pop += pricing.NormCDF(zs[0])
	}
	if payoff(spot+(span+1)*stdDev) > 0 {
		pop += 1 - pricing.NormCDF(span)
	}

	for i := 0; i+1 < len(zs); i++ {
		mid := spot + (zs[i]+zs[i+1])/2*stdDev
		if payoff(math.Max(0, mid)) > 0 {
			pop += pricing.NormCDF(zs[i+1]) - pricing.NormCDF(zs[i])
		}
	}

	return clamp01(pop)
}

// degenerateCurve is the zero-volatility branch: a point mass at spot.
func degenerateCurve(spot float64, payoff PayoffFunc, lower, upper *float64) ([]ProbabilityCurvePoint, ProbabilitySummary) {
	pnl := payoff(spot)
	profitable := pnl > 0

	summary := ProbabilitySummary{Degenerate: true}
	if profitable {
		summary.ProbOfProfit = 1
	}
	switch {
	case lower != nil && spot < *lower:
		summary.ProbBelowLower = 1
	case upper != nil && spot > *upper:
		summary.ProbAboveUpper = 1
	case lower != nil || upper != nil:
		summary.ProbBetween = 1
	}

	point := ProbabilityCurvePoint{
		Price:           spot,
		Density:         1,
		CumulativeBelow: 1,
		PnL:             pnl,
		IsProfitable:    profitable,
		ZScore:          0,
	}
	return []ProbabilityCurvePoint{point}, summary
}

// gridZ lays out z-scores from -span to +span: 0.1 steps inside one sigma,
// 0.2 out to two, then 0.4 to the edge.
func gridZ(span float64) []float64 {
	var zs []float64
	appendRange := func(from, to, step float64) {
		n := int(math.Round((to - from) / step))
		for i := 0; i < n; i++ {
			zs = append(zs, from+float64(i)*step)
		}
	}
	appendRange(-span, -2, 0.4)
	appendRange(-2, -1, 0.2)
	appendRange(-1, 1, 0.1)
	appendRange(1, 2, 0.2)
	appendRange(2, span, 0.4)
	return append(zs, span)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
