package pricing

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// tradingDaysPerYear is the annualization base for daily return series.
const tradingDaysPerYear = 252.0

// AnnualizedVolatility computes historical volatility from a series of daily
// closes: the sample standard deviation of log returns scaled by sqrt(252).
// Returns 0 when fewer than two closes are supplied.
func AnnualizedVolatility(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}

	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		rets = append(rets, math.Log(closes[i]/closes[i-1]))
	}
	if len(rets) < 2 {
		return 0
	}

	return stat.StdDev(rets, nil) * math.Sqrt(tradingDaysPerYear)
}

// RollingAnnualizedVolatility computes a trailing-window volatility series
// from daily closes. Entry i is the annualized volatility of the window
// ending at close i. The first window-1 entries are omitted, so the result
// has len(closes)-window+1 entries (nil when the series is too short).
//
// The series feeds IV-percentile ranking when a provider can supply bars.
func RollingAnnualizedVolatility(closes []float64, window int) []float64 {
	if window < 2 || len(closes) < window {
		return nil
	}

	out := make([]float64, 0, len(closes)-window+1)
	for i := window; i <= len(closes); i++ {
		out = append(out, AnnualizedVolatility(closes[i-window:i]))
	}
	return out
}

// PercentileRank places value within history on a 0-100 scale: the share of
// historical observations at or below the value. An empty history carries no
// ranking information and yields the neutral midpoint 50.
func PercentileRank(value float64, history []float64) float64 {
	if len(history) == 0 {
		return 50
	}

	sorted := make([]float64, len(history))
	copy(sorted, history)
	sort.Float64s(sorted)

	if value <= sorted[0] {
		return 0
	}
	if value >= sorted[len(sorted)-1] {
		return 100
	}

	return stat.CDF(value, stat.Empirical, sorted, nil) * 100
}
