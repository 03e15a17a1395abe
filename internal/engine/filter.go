package engine

import (
	"math"
	"sort"

	"github.com/optionlab/stratcalc/internal/marketdata"
)

// FilterConfig bounds which strikes count as usable candidates. The band is
// relative to spot; the absolute window keeps near-the-money strikes in play
// even when a tight band on a cheap underlying would exclude them.
type FilterConfig struct {
	BandPct   float64 // moneyness band around spot, in percent of spot
	AbsWindow float64 // dollars around spot always kept, regardless of band
}

// DefaultFilterConfig keeps strikes within 20% of spot plus a $5 window.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{BandPct: 20, AbsWindow: 5}
}

// Relaxed widens both limits for the single retry after a
// no-liquid-contracts result.
func (c FilterConfig) Relaxed() FilterConfig {
	c.BandPct *= 2
	c.AbsWindow *= 2
	return c
}

// FilteredChain holds the surviving candidates for one expiration, split by
// side and sorted by strike ascending.
type FilteredChain struct {
	Calls []marketdata.Contract
	Puts  []marketdata.Contract
}

// Side returns the candidate list for one contract type.
func (f FilteredChain) Side(t marketdata.ContractType) []marketdata.Contract {
	if t == marketdata.Put {
		return f.Puts
	}
	return f.Calls
}

// Empty reports whether no candidates survived on either side.
func (f FilteredChain) Empty() bool {
	return len(f.Calls) == 0 && len(f.Puts) == 0
}

// FilterContracts drops contracts without a live two-sided quote and strikes
// outside the moneyness band. Empty input yields an empty result, never an
// error; reporting that condition is the selector's job.
func FilterContracts(contracts []marketdata.Contract, spot float64, cfg FilterConfig) FilteredChain {
	var out FilteredChain
	if spot <= 0 {
		return out
	}

	band := spot * cfg.BandPct / 100

	for _, c := range contracts {
		if !c.HasLiveQuote() {
			continue
		}
		dist := math.Abs(c.Strike - spot)
		if dist > band && dist > cfg.AbsWindow {
			continue
		}
		if c.Type == marketdata.Put {
			out.Puts = append(out.Puts, c)
		} else {
			out.Calls = append(out.Calls, c)
		}
	}

	sort.Slice(out.Calls, func(i, j int) bool { return out.Calls[i].Strike < out.Calls[j].Strike })
	sort.Slice(out.Puts, func(i, j int) bool { return out.Puts[i].Strike < out.Puts[j].Strike })

	return out
}
