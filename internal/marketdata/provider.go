// Package marketdata defines the provider boundary the strategy engine pulls
// quotes and option chains through, plus the chain/value types shared across
// the module.
package marketdata

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ContractType distinguishes calls from puts.
type ContractType string

const (
	Call ContractType = "call"
	Put  ContractType = "put"
)

// Contract is one quoted option: an immutable snapshot sourced from a
// provider, never mutated by the engine.
type Contract struct {
	Symbol       string       // OCC-style contract ticker when known
	Underlying   string       // underlying symbol, e.g. "AAPL"
	Type         ContractType // call or put
	Strike       float64
	Bid          float64
	Ask          float64
	Last         float64
	Volume       int64
	OpenInterest int64
	ImpliedVol   float64 // annualized, in vol points (25 = 25%); 0 when unknown
	Delta        float64 // optional greeks; zero when the source omits them
	Gamma        float64
	Theta        float64
	Vega         float64
	Expiration   time.Time
}

// Mid returns the bid/ask midpoint, falling back to the last trade when the
// quote is one-sided or missing.
func (c Contract) Mid() float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	return c.Last
}

// SpreadWidth returns the bid/ask spread, or +Inf when the quote is not
// two-sided so wide-quote contracts always lose spread tie-breaks.
func (c Contract) SpreadWidth() float64 {
	if c.Bid > 0 && c.Ask > 0 && c.Ask >= c.Bid {
		return c.Ask - c.Bid
	}
	return math.Inf(1)
}

// HasLiveQuote reports whether the contract carries a usable two-sided quote.
func (c Contract) HasLiveQuote() bool {
	return c.Bid > 0 && c.Ask > 0 && c.Ask >= c.Bid
}

// Moneyness returns strike / spot.
func (c Contract) Moneyness(spot float64) float64 {
	if spot <= 0 {
		return 0
	}
	return c.Strike / spot
}

// Quote is a spot quote for an underlying.
type Quote struct {
	Symbol string
	Price  float64
	AsOf   time.Time
}

// Chain is a full options chain snapshot for one underlying across all
// fetched expirations.
type Chain struct {
	Symbol          string
	UnderlyingPrice float64
	Contracts       []Contract
	AsOf            time.Time
}

// Expirations returns the chain's distinct expiration dates in ascending
// order.
func (ch Chain) Expirations() []time.Time {
	seen := map[string]time.Time{}
	for _, c := range ch.Contracts {
		seen[c.Expiration.Format("2006-01-02")] = c.Expiration
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// ForExpiration returns the contracts expiring on the given date.
func (ch Chain) ForExpiration(expiration time.Time) []Contract {
	key := expiration.Format("2006-01-02")
	var out []Contract
	for _, c := range ch.Contracts {
		if c.Expiration.Format("2006-01-02") == key {
			out = append(out, c)
		}
	}
	return out
}

// Strikes returns the distinct strikes in the chain, ascending.
func (ch Chain) Strikes() []float64 {
	seen := map[float64]bool{}
	for _, c := range ch.Contracts {
		seen[c.Strike] = true
	}
	out := make([]float64, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Float64s(out)
	return out
}

// Bar is a simplified daily OHLC record.
type Bar struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
	Vol   float64
}

// Closes extracts the close series from bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, 0, len(bars))
	for _, b := range bars {
		out = append(out, b.Close)
	}
	return out
}

// Provider supplies market data to the engine. Implementations may chain: a
// primary provider can delegate to Secondary() when it cannot serve a
// request itself.
type Provider interface {
	Secondary() Provider
	GetStockQuote(ctx context.Context, symbol string) (Quote, error)
	GetChainSnapshot(ctx context.Context, symbol string, expiration time.Time) ([]Contract, error)
	GetChain(ctx context.Context, symbol string) (Chain, error)
}

// BarProvider is implemented by providers that can also serve daily bars,
// which feed historical-volatility and IV-percentile calculations. It is
// optional; callers type-assert for it.
type BarProvider interface {
	GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error)
}

// DateMatchMode controls how a requested date snaps to an available one.
type DateMatchMode string

const (
	MatchExact   DateMatchMode = "exact"   // must match exactly
	MatchHigher  DateMatchMode = "higher"  // next available date after target
	MatchLower   DateMatchMode = "lower"   // last available date before target
	MatchNearest DateMatchMode = "nearest" // closest available date (default)
)

// MatchDate selects a date from dates according to mode. A zero return means
// nothing matched; callers skip those.
func MatchDate(d time.Time, dates []time.Time, mode DateMatchMode) time.Time {

	var (
		exact  time.Time
		lower  time.Time
		higher time.Time
	)

	// default to MatchNearest
	switch mode {
	case MatchExact, MatchHigher, MatchLower, MatchNearest:
		// ok
	default:
		mode = MatchNearest
	}

	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	for _, dt := range sorted {
		if dt.Equal(d) {
			exact = dt
		}
		if dt.Before(d) {
			lower = dt // keeps last ≤ d
		}
		if dt.After(d) && higher.IsZero() {
			higher = dt
		}
	}

	switch mode {

	case MatchExact:
		return exact

	case MatchLower:
		return lower

	case MatchHigher:
		return higher

	case MatchNearest:
		if !exact.IsZero() {
			return exact
		}
		switch {
		case !lower.IsZero() && !higher.IsZero():
			if d.Sub(lower) <= higher.Sub(d) {
				return lower
			}
			return higher
		case !lower.IsZero():
			return lower
		case !higher.IsZero():
			return higher
		}
	}

	return time.Time{}
}

// ClosestStrike finds the value in a sorted slice closest to target using
// binary search. The second return is false when the slice is empty.
func ClosestStrike(sorted []float64, target float64) (float64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}

	i := sort.Search(n, func(i int) bool {
		return sorted[i] >= target
	})

	if i == 0 {
		return sorted[0], true
	}
	if i == n {
		return sorted[n-1], true
	}

	before := sorted[i-1]
	after := sorted[i]

	if math.Abs(before-target) < math.Abs(after-target) {
		return before, true
	}
	return after, true
}

// OCCSymbol formats an OCC-style option ticker:
// <root><YYMMDD><C|P><strike*1000 padded to 8 digits>, prefixed "O:".
func OCCSymbol(underlying string, expiration time.Time, contractType ContractType, strike float64) string {
	expDt := expiration.UTC().Format("060102")
	t := "C"
	if contractType == Put {
		t = "P"
	}
	strikeInt := int(math.Round(strike * 1000))
	return fmt.Sprintf("O:%s%s%s%08d", strings.ToUpper(underlying), expDt, t, strikeInt)
}
