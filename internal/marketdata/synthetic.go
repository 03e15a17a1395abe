package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/optionlab/stratcalc/internal/pricing"
)

// SyntheticProvider generates deterministic chains and quotes so the engine
// runs without an API key. Contracts are priced with Black-Scholes under a
// parametric smile, so downstream calculations behave like they would on a
// real chain. The same symbol always yields the same data for a given clock.
type SyntheticProvider struct {
	secondary Provider
	now       func() time.Time
	basePrice map[string]float64
}

// Spot prices for familiar tickers keep demos and docs recognizable; unknown
// symbols get a hash-derived price.
var defaultBasePrices = map[string]float64{
	"AAPL": 175.50,
	"SPY":  500.00,
	"TSLA": 245.00,
	"MSFT": 415.00,
	"AMZN": 185.00,
	"NVDA": 880.00,
}

// NewSyntheticProvider constructs the synthetic provider.
func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{
		now:       func() time.Time { return time.Now().UTC() },
		basePrice: defaultBasePrices,
	}
}

// WithSecondary installs a fallback provider.
func (s *SyntheticProvider) WithSecondary(sec Provider) *SyntheticProvider {
	s.secondary = sec
	return s
}

// WithClock fixes the provider's notion of now, used by tests.
func (s *SyntheticProvider) WithClock(now func() time.Time) *SyntheticProvider {
	s.now = now
	return s
}

// Secondary returns the configured fallback provider, if any.
func (s *SyntheticProvider) Secondary() Provider {
	return s.secondary
}

// GetStockQuote returns the deterministic spot for the symbol.
func (s *SyntheticProvider) GetStockQuote(_ context.Context, symbol string) (Quote, error) {
	return Quote{
		Symbol: symbol,
		Price:  s.spot(symbol),
		AsOf:   s.now(),
	}, nil
}

// GetChain builds a full synthetic chain: weekly expirations for the next
// eight weeks plus monthly (third Friday) expirations for the next six
// months, with a tiered strike ladder spanning ±30% of spot.
func (s *SyntheticProvider) GetChain(_ context.Context, symbol string) (Chain, error) {
	spot := s.spot(symbol)
	expirations := s.expirations()

	var contracts []Contract
	for _, exp := range expirations {
		contracts = append(contracts, s.buildExpiration(symbol, spot, exp)...)
	}

	return Chain{
		Symbol:          symbol,
		UnderlyingPrice: spot,
		Contracts:       contracts,
		AsOf:            s.now(),
	}, nil
}

// GetChainSnapshot builds the contracts for the listed expiration nearest to
// the requested date.
func (s *SyntheticProvider) GetChainSnapshot(_ context.Context, symbol string, expiration time.Time) ([]Contract, error) {
	spot := s.spot(symbol)

	matched := MatchDate(expiration, s.expirations(), MatchNearest)
	if matched.IsZero() {
		return nil, nil
	}
	return s.buildExpiration(symbol, spot, matched), nil
}

// GetDailyBars generates a seeded random walk around the symbol's spot so
// historical-volatility math has realistic input.
func (s *SyntheticProvider) GetDailyBars(_ context.Context, symbol string, from, to time.Time) ([]Bar, error) {
	spot := s.spot(symbol)
	rng := rand.New(rand.NewSource(int64(symbolSeed(symbol))))

	dailyVol := s.baseIV(symbol) / 100 / math.Sqrt(252)

	var out []Bar
	price := spot * 0.92
	for cur := from; !cur.After(to); cur = cur.AddDate(0, 0, 1) {
		if cur.Weekday() == time.Saturday || cur.Weekday() == time.Sunday {
			continue
		}
		delta := rng.NormFloat64() * dailyVol * price
		open := price
		clos := price + delta
		high := math.Max(open, clos) + math.Abs(rng.NormFloat64()*0.3)
		low := math.Min(open, clos) - math.Abs(rng.NormFloat64()*0.3)
		out = append(out, Bar{
			Date:  cur,
			Open:  open,
			High:  high,
			Low:   low,
			Close: clos,
			Vol:   float64(1000 + rng.Intn(5000)),
		})
		price = clos
	}
	return out, nil
}

// ---- chain construction ----

func (s *SyntheticProvider) spot(symbol string) float64 {
	if p, ok := s.basePrice[symbol]; ok {
		return p
	}
	return 25 + float64(symbolSeed(symbol)%475)
}

// baseIV is the symbol's anchor implied volatility in vol points.
func (s *SyntheticProvider) baseIV(symbol string) float64 {
	return 18 + float64(symbolSeed(symbol)%28)
}

func (s *SyntheticProvider) expirations() []time.Time {
	return ExpirationSchedule(s.now(), 8, 6)
}

func (s *SyntheticProvider) buildExpiration(symbol string, spot float64, exp time.Time) []Contract {
	interval := StrikeInterval(spot)
	lo := math.Floor(spot * 0.70 / interval) * interval
	hi := math.Ceil(spot * 1.30 / interval) * interval

	dte := exp.Sub(s.now()).Hours() / 24
	if dte < 0.5 {
		dte = 0.5
	}
	T := dte / 365.0

	rng := rand.New(rand.NewSource(int64(symbolSeed(symbol)) ^ exp.Unix()))

	var out []Contract
	for k := lo; k <= hi+1e-9; k += interval {
		for _, ct := range []ContractType{Call, Put} {
			iv := s.smileIV(symbol, spot, k, dte)
			sigma := iv / 100

			isCall := ct == Call
			mid := pricing.BlackScholesPrice(isCall, spot, k, T, 0.02, sigma)
			if mid < 0.01 {
				mid = 0.01
			}

			// spread widens away from the money
			half := 0.01 + mid*0.02 + math.Abs(k-spot)/spot*0.10
			g := pricing.BlackScholesGreeks(isCall, spot, k, T, 0.02, sigma)

			out = append(out, Contract{
				Symbol:       OCCSymbol(symbol, exp, ct, k),
				Underlying:   symbol,
				Type:         ct,
				Strike:       k,
				Bid:          round2(mid - half),
				Ask:          round2(mid + half),
				Last:         round2(mid),
				Volume:       int64(50 + rng.Intn(2000)),
				OpenInterest: int64(100 + rng.Intn(8000)),
				ImpliedVol:   iv,
				Delta:        g.Delta,
				Gamma:        g.Gamma,
				Theta:        g.Theta,
				Vega:         g.Vega,
				Expiration:   exp,
			})
		}
	}
	return out
}

// smileIV applies put skew and a term-structure bump to the base IV: OTM puts
// trade richer, and short-dated options on high-vol names carry extra
// premium.
func (s *SyntheticProvider) smileIV(symbol string, spot, strike, dte float64) float64 {
	iv := s.baseIV(symbol)

	moneyness := strike / spot
	if moneyness < 1 {
		// up to +40% at 20% below spot
		iv *= 1 + math.Min(1-moneyness, 0.20)*2
	}

	if dte < 14 && s.baseIV(symbol) > 30 {
		iv *= 1.15
	}

	if iv < 5 {
		iv = 5
	}
	if iv > 150 {
		iv = 150
	}
	return iv
}

// StrikeInterval returns the listing increment for a given price tier.
func StrikeInterval(price float64) float64 {
	switch {
	case price < 50:
		return 1.0
	case price < 100:
		return 2.5
	case price < 200:
		return 5.0
	case price < 500:
		return 10.0
	default:
		return 25.0
	}
}

func symbolSeed(symbol string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return h.Sum32()
}

func round2(v float64) float64 {
	if v < 0.01 {
		return 0.01
	}
	return math.Round(v*100) / 100
}
