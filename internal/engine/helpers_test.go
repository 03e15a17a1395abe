package engine

import (
	"context"
	"time"

	"github.com/optionlab/stratcalc/internal/marketdata"
	"github.com/optionlab/stratcalc/internal/pricing"
)

// testNow is a Monday, so the canonical expiration schedule is stable.
var testNow = time.Date(2026, 8, 17, 14, 30, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return testNow }
}

func expiryIn(days int) time.Time {
	return time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
}

// quoted builds one contract with an explicit two-sided quote.
func quoted(symbol string, typ marketdata.ContractType, strike, bid, ask, iv float64, exp time.Time) marketdata.Contract {
	return marketdata.Contract{
		Symbol:     marketdata.OCCSymbol(symbol, exp, typ, strike),
		Underlying: symbol,
		Type:       typ,
		Strike:     strike,
		Bid:        bid,
		Ask:        ask,
		Last:       (bid + ask) / 2,
		ImpliedVol: iv,
		Expiration: exp,
	}
}

// ladderChain builds a single-expiration chain with both sides quoted at
// Black-Scholes mids for the given flat IV, on a fixed strike step.
func ladderChain(symbol string, spot float64, exp time.Time, lo, hi, step, ivPct float64) marketdata.Chain {
	T := exp.Sub(testNow).Hours() / 24 / 365
	var contracts []marketdata.Contract
	for k := lo; k <= hi+1e-9; k += step {
		for _, typ := range []marketdata.ContractType{marketdata.Call, marketdata.Put} {
			mid := pricing.BlackScholesPrice(typ == marketdata.Call, spot, k, T, 0.02, ivPct/100)
			if mid < 0.06 {
				mid = 0.06
			}
			contracts = append(contracts, quoted(symbol, typ, k, mid-0.05, mid+0.05, ivPct, exp))
		}
	}
	return marketdata.Chain{
		Symbol:          symbol,
		UnderlyingPrice: spot,
		Contracts:       contracts,
		AsOf:            testNow,
	}
}

// stubProvider serves canned data to calculator tests.
type stubProvider struct {
	quote    marketdata.Quote
	chain    marketdata.Chain
	bars     []marketdata.Bar
	quoteErr error
	chainErr error
	barsErr  error
}

func (s *stubProvider) Secondary() marketdata.Provider { return nil }

func (s *stubProvider) GetStockQuote(_ context.Context, symbol string) (marketdata.Quote, error) {
	if s.quoteErr != nil {
		return marketdata.Quote{}, s.quoteErr
	}
	q := s.quote
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return q, nil
}

func (s *stubProvider) GetChain(_ context.Context, _ string) (marketdata.Chain, error) {
	if s.chainErr != nil {
		return marketdata.Chain{}, s.chainErr
	}
	return s.chain, nil
}

func (s *stubProvider) GetChainSnapshot(_ context.Context, _ string, exp time.Time) ([]marketdata.Contract, error) {
	if s.chainErr != nil {
		return nil, s.chainErr
	}
	return s.chain.ForExpiration(exp), nil
}

func (s *stubProvider) GetDailyBars(_ context.Context, _ string, _, _ time.Time) ([]marketdata.Bar, error) {
	if s.barsErr != nil {
		return nil, s.barsErr
	}
	return s.bars, nil
}
