package engine

import "math"

// ComputeExpectedMove derives one-standard-deviation price bands over one
// day, one week, and optionally out to the given DTE. Pure function of its
// arguments.
func ComputeExpectedMove(symbol string, price, ivPct float64, dte int) (ExpectedMove, error) {
	if price <= 0 {
		return ExpectedMove{}, invalidf("non-positive price %.2f for %s", price, symbol)
	}
	if ivPct < 0 {
		return ExpectedMove{}, invalidf("negative implied volatility %.2f for %s", ivPct, symbol)
	}

	band := func(days float64) MoveBand {
		sd := price * (ivPct / 100) * math.Sqrt(days/365)
		return MoveBand{
			Low:     price - sd,
			High:    price + sd,
			Move:    sd,
			MovePct: sd / price * 100,
		}
	}

	em := ExpectedMove{
		Symbol: symbol,
		Price:  price,
		IV:     ivPct,
		Daily:  band(1),
		Weekly: band(7),
	}
	if dte > 0 {
		b := band(float64(dte))
		em.ToExpiry = &b
	}
	return em, nil
}
