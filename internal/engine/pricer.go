package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/optionlab/stratcalc/internal/marketdata"
	"github.com/optionlab/stratcalc/internal/pricing"
	"github.com/optionlab/stratcalc/internal/strategy"
)

// RiskProfile is the pricer's output: net premium, risk bounds, breakevens,
// and a collateral note for the position's shape.
type RiskProfile struct {
	NetPremium float64
	MaxLoss    *Bound
	MaxProfit  *Bound
	Lower      *float64
	Upper      *float64
	Collateral string
}

// NetPremium sums the legs per share: positive is a debit paid, negative a
// credit received.
func NetPremium(legs []StrategyLeg) float64 {
	var net float64
	for _, leg := range legs {
		qty := float64(leg.Quantity)
		if leg.Action == strategy.Sell {
			net -= leg.Premium * qty
		} else {
			net += leg.Premium * qty
		}
	}
	return net
}

// PriceStrategy computes the risk profile from the standard payoff identity
// of each strategy shape. The dispatch is exhaustive; an unknown type is an
// error. Unbounded figures carry the explicit open flag, and figures that
// cannot be known up front, like a calendar's profit cap, stay nil.
func PriceStrategy(typ strategy.Type, legs []StrategyLeg) (RiskProfile, error) {
	if len(legs) != typ.LegCount() {
		return RiskProfile{}, invalidf("%s needs %d legs, got %d", typ, typ.LegCount(), len(legs))
	}

	net := NetPremium(legs)
	rp := RiskProfile{NetPremium: net}

	switch typ {
	case strategy.LongStrangle:
		debit := net
		rp.MaxLoss = Finite(nonNeg(debit))
		rp.MaxProfit = Open()
		rp.Lower = floatPtr(legs[0].Strike - debit)
		rp.Upper = floatPtr(legs[1].Strike + debit)
		rp.Collateral = "debit paid up front; no further collateral"

	case strategy.ShortStrangle:
		credit := -net
		rp.MaxProfit = Finite(nonNeg(credit))
		rp.MaxLoss = Open()
		rp.Lower = floatPtr(legs[0].Strike - credit)
		rp.Upper = floatPtr(legs[1].Strike + credit)
		rp.Collateral = "uncovered short legs; broker margin applies"

	case strategy.LongStraddle:
		debit := net
		k := legs[0].Strike
		rp.MaxLoss = Finite(nonNeg(debit))
		rp.MaxProfit = Open()
		rp.Lower = floatPtr(k - debit)
		rp.Upper = floatPtr(k + debit)
		rp.Collateral = "debit paid up front; no further collateral"

	case strategy.ShortStraddle:
		credit := -net
		k := legs[0].Strike
		rp.MaxProfit = Finite(nonNeg(credit))
		rp.MaxLoss = Open()
		rp.Lower = floatPtr(k - credit)
		rp.Upper = floatPtr(k + credit)
		rp.Collateral = "uncovered short legs; broker margin applies"

	case strategy.IronCondor:
		credit := -net
		putWidth := legs[0].Strike - legs[1].Strike
		callWidth := legs[3].Strike - legs[2].Strike
		width := math.Max(putWidth, callWidth)
		rp.MaxProfit = Finite(credit)
		rp.MaxLoss = Finite(nonNeg(width - credit))
		rp.Lower = floatPtr(legs[0].Strike - credit)
		rp.Upper = floatPtr(legs[2].Strike + credit)
		rp.Collateral = fmt.Sprintf("defined risk; %.2f wing width held per spread", width)

	case strategy.ButterflySpread:
		debit := net
		lowK, bodyK, highK := legs[0].Strike, legs[1].Strike, legs[2].Strike
		rp.MaxProfit = Finite(nonNeg(bodyK - lowK - debit))
		// Value above the top wing is flat at 2*body - low - high.
		farLoss := debit - (2*bodyK - lowK - highK)
		rp.MaxLoss = Finite(nonNeg(math.Max(debit, farLoss)))
		if debit < bodyK-lowK {
			rp.Lower = floatPtr(lowK + debit)
			if ube := 2*bodyK - lowK - debit; ube <= highK+strikeEps {
				rp.Upper = floatPtr(ube)
			}
		}
		rp.Collateral = "debit paid up front; no further collateral"

	case strategy.DiagonalCalendar:
		// The far leg outlives the near one, so the profit cap depends on
		// volatility at the near expiry and stays unknown here. Worst case
		// holds both to the far expiry: the strike gap plus any debit.
		width := legs[1].Strike - legs[0].Strike
		rp.MaxLoss = Finite(nonNeg(math.Max(net, width+net)))
		rp.Collateral = "short call covered by the longer-dated long call"

	default:
		return RiskProfile{}, fmt.Errorf("%w: %s", strategy.ErrUnknownType, typ)
	}

	return rp, nil
}

// PayoffFunc maps an underlying price at evaluation time to position P&L
// per share.
type PayoffFunc func(price float64) float64

// PositionPayoff builds the payoff of the legs evaluated at the position's
// expiration. Legs that expire on or before the evaluation instant settle
// at intrinsic value; a leg that expires later, like a calendar's far leg,
// is marked to its model value with the time it has left.
func PositionPayoff(legs []StrategyLeg, eval time.Time, ivPct, riskFree float64) PayoffFunc {
	sigma := ivPct / 100

	return func(price float64) float64 {
		if price < 0 {
			price = 0
		}
		var pnl float64
		for _, leg := range legs {
			isCall := leg.ContractType == marketdata.Call

			var value float64
			if remaining := leg.Expiration.Sub(eval); remaining > 0 {
				t := remaining.Hours() / 24 / 365
				value = pricing.BlackScholesPrice(isCall, price, leg.Strike, t, riskFree, sigma)
			} else if isCall {
				value = math.Max(0, price-leg.Strike)
			} else {
				value = math.Max(0, leg.Strike-price)
			}

			sign := 1.0
			if leg.Action == strategy.Sell {
				sign = -1
			}
			pnl += sign * float64(leg.Quantity) * (value - leg.Premium)
		}
		return pnl
	}
}

func nonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
