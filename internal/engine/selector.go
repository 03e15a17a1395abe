package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/optionlab/stratcalc/internal/marketdata"
	"github.com/optionlab/stratcalc/internal/strategy"
)

// SelectorConfig bounds strike selection.
type SelectorConfig struct {
	// MinSeparation is the smallest allowed gap between the put and call
	// strikes of a strangle or condor, so OTM legs never collapse onto the
	// money.
	MinSeparation float64
}

// DefaultSelectorConfig requires one dollar of put/call separation.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{MinSeparation: 1}
}

// LegCandidates pairs one leg rule with the filtered candidates for the
// expiration that leg trades. Candidates are a single side, sorted by strike
// ascending.
type LegCandidates struct {
	Rule       strategy.LegRule
	Candidates []marketdata.Contract
	Expiration time.Time
	DTE        float64
}

const strikeEps = 1e-9

// SelectLegs resolves every leg rule against its candidates and returns the
// priced legs with a trace of each decision. Selection is deterministic:
// equidistant strikes break ties by tighter bid/ask spread, then by the
// conservative direction (lower for puts, higher for calls).
func SelectLegs(symbol string, typ strategy.Type, legs []LegCandidates, spot, ivPct float64, cfg SelectorConfig) ([]StrategyLeg, *SelectionTrace, error) {
	if len(legs) == 0 {
		return nil, nil, &SelectionError{
			Symbol: symbol, Strategy: typ, Side: "both",
			Reason: "no legs to select", Err: ErrStrikeSelectionFailed,
		}
	}

	for _, lc := range legs {
		if len(lc.Candidates) == 0 {
			return nil, nil, &SelectionError{
				Symbol: symbol, Strategy: typ, Side: string(lc.Rule.OptionType),
				Reason: "no liquid candidates", Err: ErrNoLiquidContracts,
			}
		}
	}

	// Straddles need the same strike on both sides, which only a joint pick
	// over the common ladder can guarantee.
	var straddleK float64
	if typ == strategy.LongStraddle || typ == strategy.ShortStraddle {
		k, err := straddleStrike(symbol, typ, legs, spot)
		if err != nil {
			return nil, nil, err
		}
		straddleK = k
	}

	trace := &SelectionTrace{Legs: make([]LegTrace, 0, len(legs))}
	selected := make([]StrategyLeg, 0, len(legs))
	prior := make([]strategy.PriorLeg, 0, len(legs))

	putIdx, callIdx, paired := pairConstraint(typ)

	for i, lc := range legs {
		rctx := strategy.RuleContext{Spot: spot, IVPct: ivPct, DTE: lc.DTE, Prior: prior}

		target, err := strategy.ResolveTarget(lc.Rule.StrikeRule, lc.Rule.OptionType, rctx)
		if err != nil {
			return nil, nil, invalidf("leg %d rule %q: %v", i+1, lc.Rule.StrikeRule, err)
		}

		cands := lc.Candidates
		if straddleK != 0 {
			cands = atStrike(cands, straddleK)
			if len(cands) == 0 {
				return nil, nil, &SelectionError{
					Symbol: symbol, Strategy: typ, Side: string(lc.Rule.OptionType),
					Reason: fmt.Sprintf("no contract at straddle strike %.2f", straddleK),
					Err:    ErrStrikeSelectionFailed,
				}
			}
		}

		chosen, tie, fellBack := snapStrike(cands, target, lc.Rule.OptionType, lc.Rule.Snap)

		// Keep the call leg of a strangle or condor a minimum distance above
		// its put counterpart.
		if paired && i == callIdx && chosen.Strike < prior[putIdx].Strike+cfg.MinSeparation-strikeEps {
			floor := prior[putIdx].Strike + cfg.MinSeparation
			above := strikesAtOrAbove(cands, floor)
			if len(above) == 0 {
				return nil, nil, &SelectionError{
					Symbol: symbol, Strategy: typ, Side: string(lc.Rule.OptionType),
					Reason: fmt.Sprintf("no call strike at least %.2f above put strike %.2f", cfg.MinSeparation, prior[putIdx].Strike),
					Err:    ErrStrikeSelectionFailed,
				}
			}
			chosen, tie, fellBack = snapStrike(above, target, lc.Rule.OptionType, lc.Rule.Snap)
			trace.SeparationAdjusted = true
		}

		qty := lc.Rule.Qty
		if qty == 0 {
			qty = 1
		}

		premium := chosen.Mid()
		selected = append(selected, StrategyLeg{
			Action:       lc.Rule.Side,
			ContractType: lc.Rule.OptionType,
			Strike:       chosen.Strike,
			Premium:      premium,
			Quantity:     qty,
			Expiration:   chosen.Expiration,
			Contract:     chosen.Symbol,
		})
		prior = append(prior, strategy.PriorLeg{Strike: chosen.Strike, Premium: premium})
		trace.Legs = append(trace.Legs, LegTrace{
			Rule:       lc.Rule.StrikeRule,
			Target:     target,
			Chosen:     chosen.Strike,
			Candidates: len(cands),
			TieBreak:   tie,
			FellBack:   fellBack,
		})
	}

	if err := validateShape(symbol, typ, selected); err != nil {
		return nil, nil, err
	}

	return selected, trace, nil
}

// pairConstraint names the put and call leg indices that must stay apart
// for a given strategy shape.
func pairConstraint(typ strategy.Type) (putIdx, callIdx int, ok bool) {
	switch typ {
	case strategy.LongStrangle, strategy.ShortStrangle:
		return 0, 1, true
	case strategy.IronCondor:
		return 0, 2, true
	}
	return 0, 0, false
}

// straddleStrike picks the strike nearest to spot that is listed on both
// sides. Ties prefer the pair with the tighter combined spread, then the
// lower strike.
func straddleStrike(symbol string, typ strategy.Type, legs []LegCandidates, spot float64) (float64, error) {
	var puts, calls []marketdata.Contract
	for _, lc := range legs {
		if lc.Rule.OptionType == marketdata.Put {
			puts = lc.Candidates
		} else {
			calls = lc.Candidates
		}
	}

	type pair struct {
		strike float64
		spread float64
	}
	var pairs []pair
	for _, p := range puts {
		for _, c := range calls {
			if math.Abs(p.Strike-c.Strike) < strikeEps {
				pairs = append(pairs, pair{strike: p.Strike, spread: p.SpreadWidth() + c.SpreadWidth()})
				break
			}
		}
	}
	if len(pairs) == 0 {
		return 0, &SelectionError{
			Symbol: symbol, Strategy: typ, Side: "both",
			Reason: "no strike listed on both sides", Err: ErrStrikeSelectionFailed,
		}
	}

	best := pairs[0]
	for _, p := range pairs[1:] {
		dBest := math.Abs(best.strike - spot)
		dCur := math.Abs(p.strike - spot)
		switch {
		case dCur < dBest-strikeEps:
			best = p
		case dCur < dBest+strikeEps:
			if p.spread < best.spread-strikeEps ||
				(math.Abs(p.spread-best.spread) < strikeEps && p.strike < best.strike) {
				best = p
			}
		}
	}
	return best.strike, nil
}

// snapStrike maps a target price onto a listed strike per the snap mode.
// fellBack reports that the directional modes found nothing on their side of
// the target and degraded to the nearest available strike.
func snapStrike(cands []marketdata.Contract, target float64, optType marketdata.ContractType, mode strategy.SnapMode) (marketdata.Contract, string, bool) {
	switch mode {
	case strategy.SnapFloor:
		if c, ok := lastAtOrBelow(cands, target); ok {
			return c, "", false
		}
		c, tie := nearestStrike(cands, target, optType)
		return c, tie, true

	case strategy.SnapBeyond:
		if optType == marketdata.Put {
			if c, ok := lastAtOrBelow(cands, target); ok {
				return c, "", false
			}
		} else {
			if c, ok := firstAtOrAbove(cands, target); ok {
				return c, "", false
			}
		}
		c, tie := nearestStrike(cands, target, optType)
		return c, tie, true
	}

	c, tie := nearestStrike(cands, target, optType)
	return c, tie, false
}

// nearestStrike picks the candidate closest to target, breaking ties by
// tighter spread and then by direction.
func nearestStrike(cands []marketdata.Contract, target float64, optType marketdata.ContractType) (marketdata.Contract, string) {
	best := cands[0]
	tie := ""
	for _, c := range cands[1:] {
		dBest := math.Abs(best.Strike - target)
		dCur := math.Abs(c.Strike - target)

		switch {
		case dCur < dBest-strikeEps:
			best, tie = c, ""

		case dCur < dBest+strikeEps:
			sBest, sCur := best.SpreadWidth(), c.SpreadWidth()
			switch {
			case sCur < sBest-strikeEps:
				best, tie = c, "spread"
			case sCur < sBest+strikeEps:
				if optType == marketdata.Put && c.Strike < best.Strike {
					best, tie = c, "direction"
				} else if optType == marketdata.Call && c.Strike > best.Strike {
					best, tie = c, "direction"
				}
			}
		}
	}
	return best, tie
}

func lastAtOrBelow(cands []marketdata.Contract, target float64) (marketdata.Contract, bool) {
	for i := len(cands) - 1; i >= 0; i-- {
		if cands[i].Strike <= target+strikeEps {
			return cands[i], true
		}
	}
	return marketdata.Contract{}, false
}

func firstAtOrAbove(cands []marketdata.Contract, target float64) (marketdata.Contract, bool) {
	for _, c := range cands {
		if c.Strike >= target-strikeEps {
			return c, true
		}
	}
	return marketdata.Contract{}, false
}

func strikesAtOrAbove(cands []marketdata.Contract, floor float64) []marketdata.Contract {
	out := make([]marketdata.Contract, 0, len(cands))
	for _, c := range cands {
		if c.Strike >= floor-strikeEps {
			out = append(out, c)
		}
	}
	return out
}

func atStrike(cands []marketdata.Contract, strike float64) []marketdata.Contract {
	out := make([]marketdata.Contract, 0, 1)
	for _, c := range cands {
		if math.Abs(c.Strike-strike) < strikeEps {
			out = append(out, c)
		}
	}
	return out
}

// validateShape rejects selections whose strikes lost the ordering the
// strategy shape requires, which can happen when a snap fell back near the
// edge of a thin ladder.
func validateShape(symbol string, typ strategy.Type, legs []StrategyLeg) error {
	fail := func(reason string) error {
		return &SelectionError{
			Symbol: symbol, Strategy: typ, Side: "both",
			Reason: reason, Err: ErrStrikeSelectionFailed,
		}
	}

	switch typ {
	case strategy.LongStrangle, strategy.ShortStrangle:
		if legs[1].Strike <= legs[0].Strike {
			return fail("call strike not above put strike")
		}

	case strategy.LongStraddle, strategy.ShortStraddle:
		if math.Abs(legs[0].Strike-legs[1].Strike) > strikeEps {
			return fail("straddle legs landed on different strikes")
		}

	case strategy.IronCondor:
		if legs[1].Strike >= legs[0].Strike {
			return fail("put wing not below short put")
		}
		if legs[3].Strike <= legs[2].Strike {
			return fail("call wing not above short call")
		}
		if legs[2].Strike <= legs[0].Strike {
			return fail("short call not above short put")
		}

	case strategy.ButterflySpread:
		if !(legs[0].Strike < legs[1].Strike && legs[1].Strike < legs[2].Strike) {
			return fail("butterfly strikes not strictly increasing")
		}

	case strategy.DiagonalCalendar:
		if !legs[1].Expiration.After(legs[0].Expiration) {
			return fail("far leg does not expire after near leg")
		}

	default:
		return fmt.Errorf("%w: %s", strategy.ErrUnknownType, typ)
	}

	return nil
}
