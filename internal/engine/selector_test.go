package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionlab/stratcalc/internal/marketdata"
	"github.com/optionlab/stratcalc/internal/strategy"
)

func legCandidates(t *testing.T, typ strategy.Type, chain marketdata.Chain, spot float64, params strategy.Params) []LegCandidates {
	t.Helper()

	rules, err := strategy.Legs(typ, spot, params)
	require.NoError(t, err)

	exp := chain.Expirations()[0]
	filtered := FilterContracts(chain.ForExpiration(exp), spot, DefaultFilterConfig())

	out := make([]LegCandidates, 0, len(rules))
	for _, rule := range rules {
		out = append(out, LegCandidates{
			Rule:       rule,
			Candidates: filtered.Side(rule.OptionType),
			Expiration: exp,
			DTE:        30,
		})
	}
	return out
}

func TestSelectLegsStrangleSnapsBelowTargets(t *testing.T) {
	spot := 175.50
	chain := ladderChain("AAPL", spot, expiryIn(30), 150, 200, 1, 25)
	cands := legCandidates(t, strategy.LongStrangle, chain, spot, strategy.Params{StrangleOTMPct: 5})

	legs, trace, err := SelectLegs("AAPL", strategy.LongStrangle, cands, spot, 25, DefaultSelectorConfig())
	require.NoError(t, err)
	require.Len(t, legs, 2)

	assert.Equal(t, 166.0, legs[0].Strike)
	assert.Equal(t, 184.0, legs[1].Strike)
	assert.Equal(t, marketdata.Put, legs[0].ContractType)
	assert.Equal(t, marketdata.Call, legs[1].ContractType)

	require.Len(t, trace.Legs, 2)
	assert.InDelta(t, 166.725, trace.Legs[0].Target, 1e-9)
	assert.InDelta(t, 184.275, trace.Legs[1].Target, 1e-9)
	assert.False(t, trace.Legs[0].FellBack)
	assert.False(t, trace.Legs[1].FellBack)
	assert.False(t, trace.SeparationAdjusted)
}

func TestSelectLegsStrangleSeparation(t *testing.T) {
	spot := 100.0
	chain := ladderChain("X", spot, expiryIn(30), 80, 120, 1, 25)
	cands := legCandidates(t, strategy.LongStrangle, chain, spot, strategy.Params{StrangleOTMPct: 5})

	legs, _, err := SelectLegs("X", strategy.LongStrangle, cands, spot, 25, DefaultSelectorConfig())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, legs[1].Strike-legs[0].Strike, 1.0)
	assert.Less(t, legs[0].Strike, spot)
	assert.Greater(t, legs[1].Strike, spot)
}

func TestSelectLegsSeparationGuardPushesCallUp(t *testing.T) {
	spot := 100.0
	chain := ladderChain("X", spot, expiryIn(30), 90, 110, 1, 25)

	// Both legs aim at the same strike; the guard must move the call off it.
	rules := []strategy.LegRule{
		{Side: strategy.Buy, OptionType: marketdata.Put, StrikeRule: "ABS:100"},
		{Side: strategy.Buy, OptionType: marketdata.Call, StrikeRule: "ABS:100"},
	}
	exp := chain.Expirations()[0]
	filtered := FilterContracts(chain.ForExpiration(exp), spot, DefaultFilterConfig())
	cands := []LegCandidates{
		{Rule: rules[0], Candidates: filtered.Puts, Expiration: exp, DTE: 30},
		{Rule: rules[1], Candidates: filtered.Calls, Expiration: exp, DTE: 30},
	}

	legs, trace, err := SelectLegs("X", strategy.LongStrangle, cands, spot, 25, DefaultSelectorConfig())
	require.NoError(t, err)

	assert.Equal(t, 100.0, legs[0].Strike)
	assert.Equal(t, 101.0, legs[1].Strike)
	assert.True(t, trace.SeparationAdjusted)
}

func TestSelectLegsStraddlePicksCommonStrike(t *testing.T) {
	spot := 175.50
	chain := ladderChain("AAPL", spot, expiryIn(30), 150, 200, 5, 25)
	cands := legCandidates(t, strategy.LongStraddle, chain, spot, strategy.Params{})

	legs, _, err := SelectLegs("AAPL", strategy.LongStraddle, cands, spot, 25, DefaultSelectorConfig())
	require.NoError(t, err)

	assert.Equal(t, 175.0, legs[0].Strike)
	assert.Equal(t, legs[0].Strike, legs[1].Strike)
}

func TestSelectLegsStraddleNeedsCommonStrike(t *testing.T) {
	spot := 100.0
	exp := expiryIn(30)

	// Put ladder has 95/100, call ladder 95/105: only 95 is shared.
	cands := []LegCandidates{
		{
			Rule: strategy.LegRule{Side: strategy.Buy, OptionType: marketdata.Put, StrikeRule: "ATM"},
			Candidates: []marketdata.Contract{
				quoted("X", marketdata.Put, 95, 1, 1.1, 25, exp),
				quoted("X", marketdata.Put, 100, 2, 2.1, 25, exp),
			},
			Expiration: exp, DTE: 30,
		},
		{
			Rule: strategy.LegRule{Side: strategy.Buy, OptionType: marketdata.Call, StrikeRule: "ATM"},
			Candidates: []marketdata.Contract{
				quoted("X", marketdata.Call, 95, 6, 6.1, 25, exp),
				quoted("X", marketdata.Call, 105, 1, 1.1, 25, exp),
			},
			Expiration: exp, DTE: 30,
		},
	}

	legs, _, err := SelectLegs("X", strategy.LongStraddle, cands, spot, 25, DefaultSelectorConfig())
	require.NoError(t, err)
	assert.Equal(t, 95.0, legs[0].Strike)
	assert.Equal(t, 95.0, legs[1].Strike)
}

func TestSelectLegsCondorShape(t *testing.T) {
	spot := 500.0
	chain := ladderChain("SPY", spot, expiryIn(30), 450, 550, 5, 20)
	cands := legCandidates(t, strategy.IronCondor, chain, spot, strategy.Params{CondorShortOTMPct: 2, CondorWingPct: 2})

	legs, _, err := SelectLegs("SPY", strategy.IronCondor, cands, spot, 20, DefaultSelectorConfig())
	require.NoError(t, err)
	require.Len(t, legs, 4)

	assert.Equal(t, 490.0, legs[0].Strike) // short put
	assert.Equal(t, 480.0, legs[1].Strike) // put wing
	assert.Equal(t, 510.0, legs[2].Strike) // short call
	assert.Equal(t, 520.0, legs[3].Strike) // call wing
}

func TestSelectLegsFallsBackToNearest(t *testing.T) {
	spot := 175.50
	// Ladder starts above the 5% OTM put target, so the put leg has nothing
	// at or below 166.7 and degrades to the nearest strike.
	chain := ladderChain("AAPL", spot, expiryIn(30), 170, 200, 1, 25)
	cands := legCandidates(t, strategy.LongStrangle, chain, spot, strategy.Params{StrangleOTMPct: 5})

	legs, trace, err := SelectLegs("AAPL", strategy.LongStrangle, cands, spot, 25, DefaultSelectorConfig())
	require.NoError(t, err)

	assert.Equal(t, 170.0, legs[0].Strike)
	assert.True(t, trace.Legs[0].FellBack)
}

func TestSelectLegsEmptySideReportsNoLiquidContracts(t *testing.T) {
	exp := expiryIn(30)
	cands := []LegCandidates{
		{
			Rule:       strategy.LegRule{Side: strategy.Buy, OptionType: marketdata.Put, StrikeRule: "OTM:5%", Snap: strategy.SnapFloor},
			Candidates: nil,
			Expiration: exp, DTE: 30,
		},
		{
			Rule:       strategy.LegRule{Side: strategy.Buy, OptionType: marketdata.Call, StrikeRule: "OTM:5%", Snap: strategy.SnapFloor},
			Candidates: []marketdata.Contract{quoted("X", marketdata.Call, 105, 1, 1.1, 25, exp)},
			Expiration: exp, DTE: 30,
		},
	}

	_, _, err := SelectLegs("X", strategy.LongStrangle, cands, 100, 25, DefaultSelectorConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoLiquidContracts)

	var selErr *SelectionError
	require.ErrorAs(t, err, &selErr)
	assert.Equal(t, "put", selErr.Side)
	assert.Equal(t, "X", selErr.Symbol)
}

func TestSelectLegsInvalidRule(t *testing.T) {
	exp := expiryIn(30)
	cands := []LegCandidates{{
		Rule:       strategy.LegRule{Side: strategy.Buy, OptionType: marketdata.Call, StrikeRule: "BANANA"},
		Candidates: []marketdata.Contract{quoted("X", marketdata.Call, 105, 1, 1.1, 25, exp)},
		Expiration: exp, DTE: 30,
	}}

	_, _, err := SelectLegs("X", strategy.LongStrangle, cands, 100, 25, DefaultSelectorConfig())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNearestStrikeTieBreaks(t *testing.T) {
	exp := expiryIn(30)

	// Equidistant from 105: the tighter spread wins.
	bySpread := []marketdata.Contract{
		quoted("X", marketdata.Call, 100, 1.00, 1.20, 25, exp),
		quoted("X", marketdata.Call, 110, 1.00, 1.04, 25, exp),
	}
	chosen, tie := nearestStrike(bySpread, 105, marketdata.Call)
	assert.Equal(t, 110.0, chosen.Strike)
	assert.Equal(t, "spread", tie)

	// Equal spreads: calls prefer the higher strike, puts the lower.
	even := []marketdata.Contract{
		quoted("X", marketdata.Call, 100, 1.00, 1.10, 25, exp),
		quoted("X", marketdata.Call, 110, 2.00, 2.10, 25, exp),
	}
	chosen, tie = nearestStrike(even, 105, marketdata.Call)
	assert.Equal(t, 110.0, chosen.Strike)
	assert.Equal(t, "direction", tie)

	evenPuts := []marketdata.Contract{
		quoted("X", marketdata.Put, 100, 1.00, 1.10, 25, exp),
		quoted("X", marketdata.Put, 110, 2.00, 2.10, 25, exp),
	}
	chosen, tie = nearestStrike(evenPuts, 105, marketdata.Put)
	assert.Equal(t, 100.0, chosen.Strike)
	assert.Equal(t, "direction", tie)
}

func TestValidateShapeRejectsDegenerateCondor(t *testing.T) {
	exp := expiryIn(30)
	legs := []StrategyLeg{
		{ContractType: marketdata.Put, Strike: 490, Expiration: exp},
		{ContractType: marketdata.Put, Strike: 490, Expiration: exp}, // wing collapsed
		{ContractType: marketdata.Call, Strike: 510, Expiration: exp},
		{ContractType: marketdata.Call, Strike: 520, Expiration: exp},
	}
	err := validateShape("X", strategy.IronCondor, legs)
	assert.ErrorIs(t, err, ErrStrikeSelectionFailed)
}
