package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionlab/stratcalc/internal/marketdata"
)

func ruleCtx(spot float64) RuleContext {
	return RuleContext{Spot: spot, IVPct: 25, DTE: 30}
}

func TestResolveTargetATM(t *testing.T) {
	got, err := ResolveTarget("ATM", marketdata.Call, ruleCtx(175.50))
	require.NoError(t, err)
	assert.Equal(t, 175.50, got)
}

func TestResolveTargetATMOffsets(t *testing.T) {
	cases := []struct {
		rule string
		want float64
	}{
		{"ATM:+10", 185.50},
		{"ATM:-5", 170.50},
		{"ATM:+5%", 184.28}, // 175.50 * 1.05 = 184.275, rounded to cents
		{"ATM:-10%", 157.95},
	}
	for _, tc := range cases {
		got, err := ResolveTarget(tc.rule, marketdata.Call, ruleCtx(175.50))
		require.NoError(t, err, tc.rule)
		assert.InDelta(t, tc.want, got, 0.005, tc.rule)
	}
}

func TestResolveTargetOTMIsDirectionAware(t *testing.T) {
	ctx := ruleCtx(100)

	call, err := ResolveTarget("OTM:5%", marketdata.Call, ctx)
	require.NoError(t, err)
	assert.InDelta(t, 105, call, 1e-9)

	put, err := ResolveTarget("OTM:5%", marketdata.Put, ctx)
	require.NoError(t, err)
	assert.InDelta(t, 95, put, 1e-9)
}

func TestResolveTargetDelta(t *testing.T) {
	// A 50-delta call sits near the forward, slightly above spot.
	got, err := ResolveTarget("DELTA:0.5", marketdata.Call, ruleCtx(100))
	require.NoError(t, err)
	assert.InDelta(t, 100, got, 3)

	// A 30-delta call is out of the money.
	otm, err := ResolveTarget("DELTA:0.3", marketdata.Call, ruleCtx(100))
	require.NoError(t, err)
	assert.Greater(t, otm, got)
}

func TestResolveTargetABS(t *testing.T) {
	got, err := ResolveTarget("ABS:152.5", marketdata.Put, ruleCtx(100))
	require.NoError(t, err)
	assert.Equal(t, 152.5, got)

	_, err = ResolveTarget("ABS:-5", marketdata.Put, ruleCtx(100))
	assert.ErrorIs(t, err, ErrInvalidStrikeRule)
}

func TestResolveTargetLegExpression(t *testing.T) {
	ctx := ruleCtx(500)
	ctx.Prior = []PriorLeg{
		{Strike: 490, Premium: 2.50},
		{Strike: 510, Premium: 1.80},
	}

	got, err := ResolveTarget("{LEG1.STRIKE}-10", marketdata.Put, ctx)
	require.NoError(t, err)
	assert.InDelta(t, 480, got, 1e-9)

	got, err = ResolveTarget("{LEG2.STRIKE}+10", marketdata.Call, ctx)
	require.NoError(t, err)
	assert.InDelta(t, 520, got, 1e-9)

	got, err = ResolveTarget("{LEG1.STRIKE}+{LEG1.PREMIUM}", marketdata.Call, ctx)
	require.NoError(t, err)
	assert.InDelta(t, 492.50, got, 1e-6)
}

func TestResolveTargetLegIndexOutOfRange(t *testing.T) {
	ctx := ruleCtx(500)
	ctx.Prior = []PriorLeg{{Strike: 490, Premium: 2.50}}

	_, err := ResolveTarget("{LEG3.STRIKE}-10", marketdata.Put, ctx)
	assert.ErrorIs(t, err, ErrLegIndexOutOfRange)
}

func TestResolveTargetInvalid(t *testing.T) {
	for _, rule := range []string{"", "BANANA", "ATM:abc", "OTM:x%", "DELTA:zzz", "{LEG1.VEGA}+1"} {
		_, err := ResolveTarget(rule, marketdata.Call, ruleCtx(100))
		assert.Error(t, err, rule)
	}
}

func TestResolveTargetRejectsBadSpot(t *testing.T) {
	_, err := ResolveTarget("ATM", marketdata.Call, RuleContext{Spot: 0})
	assert.ErrorIs(t, err, ErrInvalidStrikeRule)
}
