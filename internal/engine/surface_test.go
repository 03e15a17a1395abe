package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionlab/stratcalc/internal/marketdata"
)

func surfacePoint(t *testing.T, sd VolatilitySurfaceData, strike float64) VolatilitySurfacePoint {
	t.Helper()
	for _, p := range sd.Points {
		if p.Strike == strike {
			return p
		}
	}
	t.Fatalf("no surface point at strike %.2f", strike)
	return VolatilitySurfacePoint{}
}

func ivChain(symbol string, exp time.Time, strikes []float64, callIV, putIV float64) marketdata.Chain {
	var contracts []marketdata.Contract
	for _, k := range strikes {
		contracts = append(contracts,
			quoted(symbol, marketdata.Call, k, 1.00, 1.20, callIV, exp),
			quoted(symbol, marketdata.Put, k, 1.00, 1.20, putIV, exp),
		)
	}
	return marketdata.Chain{Symbol: symbol, UnderlyingPrice: 100, Contracts: contracts, AsOf: testNow}
}

func TestBuildSurfaceParametric(t *testing.T) {
	b := NewSurfaceBuilder(DefaultSurfaceConfig()).WithClock(fixedClock())

	sd, err := b.Build("AAPL", 175.50, nil)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", sd.Symbol)
	assert.Equal(t, 175.50, sd.CurrentPrice)
	assert.Equal(t, "parametric", sd.Source)
	assert.Equal(t, testNow, sd.GeneratedAt)

	// Five-dollar listing tier: 145 through 210 on every scheduled expiry.
	exps := marketdata.ExpirationSchedule(testNow, 8, 6)
	require.Len(t, sd.Points, len(exps)*14)

	for _, p := range sd.Points {
		assert.False(t, p.FromChain)
		assert.GreaterOrEqual(t, p.Strike, 145.0)
		assert.LessOrEqual(t, p.Strike, 210.0)
		assert.GreaterOrEqual(t, p.ImpliedVol, 5.0)
		assert.LessOrEqual(t, p.ImpliedVol, 150.0)
		assert.InDelta(t, p.Strike/175.50, p.Moneyness, 1e-9)
		assert.GreaterOrEqual(t, p.DaysToExp, 0)
	}

	// Downside strikes quote over the ATM bucket.
	assert.Greater(t, sd.Stats.PutSkew, 0.0)
	assert.Equal(t, TermFlat, sd.Stats.TermStructure)
	assert.Greater(t, sd.Stats.AvgIV, 0.0)
	assert.LessOrEqual(t, sd.Stats.MinIV, sd.Stats.AvgIV)
	assert.GreaterOrEqual(t, sd.Stats.MaxIV, sd.Stats.AvgIV)
}

func TestBuildSurfaceShortDatedBumpReadsDownward(t *testing.T) {
	b := NewSurfaceBuilder(DefaultSurfaceConfig()).WithClock(fixedClock())

	// NVDA's base of 45 takes the short-dated bump, so near ATM IV sits
	// well above the far end of the curve.
	sd, err := b.Build("NVDA", 880, nil)
	require.NoError(t, err)
	assert.Equal(t, TermDownward, sd.Stats.TermStructure)
}

func TestBuildSurfaceFromChainIVs(t *testing.T) {
	strikes := []float64{80, 85, 90, 95, 100, 105, 110, 115, 120}
	ch := ivChain("XYZ", expiryIn(30), strikes, 32, 28)

	b := NewSurfaceBuilder(DefaultSurfaceConfig()).WithClock(fixedClock())
	sd, err := b.Build("XYZ", 100, &ch)
	require.NoError(t, err)

	assert.Equal(t, "chain", sd.Source)
	require.Len(t, sd.Points, len(strikes))

	// Each cell averages the call and put quotes.
	for _, p := range sd.Points {
		assert.True(t, p.FromChain)
		assert.InDelta(t, 30.0, p.ImpliedVol, 1e-9)
	}
	assert.InDelta(t, 30.0, sd.Stats.AvgIV, 1e-9)
}

func TestBuildSurfaceMixedFillsGapsParametrically(t *testing.T) {
	// The 120 strike is listed on the grid but absent from the chain.
	strikes := []float64{80, 85, 90, 95, 100, 105, 110, 115}
	ch := ivChain("XYZ", expiryIn(30), strikes, 30, 30)

	b := NewSurfaceBuilder(DefaultSurfaceConfig()).WithClock(fixedClock())
	sd, err := b.Build("XYZ", 100, &ch)
	require.NoError(t, err)

	assert.Equal(t, "mixed", sd.Source)

	gap := surfacePoint(t, sd, 120)
	assert.False(t, gap.FromChain)
	// Fallback anchors on the chain median; no skew above the money.
	assert.InDelta(t, 30.0, gap.ImpliedVol, 1e-9)

	filled := surfacePoint(t, sd, 100)
	assert.True(t, filled.FromChain)
}

func TestBuildSurfaceClampsExtremeIVs(t *testing.T) {
	exp := expiryIn(30)
	ch := ivChain("XYZ", exp, []float64{90, 95, 100, 105, 110}, 30, 30)
	ch.Contracts = append(ch.Contracts,
		quoted("XYZ", marketdata.Call, 80, 1.00, 1.20, 200, exp),
		quoted("XYZ", marketdata.Put, 80, 1.00, 1.20, 200, exp),
		quoted("XYZ", marketdata.Call, 85, 1.00, 1.20, 2, exp),
		quoted("XYZ", marketdata.Put, 85, 1.00, 1.20, 2, exp),
	)

	b := NewSurfaceBuilder(DefaultSurfaceConfig()).WithClock(fixedClock())
	sd, err := b.Build("XYZ", 100, &ch)
	require.NoError(t, err)

	assert.Equal(t, 150.0, surfacePoint(t, sd, 80).ImpliedVol)
	assert.Equal(t, 5.0, surfacePoint(t, sd, 85).ImpliedVol)
	assert.Equal(t, 150.0, sd.Stats.MaxIV)
	assert.Equal(t, 5.0, sd.Stats.MinIV)
}

func TestBuildSurfaceNormalizesExpirationClock(t *testing.T) {
	// Quotes often carry an intraday timestamp on the expiration; the cell
	// index must still line up with the date-keyed grid.
	exp := expiryIn(30).Add(20*time.Hour + 30*time.Minute)
	ch := ivChain("XYZ", exp, []float64{100}, 40, 40)

	b := NewSurfaceBuilder(DefaultSurfaceConfig()).WithClock(fixedClock())
	sd, err := b.Build("XYZ", 100, &ch)
	require.NoError(t, err)

	assert.True(t, surfacePoint(t, sd, 100).FromChain)
	assert.InDelta(t, 40.0, surfacePoint(t, sd, 100).ImpliedVol, 1e-9)
}

func TestBuildSurfaceRejectsBadSpot(t *testing.T) {
	b := NewSurfaceBuilder(DefaultSurfaceConfig()).WithClock(fixedClock())
	_, err := b.Build("XYZ", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSurfaceExpirationBudgets(t *testing.T) {
	var contracts []marketdata.Contract
	for _, days := range []int{7, 14, 21, 90, 120} {
		contracts = append(contracts, quoted("XYZ", marketdata.Call, 100, 1.00, 1.20, 30, expiryIn(days)))
	}
	ch := marketdata.Chain{Symbol: "XYZ", Contracts: contracts}

	b := NewSurfaceBuilder(SurfaceConfig{WeeklyCount: 2, MonthlyCount: 1}).WithClock(fixedClock())
	exps := b.expirations(testNow, &ch)

	require.Len(t, exps, 3)
	assert.Equal(t, expiryIn(7), exps[0])
	assert.Equal(t, expiryIn(14), exps[1])
	assert.Equal(t, expiryIn(90), exps[2])
}

func TestStrikeLadderTiers(t *testing.T) {
	ladder := strikeLadder(175.50, 20)
	require.Len(t, ladder, 14)
	assert.Equal(t, 145.0, ladder[0])
	assert.Equal(t, 210.0, ladder[len(ladder)-1])

	narrow := strikeLadder(10, 20)
	require.Len(t, narrow, 5)
	assert.Equal(t, 8.0, narrow[0])
	assert.Equal(t, 12.0, narrow[len(narrow)-1])
}

func TestParametricIVShape(t *testing.T) {
	base := 40.0

	atm := parametricIV(base, 1.0, 30)
	put := parametricIV(base, 0.90, 30)
	deep := parametricIV(base, 0.70, 30)
	call := parametricIV(base, 1.10, 30)

	assert.Equal(t, base, atm)
	assert.Greater(t, put, atm)
	assert.Greater(t, deep, put)
	// Skew contribution caps at twenty points of moneyness.
	assert.InDelta(t, base*1.4, deep, 1e-9)
	assert.Equal(t, base, call)

	// Short-dated bump only for elevated base IV.
	assert.InDelta(t, base*1.15, parametricIV(base, 1.0, 7), 1e-9)
	assert.Equal(t, 25.0, parametricIV(25, 1.0, 7))
}
