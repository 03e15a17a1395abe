package marketdata

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMatchDate(t *testing.T) {
	dates := []time.Time{
		day(2026, 9, 4),
		day(2026, 9, 11),
		day(2026, 9, 18),
	}
	target := day(2026, 9, 10)

	tests := []struct {
		name string
		mode DateMatchMode
		want time.Time
	}{
		{"nearest picks the closer side", MatchNearest, day(2026, 9, 11)},
		{"lower picks last before", MatchLower, day(2026, 9, 4)},
		{"higher picks first after", MatchHigher, day(2026, 9, 11)},
		{"exact misses", MatchExact, time.Time{}},
		{"unknown mode defaults to nearest", DateMatchMode("bogus"), day(2026, 9, 11)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchDate(target, dates, tt.mode)
			assert.True(t, tt.want.Equal(got), "want %v got %v", tt.want, got)
		})
	}

	t.Run("exact hit", func(t *testing.T) {
		got := MatchDate(day(2026, 9, 11), dates, MatchExact)
		assert.True(t, day(2026, 9, 11).Equal(got))
	})

	t.Run("empty dates", func(t *testing.T) {
		got := MatchDate(target, nil, MatchNearest)
		assert.True(t, got.IsZero())
	})
}

func TestClosestStrike(t *testing.T) {
	strikes := []float64{160, 165, 170, 175, 180}

	tests := []struct {
		target float64
		want   float64
	}{
		{166, 165},
		{173, 175},
		{100, 160},
		{500, 180},
		{175, 175},
	}

	for _, tt := range tests {
		got, ok := ClosestStrike(strikes, tt.target)
		require.True(t, ok)
		assert.Equal(t, tt.want, got, "target %v", tt.target)
	}

	_, ok := ClosestStrike(nil, 100)
	assert.False(t, ok)
}

func TestOCCSymbol(t *testing.T) {
	exp := day(2026, 9, 18)

	assert.Equal(t, "O:AAPL260918C00175000", OCCSymbol("aapl", exp, Call, 175))
	assert.Equal(t, "O:SPY260918P00502500", OCCSymbol("SPY", exp, Put, 502.5))
}

func TestContractQuoteHelpers(t *testing.T) {
	c := Contract{Bid: 4.80, Ask: 5.20, Last: 4.95}
	assert.InDelta(t, 5.00, c.Mid(), 1e-9)
	assert.InDelta(t, 0.40, c.SpreadWidth(), 1e-9)
	assert.True(t, c.HasLiveQuote())

	stale := Contract{Bid: 0, Ask: 0, Last: 4.95}
	assert.Equal(t, 4.95, stale.Mid())
	assert.True(t, math.IsInf(stale.SpreadWidth(), 1))
	assert.False(t, stale.HasLiveQuote())

	crossed := Contract{Bid: 5.00, Ask: 4.00}
	assert.False(t, crossed.HasLiveQuote())
}

func TestChainHelpers(t *testing.T) {
	e1 := day(2026, 9, 18)
	e2 := day(2026, 10, 16)
	ch := Chain{
		Symbol:          "AAPL",
		UnderlyingPrice: 175.50,
		Contracts: []Contract{
			{Strike: 170, Type: Put, Expiration: e2},
			{Strike: 170, Type: Call, Expiration: e1},
			{Strike: 180, Type: Call, Expiration: e1},
		},
	}

	exps := ch.Expirations()
	require.Len(t, exps, 2)
	assert.True(t, exps[0].Before(exps[1]))

	assert.Len(t, ch.ForExpiration(e1), 2)
	assert.Len(t, ch.ForExpiration(day(2026, 1, 1)), 0)

	assert.Equal(t, []float64{170, 180}, ch.Strikes())
}

func TestCloses(t *testing.T) {
	bars := []Bar{{Close: 1}, {Close: 2}, {Close: 3}}
	assert.Equal(t, []float64{1, 2, 3}, Closes(bars))
}
