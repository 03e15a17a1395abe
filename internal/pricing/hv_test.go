package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnualizedVolatility(t *testing.T) {
	t.Run("constant series has zero vol", func(t *testing.T) {
		closes := []float64{100, 100, 100, 100, 100}
		assert.Zero(t, AnnualizedVolatility(closes))
	})

	t.Run("too short", func(t *testing.T) {
		assert.Zero(t, AnnualizedVolatility([]float64{100}))
		assert.Zero(t, AnnualizedVolatility(nil))
	})

	t.Run("alternating moves", func(t *testing.T) {
		closes := []float64{100, 101, 100, 101, 100, 101, 100}
		hv := AnnualizedVolatility(closes)
		assert.Greater(t, hv, 0.10)
		assert.Less(t, hv, 0.30)
	})

	t.Run("ignores non-positive closes", func(t *testing.T) {
		closes := []float64{100, 0, 101, 100, 101, 100}
		hv := AnnualizedVolatility(closes)
		assert.Greater(t, hv, 0.0)
	})
}

func TestRollingAnnualizedVolatility(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i%3)
	}

	series := RollingAnnualizedVolatility(closes, 20)
	require.Len(t, series, 21)
	for _, v := range series {
		assert.GreaterOrEqual(t, v, 0.0)
	}

	assert.Nil(t, RollingAnnualizedVolatility(closes, 41))
	assert.Nil(t, RollingAnnualizedVolatility(closes, 1))
}

func TestPercentileRank(t *testing.T) {
	history := []float64{0.10, 0.20, 0.30, 0.40, 0.50}

	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"below min", 0.05, 0},
		{"at min", 0.10, 0},
		{"above max", 0.60, 100},
		{"at max", 0.50, 100},
		{"median", 0.30, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PercentileRank(tt.value, history), 1.0)
		})
	}

	t.Run("empty history is neutral", func(t *testing.T) {
		assert.Equal(t, 50.0, PercentileRank(0.25, nil))
	})
}
