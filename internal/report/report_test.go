package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionlab/stratcalc/internal/engine"
	"github.com/optionlab/stratcalc/internal/marketdata"
	"github.com/optionlab/stratcalc/internal/refresh"
	"github.com/optionlab/stratcalc/internal/strategy"
	"github.com/optionlab/stratcalc/internal/testutil"
)

var reportNow = time.Date(2026, time.August, 17, 14, 30, 0, 0, time.UTC)

func newTestWriter(t *testing.T, format string) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	w := NewWriter(dir, format, zerolog.Nop()).WithClock(func() time.Time { return reportNow })
	return w, dir
}

func fp(v float64) *float64 { return &v }

func fixtureAnalysis() *engine.Analysis {
	exp := time.Date(2026, time.September, 16, 0, 0, 0, 0, time.UTC)
	return &engine.Analysis{
		Position: engine.StrategyPosition{
			ID:       "3f1c9a52-8a15-4a64-b1e2-0d9f5de0c1aa",
			Symbol:   "AAPL",
			Strategy: strategy.LongStrangle,
			Legs: []engine.StrategyLeg{
				{Action: strategy.Buy, ContractType: marketdata.Put, Strike: 166, Premium: 2.50, Quantity: 1, Expiration: exp},
				{Action: strategy.Buy, ContractType: marketdata.Call, Strike: 184, Premium: 2.80, Quantity: 1, Expiration: exp},
			},
			Lower:        fp(160.70),
			Upper:        fp(189.30),
			MaxLoss:      engine.Finite(5.30),
			MaxProfit:    engine.Open(),
			NetPremium:   5.30,
			ImpliedVol:   25,
			IVPercentile: 50,
			DaysToExpiry: 29,
			Expiration:   exp,
			Underlying:   175.50,
			CalculatedAt: reportNow,
			Probability: &engine.ProbabilitySummary{
				StdDev:       12.37,
				ProbOfProfit: 0.4123,
			},
		},
		Curve: []engine.ProbabilityCurvePoint{
			{Price: 150.25, Density: 0.012345, CumulativeBelow: 0.021000, PnL: 10.45, IsProfitable: true, ZScore: -2.04},
			{Price: 175.50, Density: 0.032250, CumulativeBelow: 0.500000, PnL: -5.30, IsProfitable: false, ZScore: 0},
		},
		ExpectedMove: engine.ExpectedMove{
			Symbol: "AAPL",
			Price:  175.50,
			IV:     25,
			Daily:  engine.MoveBand{Low: 173.20, High: 177.80, Move: 2.30, MovePct: 1.31},
			Weekly: engine.MoveBand{Low: 169.42, High: 181.58, Move: 6.08, MovePct: 3.46},
		},
	}
}

func fixtureSurface() *engine.VolatilitySurfaceData {
	exp := time.Date(2026, time.September, 18, 0, 0, 0, 0, time.UTC)
	return &engine.VolatilitySurfaceData{
		Symbol:       "SPY",
		CurrentPrice: 200,
		Points: []engine.VolatilitySurfacePoint{
			{Strike: 190, Expiration: exp, DaysToExp: 32, ImpliedVol: 28.75, Moneyness: 0.95, FromChain: true},
			{Strike: 200, Expiration: exp, DaysToExp: 32, ImpliedVol: 25, Moneyness: 1, FromChain: false},
			{Strike: 210, Expiration: exp, DaysToExp: 32, ImpliedVol: 24.30, Moneyness: 1.05, FromChain: true},
		},
		Stats: engine.SurfaceStats{
			AvgIV: 26.02, MinIV: 24.30, MaxIV: 28.75,
			PutSkew: 2.73, TermStructure: engine.TermFlat,
		},
		Source:      "chain",
		GeneratedAt: reportNow,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteAnalysisJSONRoundTrip(t *testing.T) {
	w, dir := newTestWriter(t, FormatJSON)

	paths, err := w.WriteAnalysis(fixtureAnalysis())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, "aapl_long_strangle_20260817_143000.json"), paths[0])

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	var got engine.Analysis
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "AAPL", got.Position.Symbol)
	assert.Equal(t, strategy.LongStrangle, got.Position.Strategy)
	assert.Equal(t, 5.30, got.Position.NetPremium)
	require.NotNil(t, got.Position.MaxProfit)
	assert.True(t, got.Position.MaxProfit.Unbounded)
	assert.Len(t, got.Curve, 2)
	assert.Equal(t, 6.08, got.ExpectedMove.Weekly.Move)
}

func TestWriteAnalysisCSV(t *testing.T) {
	w, dir := newTestWriter(t, FormatCSV)

	paths, err := w.WriteAnalysis(fixtureAnalysis())
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "aapl_long_strangle_20260817_143000.csv"), paths[0])
	assert.Equal(t, filepath.Join(dir, "aapl_long_strangle_20260817_143000_curve.csv"), paths[1])

	records := readCSV(t, paths[0])
	require.Len(t, records, 2)

	header, row := records[0], records[1]
	assert.Equal(t, "symbol", header[0])
	assert.Equal(t, "legs_json", header[len(header)-1])

	assert.Equal(t, "AAPL", row[0])
	assert.Equal(t, "long_strangle", row[1])
	assert.Equal(t, "2026-09-16", row[2])
	assert.Equal(t, "29", row[3])
	assert.Equal(t, "175.50", row[4])
	assert.Equal(t, "5.30", row[5])
	assert.Equal(t, "5.30", row[6])
	assert.Equal(t, "unbounded", row[7])
	assert.Equal(t, "160.70", row[8])
	assert.Equal(t, "189.30", row[9])
	assert.Equal(t, "0.4123", row[10])

	var legs []engine.StrategyLeg
	require.NoError(t, json.Unmarshal([]byte(row[len(row)-1]), &legs))
	require.Len(t, legs, 2)
	assert.Equal(t, 166.0, legs[0].Strike)

	curve := readCSV(t, paths[1])
	require.Len(t, curve, 3)
	assert.Equal(t, "price", curve[0][0])
	assert.Equal(t, "150.25", curve[1][0])
	assert.Equal(t, "true", curve[1][4])
}

func TestWriteAnalysisBothFormats(t *testing.T) {
	w, _ := newTestWriter(t, FormatBoth)

	paths, err := w.WriteAnalysis(fixtureAnalysis())
	require.NoError(t, err)
	assert.Len(t, paths, 3)
}

func TestWriteAnalysisOmitsPopWithoutProbability(t *testing.T) {
	w, _ := newTestWriter(t, FormatCSV)

	a := fixtureAnalysis()
	a.Position.Probability = nil
	a.Position.Lower = nil
	a.Curve = nil

	paths, err := w.WriteAnalysis(a)
	require.NoError(t, err)
	require.Len(t, paths, 1) // no curve file without points

	records := readCSV(t, paths[0])
	require.Len(t, records, 2)
	assert.Equal(t, "", records[1][8])  // lower breakeven
	assert.Equal(t, "", records[1][10]) // pop
}

func TestWriteSurfaceCSVGolden(t *testing.T) {
	w, dir := newTestWriter(t, FormatCSV)

	paths, err := w.WriteSurface(fixtureSurface())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, "surface_spy_20260817_143000.csv"), paths[0])

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	testutil.CompareRawWithGolden(t, "surface_csv", b)
}

func TestWriteSurfaceJSON(t *testing.T) {
	w, _ := newTestWriter(t, FormatJSON)

	paths, err := w.WriteSurface(fixtureSurface())
	require.NoError(t, err)
	require.Len(t, paths, 1)

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	var got engine.VolatilitySurfaceData
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "SPY", got.Symbol)
	assert.Equal(t, "chain", got.Source)
	assert.Len(t, got.Points, 3)
	assert.Equal(t, engine.TermFlat, got.Stats.TermStructure)
}

func TestWriteBatch(t *testing.T) {
	w, dir := newTestWriter(t, FormatBoth)

	second := fixtureAnalysis()
	second.Position.Symbol = "MSFT"
	batch := &refresh.Batch{
		Started:  reportNow,
		Finished: reportNow.Add(2 * time.Second),
		Analyses: []engine.Analysis{*fixtureAnalysis(), *second},
		Surfaces: []engine.VolatilitySurfaceData{*fixtureSurface()},
		Failures: []refresh.Failure{
			{Symbol: "THIN", Strategy: strategy.IronCondor, Op: "analyze", Err: "no liquid contracts"},
		},
	}

	require.NoError(t, w.WriteBatch(context.Background(), batch))

	b, err := os.ReadFile(filepath.Join(dir, "batch_20260817_143000.json"))
	require.NoError(t, err)
	var got refresh.Batch
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Len(t, got.Analyses, 2)
	assert.Len(t, got.Surfaces, 1)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "THIN", got.Failures[0].Symbol)

	records := readCSV(t, filepath.Join(dir, "batch_20260817_143000_positions.csv"))
	require.Len(t, records, 3)
	assert.Equal(t, "AAPL", records[1][0])
	assert.Equal(t, "MSFT", records[2][0])
}

func TestWriterCreatesNestedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "reports")
	w := NewWriter(dir, FormatJSON, zerolog.Nop()).WithClock(func() time.Time { return reportNow })

	paths, err := w.WriteAnalysis(fixtureAnalysis())
	require.NoError(t, err)
	require.Len(t, paths, 1)

	_, err = os.Stat(paths[0])
	assert.NoError(t, err)
}
