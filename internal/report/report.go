// Package report persists computed analyses, surfaces, and refresh batches
// as JSON and CSV files under a configured directory.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/optionlab/stratcalc/internal/engine"
	"github.com/optionlab/stratcalc/internal/refresh"
)

// Formats accepted by NewWriter.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatBoth = "both"
)

// Writer names output files with a timestamp from its clock and writes the
// formats it was configured with.
type Writer struct {
	dir    string
	format string
	log    zerolog.Logger
	now    func() time.Time
}

// NewWriter constructs a writer targeting dir. format is one of json, csv,
// or both.
func NewWriter(dir, format string, log zerolog.Logger) *Writer {
	return &Writer{
		dir:    dir,
		format: strings.ToLower(format),
		log:    log.With().Str("component", "report").Logger(),
		now:    time.Now,
	}
}

// WithClock replaces the timestamp source. Tests use this to get stable
// file names.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

func (w *Writer) wantJSON() bool { return w.format == FormatJSON || w.format == FormatBoth }
func (w *Writer) wantCSV() bool  { return w.format == FormatCSV || w.format == FormatBoth }

func (w *Writer) stamp() string {
	return w.now().UTC().Format("20060102_150405")
}

// WriteAnalysis persists one analysis and returns the paths written. CSV
// output is split into a position row file and a probability-curve file.
func (w *Writer) WriteAnalysis(a *engine.Analysis) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("report dir: %w", err)
	}

	base := fmt.Sprintf("%s_%s_%s", strings.ToLower(a.Position.Symbol), a.Position.Strategy, w.stamp())
	var paths []string

	if w.wantJSON() {
		path := filepath.Join(w.dir, base+".json")
		if err := writeJSON(path, a); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	if w.wantCSV() {
		path := filepath.Join(w.dir, base+".csv")
		if err := writePositionsCSV(path, []engine.StrategyPosition{a.Position}); err != nil {
			return paths, err
		}
		paths = append(paths, path)

		if len(a.Curve) > 0 {
			curvePath := filepath.Join(w.dir, base+"_curve.csv")
			if err := writeCurveCSV(curvePath, a.Curve); err != nil {
				return paths, err
			}
			paths = append(paths, curvePath)
		}
	}

	w.log.Info().Strs("paths", paths).Msg("analysis written")
	return paths, nil
}

// WriteSurface persists one volatility surface and returns the paths
// written.
func (w *Writer) WriteSurface(s *engine.VolatilitySurfaceData) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("report dir: %w", err)
	}

	base := fmt.Sprintf("surface_%s_%s", strings.ToLower(s.Symbol), w.stamp())
	var paths []string

	if w.wantJSON() {
		path := filepath.Join(w.dir, base+".json")
		if err := writeJSON(path, s); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	if w.wantCSV() {
		path := filepath.Join(w.dir, base+".csv")
		if err := writeSurfaceCSV(path, s.Points); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	w.log.Info().Strs("paths", paths).Msg("surface written")
	return paths, nil
}

// WriteBatch persists a refresh batch: the full batch as JSON and the
// position rows as CSV. It satisfies the refresh sink interface.
func (w *Writer) WriteBatch(_ context.Context, batch *refresh.Batch) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("report dir: %w", err)
	}

	base := "batch_" + w.stamp()

	if w.wantJSON() {
		if err := writeJSON(filepath.Join(w.dir, base+".json"), batch); err != nil {
			return err
		}
	}

	if w.wantCSV() {
		positions := make([]engine.StrategyPosition, 0, len(batch.Analyses))
		for _, a := range batch.Analyses {
			positions = append(positions, a.Position)
		}
		if err := writePositionsCSV(filepath.Join(w.dir, base+"_positions.csv"), positions); err != nil {
			return err
		}
	}

	w.log.Info().
		Str("base", base).
		Int("analyses", len(batch.Analyses)).
		Int("surfaces", len(batch.Surfaces)).
		Int("failures", len(batch.Failures)).
		Msg("batch written")
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, b, 0o644)
}

func writePositionsCSV(path string, positions []engine.StrategyPosition) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	headers := []string{
		"symbol", "strategy", "expiration", "dte", "underlying",
		"net_premium", "max_loss", "max_profit",
		"lower_breakeven", "upper_breakeven", "pop",
		"implied_vol", "iv_percentile", "calculated_at", "legs_json",
	}
	if err := cw.Write(headers); err != nil {
		return err
	}

	for _, p := range positions {
		legsJSON, _ := json.Marshal(p.Legs)
		pop := ""
		if p.Probability != nil {
			pop = fmt.Sprintf("%.4f", p.Probability.ProbOfProfit)
		}
		row := []string{
			p.Symbol,
			p.Strategy.String(),
			p.Expiration.Format("2006-01-02"),
			fmt.Sprintf("%d", p.DaysToExpiry),
			fmt.Sprintf("%.2f", p.Underlying),
			fmt.Sprintf("%.2f", p.NetPremium),
			p.MaxLoss.String(),
			p.MaxProfit.String(),
			formatOptional(p.Lower),
			formatOptional(p.Upper),
			pop,
			fmt.Sprintf("%.2f", p.ImpliedVol),
			fmt.Sprintf("%.1f", p.IVPercentile),
			p.CalculatedAt.Format(time.RFC3339),
			string(legsJSON),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeCurveCSV(path string, points []engine.ProbabilityCurvePoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if err := cw.Write([]string{"price", "density", "cumulative_below", "pnl", "is_profitable", "z_score"}); err != nil {
		return err
	}
	for _, pt := range points {
		row := []string{
			fmt.Sprintf("%.2f", pt.Price),
			fmt.Sprintf("%.6f", pt.Density),
			fmt.Sprintf("%.6f", pt.CumulativeBelow),
			fmt.Sprintf("%.2f", pt.PnL),
			fmt.Sprintf("%t", pt.IsProfitable),
			fmt.Sprintf("%.2f", pt.ZScore),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeSurfaceCSV(path string, points []engine.VolatilitySurfacePoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if err := cw.Write([]string{"strike", "expiration", "days_to_exp", "implied_vol", "moneyness", "from_chain"}); err != nil {
		return err
	}
	for _, pt := range points {
		row := []string{
			fmt.Sprintf("%.2f", pt.Strike),
			pt.Expiration.Format("2006-01-02"),
			fmt.Sprintf("%d", pt.DaysToExp),
			fmt.Sprintf("%.2f", pt.ImpliedVol),
			fmt.Sprintf("%.4f", pt.Moneyness),
			fmt.Sprintf("%t", pt.FromChain),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}
