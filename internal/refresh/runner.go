// Package refresh recomputes strategy positions and volatility surfaces for
// a tracked set of symbols, either one-shot or on a cron schedule. Failures
// are isolated per task: one symbol erroring never aborts the batch.
package refresh

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/optionlab/stratcalc/internal/engine"
	"github.com/optionlab/stratcalc/internal/strategy"
)

// Analyzer is the slice of the calculator the runner needs.
type Analyzer interface {
	Analyze(ctx context.Context, req engine.Request) (*engine.Analysis, error)
	Surface(ctx context.Context, symbol string) (*engine.VolatilitySurfaceData, error)
}

// Config selects what a batch computes.
type Config struct {
	Symbols     []string
	Strategies  []strategy.Type
	Concurrency int
	Surfaces    bool // also build one volatility surface per symbol
}

// Failure records one task that errored, keyed by what it was computing.
type Failure struct {
	Symbol   string        `json:"symbol"`
	Strategy strategy.Type `json:"strategy,omitempty"`
	Op       string        `json:"op"` // "analyze" or "surface"
	Err      string        `json:"error"`
}

// Batch is the collected output of one refresh run. Slices are sorted by
// symbol (then strategy) so repeated runs produce stable reports.
type Batch struct {
	Started  time.Time                      `json:"started"`
	Finished time.Time                      `json:"finished"`
	Analyses []engine.Analysis              `json:"analyses"`
	Surfaces []engine.VolatilitySurfaceData `json:"surfaces,omitempty"`
	Failures []Failure                      `json:"failures,omitempty"`
}

// Runner fans a batch out over the calculator with bounded concurrency.
type Runner struct {
	calc Analyzer
	cfg  Config
	log  zerolog.Logger
}

// NewRunner constructs a runner.
func NewRunner(calc Analyzer, cfg Config, log zerolog.Logger) *Runner {
	return &Runner{
		calc: calc,
		cfg:  cfg,
		log:  log.With().Str("component", "refresh").Logger(),
	}
}

// Run computes every (symbol, strategy) pair, plus a surface per symbol when
// configured. Task errors land in Batch.Failures; Run itself only errors
// when the context is done.
func (r *Runner) Run(ctx context.Context) (*Batch, error) {
	batch := &Batch{Started: time.Now().UTC()}

	workers := r.cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex

	for _, symbol := range r.cfg.Symbols {
		if r.cfg.Surfaces {
			g.Go(func() error {
				if err := sem.Acquire(ctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				surf, err := r.calc.Surface(ctx, symbol)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					r.log.Warn().Err(err).Str("symbol", symbol).Msg("surface failed")
					batch.Failures = append(batch.Failures, Failure{
						Symbol: symbol, Op: "surface", Err: err.Error(),
					})
					return nil
				}
				batch.Surfaces = append(batch.Surfaces, *surf)
				return nil
			})
		}

		for _, st := range r.cfg.Strategies {
			g.Go(func() error {
				if err := sem.Acquire(ctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				a, err := r.calc.Analyze(ctx, engine.Request{Symbol: symbol, Strategy: st})

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					r.log.Warn().Err(err).
						Str("symbol", symbol).
						Stringer("strategy", st).
						Msg("analyze failed")
					batch.Failures = append(batch.Failures, Failure{
						Symbol: symbol, Strategy: st, Op: "analyze", Err: err.Error(),
					})
					return nil
				}
				batch.Analyses = append(batch.Analyses, *a)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch.Finished = time.Now().UTC()
	sortBatch(batch)

	r.log.Info().
		Int("analyses", len(batch.Analyses)).
		Int("surfaces", len(batch.Surfaces)).
		Int("failures", len(batch.Failures)).
		Dur("took", batch.Finished.Sub(batch.Started)).
		Msg("batch complete")
	return batch, nil
}

func sortBatch(b *Batch) {
	sort.Slice(b.Analyses, func(i, j int) bool {
		pi, pj := b.Analyses[i].Position, b.Analyses[j].Position
		if pi.Symbol != pj.Symbol {
			return pi.Symbol < pj.Symbol
		}
		return pi.Strategy < pj.Strategy
	})
	sort.Slice(b.Surfaces, func(i, j int) bool {
		return b.Surfaces[i].Symbol < b.Surfaces[j].Symbol
	})
	sort.Slice(b.Failures, func(i, j int) bool {
		fi, fj := b.Failures[i], b.Failures[j]
		if fi.Symbol != fj.Symbol {
			return fi.Symbol < fj.Symbol
		}
		if fi.Op != fj.Op {
			return fi.Op < fj.Op
		}
		return fi.Strategy < fj.Strategy
	})
}
