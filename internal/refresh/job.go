package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Sink receives completed batches. The report writer implements this.
type Sink interface {
	WriteBatch(ctx context.Context, batch *Batch) error
}

// BatchJob adapts a Runner to the scheduler's Job interface. The cron
// callback carries no context, so the job holds the process context and
// derives a per-run deadline from it.
type BatchJob struct {
	runner  *Runner
	sink    Sink
	base    context.Context
	timeout time.Duration
	log     zerolog.Logger
}

// NewBatchJob wires a runner and an optional sink into a schedulable job.
// A zero timeout means runs are bounded only by the process context.
func NewBatchJob(base context.Context, runner *Runner, sink Sink, timeout time.Duration, log zerolog.Logger) *BatchJob {
	return &BatchJob{
		runner:  runner,
		sink:    sink,
		base:    base,
		timeout: timeout,
		log:     log.With().Str("component", "refresh-job").Logger(),
	}
}

func (j *BatchJob) Name() string { return "refresh" }

// Run executes one batch and hands it to the sink.
func (j *BatchJob) Run() error {
	ctx := j.base
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	batch, err := j.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("refresh batch: %w", err)
	}

	if j.sink != nil {
		if err := j.sink.WriteBatch(ctx, batch); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
	}

	if n := len(batch.Failures); n > 0 {
		j.log.Warn().Int("failures", n).Msg("batch completed with failures")
	}
	return nil
}
