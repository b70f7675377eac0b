// Package worker implements the judging pipeline's outermost control
// loop: block for a submission id, judge it, and keep going. A single
// submission's failure — a panic recovered from, a pipeline error
// returned — never takes down the loop; the whole point of a worker
// process is that one bad submission does not stop the next one from
// being judged.
package worker

import (
	"context"
	"time"

	"github.com/kwant-dbg/codejudge/internal/pipeline"
	"github.com/kwant-dbg/codejudge/pkg/snowflake"
	"go.uber.org/zap"
)

// Queue is the subset of *queue.Queue the loop depends on.
type Queue interface {
	PopSubmission(ctx context.Context) (string, error)
}

// Pipeline is the subset of *pipeline.Pipeline the loop depends on.
type Pipeline interface {
	Judge(ctx context.Context, submissionID string) error
}

// retryBackoff is how long the loop pauses after a queue or pipeline
// error before popping again, so a transient Redis or Postgres outage
// does not turn into a tight error-logging loop.
const retryBackoff = time.Second

// Loop repeatedly pops a submission id and judges it until ctx is
// cancelled. It is meant to run as the worker process's main goroutine.
type Loop struct {
	Queue    Queue
	Pipeline Pipeline
	Logger   *zap.Logger
}

// Run blocks until ctx is cancelled, processing submissions as they
// arrive. It never returns an error on its own account: the loop's job
// is to keep running, not to propagate a single submission's failure.
func (l *Loop) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		l.tick(ctx)
	}
}

// tick performs exactly one pop-then-judge cycle, recovering from a
// panic in either the queue or the pipeline so a single malformed
// submission or transport blip cannot take the worker process down.
func (l *Loop) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.Logger.Error("recovered from panic in worker loop", zap.Any("panic", r))
			time.Sleep(retryBackoff)
		}
	}()

	submissionID, err := l.Queue.PopSubmission(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.Logger.Warn("failed to pop submission from queue", zap.Error(err))
		time.Sleep(retryBackoff)
		return
	}

	log := l.Logger.With(zap.String("submission_id", submissionID))
	correlationID, idErr := snowflake.NextID()
	if idErr != nil {
		log.Warn("failed to mint correlation id, judging without one", zap.Error(idErr))
	} else {
		log = log.With(zap.Int64("correlation_id", correlationID))
		ctx = pipeline.WithCorrelationID(ctx, correlationID)
	}

	log.Info("judging submission")
	start := time.Now()
	if err := l.Pipeline.Judge(ctx, submissionID); err != nil {
		log.Error("failed to judge submission", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		time.Sleep(retryBackoff)
		return
	}
	log.Info("judged submission", zap.Duration("elapsed", time.Since(start)))
}
