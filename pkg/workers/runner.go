// Package workers hosts the background loops that keep the corpus fresh:
// upstream source monitors, LLM enrichment, embedding backfill and batch
// lifecycle polling.
package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/config"
)

// Worker is one unit of background work. RunCycle performs a single pass
// and reports how many entities it processed.
type Worker interface {
	Name() string
	RunCycle(ctx context.Context) (int, error)
}

// Runner drives a Worker in a loop with exponential backoff on failure.
type Runner struct {
	worker Worker
	cfg    *config.WorkerConfig
	logger *zap.Logger
}

// NewRunner builds a Runner for the given worker.
func NewRunner(worker Worker, cfg *config.WorkerConfig, logger *zap.Logger) *Runner {
	return &Runner{
		worker: worker,
		cfg:    cfg,
		logger: logger.With(zap.String("worker", worker.Name())),
	}
}

// Run loops until the context is cancelled. A failed cycle backs off,
// doubling up to the configured maximum; a successful cycle resets the
// backoff and sleeps the regular poll interval.
func (r *Runner) Run(ctx context.Context) error {
	poll := time.Duration(r.cfg.PollIntervalSeconds) * time.Second
	backoff := time.Duration(r.cfg.BackoffSeconds) * time.Second
	maxBackoff := time.Duration(r.cfg.MaxBackoffSeconds) * time.Second

	r.logger.Info("worker started", zap.Duration("poll_interval", poll))

	currentBackoff := backoff
	for {
		processed, err := r.worker.RunCycle(ctx)

		var sleep time.Duration
		switch {
		case err != nil:
			r.logger.Error("worker cycle failed",
				zap.Error(err),
				zap.Duration("backoff", currentBackoff))
			sleep = currentBackoff
			currentBackoff *= 2
			if currentBackoff > maxBackoff {
				currentBackoff = maxBackoff
			}
		default:
			if processed > 0 {
				r.logger.Info("worker cycle finished", zap.Int("processed", processed))
			}
			currentBackoff = backoff
			sleep = poll
		}

		select {
		case <-ctx.Done():
			r.logger.Info("worker stopped")
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}
