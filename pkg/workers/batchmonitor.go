package workers

import (
	"context"

	"github.com/paoliniluis/similarity/pkg/batch"
)

// BatchMonitorWorker polls the provider for the state of every submitted
// batch and reconciles completed ones. Run it with a poll interval matching
// the batch configuration rather than the default worker cadence; batch
// jobs take hours, not seconds.
type BatchMonitorWorker struct {
	orchestrator *batch.Orchestrator
}

// NewBatchMonitorWorker builds a BatchMonitorWorker.
func NewBatchMonitorWorker(orchestrator *batch.Orchestrator) *BatchMonitorWorker {
	return &BatchMonitorWorker{orchestrator: orchestrator}
}

var _ Worker = (*BatchMonitorWorker)(nil)

func (w *BatchMonitorWorker) Name() string { return "batch_monitor" }

func (w *BatchMonitorWorker) RunCycle(ctx context.Context) (int, error) {
	if err := w.orchestrator.CheckPending(ctx); err != nil {
		return 0, err
	}
	return 0, nil
}
