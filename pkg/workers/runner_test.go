package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paoliniluis/similarity/pkg/config"
)

type fakeWorker struct {
	cycles int
	stop   context.CancelFunc
	after  int
	err    error
}

func (f *fakeWorker) Name() string { return "fake" }

func (f *fakeWorker) RunCycle(ctx context.Context) (int, error) {
	f.cycles++
	if f.cycles >= f.after && f.stop != nil {
		f.stop()
	}
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func TestRunner_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := &fakeWorker{stop: cancel, after: 3}
	runner := NewRunner(worker, &config.WorkerConfig{}, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}
	assert.GreaterOrEqual(t, worker.cycles, 3)
}

func TestRunner_KeepsRunningThroughFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Zero backoff config keeps the test fast; the loop must survive
	// repeated cycle errors rather than returning them.
	worker := &fakeWorker{stop: cancel, after: 4, err: errors.New("upstream down")}
	runner := NewRunner(worker, &config.WorkerConfig{}, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}
	assert.GreaterOrEqual(t, worker.cycles, 4)
}
