package utils

import (
	"context"
	"testing"

	"go.uber.org/atomic"
	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	t.Run("stop waits for every worker", func(t *testing.T) {
		var stopped atomic.Int32
		worker := func(ctx context.Context) {
			<-ctx.Done()
			stopped.Inc()
		}
		workers := NewStoppableWorkers(worker, worker)
		workers.AddWorkers(worker)
		workers.Stop()
		test.That(t, stopped.Load(), test.ShouldEqual, 3)
		test.That(t, workers.Context().Err(), test.ShouldNotBeNil)

		// adding after stop is ignored
		workers.AddWorkers(worker)
		workers.Stop()
		test.That(t, stopped.Load(), test.ShouldEqual, 3)
	})

	t.Run("parent cancellation", func(t *testing.T) {
		parent, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		workers := NewStoppableWorkersWithContext(parent, func(ctx context.Context) {
			<-ctx.Done()
			close(done)
		})
		cancel()
		<-done
		workers.Stop()
	})
}
