package worker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner manages a set of workers, cancelling all on first error.
type Runner struct {
	workers []Worker
}

// NewRunner creates a Runner with the given workers. Nil workers are skipped.
func NewRunner(workers ...Worker) *Runner {
	r := &Runner{}
	for _, w := range workers {
		if w != nil {
			r.workers = append(r.workers, w)
		}
	}
	return r
}

// Add appends a worker. It must be called before Run.
func (r *Runner) Add(w Worker) { r.workers = append(r.workers, w) }

// Run starts all workers in parallel. It blocks until all workers finish.
// If any worker returns a non-nil error, the context is cancelled and
// the first error, prefixed with the worker name, is returned.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		name := workerName(w)
		slog.Info("worker started", "worker", name)
		g.Go(func() error {
			err := w.Run(ctx)
			if err != nil {
				slog.Error("worker failed", "worker", name, "error", err)
				return fmt.Errorf("%s: %w", name, err)
			}
			slog.Debug("worker stopped", "worker", name)
			return nil
		})
	}
	return g.Wait()
}

func workerName(w Worker) string {
	if n, ok := w.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}
