// Package worker provides the background tasks of the dashboard backend.
package worker

import "context"

// Worker is a long-running background task.
type Worker interface {
	// Run blocks until ctx is cancelled or an unrecoverable error occurs.
	Run(ctx context.Context) error
}

// Sweeper is a cache with an active expiry pass.
type Sweeper interface {
	Name() string
	Sweep() int
}
