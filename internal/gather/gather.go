// Package gather ingests daily price history from external market-data
// providers into the local price stores.
package gather

import (
	"context"
	"time"
)

// Gatherer is a runnable ingestion job.
type Gatherer interface {
	// Name identifies the job in logs and CLI output.
	Name() string
	// Run executes the job. It returns once all work is done or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange bounds a history fetch, inclusive on both ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}
