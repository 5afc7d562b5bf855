// Package auditstore defines the port interface for the append-only audit store.
package auditstore

import (
	"context"
	"time"

	"github.com/cadencrm/cadence/internal/domain/audit"
)

// Store is the port interface for appending, querying, and pruning audit
// events. Events are never mutated; the only delete path is Prune.
type Store interface {
	// Append persists a new event.
	Append(ctx context.Context, ev *audit.Event) error

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error)

	// Prune deletes events with a timestamp strictly before cutoff using a
	// storage-level range delete, and returns the number removed. Safe to run
	// concurrently with Append.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}
