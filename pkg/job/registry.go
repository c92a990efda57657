package job

import (
	"context"
	"time"
)

// Registry is the durable Job Registry: the single source of truth for
// status polling, grounded on pkg/queue/worker.go's claim pattern and
// pkg/services/session_service.go's CAS-update idiom in the teacher repo.
type Registry interface {
	// Create writes status=pending, stamping created_at and ttl_at.
	// Returns ErrDuplicateID if job.ID already exists.
	Create(ctx context.Context, j *Job) error

	// Get returns the job, or ErrNotFound if it doesn't exist, is
	// soft-deleted, or its ttl_at has passed (even if not yet reaped).
	Get(ctx context.Context, id string) (*Job, error)

	// Transition performs a compare-and-set: the row must currently be in
	// fromStatus, or ErrConflict is returned. The mutation is applied
	// atomically with the status change.
	Transition(ctx context.Context, id string, fromStatus Status, mutation Mutation) (*Job, error)

	// ClaimNextPending atomically claims the oldest pending job and CASes
	// it to processing, returning ErrNotFound if none are available.
	// Analogous to claimNextSession's FOR UPDATE SKIP LOCKED pattern.
	ClaimNextPending(ctx context.Context, now time.Time) (*Job, error)

	// ReapExpired deletes (or soft-deletes) every job whose ttl_at has
	// passed as of now, returning the count removed.
	ReapExpired(ctx context.Context, now time.Time) (int, error)

	// ListStuckProcessing returns every job still in status=processing
	// whose started_at is older than olderThan, for the optional watchdog
	// of spec.md §4.1.
	ListStuckProcessing(ctx context.Context, olderThan time.Time) ([]*Job, error)

	// Search performs a best-effort full-text search over output_message
	// and error, an ambient convenience adopted from the teacher's
	// SearchSessions (SPEC_FULL.md §8).
	Search(ctx context.Context, query string, limit int) ([]*Job, error)

	// SoftDelete stamps deleted_at on the job, hiding it from Get,
	// ClaimNextPending, and Search without removing the row. Layered
	// under (not replacing) the hard ttl_at reaper ReapExpired performs.
	// Returns ErrNotFound if the job doesn't exist.
	SoftDelete(ctx context.Context, id string, now time.Time) error

	// Restore clears deleted_at, making a soft-deleted job live again
	// provided its ttl_at has not also passed. Returns ErrNotFound if the
	// job doesn't exist (it may still have been hard-reaped).
	Restore(ctx context.Context, id string) error
}
