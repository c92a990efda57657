package session

import (
	"context"
	"time"
)

// Registry is the durable store of Sessions, owned by the session
// service; mutated by Intake (user message append, pause/resume) and
// Worker (assistant message append, terminal transitions), per spec.md
// §3.2. Grounded on pkg/services/session_service.go's CAS-on-version
// update idiom in the teacher repo.
type Registry interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)

	// GetActiveByTopic returns the single active session for
	// (tenantID, userID, topicID), or ErrNotFound if none exists. The
	// secondary index enforcing uniqueness lives here, per spec.md §6.4.
	GetActiveByTopic(ctx context.Context, tenantID, userID, topicID string) (*Session, error)

	// CompareAndSwap persists mutated, succeeding only if the stored
	// record's Version still equals expectedVersion. On success the
	// stored Version is incremented and returned in the result.
	CompareAndSwap(ctx context.Context, mutated *Session, expectedVersion int64) (*Session, error)

	List(ctx context.Context, tenantID, userID string, limit int) ([]*Session, error)

	// ReapExpired removes every terminal session whose LastActivityAt is
	// older than olderThan, returning the count removed. Non-terminal
	// sessions are never reaped regardless of age.
	ReapExpired(ctx context.Context, olderThan time.Time) (int, error)

	// SoftDelete stamps deleted_at on the session, hiding it from Get,
	// GetActiveByTopic, and List without removing the row. Layered under
	// (not replacing) ReapExpired's hard removal past retention. Returns
	// ErrNotFound if the session doesn't exist.
	SoftDelete(ctx context.Context, id string, now time.Time) error

	// Restore clears deleted_at, making a soft-deleted session visible
	// again. Returns ErrNotFound if the session doesn't exist (it may
	// still have been hard-reaped).
	Restore(ctx context.Context, id string) error
}

// StartNew begins a new session for (tenantID, userID, topicID). If an
// active session already exists for the same tuple, it is abandoned (per
// spec.md §4.6's "start_new while another active session exists" rule)
// and the new session becomes active in its place.
func StartNew(ctx context.Context, reg Registry, id, tenantID, userID, topicID string, maxTurns int, now time.Time) (*Session, error) {
	if existing, err := reg.GetActiveByTopic(ctx, tenantID, userID, topicID); err == nil {
		existing.Status = StatusAbandoned
		if _, casErr := reg.CompareAndSwap(ctx, existing, existing.Version); casErr != nil {
			return nil, casErr
		}
	} else if err != ErrNotFound {
		return nil, err
	}

	s := New(id, tenantID, userID, topicID, maxTurns, now)
	if err := reg.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Pause transitions an active session to paused. Per the invariant in
// spec.md §3.1, InFlightJobID must be nil on arrival at paused.
func Pause(ctx context.Context, reg Registry, s *Session, now time.Time) (*Session, error) {
	mutated := *s
	mutated.Status = StatusPaused
	mutated.LastActivityAt = now
	return reg.CompareAndSwap(ctx, &mutated, s.Version)
}

// Resume transitions a paused session back to active. Idempotent: resuming
// an already-active session is a no-op success, per spec.md §8's
// "Resuming a paused session N times is equivalent to resuming once".
func Resume(ctx context.Context, reg Registry, s *Session, now time.Time) (*Session, error) {
	if s.Status == StatusActive {
		return s, nil
	}
	mutated := *s
	mutated.Status = StatusActive
	mutated.LastActivityAt = now
	return reg.CompareAndSwap(ctx, &mutated, s.Version)
}

// Cancel transitions a session to cancelled from any non-terminal state.
func Cancel(ctx context.Context, reg Registry, s *Session, now time.Time) (*Session, error) {
	mutated := *s
	mutated.Status = StatusCancelled
	mutated.InFlightJobID = nil
	mutated.LastActivityAt = now
	return reg.CompareAndSwap(ctx, &mutated, s.Version)
}

// MarkIdle flips an active session to paused because the idle TTL elapsed,
// per the acceptance-gate "Freshness" rule of spec.md §4.2.
func MarkIdle(ctx context.Context, reg Registry, s *Session, now time.Time) (*Session, error) {
	mutated := *s
	mutated.Status = StatusPaused
	return reg.CompareAndSwap(ctx, &mutated, s.Version)
}

// ClaimInFlight sets InFlightJobID to jobID only if currently nil,
// implementing the spec.md §9 decision to enforce SESSION_BUSY
// server-side as a CAS on in_flight_job_id.
func ClaimInFlight(ctx context.Context, reg Registry, s *Session, jobID string) (*Session, error) {
	if s.Busy() {
		return nil, ErrConflict
	}
	mutated := *s
	mutated.InFlightJobID = &jobID
	return reg.CompareAndSwap(ctx, &mutated, s.Version)
}

// AppendUserMessage appends a user turn and stamps last_activity_at; it
// does not increment Turn (only assistant turns do, per spec.md §3.1).
func AppendUserMessage(ctx context.Context, reg Registry, s *Session, content string, now time.Time) (*Session, error) {
	mutated := *s
	mutated.History = append(append([]HistoryEntry{}, s.History...), HistoryEntry{
		Role: RoleUser, Content: content, At: now,
	})
	mutated.MessageCount = len(mutated.History)
	mutated.LastActivityAt = now
	return reg.CompareAndSwap(ctx, &mutated, s.Version)
}

// AppendAssistantTurn appends an assistant turn, increments Turn and
// message_count, clears InFlightJobID, and — if isFinal — transitions the
// session to completed, per the Worker algorithm of spec.md §4.3 step 6.
func AppendAssistantTurn(ctx context.Context, reg Registry, s *Session, content string, isFinal bool, now time.Time) (*Session, error) {
	mutated := *s
	mutated.History = append(append([]HistoryEntry{}, s.History...), HistoryEntry{
		Role: RoleAssistant, Content: content, At: now,
	})
	mutated.Turn++
	mutated.MessageCount = len(mutated.History)
	mutated.LastActivityAt = now
	mutated.InFlightJobID = nil
	if isFinal {
		mutated.Status = StatusCompleted
	}
	return reg.CompareAndSwap(ctx, &mutated, s.Version)
}

// ClearInFlight clears InFlightJobID without otherwise mutating the
// session, used on worker-side failure (spec.md §4.3 step 7).
func ClearInFlight(ctx context.Context, reg Registry, s *Session, now time.Time) (*Session, error) {
	mutated := *s
	mutated.InFlightJobID = nil
	mutated.LastActivityAt = now
	return reg.CompareAndSwap(ctx, &mutated, s.Version)
}
