package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tarsy-coach/coachcore/pkg/session"
)

// SessionStore is the Postgres-backed session.Registry, grounded on
// pkg/services/session_service.go's ClaimNextPendingSession/UpdateSessionStatus
// CAS-on-version idiom, with the "one active session per topic" invariant
// enforced by idx_sessions_active_unique instead of an application-level check.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore constructs a SessionStore backed by pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	history, err := json.Marshal(sess.History)
	if err != nil {
		return fmt.Errorf("marshal session history: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, tenant_id, user_id, topic_id, status, turn, max_turns,
			message_count, history, created_at, last_activity_at, in_flight_job_id, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sess.ID, sess.TenantID, sess.UserID, sess.TopicID, string(sess.Status), sess.Turn, sess.MaxTurns,
		sess.MessageCount, history, sess.CreatedAt, sess.LastActivityAt, sess.InFlightJobID, sess.Version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return session.ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx, sessionSelectColumns+` FROM sessions WHERE id = $1 AND deleted_at IS NULL`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) GetActiveByTopic(ctx context.Context, tenantID, userID, topicID string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx, sessionSelectColumns+` FROM sessions
		WHERE tenant_id = $1 AND user_id = $2 AND topic_id = $3 AND status = $4 AND deleted_at IS NULL`,
		tenantID, userID, topicID, string(session.StatusActive))
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("get active session by topic: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) CompareAndSwap(ctx context.Context, mutated *session.Session, expectedVersion int64) (*session.Session, error) {
	history, err := json.Marshal(mutated.History)
	if err != nil {
		return nil, fmt.Errorf("marshal session history: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE sessions SET
			status = $3,
			turn = $4,
			max_turns = $5,
			message_count = $6,
			history = $7,
			last_activity_at = $8,
			in_flight_job_id = $9,
			version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING id, tenant_id, user_id, topic_id, status, turn, max_turns, message_count,
			history, created_at, last_activity_at, in_flight_job_id, version, deleted_at`,
		mutated.ID, expectedVersion, string(mutated.Status), mutated.Turn, mutated.MaxTurns,
		mutated.MessageCount, history, mutated.LastActivityAt, mutated.InFlightJobID)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.Get(ctx, mutated.ID); getErr != nil {
				return nil, getErr
			}
			return nil, session.ErrConflict
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, session.ErrConflict
		}
		return nil, fmt.Errorf("compare-and-swap session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) List(ctx context.Context, tenantID, userID string, limit int) ([]*session.Session, error) {
	rows, err := s.pool.Query(ctx, sessionSelectColumns+` FROM sessions
		WHERE tenant_id = $1 AND user_id = $2 AND deleted_at IS NULL
		ORDER BY created_at
		LIMIT $3`, tenantID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *SessionStore) ReapExpired(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sessions
		WHERE status IN ($1, $2, $3) AND last_activity_at < $4`,
		string(session.StatusCompleted), string(session.StatusCancelled), string(session.StatusAbandoned), olderThan)
	if err != nil {
		return 0, fmt.Errorf("reap expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *SessionStore) SoftDelete(ctx context.Context, id string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET deleted_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("soft-delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *SessionStore) Restore(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET deleted_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

const sessionSelectColumns = `SELECT id, tenant_id, user_id, topic_id, status, turn, max_turns,
	message_count, history, created_at, last_activity_at, in_flight_job_id, version, deleted_at`

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess    session.Session
		status  string
		history []byte
	)
	if err := row.Scan(
		&sess.ID, &sess.TenantID, &sess.UserID, &sess.TopicID, &status, &sess.Turn, &sess.MaxTurns,
		&sess.MessageCount, &history, &sess.CreatedAt, &sess.LastActivityAt, &sess.InFlightJobID,
		&sess.Version, &sess.DeletedAt,
	); err != nil {
		return nil, err
	}
	sess.Status = session.Status(status)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &sess.History); err != nil {
			return nil, fmt.Errorf("unmarshal session history: %w", err)
		}
	}
	return &sess, nil
}

func scanSessions(rows pgx.Rows) ([]*session.Session, error) {
	out := make([]*session.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
