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

	"github.com/tarsy-coach/coachcore/pkg/job"
)

// JobStore is the Postgres-backed job.Registry, grounded on
// pkg/queue/worker.go's claimNextSession FOR UPDATE SKIP LOCKED pattern and
// pkg/services/session_service.go's CAS UPDATE ... WHERE status = $2 idiom.
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore constructs a JobStore backed by pool.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

const uniqueViolation = "23505"

func (s *JobStore) Create(ctx context.Context, j *job.Job) error {
	input, err := json.Marshal(j.Input)
	if err != nil {
		return fmt.Errorf("marshal job input: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, tenant_id, user_id, kind, topic_id, session_id, input, status, created_at, ttl_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		j.ID, j.TenantID, j.UserID, string(j.Kind), j.TopicID, j.SessionID, input, string(j.Status), j.CreatedAt, j.TTLAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return job.ErrDuplicateID
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, jobSelectColumns+` FROM jobs
		WHERE id = $1 AND deleted_at IS NULL AND ttl_at > now()`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *JobStore) Transition(ctx context.Context, id string, fromStatus job.Status, m job.Mutation) (*job.Job, error) {
	var resultJSON []byte
	if m.Result != nil {
		b, err := json.Marshal(m.Result)
		if err != nil {
			return nil, fmt.Errorf("marshal job result: %w", err)
		}
		resultJSON = b
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET
			status = $3,
			output_message = COALESCE($4, output_message),
			is_final = COALESCE($5, is_final),
			result = COALESCE($6, result),
			error = COALESCE($7, error),
			error_code = COALESCE($8, error_code),
			started_at = COALESCE($9, started_at),
			finished_at = COALESCE($10, finished_at),
			processing_time_ms = COALESCE($11, processing_time_ms)
		WHERE id = $1 AND status = $2 AND deleted_at IS NULL AND ttl_at > now()
		RETURNING id, tenant_id, user_id, kind, topic_id, session_id, input, status,
			output_message, is_final, result, error, error_code,
			created_at, started_at, finished_at, processing_time_ms, ttl_at, deleted_at`,
		id, string(fromStatus), string(m.To), m.OutputMessage, m.IsFinal, nullableJSON(resultJSON),
		m.Error, m.ErrorCode, m.StartedAt, m.FinishedAt, m.ProcessingTimeMS)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.Get(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, job.ErrConflict
		}
		return nil, fmt.Errorf("transition job: %w", err)
	}
	return j, nil
}

func (s *JobStore) ClaimNextPending(ctx context.Context, now time.Time) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET status = $2, started_at = $3
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $1 AND deleted_at IS NULL AND ttl_at > $3
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, tenant_id, user_id, kind, topic_id, session_id, input, status,
			output_message, is_final, result, error, error_code,
			created_at, started_at, finished_at, processing_time_ms, ttl_at, deleted_at`,
		string(job.StatusPending), string(job.StatusProcessing), now)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("claim next pending job: %w", err)
	}
	return j, nil
}

func (s *JobStore) ReapExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE ttl_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("reap expired jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *JobStore) ListStuckProcessing(ctx context.Context, olderThan time.Time) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, jobSelectColumns+` FROM jobs
		WHERE status = $1 AND deleted_at IS NULL AND started_at < $2
		ORDER BY started_at`, string(job.StatusProcessing), olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stuck processing jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *JobStore) Search(ctx context.Context, query string, limit int) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, jobSelectColumns+` FROM jobs
		WHERE deleted_at IS NULL
			AND to_tsvector('english', coalesce(output_message, '') || ' ' || coalesce(error, ''))
				@@ plainto_tsquery('english', $1)
		ORDER BY created_at DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *JobStore) SoftDelete(ctx context.Context, id string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET deleted_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("soft-delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrNotFound
	}
	return nil
}

func (s *JobStore) Restore(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET deleted_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("restore job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrNotFound
	}
	return nil
}

const jobSelectColumns = `SELECT id, tenant_id, user_id, kind, topic_id, session_id, input, status,
	output_message, is_final, result, error, error_code,
	created_at, started_at, finished_at, processing_time_ms, ttl_at, deleted_at`

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j         job.Job
		kind      string
		status    string
		errorCode *string
		input     []byte
		result    []byte
	)
	if err := row.Scan(
		&j.ID, &j.TenantID, &j.UserID, &kind, &j.TopicID, &j.SessionID, &input, &status,
		&j.OutputMessage, &j.IsFinal, &result, &j.Error, &errorCode,
		&j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.ProcessingTimeMS, &j.TTLAt, &j.DeletedAt,
	); err != nil {
		return nil, err
	}

	j.Kind = job.Kind(kind)
	j.Status = job.Status(status)
	if errorCode != nil {
		code := job.ErrorCode(*errorCode)
		j.ErrorCode = &code
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &j.Input); err != nil {
			return nil, fmt.Errorf("unmarshal job input: %w", err)
		}
	}
	if len(result) > 0 {
		var r job.Result
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("unmarshal job result: %w", err)
		}
		j.Result = &r
	}
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*job.Job, error) {
	out := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// nullableJSON returns nil for an empty/nil byte slice so the COALESCE in
// Transition's UPDATE treats "no new result" as "keep existing", not as an
// explicit NULL overwrite — matching the *T-pointer "nil means unchanged"
// contract the rest of Mutation's fields already follow.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
