// Package pgbus is the Postgres-backed implementation of events.Bus:
// persist-then-NOTIFY for durable envelopes, NOTIFY-only for transient
// ones, grounded verbatim on the teacher's pkg/events/publisher.go and
// pkg/events/listener.go (same pg_notify-inside-transaction pattern, same
// single-LISTEN-connection receive loop with generation-guarded
// UNLISTEN).
package pgbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher publishes events.Bus envelopes against a Postgres pool.
type Publisher struct {
	pool *pgxpool.Pool
}

// NewPublisher constructs a Publisher backed by pool.
func NewPublisher(pool *pgxpool.Pool) *Publisher {
	return &Publisher{pool: pool}
}

// Publish persists payload to the events table and broadcasts it via
// pg_notify in a single transaction — pg_notify is transactional and
// only fires on COMMIT, so readers never observe a NOTIFY for an event
// that failed to persist.
func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin publish transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var eventID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO events (channel, payload, created_at) VALUES ($1, $2, now()) RETURNING id`,
		channel, payload,
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("persist event: %w", err)
	}

	notifyPayload, err := injectDBEventIDAndTruncate(payload, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit publish transaction: %w", err)
	}
	return nil
}

// Notify broadcasts payload on channel without persisting it.
func (p *Publisher) Notify(ctx context.Context, channel string, payload []byte) error {
	notifyPayload, err := truncateIfNeeded(string(payload))
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// injectDBEventIDAndTruncate adds db_event_id to the JSON payload for
// NOTIFY delivery (catchup correlation) and truncates if it exceeds
// Postgres's NOTIFY payload limit.
func injectDBEventIDAndTruncate(payload []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return "", fmt.Errorf("unmarshal payload for db_event_id injection: %w", err)
	}
	m["dbEventId"] = dbEventID

	enriched, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal enriched NOTIFY payload: %w", err)
	}
	return truncateIfNeeded(string(enriched))
}

// truncateIfNeeded returns payload as-is if it fits Postgres's 8000-byte
// NOTIFY limit, otherwise a minimal envelope carrying only routing
// fields, relying on the db_event_id for catchup replay of the full row.
func truncateIfNeeded(payload string) (string, error) {
	if len(payload) <= 7900 {
		return payload, nil
	}
	return buildTruncatedPayload([]byte(payload))
}

func buildTruncatedPayload(payload []byte) (string, error) {
	var routing struct {
		Type      string `json:"type"`
		JobID     string `json:"jobId"`
		SessionID string `json:"sessionId"`
		DBEventID *int64 `json:"dbEventId,omitempty"`
	}
	if err := json.Unmarshal(payload, &routing); err != nil {
		return "", fmt.Errorf("extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":      routing.Type,
		"jobId":     routing.JobID,
		"sessionId": routing.SessionID,
		"truncated": true,
	}
	if routing.DBEventID != nil {
		truncated["dbEventId"] = *routing.DBEventID
	}

	b, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("marshal truncated payload: %w", err)
	}
	return string(b), nil
}
