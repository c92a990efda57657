package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tarsy-coach/coachcore/pkg/delivery"
)

// EventStore serves the Delivery Gateway's catchup replay queries
// (satisfying pkg/delivery.CatchupQuerier) and prunes the events table past
// its TTL (satisfying pkg/cleanup.EventPruner), against the same events
// table pkg/events/pgbus.Publisher persists into.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore constructs an EventStore backed by pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// GetCatchupEvents returns up to limit events on channel with id > sinceID,
// satisfying pkg/delivery.CatchupQuerier.
func (s *EventStore) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]delivery.CatchupEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, payload FROM events
		WHERE channel = $1 AND id > $2
		ORDER BY id
		LIMIT $3`, channel, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query catchup events: %w", err)
	}
	defer rows.Close()

	out := make([]delivery.CatchupEvent, 0)
	for rows.Next() {
		var (
			id      int
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan catchup event: %w", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, fmt.Errorf("unmarshal catchup event payload: %w", err)
		}
		out = append(out, delivery.CatchupEvent{ID: id, Payload: decoded})
	}
	return out, rows.Err()
}

// PruneEvents deletes every event older than olderThan, satisfying
// pkg/cleanup.EventPruner.
func (s *EventStore) PruneEvents(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
