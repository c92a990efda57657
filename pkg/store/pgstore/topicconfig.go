package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tarsy-coach/coachcore/pkg/topicconfig"
)

// ConfigStore is the Postgres-backed topicconfig.Store, serving the
// tier-specific and tier-null active-configuration lookup against
// idx_topic_configurations_active.
type ConfigStore struct {
	pool *pgxpool.Pool
}

// NewConfigStore constructs a ConfigStore backed by pool.
func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

func (s *ConfigStore) GetActive(ctx context.Context, interactionCode, tier string) (*topicconfig.Configuration, error) {
	var c topicconfig.Configuration
	err := s.pool.QueryRow(ctx, `
		SELECT id, interaction_code, tier, model_code, template_id, temperature, max_tokens,
			is_active, effective_from, effective_until
		FROM topic_configurations
		WHERE interaction_code = $1 AND tier = $2 AND is_active
		LIMIT 1`, interactionCode, tier).Scan(
		&c.ID, &c.InteractionCode, &c.Tier, &c.ModelCode, &c.TemplateID, &c.Temperature, &c.MaxTokens,
		&c.IsActive, &c.EffectiveFrom, &c.EffectiveUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, topicconfig.ErrNotFound
		}
		return nil, fmt.Errorf("get active configuration: %w", err)
	}
	return &c, nil
}
