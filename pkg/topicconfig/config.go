// Package topicconfig implements the Tiered Configuration Resolver
// (spec.md §4.5): resolves per-tenant/per-tier LLM configuration with
// fallback and cached lookups.
package topicconfig

import (
	"errors"
	"time"
)

// Configuration is a tier-specific override of a topic.
type Configuration struct {
	ID              string  `json:"config_id"`
	InteractionCode string  `json:"interaction_code"`
	// Tier is empty for the default (tier-null) record.
	Tier            string  `json:"tier,omitempty"`
	ModelCode       string  `json:"model_code"`
	TemplateID      string  `json:"template_id"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	IsActive        bool    `json:"is_active"`

	EffectiveFrom  *time.Time `json:"effective_from,omitempty"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
}

// ErrNotFound is returned by Store lookups when no record exists.
var ErrNotFound = errors.New("topicconfig: not found")

// ConfigurationNotFoundError is returned by Resolver.Resolve when neither
// a tier-specific nor a tier-null default record exists, per spec.md
// §4.5 step 4.
type ConfigurationNotFoundError struct {
	InteractionCode, Tier string
}

func (e *ConfigurationNotFoundError) Error() string {
	return "topicconfig: no active configuration for interaction=" + e.InteractionCode + " tier=" + e.Tier
}

// ReferenceValidator checks that a resolved Configuration's references
// (interaction in registry, model in registry, template exists and active)
// are valid, per spec.md §4.5 step 2's "validate references".
type ReferenceValidator interface {
	ValidateReferences(c *Configuration) error
}
