package topicconfig

import (
	"context"
	"fmt"
	"time"

	"github.com/tarsy-coach/coachcore/pkg/cache"
)

// Store is the tier-specific and tier-null active-configuration lookup,
// backed by a KVStore secondary index on (interaction_code, tier,
// is_active), per spec.md §6.4.
type Store interface {
	GetActive(ctx context.Context, interactionCode, tier string) (*Configuration, error)
}

const cacheTTL = 15 * time.Minute

// Resolver yields the effective Configuration for (interaction_code,
// tier), grounded on pkg/agent/config_resolver.go's
// defaults-then-override hierarchy walk in the teacher repo, re-targeted
// from agent-config resolution to tiered Configuration resolution.
type Resolver struct {
	store     Store
	validator ReferenceValidator
	cache     *cache.TTLCache[*Configuration]
}

// NewResolver constructs a Resolver backed by store, validating references
// with validator (may be nil to skip validation, e.g. in unit tests).
func NewResolver(store Store, validator ReferenceValidator) *Resolver {
	return &Resolver{
		store:     store,
		validator: validator,
		cache:     cache.New[*Configuration](cacheTTL),
	}
}

func cacheKey(interactionCode, tier string) string {
	if tier == "" {
		tier = "*"
	}
	return "cfg:" + interactionCode + ":" + tier
}

// Resolve runs the four-step algorithm of spec.md §4.5: cache lookup,
// tier-specific KVStore lookup, tier-null fallback, or
// ConfigurationNotFoundError.
func (r *Resolver) Resolve(ctx context.Context, interactionCode, tier string) (*Configuration, error) {
	key := cacheKey(interactionCode, tier)
	if c, ok := r.cache.Get(key); ok {
		return c, nil
	}

	if tier != "" {
		c, err := r.store.GetActive(ctx, interactionCode, tier)
		if err == nil {
			if err := r.validate(c); err != nil {
				return nil, err
			}
			r.cache.Set(key, c)
			return c, nil
		}
		if err != ErrNotFound {
			return nil, fmt.Errorf("resolve tier configuration: %w", err)
		}
	}

	defaultKey := cacheKey(interactionCode, "")
	if c, ok := r.cache.Get(defaultKey); ok {
		return c, nil
	}

	c, err := r.store.GetActive(ctx, interactionCode, "")
	if err != nil {
		if err == ErrNotFound {
			return nil, &ConfigurationNotFoundError{InteractionCode: interactionCode, Tier: tier}
		}
		return nil, fmt.Errorf("resolve default configuration: %w", err)
	}
	if err := r.validate(c); err != nil {
		return nil, err
	}
	r.cache.Set(defaultKey, c)
	if tier != "" {
		r.cache.Set(key, c)
	}
	return c, nil
}

func (r *Resolver) validate(c *Configuration) error {
	if r.validator == nil {
		return nil
	}
	return r.validator.ValidateReferences(c)
}

// Invalidate evicts the cache entry for (interaction_code, tier), used by
// the admin subsystem's write path (spec.md §4.5 "Cache invalidation").
func (r *Resolver) Invalidate(interactionCode, tier string) {
	r.cache.Delete(cacheKey(interactionCode, tier))
}
