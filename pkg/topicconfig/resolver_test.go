package topicconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records map[string]*Configuration // key: interactionCode + ":" + tier
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*Configuration)}
}

func (f *fakeStore) put(c *Configuration) {
	f.records[c.InteractionCode+":"+c.Tier] = c
}

func (f *fakeStore) GetActive(_ context.Context, interactionCode, tier string) (*Configuration, error) {
	c, ok := f.records[interactionCode+":"+tier]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

type alwaysValid struct{}

func (alwaysValid) ValidateReferences(*Configuration) error { return nil }

func TestResolve_TierSpecificHit(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.put(&Configuration{ID: "cfg1", InteractionCode: "T", Tier: "enterprise", ModelCode: "gpt", IsActive: true})
	r := NewResolver(s, alwaysValid{})

	c, err := r.Resolve(ctx, "T", "enterprise")
	require.NoError(t, err)
	require.Equal(t, "cfg1", c.ID)
}

func TestResolve_FallsBackToTierNullDefault(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.put(&Configuration{ID: "cfg-default", InteractionCode: "T", Tier: "", ModelCode: "gpt", IsActive: true})
	r := NewResolver(s, alwaysValid{})

	c, err := r.Resolve(ctx, "T", "enterprise")
	require.NoError(t, err)
	require.Equal(t, "cfg-default", c.ID)

	// Both the tier-specific miss path and the default should now be cached.
	_, ok := r.cache.Get(cacheKey("T", "enterprise"))
	require.True(t, ok)
	_, ok = r.cache.Get(cacheKey("T", ""))
	require.True(t, ok)
}

func TestResolve_NeitherExistsYieldsConfigurationNotFoundError(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	r := NewResolver(s, alwaysValid{})

	_, err := r.Resolve(ctx, "T", "enterprise")
	require.Error(t, err)
	var notFound *ConfigurationNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestResolve_CacheHitShortCircuitsStore(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.put(&Configuration{ID: "cfg1", InteractionCode: "T", Tier: "enterprise", ModelCode: "gpt", IsActive: true})
	r := NewResolver(s, alwaysValid{})

	_, err := r.Resolve(ctx, "T", "enterprise")
	require.NoError(t, err)

	delete(s.records, "T:enterprise")

	c, err := r.Resolve(ctx, "T", "enterprise")
	require.NoError(t, err)
	require.Equal(t, "cfg1", c.ID)
}

type rejectAll struct{}

func (rejectAll) ValidateReferences(*Configuration) error {
	return ErrNotFound
}

func TestResolve_InvalidReferencesPropagateError(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.put(&Configuration{ID: "cfg1", InteractionCode: "T", Tier: "enterprise", ModelCode: "gpt", IsActive: true})
	r := NewResolver(s, rejectAll{})

	_, err := r.Resolve(ctx, "T", "enterprise")
	require.Error(t, err)
}
