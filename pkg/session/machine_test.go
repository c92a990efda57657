package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartNew_AbandonsExistingActive(t *testing.T) {
	ctx := context.Background()
	reg := NewMemRegistry()
	now := time.Now()

	first, err := StartNew(ctx, reg, "s1", "t1", "u1", "topicA", 3, now)
	require.NoError(t, err)
	require.Equal(t, StatusActive, first.Status)

	second, err := StartNew(ctx, reg, "s2", "t1", "u1", "topicA", 3, now)
	require.NoError(t, err)
	require.Equal(t, StatusActive, second.Status)

	reloaded, err := reg.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, reloaded.Status)
}

func TestAppendAssistantTurn_FinalCompletesSession(t *testing.T) {
	ctx := context.Background()
	reg := NewMemRegistry()
	now := time.Now()

	s, err := StartNew(ctx, reg, "s1", "t1", "u1", "topicA", 3, now)
	require.NoError(t, err)

	s, err = AppendAssistantTurn(ctx, reg, s, "final answer", true, now)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, 1, s.Turn)
	assert.Equal(t, 1, s.MessageCount)
	assert.Nil(t, s.InFlightJobID)
}

func TestCompareAndSwap_StaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	reg := NewMemRegistry()
	now := time.Now()

	s, err := StartNew(ctx, reg, "s1", "t1", "u1", "topicA", 0, now)
	require.NoError(t, err)

	_, err = Pause(ctx, reg, s, now)
	require.NoError(t, err)

	// s still holds the pre-pause version; a second CAS against it must conflict.
	_, err = Pause(ctx, reg, s, now)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestClaimInFlight_RejectsWhenBusy(t *testing.T) {
	ctx := context.Background()
	reg := NewMemRegistry()
	now := time.Now()

	s, err := StartNew(ctx, reg, "s1", "t1", "u1", "topicA", 0, now)
	require.NoError(t, err)

	s, err = ClaimInFlight(ctx, reg, s, "job-1")
	require.NoError(t, err)
	require.True(t, s.Busy())

	_, err = ClaimInFlight(ctx, reg, s, "job-2")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestIdle(t *testing.T) {
	now := time.Now()
	s := New("s1", "t1", "u1", "topicA", 0, now.Add(-31*time.Minute))
	s.LastActivityAt = now.Add(-31 * time.Minute)
	assert.True(t, s.Idle(now))

	s2 := New("s2", "t1", "u1", "topicA", 0, now.Add(-29*time.Minute))
	s2.LastActivityAt = now.Add(-29 * time.Minute)
	assert.False(t, s2.Idle(now))
}

func TestAtCapacity(t *testing.T) {
	s := New("s1", "t1", "u1", "topicA", 3, time.Now())
	s.Turn = 2
	assert.False(t, s.AtCapacity())
	s.Turn = 3
	assert.True(t, s.AtCapacity())

	unlimited := New("s2", "t1", "u1", "topicA", 0, time.Now())
	unlimited.Turn = 1000
	assert.False(t, unlimited.AtCapacity())
}
