package cleanup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-coach/coachcore/pkg/config"
)

type fakeJobReaper struct {
	calls atomic.Int32
	count int
	err   error
}

func (f *fakeJobReaper) ReapExpired(context.Context, time.Time) (int, error) {
	f.calls.Add(1)
	return f.count, f.err
}

type fakeSessionReaper struct {
	calls  atomic.Int32
	cutoff time.Time
	count  int
	err    error
}

func (f *fakeSessionReaper) ReapExpired(_ context.Context, olderThan time.Time) (int, error) {
	f.calls.Add(1)
	f.cutoff = olderThan
	return f.count, f.err
}

type fakeEventPruner struct {
	calls atomic.Int32
	count int
	err   error
}

func (f *fakeEventPruner) PruneEvents(context.Context, time.Time) (int, error) {
	f.calls.Add(1)
	return f.count, f.err
}

func testRetentionConfig() *config.RetentionConfig {
	return &config.RetentionConfig{
		SessionRetentionDays: 30,
		EventTTL:             time.Hour,
		CleanupInterval:      10 * time.Millisecond,
	}
}

func TestSweepAll_CallsAllReapers(t *testing.T) {
	jobs := &fakeJobReaper{count: 2}
	sessions := &fakeSessionReaper{count: 3}
	events := &fakeEventPruner{count: 1}

	r := NewReaper(testRetentionConfig(), jobs, sessions, events)
	r.sweepAll(context.Background())

	assert.Equal(t, int32(1), jobs.calls.Load())
	assert.Equal(t, int32(1), sessions.calls.Load())
	assert.Equal(t, int32(1), events.calls.Load())
}

func TestSweepAll_NilEventPruner(t *testing.T) {
	jobs := &fakeJobReaper{}
	sessions := &fakeSessionReaper{}

	r := NewReaper(testRetentionConfig(), jobs, sessions, nil)
	assert.NotPanics(t, func() { r.sweepAll(context.Background()) })
}

func TestSweepAll_SessionCutoffMatchesRetentionDays(t *testing.T) {
	jobs := &fakeJobReaper{}
	sessions := &fakeSessionReaper{}
	cfg := testRetentionConfig()

	r := NewReaper(cfg, jobs, sessions, nil)
	before := time.Now().AddDate(0, 0, -cfg.SessionRetentionDays)
	r.sweepAll(context.Background())
	after := time.Now().AddDate(0, 0, -cfg.SessionRetentionDays)

	assert.True(t, !sessions.cutoff.Before(before) && !sessions.cutoff.After(after))
}

func TestSweepAll_ContinuesWhenOneReaperErrors(t *testing.T) {
	jobs := &fakeJobReaper{err: errors.New("db unavailable")}
	sessions := &fakeSessionReaper{count: 5}
	events := &fakeEventPruner{count: 1}

	r := NewReaper(testRetentionConfig(), jobs, sessions, events)
	r.sweepAll(context.Background())

	assert.Equal(t, int32(1), jobs.calls.Load())
	assert.Equal(t, int32(1), sessions.calls.Load())
	assert.Equal(t, int32(1), events.calls.Load())
}

func TestStartStop_RunsPeriodically(t *testing.T) {
	jobs := &fakeJobReaper{}
	sessions := &fakeSessionReaper{}
	r := NewReaper(testRetentionConfig(), jobs, sessions, nil)

	r.Start(context.Background())
	require.Eventually(t, func() bool { return jobs.calls.Load() >= 2 }, time.Second, time.Millisecond)
	r.Stop()

	calls := jobs.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, jobs.calls.Load(), "no further sweeps after Stop")
}

func TestStart_Idempotent(t *testing.T) {
	jobs := &fakeJobReaper{}
	sessions := &fakeSessionReaper{}
	r := NewReaper(testRetentionConfig(), jobs, sessions, nil)

	r.Start(context.Background())
	r.Start(context.Background()) // second call is a no-op
	r.Stop()
}
