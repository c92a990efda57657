package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-coach/coachcore/pkg/job"
	"github.com/tarsy-coach/coachcore/pkg/provider"
	"github.com/tarsy-coach/coachcore/pkg/provider/stub"
	"github.com/tarsy-coach/coachcore/pkg/session"
	"github.com/tarsy-coach/coachcore/pkg/store/memstore"
	"github.com/tarsy-coach/coachcore/pkg/topic"
)

func testWorkerConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Second
	cfg.PollIntervalJitter = 500 * time.Millisecond
	return cfg
}

type noopJobRegistry struct{}

func (noopJobRegistry) RegisterJob(string, context.CancelFunc) {}
func (noopJobRegistry) UnregisterJob(string)                   {}

func TestWorkerPollInterval(t *testing.T) {
	cfg := testWorkerConfig()
	w := NewWorker("test-worker", "test-pod", cfg, nil, nil, nil, nil, nil, noopJobRegistry{})

	for i := 0; i < 100; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestWorkerPollIntervalNoJitter(t *testing.T) {
	cfg := testWorkerConfig()
	cfg.PollIntervalJitter = 0
	w := NewWorker("test-worker", "test-pod", cfg, nil, nil, nil, nil, nil, noopJobRegistry{})

	for i := 0; i < 10; i++ {
		assert.Equal(t, time.Second, w.pollInterval())
	}
}

func TestWorkerHealth(t *testing.T) {
	cfg := testWorkerConfig()
	w := NewWorker("worker-1", "pod-1", cfg, nil, nil, nil, nil, nil, noopJobRegistry{})

	h := w.Health()
	assert.Equal(t, "worker-1", h.ID)
	assert.Equal(t, string(WorkerStatusIdle), h.Status)
	assert.Equal(t, "", h.CurrentJobID)
	assert.Equal(t, 0, h.JobsProcessed)

	w.setStatus(WorkerStatusWorking, "job-abc")
	h = w.Health()
	assert.Equal(t, string(WorkerStatusWorking), h.Status)
	assert.Equal(t, "job-abc", h.CurrentJobID)

	w.setStatus(WorkerStatusIdle, "")
	h = w.Health()
	assert.Equal(t, string(WorkerStatusIdle), h.Status)
}

func TestWorkerStopIdempotent(t *testing.T) {
	cfg := testWorkerConfig()
	w := NewWorker("worker-1", "pod-1", cfg, nil, nil, nil, nil, nil, noopJobRegistry{})

	assert.NotPanics(t, func() { w.Stop() })
	assert.NotPanics(t, func() { w.Stop() })
}

func setupWorkerHarness(t *testing.T) (*Worker, job.Registry, session.Registry) {
	t.Helper()
	jobs := job.NewMemRegistry()
	sessions := session.NewMemRegistry()
	store := memstore.New()

	topicBytes := []byte(`{"topic_id":"coach.intro","kind":"coaching_message","model_code":"stub","temperature":0.5,"max_tokens":256,"top_p":1,"is_active":true}`)
	require.NoError(t, store.Put(context.Background(), "topic:coach.intro", topicBytes))

	reg := provider.NewRegistry()
	reg.Register("stub", stub.New("stub reply"))

	engine := topic.NewEngine(store, store, reg)
	w := NewWorker("worker-1", "pod-1", testWorkerConfig(), jobs, sessions, engine, nil, nil, noopJobRegistry{})
	return w, jobs, sessions
}

func TestWorker_ProcessSingleShotAnalysis_CompletesJob(t *testing.T) {
	w, jobs, _ := setupWorkerHarness(t)
	ctx := context.Background()
	now := time.Now()

	j := job.New("job-1", job.KindSingleShotAnalysis, "tenant-1", "user-1", "coach.intro", "", map[string]any{"message": "hi"}, now)
	require.NoError(t, jobs.Create(ctx, j))
	claimed, err := jobs.ClaimNextPending(ctx, now)
	require.NoError(t, err)

	w.process(ctx, claimed)

	updated, err := jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, updated.Status)
	require.NotNil(t, updated.OutputMessage)
	assert.Equal(t, "stub reply", *updated.OutputMessage)
	require.NotNil(t, updated.IsFinal)
	assert.True(t, *updated.IsFinal)
}

func TestWorker_ProcessCoachingMessage_AppendsSessionTurnAndClearsInFlight(t *testing.T) {
	w, jobs, sessions := setupWorkerHarness(t)
	ctx := context.Background()
	now := time.Now()

	sess := session.New("sess-1", "tenant-1", "user-1", "coach.intro", 3, now)
	require.NoError(t, sessions.Create(ctx, sess))
	sess, err := session.ClaimInFlight(ctx, sessions, sess, "job-1")
	require.NoError(t, err)

	j := job.New("job-1", job.KindCoachingMessage, "tenant-1", "user-1", "coach.intro", "sess-1", map[string]any{"message": "hi"}, now)
	require.NoError(t, jobs.Create(ctx, j))
	claimed, err := jobs.ClaimNextPending(ctx, now)
	require.NoError(t, err)

	w.process(ctx, claimed)

	updatedJob, err := jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, updatedJob.Status)

	updatedSess, err := sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, updatedSess.Turn)
	assert.Nil(t, updatedSess.InFlightJobID)
	assert.Len(t, updatedSess.History, 1)
}

func TestWorker_ProcessCoachingMessage_SessionNotActiveFailsJob(t *testing.T) {
	w, jobs, sessions := setupWorkerHarness(t)
	ctx := context.Background()
	now := time.Now()

	sess := session.New("sess-1", "tenant-1", "user-1", "coach.intro", 3, now)
	require.NoError(t, sessions.Create(ctx, sess))
	_, err := session.Pause(ctx, sessions, sess, now)
	require.NoError(t, err)

	j := job.New("job-1", job.KindCoachingMessage, "tenant-1", "user-1", "coach.intro", "sess-1", map[string]any{"message": "hi"}, now)
	require.NoError(t, jobs.Create(ctx, j))
	claimed, err := jobs.ClaimNextPending(ctx, now)
	require.NoError(t, err)

	w.process(ctx, claimed)

	updatedJob, err := jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, updatedJob.Status)
	require.NotNil(t, updatedJob.ErrorCode)
	assert.Equal(t, job.ErrCodeSessionNotActive, *updatedJob.ErrorCode)
}

func TestWorker_ProcessUnknownTopic_FailsWithInternalError(t *testing.T) {
	w, jobs, _ := setupWorkerHarness(t)
	ctx := context.Background()
	now := time.Now()

	j := job.New("job-1", job.KindSingleShotAnalysis, "tenant-1", "user-1", "no.such.topic", "", map[string]any{"message": "hi"}, now)
	require.NoError(t, jobs.Create(ctx, j))
	claimed, err := jobs.ClaimNextPending(ctx, now)
	require.NoError(t, err)

	w.process(ctx, claimed)

	updated, err := jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, updated.Status)
	require.NotNil(t, updated.ErrorCode)
	assert.Equal(t, job.ErrCodeInternal, *updated.ErrorCode)
}

func TestPollAndProcess_NoJobsAvailableReturnsSentinel(t *testing.T) {
	w, _, _ := setupWorkerHarness(t)
	err := w.pollAndProcess(context.Background())
	assert.ErrorIs(t, err, ErrNoJobsAvailable)
}
