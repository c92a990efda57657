package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tarsy-coach/coachcore/pkg/events"
	"github.com/tarsy-coach/coachcore/pkg/job"
	"github.com/tarsy-coach/coachcore/pkg/provider"
	"github.com/tarsy-coach/coachcore/pkg/session"
	"github.com/tarsy-coach/coachcore/pkg/topic"
	"github.com/tarsy-coach/coachcore/pkg/topicconfig"
)

// WorkerStatus is a worker's current activity state.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Config bounds the worker pool's polling and provider-deadline behavior.
type Config struct {
	WorkerCount        int
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	ProviderTimeout    time.Duration // default provider budget, spec.md §4.3 step 5 ("≤ 5 min")
	WatchdogInterval   time.Duration
	WatchdogThreshold  time.Duration
}

// DefaultConfig mirrors the teacher's queue defaults, retargeted to the
// provider-deadline and watchdog thresholds of spec.md §4.1/§4.3.
func DefaultConfig() Config {
	return Config{
		WorkerCount:        4,
		PollInterval:       500 * time.Millisecond,
		PollIntervalJitter: 200 * time.Millisecond,
		ProviderTimeout:    5 * time.Minute,
		WatchdogInterval:   time.Minute,
		WatchdogThreshold:  10 * time.Minute,
	}
}

// JobRegistry is the subset of JobIDRegistry used for cancellation
// bookkeeping, grounded on the teacher's SessionRegistry interface
// (pkg/queue/worker.go).
type JobRegistry interface {
	RegisterJob(jobID string, cancel context.CancelFunc)
	UnregisterJob(jobID string)
}

// Worker polls the Job Registry, drives claimed jobs through the Topic
// Execution Engine, and publishes terminal events — the seven-step
// algorithm of spec.md §4.3. Grounded on the teacher's Worker
// (pkg/queue/worker.go), re-targeted from the agent-chain SessionExecutor
// to direct job/session/topic/provider orchestration.
type Worker struct {
	id     string
	podID  string
	cfg    Config
	jobs   job.Registry
	sess   session.Registry
	engine *topic.Engine
	cfgs   *topicconfig.Resolver // may be nil: skip tier override resolution
	bus    events.Bus
	pool   JobRegistry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker constructs a Worker. cfgs may be nil to skip Configuration
// Resolver overrides and use each Topic's own model/sampling parameters.
func NewWorker(id, podID string, cfg Config, jobs job.Registry, sess session.Registry, engine *topic.Engine, cfgs *topicconfig.Resolver, bus events.Bus, pool JobRegistry) *Worker {
	return &Worker{
		id: id, podID: podID, cfg: cfg,
		jobs: jobs, sess: sess, engine: engine, cfgs: cfgs, bus: bus, pool: pool,
		stopCh: make(chan struct{}), status: WorkerStatusIdle, lastActivity: time.Now(),
	}
}

// Start begins the worker's poll loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. Safe to
// call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports the worker's current health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID: w.id, Status: string(w.status), CurrentJobID: w.currentJobID,
		JobsProcessed: w.jobsProcessed, LastActivity: w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims the next pending job, if any, and drives it to a
// terminal state per spec.md §4.3's seven-step algorithm.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	now := time.Now()
	j, err := w.jobs.ClaimNextPending(ctx, now)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return ErrNoJobsAvailable
		}
		return fmt.Errorf("claim next pending job: %w", err)
	}

	log := slog.With("job_id", j.ID, "worker_id", w.id)
	log.Info("job claimed")

	w.setStatus(WorkerStatusWorking, j.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.ProviderTimeout)
	defer cancel()

	w.pool.RegisterJob(j.ID, cancel)
	defer w.pool.UnregisterJob(j.ID)

	w.process(jobCtx, j)

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
	return nil
}

// process implements steps 2-7 of spec.md §4.3 against an already-claimed
// (processing) job.
func (w *Worker) process(ctx context.Context, j *job.Job) {
	var sess *session.Session
	if j.Kind == job.KindCoachingMessage {
		var err error
		sess, err = w.sess.Get(ctx, j.SessionID)
		if err != nil {
			w.fail(ctx, j, nil, job.ErrCodeSessionNotFound, err.Error())
			return
		}
		if code, msg, ok := w.revalidateGates(ctx, sess); !ok {
			w.fail(ctx, j, sess, code, msg)
			return
		}
	}

	t, err := w.engine.ResolveTopic(ctx, j.TopicID)
	if err != nil {
		w.fail(ctx, j, sess, job.ErrCodeInternal, err.Error())
		return
	}

	modelOverride := w.resolveModelOverride(ctx, t)

	history := historyToMessages(sess)
	userMessage, _ := j.Input["message"].(string)

	out, err := w.engine.Generate(ctx, topic.GenerateInput{
		Topic:             t,
		History:           history,
		UserParams:        j.Input,
		SystemParams:      j.Input,
		UserMessage:       userMessage,
		ModelCodeOverride: modelOverride,
		Deadline:          deadlineOf(ctx),
	})
	if err != nil {
		code, msg := classifyGenerateErr(err)
		w.fail(ctx, j, sess, code, msg)
		return
	}

	isFinal := w.isFinalTurn(j, sess)

	var result *job.Result
	if isFinal {
		extraction, err := w.engine.Extract(ctx, t, out, deadlineOf(ctx))
		if err != nil {
			w.fail(ctx, j, sess, job.ErrCodeInternal, err.Error())
			return
		}
		if extraction != nil {
			result = &job.Result{
				Data: extraction.Data, RawResponse: extraction.RawResponse,
				ParseError: extraction.ParseError, ValidationError: extraction.ValidationError,
			}
		}
	}

	w.complete(ctx, j, sess, out, isFinal, result)
}

// revalidateGates re-checks the session state gates of spec.md §4.2 at
// dispatch time, since time may have passed since acceptance.
func (w *Worker) revalidateGates(ctx context.Context, sess *session.Session) (job.ErrorCode, string, bool) {
	if sess.Status != session.StatusActive {
		return job.ErrCodeSessionNotActive, "session is not active", false
	}
	now := time.Now()
	if sess.Idle(now) {
		_, _ = session.MarkIdle(ctx, w.sess, sess, now)
		return job.ErrCodeIdleTimeout, "session idle timeout", false
	}
	if sess.AtCapacity() {
		return job.ErrCodeMaxTurnsReached, "max turns reached", false
	}
	return "", "", true
}

// resolveModelOverride consults the Configuration Resolver, if wired, for
// a tier override of the topic's model_code (spec.md §4.3 step 3). A
// ConfigurationNotFoundError is not an error here: the topic's own
// model_code is the steady-state default.
func (w *Worker) resolveModelOverride(ctx context.Context, t *topic.Topic) string {
	if w.cfgs == nil {
		return ""
	}
	cfg, err := w.cfgs.Resolve(ctx, t.ID, "")
	if err != nil {
		var notFound *topicconfig.ConfigurationNotFoundError
		if errors.As(err, &notFound) {
			return ""
		}
		slog.Warn("configuration resolve failed, using topic default", "topic_id", t.ID, "error", err)
		return ""
	}
	return cfg.ModelCode
}

// isFinalTurn is the topic-defined terminator of spec.md §4.3 step 6: a
// single_shot_analysis job always completes in one turn; a
// coaching_message job is final once the session's post-increment turn
// reaches max_turns.
func (w *Worker) isFinalTurn(j *job.Job, sess *session.Session) bool {
	if j.Kind == job.KindSingleShotAnalysis {
		return true
	}
	if sess == nil {
		return true
	}
	return sess.MaxTurns != 0 && sess.Turn+1 >= sess.MaxTurns
}

// complete applies step 6 of spec.md §4.3: append to session history, CAS
// the job to completed, and publish message.completed.
func (w *Worker) complete(ctx context.Context, j *job.Job, sess *session.Session, out string, isFinal bool, result *job.Result) {
	now := time.Now()
	var turn, maxTurns, messageCount int

	if sess != nil {
		updated, err := session.AppendAssistantTurn(ctx, w.sess, sess, out, isFinal, now)
		if err != nil {
			slog.Error("append assistant turn failed", "session_id", sess.ID, "error", err)
		} else {
			turn, maxTurns, messageCount = updated.Turn, updated.MaxTurns, updated.MessageCount
		}
	}

	startedAt := j.StartedAt
	var processingMS int64
	if startedAt != nil {
		processingMS = now.Sub(*startedAt).Milliseconds()
	}

	updated, err := w.jobs.Transition(ctx, j.ID, job.StatusProcessing, job.Mutation{
		To: job.StatusCompleted, OutputMessage: &out, IsFinal: &isFinal,
		Result: result, FinishedAt: &now, ProcessingTimeMS: &processingMS,
	})
	if err != nil {
		slog.Error("job completion CAS failed", "job_id", j.ID, "error", err)
		return
	}

	payload := events.MessageCompletedPayload{
		Type: events.EventMessageCompleted, JobID: updated.ID, TopicID: j.TopicID,
		Message: out, IsFinal: isFinal, Turn: turn, MaxTurns: maxTurns, MessageCount: messageCount,
	}
	if result != nil {
		payload.Result = &events.MessageResult{
			Data: result.Data, RawResponse: result.RawResponse,
			ParseError: result.ParseError, ValidationError: result.ValidationError,
		}
	}
	if j.SessionID != "" {
		payload.SessionID = j.SessionID
	}
	w.publish(ctx, events.SessionChannel(j.SessionID), events.EventMessageCompleted, payload)
}

// fail applies step 7 of spec.md §4.3: CAS the job to failed, publish
// message.failed, and clear the session's in_flight_job_id if present.
func (w *Worker) fail(ctx context.Context, j *job.Job, sess *session.Session, code job.ErrorCode, msg string) {
	now := time.Now()
	_, err := w.jobs.Transition(ctx, j.ID, job.StatusProcessing, job.Mutation{
		To: job.StatusFailed, Error: &msg, ErrorCode: &code, FinishedAt: &now,
	})
	if err != nil {
		slog.Error("job failure CAS failed", "job_id", j.ID, "error", err)
	}

	if sess != nil {
		if _, err := session.ClearInFlight(ctx, w.sess, sess, now); err != nil {
			slog.Error("clear in-flight job failed", "session_id", sess.ID, "error", err)
		}
	}

	w.publish(ctx, events.SessionChannel(j.SessionID), events.EventMessageFailed, events.MessageFailedPayload{
		Type: events.EventMessageFailed, JobID: j.ID, SessionID: j.SessionID, TopicID: j.TopicID,
		Error: msg, ErrorCode: string(code),
	})
}

func (w *Worker) publish(ctx context.Context, channel, eventType string, payload any) {
	if w.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event payload failed", "type", eventType, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, channel, data); err != nil {
		slog.Warn("publish event failed", "type", eventType, "channel", channel, "error", err)
	}
}

func (w *Worker) pollInterval() time.Duration {
	base, jitter := w.cfg.PollInterval, w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}

// historyToMessages converts a session's history into provider.Message
// history, or nil when sess is nil (single_shot_analysis has no session).
func historyToMessages(sess *session.Session) []provider.Message {
	if sess == nil {
		return nil
	}
	out := make([]provider.Message, 0, len(sess.History))
	for _, h := range sess.History {
		role := provider.RoleUser
		if h.Role == session.RoleAssistant {
			role = provider.RoleAssistant
		}
		out = append(out, provider.Message{Role: role, Content: h.Content})
	}
	return out
}

func deadlineOf(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(5 * time.Minute)
}

// classifyGenerateErr maps a topic.Engine.Generate error to the closed
// error taxonomy of spec.md §7.
func classifyGenerateErr(err error) (job.ErrorCode, string) {
	var renderErr *topic.TemplateRenderingError
	switch {
	case errors.As(err, &renderErr):
		return job.ErrCodeParamValidation, err.Error()
	case errors.Is(err, provider.ErrTimeout):
		return job.ErrCodeLLMTimeout, err.Error()
	case errors.Is(err, provider.ErrProvider):
		return job.ErrCodeLLMError, err.Error()
	default:
		return job.ErrCodeInternal, err.Error()
	}
}
