// Package intake implements the Intake API (spec.md §4.2): the
// synchronous acceptance surface in front of the Job Registry, enforcing
// the six ordered acceptance gates before a Job is ever created.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tarsy-coach/coachcore/pkg/events"
	"github.com/tarsy-coach/coachcore/pkg/job"
	"github.com/tarsy-coach/coachcore/pkg/session"
)

// estimatedDurationMS is a static per-kind estimate surfaced in the
// submit_message/submit_analysis acceptance response; spec.md §6.1 does
// not prescribe how it is computed, so a fixed heuristic per job kind is
// used (recorded as an Open Question decision in DESIGN.md).
const (
	estimatedDurationCoachingMS = 4_000
	estimatedDurationAnalysisMS = 8_000
)

// GateError is returned by SubmitMessage/SubmitAnalysis when an
// acceptance gate rejects the request; Code is one of the closed
// error-code taxonomy values of spec.md §7.
type GateError struct {
	Code    job.ErrorCode
	Message string
}

func (e *GateError) Error() string { return e.Message }

func gateErr(code job.ErrorCode, msg string) error {
	return &GateError{Code: code, Message: msg}
}

// SubmitMessageInput is the input to SubmitMessage.
type SubmitMessageInput struct {
	SessionID string
	UserID    string // caller identity, checked against the session owner
	Message   string
}

// SubmitMessageResult is the synchronous acceptance response of
// spec.md §6.1: "{job_id, session_id, status: pending, estimated_duration_ms}".
type SubmitMessageResult struct {
	JobID               string
	SessionID           string
	Status              job.Status
	EstimatedDurationMS int
}

// SubmitAnalysisInput is the input to SubmitAnalysis.
type SubmitAnalysisInput struct {
	TenantID string
	UserID   string
	TopicID  string
	Params   map[string]any
}

// SubmitAnalysisResult mirrors SubmitMessageResult without a session_id.
type SubmitAnalysisResult struct {
	JobID               string
	Status              job.Status
	EstimatedDurationMS int
}

// Service implements submit_message/poll_job/submit_analysis against a
// job.Registry and session.Registry, grounded on the teacher's
// handler_chat.go ordered-validation-then-submit shape.
type Service struct {
	jobs     job.Registry
	sessions session.Registry
	bus      events.Bus
	now      func() time.Time
	newID    func() string
}

// NewService constructs a Service. bus may be nil to disable
// message.created publication (e.g. single-process deployments relying
// solely on the worker's poll-based claim).
func NewService(jobs job.Registry, sessions session.Registry, bus events.Bus) *Service {
	return &Service{
		jobs: jobs, sessions: sessions, bus: bus,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// SubmitMessage implements spec.md §4.2's submit_message: the six ordered
// acceptance gates, then user-message append, Job creation, and
// message.created publication.
func (s *Service) SubmitMessage(ctx context.Context, in SubmitMessageInput) (*SubmitMessageResult, error) {
	now := s.now()

	// Gate 2: Existence.
	sess, err := s.sessions.Get(ctx, in.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, gateErr(job.ErrCodeSessionNotFound, "session not found")
		}
		return nil, err
	}

	// Gate 1: Ownership.
	if sess.UserID != in.UserID {
		return nil, gateErr(job.ErrCodeAccessDenied, "caller is not the session owner")
	}

	// Gate 3: State.
	if sess.Status != session.StatusActive {
		return nil, gateErr(job.ErrCodeSessionNotActive, "session is not active")
	}

	// Gate 4: Freshness.
	if sess.Idle(now) {
		if _, err := session.MarkIdle(ctx, s.sessions, sess, now); err != nil {
			return nil, err
		}
		return nil, gateErr(job.ErrCodeIdleTimeout, "session idle timeout")
	}

	// Gate 5: Capacity.
	if sess.AtCapacity() {
		return nil, gateErr(job.ErrCodeMaxTurnsReached, "max turns reached")
	}

	// Gate 6: Payload.
	if in.Message == "" {
		return nil, gateErr(job.ErrCodeValidation, "message is required")
	}

	// Single in-flight policy (spec.md §4.2): enforced server-side as a
	// CAS on in_flight_job_id.
	jobID := s.newID()
	sess, err = session.ClaimInFlight(ctx, s.sessions, sess, jobID)
	if err != nil {
		if errors.Is(err, session.ErrConflict) {
			return nil, gateErr(job.ErrCodeSessionBusy, "a job is already in flight for this session")
		}
		return nil, err
	}

	if _, err := session.AppendUserMessage(ctx, s.sessions, sess, in.Message, now); err != nil {
		return nil, err
	}

	j := job.New(jobID, job.KindCoachingMessage, sess.TenantID, sess.UserID, sess.TopicID, sess.ID,
		map[string]any{"message": in.Message}, now)
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, err
	}

	s.publishCreated(ctx, j, in.Message, "coaching_message")

	return &SubmitMessageResult{
		JobID: j.ID, SessionID: sess.ID, Status: j.Status,
		EstimatedDurationMS: estimatedDurationCoachingMS,
	}, nil
}

// SubmitAnalysis implements spec.md §4.2's submit_analysis: same
// acceptance/creation pattern as SubmitMessage but with kind =
// single_shot_analysis and no session.
func (s *Service) SubmitAnalysis(ctx context.Context, in SubmitAnalysisInput) (*SubmitAnalysisResult, error) {
	if in.TopicID == "" {
		return nil, gateErr(job.ErrCodeValidation, "topic_id is required")
	}

	now := s.now()
	jobID := s.newID()
	j := job.New(jobID, job.KindSingleShotAnalysis, in.TenantID, in.UserID, in.TopicID, "", in.Params, now)
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, err
	}

	userMessage, _ := in.Params["message"].(string)
	s.publishCreated(ctx, j, userMessage, "single_shot_analysis")

	return &SubmitAnalysisResult{
		JobID: j.ID, Status: j.Status, EstimatedDurationMS: estimatedDurationAnalysisMS,
	}, nil
}

// PollJob implements spec.md §4.2's poll_job: returns the current Job
// projection, never waits.
func (s *Service) PollJob(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return nil, gateErr(job.ErrCodeJobNotFound, "job not found")
		}
		return nil, err
	}
	return j, nil
}

func (s *Service) publishCreated(ctx context.Context, j *job.Job, userMessage, stage string) {
	if s.bus == nil {
		return
	}
	payload := events.MessageCreatedPayload{
		Type: events.EventMessageCreated, JobID: j.ID, TenantID: j.TenantID, UserID: j.UserID,
		TopicID: j.TopicID, SessionID: j.SessionID, UserMessage: userMessage, Stage: stage,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	channel := events.GlobalSessionsChannel
	if j.SessionID != "" {
		channel = events.SessionChannel(j.SessionID)
	}
	_ = s.bus.Publish(ctx, channel, data)
}
