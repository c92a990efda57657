// Package job implements the Job Registry: durable records for
// asynchronous message/analysis jobs driven to terminal state by a worker.
package job

import (
	"errors"
	"time"
)

// Kind distinguishes the two job shapes the core drives to terminal state.
type Kind string

const (
	KindCoachingMessage  Kind = "coaching_message"
	KindSingleShotAnalysis Kind = "single_shot_analysis"
)

// Status is the job lifecycle state. Transitions are monotonic along
// pending -> processing -> {completed, failed}; after a terminal status,
// fields are frozen.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether s is a terminal status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrorCode is the closed error taxonomy carried across the HTTP and
// event-bus boundaries; the core never lets a stack trace cross either.
type ErrorCode string

const (
	ErrCodeValidation       ErrorCode = "JOB_VALIDATION_ERROR"
	ErrCodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionNotActive ErrorCode = "SESSION_NOT_ACTIVE"
	ErrCodeAccessDenied     ErrorCode = "SESSION_ACCESS_DENIED"
	ErrCodeMaxTurnsReached  ErrorCode = "MAX_TURNS_REACHED"
	ErrCodeIdleTimeout      ErrorCode = "SESSION_IDLE_TIMEOUT"
	ErrCodeSessionBusy      ErrorCode = "SESSION_BUSY"
	ErrCodeLLMTimeout       ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMError         ErrorCode = "LLM_ERROR"
	ErrCodeParamValidation  ErrorCode = "PARAMETER_VALIDATION"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeJobNotFound      ErrorCode = "JOB_NOT_FOUND"
)

// Result carries the structured extraction outcome of a final assistant
// message. Extraction failures never demote a job to failed: they surface
// as ParseError/ValidationError alongside RawResponse.
type Result struct {
	Data           map[string]any `json:"data,omitempty"`
	RawResponse    string         `json:"raw_response,omitempty"`
	ParseError     string         `json:"parse_error,omitempty"`
	ValidationError string        `json:"validation_error,omitempty"`
}

// Job is a unit of asynchronous work produced by the Intake API and driven
// to terminal state by a Worker.
type Job struct {
	ID        string `json:"job_id"`
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	Kind      Kind   `json:"kind"`
	TopicID   string `json:"topic_id"`
	SessionID string `json:"session_id,omitempty"`

	Input map[string]any `json:"input"`

	Status Status `json:"status"`

	OutputMessage *string    `json:"output_message,omitempty"`
	IsFinal       *bool      `json:"is_final,omitempty"`
	Result        *Result    `json:"result,omitempty"`
	Error         *string    `json:"error,omitempty"`
	ErrorCode     *ErrorCode `json:"error_code,omitempty"`

	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	ProcessingTimeMS *int64     `json:"processing_time_ms,omitempty"`

	TTLAt time.Time `json:"ttl_at"`

	DeletedAt *time.Time `json:"-"`
}

// TTL is the fixed lifetime of a Job record, per spec.md §3.1.
const TTL = 24 * time.Hour

// New constructs a pending Job stamped with created_at/ttl_at = created_at+TTL.
func New(id string, kind Kind, tenantID, userID, topicID, sessionID string, input map[string]any, now time.Time) *Job {
	return &Job{
		ID:        id,
		TenantID:  tenantID,
		UserID:    userID,
		Kind:      kind,
		TopicID:   topicID,
		SessionID: sessionID,
		Input:     input,
		Status:    StatusPending,
		CreatedAt: now,
		TTLAt:     now.Add(TTL),
	}
}

// Expired reports whether the job's TTL has passed as of now.
func (j *Job) Expired(now time.Time) bool {
	return now.After(j.TTLAt)
}

var (
	// ErrNotFound is returned by Get/Transition when no live (non-expired,
	// non-deleted) job matches the given id.
	ErrNotFound = errors.New("job: not found")
	// ErrDuplicateID is returned by Create when job_id already exists.
	ErrDuplicateID = errors.New("job: duplicate id")
	// ErrConflict is returned by Transition when the compare-and-set on
	// from_status does not match the job's current status.
	ErrConflict = errors.New("job: conflict")
)

// ValidationError is a typed error carrying the offending field name,
// mirroring the teacher's pkg/services/errors.go shape.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Mutation is applied atomically by Transition alongside the status change.
// Registry implementations apply it to the same row/record as the CAS.
type Mutation struct {
	To               Status
	OutputMessage    *string
	IsFinal          *bool
	Result           *Result
	Error            *string
	ErrorCode        *ErrorCode
	StartedAt        *time.Time
	FinishedAt       *time.Time
	ProcessingTimeMS *int64
}
