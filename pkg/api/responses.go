package api

import (
	"time"

	"github.com/tarsy-coach/coachcore/pkg/job"
	"github.com/tarsy-coach/coachcore/pkg/session"
)

// SubmitMessageResponse is returned by POST /v1/sessions/:id/messages,
// per spec.md §6.1's "{job_id, session_id, status: pending, estimated_duration_ms}".
type SubmitMessageResponse struct {
	JobID               string     `json:"job_id"`
	SessionID           string     `json:"session_id"`
	Status              job.Status `json:"status"`
	EstimatedDurationMS int        `json:"estimated_duration_ms"`
}

// SubmitAnalysisResponse is returned by POST /v1/topics/:id/analysis.
type SubmitAnalysisResponse struct {
	JobID               string     `json:"job_id"`
	Status              job.Status `json:"status"`
	EstimatedDurationMS int        `json:"estimated_duration_ms"`
}

// SessionResponse is the HTTP projection of a session.Session.
type SessionResponse struct {
	SessionID      string                 `json:"session_id"`
	TenantID       string                 `json:"tenant_id"`
	UserID         string                 `json:"user_id"`
	TopicID        string                 `json:"topic_id"`
	Status         session.Status         `json:"status"`
	Turn           int                    `json:"turn"`
	MaxTurns       int                    `json:"max_turns"`
	MessageCount   int                    `json:"message_count"`
	History        []session.HistoryEntry `json:"history"`
	CreatedAt      time.Time              `json:"created_at"`
	LastActivityAt time.Time              `json:"last_activity_at"`
	InFlightJobID  *string                `json:"in_flight_job_id,omitempty"`
}

func newSessionResponse(s *session.Session) *SessionResponse {
	return &SessionResponse{
		SessionID: s.ID, TenantID: s.TenantID, UserID: s.UserID, TopicID: s.TopicID,
		Status: s.Status, Turn: s.Turn, MaxTurns: s.MaxTurns, MessageCount: s.MessageCount,
		History: s.History, CreatedAt: s.CreatedAt, LastActivityAt: s.LastActivityAt,
		InFlightJobID: s.InFlightJobID,
	}
}

// CancelResponse is returned by POST /v1/sessions/:id/cancel.
type CancelResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck represents the status of a single health check component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
