// Package session implements the Conversation Session State Machine: a
// per-(tenant, user, topic) coaching conversation with pause/resume, idle
// timeout, turn counting, and single-in-flight-job enforcement.
package session

import (
	"errors"
	"time"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether s no longer accepts mutation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusAbandoned
}

// Role identifies the speaker of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryEntry is one turn of the conversation.
type HistoryEntry struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// IdleTTL is the inactivity window after which an active session is
// flipped to paused on the next operation, per spec.md §4.6.
const IdleTTL = 30 * time.Minute

// Session is a coaching conversation per (user, topic).
type Session struct {
	ID       string `json:"session_id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	TopicID  string `json:"topic_id"`

	Status Status `json:"status"`

	Turn         int `json:"turn"`
	MaxTurns     int `json:"max_turns"`
	MessageCount int `json:"message_count"`

	History []HistoryEntry `json:"history"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	InFlightJobID *string `json:"in_flight_job_id,omitempty"`

	// Version is CAS'd on every mutation, per spec.md §4.6's
	// "(version, last_activity_at)" concurrency rule.
	Version int64 `json:"-"`

	// DeletedAt is set by Registry.SoftDelete, hiding the session from
	// Get/GetActiveByTopic/List without removing the row.
	DeletedAt *time.Time `json:"-"`
}

// New constructs an active session.
func New(id, tenantID, userID, topicID string, maxTurns int, now time.Time) *Session {
	return &Session{
		ID:             id,
		TenantID:       tenantID,
		UserID:         userID,
		TopicID:        topicID,
		Status:         StatusActive,
		MaxTurns:       maxTurns,
		History:        []HistoryEntry{},
		CreatedAt:      now,
		LastActivityAt: now,
		Version:        1,
	}
}

// Idle reports whether the session has been inactive longer than IdleTTL
// as of now. Only meaningful while Status == StatusActive.
func (s *Session) Idle(now time.Time) bool {
	return now.Sub(s.LastActivityAt) > IdleTTL
}

// AtCapacity reports whether another turn would exceed MaxTurns.
// MaxTurns == 0 means unlimited.
func (s *Session) AtCapacity() bool {
	return s.MaxTurns != 0 && s.Turn >= s.MaxTurns
}

// Busy reports whether a job is already in flight for this session.
func (s *Session) Busy() bool {
	return s.InFlightJobID != nil
}

var (
	// ErrNotFound is returned when no session matches the given id.
	ErrNotFound = errors.New("session: not found")
	// ErrConflict is returned on a failed CAS (stale version).
	ErrConflict = errors.New("session: version conflict")
	// ErrAlreadyActive is returned by StartNew when callers ask for a
	// non-displacing creation and an active session already exists for
	// the (tenant, user, topic) tuple.
	ErrAlreadyActive = errors.New("session: another session is already active for this topic")
)
