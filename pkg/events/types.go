// Package events defines the EventBus envelopes of spec.md §6.2, carried
// over PostgreSQL NOTIFY/LISTEN for cross-pod WebSocket fan-out, grounded
// on the teacher's pkg/events package shape (same persist-then-NOTIFY /
// NOTIFY-only split, same single-LISTEN-connection listener).
package events

import "context"

// Event types, per spec.md §6.2. message.created is internal (worker
// trigger, not delivered to clients); message.completed/failed are the
// two terminal envelopes the Delivery Gateway forwards.
const (
	EventMessageCreated   = "message.created"
	EventMessageCompleted = "message.completed"
	EventMessageFailed    = "message.failed"
)

// GlobalSessionsChannel mirrors the teacher's session-list fan-out
// channel, retained for the session lifecycle events of spec.md §4.6.
const GlobalSessionsChannel = "sessions"

// SessionChannel returns the per-session channel name, format
// "session:{session_id}" (spec.md §6.3's jobId-routed delivery rides on
// top of this channel).
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// Bus is the publish side of the EventBus (spec.md §1's external
// collaborator). Published payloads are pre-marshaled JSON; callers use
// the typed helpers in publisher.go in the pgbus subpackage instead of
// calling Publish/Notify directly outside that package.
type Bus interface {
	// Publish persists payload under channel (for catchup/replay) then
	// broadcasts it via the bus, within a single atomic operation.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Notify broadcasts payload on channel without persisting it.
	Notify(ctx context.Context, channel string, payload []byte) error
}

// ClientMessage is the JSON structure for client → server WebSocket
// control messages (spec.md §6.3).
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`
	LastEventID *int   `json:"last_event_id,omitempty"`
}
