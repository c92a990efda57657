package pgbus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-coach/coachcore/pkg/events"
)

func TestTruncateIfNeeded_PassesThroughNormalPayload(t *testing.T) {
	payload, _ := json.Marshal(events.MessageFailedPayload{
		Type:      events.EventMessageFailed,
		JobID:     "job-1",
		SessionID: "sess-1",
		Error:     "boom",
		ErrorCode: "LLM_ERROR",
	})

	result, err := truncateIfNeeded(string(payload))
	require.NoError(t, err)
	assert.Contains(t, result, "job-1")
	assert.NotContains(t, result, "truncated")
}

func TestTruncateIfNeeded_TruncatesOversizedPayload(t *testing.T) {
	long := make([]byte, 8000)
	for i := range long {
		long[i] = 'a'
	}
	payload, _ := json.Marshal(events.MessageCompletedPayload{
		Type:    events.EventMessageCompleted,
		JobID:   "job-1",
		Message: string(long),
	})

	result, err := truncateIfNeeded(string(payload))
	require.NoError(t, err)
	assert.Contains(t, result, "truncated")
	assert.Less(t, len(result), 8000)
}

func TestInjectDBEventIDAndTruncate_AddsDBEventID(t *testing.T) {
	payload, _ := json.Marshal(events.MessageCreatedPayload{
		Type:  events.EventMessageCreated,
		JobID: "job-1",
	})

	result, err := injectDBEventIDAndTruncate(payload, 42)
	require.NoError(t, err)
	assert.Contains(t, result, "\"dbEventId\":42")
}
