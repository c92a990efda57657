package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-coach/coachcore/pkg/intake"
	"github.com/tarsy-coach/coachcore/pkg/job"
	"github.com/tarsy-coach/coachcore/pkg/session"
)

func newTestServer(t *testing.T) (*Server, job.Registry, session.Registry) {
	t.Helper()
	jobs := job.NewMemRegistry()
	sessions := session.NewMemRegistry()
	svc := intake.NewService(jobs, sessions, nil)
	return NewServer(svc, jobs, sessions, nil, nil, nil), jobs, sessions
}

func TestServer_HealthHandler(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, healthStatusHealthy, body.Status)
}

func TestServer_SessionLifecycleAndMessageSubmission(t *testing.T) {
	s, jobs, _ := newTestServer(t)

	// start_new
	startBody := strings.NewReader(`{"topic_id":"coach.intro","max_turns":5}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", startBody)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-User", "alice")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var sessResp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessResp))
	assert.Equal(t, session.StatusActive, sessResp.Status)

	// submit_message
	msgBody := strings.NewReader(`{"message":"hello"}`)
	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessResp.SessionID+"/messages", msgBody)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-User", "alice")
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitResp SubmitMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitResp))
	assert.Equal(t, job.StatusPending, submitResp.Status)
	assert.NotEmpty(t, submitResp.JobID)

	_, err := jobs.Get(req.Context(), submitResp.JobID)
	require.NoError(t, err)

	// poll_job
	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/"+submitResp.JobID, nil)
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var polled job.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &polled))
	assert.Equal(t, submitResp.JobID, polled.ID)
}

func TestServer_SubmitMessage_WrongOwnerRejected(t *testing.T) {
	s, _, sessions := newTestServer(t)
	sess := session.New("sess-1", "default", "alice", "coach.intro", 5, time.Now())
	require.NoError(t, sessions.Create(context.Background(), sess))

	body := strings.NewReader(`{"message":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/messages", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-User", "mallory")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
