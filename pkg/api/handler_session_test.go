package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-coach/coachcore/pkg/session"
)

func TestSessionHandlers_PauseResumeCancel(t *testing.T) {
	s, _, sessions := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"topic_id":"coach.intro","max_turns":5}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-User", "alice")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var sess SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))

	// pause
	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sess.SessionID+"/pause", nil)
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var paused SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paused))
	assert.Equal(t, session.StatusPaused, paused.Status)

	// resume is idempotent
	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sess.SessionID+"/resume", nil)
		rec = httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var resumed SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resumed))
	assert.Equal(t, session.StatusActive, resumed.Status)

	// cancel
	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sess.SessionID+"/cancel", nil)
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var cancelResp CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelResp))
	assert.Equal(t, sess.SessionID, cancelResp.SessionID)
}

func TestGetSessionHandler_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessionsHandler_ReturnsCreatedSessions(t *testing.T) {
	s, _, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"topic_id":"coach.intro","max_turns":5}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-User", "alice")
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("X-Forwarded-User", "alice")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	// StartNew abandons the previous active session for the same topic, so
	// only the most recent remains active; all three still appear in List.
	assert.Len(t, out, 3)
}
