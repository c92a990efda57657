package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/tarsy-coach/coachcore/pkg/session"
)

// startSessionHandler handles POST /v1/sessions: begins a new
// Conversation Session State Machine instance for (tenant, user, topic),
// per spec.md §4.6's "start_new while another active session exists" rule.
func (s *Server) startSessionHandler(c *echo.Context) error {
	var req StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.TopicID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic_id is required")
	}

	sess, err := session.StartNew(c.Request().Context(), s.sessions, uuid.New().String(),
		tenantOf(c), extractAuthor(c), req.TopicID, req.MaxTurns, time.Now())
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, newSessionResponse(sess))
}

// getSessionHandler handles GET /v1/sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	sess, err := s.sessions.Get(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, newSessionResponse(sess))
}

// listSessionsHandler handles GET /v1/sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	limit := 25
	if v := c.QueryParam("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	sessions, err := s.sessions.List(c.Request().Context(), tenantOf(c), extractAuthor(c), limit)
	if err != nil {
		return mapServiceError(err)
	}

	out := make([]*SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, newSessionResponse(sess))
	}
	return c.JSON(http.StatusOK, out)
}

// pauseSessionHandler handles POST /v1/sessions/:id/pause.
func (s *Server) pauseSessionHandler(c *echo.Context) error {
	return s.transitionSessionHandler(c, session.Pause)
}

// resumeSessionHandler handles POST /v1/sessions/:id/resume. Idempotent
// per spec.md §8.
func (s *Server) resumeSessionHandler(c *echo.Context) error {
	return s.transitionSessionHandler(c, session.Resume)
}

// cancelSessionHandler handles POST /v1/sessions/:id/cancel. Cancels any
// in-flight job on this pod's worker pool regardless of the session
// transition's outcome, since a job may still be executing even after the
// session record itself has reached a terminal state.
func (s *Server) cancelSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	sess, err := s.sessions.Get(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(err)
	}

	if s.workerPool != nil && sess.InFlightJobID != nil {
		s.workerPool.CancelJob(*sess.InFlightJobID)
	}

	if _, err := session.Cancel(c.Request().Context(), s.sessions, sess, time.Now()); err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &CancelResponse{
		SessionID: sessionID,
		Message:   "session cancellation requested",
	})
}

type sessionTransition func(ctx context.Context, reg session.Registry, s *session.Session, now time.Time) (*session.Session, error)

func (s *Server) transitionSessionHandler(c *echo.Context, transition sessionTransition) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	sess, err := s.sessions.Get(c.Request().Context(), sessionID)
	if err != nil {
		return mapServiceError(err)
	}

	updated, err := transition(c.Request().Context(), s.sessions, sess, time.Now())
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, newSessionResponse(updated))
}
