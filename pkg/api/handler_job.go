package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tarsy-coach/coachcore/pkg/intake"
)

// submitMessageHandler handles POST /v1/sessions/:id/messages, the
// submit_message operation of spec.md §4.2. Grounded on the teacher's
// sendChatMessageHandler ordered-validation-then-submit shape.
func (s *Server) submitMessageHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	var req SubmitMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := s.intake.SubmitMessage(c.Request().Context(), intake.SubmitMessageInput{
		SessionID: sessionID,
		UserID:    extractAuthor(c),
		Message:   req.Message,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusAccepted, &SubmitMessageResponse{
		JobID: res.JobID, SessionID: res.SessionID, Status: res.Status,
		EstimatedDurationMS: res.EstimatedDurationMS,
	})
}

// submitAnalysisHandler handles POST /v1/topics/:id/analysis, the
// submit_analysis operation of spec.md §4.2.
func (s *Server) submitAnalysisHandler(c *echo.Context) error {
	topicID := c.Param("id")
	if topicID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic id is required")
	}

	var req SubmitAnalysisRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := s.intake.SubmitAnalysis(c.Request().Context(), intake.SubmitAnalysisInput{
		TenantID: tenantOf(c),
		UserID:   extractAuthor(c),
		TopicID:  topicID,
		Params:   req.Params,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusAccepted, &SubmitAnalysisResponse{
		JobID: res.JobID, Status: res.Status, EstimatedDurationMS: res.EstimatedDurationMS,
	})
}

// pollJobHandler handles GET /v1/jobs/:id, the poll_job operation of
// spec.md §4.2.
func (s *Server) pollJobHandler(c *echo.Context) error {
	jobID := c.Param("id")
	if jobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job id is required")
	}

	j, err := s.intake.PollJob(c.Request().Context(), jobID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, j)
}
