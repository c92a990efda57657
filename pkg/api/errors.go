package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tarsy-coach/coachcore/pkg/intake"
	"github.com/tarsy-coach/coachcore/pkg/job"
	"github.com/tarsy-coach/coachcore/pkg/session"
)

// errorCodeStatus maps the closed error-code taxonomy of spec.md §7 to
// HTTP status codes.
var errorCodeStatus = map[job.ErrorCode]int{
	job.ErrCodeValidation:       http.StatusBadRequest,
	job.ErrCodeSessionNotFound:  http.StatusNotFound,
	job.ErrCodeSessionNotActive: http.StatusConflict,
	job.ErrCodeAccessDenied:     http.StatusForbidden,
	job.ErrCodeMaxTurnsReached:  http.StatusConflict,
	job.ErrCodeIdleTimeout:      http.StatusConflict,
	job.ErrCodeSessionBusy:      http.StatusConflict,
	job.ErrCodeLLMTimeout:       http.StatusBadGateway,
	job.ErrCodeLLMError:         http.StatusBadGateway,
	job.ErrCodeParamValidation:  http.StatusBadRequest,
	job.ErrCodeInternal:         http.StatusInternalServerError,
	job.ErrCodeJobNotFound:      http.StatusNotFound,
}

// errorBody is the JSON error envelope, keyed on the closed taxonomy.
type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}

// mapServiceError maps Job Registry / Session / Intake errors to HTTP
// error responses, replacing the teacher's ent/services-bound
// mapServiceError.
func mapServiceError(err error) *echo.HTTPError {
	var gateErr *intake.GateError
	if errors.As(err, &gateErr) {
		status, ok := errorCodeStatus[gateErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		return echo.NewHTTPError(status, errorBody{Error: gateErr.Message, ErrorCode: string(gateErr.Code)})
	}

	if errors.Is(err, job.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, errorBody{Error: "job not found", ErrorCode: string(job.ErrCodeJobNotFound)})
	}
	if errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, errorBody{Error: "session not found", ErrorCode: string(job.ErrCodeSessionNotFound)})
	}
	if errors.Is(err, session.ErrConflict) {
		return echo.NewHTTPError(http.StatusConflict, errorBody{Error: "session was modified concurrently"})
	}
	if errors.Is(err, session.ErrAlreadyActive) {
		return echo.NewHTTPError(http.StatusConflict, errorBody{Error: "another session is already active for this topic"})
	}

	var validErr *job.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: validErr.Error(), ErrorCode: string(job.ErrCodeValidation)})
	}

	slog.Error("unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, errorBody{Error: "internal server error", ErrorCode: string(job.ErrCodeInternal)})
}
