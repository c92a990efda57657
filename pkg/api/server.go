// Package api provides the HTTP API for the coaching job-orchestration core.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/tarsy-coach/coachcore/pkg/delivery"
	"github.com/tarsy-coach/coachcore/pkg/intake"
	"github.com/tarsy-coach/coachcore/pkg/job"
	"github.com/tarsy-coach/coachcore/pkg/queue"
	"github.com/tarsy-coach/coachcore/pkg/session"
)

// Pinger reports the health of a durable store backing the Job/Session
// registries. Satisfied by the pgstore client in production deployments;
// nil in single-process/in-memory deployments.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server fronting the Intake API, Job Registry,
// and Conversation Session State Machine.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	intake     *intake.Service
	jobs       job.Registry
	sessions   session.Registry
	workerPool *queue.WorkerPool
	delivery   *delivery.Manager
	store      Pinger // nil if no durable store is wired (in-memory deployment)
}

// NewServer creates a new API server with Echo v5, grounded on the
// teacher's pkg/api/server.go wiring shape.
func NewServer(
	intakeSvc *intake.Service,
	jobs job.Registry,
	sessions session.Registry,
	workerPool *queue.WorkerPool,
	deliveryMgr *delivery.Manager,
	store Pinger,
) *Server {
	e := echo.New()

	s := &Server{
		echo:       e,
		intake:     intakeSvc,
		jobs:       jobs,
		sessions:   sessions,
		workerPool: workerPool,
		delivery:   deliveryMgr,
		store:      store,
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers all API routes per SPEC_FULL.md §5.2's HTTP surface.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/v1")

	// Session lifecycle.
	v1.POST("/sessions", s.startSessionHandler)
	v1.GET("/sessions", s.listSessionsHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.POST("/sessions/:id/pause", s.pauseSessionHandler)
	v1.POST("/sessions/:id/resume", s.resumeSessionHandler)
	v1.POST("/sessions/:id/cancel", s.cancelSessionHandler)

	// Intake API (spec.md §4.2).
	v1.POST("/sessions/:id/messages", s.submitMessageHandler)
	v1.POST("/topics/:id/analysis", s.submitAnalysisHandler)
	v1.GET("/jobs/:id", s.pollJobHandler)

	// Delivery Gateway (spec.md §6.3).
	v1.GET("/ws", s.wsHandler)
}

// Start starts the HTTP server on the given address (non-blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
