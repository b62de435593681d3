// Package http exposes the approval engine and its services over HTTP.
// Handlers translate requests into application calls and domain errors into status codes.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/stock-approval/internal/application/service"
	"github.com/garyjia/stock-approval/internal/application/workflow"
)

const requestIDHeader = "X-Request-ID"

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Services are the application entry points the handlers call
type Services struct {
	Engine    workflow.ApprovalEngine
	Registry  service.RegistryService
	Approvals service.ApprovalService
	Inventory service.InventoryService
}

// HealthCheck reports overall health plus component details
type HealthCheck func() (healthy bool, details interface{})

// Option configures optional server behaviour
type Option func(*Server)

// WithHealthCheck replaces the static health response
func WithHealthCheck(check HealthCheck) Option {
	return func(s *Server) {
		s.health = check
	}
}

// WithMetrics mounts the Prometheus handler at path
func WithMetrics(path string) Option {
	return func(s *Server) {
		s.metricsPath = path
	}
}

// WithErrorObserver is called with the kind of every error response
func WithErrorObserver(observe func(kind string)) Option {
	return func(s *Server) {
		s.observeError = observe
	}
}

// Server is the HTTP server adapter
type Server struct {
	config       ServerConfig
	httpServer   *http.Server
	router       *gin.Engine
	services     Services
	logger       Logger
	health       HealthCheck
	metricsPath  string
	observeError func(kind string)
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// requestIDMiddleware propagates the caller's request id or assigns a new one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// loggingMiddleware logs one line per request, keyed by route template and actor
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		kv := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"actor", c.GetHeader(actorHeader),
			"request_id", c.GetString("request_id"),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("HTTP request failed", kv...)
			return
		}
		s.logger.Info("HTTP request", kv...)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.logger, s.observeError)

	s.router.GET("/health", s.healthCheck)
	if s.metricsPath != "" {
		s.router.GET(s.metricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := s.router.Group("/api")
	{
		api.POST("/approvals", h.Submit)
		api.GET("/approvals/:id", h.GetApproval)
		api.GET("/approvals/:id/history", h.GetHistory)
		api.GET("/approvals/:id/dispositions", h.GetDispositions)
		api.GET("/approvals/:id/targets", h.AvailableTargets)
		api.POST("/approvals/:id/forward", h.Forward)
		api.POST("/approvals/:id/approve", h.Approve)
		api.POST("/approvals/:id/reject", h.Reject)
		api.POST("/approvals/:id/finalize", h.Finalize)
		api.POST("/approvals/:id/issue", h.IssueStock)

		api.GET("/requests/:type/:requestId/approval", h.GetByRequest)
		api.GET("/requests/:type/:requestId/matches", h.MatchRequest)

		api.GET("/me/pending", h.ListPending)
		api.GET("/me/dashboard", h.Dashboard)

		api.GET("/workflows", h.ListWorkflows)
		api.POST("/workflows", h.CreateWorkflow)
		api.GET("/workflows/:id", h.GetWorkflow)
		api.PUT("/workflows/:id/active", h.SetWorkflowActive)
		api.GET("/workflows/:id/approvers", h.ListApprovers)
		api.POST("/workflows/:id/approvers", h.AddApprover)
		api.DELETE("/workflows/:id/approvers/:userId", h.RemoveApprover)

		api.GET("/stock", h.ListStock)
		api.POST("/stock/:id/adjust", h.AdjustStock)
		api.GET("/stock/:id/log", h.StockLog)
	}
}

// healthCheck handles GET /health
func (s *Server) healthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if s.health != nil {
		healthy, details := s.health()
		resp.Components = details
		if !healthy {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.Address(),
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("HTTP server error", "error", err)
		return fmt.Errorf("http server: %w", err)
	}
}

// Stop waits up to ten seconds for in-flight requests
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
