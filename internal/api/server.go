// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"workflow-engine/internal/common/database"
	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/metrics"
	"workflow-engine/internal/engine"
	"workflow-engine/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the set of operations the API serves.
type Engine interface {
	Classify(ctx context.Context, req engine.ClassifyRequest) (models.Classification, error)
	Select(ctx context.Context, req engine.SelectRequest) (engine.SelectResponse, error)
	Explain(ctx context.Context, req models.ExplanationRequest) models.Rationale
	Execute(ctx context.Context, req models.ExecutionRequest) (models.ExecutionRecord, error)
	Execution(ctx context.Context, key string) (models.ExecutionRecord, error)
	UserExecutions(ctx context.Context, userID string) ([]models.ExecutionRecord, error)
	Cancel(ctx context.Context, key string) (models.ExecutionRecord, error)
	Rollback(ctx context.Context, key string) (models.ExecutionRecord, error)
	RegisterWorkflow(ctx context.Context, def models.WorkflowDefinition) error
	Workflows() []models.WorkflowDefinition
	Workflow(id string) (models.WorkflowDefinition, error)
}

// Config holds HTTP server settings.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the echo application plus its dependencies.
type Server struct {
	echo     *echo.Echo
	engine   Engine
	backends map[string]database.Pinger
	logger   logger.Logger
	config   Config
}

// NewServer builds the router. backends are pinged by /ready; nil entries are skipped.
func NewServer(eng Engine, cfg Config, backends map[string]database.Pinger, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	s := &Server{
		echo:     e,
		engine:   eng,
		backends: backends,
		logger:   log.Named("http"),
		config:   cfg,
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.observe)

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/classify", s.handleClassify)
	v1.POST("/select", s.handleSelect)
	v1.POST("/explain", s.handleExplain)

	v1.POST("/execute", s.handleExecute)
	v1.GET("/executions/:key", s.handleGetExecution)
	v1.POST("/executions/:key/cancel", s.handleCancel)
	v1.POST("/executions/:key/rollback", s.handleRollback)
	v1.GET("/users/:user_id/executions", s.handleUserExecutions)

	v1.GET("/workflows", s.handleListWorkflows)
	v1.GET("/workflows/:id", s.handleGetWorkflow)
	v1.POST("/workflows", s.handleRegisterWorkflow)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// observe logs each request and records its Prometheus metrics.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		duration := time.Since(start)

		route := c.Path()
		status := c.Response().Status
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request().Method, route).Observe(duration.Seconds())

		s.logger.Info("http request", map[string]interface{}{
			"method":     c.Request().Method,
			"uri":        c.Request().RequestURI,
			"status":     status,
			"durationMs": duration.Milliseconds(),
			"requestId":  c.Response().Header().Get(echo.HeaderXRequestID),
		})
		return nil
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := ErrorBody{Error: ErrorDetail{Code: "INTERNAL_ERROR", Message: "Unexpected error"}}

	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		body.Error.Code = http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok {
			body.Error.Message = msg
		}
	} else {
		std := errors.AsStandard(err)
		status = errors.HTTPStatus(std.Code)
		body.Error = ErrorDetail{
			Code:     string(std.Code),
			Message:  std.Message,
			Details:  std.Details,
			Metadata: std.Metadata,
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed", map[string]interface{}{"uri": c.Request().RequestURI})
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", map[string]interface{}{"address": s.config.Address})
	if err := s.echo.Start(s.config.Address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server", nil)
	return s.echo.Shutdown(ctx)
}
