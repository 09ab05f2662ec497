package api

import (
	"net/http"
	"net/url"

	"workflow-engine/internal/common/database"
	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/engine"
	"workflow-engine/internal/models"

	"github.com/labstack/echo/v4"
)

func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return errors.NewInvalidInputError("request body is not valid JSON: " + err.Error())
	}
	return nil
}

// pathParam unescapes a path parameter. Idempotency keys contain ':' and may arrive encoded.
func pathParam(c echo.Context, name string) string {
	v := c.Param(name)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(c echo.Context) error {
	results := database.PingAll(c.Request().Context(), s.backends)
	status := http.StatusOK
	checks := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	return c.JSON(status, map[string]interface{}{"status": state, "checks": checks})
}

func (s *Server) handleClassify(c echo.Context) error {
	var req engine.ClassifyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	out, err := s.engine.Classify(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleSelect(c echo.Context) error {
	var req engine.SelectRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Classification == nil && req.Text == "" {
		return errors.NewInvalidInputError("either text or classification is required")
	}
	out, err := s.engine.Select(c.Request().Context(), req)
	if err != nil {
		return err
	}
	if out.Matches == nil {
		out.Matches = []models.WorkflowMatch{}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleExplain(c echo.Context) error {
	var req models.ExplanationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.engine.Explain(c.Request().Context(), req))
}

// handleExecute answers 202: the run continues in the background and is polled by key.
func (s *Server) handleExecute(c echo.Context) error {
	var req models.ExecutionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	rec, err := s.engine.Execute(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/executions/"+url.PathEscape(rec.IdempotencyKey))
	return c.JSON(http.StatusAccepted, rec)
}

func (s *Server) handleGetExecution(c echo.Context) error {
	rec, err := s.engine.Execution(c.Request().Context(), pathParam(c, "key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleCancel(c echo.Context) error {
	rec, err := s.engine.Cancel(c.Request().Context(), pathParam(c, "key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, rec)
}

func (s *Server) handleRollback(c echo.Context) error {
	rec, err := s.engine.Rollback(c.Request().Context(), pathParam(c, "key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleUserExecutions(c echo.Context) error {
	records, err := s.engine.UserExecutions(c.Request().Context(), pathParam(c, "user_id"))
	if err != nil {
		return err
	}
	if records == nil {
		records = []models.ExecutionRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"executions": records})
}

func (s *Server) handleListWorkflows(c echo.Context) error {
	defs := s.engine.Workflows()
	if defs == nil {
		defs = []models.WorkflowDefinition{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"workflows": defs})
}

func (s *Server) handleGetWorkflow(c echo.Context) error {
	def, err := s.engine.Workflow(pathParam(c, "id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, def)
}

func (s *Server) handleRegisterWorkflow(c echo.Context) error {
	var def models.WorkflowDefinition
	if err := bind(c, &def); err != nil {
		return err
	}
	if err := s.engine.RegisterWorkflow(c.Request().Context(), def); err != nil {
		return err
	}
	stored, err := s.engine.Workflow(def.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, stored)
}
