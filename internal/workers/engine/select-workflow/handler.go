// internal/workers/engine/select-workflow/handler.go
package selectworkflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/metrics"
	"workflow-engine/internal/engine"
	"workflow-engine/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "select-workflow"

type Selector interface {
	Select(ctx context.Context, req engine.SelectRequest) (engine.SelectResponse, error)
}

type Handler struct {
	config       *Config
	selector     Selector
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
}

func NewHandler(config *Config, selector Selector, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		selector:     selector,
		logger:       log,
		errorHandler: errors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	start := time.Now()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}
	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.AsStandard(err).Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

// Execute ranks workflows for the process's user and trims the list to MaxMatches.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserID == "" {
		return nil, errors.NewInvalidInputError("userId is required")
	}
	if input.Question == "" && input.Classification == nil {
		return nil, errors.NewInvalidInputError("question or classification is required")
	}
	fields := input.Context
	if fields == nil {
		fields = map[string]interface{}{}
	}

	resp, err := h.selector.Select(ctx, engine.SelectRequest{
		Text:           input.Question,
		Classification: input.Classification,
		Context:        fields,
		UserID:         input.UserID,
		Explain:        input.Explain,
	})
	if err != nil {
		return nil, err
	}

	matches := resp.Matches
	if matches == nil {
		matches = []models.WorkflowMatch{}
	}
	if h.config.MaxMatches > 0 && len(matches) > h.config.MaxMatches {
		matches = matches[:h.config.MaxMatches]
	}

	out := &Output{
		Matches:     matches,
		MatchCount:  len(matches),
		Explanation: resp.Explanation,
	}
	if len(matches) > 0 {
		top := matches[0]
		out.TopWorkflowID = top.WorkflowID
		out.TopScore = top.ConfidenceScore
		out.ReadyToRun = top.PreconditionsMet && top.ComplianceStatus != models.ComplianceReviewRequired
	}

	h.logger.Debug("workflows selected", map[string]interface{}{
		"userId":     input.UserID,
		"matchCount": out.MatchCount,
		"top":        out.TopWorkflowID,
	})
	return out, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err.Error()})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err.Error()})
	}
}
