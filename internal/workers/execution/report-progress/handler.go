// internal/workers/execution/report-progress/handler.go
package reportprogress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/metrics"
	"workflow-engine/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "report-execution-progress"

// Coordinator is the part of the execution coordinator this worker feeds.
type Coordinator interface {
	ReportProgress(ctx context.Context, key string, progress int) (models.ExecutionRecord, error)
	Complete(ctx context.Context, key string, result map[string]interface{}) (models.ExecutionRecord, error)
	Fail(ctx context.Context, key, message string) (models.ExecutionRecord, error)
}

type Handler struct {
	config       *Config
	coordinator  Coordinator
	logger       logger.Logger
	errorHandler *errors.ErrorHandler
}

func NewHandler(config *Config, coordinator Coordinator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		coordinator:  coordinator,
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

// Execute applies one reported event to the execution record.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return nil, errors.NewInvalidInputError("idempotencyKey is required")
	}

	var (
		rec models.ExecutionRecord
		err error
	)
	switch input.Event {
	case EventProgress:
		rec, err = h.coordinator.ReportProgress(ctx, input.IdempotencyKey, input.Progress)
	case EventCompleted:
		rec, err = h.coordinator.Complete(ctx, input.IdempotencyKey, input.Result)
	case EventFailed:
		message := input.Message
		if message == "" {
			message = "process reported failure"
		}
		rec, err = h.coordinator.Fail(ctx, input.IdempotencyKey, message)
	default:
		return nil, errors.NewInvalidInputError(fmt.Sprintf("unknown event %q", input.Event))
	}
	if err != nil {
		return nil, err
	}

	h.logger.Debug("execution updated", map[string]interface{}{
		"idempotencyKey": input.IdempotencyKey,
		"event":          input.Event,
		"status":         string(rec.Status),
		"progress":       rec.Progress,
	})
	return &Output{ExecutionStatus: string(rec.Status), ExecutionProgress: rec.Progress}, nil
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
