package execution

import (
	"context"

	"workflow-engine/internal/models"
)

// RunResult is what the port reports when a run has been started.
type RunResult struct {
	HandleID string
	// Completed is set by ports that finish synchronously.
	Completed bool
	Result    map[string]interface{}
}

// Port performs the external side of a workflow: money movement, cancellations and
// the like. Progress of asynchronous runs is fed back through the coordinator.
type Port interface {
	Run(ctx context.Context, def models.WorkflowDefinition, rec models.ExecutionRecord) (RunResult, error)
	Cancel(ctx context.Context, handleID string) error
	Compensate(ctx context.Context, def models.WorkflowDefinition, rec models.ExecutionRecord) error
}

// NoopPort completes every run immediately. It backs local runs without a process engine.
type NoopPort struct{}

func (NoopPort) Run(_ context.Context, def models.WorkflowDefinition, rec models.ExecutionRecord) (RunResult, error) {
	return RunResult{
		HandleID:  "noop:" + rec.IdempotencyKey,
		Completed: true,
		Result:    map[string]interface{}{"simulated": true, "workflow_id": def.ID},
	}, nil
}

func (NoopPort) Cancel(context.Context, string) error { return nil }

func (NoopPort) Compensate(context.Context, models.WorkflowDefinition, models.ExecutionRecord) error {
	return nil
}

// Notifier alerts humans about executions that need attention.
type Notifier interface {
	NotifyOps(ctx context.Context, notice models.ExecutionNotice) error
	NotifyUser(ctx context.Context, notice models.ExecutionNotice) error
}

type nopNotifier struct{}

func (nopNotifier) NotifyOps(context.Context, models.ExecutionNotice) error  { return nil }
func (nopNotifier) NotifyUser(context.Context, models.ExecutionNotice) error { return nil }
