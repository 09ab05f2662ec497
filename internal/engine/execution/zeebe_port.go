package execution

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"workflow-engine/internal/models"
)

const zeebeHandlePrefix = "zeebe:"

// InstanceAPI is the part of the process engine client the Zeebe port drives.
type InstanceAPI interface {
	CreateInstance(ctx context.Context, processID string, variables map[string]interface{}) (int64, error)
	CancelInstance(ctx context.Context, instanceKey int64) error
}

// ZeebePort runs workflows as BPMN processes whose process id is the workflow id.
// Compensation runs the "<workflow id>.rollback" process. Progress comes back through
// the report-execution-progress job worker.
type ZeebePort struct {
	api InstanceAPI
}

func NewZeebePort(api InstanceAPI) *ZeebePort {
	return &ZeebePort{api: api}
}

func (p *ZeebePort) Run(ctx context.Context, def models.WorkflowDefinition, rec models.ExecutionRecord) (RunResult, error) {
	key, err := p.api.CreateInstance(ctx, def.ID, processVariables(def, rec))
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{HandleID: zeebeHandlePrefix + strconv.FormatInt(key, 10)}, nil
}

func (p *ZeebePort) Cancel(ctx context.Context, handleID string) error {
	key, err := parseZeebeHandle(handleID)
	if err != nil {
		return err
	}
	return p.api.CancelInstance(ctx, key)
}

func (p *ZeebePort) Compensate(ctx context.Context, def models.WorkflowDefinition, rec models.ExecutionRecord) error {
	vars := processVariables(def, rec)
	vars["rollbackStrategy"] = string(def.Metadata.RollbackStrategy)
	vars["progress"] = rec.Progress
	vars["handleId"] = rec.HandleID
	_, err := p.api.CreateInstance(ctx, def.ID+".rollback", vars)
	return err
}

func processVariables(def models.WorkflowDefinition, rec models.ExecutionRecord) map[string]interface{} {
	inputs := rec.Inputs
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	sideEffects := def.Metadata.SideEffects
	if sideEffects == nil {
		sideEffects = []string{}
	}
	return map[string]interface{}{
		"idempotencyKey": rec.IdempotencyKey,
		"workflowId":     def.ID,
		"userId":         rec.UserID,
		"attempt":        rec.Attempts,
		"inputs":         inputs,
		"sideEffects":    sideEffects,
		"maxRetries":     def.Metadata.SLOTargets.Retries(),
	}
}

func parseZeebeHandle(handleID string) (int64, error) {
	if !strings.HasPrefix(handleID, zeebeHandlePrefix) {
		return 0, fmt.Errorf("not a zeebe handle: %q", handleID)
	}
	key, err := strconv.ParseInt(strings.TrimPrefix(handleID, zeebeHandlePrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed zeebe handle %q: %w", handleID, err)
	}
	return key, nil
}
