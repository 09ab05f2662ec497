// Package execution enforces at-most-once workflow execution per idempotency key and
// drives the execution state machine.
package execution

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/metrics"
	"workflow-engine/internal/engine/telemetry"
	"workflow-engine/internal/models"
)

// WorkflowSource resolves definitions by id.
type WorkflowSource interface {
	Get(id string) (models.WorkflowDefinition, bool)
}

// Options tune key derivation and retry pacing.
type Options struct {
	KeyTemplate string
	Location    *time.Location
	BackoffBase time.Duration
	RunTimeout  time.Duration
}

var transitions = map[models.ExecutionStatus][]models.ExecutionStatus{
	models.StatusQueued:    {models.StatusRunning},
	models.StatusRunning:   {models.StatusCompleted, models.StatusFailed},
	models.StatusCompleted: {models.StatusRolledBack},
	models.StatusFailed:    {models.StatusRolledBack},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to models.ExecutionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	errNotRunning        = stderrors.New("execution is not running")
	errCoordinatorClosed = stderrors.New("coordinator is shutting down")
	errAlreadyCancelled  = stderrors.New("execution already cancelled")
)

// Coordinator owns every mutation of execution records.
type Coordinator struct {
	workflows  WorkflowSource
	store      Store
	port       Port
	keys       *KeyBuilder
	emitter    telemetry.Emitter
	notifier   Notifier
	logger     logger.Logger
	backoff    time.Duration
	runTimeout time.Duration
	now        func() time.Time

	wg         sync.WaitGroup
	runCtx     context.Context
	cancelRuns context.CancelFunc

	// lifecycle guards closed and every wg.Add against Shutdown.
	lifecycle sync.RWMutex
	closed    bool
}

func NewCoordinator(opts Options, workflows WorkflowSource, store Store, port Port, emitter telemetry.Emitter, notifier Notifier, log logger.Logger) *Coordinator {
	if port == nil {
		port = NoopPort{}
	}
	if emitter == nil {
		emitter = telemetry.Nop{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 100 * time.Millisecond
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 30 * time.Second
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		workflows:  workflows,
		store:      store,
		port:       port,
		keys:       NewKeyBuilder(opts.KeyTemplate, opts.Location),
		emitter:    emitter,
		notifier:   notifier,
		logger:     log.Named("execution"),
		backoff:    opts.BackoffBase,
		runTimeout: opts.RunTimeout,
		now:        time.Now,
		runCtx:     runCtx,
		cancelRuns: cancel,
	}
}

// Execute creates the record for the request's idempotency key and starts the run in
// the background. When the key already has a record, that record is returned as is and
// nothing new is started.
func (c *Coordinator) Execute(ctx context.Context, req models.ExecutionRequest) (models.ExecutionRecord, error) {
	if strings.TrimSpace(req.WorkflowID) == "" {
		return models.ExecutionRecord{}, errors.NewInvalidInputError("workflow_id is required")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return models.ExecutionRecord{}, errors.NewInvalidInputError("user_id is required")
	}
	def, ok := c.workflows.Get(req.WorkflowID)
	if !ok {
		return models.ExecutionRecord{}, errors.NewWorkflowNotFoundError(req.WorkflowID)
	}

	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if c.closed {
		return models.ExecutionRecord{}, errors.NewExecutionPortUnavailableError(errCoordinatorClosed)
	}

	now := c.now().UTC()
	key, err := c.keys.Derive(def, req, now)
	if err != nil {
		return models.ExecutionRecord{}, err
	}

	stored, created, err := c.store.CreateIfAbsent(ctx, models.ExecutionRecord{
		IdempotencyKey: key,
		WorkflowID:     def.ID,
		UserID:         req.UserID,
		Status:         models.StatusQueued,
		Inputs:         req.Inputs,
		StartedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil && !created {
		return models.ExecutionRecord{}, err
	}
	if err != nil {
		c.logger.Warn("execution created but user index update failed", map[string]interface{}{
			"idempotencyKey": key,
			"error":          err.Error(),
		})
	}

	if !created {
		metrics.ExecutionDuplicatesTotal.Inc()
		c.emit(models.EventExecutionDuplicate, def, stored, nil)
		c.logger.Info("duplicate execute absorbed", map[string]interface{}{
			"idempotencyKey": key,
			"status":         string(stored.Status),
		})
		return stored, nil
	}

	metrics.ExecutionsTotal.WithLabelValues(def.ID, string(models.StatusQueued)).Inc()
	c.emit(models.EventExecutionQueued, def, stored, nil)
	c.logger.Info("execution queued", map[string]interface{}{
		"idempotencyKey": key,
		"workflowId":     def.ID,
		"userId":         req.UserID,
	})

	c.start(def, key)
	return stored, nil
}

func (c *Coordinator) Get(ctx context.Context, key string) (models.ExecutionRecord, error) {
	return c.store.Get(ctx, key)
}

func (c *Coordinator) ListByUser(ctx context.Context, userID string) ([]models.ExecutionRecord, error) {
	return c.store.ListByUser(ctx, userID)
}

func (c *Coordinator) start(def models.WorkflowDefinition, key string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.runCtx, c.runTimeout)
		defer cancel()
		c.run(ctx, def, key)
	}()
}

// run calls the port until it accepts the run, retrying up to max_retries times.
func (c *Coordinator) run(ctx context.Context, def models.WorkflowDefinition, key string) {
	maxRetries := def.Metadata.SLOTargets.Retries()
	attempts := 0
	var lastErr error

	for attempts <= maxRetries {
		attempt := attempts + 1
		rec, err := c.store.Update(ctx, key, func(r *models.ExecutionRecord) error {
			if r.Status == models.StatusQueued {
				if err := c.transition(r, models.StatusRunning); err != nil {
					return err
				}
			}
			if r.Status != models.StatusRunning {
				return errNotRunning
			}
			if r.CancelRequested {
				return c.markCancelled(r)
			}
			r.Attempts = attempt
			return nil
		})
		if err != nil {
			if err != errNotRunning {
				c.logger.Error("execution checkpoint failed", map[string]interface{}{"idempotencyKey": key, "error": err.Error()})
			}
			return
		}
		if rec.Status == models.StatusFailed {
			c.finished(ctx, def, rec)
			return
		}
		if attempt == 1 {
			metrics.ExecutionsTotal.WithLabelValues(def.ID, string(models.StatusRunning)).Inc()
			c.emit(models.EventExecutionRunning, def, rec, nil)
		}

		attempts = attempt
		res, err := c.port.Run(ctx, def, rec)
		if err == nil {
			c.accepted(ctx, def, key, res)
			return
		}

		lastErr = err
		c.logger.Warn("execution attempt failed", map[string]interface{}{
			"idempotencyKey": key,
			"attempt":        attempt,
			"maxRetries":     maxRetries,
			"error":          err.Error(),
		})
		if attempts > maxRetries {
			break
		}
		if !sleep(ctx, c.backoffFor(attempt)) {
			lastErr = ctx.Err()
			break
		}
	}

	c.exhaust(context.WithoutCancel(ctx), def, key, attempts, lastErr)
}

func (c *Coordinator) accepted(ctx context.Context, def models.WorkflowDefinition, key string, res RunResult) {
	if res.HandleID != "" {
		_, err := c.store.Update(ctx, key, func(r *models.ExecutionRecord) error {
			r.HandleID = res.HandleID
			r.UpdatedAt = c.now().UTC()
			return nil
		})
		if err != nil {
			c.logger.Error("failed to store execution handle", map[string]interface{}{"idempotencyKey": key, "error": err.Error()})
		}
	}
	if !res.Completed {
		return
	}
	if _, err := c.Complete(ctx, key, res.Result); err != nil {
		c.logger.Warn("synchronous completion not applied", map[string]interface{}{"idempotencyKey": key, "error": err.Error()})
	}
}

func (c *Coordinator) exhaust(ctx context.Context, def models.WorkflowDefinition, key string, attempts int, cause error) {
	if cause == nil {
		cause = stderrors.New("no attempt was made")
	}
	rec, err := c.store.Update(ctx, key, func(r *models.ExecutionRecord) error {
		if r.Status != models.StatusRunning {
			return errNotRunning
		}
		if err := c.transition(r, models.StatusFailed); err != nil {
			return err
		}
		r.FailureReason = &models.FailureReason{
			Code:     string(errors.ErrCodeExecutionRetriesExhausted),
			Message:  errors.NewRetriesExhaustedError(def.ID, attempts, cause).Details,
			Attempts: attempts,
		}
		return nil
	})
	if err != nil {
		if err != errNotRunning {
			c.logger.Error("failed to record exhausted execution", map[string]interface{}{"idempotencyKey": key, "error": err.Error()})
		}
		return
	}

	c.logger.Error("execution retries exhausted", map[string]interface{}{
		"idempotencyKey": key,
		"workflowId":     def.ID,
		"attempts":       attempts,
		"error":          cause.Error(),
	})
	if err := c.notifier.NotifyOps(ctx, notice(models.NoticeRetriesExhausted, rec)); err != nil {
		c.logger.Warn("ops notification failed", map[string]interface{}{"idempotencyKey": key, "error": err.Error()})
	}
	c.finished(ctx, def, rec)
}

// ReportProgress records a checkpoint. Lower values than the stored progress are
// ignored. A pending cancellation is applied here.
func (c *Coordinator) ReportProgress(ctx context.Context, key string, progress int) (models.ExecutionRecord, error) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	cancelled := false
	rec, err := c.store.Update(ctx, key, func(r *models.ExecutionRecord) error {
		if r.Status == models.StatusQueued {
			if err := c.transition(r, models.StatusRunning); err != nil {
				return err
			}
		}
		if r.Status != models.StatusRunning {
			return errors.NewInvalidTransitionError(string(r.Status), string(models.StatusRunning))
		}
		if progress > r.Progress {
			r.Progress = progress
		}
		r.UpdatedAt = c.now().UTC()
		if r.CancelRequested {
			cancelled = true
			return c.markCancelled(r)
		}
		return nil
	})
	if err != nil {
		return rec, err
	}

	def, _ := c.workflows.Get(rec.WorkflowID)
	if cancelled {
		c.finished(ctx, def, rec)
		return rec, nil
	}
	c.emit(models.EventExecutionProgress, def, rec, map[string]interface{}{"progress": rec.Progress})
	return rec, nil
}

// Complete moves a running execution to completed with the port's result.
func (c *Coordinator) Complete(ctx context.Context, key string, result map[string]interface{}) (models.ExecutionRecord, error) {
	rec, err := c.store.Update(ctx, key, func(r *models.ExecutionRecord) error {
		if err := c.transition(r, models.StatusCompleted); err != nil {
			return err
		}
		r.Progress = 100
		r.Result = result
		return nil
	})
	if err != nil {
		return rec, err
	}
	def, _ := c.workflows.Get(rec.WorkflowID)
	c.finished(ctx, def, rec)
	return rec, nil
}

// Fail records a failure reported by the external run. Retries of the external run are
// the process engine's concern, so this is terminal.
func (c *Coordinator) Fail(ctx context.Context, key, message string) (models.ExecutionRecord, error) {
	rec, err := c.store.Update(ctx, key, func(r *models.ExecutionRecord) error {
		if err := c.transition(r, models.StatusFailed); err != nil {
			return err
		}
		r.FailureReason = &models.FailureReason{
			Code:     string(errors.ErrCodeExecutionFailed),
			Message:  message,
			Attempts: r.Attempts,
		}
		return nil
	})
	if err != nil {
		return rec, err
	}
	def, _ := c.workflows.Get(rec.WorkflowID)
	c.finished(ctx, def, rec)
	return rec, nil
}

// Cancel stops an interruptible running execution at once. Otherwise the request is
// flagged and applied at the next checkpoint.
func (c *Coordinator) Cancel(ctx context.Context, key string) (models.ExecutionRecord, error) {
	current, err := c.store.Get(ctx, key)
	if err != nil {
		return models.ExecutionRecord{}, err
	}
	def, _ := c.workflows.Get(current.WorkflowID)

	// The flag is claimed first so a terminal record never reaches the port.
	interrupt := false
	rec, err := c.store.Update(ctx, key, func(r *models.ExecutionRecord) error {
		if r.Status.Terminal() {
			return errors.NewInvalidTransitionError(string(r.Status), string(models.StatusFailed))
		}
		interrupt = def.Metadata.Interruptible && r.Status == models.StatusRunning && r.HandleID != ""
		r.CancelRequested = true
		r.UpdatedAt = c.now().UTC()
		return nil
	})
	if err != nil {
		return rec, err
	}

	if interrupt {
		if err := c.port.Cancel(ctx, rec.HandleID); err != nil {
			c.logger.Warn("port cancel failed, deferring to next checkpoint", map[string]interface{}{
				"idempotencyKey": key,
				"error":          err.Error(),
			})
			interrupt = false
		}
	}
	if !interrupt {
		c.emit(models.EventExecutionCancel, def, rec, nil)
		return rec, nil
	}

	handleID := rec.HandleID
	rec, err = c.store.Update(ctx, key, func(r *models.ExecutionRecord) error {
		if r.Status == models.StatusFailed && r.FailureReason != nil && r.FailureReason.Code == models.ReasonCancelled {
			return errAlreadyCancelled
		}
		if r.Status != models.StatusRunning {
			return errors.NewInvalidTransitionError(string(r.Status), string(models.StatusFailed))
		}
		return c.markCancelled(r)
	})
	if err == errAlreadyCancelled {
		return rec, nil
	}
	if err != nil {
		c.logger.Warn("execution finished while port cancel was in flight", map[string]interface{}{
			"idempotencyKey": key,
			"handleId":       handleID,
			"status":         string(rec.Status),
		})
		return rec, err
	}
	c.finished(ctx, def, rec)
	return rec, nil
}

// Rollback compensates a completed or failed execution. notify_only workflows are not
// compensated through the port; the user is told either way. Only the caller that
// claims the record compensates it.
func (c *Coordinator) Rollback(ctx context.Context, key string) (models.ExecutionRecord, error) {
	current, err := c.store.Get(ctx, key)
	if err != nil {
		return models.ExecutionRecord{}, err
	}
	def, ok := c.workflows.Get(current.WorkflowID)
	if !ok {
		return current, errors.NewWorkflowNotFoundError(current.WorkflowID)
	}
	strategy := def.Metadata.RollbackStrategy
	if strategy == "" || strategy == models.RollbackNone {
		return current, errors.NewRollbackNotSupportedError(def.ID)
	}

	claimed, err := c.store.Update(ctx, key, func(r *models.ExecutionRecord) error {
		if r.RollbackRequested || !CanTransition(r.Status, models.StatusRolledBack) {
			return errors.NewInvalidTransitionError(string(r.Status), string(models.StatusRolledBack))
		}
		r.RollbackRequested = true
		r.UpdatedAt = c.now().UTC()
		return nil
	})
	if err != nil {
		return claimed, err
	}

	if strategy != models.RollbackNotifyOnly {
		if err := c.port.Compensate(ctx, def, claimed); err != nil {
			released, rerr := c.store.Update(context.WithoutCancel(ctx), key, func(r *models.ExecutionRecord) error {
				r.RollbackRequested = false
				return nil
			})
			if rerr != nil {
				c.logger.Error("failed to release rollback claim", map[string]interface{}{"idempotencyKey": key, "error": rerr.Error()})
				released = claimed
			}
			return released, errors.NewExecutionFailedError(def.ID, err)
		}
	}

	rec, err := c.store.Update(ctx, key, func(r *models.ExecutionRecord) error {
		if err := c.transition(r, models.StatusRolledBack); err != nil {
			return err
		}
		r.RollbackRequested = false
		return nil
	})
	if err != nil {
		return rec, err
	}

	metrics.ExecutionsTotal.WithLabelValues(def.ID, string(models.StatusRolledBack)).Inc()
	c.emit(models.EventExecutionRolledBack, def, rec, map[string]interface{}{"strategy": string(strategy)})
	if err := c.notifier.NotifyUser(ctx, notice(models.NoticeRolledBack, rec)); err != nil {
		c.logger.Warn("user notification failed", map[string]interface{}{"idempotencyKey": key, "error": err.Error()})
	}
	return rec, nil
}

// finished records a terminal completed or failed execution and rolls back failed
// executions that already made progress.
func (c *Coordinator) finished(ctx context.Context, def models.WorkflowDefinition, rec models.ExecutionRecord) {
	metrics.ExecutionsTotal.WithLabelValues(rec.WorkflowID, string(rec.Status)).Inc()
	metrics.ExecutionAttempts.WithLabelValues(string(rec.Status)).Observe(float64(rec.Attempts))

	if rec.Status == models.StatusCompleted {
		c.emit(models.EventExecutionCompleted, def, rec, nil)
		return
	}

	attrs := map[string]interface{}{}
	if rec.FailureReason != nil {
		attrs["reason_code"] = rec.FailureReason.Code
		attrs["reason"] = rec.FailureReason.Message
		attrs["attempts"] = rec.FailureReason.Attempts
	}
	c.emit(models.EventExecutionFailed, def, rec, attrs)

	strategy := def.Metadata.RollbackStrategy
	if rec.Progress == 0 || strategy == "" || strategy == models.RollbackNone {
		return
	}
	if _, err := c.Rollback(ctx, rec.IdempotencyKey); err != nil {
		c.logger.Error("automatic rollback failed", map[string]interface{}{
			"idempotencyKey": rec.IdempotencyKey,
			"strategy":       string(strategy),
			"error":          err.Error(),
		})
	}
}

func (c *Coordinator) transition(r *models.ExecutionRecord, to models.ExecutionStatus) error {
	if !CanTransition(r.Status, to) {
		return errors.NewInvalidTransitionError(string(r.Status), string(to))
	}
	now := c.now().UTC()
	r.Status = to
	r.UpdatedAt = now
	if to.Terminal() && r.CompletedAt == nil {
		r.CompletedAt = &now
	}
	return nil
}

func (c *Coordinator) markCancelled(r *models.ExecutionRecord) error {
	if err := c.transition(r, models.StatusFailed); err != nil {
		return err
	}
	r.FailureReason = &models.FailureReason{
		Code:     models.ReasonCancelled,
		Message:  "cancelled by request",
		Attempts: r.Attempts,
	}
	return nil
}

func (c *Coordinator) backoffFor(attempt int) time.Duration {
	return c.backoff * time.Duration(1<<(attempt-1))
}

func (c *Coordinator) emit(t models.EventType, def models.WorkflowDefinition, rec models.ExecutionRecord, attrs map[string]interface{}) {
	c.emitter.Record(models.AuditEvent{
		Type:           t,
		UserID:         rec.UserID,
		WorkflowID:     rec.WorkflowID,
		IdempotencyKey: rec.IdempotencyKey,
		Status:         string(rec.Status),
		Attributes:     attrs,
		DeclaredEvents: def.Metadata.TelemetryEvents,
	})
}

// Wait blocks until every background run has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Shutdown cancels in-flight runs and waits for them to return or for ctx to end.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.lifecycle.Lock()
	c.closed = true
	c.lifecycle.Unlock()
	c.cancelRuns()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func notice(kind string, rec models.ExecutionRecord) models.ExecutionNotice {
	n := models.ExecutionNotice{
		Kind:           kind,
		UserID:         rec.UserID,
		WorkflowID:     rec.WorkflowID,
		IdempotencyKey: rec.IdempotencyKey,
		Status:         string(rec.Status),
	}
	if rec.FailureReason != nil {
		n.Reason = rec.FailureReason.Message
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
