// Package telemetry records lifecycle audit events without blocking the caller.
package telemetry

import (
	"context"
	"sync"
	"time"

	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/metrics"
	"workflow-engine/internal/models"

	"github.com/google/uuid"
)

// Emitter is what engine components depend on.
type Emitter interface {
	Record(event models.AuditEvent)
}

// Sink persists or forwards one event.
type Sink interface {
	Name() string
	Write(ctx context.Context, event models.AuditEvent) error
}

// Recorder fans buffered events out to its sinks on a single goroutine.
// Events recorded while the buffer is full are dropped and counted.
type Recorder struct {
	events chan models.AuditEvent
	sinks  []Sink
	logger logger.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewRecorder(bufferSize int, log logger.Logger, sinks ...Sink) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	r := &Recorder{
		events: make(chan models.AuditEvent, bufferSize),
		sinks:  sinks,
		logger: log.Named("telemetry"),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record stamps the event with an id and timestamp when missing and enqueues it.
func (r *Recorder) Record(event models.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.TelemetryDroppedTotal.Inc()
		return
	}

	select {
	case r.events <- event:
	default:
		metrics.TelemetryDroppedTotal.Inc()
		r.logger.Warn("telemetry buffer full, event dropped", map[string]interface{}{
			"eventType": string(event.Type),
			"eventId":   event.ID,
		})
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for event := range r.events {
		for _, sink := range r.sinks {
			// Sink failures never reach the producer.
			if err := sink.Write(context.Background(), event); err != nil {
				r.logger.Warn("telemetry sink write failed", map[string]interface{}{
					"sink":      sink.Name(),
					"eventType": string(event.Type),
					"error":     err.Error(),
				})
			}
		}
	}
}

// Close stops accepting events and waits until the buffer drains or ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(models.AuditEvent) {}
