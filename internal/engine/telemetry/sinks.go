package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log.Named("audit")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, event models.AuditEvent) error {
	fields := map[string]interface{}{
		"eventId":   event.ID,
		"eventType": string(event.Type),
		"timestamp": event.Timestamp,
	}
	if event.UserID != "" {
		fields["userId"] = event.UserID
	}
	if event.WorkflowID != "" {
		fields["workflowId"] = event.WorkflowID
	}
	if event.IdempotencyKey != "" {
		fields["idempotencyKey"] = event.IdempotencyKey
	}
	if event.Status != "" {
		fields["status"] = event.Status
	}
	if len(event.DeclaredEvents) > 0 {
		fields["declaredEvents"] = event.DeclaredEvents
	}
	for k, v := range event.Attributes {
		fields[k] = v
	}
	s.logger.Info("audit event", fields)
	return nil
}

// AuditIndexMapping is applied when the audit index is created.
const AuditIndexMapping = `{
  "mappings": {
    "properties": {
      "id": {"type": "keyword"},
      "type": {"type": "keyword"},
      "timestamp": {"type": "date"},
      "user_id": {"type": "keyword"},
      "workflow_id": {"type": "keyword"},
      "idempotency_key": {"type": "keyword"},
      "status": {"type": "keyword"},
      "declared_events": {"type": "keyword"},
      "attributes": {"type": "object", "enabled": false}
    }
  }
}`

// ElasticsearchSink indexes events by id, so a replayed event overwrites itself.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Write(ctx context.Context, event models.AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	res, err := s.client.Index(s.index, bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(event.ID),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch index error: %s", res.Status())
	}
	return nil
}

// MemorySink keeps events in order, for tests and local runs.
type MemorySink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Write(_ context.Context, event models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Record makes the sink usable as a synchronous Emitter.
func (s *MemorySink) Record(event models.AuditEvent) {
	_ = s.Write(context.Background(), event)
}

// Events returns a snapshot.
func (s *MemorySink) Events() []models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditEvent(nil), s.events...)
}

// Types returns the event types in arrival order.
func (s *MemorySink) Types() []models.EventType {
	events := s.Events()
	out := make([]models.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
