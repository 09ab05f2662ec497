package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type failingSink struct{}

func (failingSink) Name() string { return "failing" }
func (failingSink) Write(context.Context, models.AuditEvent) error {
	return errors.New("disk full")
}

// blockingSink holds the drain goroutine until released.
type blockingSink struct {
	release chan struct{}
}

func (b *blockingSink) Name() string { return "blocking" }
func (b *blockingSink) Write(context.Context, models.AuditEvent) error {
	<-b.release
	return nil
}

func TestRecorder_DeliversToEverySinkInOrder(t *testing.T) {
	first, second := NewMemorySink(), NewMemorySink()
	rec := NewRecorder(16, logger.NewTestLogger(t), first, failingSink{}, second)

	rec.Record(models.AuditEvent{Type: models.EventClassified})
	rec.Record(models.AuditEvent{Type: models.EventSelected, UserID: "user-1"})
	require.NoError(t, rec.Close(context.Background()))

	want := []models.EventType{models.EventClassified, models.EventSelected}
	assert.Equal(t, want, first.Types())
	assert.Equal(t, want, second.Types())

	for _, e := range first.Events() {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestRecorder_KeepsProvidedIDAndTimestamp(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(4, logger.NewTestLogger(t), sink)
	at := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	rec.Record(models.AuditEvent{ID: "evt-1", Type: models.EventExecutionQueued, Timestamp: at})
	require.NoError(t, rec.Close(context.Background()))

	require.Len(t, sink.Events(), 1)
	assert.Equal(t, "evt-1", sink.Events()[0].ID)
	assert.Equal(t, at, sink.Events()[0].Timestamp)
}

func TestRecorder_DropsWhenBufferFull(t *testing.T) {
	block := &blockingSink{release: make(chan struct{})}
	core, logs := observer.New(zapcore.WarnLevel)
	rec := NewRecorder(1, logger.NewZapAdapter(zap.New(core)), block)

	// One event is taken by the drain goroutine, one fills the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		rec.Record(models.AuditEvent{Type: models.EventExecutionProgress})
	}
	close(block.release)
	require.NoError(t, rec.Close(context.Background()))

	assert.GreaterOrEqual(t, logs.FilterMessage("telemetry buffer full, event dropped").Len(), 8)
}

func TestRecorder_RecordAfterCloseIsIgnored(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(4, logger.NewTestLogger(t), sink)
	require.NoError(t, rec.Close(context.Background()))
	require.NoError(t, rec.Close(context.Background()))

	assert.NotPanics(t, func() { rec.Record(models.AuditEvent{Type: models.EventSelected}) })
	assert.Empty(t, sink.Events())
}

func TestRecorder_ConcurrentProducers(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(1000, logger.NewTestLogger(t), sink)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rec.Record(models.AuditEvent{Type: models.EventExecutionProgress})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, rec.Close(context.Background()))

	assert.Len(t, sink.Events(), 500)
}

func TestLogSink_WritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(logger.NewZapAdapter(zap.New(core)))

	err := sink.Write(context.Background(), models.AuditEvent{
		ID:             "evt-9",
		Type:           models.EventExecutionCompleted,
		UserID:         "user-1",
		WorkflowID:     "optimize.cancel_subscriptions.v1",
		IdempotencyKey: "k1",
		Status:         "completed",
		DeclaredEvents: []string{"subscription.cancel.confirmed"},
		Attributes:     map[string]interface{}{"progress": 100},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("audit event").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "execution.completed", ctx["eventType"])
	assert.Equal(t, "optimize.cancel_subscriptions.v1", ctx["workflowId"])
	assert.Equal(t, "k1", ctx["idempotencyKey"])
}

func newElasticsearchServer(t *testing.T, status int, captured *[]map[string]interface{}, paths *[]string) *elasticsearch.Client {
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		body, _ := io.ReadAll(r.Body)
		var doc map[string]interface{}
		if len(body) > 0 {
			_ = json.Unmarshal(body, &doc)
		}
		mu.Lock()
		*captured = append(*captured, doc)
		*paths = append(*paths, r.Method+" "+r.URL.Path)
		mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchSink_IndexesByEventID(t *testing.T) {
	var docs []map[string]interface{}
	var paths []string
	client := newElasticsearchServer(t, http.StatusCreated, &docs, &paths)
	sink := NewElasticsearchSink(client, "workflow-engine-audit")

	err := sink.Write(context.Background(), models.AuditEvent{
		ID:         "evt-42",
		Type:       models.EventExecutionFailed,
		WorkflowID: "save.emergency_fund.v1",
		Timestamp:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, paths, 1)
	assert.Equal(t, "PUT /workflow-engine-audit/_doc/evt-42", paths[0])
	assert.Equal(t, "execution.failed", docs[0]["type"])
	assert.Equal(t, "save.emergency_fund.v1", docs[0]["workflow_id"])
}

func TestElasticsearchSink_ErrorStatus(t *testing.T) {
	var docs []map[string]interface{}
	var paths []string
	client := newElasticsearchServer(t, http.StatusBadRequest, &docs, &paths)
	sink := NewElasticsearchSink(client, "audit")

	err := sink.Write(context.Background(), models.AuditEvent{ID: "evt-1", Type: models.EventSelected})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
