package registry

import (
	"path/filepath"
	"sync"
	"testing"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/engine/enginetest"
	"workflow-engine/internal/models"
	"workflow-engine/pkg/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRegistry(t *testing.T, policy Policy) *Registry {
	return New(policy, logger.NewTestLogger(t))
}

func TestRegister_RoundTrip(t *testing.T) {
	reg := newTestRegistry(t, PolicyStrict)
	def := enginetest.CancelSubscriptions()

	require.NoError(t, reg.Register(def))

	got, ok := reg.Get(def.ID)
	require.True(t, ok)
	assert.Equal(t, def, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegister_ReturnsDeepCopies(t *testing.T) {
	reg := newTestRegistry(t, PolicyStrict)
	require.NoError(t, reg.Register(enginetest.CancelSubscriptions()))

	got, _ := reg.Get("optimize.cancel_subscriptions.v1")
	got.Metadata.IntentTags[0] = "tampered"
	*got.Metadata.SLOTargets.MaxRetries = 10

	again, _ := reg.Get("optimize.cancel_subscriptions.v1")
	assert.Equal(t, "cancel", again.Metadata.IntentTags[0])
	assert.Equal(t, 3, again.Metadata.SLOTargets.Retries())
}

func TestRegister_DuplicateRejected(t *testing.T) {
	reg := newTestRegistry(t, PolicyStrict)
	require.NoError(t, reg.Register(enginetest.CancelSubscriptions()))

	changed := enginetest.CancelSubscriptions()
	changed.Name = "Different"
	err := reg.Register(changed)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateWorkflowID))

	got, _ := reg.Get(changed.ID)
	assert.Equal(t, "Cancel unused subscriptions", got.Name)

	v2 := enginetest.CancelSubscriptions()
	v2.ID = "optimize.cancel_subscriptions.v2"
	assert.NoError(t, reg.Register(v2))
}

func TestRegister_SchemaViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.WorkflowDefinition)
		field  string
	}{
		{"bad id", func(d *models.WorkflowDefinition) { d.ID = "CancelSubs" }, "id"},
		{"missing version", func(d *models.WorkflowDefinition) { d.ID = "optimize.cancel_subscriptions" }, "id"},
		{"unknown rollback", func(d *models.WorkflowDefinition) { d.Metadata.RollbackStrategy = "undo" }, "rollback_strategy"},
		{"unknown consent", func(d *models.WorkflowDefinition) { d.Metadata.ConsentRequired = []string{"telepathy"} }, "consent_required"},
		{"unknown privacy scope", func(d *models.WorkflowDefinition) { d.Metadata.PrivacyScope = []string{"dna"} }, "privacy_scope"},
		{"unknown risk level", func(d *models.WorkflowDefinition) { d.Metadata.RiskLevel = "extreme" }, "risk_level"},
		{"missing side effects", func(d *models.WorkflowDefinition) { d.Metadata.SideEffects = nil }, "side_effects"},
		{"missing key strategy", func(d *models.WorkflowDefinition) { d.Metadata.IdempotencyKeyStrategy = "" }, "idempotency_key_strategy"},
		{"no intent tags", func(d *models.WorkflowDefinition) { d.Metadata.IntentTags = []string{} }, "intent_tags"},
		{"no steps", func(d *models.WorkflowDefinition) { d.Steps = nil }, "steps"},
		{"step consent outside enum", func(d *models.WorkflowDefinition) { d.Steps[0].ConsentRequired = []string{"x"} }, "steps"},
		{"unparseable precondition", func(d *models.WorkflowDefinition) { d.Metadata.Preconditions = []string{"linked_accounts>1"} }, "preconditions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t, PolicyPermissive)
			def := enginetest.CancelSubscriptions()
			tt.mutate(&def)

			err := reg.Register(def)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeSchemaValidationFailed))
			assert.Contains(t, err.Error(), tt.field)
			assert.Equal(t, 0, reg.Len())
		})
	}
}

func TestRegister_SLOPolicy(t *testing.T) {
	withoutSLO := func() models.WorkflowDefinition {
		def := enginetest.SpendingReview()
		def.Metadata.SLOTargets = models.SLOTargets{}
		return def
	}

	t.Run("strict rejects", func(t *testing.T) {
		reg := newTestRegistry(t, PolicyStrict)
		err := reg.Register(withoutSLO())
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeSchemaValidationFailed))
		assert.Contains(t, err.Error(), "p95_latency_ms")
		assert.Contains(t, err.Error(), "success_rate")
	})

	t.Run("permissive injects defaults and warns", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		reg := New(PolicyPermissive, logger.NewZapAdapter(zap.New(core)))

		require.NoError(t, reg.Register(withoutSLO()))
		got, _ := reg.Get("budget.spending_review.v1")
		assert.Equal(t, DefaultP95LatencyMs, *got.Metadata.SLOTargets.P95LatencyMs)
		assert.Equal(t, DefaultSuccessRate, *got.Metadata.SLOTargets.SuccessRate)
		assert.Equal(t, DefaultMaxRetries, got.Metadata.SLOTargets.Retries())
		assert.Equal(t, 1, logs.FilterMessage("workflow slo_targets incomplete, defaults injected").Len())
	})

	t.Run("explicit policy overrides default", func(t *testing.T) {
		reg := newTestRegistry(t, PolicyPermissive)
		assert.Error(t, reg.RegisterWithPolicy(withoutSLO(), PolicyStrict))
	})

	t.Run("zero max retries is kept", func(t *testing.T) {
		reg := newTestRegistry(t, PolicyStrict)
		def := enginetest.SpendingReview()
		def.Metadata.SLOTargets = enginetest.SLO(1000, 0.9, 0)
		require.NoError(t, reg.Register(def))
		got, _ := reg.Get(def.ID)
		assert.Equal(t, 0, got.Metadata.SLOTargets.Retries())
	})
}

func TestAll_SortedByID(t *testing.T) {
	reg := newTestRegistry(t, PolicyStrict)
	for _, def := range enginetest.All() {
		require.NoError(t, reg.Register(def))
	}

	all := reg.All()
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}
}

func TestRegister_ConcurrentDuplicates(t *testing.T) {
	reg := newTestRegistry(t, PolicyStrict)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.Register(enginetest.DebtPayoff()) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestLoadCatalogFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")

	cat := catalog.New("1.0.0")
	for _, def := range enginetest.All() {
		require.NoError(t, cat.Add(def))
	}
	broken := enginetest.RoundUp()
	broken.ID = "save.broken.v1"
	broken.Metadata.RollbackStrategy = "rewind"
	cat.Workflows = append(cat.Workflows, broken)
	require.NoError(t, catalog.Save(cat, path))

	reg := newTestRegistry(t, PolicyPermissive)
	loaded, errs := reg.LoadCatalogFiles([]string{path, filepath.Join(dir, "missing.json")}, PolicyPermissive)
	assert.Equal(t, 5, loaded)
	assert.Len(t, errs, 2)
	_, ok := reg.Get("save.broken.v1")
	assert.False(t, ok)
}
