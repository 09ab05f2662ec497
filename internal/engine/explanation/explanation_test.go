package explanation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "workflow-engine/internal/common/errors"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/metrics"
	"workflow-engine/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	calls atomic.Int32
	err   error
}

func (g *fakeGenerator) Generate(_ context.Context, req models.ExplanationRequest) (models.Rationale, error) {
	g.calls.Add(1)
	if g.err != nil {
		return models.Rationale{}, g.err
	}
	return models.Rationale{
		WhyRecommended:    "generated for " + req.Classification.Category,
		KeyConsiderations: []string{"generated consideration"},
		NuanceGuidance:    "generated nuance",
	}, nil
}

func newTestCache(t *testing.T, opts Options, gen Generator) *Cache {
	t.Helper()
	c, err := New(opts, gen, logger.NewTestLogger(t))
	require.NoError(t, err)
	return c
}

func request(category, sub, text string) models.ExplanationRequest {
	return models.ExplanationRequest{
		Classification: models.Classification{
			Category:    category,
			SubCategory: sub,
			Confidence:  0.9,
		},
		RecommendationText: text,
	}
}

func TestGetExplanation_FallbackWithoutGenerator(t *testing.T) {
	c := newTestCache(t, DefaultOptions(), nil)

	r := c.GetExplanation(context.Background(), request("save", "emergency_fund", "Build an emergency fund"))

	assert.Equal(t, SourceFallback, r.Source)
	assert.Equal(t, DefaultTemplates()["save"].WhyRecommended, r.WhyRecommended)
	assert.Equal(t, 0.9, r.ConfidenceScore)
	assert.Equal(t, 0, c.Len())
}

func TestGetExplanation_GeneratedThenServedFromCache(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestCache(t, DefaultOptions(), gen)
	ctx := context.Background()

	first := c.GetExplanation(ctx, request("debt", "high_interest", "Pay down your credit card"))
	assert.Equal(t, SourceGenerated, first.Source)
	assert.Equal(t, "generated for debt", first.WhyRecommended)
	assert.Equal(t, DefaultTemplates()["debt"].RiskAssessment, first.RiskAssessment)

	second := c.GetExplanation(ctx, request("debt", "high_interest", "Something else entirely"))
	assert.Equal(t, SourceTemplate, second.Source)
	assert.Equal(t, "generated for debt", second.WhyRecommended)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestGetExplanation_HitsAreCountedPerLayer(t *testing.T) {
	c := newTestCache(t, DefaultOptions(), &fakeGenerator{})
	ctx := context.Background()
	hits := metrics.ExplanationCacheTotal.WithLabelValues(SourceTemplate, "hit")

	c.GetExplanation(ctx, request("invest", "retirement", "Open a Roth IRA"))
	before := counterValue(t, hits)

	r := c.GetExplanation(ctx, request("invest", "retirement", "Open a Roth IRA"))
	assert.Equal(t, SourceTemplate, r.Source)
	assert.Equal(t, before+1, counterValue(t, hits))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestGetExplanation_SimilarTextIsReused(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestCache(t, DefaultOptions(), gen)
	ctx := context.Background()

	c.GetExplanation(ctx, request("save", "emergency_fund", "Build an emergency fund of $1,000"))
	r := c.GetExplanation(ctx, request("save", "rainy_day", "build an EMERGENCY fund of 1,000!"))

	assert.Equal(t, SourceSimilarity, r.Source)
	assert.Equal(t, "generated for save", r.WhyRecommended)
	assert.Equal(t, int32(1), gen.calls.Load())

	// The similarity hit is promoted to the exact key.
	again := c.GetExplanation(ctx, request("save", "rainy_day", "unrelated words here"))
	assert.Equal(t, SourceTemplate, again.Source)
}

func TestGetExplanation_DissimilarTextMisses(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestCache(t, DefaultOptions(), gen)
	ctx := context.Background()

	c.GetExplanation(ctx, request("save", "emergency_fund", "Build an emergency fund"))
	r := c.GetExplanation(ctx, request("invest", "retirement", "Open a Roth IRA this year"))

	assert.Equal(t, SourceGenerated, r.Source)
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestGetExplanation_EntriesExpire(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestCache(t, Options{TTL: time.Minute}, gen)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.GetExplanation(ctx, request("budget", "review", "Review your spending"))
	now = now.Add(30 * time.Second)
	assert.Equal(t, SourceTemplate, c.GetExplanation(ctx, request("budget", "review", "")).Source)

	now = now.Add(time.Minute)
	r := c.GetExplanation(ctx, request("budget", "review", "Review your spending"))
	assert.Equal(t, SourceGenerated, r.Source)
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestGetExplanation_EntryCountIsBounded(t *testing.T) {
	c := newTestCache(t, Options{MaxEntries: 2}, nil)
	ctx := context.Background()

	for _, sub := range []string{"a", "b", "c"} {
		c.Put(ctx, models.Classification{Category: "save", SubCategory: sub}, "", models.Rationale{WhyRecommended: "seeded " + sub})
	}

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, SourceFallback, c.GetExplanation(ctx, request("save", "a", "")).Source)
	assert.Equal(t, "seeded c", c.GetExplanation(ctx, request("save", "c", "")).WhyRecommended)
}

func TestGetExplanation_GenerationFailureServesNearestTemplate(t *testing.T) {
	gen := &fakeGenerator{err: apperrors.NewGenerationFailedError(errors.New("status 503"))}
	c := newTestCache(t, DefaultOptions(), gen)
	ctx := context.Background()

	r := c.GetExplanation(ctx, request("optimize", "subscriptions", "Cancel unused subscriptions"))
	assert.Equal(t, SourceFallback, r.Source)
	assert.Equal(t, DefaultTemplates()["optimize"].WhyRecommended, r.WhyRecommended)

	unknown := c.GetExplanation(ctx, request("travel", "", "Book flights early"))
	assert.Equal(t, DefaultTemplates()[genericKey].WhyRecommended, unknown.WhyRecommended)

	// Failures are not cached, so the next call tries again.
	c.GetExplanation(ctx, request("optimize", "subscriptions", "Cancel unused subscriptions"))
	assert.Equal(t, int32(3), gen.calls.Load())
}

func TestGetExplanation_PerCallFields(t *testing.T) {
	c := newTestCache(t, DefaultOptions(), &fakeGenerator{})
	ctx := context.Background()

	req := request("save", "round_up", "Round up purchases into savings")
	req.Match = models.WorkflowMatch{
		WorkflowID:       "save.round_up.v1",
		Name:             "Round-up savings",
		ConfidenceScore:  0.42,
		PreconditionsMet: false,
		Prerequisites:    []string{"checking_account_linked"},
		ComplianceStatus: models.ComplianceReviewRequired,
	}

	r := c.GetExplanation(ctx, req)
	assert.Equal(t, 0.42, r.ConfidenceScore)
	assert.Contains(t, r.KeyConsiderations, "Some prerequisites are not met yet: checking_account_linked")
	assert.Contains(t, r.KeyConsiderations, "Compliance disclosures must be reviewed before this runs")

	// Notes for one match never leak into the cached copy.
	plain := c.GetExplanation(ctx, request("save", "round_up", ""))
	assert.Equal(t, []string{"generated consideration"}, plain.KeyConsiderations)
	assert.Equal(t, 0.9, plain.ConfidenceScore)
}

func TestGetExplanation_ConcurrentReaders(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestCache(t, DefaultOptions(), gen)
	ctx := context.Background()
	c.GetExplanation(ctx, request("budget", "review", "Review your spending"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := c.GetExplanation(ctx, request("budget", "review", ""))
			assert.Equal(t, SourceTemplate, r.Source)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestHashingEmbedder(t *testing.T) {
	e := NewHashingEmbedder(64)

	a := e.Embed("Cancel the gym membership!")
	b := e.Embed("cancel THE gym membership")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Nil(t, e.Embed(" ... "))

	_, err := e.Func()(context.Background(), "")
	assert.ErrorIs(t, err, errEmptyText)
}

func TestGenAIGenerator_Success(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"why_recommended":"Because it saves money.","key_considerations":["one"],"nuance_guidance":"n","risk_assessment":"low"}`))
	}))
	defer srv.Close()

	g := NewGenAIGenerator(GenAIConfig{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, logger.NewTestLogger(t))
	req := request("optimize", "subscriptions", "Cancel unused subscriptions")
	req.Match = models.WorkflowMatch{WorkflowID: "optimize.cancel_subscriptions.v1", Name: "Cancel subscriptions"}

	r, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Because it saves money.", r.WhyRecommended)
	assert.Equal(t, []string{"one"}, r.KeyConsiderations)
	assert.Equal(t, "low", r.RiskAssessment)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Contains(t, gotBody["prompt"], "Cancel unused subscriptions")
	assert.Equal(t, "rationale", gotBody["response_format"])
}

func TestGenAIGenerator_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"why_recommended":"second time"}`))
	}))
	defer srv.Close()

	g := NewGenAIGenerator(GenAIConfig{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 1}, logger.NewTestLogger(t))
	r, err := g.Generate(context.Background(), request("save", "", "x"))
	require.NoError(t, err)
	assert.Equal(t, "second time", r.WhyRecommended)
	assert.Equal(t, []string{}, r.KeyConsiderations)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenAIGenerator_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		code    apperrors.ErrorCode
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			timeout: time.Second,
			code:    apperrors.ErrCodeGenerationFailed,
		},
		{
			name: "empty rationale",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"why_recommended":"  "}`))
			},
			timeout: time.Second,
			code:    apperrors.ErrCodeGenerationFailed,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			timeout: time.Second,
			code:    apperrors.ErrCodeGenerationFailed,
		},
		{
			name: "slow server",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			},
			timeout: 20 * time.Millisecond,
			code:    apperrors.ErrCodeGenerationTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			g := NewGenAIGenerator(GenAIConfig{BaseURL: srv.URL, Timeout: tt.timeout}, logger.NewNoOpLogger())
			_, err := g.Generate(context.Background(), request("save", "", "x"))
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}
