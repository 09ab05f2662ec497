// cmd/engine-server/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"workflow-engine/internal/api"
	"workflow-engine/internal/common/aws"
	"workflow-engine/internal/common/camunda"
	"workflow-engine/internal/common/config"
	"workflow-engine/internal/common/database"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/observability"
	"workflow-engine/internal/engine"
	"workflow-engine/internal/engine/classification"
	"workflow-engine/internal/engine/consent"
	"workflow-engine/internal/engine/execution"
	"workflow-engine/internal/engine/explanation"
	"workflow-engine/internal/engine/precondition"
	"workflow-engine/internal/engine/profile"
	"workflow-engine/internal/engine/registry"
	"workflow-engine/internal/engine/selector"
	"workflow-engine/internal/engine/telemetry"

	ci "workflow-engine/internal/workers/engine/classify-intent"
	sw "workflow-engine/internal/workers/engine/select-workflow"
	rp "workflow-engine/internal/workers/execution/report-progress"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// backends holds the storage clients the configuration asked for. Unused ones stay nil.
type backends struct {
	pg    *database.PostgresClient
	redis *database.RedisClient
	es    *database.ElasticsearchClient
}

func (b *backends) pingers() map[string]database.Pinger {
	out := map[string]database.Pinger{}
	if b.pg != nil {
		out["postgres"] = b.pg
	}
	if b.redis != nil {
		out["redis"] = b.redis
	}
	if b.es != nil {
		out["elasticsearch"] = b.es
	}
	return out
}

func (b *backends) close() {
	if b.pg != nil {
		b.pg.Close()
	}
	if b.redis != nil {
		b.redis.Close()
	}
}

func connectBackends(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (*backends, error) {
	b := &backends{}
	exec := cfg.Engine.Execution

	if exec.Store == "postgres" || cfg.Database.Postgres.Host != "" {
		err := retryWithBackoff(func() error {
			var err error
			b.pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return b.pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			return b, err
		}
		if err := b.pg.Migrate(ctx); err != nil {
			return b, fmt.Errorf("postgres migration: %w", err)
		}
		zapLog.Info("PostgreSQL connected successfully")
	}

	if exec.Store == "redis" || cfg.Database.Redis.Address != "" {
		err := retryWithBackoff(func() error {
			var err error
			b.redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return b.redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			return b, err
		}
		zapLog.Info("Redis connected successfully")
	}

	if cfg.Engine.Telemetry.Elasticsearch {
		err := retryWithBackoff(func() error {
			var err error
			b.es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return b.es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			return b, err
		}
		if err := b.es.EnsureIndex(ctx, cfg.Engine.Telemetry.Index, telemetry.AuditIndexMapping); err != nil {
			return b, fmt.Errorf("audit index: %w", err)
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	return b, nil
}

func buildClassifier(cfg config.ClassificationConfig, log logger.Logger) *classification.Engine {
	strategies := []classification.Strategy{classification.NewRuleMatcher()}
	if cfg.EnableDecisionTree {
		strategies = append(strategies, classification.NewDecisionTreeScorer(classification.DefaultTree()))
	}
	if cfg.EnableEnsemble {
		strategies = append(strategies, classification.NewEnsembleScorer(classification.DefaultEnsemble()...))
	}
	return classification.NewEngine(classification.Config{
		RuleAuthorityThreshold: cfg.RuleAuthorityThreshold,
		WinnerBoost:            cfg.WinnerBoost,
	}, log, strategies...)
}

func buildExecutionStore(cfg *config.Config, b *backends) (execution.Store, error) {
	switch cfg.Engine.Execution.Store {
	case "redis":
		ttl := time.Duration(cfg.Engine.Execution.RecordTTLHours) * time.Hour
		return execution.NewRedisStore(b.redis.Client, ttl), nil
	case "postgres":
		return execution.NewPostgresStore(b.pg.DB), nil
	case "memory", "":
		return execution.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown execution store %q", cfg.Engine.Execution.Store)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting workflow engine...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(observability.Options{
		ServiceName:    cfg.App.Name,
		JaegerEndpoint: jaegerEndpoint(cfg.Tracing),
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := connectBackends(ctx, cfg, zapLog)
	defer b.close()
	if err != nil {
		zapLog.Fatal("backend initialization failed", zap.Error(err))
	}

	// --- Registry ---
	reg := registry.New(registry.Policy(cfg.Engine.Registry.ExternalPolicy), log)
	loaded, problems := reg.LoadCatalogFiles(cfg.Engine.Registry.CatalogPaths, registry.Policy(cfg.Engine.Registry.CatalogPolicy))
	for _, p := range problems {
		zapLog.Warn("catalog entry rejected", zap.Error(p))
	}
	zapLog.Info("Workflow catalog loaded", zap.Int("workflows", loaded))

	// --- Telemetry ---
	sinks := []telemetry.Sink{telemetry.NewLogSink(log)}
	if b.es != nil {
		sinks = append(sinks, telemetry.NewElasticsearchSink(b.es.Client, cfg.Engine.Telemetry.Index))
	}
	recorder := telemetry.NewRecorder(cfg.Engine.Telemetry.BufferSize, log, sinks...)

	// --- Profiles and consent ---
	var profiles profile.Provider = profile.NewMemoryProvider()
	var consents consent.Store = consent.NewMemoryStore()
	if b.pg != nil {
		profiles = profile.NewPostgresProvider(b.pg.DB)
		consents = consent.NewPostgresStore(b.pg.DB)
	}

	// --- Classification and selection ---
	sel := cfg.Engine.Selection
	matcher := selector.New(selector.Config{
		TagWeight:         sel.TagWeight,
		ConfidenceWeight:  sel.ConfidenceWeight,
		DiscardThreshold:  sel.DiscardThreshold,
		CascadeThreshold:  sel.CascadeThreshold,
		DecayFloor:        sel.DecayFloor,
		GenericDefaults:   sel.GenericDefaults,
		GenericScoreRatio: sel.GenericScoreRatio,
	}, reg, precondition.NewEvaluator(log), consents, log)

	// --- Explanations ---
	var generator explanation.Generator
	if cfg.APIs.GenAI.BaseURL != "" {
		generator = explanation.NewGenAIGenerator(explanation.GenAIConfig{
			BaseURL:    cfg.APIs.GenAI.BaseURL,
			APIKey:     cfg.APIs.GenAI.APIKey,
			Timeout:    config.GetDuration(cfg.APIs.GenAI.Timeout),
			MaxRetries: cfg.APIs.GenAI.MaxRetries,
		}, log)
	}
	expl := cfg.Engine.Explanation
	explainer, err := explanation.New(explanation.Options{
		TTL:                 time.Duration(expl.TTLSeconds) * time.Second,
		MaxEntries:          expl.MaxEntries,
		SimilarityThreshold: expl.SimilarityThreshold,
		Dimensions:          expl.EmbeddingDimensions,
		Templates:           explanation.DefaultTemplates(),
	}, generator, log)
	if err != nil {
		zapLog.Fatal("explanation cache init failed", zap.Error(err))
	}

	// --- Execution ---
	store, err := buildExecutionStore(cfg, b)
	if err != nil {
		zapLog.Fatal("execution store init failed", zap.Error(err))
	}

	notifier, err := aws.NewNotifier(ctx, aws.NotifierConfig{
		Region:     cfg.Integrations.AWS.Region,
		SNSEnabled: cfg.Integrations.AWS.SNS.Enabled,
		TopicARN:   cfg.Integrations.AWS.SNS.TopicARN,
		SESEnabled: cfg.Integrations.AWS.SES.Enabled,
		FromEmail:  cfg.Integrations.AWS.SES.FromEmail,
	}, profiles, log)
	if err != nil {
		zapLog.Fatal("notifier init failed", zap.Error(err))
	}

	var (
		port        execution.Port = execution.NoopPort{}
		zeebeClient *camunda.Client
	)
	if cfg.Engine.Execution.Port == "zeebe" {
		err = retryWithBackoff(func() error {
			var err error
			zeebeClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebeClient.Close()
		port = execution.NewZeebePort(zeebeClient)
		zapLog.Info("Zeebe client connected successfully")
	}

	location, err := time.LoadLocation(cfg.Engine.Execution.BusinessDayTZ)
	if err != nil {
		zapLog.Fatal("invalid business day timezone", zap.Error(err))
	}
	coordinator := execution.NewCoordinator(execution.Options{
		KeyTemplate: cfg.Engine.Execution.DefaultKeyTmpl,
		Location:    location,
		BackoffBase: time.Duration(cfg.Engine.Execution.BackoffBaseMs) * time.Millisecond,
		RunTimeout:  config.GetDuration(cfg.Engine.Execution.RunTimeout),
	}, reg, store, port, recorder, notifier, log)

	// --- Service ---
	svc := engine.NewService(engine.Deps{
		Classifier:     buildClassifier(cfg.Engine.Classification, log),
		Selector:       matcher,
		Explainer:      explainer,
		Executor:       coordinator,
		Registry:       reg,
		Profiles:       profiles,
		Emitter:        recorder,
		Observability:  obs,
		ExternalPolicy: registry.Policy(cfg.Engine.Registry.ExternalPolicy),
	}, log)

	// --- Workers ---
	if zeebeClient != nil {
		zc := zeebeClient.GetClient()

		rpCfg := config.GetWorkerConfig(cfg, rp.TaskType)
		rpHandler := rp.NewHandler(&rp.Config{Timeout: config.GetDuration(rpCfg.Timeout)}, coordinator, log)
		if w := camunda.StartWorker(zc, rp.TaskType, rpCfg, rpHandler.Handle, log); w != nil {
			defer w.Close()
		}

		ciCfg := config.GetWorkerConfig(cfg, ci.TaskType)
		ciHandler := ci.NewHandler(&ci.Config{Timeout: config.GetDuration(ciCfg.Timeout)}, svc, log)
		if w := camunda.StartWorker(zc, ci.TaskType, ciCfg, ciHandler.Handle, log); w != nil {
			defer w.Close()
		}

		swCfg := config.GetWorkerConfig(cfg, sw.TaskType)
		swHandler := sw.NewHandler(&sw.Config{
			Timeout:    config.GetDuration(swCfg.Timeout),
			MaxMatches: sw.LoadConfig().MaxMatches,
		}, svc, log)
		if w := camunda.StartWorker(zc, sw.TaskType, swCfg, swHandler.Handle, log); w != nil {
			defer w.Close()
		}
	}

	// --- HTTP ---
	pingers := b.pingers()
	if zeebeClient != nil {
		pingers["zeebe"] = pingFunc(zeebeClient.HealthCheck)
	}
	server := api.NewServer(svc, api.Config{
		Address:         cfg.HTTP.Address,
		ReadTimeout:     config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout:    config.GetDuration(cfg.HTTP.WriteTimeout),
		ShutdownTimeout: config.GetDuration(cfg.HTTP.ShutdownTimeout),
	}, pingers, log)

	go func() {
		if err := server.Start(); err != nil {
			zapLog.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	zapLog.Info("Workflow engine is running. Press Ctrl+C to exit.")
	<-ctx.Done()
	zapLog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.HTTP.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("execution runs still in flight", zap.Error(err))
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		zapLog.Warn("telemetry buffer not drained", zap.Error(err))
	}
	zapLog.Info("Shutdown complete")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func jaegerEndpoint(t config.TracingConfig) string {
	if !t.Enabled {
		return ""
	}
	return t.JaegerEndpoint
}
