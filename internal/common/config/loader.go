// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<env>.yaml on top and applies env overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// ENGINE_SELECTION_DECAY_FLOOR overrides engine.selection.decay_floor
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finalize(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			// An unset variable clears the field so optional backends stay off.
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets that are conventionally provided as bare env vars.
func overrideEmptyConfig(cfg *Config) {
	if cfg.APIs.GenAI.APIKey == "" {
		if val := os.Getenv("GENAI_API_KEY"); val != "" {
			cfg.APIs.GenAI.APIKey = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Integrations.AWS.SNS.TopicARN == "" {
		if val := os.Getenv("OPS_ALERT_TOPIC_ARN"); val != "" {
			cfg.Integrations.AWS.SNS.TopicARN = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "workflow-engine"
	}

	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = ":8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15000
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15000
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	applyEngineDefaults(&cfg.Engine)

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.APIs.GenAI.Timeout == 0 {
		cfg.APIs.GenAI.Timeout = 10000
	}
	if cfg.APIs.GenAI.MaxRetries == 0 {
		cfg.APIs.GenAI.MaxRetries = 2
	}

	if cfg.Integrations.AWS.Region == "" {
		cfg.Integrations.AWS.Region = "us-east-1"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1.0
	}
}

func applyEngineDefaults(e *EngineConfig) {
	if e.Classification.RuleAuthorityThreshold == 0 {
		e.Classification.RuleAuthorityThreshold = 0.8
	}
	if e.Classification.WinnerBoost == 0 {
		e.Classification.WinnerBoost = 2.0
	}

	s := &e.Selection
	if s.TagWeight == 0 && s.ConfidenceWeight == 0 {
		s.TagWeight = 0.6
		s.ConfidenceWeight = 0.4
	}
	if s.DiscardThreshold == 0 {
		s.DiscardThreshold = 0.3
	}
	if s.CascadeThreshold == 0 {
		s.CascadeThreshold = 0.5
	}
	if s.DecayFloor == 0 {
		s.DecayFloor = 0.2
	}
	if s.GenericScoreRatio == 0 {
		s.GenericScoreRatio = 0.2
	}

	if e.Registry.CatalogPolicy == "" {
		e.Registry.CatalogPolicy = "permissive"
	}
	if e.Registry.ExternalPolicy == "" {
		e.Registry.ExternalPolicy = "strict"
	}

	x := &e.Execution
	if x.Store == "" {
		x.Store = "memory"
	}
	if x.Port == "" {
		x.Port = "noop"
	}
	if x.BusinessDayTZ == "" {
		x.BusinessDayTZ = "UTC"
	}
	if x.DefaultKeyTmpl == "" {
		x.DefaultKeyTmpl = "userId:workflowId:hash(params):businessDay"
	}
	if x.BackoffBaseMs == 0 {
		x.BackoffBaseMs = 100
	}
	if x.RunTimeout == 0 {
		x.RunTimeout = 30000
	}
	if x.RecordTTLHours == 0 {
		x.RecordTTLHours = 24 * 90
	}

	if e.Explanation.TTLSeconds == 0 {
		e.Explanation.TTLSeconds = 300
	}
	if e.Explanation.MaxEntries == 0 {
		e.Explanation.MaxEntries = 1024
	}
	if e.Explanation.SimilarityThreshold == 0 {
		e.Explanation.SimilarityThreshold = 0.85
	}
	if e.Explanation.EmbeddingDimensions == 0 {
		e.Explanation.EmbeddingDimensions = 256
	}

	if e.Telemetry.BufferSize == 0 {
		e.Telemetry.BufferSize = 1024
	}
	if e.Telemetry.Index == "" {
		e.Telemetry.Index = "workflow-engine-audit"
	}
}

// validateConfig validates critical configuration fields against the selected backends.
func validateConfig(cfg *Config) error {
	switch cfg.Engine.Execution.Store {
	case "memory":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis execution store")
		}
	case "postgres":
		if err := validatePostgres(cfg.Database.Postgres); err != nil {
			return err
		}
	default:
		return fmt.Errorf("engine.execution.store %q is not one of memory, redis, postgres", cfg.Engine.Execution.Store)
	}

	switch cfg.Engine.Execution.Port {
	case "noop":
	case "zeebe":
		if cfg.Camunda.BrokerAddress == "" {
			return fmt.Errorf("camunda.broker_address is required for the zeebe execution port")
		}
	default:
		return fmt.Errorf("engine.execution.port %q is not one of noop, zeebe", cfg.Engine.Execution.Port)
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	if cfg.Engine.Telemetry.Elasticsearch &&
		len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required for the telemetry index")
	}

	if _, err := time.LoadLocation(cfg.Engine.Execution.BusinessDayTZ); err != nil {
		return fmt.Errorf("engine.execution.business_day_timezone: %w", err)
	}

	for _, p := range []string{cfg.Engine.Registry.CatalogPolicy, cfg.Engine.Registry.ExternalPolicy} {
		if p != "permissive" && p != "strict" {
			return fmt.Errorf("registry policy %q is not one of permissive, strict", p)
		}
	}

	s := cfg.Engine.Selection
	if s.DecayFloor > s.DiscardThreshold || s.DiscardThreshold > s.CascadeThreshold {
		return fmt.Errorf("engine.selection thresholds must satisfy decay_floor <= discard_threshold <= cascade_threshold")
	}
	return nil
}

func validatePostgres(p PostgresConfig) error {
	if p.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if p.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if p.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
