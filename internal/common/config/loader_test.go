package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: workflow-engine
engine:
  execution:
    store: memory
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 0.8, cfg.Engine.Classification.RuleAuthorityThreshold)
	assert.Equal(t, 0.6, cfg.Engine.Selection.TagWeight)
	assert.Equal(t, 0.4, cfg.Engine.Selection.ConfidenceWeight)
	assert.Equal(t, 0.3, cfg.Engine.Selection.DiscardThreshold)
	assert.Equal(t, 0.5, cfg.Engine.Selection.CascadeThreshold)
	assert.Equal(t, 0.2, cfg.Engine.Selection.DecayFloor)
	assert.Equal(t, "permissive", cfg.Engine.Registry.CatalogPolicy)
	assert.Equal(t, "strict", cfg.Engine.Registry.ExternalPolicy)
	assert.Equal(t, "noop", cfg.Engine.Execution.Port)
	assert.Equal(t, 300, cfg.Engine.Explanation.TTLSeconds)
	assert.Equal(t, 0.85, cfg.Engine.Explanation.SimilarityThreshold)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_GENAI_URL", "http://genai.internal:9000")
	path := writeConfig(t, `
apis:
  genai:
    base_url: ${TEST_GENAI_URL}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://genai.internal:9000", cfg.APIs.GenAI.BaseURL)
}

func TestLoadFromFile_WorkerDefaults(t *testing.T) {
	path := writeConfig(t, `
workers:
  report-execution-progress:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	w := GetWorkerConfig(cfg, "report-execution-progress")
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 3, w.MaxRetries)
	assert.True(t, IsWorkerEnabled(cfg, "unknown-worker"))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "redis store without address",
			mutate:  func(c *Config) { c.Engine.Execution.Store = "redis" },
			wantErr: "database.redis.address",
		},
		{
			name:    "postgres store without host",
			mutate:  func(c *Config) { c.Engine.Execution.Store = "postgres" },
			wantErr: "database.postgres.host",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Engine.Execution.Store = "etcd" },
			wantErr: "engine.execution.store",
		},
		{
			name:    "zeebe port without broker",
			mutate:  func(c *Config) { c.Engine.Execution.Port = "zeebe" },
			wantErr: "camunda.broker_address",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Engine.Execution.BusinessDayTZ = "Mars/Olympus" },
			wantErr: "business_day_timezone",
		},
		{
			name:    "inverted thresholds",
			mutate:  func(c *Config) { c.Engine.Selection.DecayFloor = 0.4 },
			wantErr: "decay_floor",
		},
		{
			name:    "unknown policy",
			mutate:  func(c *Config) { c.Engine.Registry.ExternalPolicy = "lenient" },
			wantErr: "registry policy",
		},
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			applyDefaults(cfg)
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "engine", Password: "pw", Database: "workflows", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=engine password=pw dbname=workflows sslmode=disable", p.GetDSN())
}

func TestLoadFromFile_UnsetPlaceholderClearsField(t *testing.T) {
	path := writeConfig(t, `
database:
  redis:
    address: ${TEST_UNSET_REDIS_ADDRESS}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Database.Redis.Address)
}
