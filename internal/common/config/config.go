// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	HTTP         HTTPConfig              `mapstructure:"http"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Engine       EngineConfig            `mapstructure:"engine"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	APIs         APIsConfig              `mapstructure:"apis"`
	Logging      LoggingConfig           `mapstructure:"logging"`
	Tracing      TracingConfig           `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// --- Engine Configuration ---

// EngineConfig groups the tunables of every engine component.
type EngineConfig struct {
	Classification ClassificationConfig `mapstructure:"classification"`
	Selection      SelectionConfig      `mapstructure:"selection"`
	Registry       RegistryConfig       `mapstructure:"registry"`
	Execution      ExecutionConfig      `mapstructure:"execution"`
	Explanation    ExplanationConfig    `mapstructure:"explanation"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
}

type ClassificationConfig struct {
	RuleAuthorityThreshold float64 `mapstructure:"rule_authority_threshold"`
	WinnerBoost            float64 `mapstructure:"winner_boost"`
	EnableDecisionTree     bool    `mapstructure:"enable_decision_tree"`
	EnableEnsemble         bool    `mapstructure:"enable_ensemble"`
}

type SelectionConfig struct {
	TagWeight         float64  `mapstructure:"tag_weight"`
	ConfidenceWeight  float64  `mapstructure:"confidence_weight"`
	DiscardThreshold  float64  `mapstructure:"discard_threshold"`
	CascadeThreshold  float64  `mapstructure:"cascade_threshold"`
	DecayFloor        float64  `mapstructure:"decay_floor"`
	GenericDefaults   []string `mapstructure:"generic_defaults"`
	GenericScoreRatio float64  `mapstructure:"generic_score_ratio"`
}

type RegistryConfig struct {
	CatalogPaths []string `mapstructure:"catalog_paths"`
	// Policy applied to internal catalogs loaded at startup: "permissive" or "strict".
	CatalogPolicy string `mapstructure:"catalog_policy"`
	// Policy applied to definitions submitted over the API.
	ExternalPolicy string `mapstructure:"external_policy"`
}

type ExecutionConfig struct {
	// Store backend: "memory", "redis" or "postgres".
	Store          string `mapstructure:"store"`
	Port           string `mapstructure:"port"` // "zeebe" or "noop"
	BusinessDayTZ  string `mapstructure:"business_day_timezone"`
	DefaultKeyTmpl string `mapstructure:"default_key_template"`
	BackoffBaseMs  int    `mapstructure:"backoff_base_ms"`
	RunTimeout     int    `mapstructure:"run_timeout"` // milliseconds
	RecordTTLHours int    `mapstructure:"record_ttl_hours"`
}

type ExplanationConfig struct {
	TTLSeconds          int     `mapstructure:"ttl_seconds"`
	MaxEntries          int     `mapstructure:"max_entries"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	EmbeddingDimensions int     `mapstructure:"embedding_dimensions"`
}

type TelemetryConfig struct {
	BufferSize    int    `mapstructure:"buffer_size"`
	Index         string `mapstructure:"index"`
	Elasticsearch bool   `mapstructure:"elasticsearch"`
}

// --- Integrations ---

// IntegrationConfig holds settings for notification channels.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	GenAI struct {
		BaseURL    string `mapstructure:"base_url"`
		APIKey     string `mapstructure:"api_key"`
		Timeout    int    `mapstructure:"timeout"` // milliseconds
		MaxRetries int    `mapstructure:"max_retries"`
	} `mapstructure:"genai"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig holds the Jaeger exporter settings.
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}
