package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// Config holds all configuration for ekaya-nlq.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// History and saved-query store (PostgreSQL). An empty host keeps them in memory.
	Database DatabaseConfig `yaml:"database"`

	// Shared result cache tier. An empty host keeps the cache process-local.
	Redis RedisConfig `yaml:"redis"`

	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Cache     CacheConfig     `yaml:"cache"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`

	// Data sources queries can run against.
	Datasources []DatasourceConfig `yaml:"datasources"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:""`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_nlq"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// Enabled reports whether a PostgreSQL store is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// RedisConfig holds Redis connection settings for the shared cache tier.
type RedisConfig struct {
	Host      string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port      int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password  string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"nlq:"`
}

// PipelineConfig holds execution defaults applied to queries that do not
// override them.
type PipelineConfig struct {
	QueryTimeout       time.Duration `yaml:"query_timeout" env:"NLQ_QUERY_TIMEOUT" env-default:"30s"`
	MaxRows            int           `yaml:"max_rows" env:"NLQ_MAX_ROWS" env-default:"1000"`
	CacheResults       bool          `yaml:"cache_results" env:"NLQ_CACHE_RESULTS" env-default:"false"`
	CacheExpireSeconds int           `yaml:"cache_expire_seconds" env:"NLQ_CACHE_EXPIRE_SECONDS" env-default:"300"`
	AsyncWorkers       int           `yaml:"async_workers" env:"NLQ_ASYNC_WORKERS" env-default:"8"`
	BatchSize          int           `yaml:"batch_size" env:"NLQ_BATCH_SIZE" env-default:"100"`
	StatusRetention    time.Duration `yaml:"status_retention" env:"NLQ_STATUS_RETENTION" env-default:"10m"`

	// History entries older than HistoryRetentionDays are pruned every
	// HistoryPruneInterval. A zero interval disables pruning.
	HistoryRetentionDays int           `yaml:"history_retention_days" env:"NLQ_HISTORY_RETENTION_DAYS" env-default:"90"`
	HistoryPruneInterval time.Duration `yaml:"history_prune_interval" env:"NLQ_HISTORY_PRUNE_INTERVAL" env-default:"24h"`
}

// QueryMetadata returns the execution defaults as query metadata.
func (p PipelineConfig) QueryMetadata() models.QueryMetadata {
	md := models.DefaultQueryMetadata()
	md.Timeout = p.QueryTimeout
	md.MaxRows = p.MaxRows
	md.CacheResult = p.CacheResults
	md.CacheExpireSeconds = p.CacheExpireSeconds
	return md
}

// CacheConfig controls the in-process result cache.
type CacheConfig struct {
	// SweepInterval is how often expired entries are removed. Zero disables
	// the sweep; expired entries are then dropped on lookup only.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"NLQ_CACHE_SWEEP_INTERVAL" env-default:"1m"`
}

// TokenizerConfig points at an optional YAML file of custom terms loaded into
// the shared dictionary at startup.
type TokenizerConfig struct {
	CustomTermsFile string `yaml:"custom_terms_file" env:"NLQ_CUSTOM_TERMS_FILE" env-default:""`
}

// DatasourceConfig declares one data source. Config is passed to the adapter
// factory registered for Type.
type DatasourceConfig struct {
	ID     string         `yaml:"id"`
	Name   string         `yaml:"name"`
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`

	// PasswordEnv names an environment variable holding the data source
	// password; it is copied into Config["password"] at load time.
	PasswordEnv string `yaml:"password_env"`

	// Relationships declared in addition to discovered foreign keys.
	Relationships []RelationshipConfig `yaml:"relationships"`
}

// RelationshipConfig declares a join between two tables.
type RelationshipConfig struct {
	SourceTable   string   `yaml:"source_table"`
	SourceColumns []string `yaml:"source_columns"`
	TargetTable   string   `yaml:"target_table"`
	TargetColumns []string `yaml:"target_columns"`
	Weight        float64  `yaml:"weight"`
	Frequency     int      `yaml:"frequency"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFrom("config.yaml", version)
}

// LoadFrom reads configuration from path with environment variable overrides.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.resolveSecrets()
	cfg.resolveDockerHosts(IsRunningInDocker())

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) resolveSecrets() {
	for i := range c.Datasources {
		ds := &c.Datasources[i]
		if ds.PasswordEnv == "" {
			continue
		}
		if ds.Config == nil {
			ds.Config = make(map[string]any)
		}
		ds.Config["password"] = os.Getenv(ds.PasswordEnv)
	}
}

func (c *Config) validate() error {
	if c.Pipeline.QueryTimeout <= 0 {
		return fmt.Errorf("pipeline.query_timeout must be positive, got %s", c.Pipeline.QueryTimeout)
	}
	if c.Pipeline.MaxRows <= 0 {
		return fmt.Errorf("pipeline.max_rows must be positive, got %d", c.Pipeline.MaxRows)
	}
	if c.Pipeline.CacheExpireSeconds <= 0 {
		return fmt.Errorf("pipeline.cache_expire_seconds must be positive, got %d", c.Pipeline.CacheExpireSeconds)
	}

	seen := make(map[string]bool, len(c.Datasources))
	for i, ds := range c.Datasources {
		if ds.ID == "" {
			return fmt.Errorf("datasources[%d]: id is required", i)
		}
		if ds.Type == "" {
			return fmt.Errorf("datasource %s: type is required", ds.ID)
		}
		if seen[ds.ID] {
			return fmt.Errorf("datasource %s: duplicate id", ds.ID)
		}
		seen[ds.ID] = true

		for j, rel := range ds.Relationships {
			if rel.SourceTable == "" || rel.TargetTable == "" {
				return fmt.Errorf("datasource %s: relationships[%d]: source_table and target_table are required", ds.ID, j)
			}
		}
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	// Both must be provided together or both empty
	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// If both provided, verify files exist (actual readability checked by tls.LoadX509KeyPair at startup)
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the Redis host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
