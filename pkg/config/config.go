package config

import (
	"fmt"
	"math"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for benchlane-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis cache configuration (queues, circuit breakers, rate limits)
	Redis RedisConfig `yaml:"redis"`

	// Search configuration (hybrid index)
	Search SearchConfig `yaml:"search"`

	// Matching engine configuration
	Match MatchConfig `yaml:"match"`

	// Queue configuration
	Queue QueueConfig `yaml:"queue"`

	// PII tokenisation configuration
	PII PIIConfig `yaml:"pii"`

	// Blob storage configuration (S3-compatible)
	Blob BlobConfig `yaml:"blob"`

	// Embedding collaborator configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Summariser collaborator configuration
	Summariser SummariserConfig `yaml:"summariser"`

	// IMAP ingestion adapter configuration
	IMAP IMAPConfig `yaml:"imap"`

	// Evaluation configuration
	Eval EvalConfig `yaml:"eval"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"benchlane"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"benchlane_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// SearchConfig holds hybrid search index configuration.
// VectorWeight and LexicalWeight must sum to 1.
type SearchConfig struct {
	VectorWeight  float64 `yaml:"vector_weight" env:"SEARCH_VECTOR_WEIGHT" env-default:"0.6"`
	LexicalWeight float64 `yaml:"lexical_weight" env:"SEARCH_LEXICAL_WEIGHT" env-default:"0.4"`
	MaxResults    int     `yaml:"max_results" env:"SEARCH_MAX_RESULTS" env-default:"100"`
}

// MatchConfig holds matching engine configuration.
type MatchConfig struct {
	BaseWeight   float64 `yaml:"base_weight" env:"MATCH_BASE_WEIGHT" env-default:"0.2"`
	EnableLLM    bool    `yaml:"enable_llm" env:"MATCH_ENABLE_LLM" env-default:"false"`
	LLMWeight    float64 `yaml:"llm_weight" env:"MATCH_LLM_WEIGHT" env-default:"0.2"`
	LinearWeight float64 `yaml:"linear_weight" env:"MATCH_LINEAR_WEIGHT" env-default:"0.35"`
	TopN         int     `yaml:"top_n" env:"MATCH_TOP_N" env-default:"10"`
}

// QueueConfig holds work queue configuration shared by all logical queues.
type QueueConfig struct {
	Concurrency     int           `yaml:"concurrency" env:"QUEUE_CONCURRENCY" env-default:"4"`
	Attempts        int           `yaml:"attempts" env:"QUEUE_ATTEMPTS" env-default:"3"`
	BackoffBase     time.Duration `yaml:"backoff_base" env:"QUEUE_BACKOFF_BASE" env-default:"5s"`
	HighWaterMark   int64         `yaml:"high_water_mark" env:"QUEUE_HIGH_WATER_MARK" env-default:"10000"`
	PollInterval    time.Duration `yaml:"poll_interval" env:"QUEUE_POLL_INTERVAL" env-default:"250ms"`
	JobSoftDeadline time.Duration `yaml:"job_soft_deadline" env:"QUEUE_JOB_SOFT_DEADLINE" env-default:"5m"`
}

// PIIConfig holds PII tokenisation configuration.
type PIIConfig struct {
	TokenSecret string `yaml:"-" env:"PII_TOKEN_SECRET"` // Secret - not in YAML
	TokenPrefix string `yaml:"token_prefix" env:"PII_TOKEN_PREFIX" env-default:"pii"`
}

// BlobConfig holds S3-compatible blob storage configuration.
type BlobConfig struct {
	Endpoint        string        `yaml:"endpoint" env:"BLOB_ENDPOINT" env-default:""`
	Region          string        `yaml:"region" env:"BLOB_REGION" env-default:"us-east-1"`
	Bucket          string        `yaml:"bucket" env:"BLOB_BUCKET" env-default:"benchlane-documents"`
	AccessKeyID     string        `yaml:"-" env:"BLOB_ACCESS_KEY_ID"`     // Secret - not in YAML
	SecretAccessKey string        `yaml:"-" env:"BLOB_SECRET_ACCESS_KEY"` // Secret - not in YAML
	SignedURLTTL    time.Duration `yaml:"signed_url_ttl" env:"BLOB_SIGNED_URL_TTL" env-default:"900s"`
	ForcePathStyle  bool          `yaml:"force_path_style" env:"BLOB_FORCE_PATH_STYLE" env-default:"true"`
}

// EmbeddingConfig holds embedding collaborator configuration.
// When Enabled is false, indexing falls back to zero vectors.
type EmbeddingConfig struct {
	Enabled    bool   `yaml:"enabled" env:"EMBEDDING_ENABLED" env-default:"false"`
	BaseURL    string `yaml:"base_url" env:"EMBEDDING_BASE_URL" env-default:""`
	APIKey     string `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
	Model      string `yaml:"model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-large"`
	Dimensions int    `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS" env-default:"3072"`
}

// SummariserConfig holds LLM summariser collaborator configuration.
// Provider "rules" is the deterministic default; "anthropic" calls Claude.
type SummariserConfig struct {
	Provider string `yaml:"provider" env:"SUMMARISER_PROVIDER" env-default:"rules"`
	APIKey   string `yaml:"-" env:"SUMMARISER_API_KEY"` // Secret - not in YAML
	Model    string `yaml:"model" env:"SUMMARISER_MODEL" env-default:"claude-3-5-haiku-latest"`
}

// IMAPConfig holds the email-driven ingestion adapter configuration.
type IMAPConfig struct {
	Enabled             bool          `yaml:"enabled" env:"IMAP_ENABLED" env-default:"false"`
	Host                string        `yaml:"host" env:"IMAP_HOST" env-default:""`
	Port                int           `yaml:"port" env:"IMAP_PORT" env-default:"993"`
	TLS                 bool          `yaml:"tls" env:"IMAP_TLS" env-default:"true"`
	Username            string        `yaml:"username" env:"IMAP_USERNAME" env-default:""`
	Password            string        `yaml:"-" env:"IMAP_PASSWORD"` // Secret - not in YAML
	Mailbox             string        `yaml:"mailbox" env:"IMAP_MAILBOX" env-default:"INBOX"`
	TenantID            string        `yaml:"tenant_id" env:"IMAP_TENANT_ID" env-default:""`
	PollInterval        time.Duration `yaml:"poll_interval" env:"IMAP_POLL_INTERVAL" env-default:"60s"`
	AttachmentWhitelist []string      `yaml:"attachment_whitelist" env:"IMAP_ATTACHMENT_WHITELIST" env-separator:"," env-default:"application/pdf,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document,text/plain"`
}

// EvalConfig holds evaluation snapshot configuration.
type EvalConfig struct {
	K                 int     `yaml:"k" env:"EVAL_K" env-default:"10"`
	HitThreshold      float64 `yaml:"hit_threshold" env:"EVAL_HIT_THRESHOLD" env-default:"1"`
	OnlineWindowHours int     `yaml:"online_window_hours" env:"EVAL_ONLINE_WINDOW_HOURS" env-default:"24"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints that cleanenv cannot express.
func (c *Config) Validate() error {
	if sum := c.Search.VectorWeight + c.Search.LexicalWeight; math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("search weights must sum to 1, got %.4f", sum)
	}
	if c.Search.VectorWeight < 0 || c.Search.LexicalWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue concurrency must be at least 1, got %d", c.Queue.Concurrency)
	}
	if c.Queue.Attempts < 1 {
		return fmt.Errorf("queue attempts must be at least 1, got %d", c.Queue.Attempts)
	}
	if c.Match.TopN < 1 {
		return fmt.Errorf("match top_n must be at least 1, got %d", c.Match.TopN)
	}
	return nil
}
