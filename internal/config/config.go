package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Worker    WorkerConfig
	Analysis  AnalysisConfig
	Scan      ScanConfig
	GitLab    GitLabConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Tracing   TracingConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	MaxBodySize     int64
	AllowedOrigins  []string // CORS and websocket origins; empty allows any
}

// RateLimitConfig holds per-client HTTP rate limiting configuration.
type RateLimitConfig struct {
	Enabled         bool
	RequestsPerSec  float64
	Burst           int
	CleanupInterval time.Duration
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxRetries    int
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string

	SamplingEnabled   bool
	SamplingThreshold int
	SamplingRate      float64
	ErrorSamplingRate float64
}

// WorkerConfig holds the scan worker configuration.
type WorkerConfig struct {
	Concurrency int           // asynq server concurrency
	TaskTimeout time.Duration // per scan task deadline

	RecoveryEnabled  bool
	RecoverySchedule string        // cron spec
	StuckAfter       time.Duration // non-terminal scans older than this are failed
	RecoveryBatch    int
}

// AnalysisConfig holds the analysis service (LLM provider) configuration.
type AnalysisConfig struct {
	Provider        string // claude, openai, gemini
	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GeminiAPIKey    string
	BaseURL         string // override, mainly for self-hosted gateways
	Timeout         time.Duration
	MaxTokens       int
	Temperature     float64
	RateLimitRPS    float64 // 0 disables throttling
	RateLimitBurst  int
}

// IsConfigured returns true when a credential is present for the selected provider.
func (c *AnalysisConfig) IsConfigured() bool {
	return c.APIKey() != ""
}

// APIKey returns the credential for the selected provider.
func (c *AnalysisConfig) APIKey() string {
	switch strings.ToLower(c.Provider) {
	case "openai":
		return c.OpenAIAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return c.AnthropicAPIKey
	}
}

// ScanConfig holds change detection and batching configuration.
type ScanConfig struct {
	WorkDir        string
	BatchBudget    int
	MinContentLen  int
	Extensions     []string
	IgnoreGlobs    []string
	ArchiveEnabled bool
	SummaryTTL     time.Duration
}

// GitLabConfig holds the source code host configuration.
type GitLabConfig struct {
	BaseURL      string
	Token        string
	CloneDepth   int
	CloneTimeout time.Duration
}

// StorageConfig holds S3-compatible artifact storage configuration.
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // MinIO or other S3-compatible endpoint
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	RoleARN         string // assumed through STS when set
	ExternalID      string
}

// IsConfigured returns true when a bucket is set.
func (c *StorageConfig) IsConfigured() bool {
	return c.Bucket != ""
}

// AuthConfig holds bearer token verification configuration.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// TracingConfig holds OpenTelemetry exporter configuration.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// Load reads an optional .env file, then builds the configuration from
// environment variables and validates it.
func Load() (*Config, error) {
	envFile := getEnv("AUDITFLOW_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "auditflow"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 1<<20),
			AllowedOrigins:  getEnvSlice("SERVER_ALLOWED_ORIGINS", nil),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSec:  getEnvFloat("RATE_LIMIT_RPS", 20),
			Burst:           getEnvInt("RATE_LIMIT_BURST", 40),
			CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP", time.Minute),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "auditflow"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "auditflow"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
			MinRetryDelay: getEnvDuration("REDIS_MIN_RETRY_DELAY", 100*time.Millisecond),
			MaxRetryDelay: getEnvDuration("REDIS_MAX_RETRY_DELAY", 3*time.Second),
		},
		Log: LogConfig{
			Level:             getEnv("LOG_LEVEL", "info"),
			Format:            getEnv("LOG_FORMAT", "json"),
			SamplingEnabled:   getEnvBool("LOG_SAMPLING_ENABLED", false),
			SamplingThreshold: getEnvInt("LOG_SAMPLING_THRESHOLD", 100),
			SamplingRate:      getEnvFloat("LOG_SAMPLING_RATE", 0.1),
			ErrorSamplingRate: getEnvFloat("LOG_ERROR_SAMPLING_RATE", 1.0),
		},
		Worker: WorkerConfig{
			Concurrency:      getEnvInt("WORKER_CONCURRENCY", 4),
			TaskTimeout:      getEnvDuration("WORKER_TASK_TIMEOUT", 30*time.Minute),
			RecoveryEnabled:  getEnvBool("SCAN_RECOVERY_ENABLED", true),
			RecoverySchedule: getEnv("SCAN_RECOVERY_SCHEDULE", "@every 5m"),
			StuckAfter:       getEnvDuration("SCAN_RECOVERY_STUCK_AFTER", time.Hour),
			RecoveryBatch:    getEnvInt("SCAN_RECOVERY_BATCH_SIZE", 50),
		},
		Analysis: AnalysisConfig{
			Provider:        getEnv("ANALYSIS_PROVIDER", "openai"),
			Model:           getEnv("ANALYSIS_MODEL", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			BaseURL:         getEnv("ANALYSIS_BASE_URL", ""),
			Timeout:         getEnvDuration("ANALYSIS_TIMEOUT", 120*time.Second),
			MaxTokens:       getEnvInt("ANALYSIS_MAX_TOKENS", 4096),
			Temperature:     getEnvFloat("ANALYSIS_TEMPERATURE", 0.1),
			RateLimitRPS:    getEnvFloat("ANALYSIS_RATE_LIMIT_RPS", 0),
			RateLimitBurst:  getEnvInt("ANALYSIS_RATE_LIMIT_BURST", 1),
		},
		Scan: ScanConfig{
			WorkDir:        getEnv("SCAN_WORKDIR", os.TempDir()),
			BatchBudget:    getEnvInt("SCAN_BATCH_BUDGET", 100_000),
			MinContentLen:  getEnvInt("SCAN_MIN_CONTENT_LEN", 10),
			Extensions:     getEnvSlice("SCAN_EXTENSIONS", nil),
			IgnoreGlobs:    getEnvSlice("SCAN_IGNORE_GLOBS", nil),
			ArchiveEnabled: getEnvBool("SCAN_ARCHIVE_ENABLED", true),
			SummaryTTL:     getEnvDuration("SCAN_SUMMARY_CACHE_TTL", 60*time.Second),
		},
		GitLab: GitLabConfig{
			BaseURL:      getEnv("GITLAB_BASE_URL", "https://gitlab.com"),
			Token:        getEnv("GITLAB_TOKEN", ""),
			CloneDepth:   getEnvInt("GITLAB_CLONE_DEPTH", 1),
			CloneTimeout: getEnvDuration("GITLAB_CLONE_TIMEOUT", 5*time.Minute),
		},
		Storage: StorageConfig{
			Bucket:          getEnv("STORAGE_BUCKET", ""),
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
			Endpoint:        getEnv("STORAGE_ENDPOINT", ""),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("STORAGE_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("STORAGE_USE_PATH_STYLE", false),
			RoleARN:         getEnv("STORAGE_ROLE_ARN", ""),
			ExternalID:      getEnv("STORAGE_EXTERNAL_ID", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer: getEnv("AUTH_JWT_ISSUER", ""),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateBasic(); err != nil {
		return err
	}
	if c.App.Env == EnvProduction {
		return c.validateProduction()
	}
	return nil
}

// validateBasic validates configuration regardless of environment.
func (c *Config) validateBasic() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Scan.BatchBudget <= 0 {
		return fmt.Errorf("SCAN_BATCH_BUDGET must be positive, got %d", c.Scan.BatchBudget)
	}
	if c.Scan.MinContentLen < 0 {
		return fmt.Errorf("SCAN_MIN_CONTENT_LEN must be non-negative, got %d", c.Scan.MinContentLen)
	}
	switch strings.ToLower(c.Analysis.Provider) {
	case "claude", "openai", "gemini":
	default:
		return fmt.Errorf("invalid ANALYSIS_PROVIDER: %s (must be claude, openai or gemini)", c.Analysis.Provider)
	}
	if c.Analysis.RateLimitRPS < 0 {
		return fmt.Errorf("ANALYSIS_RATE_LIMIT_RPS must be non-negative")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSec <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	// Recovery must never fail a scan whose task can still be running.
	if c.Worker.RecoveryEnabled && c.Worker.StuckAfter <= c.Worker.TaskTimeout {
		return fmt.Errorf("SCAN_RECOVERY_STUCK_AFTER (%s) must exceed WORKER_TASK_TIMEOUT (%s)",
			c.Worker.StuckAfter, c.Worker.TaskTimeout)
	}
	return c.validateLog()
}

// validateLog validates logging configuration.
func (c *Config) validateLog() error {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}

	if c.Log.SamplingRate < 0.0 || c.Log.SamplingRate > 1.0 {
		return fmt.Errorf("LOG_SAMPLING_RATE must be between 0.0 and 1.0, got %f", c.Log.SamplingRate)
	}
	if c.Log.ErrorSamplingRate < 0.0 || c.Log.ErrorSamplingRate > 1.0 {
		return fmt.Errorf("LOG_ERROR_SAMPLING_RATE must be between 0.0 and 1.0, got %f", c.Log.ErrorSamplingRate)
	}
	if c.Log.SamplingThreshold < 0 {
		return fmt.Errorf("LOG_SAMPLING_THRESHOLD must be non-negative, got %d", c.Log.SamplingThreshold)
	}
	return nil
}

// validateProduction validates production-specific configuration.
func (c *Config) validateProduction() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("database SSL must be enabled in production (use 'require' or 'verify-full')")
	}
	if c.Redis.Password == "" {
		return fmt.Errorf("redis password must be set in production")
	}
	if c.App.Debug {
		return fmt.Errorf("debug mode must be disabled in production")
	}
	if strings.EqualFold(c.Log.Level, "debug") {
		return fmt.Errorf("log level should not be 'debug' in production")
	}
	return nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP server address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if the application is in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, p := range strings.Split(value, ",") {
			if v := strings.TrimSpace(p); v != "" {
				result = append(result, v)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
