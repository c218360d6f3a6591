package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUDITFLOW_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "auditflow", cfg.App.Name)
	assert.Equal(t, 100_000, cfg.Scan.BatchBudget)
	assert.Equal(t, 10, cfg.Scan.MinContentLen)
	assert.Equal(t, 60*time.Second, cfg.Scan.SummaryTTL)
	assert.Equal(t, "@every 5m", cfg.Worker.RecoverySchedule)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SCAN_BATCH_BUDGET=5000\nANALYSIS_PROVIDER=claude\n"), 0o600))
	t.Setenv("AUDITFLOW_ENV_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Scan.BatchBudget)
	assert.Equal(t, "claude", cfg.Analysis.Provider)

	os.Unsetenv("SCAN_BATCH_BUDGET")
	os.Unsetenv("ANALYSIS_PROVIDER")
}

func TestAnalysisConfig_IsConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  AnalysisConfig
		want bool
	}{
		{"openai with key", AnalysisConfig{Provider: "openai", OpenAIAPIKey: "k"}, true},
		{"openai without key", AnalysisConfig{Provider: "openai", AnthropicAPIKey: "k"}, false},
		{"claude with key", AnalysisConfig{Provider: "claude", AnthropicAPIKey: "k"}, true},
		{"gemini with key", AnalysisConfig{Provider: "GEMINI", GeminiAPIKey: "k"}, true},
		{"nothing", AnalysisConfig{Provider: "openai"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.IsConfigured())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:      AppConfig{Env: "development"},
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Host: "localhost", SSLMode: "disable"},
			Log:      LogConfig{Level: "info", Format: "json", SamplingRate: 0.1, ErrorSamplingRate: 1},
			Worker:   WorkerConfig{Concurrency: 1},
			Analysis: AnalysisConfig{Provider: "openai"},
			Scan:     ScanConfig{BatchBudget: 100, MinContentLen: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"zero budget", func(c *Config) { c.Scan.BatchBudget = 0 }, "SCAN_BATCH_BUDGET"},
		{"unknown provider", func(c *Config) { c.Analysis.Provider = "llama" }, "ANALYSIS_PROVIDER"},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "AUTH_JWT_SECRET"},
		{"recovery before task timeout", func(c *Config) {
			c.Worker.RecoveryEnabled = true
			c.Worker.TaskTimeout = 30 * time.Minute
			c.Worker.StuckAfter = 10 * time.Minute
		}, "SCAN_RECOVERY_STUCK_AFTER"},
		{"recovery equal to task timeout", func(c *Config) {
			c.Worker.RecoveryEnabled = true
			c.Worker.TaskTimeout = time.Hour
			c.Worker.StuckAfter = time.Hour
		}, "WORKER_TASK_TIMEOUT"},
		{"recovery after task timeout", func(c *Config) {
			c.Worker.RecoveryEnabled = true
			c.Worker.TaskTimeout = 30 * time.Minute
			c.Worker.StuckAfter = time.Hour
		}, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "LOG_LEVEL"},
		{"production without secret", func(c *Config) { c.App.Env = EnvProduction }, "AUTH_JWT_SECRET is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
