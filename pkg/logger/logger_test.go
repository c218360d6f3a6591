package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("provider configured", "api_key", "sk-123", "gitlab_token", "glpat", "model", "gpt-4o")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["api_key"])
	assert.Equal(t, "[REDACTED]", lines[0]["gitlab_token"])
	assert.Equal(t, "gpt-4o", lines[0]["model"])
}

func TestLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := context.WithValue(context.Background(), ContextKeyRequestID, "req-1")
	ctx = context.WithValue(ctx, ContextKeyScanID, "scan-1")
	log.WithContext(ctx).Info("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, "scan-1", lines[0]["scan_id"])
	assert.NotContains(t, lines[0], "user_id")
}

func TestLogger_FromContext(t *testing.T) {
	log := NewNop()
	ctx := ToContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"WARN", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in).String())
		})
	}
}

func TestSamplingHandler(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
		Sampling: SamplingConfig{
			Enabled:   true,
			Threshold: 3,
			Rate:      0,
			ErrorRate: 1,
		},
	})

	for i := 0; i < 10; i++ {
		log.Info("file skipped")
	}
	for i := 0; i < 5; i++ {
		log.Warn("batch dropped")
	}

	lines := decodeLines(t, &buf)
	var infos, warns int
	for _, l := range lines {
		switch l["msg"] {
		case "file skipped":
			infos++
		case "batch dropped":
			warns++
		}
	}
	assert.Equal(t, 3, infos)
	assert.Equal(t, 5, warns)
}
