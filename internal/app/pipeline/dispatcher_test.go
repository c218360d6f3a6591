package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/internal/infra/llm"
	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/logger"
)

func oneFileBatch(path string) Batch {
	f := SourceFile{Path: path, Content: "package x\n\nvar password = \"hunter2\"\n"}
	return Batch{Files: []SourceFile{f}, TotalBytes: f.Size()}
}

func responseFor(path string) string {
	return fmt.Sprintf(`{%q: [{
		"type": "hardcoded_secret",
		"category": "security",
		"severity": "critical",
		"description": "Hardcoded password",
		"recommendation": "Load it from a secret store",
		"location": {"line": 3}
	}]}`, path)
}

func TestDispatcher_NoProviderIsNoop(t *testing.T) {
	d := NewDispatcher(nil, logger.NewNop())
	out := d.Analyze(context.Background(), []Batch{oneFileBatch("a.go")})
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.False(t, d.Enabled())
}

func TestNewDispatcherFromConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.AnalysisConfig
		wantErr     bool
		wantEnabled bool
		wantBurst   int
	}{
		{
			name: "no credential",
			cfg:  config.AnalysisConfig{Provider: "claude", MaxTokens: 1024},
		},
		{
			name:        "openai with throttling",
			cfg:         config.AnalysisConfig{Provider: "openai", OpenAIAPIKey: "sk-test", MaxTokens: 2048, Temperature: 0.2, RateLimitRPS: 2},
			wantEnabled: true,
			wantBurst:   1,
		},
		{
			name:        "gemini with burst",
			cfg:         config.AnalysisConfig{Provider: "gemini", GeminiAPIKey: "g-test", RateLimitRPS: 5, RateLimitBurst: 3},
			wantEnabled: true,
			wantBurst:   3,
		},
		{
			name:    "unknown provider",
			cfg:     config.AnalysisConfig{Provider: "llama", AnthropicAPIKey: "k"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDispatcherFromConfig(&tt.cfg, logger.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, llm.ErrInvalidProvider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnabled, d.Enabled())
			assert.Equal(t, tt.cfg.MaxTokens, d.maxTokens)
			assert.Equal(t, tt.cfg.Temperature, d.temperature)
			if tt.wantBurst == 0 {
				assert.Nil(t, d.limiter)
				return
			}
			require.NotNil(t, d.limiter)
			assert.Equal(t, tt.wantBurst, d.limiter.Burst())
		})
	}
}

func TestDispatcher_OneOfThreeBatchesFails(t *testing.T) {
	provider := &fakeProvider{respond: func(req llm.CompletionRequest) (string, error) {
		assert.True(t, req.JSONMode)
		switch req.Metadata["batch"] {
		case "1":
			return "", errServiceDown
		case "0":
			return responseFor("a.go"), nil
		default:
			return responseFor("c.go"), nil
		}
	}}
	d := NewDispatcher(provider, logger.NewNop())

	out := d.Analyze(context.Background(), []Batch{oneFileBatch("a.go"), oneFileBatch("b.go"), oneFileBatch("c.go")})

	require.Len(t, out, 3)
	assert.Equal(t, 3, provider.calls)

	var errs, locations []string
	for _, r := range out {
		if r.Type == finding.TypeAnalysisError {
			errs = append(errs, r.Description)
			assert.Equal(t, finding.SeverityHigh, r.Severity)
			assert.Equal(t, string(finding.CategoryQuality), r.Category)
			assert.Equal(t, finding.LocationAnalysisStep, r.Location)
			continue
		}
		locations = append(locations, r.Location)
	}
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "service unavailable")
	assert.ElementsMatch(t, []string{"a.go", "c.go"}, locations)
}

func TestDispatcher_ParsesFindings(t *testing.T) {
	provider := &fakeProvider{respond: func(llm.CompletionRequest) (string, error) {
		return "```json\n" + responseFor("a.go") + "\n```", nil
	}}
	out := NewDispatcher(provider, logger.NewNop()).Analyze(context.Background(), []Batch{oneFileBatch("a.go")})

	require.Len(t, out, 1)
	assert.Equal(t, finding.Raw{
		Type:           "hardcoded_secret",
		Category:       "security",
		Severity:       finding.SeverityCritical,
		Description:    "Hardcoded password",
		Recommendation: "Load it from a secret store",
		Location:       "a.go",
		Line:           3,
	}, out[0])
}

func TestDispatcher_DropsMalformedFindings(t *testing.T) {
	body := `{
		"a.go": [
			{"type": "x", "category": "quality", "severity": "low", "description": "ok", "recommendation": "r", "location": {"line": 1}},
			{"type": "x", "category": "quality", "severity": "low", "description": "no recommendation", "location": {"line": 1}},
			{"type": "x", "category": "quality", "severity": "low", "description": "no line", "recommendation": "r", "location": {}},
			{"type": "x", "category": "quality", "severity": "low", "description": "string line", "recommendation": "r", "location": {"line": "7"}},
			"not an object"
		],
		"b.go": "not an array"
	}`
	provider := &fakeProvider{respond: func(llm.CompletionRequest) (string, error) { return body, nil }}

	out := NewDispatcher(provider, logger.NewNop()).Analyze(context.Background(), []Batch{oneFileBatch("a.go")})

	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].Description)
}

func TestDispatcher_UnparsableResponseIsAnalysisError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "I could not analyze this"},
		{"array instead of object", `[{"type": "x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{respond: func(llm.CompletionRequest) (string, error) { return tt.body, nil }}
			out := NewDispatcher(provider, logger.NewNop()).Analyze(context.Background(), []Batch{oneFileBatch("a.go")})

			require.Len(t, out, 1)
			assert.Equal(t, finding.TypeAnalysisError, out[0].Type)
			assert.Contains(t, out[0].Description, "malformed analysis response")
		})
	}
}

func TestDispatcher_RateLimited(t *testing.T) {
	provider := &fakeProvider{respond: func(llm.CompletionRequest) (string, error) { return `{}`, nil }}
	d := NewDispatcher(provider, logger.NewNop(), WithRateLimiter(rate.NewLimiter(rate.Inf, 1)))

	out := d.Analyze(context.Background(), []Batch{oneFileBatch("a.go"), oneFileBatch("b.go")})
	assert.Empty(t, out)
	assert.Equal(t, 2, provider.calls)
}

func TestDispatcher_PromptEmbedsFiles(t *testing.T) {
	var prompt string
	provider := &fakeProvider{respond: func(req llm.CompletionRequest) (string, error) {
		prompt = req.UserPrompt
		return `{}`, nil
	}}
	b := Batch{Files: []SourceFile{{Path: "a.go", Content: "AAA"}, {Path: "dir/b.py", Content: "BBB\n"}}, TotalBytes: 7}
	NewDispatcher(provider, logger.NewNop()).Analyze(context.Background(), []Batch{b})

	assert.Contains(t, prompt, "=== FILE: a.go ===\nAAA\n=== END FILE ===")
	assert.Contains(t, prompt, "=== FILE: dir/b.py ===\nBBB\n=== END FILE ===")
	assert.True(t, strings.HasPrefix(prompt, "Analyze the following 2 file(s)."))
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  plain  ", "plain"},
		{"zero\u200bwidth", "zerowidth"},
		{"bidi\u202eoverride", "bidioverride"},
		{"\uff46\uff55\uff4c\uff4c", "full"},
		{"keeps\nnewlines", "keeps\nnewlines"},
		{"bell\a", "bell"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeText(tt.in))
		})
	}
}
