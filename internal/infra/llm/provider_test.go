package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeroBackoff(int) time.Duration { return 0 }

var analysisRequest = CompletionRequest{
	SystemPrompt: "You review code.",
	UserPrompt:   "Analyze the following 1 file(s).",
	MaxTokens:    512,
	Temperature:  0.1,
	JSONMode:     true,
}

func TestClaudeProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, claudeAPIVersion, r.Header.Get("anthropic-version"))

		var req claudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "You review code.", req.System)
		assert.Equal(t, 512, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(claudeResponse{
			Model:      "claude-test",
			StopReason: "end_turn",
			Content: []contentBlock{
				{Type: "text", Text: `{"main.go": `},
				{Type: "tool_use"},
				{Type: "text", Text: `[]}`},
			},
			Usage: claudeUsage{InputTokens: 100, OutputTokens: 50},
		})
	}))
	defer server.Close()

	p, err := NewClaudeProvider(ClaudeConfig{APIKey: "test-key", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), analysisRequest)
	require.NoError(t, err)
	assert.Equal(t, `{"main.go": []}`, resp.Content)
	assert.Equal(t, 150, resp.TotalTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)
}

func TestOpenAIProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		_ = json.NewEncoder(w).Encode(openAIResponse{
			Model: "gpt-test",
			Choices: []openAIChoice{{
				Message:      openAIMessage{Role: "assistant", Content: "{}"},
				FinishReason: "stop",
			}},
			Usage: openAIUsage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
		})
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), analysisRequest)
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Content)
	assert.Equal(t, 12, resp.TotalTokens)
}

func TestGeminiProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery, "the key must not be sent in the URL")
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		require.NotNil(t, req.SystemInstruction)

		_ = json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content:      &geminiContent{Parts: []geminiPart{{Text: "{"}, {Text: "}"}}},
				FinishReason: "STOP",
			}},
			UsageMetadata: &geminiUsageMetadata{PromptTokenCount: 7, CandidatesTokenCount: 3},
		})
	}))
	defer server.Close()

	p, err := NewGeminiProvider(GeminiConfig{APIKey: "test-key", Model: "gemini-test", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), analysisRequest)
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Content)
	assert.Equal(t, 10, resp.TotalTokens)
}

func TestProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{Message: openAIMessage{Content: "{}"}}},
		})
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL, MaxRetries: 3})
	require.NoError(t, err)
	p.http.backoff = zeroBackoff

	resp, err := p.Complete(context.Background(), analysisRequest)
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{name: "rate limited until retries run out", status: http.StatusTooManyRequests, wantErr: ErrRateLimited},
		{name: "server error until retries run out", status: http.StatusServiceUnavailable, wantErr: ErrServerError},
		{
			name:    "client error is not retried",
			status:  http.StatusBadRequest,
			body:    `{"error": {"type": "invalid_request_error", "message": "bad prompt"}}`,
			wantMsg: "claude API error: invalid_request_error - bad prompt",
		},
		{name: "unparsable body", status: http.StatusOK, body: `not json`, wantErr: ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p, err := NewClaudeProvider(ClaudeConfig{APIKey: "k", BaseURL: server.URL, MaxRetries: 2})
			require.NoError(t, err)
			p.http.backoff = zeroBackoff

			_, err = p.Complete(context.Background(), analysisRequest)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.EqualError(t, err, tt.wantMsg)
				assert.Equal(t, int32(1), calls.Load())
			}
		})
	}
}

func TestNewProviders_RequireKey(t *testing.T) {
	_, err := NewClaudeProvider(ClaudeConfig{})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
	_, err = NewOpenAIProvider(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
	_, err = NewGeminiProvider(GeminiConfig{})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestTransport_StopsOnCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL, MaxRetries: 5})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	p.http.backoff = func(int) time.Duration {
		cancel()
		return time.Hour
	}

	_, err = p.Complete(ctx, analysisRequest)
	assert.ErrorIs(t, err, context.Canceled)
}
