// Package llm provides the analysis service clients used to review source
// batches. Each provider speaks its vendor's chat completion API.
package llm

import (
	"context"
	"errors"
)

// Provider is one analysis service backend.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
	Model() string
	Validate() error
}

// CompletionRequest is a single instruction plus user prompt exchange.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64

	// JSONMode asks the backend to answer with a JSON document only.
	JSONMode bool

	// Metadata is carried for tracing and test routing; it is not sent.
	Metadata map[string]string
}

// CompletionResponse is the text answer and its token accounting.
type CompletionResponse struct {
	Content string
	Model   string // as reported by the backend

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	FinishReason     string
}

// ProviderType names a supported backend.
type ProviderType string

const (
	ProviderTypeClaude ProviderType = "claude"
	ProviderTypeOpenAI ProviderType = "openai"
	ProviderTypeGemini ProviderType = "gemini"
)

// IsValid reports whether p is a supported backend.
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderTypeClaude, ProviderTypeOpenAI, ProviderTypeGemini:
		return true
	}
	return false
}

var (
	ErrProviderNotConfigured = errors.New("analysis provider not configured")
	ErrInvalidProvider       = errors.New("unknown analysis provider")
	ErrRateLimited           = errors.New("analysis service rate limited")
	ErrServerError           = errors.New("analysis service error")
	ErrInvalidResponse       = errors.New("invalid analysis service response")
)
