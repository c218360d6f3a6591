package llm

import (
	"fmt"
	"strings"

	"github.com/auditflow/api/internal/config"
)

// NewProvider builds the provider selected by cfg. It returns a nil
// provider and no error when no credential is configured; callers treat
// that as analysis being disabled.
func NewProvider(cfg config.AnalysisConfig) (Provider, error) {
	if !cfg.IsConfigured() {
		return nil, nil
	}

	switch ProviderType(strings.ToLower(cfg.Provider)) {
	case ProviderTypeClaude, "":
		p, err := NewClaudeProvider(ClaudeConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case ProviderTypeOpenAI:
		p, err := NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	case ProviderTypeGemini:
		p, err := NewGeminiProvider(GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("%w: unknown provider: %s", ErrInvalidProvider, cfg.Provider)
	}
}
