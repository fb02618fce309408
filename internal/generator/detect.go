package generator

import (
	"context"
	"strings"
	"time"
)

// Config selects and configures a generator.
type Config struct {
	// Provider is "gemini" (search-capable) or one of the chat-only
	// providers listed by Providers.
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// Providers lists the accepted provider names.
func Providers() []string {
	return []string{"gemini", "openai", "anthropic", "gemini-chat", "ollama", "deepseek", "mistral", "groq"}
}

// keylessProviders run locally and need no API key.
var keylessProviders = map[string]bool{"ollama": true}

// New builds the generator named by cfg.Provider, wrapped in the rate-limit
// retry decorator. It returns ErrNoCredentials when the provider needs a
// key and none is set.
func New(ctx context.Context, cfg Config) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "gemini"
	}
	if cfg.APIKey == "" && !keylessProviders[provider] {
		return nil, ErrNoCredentials
	}

	if provider == "gemini" {
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return NewRetrying(g), nil
	}

	a, err := NewAnyLLM(AnyLLMConfig{
		Provider: provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return NewRetrying(a), nil
}
