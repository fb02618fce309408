package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// AnyLLM generates text through any-llm-go's chat completion providers.
// None of them expose search grounding, so WebSearch requests fail with
// ErrSearchUnsupported and callers fall through to recall strategies.
type AnyLLM struct {
	backend  anyllmlib.Provider
	provider string
	model    string
	timeout  time.Duration
}

// AnyLLMConfig configures NewAnyLLM.
type AnyLLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewAnyLLM creates a chat-completion generator for the named provider.
func NewAnyLLM(cfg AnyLLMConfig) (*AnyLLM, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("generator: model must not be empty for provider %q", cfg.Provider)
	}
	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	backend, err := createBackend(cfg.Provider, opts...)
	if err != nil {
		return nil, fmt.Errorf("generator: create %q backend: %w", cfg.Provider, err)
	}
	return &AnyLLM{
		backend:  backend,
		provider: strings.ToLower(cfg.Provider),
		model:    cfg.Model,
		timeout:  cfg.Timeout,
	}, nil
}

func createBackend(provider string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(provider) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini-chat":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: %s", provider, strings.Join(Providers(), ", "))
	}
}

func (a *AnyLLM) Name() string { return a.provider + "/" + a.model }

func (a *AnyLLM) SupportsWebSearch() bool { return false }

func (a *AnyLLM) Generate(ctx context.Context, req Request) (Response, error) {
	if req.WebSearch {
		return Response{}, ErrSearchUnsupported
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.backend.Completion(ctx, buildParams(a.model, req))
	if err != nil {
		return Response{}, fmt.Errorf("%s completion: %w", a.provider, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, ErrEmptyResponse
	}
	text := StripFences(resp.Choices[0].Message.ContentString())
	if text == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{Text: text}, nil
}

func buildParams(model string, req Request) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{
		Model: model,
		Messages: []anyllmlib.Message{
			{Role: "user", Content: req.Prompt},
		},
	}
	temp := float64(req.Temperature)
	params.Temperature = &temp
	if req.MaxOutputTokens > 0 {
		mt := req.MaxOutputTokens
		params.MaxTokens = &mt
	}
	return params
}
