// Package llm provides the text-generation backends used to write and to
// score listings.
//
// A Generator is stateless from the caller's point of view: it renders no
// prompts, keeps no cache and never retries on its own. Retry and timeout
// policy are layered on with WithRetry and WithTimeout.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Generator accepts a rendered prompt and returns the model's raw text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Provider names a backend.
type Provider string

const (
	ProviderOllama     Provider = "ollama"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
	ProviderGemini     Provider = "gemini"
	ProviderStub       Provider = "stub"
)

// Config selects and tunes one backend instance.
type Config struct {
	Provider    Provider      `mapstructure:"provider" json:"provider"`
	Model       string        `mapstructure:"model" json:"model"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	APIKey      string        `mapstructure:"api_key" json:"-"`
	Temperature float64       `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	// Responses feeds the stub provider, returned in order.
	Responses []string `mapstructure:"responses" json:"responses,omitempty"`
}

// ErrMissingAPIKey is returned by New for keyed providers without a key.
var ErrMissingAPIKey = errors.New("API key required")

// TransportError reports that a backend did not produce an answer: the
// request failed, timed out, or the provider returned an error status.
type TransportError struct {
	Provider   Provider
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

func transportErr(p Provider, status int, err error) error {
	return &TransportError{Provider: p, StatusCode: status, Err: err}
}

// New builds the backend named by cfg.Provider.
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaClient(cfg), nil
	case ProviderOpenRouter, ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrMissingAPIKey)
		}
		return NewChatClient(cfg), nil
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrMissingAPIKey)
		}
		return NewGeminiClient(context.Background(), cfg)
	case ProviderStub:
		return NewStatic(cfg.Responses...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
