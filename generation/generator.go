// Package generation wraps the LLM providers used to compose answers
package generation

import (
	"context"
	"errors"
	"fmt"

	"nyayasetu-backend/config"
)

var (
	ErrGeneratorNotConfigured = errors.New("generator not configured")
	ErrEmptyCompletion        = errors.New("model returned empty content")
	ErrBlocked                = errors.New("model blocked the prompt")
)

// Request is a single system + user prompt exchange
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Generator produces a completion for a prompt
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Closer is implemented by generators that hold a client connection
type Closer interface {
	Close() error
}

// New builds the configured generator. It returns ErrGeneratorNotConfigured
// for the "none" provider or when the provider's key is a placeholder.
func New(ctx context.Context, cfg config.GenerationConfig) (Generator, error) {
	switch cfg.Provider {
	case "none", "":
		return nil, ErrGeneratorNotConfigured
	case "gemini":
		if config.IsPlaceholderKey(cfg.GeminiAPIKey) {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY missing or placeholder", ErrGeneratorNotConfigured)
		}
		return NewGeminiGenerator(ctx, cfg.GeminiAPIKey, GeminiWithModel(cfg.Model))
	case "openai":
		if config.IsPlaceholderKey(cfg.OpenAIAPIKey) {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY missing or placeholder", ErrGeneratorNotConfigured)
		}
		return NewOpenAIGenerator(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrGeneratorNotConfigured, cfg.Provider)
	}
}
