package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"nyayasetu-backend/config"
)

const openAIBatchLimit = 100

// OpenAIConfig holds configuration for the OpenAI embedder
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // optional, for OpenAI-compatible servers
	Model      string
	Dimensions int
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIEmbedder wraps the OpenAI embeddings API with retry logic
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

// NewOpenAIEmbedder creates an embedder; text-embedding-3 models honour Dimensions
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if config.IsPlaceholderKey(cfg.APIKey) {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrMissingAPIKey)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	e := &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.SmallEmbedding3,
		dimensions: 1536,
		timeout:    30 * time.Second,
		maxRetries: 3,
		retryDelay: 2 * time.Second,
	}
	if cfg.Model != "" {
		e.model = openai.EmbeddingModel(cfg.Model)
	}
	if cfg.Dimensions > 0 {
		e.dimensions = cfg.Dimensions
	}
	if cfg.Timeout > 0 {
		e.timeout = cfg.Timeout
	}
	if cfg.MaxRetries > 0 {
		e.maxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		e.retryDelay = cfg.RetryDelay
	}
	return e, nil
}

func (e *OpenAIEmbedder) Model() string {
	return fmt.Sprintf("openai/%s@%d", e.model, e.dimensions)
}

func (e *OpenAIEmbedder) Dimension() int { return e.dimensions }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += openAIBatchLimit {
		end := min(i+openAIBatchLimit, len(texts))
		vectors, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, calculateBackoff(e.retryDelay, attempt)); err != nil {
				return nil, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		resp, err := e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequestStrings{
			Input:      texts,
			Model:      e.model,
			Dimensions: e.dimensions,
		})
		cancel()

		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if len(resp.Data) != len(texts) {
			lastErr = fmt.Errorf("attempt %d: got %d embeddings for %d texts", attempt+1, len(resp.Data), len(texts))
			continue
		}

		vectors := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(texts) {
				return nil, fmt.Errorf("%w: embedding index %d out of range", ErrEmbeddingFailed, d.Index)
			}
			if len(d.Embedding) != e.dimensions {
				return nil, fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(d.Embedding), e.dimensions)
			}
			vectors[d.Index] = Normalize(d.Embedding)
		}
		return vectors, nil
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrEmbeddingFailed, e.maxRetries+1, lastErr)
}
