// Package embedding turns chunk and query text into dense vectors.
//
// Backends are selected explicitly by configuration: Gemini and OpenAI call
// remote APIs, TF-IDF runs in process with no network, and hugot runs a local
// ONNX sentence transformer.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"nyayasetu-backend/config"
)

var (
	ErrEmbeddingFailed   = errors.New("embedding generation failed")
	ErrNotPrepared       = errors.New("embedder not prepared")
	ErrMissingAPIKey     = errors.New("embedding API key not configured")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder produces fixed-dimension vectors. Model identifies the model and
// its parameters; vectors from two embedders are comparable only when their
// Model strings are equal.
type Embedder interface {
	Model() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder is implemented by backends that embed queries differently
// from documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Preparer is implemented by backends that must be fitted on the corpus.
// Prepare returns a new fitted embedder and leaves the receiver untouched.
type Preparer interface {
	Prepare(corpus []string) (Embedder, error)
}

// EmbedQuery embeds a single query with the query task when supported
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if qe, ok := e.(QueryEmbedder); ok {
		return qe.EmbedQuery(ctx, text)
	}
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one query", ErrEmbeddingFailed, len(vectors))
	}
	return vectors[0], nil
}

// New builds the embedder named by cfg.Provider
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiEmbedder(cfg.GeminiAPIKey,
			GeminiWithModel(cfg.Model),
			GeminiWithDimensions(cfg.Dimensions),
			GeminiWithTimeout(cfg.Timeout),
		)
	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	case "tfidf":
		return NewTFIDFEmbedder(TFIDFWithMaxTerms(cfg.Dimensions)), nil
	case "hugot":
		return NewHugotEmbedder(cfg.Model, cfg.ModelDir)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// Normalize scales v to unit length in place and returns it
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// calculateBackoff returns exponential backoff with up to 25% jitter, capped at 30s
func calculateBackoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := base * time.Duration(1<<uint(attempt-1))
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	if half := int64(backoff) / 2; half > 0 {
		backoff += time.Duration(rand.Int64N(half)) - backoff/4
	}
	return backoff
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
