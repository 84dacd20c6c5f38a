package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nyayasetu-backend/config"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-embedding-001"
	geminiBatchLimit   = 100 // Google's API limit
	geminiBatchPause   = 100 * time.Millisecond

	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"

	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

type geminiEmbedRequest struct {
	Model                string             `json:"model"`
	Content              geminiContentInput `json:"content"`
	TaskType             string             `json:"task_type,omitempty"`
	OutputDimensionality int                `json:"output_dimensionality,omitempty"`
}

type geminiContentInput struct {
	Parts []geminiPartInput `json:"parts"`
}

type geminiPartInput struct {
	Text string `json:"text"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

// The batch API returns values without a nested "embedding" key
type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

// GeminiEmbedder calls the Gemini batchEmbedContents REST endpoint
type GeminiEmbedder struct {
	apiKey         string
	model          string
	dimensions     int
	baseURL        string
	client         *http.Client
	initialBackoff time.Duration
	batchPause     time.Duration
}

// GeminiOption configures a GeminiEmbedder
type GeminiOption func(*GeminiEmbedder)

func GeminiWithModel(model string) GeminiOption {
	return func(e *GeminiEmbedder) {
		if model != "" {
			e.model = strings.TrimPrefix(model, "models/")
		}
	}
}

func GeminiWithDimensions(dims int) GeminiOption {
	return func(e *GeminiEmbedder) {
		if dims > 0 {
			e.dimensions = dims
		}
	}
}

func GeminiWithTimeout(timeout time.Duration) GeminiOption {
	return func(e *GeminiEmbedder) {
		if timeout > 0 {
			e.client = &http.Client{Timeout: timeout}
		}
	}
}

// GeminiWithBaseURL points the embedder at another API root, e.g. a test server
func GeminiWithBaseURL(url string) GeminiOption {
	return func(e *GeminiEmbedder) {
		e.baseURL = strings.TrimRight(url, "/")
	}
}

// GeminiWithBackoff sets the first retry delay and the pause between batches
func GeminiWithBackoff(initial, pause time.Duration) GeminiOption {
	return func(e *GeminiEmbedder) {
		e.initialBackoff = initial
		e.batchPause = pause
	}
}

// NewGeminiEmbedder creates an embedder for the given API key
func NewGeminiEmbedder(apiKey string, opts ...GeminiOption) (*GeminiEmbedder, error) {
	if config.IsPlaceholderKey(apiKey) {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY not set", ErrMissingAPIKey)
	}

	e := &GeminiEmbedder{
		apiKey:         apiKey,
		model:          geminiDefaultModel,
		dimensions:     768,
		baseURL:        geminiBaseURL,
		client:         &http.Client{Timeout: 30 * time.Second},
		initialBackoff: initialBackoff,
		batchPause:     geminiBatchPause,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *GeminiEmbedder) Model() string {
	return fmt.Sprintf("gemini/%s@%d", e.model, e.dimensions)
}

func (e *GeminiEmbedder) Dimension() int { return e.dimensions }

// Embed embeds documents with the RETRIEVAL_DOCUMENT task
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += geminiBatchLimit {
		end := min(i+geminiBatchLimit, len(texts))

		vectors, err := e.embedBatch(ctx, texts[i:end], taskRetrievalDocument)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)

		// Brief sleep to avoid rate limits
		if end < len(texts) {
			if err := sleepCtx(ctx, e.batchPause); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// EmbedQuery embeds a search query with the RETRIEVAL_QUERY task
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	requests := make([]geminiEmbedRequest, len(texts))
	for i, text := range texts {
		requests[i] = geminiEmbedRequest{
			Model:                "models/" + e.model,
			Content:              geminiContentInput{Parts: []geminiPartInput{{Text: text}}},
			TaskType:             taskType,
			OutputDimensionality: e.dimensions,
		}
	}

	jsonData, err := json.Marshal(geminiBatchRequest{Requests: requests})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", e.baseURL, e.model)

	var lastErr error
	backoff := e.initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
		}

		vectors, retry, err := e.post(ctx, url, jsonData, len(texts))
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, lastErr)
}

// post sends one batch request and reports whether a failure is worth retrying
func (e *GeminiEmbedder) post(ctx context.Context, url string, body []byte, expected int) ([][]float32, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Don't retry on 400 or 401 errors
		retry := resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusUnauthorized
		return nil, retry, fmt.Errorf("API error: %d - %s", resp.StatusCode, truncate(string(bodyBytes), 200))
	}

	var apiResp geminiBatchResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, true, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(apiResp.Embeddings) != expected {
		return nil, false, fmt.Errorf("mismatch: got %d embeddings for %d texts", len(apiResp.Embeddings), expected)
	}

	vectors := make([][]float32, expected)
	for i, emb := range apiResp.Embeddings {
		if len(emb.Values) != e.dimensions {
			return nil, false, fmt.Errorf("%w: text %d has %d values, want %d", ErrDimensionMismatch, i, len(emb.Values), e.dimensions)
		}
		v := make([]float32, len(emb.Values))
		for j, x := range emb.Values {
			v[j] = float32(x)
		}
		vectors[i] = Normalize(v)
	}
	return vectors, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
