package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QdrantConfig configures the Qdrant REST backend
type QdrantConfig struct {
	URL              string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
}

// QdrantBackend keeps one Cosine collection per index version
type QdrantBackend struct {
	url    string
	apiKey string
	prefix string
	client *http.Client
}

func NewQdrantBackend(cfg QdrantConfig) *QdrantBackend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "jurisgpt_legal"
	}
	return &QdrantBackend{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		prefix: prefix,
		client: &http.Client{Timeout: timeout},
	}
}

func (b *QdrantBackend) Name() string { return "qdrant" }

func (b *QdrantBackend) collection(version string) string {
	return b.prefix + "_" + version
}

func (b *QdrantBackend) Create(ctx context.Context, version string, dim int) (Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrDimensionMismatch, dim)
	}
	name := b.collection(version)
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := b.do(ctx, http.MethodPut, "/collections/"+name, body, nil); err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return &qdrantIndex{backend: b, collection: name, dim: dim}, nil
}

func (b *QdrantBackend) Open(ctx context.Context, version string, dim int) (Index, error) {
	name := b.collection(version)
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := b.do(ctx, http.MethodGet, "/collections/"+name, nil, &resp); err != nil {
		return nil, err
	}
	size := resp.Result.Config.Params.Vectors.Size
	if dim > 0 && size != 0 && size != dim {
		return nil, fmt.Errorf("%w: collection has %d, want %d", ErrDimensionMismatch, size, dim)
	}
	if dim <= 0 {
		dim = size
	}
	return &qdrantIndex{backend: b, collection: name, dim: dim}, nil
}

func (b *QdrantBackend) Drop(ctx context.Context, version string) error {
	err := b.do(ctx, http.MethodDelete, "/collections/"+b.collection(version), nil, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

type qdrantIndex struct {
	backend    *QdrantBackend
	collection string
	dim        int
}

// pointID maps a chunk id onto the UUID space Qdrant requires
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (q *qdrantIndex) Upsert(ctx context.Context, records []Record) error {
	points := make([]map[string]any, len(records))
	for i, r := range records {
		if len(r.Vector) != q.dim {
			return fmt.Errorf("%w: chunk %s has %d, want %d", ErrDimensionMismatch, r.ChunkID, len(r.Vector), q.dim)
		}
		points[i] = map[string]any{
			"id":     pointID(r.ChunkID),
			"vector": r.Vector,
			"payload": map[string]any{
				"chunk_id": r.ChunkID,
				"doc_id":   r.DocID,
				"text":     r.Text,
				"metadata": r.Metadata,
			},
		}
	}
	body := map[string]any{"points": points}
	return q.backend.do(ctx, http.MethodPut, "/collections/"+q.collection+"/points?wait=true", body, nil)
}

func (q *qdrantIndex) Query(ctx context.Context, vector []float32, k int) ([]Neighbor, error) {
	if len(vector) != q.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), q.dim)
	}
	if k <= 0 {
		return []Neighbor{}, nil
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ChunkID  string            `json:"chunk_id"`
				DocID    string            `json:"doc_id"`
				Text     string            `json:"text"`
				Metadata map[string]string `json:"metadata"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := q.backend.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/search", req, &resp); err != nil {
		return nil, err
	}

	hits := make([]Neighbor, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, Neighbor{
			ChunkID:    r.Payload.ChunkID,
			DocID:      r.Payload.DocID,
			Text:       r.Payload.Text,
			Metadata:   r.Payload.Metadata,
			Similarity: r.Score,
		})
	}
	return hits, nil
}

func (q *qdrantIndex) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := q.backend.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/count", map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

type qdrantError struct {
	method string
	path   string
	status int
	body   string
}

func (e *qdrantError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.path, e.status, e.body)
}

func isNotFound(err error) bool {
	var qe *qdrantError
	return errors.As(err, &qe) && qe.status == http.StatusNotFound
}

func (b *QdrantBackend) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.url+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("api-key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return fmt.Errorf("%w: %s", ErrVersionNotFound, path)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &qdrantError{method: method, path: path, status: resp.StatusCode, body: string(msg)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
