// Package vectorindex stores chunk embeddings and answers nearest-neighbour
// queries. Backends hold one index per version; the Manager publishes whole
// versions atomically so readers always see a complete snapshot.
package vectorindex

import (
	"context"
	"errors"
	"math"
)

var (
	ErrIndexNotReady     = errors.New("vector index not ready")
	ErrModelMismatch     = errors.New("query embedder does not match index model")
	ErrBuildInProgress   = errors.New("index build already in progress")
	ErrEmptyIndex        = errors.New("no vectors were embedded")
	ErrVersionNotFound   = errors.New("index version not found")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Record is one chunk vector with the payload needed to render a result
type Record struct {
	ChunkID  string
	DocID    string
	Text     string
	Metadata map[string]string
	Vector   []float32
}

// Neighbor is a query hit; Similarity is cosine similarity, higher is closer
type Neighbor struct {
	ChunkID    string
	DocID      string
	Text       string
	Metadata   map[string]string
	Similarity float64
}

// Index is a single immutable-once-published version
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, k int) ([]Neighbor, error)
	Count(ctx context.Context) (int, error)
}

// Backend creates, opens and drops index versions
type Backend interface {
	Name() string
	Create(ctx context.Context, version string, dim int) (Index, error)
	Open(ctx context.Context, version string, dim int) (Index, error)
	Drop(ctx context.Context, version string) error
}

// Cosine returns the cosine similarity of a and b, or 0 if either is zero
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// clamp01 maps a similarity onto [0, 1]; opposed vectors count as unrelated
func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
