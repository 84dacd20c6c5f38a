package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend keeps every version in process with brute-force cosine search
type MemoryBackend struct {
	mu      sync.Mutex
	indexes map[string]*memoryIndex
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{indexes: make(map[string]*memoryIndex)}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Create(_ context.Context, version string, dim int) (Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrDimensionMismatch, dim)
	}
	idx := &memoryIndex{dim: dim, pos: make(map[string]int)}

	b.mu.Lock()
	b.indexes[version] = idx
	b.mu.Unlock()
	return idx, nil
}

func (b *MemoryBackend) Open(_ context.Context, version string, dim int) (Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.indexes[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	if dim > 0 && idx.dim != dim {
		return nil, fmt.Errorf("%w: index has %d, want %d", ErrDimensionMismatch, idx.dim, dim)
	}
	return idx, nil
}

// Drop forgets a version. Readers already holding its Index keep working.
func (b *MemoryBackend) Drop(_ context.Context, version string) error {
	b.mu.Lock()
	delete(b.indexes, version)
	b.mu.Unlock()
	return nil
}

// Versions lists the versions currently held
func (b *MemoryBackend) Versions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.indexes))
	for v := range b.indexes {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

type memoryIndex struct {
	mu      sync.RWMutex
	dim     int
	records []Record
	pos     map[string]int
}

func (m *memoryIndex) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		if len(r.Vector) != m.dim {
			return fmt.Errorf("%w: chunk %s has %d, want %d", ErrDimensionMismatch, r.ChunkID, len(r.Vector), m.dim)
		}
	}
	for _, r := range records {
		if i, ok := m.pos[r.ChunkID]; ok {
			m.records[i] = r
			continue
		}
		m.pos[r.ChunkID] = len(m.records)
		m.records = append(m.records, r)
	}
	return nil
}

// Query ranks by similarity; ties keep insertion order
func (m *memoryIndex) Query(ctx context.Context, vector []float32, k int) ([]Neighbor, error) {
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), m.dim)
	}
	if k <= 0 {
		return []Neighbor{}, nil
	}

	m.mu.RLock()
	hits := make([]Neighbor, len(m.records))
	for i, r := range m.records {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				m.mu.RUnlock()
				return nil, err
			}
		}
		hits[i] = Neighbor{
			ChunkID:    r.ChunkID,
			DocID:      r.DocID,
			Text:       r.Text,
			Metadata:   r.Metadata,
			Similarity: Cosine(vector, r.Vector),
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *memoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
