package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 0}))
}

func TestMemoryBackend(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	_, err := b.Open(ctx, "missing", 2)
	require.ErrorIs(t, err, ErrVersionNotFound)

	idx, err := b.Create(ctx, "v1", 2)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []Record{
		{ChunkID: "a_chunk_0", DocID: "a", Vector: []float32{1, 0}},
		{ChunkID: "b_chunk_0", DocID: "b", Vector: []float32{0, 1}},
		{ChunkID: "c_chunk_0", DocID: "c", Vector: []float32{1, 0}},
	}))

	t.Run("ordering with ties in insertion order", func(t *testing.T) {
		hits, err := idx.Query(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "a_chunk_0", hits[0].ChunkID)
		assert.Equal(t, "c_chunk_0", hits[1].ChunkID)
		assert.Equal(t, "b_chunk_0", hits[2].ChunkID)
	})

	t.Run("k limits results", func(t *testing.T) {
		hits, err := idx.Query(ctx, []float32{0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "b", hits[0].DocID)
	})

	t.Run("upsert replaces by chunk id", func(t *testing.T) {
		require.NoError(t, idx.Upsert(ctx, []Record{{ChunkID: "b_chunk_0", DocID: "b", Vector: []float32{1, 0}}}))
		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("dimension checks", func(t *testing.T) {
		err := idx.Upsert(ctx, []Record{{ChunkID: "x", Vector: []float32{1, 0, 0}}})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		_, err = idx.Query(ctx, []float32{1}, 1)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		_, err = b.Open(ctx, "v1", 3)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("drop keeps pinned readers working", func(t *testing.T) {
		require.NoError(t, b.Drop(ctx, "v1"))
		assert.Empty(t, b.Versions())
		hits, err := idx.Query(ctx, []float32{1, 0}, 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})
}
