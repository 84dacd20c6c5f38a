package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Chunk is a bounded text window of a LegalDocument, the unit of semantic indexing
type Chunk struct {
	ChunkID     string            `json:"chunk_id"`
	DocID       string            `json:"doc_id"`
	Text        string            `json:"text"`
	Ordinal     int               `json:"ordinal"`
	TotalChunks int               `json:"total_chunks"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

const chunkIDSeparator = "_chunk_"

// ChunkID derives the globally unique id of the chunk at ordinal within docID
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s%s%d", docID, chunkIDSeparator, ordinal)
}

// ParseChunkID splits a chunk id back into its document id and ordinal
func ParseChunkID(chunkID string) (string, int, error) {
	idx := strings.LastIndex(chunkID, chunkIDSeparator)
	if idx < 0 {
		return "", 0, fmt.Errorf("malformed chunk id: %q", chunkID)
	}
	ordinal, err := strconv.Atoi(chunkID[idx+len(chunkIDSeparator):])
	if err != nil {
		return "", 0, fmt.Errorf("malformed chunk ordinal in %q: %w", chunkID, err)
	}
	return chunkID[:idx], ordinal, nil
}

// EmbeddingVector binds a chunk to its embedding
type EmbeddingVector struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
}
