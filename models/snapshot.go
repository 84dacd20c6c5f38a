package models

import "time"

// SnapshotManifest pins a corpus snapshot to the vector index built from it
type SnapshotManifest struct {
	CorpusVersion  string    `json:"corpus_version"`
	IndexVersion   string    `json:"index_version"`
	Backend        string    `json:"backend"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	ChunkCount     int       `json:"chunk_count"`
	FailedBatches  int       `json:"failed_batches"`
	CreatedAt      time.Time `json:"created_at"`
}
