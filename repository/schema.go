package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaStatements create everything the service needs. They are idempotent.
var SchemaStatements = []struct {
	Name string
	SQL  string
}{
	{
		Name: "pgvector extension",
		SQL:  `CREATE EXTENSION IF NOT EXISTS vector`,
	},
	{
		Name: "legal_index_versions table",
		SQL: `CREATE TABLE IF NOT EXISTS legal_index_versions (
    version TEXT PRIMARY KEY,
    dimension INTEGER NOT NULL CHECK (dimension > 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	},
	{
		// embedding has no fixed width so versions built by different
		// embedders can coexist; each version gets its own partial HNSW index.
		Name: "legal_chunks table",
		SQL: `CREATE TABLE IF NOT EXISTS legal_chunks (
    index_version TEXT NOT NULL REFERENCES legal_index_versions(version) ON DELETE CASCADE,
    chunk_id TEXT NOT NULL,
    doc_id TEXT NOT NULL,
    chunk_text TEXT NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    embedding vector NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (index_version, chunk_id)
)`,
	},
	{
		Name: "legal_chunks doc lookup",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_legal_chunks_doc ON legal_chunks(index_version, doc_id)`,
	},
	{
		Name: "index_build_jobs table",
		SQL: `CREATE TABLE IF NOT EXISTS index_build_jobs (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'in_progress', 'completed', 'failed')),
    current_step VARCHAR(50),
    steps JSONB NOT NULL DEFAULT '[]'::jsonb,
    corpus_version TEXT,
    index_version TEXT,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    failed_batches INTEGER NOT NULL DEFAULT 0,
    warning TEXT,
    error_message TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ
)`,
	},
	{
		Name: "index_build_jobs status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_index_build_jobs_status ON index_build_jobs(status, created_at DESC)`,
	},
}

// EnsureSchema runs SchemaStatements in order
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range SchemaStatements {
		if _, err := db.Exec(ctx, stmt.SQL); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.Name, err)
		}
	}
	return nil
}

// Connect opens a pool and verifies the connection
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
