package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"nyayasetu-backend/vectorindex"
)

// pgvector refuses HNSW indexes wider than this
const maxHNSWDimensions = 2000

var versionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// LegalChunkRepository stores index versions in Postgres with pgvector. It
// implements vectorindex.Backend.
type LegalChunkRepository struct {
	db *pgxpool.Pool
}

// NewLegalChunkRepository creates a new legal chunk repository
func NewLegalChunkRepository(db *pgxpool.Pool) *LegalChunkRepository {
	return &LegalChunkRepository{db: db}
}

func (r *LegalChunkRepository) Name() string { return "pgvector" }

// hnswIndexName is safe to interpolate because versions are validated
func hnswIndexName(version string) string {
	return "idx_legal_chunks_hnsw_" + version
}

// Create registers a version and, when the width allows, a partial HNSW
// index over its cast embeddings
func (r *LegalChunkRepository) Create(ctx context.Context, version string, dim int) (vectorindex.Index, error) {
	if !versionPattern.MatchString(version) {
		return nil, fmt.Errorf("invalid index version %q", version)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", vectorindex.ErrDimensionMismatch, dim)
	}

	// Re-creating a version starts it from scratch
	if _, err := r.db.Exec(ctx, `DELETE FROM legal_index_versions WHERE version = $1`, version); err != nil {
		return nil, fmt.Errorf("failed to reset index version: %w", err)
	}
	if _, err := r.db.Exec(ctx,
		`INSERT INTO legal_index_versions (version, dimension) VALUES ($1, $2)`,
		version, dim,
	); err != nil {
		return nil, fmt.Errorf("failed to create index version: %w", err)
	}

	if dim <= maxHNSWDimensions {
		sql := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s" ON legal_chunks
USING hnsw ((embedding::vector(%d)) vector_cosine_ops)
WITH (m = 16, ef_construction = 64)
WHERE index_version = '%s'`, hnswIndexName(version), dim, version)
		if _, err := r.db.Exec(ctx, sql); err != nil {
			return nil, fmt.Errorf("failed to create HNSW index: %w", err)
		}
	}

	return &pgIndex{db: r.db, version: version, dim: dim}, nil
}

// Open returns a previously created version
func (r *LegalChunkRepository) Open(ctx context.Context, version string, dim int) (vectorindex.Index, error) {
	var stored int
	err := r.db.QueryRow(ctx, `SELECT dimension FROM legal_index_versions WHERE version = $1`, version).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", vectorindex.ErrVersionNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up index version: %w", err)
	}
	if dim > 0 && dim != stored {
		return nil, fmt.Errorf("%w: version has %d, want %d", vectorindex.ErrDimensionMismatch, stored, dim)
	}
	return &pgIndex{db: r.db, version: version, dim: stored}, nil
}

// Drop deletes a version; its chunks go with it through the cascade
func (r *LegalChunkRepository) Drop(ctx context.Context, version string) error {
	if !versionPattern.MatchString(version) {
		return fmt.Errorf("invalid index version %q", version)
	}
	if _, err := r.db.Exec(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS "%s"`, hnswIndexName(version))); err != nil {
		return fmt.Errorf("failed to drop HNSW index: %w", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM legal_index_versions WHERE version = $1`, version); err != nil {
		return fmt.Errorf("failed to drop index version: %w", err)
	}
	return nil
}

// Versions lists stored versions, newest first
func (r *LegalChunkRepository) Versions(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT version FROM legal_index_versions ORDER BY created_at DESC, version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list index versions: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan index versions: %w", err)
	}
	return versions, nil
}

type pgIndex struct {
	db      *pgxpool.Pool
	version string
	dim     int
}

func (p *pgIndex) Upsert(ctx context.Context, records []vectorindex.Record) error {
	batch := &pgx.Batch{}
	for _, rec := range records {
		if len(rec.Vector) != p.dim {
			return fmt.Errorf("%w: chunk %s has %d, want %d", vectorindex.ErrDimensionMismatch, rec.ChunkID, len(rec.Vector), p.dim)
		}
		metadata := rec.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		batch.Queue(`
			INSERT INTO legal_chunks (index_version, chunk_id, doc_id, chunk_text, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (index_version, chunk_id) DO UPDATE SET
				doc_id = EXCLUDED.doc_id,
				chunk_text = EXCLUDED.chunk_text,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding`,
			p.version, rec.ChunkID, rec.DocID, rec.Text, metadata, pgvector.NewVector(rec.Vector),
		)
	}

	if err := p.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert legal chunks: %w", err)
	}
	return nil
}

// Query orders by cosine distance and reports similarity = 1 - distance
func (p *pgIndex) Query(ctx context.Context, vector []float32, k int) ([]vectorindex.Neighbor, error) {
	if len(vector) != p.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", vectorindex.ErrDimensionMismatch, len(vector), p.dim)
	}
	if k <= 0 {
		return []vectorindex.Neighbor{}, nil
	}

	// The cast must match the partial index expression for the planner to use it
	query := fmt.Sprintf(`
		SELECT chunk_id, doc_id, chunk_text, metadata,
			embedding::vector(%[1]d) <=> $1::vector(%[1]d) AS distance
		FROM legal_chunks
		WHERE index_version = $2
		ORDER BY embedding::vector(%[1]d) <=> $1::vector(%[1]d), chunk_id
		LIMIT $3`, p.dim)

	rows, err := p.db.Query(ctx, query, pgvector.NewVector(vector), p.version, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query legal chunks: %w", err)
	}
	defer rows.Close()

	var hits []vectorindex.Neighbor
	for rows.Next() {
		var (
			n        vectorindex.Neighbor
			distance float64
		)
		if err := rows.Scan(&n.ChunkID, &n.DocID, &n.Text, &n.Metadata, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan legal chunk: %w", err)
		}
		n.Similarity = 1 - distance
		hits = append(hits, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating legal chunks: %w", err)
	}
	return hits, nil
}

func (p *pgIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM legal_chunks WHERE index_version = $1`, p.version).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count legal chunks: %w", err)
	}
	return n, nil
}
