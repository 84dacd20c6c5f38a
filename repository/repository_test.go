package repository

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"nyayasetu-backend/models"
	"nyayasetu-backend/vectorindex"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	if os.Getenv("RUN_DB_TESTS") != "1" {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("database"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("error getting connection string: %v", err)
	}
	testPool, err = Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("error connecting: %v", err)
	}
	if err := EnsureSchema(ctx, testPool); err != nil {
		log.Fatalf("error creating schema: %v", err)
	}

	code := m.Run()

	testPool.Close()
	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("error terminating postgres container: %v", err)
	}
	os.Exit(code)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testPool == nil {
		t.Skip("set RUN_DB_TESTS=1 to run database tests")
	}
}

func TestLegalChunkRepository(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewLegalChunkRepository(testPool)
	assert.Equal(t, "pgvector", repo.Name())

	idx, err := repo.Create(ctx, "v_test", 3)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []vectorindex.Record{
		{ChunkID: "a_chunk_0", DocID: "a", Text: "murder", Metadata: map[string]string{"scope": "statutes"}, Vector: []float32{1, 0, 0}},
		{ChunkID: "b_chunk_0", DocID: "b", Text: "theft", Vector: []float32{0, 1, 0}},
		{ChunkID: "c_chunk_0", DocID: "c", Text: "mixed", Vector: []float32{0.7, 0.7, 0}},
	}))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	hits, err := idx.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a_chunk_0", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "statutes", hits[0].Metadata["scope"])
	assert.Equal(t, "c_chunk_0", hits[1].ChunkID)

	t.Run("upsert replaces by chunk id", func(t *testing.T) {
		require.NoError(t, idx.Upsert(ctx, []vectorindex.Record{
			{ChunkID: "b_chunk_0", DocID: "b", Text: "robbery", Vector: []float32{1, 0, 0}},
		}))
		count, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("wrong dimension rejected", func(t *testing.T) {
		_, err := idx.Query(ctx, []float32{1, 0}, 1)
		assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
	})

	t.Run("open checks dimension", func(t *testing.T) {
		_, err := repo.Open(ctx, "v_test", 4)
		assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)

		reopened, err := repo.Open(ctx, "v_test", 3)
		require.NoError(t, err)
		count, err := reopened.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("versions are isolated", func(t *testing.T) {
		other, err := repo.Create(ctx, "v_other", 2)
		require.NoError(t, err)
		count, err := other.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		versions, err := repo.Versions(ctx)
		require.NoError(t, err)
		assert.Contains(t, versions, "v_other")
	})

	t.Run("drop removes version and chunks", func(t *testing.T) {
		require.NoError(t, repo.Drop(ctx, "v_test"))
		_, err := repo.Open(ctx, "v_test", 3)
		assert.ErrorIs(t, err, vectorindex.ErrVersionNotFound)
		count, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestLegalChunkRepositoryRejectsBadVersion(t *testing.T) {
	repo := NewLegalChunkRepository(nil)
	_, err := repo.Create(context.Background(), "v1; DROP TABLE x", 3)
	assert.Error(t, err)
	assert.Error(t, repo.Drop(context.Background(), "../x"))
}

func TestIndexBuildJobRepository(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := NewIndexBuildJobRepository(testPool)

	job := &models.IndexBuildJob{Status: models.BuildStatusPending, Steps: models.NewBuildSteps()}
	require.NoError(t, repo.Create(ctx, job))
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", job.ID.String())

	steps := models.NewBuildSteps()
	steps[0].Status = "in_progress"
	require.NoError(t, repo.UpdateProgress(ctx, job.ID, models.StepLoadCorpus, steps))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusInProgress, got.Status)
	require.NotNil(t, got.CurrentStep)
	assert.Equal(t, models.StepLoadCorpus, *got.CurrentStep)
	assert.Equal(t, "in_progress", got.Steps[0].Status)

	require.NoError(t, repo.Complete(ctx, job.ID, models.BuildOutcome{
		CorpusVersion: "c1", IndexVersion: "i1", ChunkCount: 12, FailedBatches: 1,
	}))
	got, err = repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.BuildStatusCompleted, got.Status)
	assert.Equal(t, 12, got.ChunkCount)
	assert.Nil(t, got.Warning)
	assert.NotNil(t, got.CompletedAt)

	failed := &models.IndexBuildJob{Status: models.BuildStatusPending, Steps: models.NewBuildSteps()}
	require.NoError(t, repo.Create(ctx, failed))
	require.NoError(t, repo.Fail(ctx, failed.ID, "boom"))
	got, err = repo.GetByID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusFailed, got.Status)
	assert.Equal(t, "boom", *got.ErrorMessage)
}
