package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nyayasetu-backend/models"
	"nyayasetu-backend/repository"
	"nyayasetu-backend/vectorindex"
)

type fakeRebuilder struct {
	release chan struct{}
	err     error
}

func (r *fakeRebuilder) Rebuild(ctx context.Context, progress BuildProgress) (*models.BuildOutcome, error) {
	progress(models.StepLoadCorpus)
	if r.release != nil {
		<-r.release
	}
	progress(models.StepChunk)
	if r.err != nil {
		return nil, r.err
	}
	progress(models.StepEmbedAndIndex)
	progress(models.StepPersistSnapshot)
	return &models.BuildOutcome{
		CorpusVersion: "c1",
		IndexVersion:  "c1-100",
		ChunkCount:    42,
		FailedBatches: 4,
		Warning:       "4 of 10 batches failed",
	}, nil
}

func TestStartBuildRunsInBackground(t *testing.T) {
	rb := &fakeRebuilder{release: make(chan struct{})}
	svc := NewIndexBuildService(rb)
	ctx := context.Background()

	job, err := svc.StartBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusPending, job.Status)
	assert.True(t, svc.Running())

	_, err = svc.StartBuild(ctx)
	assert.ErrorIs(t, err, vectorindex.ErrBuildInProgress)

	close(rb.release)
	svc.Wait()
	assert.False(t, svc.Running())

	got, err := svc.GetBuildStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusCompleted, got.Status)
	assert.Equal(t, 42, got.ChunkCount)
	assert.Equal(t, 4, got.FailedBatches)
	require.NotNil(t, got.Warning)
	require.NotNil(t, got.IndexVersion)
	assert.Equal(t, "c1-100", *got.IndexVersion)
	require.NotNil(t, got.CompletedAt)
	for _, step := range got.Steps {
		assert.Equal(t, "completed", step.Status, step.Name)
	}

	latest, err := svc.LatestBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, latest.ID)

	// the guard is released once the job finishes
	rb.release = nil
	_, err = svc.StartBuild(ctx)
	require.NoError(t, err)
	svc.Wait()
}

func TestFailedBuildIsRecorded(t *testing.T) {
	svc := NewIndexBuildService(&fakeRebuilder{err: errors.New("embedding backend unreachable")})
	ctx := context.Background()

	job, err := svc.StartBuild(ctx)
	require.NoError(t, err)
	svc.Wait()

	got, err := svc.GetBuildStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "embedding backend unreachable", *got.ErrorMessage)
	require.NotNil(t, got.CurrentStep)
	assert.Equal(t, models.StepChunk, *got.CurrentStep)
	assert.Equal(t, "completed", got.Steps[0].Status)
	assert.Equal(t, "failed", got.Steps[1].Status)
}

func TestBuildAgainstKnowledgeService(t *testing.T) {
	f := newKnowledgeFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.knowledge.Initialize(ctx))
	require.Nil(t, f.knowledge.Pin().Index)

	svc := NewIndexBuildService(f.knowledge)
	job, err := svc.StartBuild(ctx)
	require.NoError(t, err)
	svc.Wait()

	got, err := svc.GetBuildStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.BuildStatusCompleted, got.Status, "error: %v", got.ErrorMessage)
	require.NotNil(t, f.knowledge.Pin().Index)
	assert.Equal(t, *got.IndexVersion, f.knowledge.Pin().Index.Version)
	assert.Nil(t, f.knowledge.Status().Error)
}

func TestMemoryJobStoreNotFound(t *testing.T) {
	store := NewMemoryJobStore()
	_, err := store.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrJobNotFound)
	_, err = store.Latest(context.Background())
	assert.ErrorIs(t, err, repository.ErrJobNotFound)
	assert.ErrorIs(t, store.Fail(context.Background(), uuid.New(), "x"), repository.ErrJobNotFound)
}

// progressFailingStore rejects every progress write
type progressFailingStore struct {
	*MemoryJobStore
}

func (progressFailingStore) UpdateProgress(context.Context, uuid.UUID, string, models.BuildSteps) error {
	return errors.New("connection reset")
}

func TestProgressWriteFailuresAreLogged(t *testing.T) {
	var buf bytes.Buffer
	svc := NewIndexBuildService(&fakeRebuilder{},
		IndexBuildWithJobStore(progressFailingStore{NewMemoryJobStore()}),
		IndexBuildWithLogger(zerolog.New(&buf)),
	)
	ctx := context.Background()

	job, err := svc.StartBuild(ctx)
	require.NoError(t, err)
	svc.Wait()

	got, err := svc.GetBuildStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusCompleted, got.Status, "progress errors do not fail the build")

	out := buf.String()
	assert.Contains(t, out, "failed to record build progress")
	assert.Contains(t, out, "connection reset")
	assert.Contains(t, out, `"step":"persist_snapshot"`)
}
