package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nyayasetu-backend/corpus"
	"nyayasetu-backend/models"
	"nyayasetu-backend/storage"
)

func TestKnowledgeInitializeBuildsAndPersists(t *testing.T) {
	f := newKnowledgeFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.knowledge.Initialize(ctx))

	assert.True(t, f.knowledge.Ready())
	pin := f.knowledge.Pin()
	require.NotNil(t, pin.Corpus)
	require.NotNil(t, pin.Index)
	assert.True(t, strings.HasPrefix(pin.Index.Version, pin.Corpus.Version+"-"))

	manifest, err := f.store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, pin.Index.Version, manifest.IndexVersion)
	assert.Equal(t, pin.Corpus.Version, manifest.CorpusVersion)
	assert.Equal(t, "memory", manifest.Backend)

	docs, err := f.store.LoadCorpus(ctx, pin.Corpus.Version)
	require.NoError(t, err)
	assert.Len(t, docs, pin.Corpus.Len())

	st := f.knowledge.Status()
	assert.True(t, st.Initialized)
	assert.False(t, st.RAGAvailable, "no generator configured")
	assert.True(t, st.Features["semantic_search"])
	assert.Nil(t, st.Error)
	assert.Positive(t, st.IndexedChunks)
}

func TestKnowledgeAttachesPersistedIndex(t *testing.T) {
	f := newKnowledgeFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.knowledge.Initialize(ctx))
	built := f.knowledge.Pin().Index.Version

	// a second process over the same backend and store
	second := f.newKnowledge(false, KnowledgeWithGenerator(&fakeGenerator{}))
	require.NoError(t, second.Initialize(ctx))

	pin := second.Pin()
	require.NotNil(t, pin.Index)
	assert.Equal(t, built, pin.Index.Version)

	st := second.Status()
	assert.True(t, st.RAGAvailable)
	assert.Equal(t, "fake/test", st.Generator)
}

func TestKnowledgeWithoutIndexDegrades(t *testing.T) {
	f := newKnowledgeFixture(t, false)
	require.NoError(t, f.knowledge.Initialize(context.Background()))

	assert.True(t, f.knowledge.Ready())
	assert.Nil(t, f.knowledge.Pin().Index)

	st := f.knowledge.Status()
	assert.True(t, st.Initialized)
	assert.False(t, st.Features["semantic_search"])
	assert.True(t, st.Features["case_law_search"])
	require.NotNil(t, st.Error)
	assert.Contains(t, *st.Error, "vector index unavailable")
}

func TestKnowledgeMissingDataDir(t *testing.T) {
	k := NewKnowledgeService(KnowledgeWithLoader(corpus.NewLoader(t.TempDir() + "/missing")))
	err := k.Initialize(context.Background())
	require.Error(t, err)
	assert.False(t, k.Ready())
	assert.NotNil(t, k.Status().Error)
}

func TestKnowledgeRebuildReportsSteps(t *testing.T) {
	f := newKnowledgeFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.knowledge.Initialize(ctx))
	first := f.knowledge.Pin().Index.Version

	var steps []string
	outcome, err := f.knowledge.Rebuild(ctx, func(step string) { steps = append(steps, step) })
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.StepLoadCorpus, models.StepChunk, models.StepEmbedAndIndex, models.StepPersistSnapshot,
	}, steps)
	assert.NotEqual(t, first, outcome.IndexVersion)
	assert.Equal(t, outcome.IndexVersion, f.knowledge.Pin().Index.Version)
	assert.Positive(t, outcome.ChunkCount)
	assert.Zero(t, outcome.FailedBatches)
}

// flakyStorage fails manifest writes while failIndexes is set
type flakyStorage struct {
	storage.Storage
	failIndexes atomic.Bool
}

func (s *flakyStorage) Put(ctx context.Context, key string, data io.Reader) error {
	if s.failIndexes.Load() && strings.HasPrefix(key, "indexes/") {
		return errors.New("object store unavailable")
	}
	return s.Storage.Put(ctx, key, data)
}

func TestKnowledgeRebuildPersistFailureKeepsServedIndex(t *testing.T) {
	f := newKnowledgeFixture(t, true)
	ctx := context.Background()

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	flaky := &flakyStorage{Storage: local}
	k := f.newKnowledge(true, KnowledgeWithSnapshotStore(storage.NewSnapshotStore(flaky)))
	require.NoError(t, k.Initialize(ctx))
	served := k.Pin().Index.Version

	flaky.failIndexes.Store(true)
	_, err = k.Rebuild(ctx, nil)
	require.Error(t, err)

	assert.Equal(t, served, k.Pin().Index.Version)
	assert.Equal(t, served, k.manager.Active().Version, "manager and service agree on the live version")
	assert.Equal(t, []string{served}, f.backend.Versions(), "unpersisted version is dropped")

	flaky.failIndexes.Store(false)
	outcome, err := k.Rebuild(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, outcome.IndexVersion, k.Pin().Index.Version)
	assert.Equal(t, outcome.IndexVersion, k.manager.Active().Version)
	assert.Contains(t, f.backend.Versions(), served, "previous version stays for pinned readers")
}
