package vectorindex

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nyayasetu-backend/embedding"
	"nyayasetu-backend/models"
)

// keywordEmbedder maps text onto three axes by keyword
type keywordEmbedder struct {
	model string
	block chan struct{}
	start chan struct{}
	fail  string
}

func (k *keywordEmbedder) Model() string {
	if k.model == "" {
		return "keyword@3"
	}
	return k.model
}

func (k *keywordEmbedder) Dimension() int { return 3 }

func (k *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if k.start != nil {
		close(k.start)
		k.start = nil
	}
	if k.block != nil {
		<-k.block
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		if k.fail != "" && strings.Contains(lower, k.fail) {
			return nil, errors.New("upstream unavailable")
		}
		switch {
		case strings.Contains(lower, "vesting"):
			out[i] = []float32{1, 0.1, 0}
		case strings.Contains(lower, "company"):
			out[i] = []float32{0, 1, 0.1}
		default:
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func testChunks(texts ...string) []models.Chunk {
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		docID := "doc" + string(rune('a'+i))
		chunks[i] = models.Chunk{
			ChunkID:     models.ChunkID(docID, 0),
			DocID:       docID,
			Text:        text,
			TotalChunks: 1,
			Metadata:    map[string]string{"title": docID},
		}
	}
	return chunks
}

func TestManagerNotReady(t *testing.T) {
	m := NewManager(NewMemoryBackend(), &keywordEmbedder{})
	assert.False(t, m.Ready())
	assert.Nil(t, m.Active())

	_, err := m.Query(context.Background(), "vesting", 3)
	assert.ErrorIs(t, err, ErrIndexNotReady)
}

func TestManagerBuildAndQuery(t *testing.T) {
	m := NewManager(NewMemoryBackend(), &keywordEmbedder{}, ManagerWithBatchSize(2))

	report, err := m.Build(context.Background(), "v1", testChunks(
		"Founder vesting over four years",
		"   ",
		"Incorporating a private company",
		"Arbitration clauses",
	))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Embedded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.TotalBatches)
	assert.Empty(t, report.Warning)
	assert.True(t, m.Ready())

	hits, err := m.Query(context.Background(), "what is vesting", 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "doca", hits[0].DocID)
	for i, h := range hits {
		assert.GreaterOrEqual(t, h.Similarity, 0.0)
		assert.LessOrEqual(t, h.Similarity, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, h.Similarity, hits[i-1].Similarity)
		}
	}

	snap := m.Active()
	manifest := snap.Manifest("corpus1")
	assert.Equal(t, "corpus1", manifest.CorpusVersion)
	assert.Equal(t, "v1", manifest.IndexVersion)
	assert.Equal(t, "keyword@3", manifest.EmbeddingModel)
	assert.Equal(t, "memory", manifest.Backend)
	assert.Equal(t, 3, manifest.ChunkCount)
}

func TestManagerBuildGuard(t *testing.T) {
	emb := &keywordEmbedder{block: make(chan struct{}), start: make(chan struct{})}
	started := emb.start
	m := NewManager(NewMemoryBackend(), emb)

	done := make(chan error, 1)
	go func() {
		_, err := m.Build(context.Background(), "v1", testChunks("vesting"))
		done <- err
	}()

	<-started
	_, err := m.Build(context.Background(), "v2", testChunks("company"))
	assert.ErrorIs(t, err, ErrBuildInProgress)

	close(emb.block)
	require.NoError(t, <-done)
	assert.Equal(t, "v1", m.Active().Version)
}

func TestManagerBatchFailures(t *testing.T) {
	t.Run("partial failure publishes with warning", func(t *testing.T) {
		m := NewManager(NewMemoryBackend(), &keywordEmbedder{fail: "broken"},
			ManagerWithBatchSize(1), ManagerWithFailureThreshold(0))

		report, err := m.Build(context.Background(), "v1", testChunks("vesting", "broken text", "company"))
		require.NoError(t, err)
		assert.Equal(t, 2, report.Embedded)
		assert.Equal(t, 1, report.FailedBatches)
		assert.NotEmpty(t, report.Warning)
		assert.Equal(t, 1, m.Active().FailedBatches)
	})

	t.Run("no vectors leaves previous snapshot", func(t *testing.T) {
		backend := NewMemoryBackend()
		emb := &keywordEmbedder{}
		m := NewManager(backend, emb, ManagerWithBatchSize(1))

		_, err := m.Build(context.Background(), "v1", testChunks("vesting"))
		require.NoError(t, err)

		emb.fail = "broken"
		_, err = m.Build(context.Background(), "v2", testChunks("broken one", "broken two"))
		require.ErrorIs(t, err, ErrEmptyIndex)
		assert.Equal(t, "v1", m.Active().Version)
		assert.Equal(t, []string{"v1"}, backend.Versions())
	})

	t.Run("all empty texts", func(t *testing.T) {
		m := NewManager(NewMemoryBackend(), &keywordEmbedder{})
		_, err := m.Build(context.Background(), "v1", testChunks("", " \n"))
		assert.ErrorIs(t, err, ErrEmptyIndex)
		assert.False(t, m.Ready())
	})
}

func TestManagerSwapRetention(t *testing.T) {
	backend := NewMemoryBackend()
	m := NewManager(backend, &keywordEmbedder{})
	ctx := context.Background()

	_, err := m.Build(ctx, "v1", testChunks("vesting"))
	require.NoError(t, err)
	pinned := m.Active()

	_, err = m.Build(ctx, "v2", testChunks("company"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, backend.Versions())

	_, err = m.Build(ctx, "v3", testChunks("arbitration"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v2", "v3"}, backend.Versions())

	// a reader that pinned v1 still gets its answers
	hits, err := pinned.Query(ctx, "vesting", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doca", hits[0].DocID)
	assert.Equal(t, "v3", m.Active().Version)
}

func TestManagerAttach(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	builder := NewManager(backend, &keywordEmbedder{})
	chunks := testChunks("vesting", "company")
	_, err := builder.Build(ctx, "v1", chunks)
	require.NoError(t, err)
	manifest := builder.Active().Manifest("c1")

	t.Run("matching model", func(t *testing.T) {
		m := NewManager(backend, &keywordEmbedder{})
		require.NoError(t, m.Attach(ctx, manifest, chunks))
		assert.True(t, m.Ready())
		hits, err := m.Query(ctx, "company", 1)
		require.NoError(t, err)
		assert.Equal(t, "docb", hits[0].DocID)
	})

	t.Run("model mismatch", func(t *testing.T) {
		m := NewManager(backend, &keywordEmbedder{model: "other@3"})
		err := m.Attach(ctx, manifest, chunks)
		assert.ErrorIs(t, err, ErrModelMismatch)
		assert.False(t, m.Ready())
	})

	t.Run("missing version", func(t *testing.T) {
		m := NewManager(backend, &keywordEmbedder{})
		missing := manifest
		missing.IndexVersion = "nope"
		assert.ErrorIs(t, m.Attach(ctx, missing, chunks), ErrVersionNotFound)
	})
}

func TestManagerTFIDF(t *testing.T) {
	m := NewManager(NewMemoryBackend(), embedding.NewTFIDFEmbedder(), ManagerWithCallTimeout(time.Second))
	chunks := testChunks(
		"Founder vesting schedules run four years with a cliff",
		"Incorporation of a private limited company needs two directors",
	)

	report, err := m.Build(context.Background(), "v1", chunks)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(report.Model, "tfidf@"))
	assert.NotEqual(t, "tfidf@unprepared", report.Model)

	hits, err := m.Query(context.Background(), "vesting cliff", 2)
	require.NoError(t, err)
	assert.Equal(t, "doca", hits[0].DocID)

	// attaching refits on the same chunks and reproduces the identity
	other := NewManager(NewMemoryBackend(), embedding.NewTFIDFEmbedder())
	_, err = other.Build(context.Background(), "v1", chunks)
	require.NoError(t, err)
	assert.Equal(t, m.Active().Model, other.Active().Model)
}

func TestManagerStageDoesNotPublish(t *testing.T) {
	backend := NewMemoryBackend()
	m := NewManager(backend, &keywordEmbedder{})
	ctx := context.Background()

	_, err := m.Build(ctx, "v1", testChunks("vesting"))
	require.NoError(t, err)

	report, staged, err := m.Stage(ctx, "v2", testChunks("company"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Embedded)
	assert.Equal(t, "v1", m.Active().Version)
	assert.ElementsMatch(t, []string{"v1", "v2"}, backend.Versions())

	m.Discard(staged)
	assert.Equal(t, []string{"v1"}, backend.Versions())
	assert.Equal(t, "v1", m.Active().Version)

	_, staged, err = m.Stage(ctx, "v3", testChunks("company"))
	require.NoError(t, err)
	m.Publish(staged)
	assert.Equal(t, "v3", m.Active().Version)

	// discarding the live version is a no-op
	m.Discard(staged)
	assert.ElementsMatch(t, []string{"v1", "v3"}, backend.Versions())
}
