package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tfidfCorpus = []string{
	"Founder vesting schedules usually run four years with a one year cliff.",
	"A private limited company is incorporated through the SPICe+ form.",
	"Non-compete clauses are void under Section 27 of the Indian Contract Act.",
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestTFIDFUnprepared(t *testing.T) {
	e := NewTFIDFEmbedder()
	_, err := e.Embed(context.Background(), []string{"vesting"})
	assert.ErrorIs(t, err, ErrNotPrepared)
	assert.Equal(t, "tfidf@unprepared", e.Model())
}

func TestTFIDFPrepareAndEmbed(t *testing.T) {
	base := NewTFIDFEmbedder()
	fitted, err := base.Prepare(tfidfCorpus)
	require.NoError(t, err)

	// receiver stays unprepared
	assert.Equal(t, 0, base.Dimension())
	assert.Greater(t, fitted.Dimension(), 10)

	vectors, err := fitted.Embed(context.Background(), append(tfidfCorpus, "vesting cliff"))
	require.NoError(t, err)
	require.Len(t, vectors, 4)

	for _, v := range vectors {
		assert.Len(t, v, fitted.Dimension())
	}
	assert.InDelta(t, 1.0, cosine(vectors[0], vectors[0]), 1e-5)

	query := vectors[3]
	assert.Greater(t, cosine(query, vectors[0]), cosine(query, vectors[1]))
	assert.Greater(t, cosine(query, vectors[0]), cosine(query, vectors[2]))
}

func TestTFIDFUnknownTermsGiveZeroVector(t *testing.T) {
	fitted, err := NewTFIDFEmbedder().Prepare(tfidfCorpus)
	require.NoError(t, err)

	vectors, err := fitted.Embed(context.Background(), []string{"zzzz qqqq"})
	require.NoError(t, err)
	for _, x := range vectors[0] {
		assert.Zero(t, x)
	}
}

func TestTFIDFModelIdentity(t *testing.T) {
	a, err := NewTFIDFEmbedder().Prepare(tfidfCorpus)
	require.NoError(t, err)
	b, err := NewTFIDFEmbedder().Prepare(tfidfCorpus)
	require.NoError(t, err)
	c, err := NewTFIDFEmbedder().Prepare(tfidfCorpus[:2])
	require.NoError(t, err)

	assert.Equal(t, a.Model(), b.Model(), "same corpus, same identity")
	assert.NotEqual(t, a.Model(), c.Model())
}

func TestTFIDFMaxTerms(t *testing.T) {
	fitted, err := NewTFIDFEmbedder(TFIDFWithMaxTerms(5)).Prepare(tfidfCorpus)
	require.NoError(t, err)
	assert.Equal(t, 5, fitted.Dimension())
}

func TestTFIDFEmptyCorpus(t *testing.T) {
	_, err := NewTFIDFEmbedder().Prepare(nil)
	assert.Error(t, err)

	_, err = NewTFIDFEmbedder().Prepare([]string{"the and of", "123 456"})
	assert.Error(t, err)
}
