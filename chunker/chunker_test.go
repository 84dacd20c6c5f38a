package chunker

import (
	"strings"
	"testing"

	"nyayasetu-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	t.Run("empty text yields no chunks", func(t *testing.T) {
		chunks, err := Split("", 1000, 200)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("short text is a single chunk", func(t *testing.T) {
		text := "Section 7: Incorporation of company."
		chunks, err := Split(text, 1000, 200)
		require.NoError(t, err)
		assert.Equal(t, []string{text}, chunks)
	})

	t.Run("text exactly one window long is a single chunk", func(t *testing.T) {
		text := strings.Repeat("a", 1000)
		chunks, err := Split(text, 1000, 200)
		require.NoError(t, err)
		assert.Len(t, chunks, 1)
	})

	t.Run("2500 characters without terminals give four chunks", func(t *testing.T) {
		text := strings.Repeat("x", 2500)
		chunks, err := Split(text, 1000, 200)
		require.NoError(t, err)
		require.Len(t, chunks, 4)

		lengths := make([]int, len(chunks))
		for i, c := range chunks {
			lengths[i] = len(c)
		}
		assert.Equal(t, []int{1000, 1000, 900, 100}, lengths)
	})

	t.Run("2500 characters of sentences give four snapped chunks", func(t *testing.T) {
		text := strings.Repeat("The court held so. ", 200)[:2500]
		chunks, err := Split(text, 1000, 200)
		require.NoError(t, err)
		require.Len(t, chunks, 4)

		for i := 0; i < 2; i++ {
			trimmed := strings.TrimRight(chunks[i], " ")
			assert.True(t, strings.HasSuffix(trimmed, "."), "chunk %d should end on a sentence boundary: %q", i, chunks[i][len(chunks[i])-20:])
		}
		assert.Equal(t, text, Reassemble(chunks, 200))
	})

	t.Run("snaps to a newline", func(t *testing.T) {
		text := strings.Repeat("a", 950) + "\n" + strings.Repeat("b", 300)
		chunks, err := Split(text, 1000, 200)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(chunks[0], "\n"))
		assert.Len(t, []rune(chunks[0]), 951)
	})

	t.Run("cuts at the window when no terminal is near", func(t *testing.T) {
		text := "Intro. " + strings.Repeat("z", 1500)
		chunks, err := Split(text, 1000, 200)
		require.NoError(t, err)
		assert.Len(t, []rune(chunks[0]), 1000)
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		text := strings.Repeat("धारा", 400) // 4 runes, 12 bytes each repetition
		chunks, err := Split(text, 1000, 200)
		require.NoError(t, err)
		assert.Len(t, []rune(chunks[0]), 1000)
		assert.Equal(t, text, Reassemble(chunks, 200))
	})

	t.Run("rejects invalid windows", func(t *testing.T) {
		for _, tc := range []struct{ window, overlap int }{{0, 0}, {-5, 0}, {100, -1}, {100, 100}, {100, 150}} {
			_, err := Split("text", tc.window, tc.overlap)
			assert.ErrorIs(t, err, ErrInvalidWindow, "window=%d overlap=%d", tc.window, tc.overlap)
		}
	})
}

func TestReassembleReconstructsOriginal(t *testing.T) {
	texts := []string{
		strings.Repeat("Whereas the parties agree! Is it binding? Yes.\n", 120),
		strings.Repeat("q", 5003),
		"Short text.",
		strings.Repeat("Clause 1.2 applies. ", 333),
	}
	params := []struct{ window, overlap int }{{1000, 200}, {500, 0}, {300, 149}, {120, 10}, {10, 8}}

	for _, text := range texts {
		for _, p := range params {
			chunks, err := Split(text, p.window, p.overlap)
			require.NoError(t, err)
			assert.Equal(t, text, Reassemble(chunks, p.overlap), "window=%d overlap=%d", p.window, p.overlap)
		}
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	text := strings.Repeat("Held: appeal allowed. ", 300)
	first, err := Split(text, 1000, 200)
	require.NoError(t, err)
	second, err := Split(text, 1000, 200)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChunkDocument(t *testing.T) {
	doc := models.LegalDocument{
		DocID:    "statute_ipc_302",
		Title:    "Punishment for murder",
		Body:     strings.Repeat("Whoever commits murder shall be punished. ", 60),
		DocType:  models.DocTypeStatuteSection,
		Scope:    models.ScopeStatutes,
		Metadata: map[string]string{"code": "ipc", "section": "302"},
	}

	chunks, err := ChunkDocument(doc, 1000, 200)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	seen := make(map[string]bool)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.Less(t, c.Ordinal, c.TotalChunks)
		assert.Equal(t, len(chunks), c.TotalChunks)
		assert.Equal(t, models.ChunkID(doc.DocID, i), c.ChunkID)
		assert.False(t, seen[c.ChunkID], "chunk ids must be unique")
		seen[c.ChunkID] = true

		assert.Equal(t, "ipc", c.Metadata["code"])
		assert.Equal(t, doc.Title, c.Metadata["title"])
		assert.Equal(t, string(models.DocTypeStatuteSection), c.Metadata["doc_type"])

		docID, ordinal, err := models.ParseChunkID(c.ChunkID)
		require.NoError(t, err)
		assert.Equal(t, doc.DocID, docID)
		assert.Equal(t, i, ordinal)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	assert.Equal(t, doc.Body, Reassemble(texts, 200))
}

func TestChunkAllSkipsEmptyDocuments(t *testing.T) {
	docs := []models.LegalDocument{
		{DocID: "a", Body: "Some text."},
		{DocID: "b", Body: ""},
		{DocID: "c", Body: "More text."},
	}
	chunks, errs := ChunkAll(docs, 1000, 200)
	assert.Empty(t, errs)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a_chunk_0", chunks[0].ChunkID)
	assert.Equal(t, "c_chunk_0", chunks[1].ChunkID)
}
