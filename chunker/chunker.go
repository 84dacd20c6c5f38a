// Package chunker splits legal documents into overlapping text windows.
package chunker

import (
	"errors"
	"strings"

	"nyayasetu-backend/models"
)

const (
	DefaultWindowSize = 1000
	DefaultOverlap    = 200

	// sentenceLookback bounds how far back from a window end a cut may move
	sentenceLookback = 100
)

var ErrInvalidWindow = errors.New("window size must be positive and greater than overlap")

func isSentenceTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}

// Split cuts text into windows of windowSize characters. Each window ends
// just after the last sentence terminal found within sentenceLookback
// characters of its nominal end, and the next window starts overlap
// characters before the previous end. Chunks are returned untrimmed so that
// Reassemble(Split(text)) == text.
func Split(text string, windowSize, overlap int) ([]string, error) {
	if windowSize <= 0 || overlap < 0 || overlap >= windowSize {
		return nil, ErrInvalidWindow
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}
	if n <= windowSize {
		return []string{text}, nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + windowSize
		if end < n {
			lookback := min(sentenceLookback, end-start)
			for i := 0; i < lookback; i++ {
				if !isSentenceTerminal(runes[end-i]) {
					continue
				}
				// only snap when the next window still moves forward
				if cut := end - i + 1; cut-overlap > start {
					end = cut
				}
				break
			}
		}
		chunks = append(chunks, string(runes[start:min(end, n)]))
		start = end - overlap
	}

	return chunks, nil
}

// Reassemble joins chunks produced by Split with the same overlap
func Reassemble(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		r := []rune(c)
		if len(r) > overlap {
			b.WriteString(string(r[overlap:]))
		}
	}
	return b.String()
}

// ChunkDocument splits a document body into chunks that inherit the
// document's metadata plus its title, type and scope.
func ChunkDocument(doc models.LegalDocument, windowSize, overlap int) ([]models.Chunk, error) {
	texts, err := Split(doc.Body, windowSize, overlap)
	if err != nil {
		return nil, err
	}

	chunks := make([]models.Chunk, 0, len(texts))
	for i, text := range texts {
		meta := make(map[string]string, len(doc.Metadata)+4)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta["doc_id"] = doc.DocID
		meta["title"] = doc.Title
		meta["doc_type"] = string(doc.DocType)
		meta["scope"] = string(doc.Scope)

		chunks = append(chunks, models.Chunk{
			ChunkID:     models.ChunkID(doc.DocID, i),
			DocID:       doc.DocID,
			Text:        text,
			Ordinal:     i,
			TotalChunks: len(texts),
			Metadata:    meta,
		})
	}
	return chunks, nil
}

// ChunkAll chunks every document, skipping (and reporting) documents that fail
func ChunkAll(docs []models.LegalDocument, windowSize, overlap int) ([]models.Chunk, []error) {
	var all []models.Chunk
	var errs []error
	for _, doc := range docs {
		chunks, err := ChunkDocument(doc, windowSize, overlap)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		all = append(all, chunks...)
	}
	return all, errs
}
