package embedding

import (
	"context"
	"encoding/hex"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// TFIDFEmbedder is an in-process TF-IDF vectorizer. The zero-vocabulary value
// returned by NewTFIDFEmbedder must be fitted with Prepare before use.
type TFIDFEmbedder struct {
	vocabulary map[string]int
	idf        []float32
	maxTerms   int
	vocabHash  string
	stopwords  map[string]struct{}
}

type TFIDFOption func(*TFIDFEmbedder)

// TFIDFWithMaxTerms keeps only the n terms with the highest document frequency
func TFIDFWithMaxTerms(n int) TFIDFOption {
	return func(e *TFIDFEmbedder) {
		if n > 0 {
			e.maxTerms = n
		}
	}
}

// NewTFIDFEmbedder creates an unprepared TF-IDF embedder
func NewTFIDFEmbedder(opts ...TFIDFOption) *TFIDFEmbedder {
	e := &TFIDFEmbedder{stopwords: defaultStopwords()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model includes a vocabulary hash so differently fitted embedders never compare equal
func (e *TFIDFEmbedder) Model() string {
	if e.vocabHash == "" {
		return "tfidf@unprepared"
	}
	return "tfidf@" + e.vocabHash
}

func (e *TFIDFEmbedder) Dimension() int { return len(e.idf) }

// Prepare builds the vocabulary and IDF values from the provided corpus
func (e *TFIDFEmbedder) Prepare(corpus []string) (Embedder, error) {
	if len(corpus) == 0 {
		return nil, errors.New("empty corpus for TF-IDF prepare")
	}

	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return nil, errors.New("no tokens found in corpus")
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if e.maxTerms > 0 && len(terms) > e.maxTerms {
		sort.Slice(terms, func(i, j int) bool {
			if df[terms[i]] != df[terms[j]] {
				return df[terms[i]] > df[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:e.maxTerms]
	}
	// stable ordering for vocabulary
	sort.Strings(terms)

	fitted := &TFIDFEmbedder{
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float32, len(terms)),
		maxTerms:   e.maxTerms,
		stopwords:  e.stopwords,
	}
	n := float64(len(corpus))
	h, _ := blake2b.New256(nil)
	for i, term := range terms {
		fitted.vocabulary[term] = i
		// Smoothed IDF
		idf := math.Log((1+n)/(1+float64(df[term]))) + 1.0
		fitted.idf[i] = float32(idf)
		h.Write([]byte(term))
		h.Write([]byte{0})
	}
	fitted.vocabHash = hex.EncodeToString(h.Sum(nil))[:12]
	return fitted, nil
}

// Embed computes L2-normalised TF-IDF vectors. Text with no known terms
// yields a zero vector.
func (e *TFIDFEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.vocabulary == nil {
		return nil, ErrNotPrepared
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *TFIDFEmbedder) vector(text string) []float32 {
	vec := make([]float32, len(e.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range e.tokenize(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec
	}
	for idx, count := range tf {
		vec[idx] = float32(count) / float32(total) * e.idf[idx]
	}
	return Normalize(vec)
}

func (e *TFIDFEmbedder) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as",
		"is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down",
		"over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during",
		"before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should",
		"now", "shall", "any", "may", "which", "who", "whom", "other", "not", "no",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
