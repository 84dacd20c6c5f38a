// Package lexical implements the field-weighted fuzzy relevance scorer used
// by direct search endpoints and as the retrieval-less ranking signal.
//
// The scorer is deterministic and has no side effects: the same query, item
// and field profile always produce the same score.
package lexical

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	// MinScore is the retention threshold; results must score strictly above it
	MinScore = 0.1

	substringBase   = 0.7
	positionBonus   = 0.3
	overlapBase     = 0.3
	overlapSpan     = 0.4
	similarityScale = 0.5
	similarityChars = 200
)

// Item is a scorable record keyed by field name
type Item map[string]string

// Field names an item field and its weight in the aggregate. A field with
// weight zero or below is left out of the score entirely.
type Field struct {
	Name   string
	Weight float64
}

// Fields builds a uniformly weighted profile
func Fields(names ...string) []Field {
	fields := make([]Field, len(names))
	for i, n := range names {
		fields[i] = Field{Name: n, Weight: 1}
	}
	return fields
}

// FieldScore scores a single field value against a query:
// substring match (0.7 plus a position bonus), else word overlap
// (0.3 plus up to 0.4), else half the edit similarity.
func FieldScore(query, value string) float64 {
	if query == "" || value == "" {
		return 0
	}

	q := strings.ToLower(query)
	v := strings.ToLower(value)

	if idx := strings.Index(v, q); idx >= 0 {
		pos := float64(utf8.RuneCountInString(v[:idx]))
		length := float64(utf8.RuneCountInString(v))
		return min(1.0, substringBase+(1-pos/length)*positionBonus)
	}

	qWords := wordSet(q)
	if len(qWords) > 0 {
		vWords := wordSet(v)
		common := 0
		for w := range qWords {
			if _, ok := vWords[w]; ok {
				common++
			}
		}
		if common > 0 {
			ratio := float64(common) / float64(len(qWords))
			return overlapBase + ratio*overlapSpan
		}
	}

	return similarity(q, prefix(v, similarityChars)) * similarityScale
}

// Score returns the weighted average of per-field scores. A field missing
// from the item contributes zero for its weight; a non-positive weight
// excludes the field.
func Score(query string, item Item, fields []Field) float64 {
	if len(fields) == 0 {
		return 0
	}

	var total, weightSum float64
	for _, f := range fields {
		w := f.Weight
		if w <= 0 {
			continue
		}
		weightSum += w
		if v, ok := item[f.Name]; ok {
			total += FieldScore(query, v) * w
		}
	}
	if weightSum == 0 {
		return 0
	}
	return total / weightSum
}

// Scored pairs an item position with its aggregate score
type Scored struct {
	Index int
	Score float64
}

// Rank scores every item, keeps those above threshold and orders them by
// descending score. Ties keep corpus order.
func Rank(query string, items []Item, fields []Field, threshold float64) []Scored {
	out := make([]Scored, 0)
	for i, item := range items {
		s := Score(query, item, fields)
		if s > threshold {
			out = append(out, Scored{Index: i, Score: s})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	return out
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// similarity is 1 - levenshtein/max(len), in [0,1]
func similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
