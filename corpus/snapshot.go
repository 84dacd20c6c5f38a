// Package corpus loads the legal source collections and freezes them into
// immutable, content-addressed snapshots.
package corpus

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"nyayasetu-backend/models"
)

var (
	ErrDuplicateDocument = errors.New("duplicate document id")
	ErrEmptyCorpus       = errors.New("corpus has no documents")
)

// LawCodes are the statute collections the corpus knows about, in display order
var LawCodes = []string{"cpc", "ipc", "crpc", "hma", "ida", "iea", "mva", "nia"}

// Snapshot is an immutable set of documents identified by a content hash
type Snapshot struct {
	Version   string
	documents []models.LegalDocument
	byID      map[string]int
	byScope   map[models.Scope][]int
}

// Stats mirrors the per-collection counts exposed by the legal data API
type Stats struct {
	Laws                 map[string]int `json:"laws"`
	Cases                int            `json:"cases"`
	CompaniesActSections int            `json:"companies_act_sections"`
	Clauses              int            `json:"clauses"`
}

// NewSnapshot freezes docs. Documents are ordered by id so the version only
// depends on content, not on load order.
func NewSnapshot(docs []models.LegalDocument) (*Snapshot, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}

	sorted := make([]models.LegalDocument, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DocID < sorted[j].DocID })

	s := &Snapshot{
		documents: sorted,
		byID:      make(map[string]int, len(sorted)),
		byScope:   make(map[models.Scope][]int),
	}
	for i, d := range sorted {
		if _, ok := s.byID[d.DocID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDocument, d.DocID)
		}
		s.byID[d.DocID] = i
		s.byScope[d.Scope] = append(s.byScope[d.Scope], i)
	}

	version, err := ComputeVersion(sorted)
	if err != nil {
		return nil, err
	}
	s.Version = version
	return s, nil
}

// ComputeVersion is the first 16 hex chars of BLAKE2b-256 over the canonical
// JSON of docs. Map keys marshal in sorted order, so the encoding is stable.
func ComputeVersion(docs []models.LegalDocument) (string, error) {
	data, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("failed to encode corpus: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}

func (s *Snapshot) Len() int { return len(s.documents) }

// Documents returns all documents ordered by id
func (s *Snapshot) Documents() []models.LegalDocument {
	out := make([]models.LegalDocument, len(s.documents))
	copy(out, s.documents)
	return out
}

// Get looks a document up by id
func (s *Snapshot) Get(id string) (models.LegalDocument, bool) {
	i, ok := s.byID[id]
	if !ok {
		return models.LegalDocument{}, false
	}
	return s.documents[i], true
}

// Scope returns the documents of one scope in snapshot order
func (s *Snapshot) Scope(scope models.Scope) []models.LegalDocument {
	idx := s.byScope[scope]
	out := make([]models.LegalDocument, len(idx))
	for i, j := range idx {
		out[i] = s.documents[j]
	}
	return out
}

// Stats counts documents per collection
func (s *Snapshot) Stats() Stats {
	st := Stats{Laws: make(map[string]int, len(LawCodes))}
	for _, code := range LawCodes {
		st.Laws[code] = 0
	}
	for _, d := range s.documents {
		switch d.Scope {
		case models.ScopeStatutes:
			st.Laws[strings.ToLower(d.Metadata["code"])]++
		case models.ScopeCases:
			st.Cases++
		case models.ScopeActs:
			st.CompaniesActSections++
		case models.ScopeClauses:
			st.Clauses++
		}
	}
	return st
}
