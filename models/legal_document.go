package models

import "fmt"

// DocType classifies a legal document in the corpus
type DocType string

const (
	DocTypeStatuteSection DocType = "statute_section"
	DocTypeCaseSummary    DocType = "case_summary"
	DocTypeActSection     DocType = "act_section"
	DocTypeClauseTemplate DocType = "clause_template"
)

// Scope is a named, independently searchable subset of the corpus
type Scope string

const (
	ScopeCases    Scope = "cases"
	ScopeStatutes Scope = "statutes"
	ScopeActs     Scope = "acts"
	ScopeClauses  Scope = "clauses"
)

// SearchableScopes lists the scopes the search orchestrator fans out to, in merge order.
var SearchableScopes = []Scope{ScopeCases, ScopeStatutes, ScopeActs}

// ParseScope validates a scope name
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeCases, ScopeStatutes, ScopeActs, ScopeClauses:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown scope: %q", s)
	}
}

// ResultType maps a scope to the result type reported in search output
func (s Scope) ResultType() ResultType {
	switch s {
	case ScopeCases:
		return ResultTypeCase
	case ScopeStatutes:
		return ResultTypeStatute
	default:
		return ResultTypeActSection
	}
}

// LegalDocument is a normalized legal document. It is never mutated after
// ingestion; re-ingestion produces a new corpus snapshot instead.
type LegalDocument struct {
	DocID    string            `json:"doc_id"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	DocType  DocType           `json:"doc_type"`
	Scope    Scope             `json:"scope"`
	Fields   map[string]string `json:"fields,omitempty"` // raw source fields used for lexical scoring
	Metadata map[string]string `json:"source_metadata,omitempty"`
}

// Field returns a raw source field, falling back to title and body
func (d *LegalDocument) Field(name string) (string, bool) {
	if v, ok := d.Fields[name]; ok {
		return v, true
	}
	switch name {
	case "title":
		return d.Title, d.Title != ""
	case "body", "content":
		return d.Body, d.Body != ""
	}
	return "", false
}
