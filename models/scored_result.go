package models

// ResultType is the kind of a scored search result
type ResultType string

const (
	ResultTypeCase       ResultType = "case"
	ResultTypeStatute    ResultType = "statute"
	ResultTypeActSection ResultType = "act_section"
)

// ScoredResult is a ranked search hit. Produced per query, never persisted.
type ScoredResult struct {
	ResultType     ResultType        `json:"result_type"`
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Subtitle       string            `json:"subtitle,omitempty"`
	Excerpt        string            `json:"excerpt"`
	RelevanceScore float64           `json:"relevance_score"`
	Source         string            `json:"source"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// RetrievalResponse is the fused, paginated answer to a search
type RetrievalResponse struct {
	Results       []ScoredResult `json:"results"`
	Total         int            `json:"total"`
	Query         string         `json:"query"`
	Suggestions   []string       `json:"suggestions"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	Mode          string         `json:"mode"`
	CorpusVersion string         `json:"corpus_version,omitempty"`
	IndexVersion  string         `json:"index_version,omitempty"`
}
