package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"nyayasetu-backend/corpus"
	"nyayasetu-backend/lexical"
	"nyayasetu-backend/logger"
	"nyayasetu-backend/metrics"
	"nyayasetu-backend/models"
	"nyayasetu-backend/vectorindex"
)

var (
	ErrEmptyQuery       = errors.New("query must not be empty")
	ErrInvalidScope     = errors.New("invalid scope")
	ErrInvalidLimit     = errors.New("invalid limit")
	ErrInvalidOffset    = errors.New("offset must not be negative")
	ErrInvalidMode      = errors.New("invalid search mode")
	ErrDocumentNotFound = errors.New("document not found")
)

// SearchMode selects the scorers a search runs
type SearchMode string

const (
	ModeLexical  SearchMode = "lexical"
	ModeSemantic SearchMode = "semantic"
	ModeHybrid   SearchMode = "hybrid"
)

func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(s) {
	case ModeLexical, ModeSemantic, ModeHybrid:
		return SearchMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

const (
	excerptChars       = 300
	maxSuggestions     = 5
	semanticCandidates = 50
	defaultListLimit   = 50
	maxListLimit       = 1000
)

// profiles weight title fields over body fields per scope
var profiles = map[models.Scope][]lexical.Field{
	models.ScopeCases: {
		{Name: "case_name", Weight: 2},
		{Name: "principle", Weight: 1},
		{Name: "summary", Weight: 1},
	},
	models.ScopeStatutes: {
		{Name: "title", Weight: 2},
		{Name: "description", Weight: 1},
	},
	models.ScopeActs: {
		{Name: "title", Weight: 2},
		{Name: "content", Weight: 1},
	},
}

// SearchRequest is a ranked search over one or more scopes
type SearchRequest struct {
	Query  string
	Scopes []models.Scope
	Limit  int
	Offset int
	Mode   SearchMode
}

// ListRequest is a non-ranked listing of one scope
type ListRequest struct {
	Scope   models.Scope
	Code    string
	Section string
	Limit   int
	Offset  int
}

// ListResponse is one page of a scope listing
type ListResponse struct {
	Documents []models.LegalDocument `json:"documents"`
	Total     int                    `json:"total"`
	Limit     int                    `json:"limit"`
	Offset    int                    `json:"offset"`
}

// SearchService fuses lexical and semantic results across scopes
type SearchService struct {
	source       SnapshotSource
	defaultLimit int
	maxLimit     int
	defaultMode  SearchMode
	callTimeout  time.Duration
	queryBudget  time.Duration
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

type SearchOption func(*SearchService)

func SearchWithLimits(defaultLimit, maxLimit int) SearchOption {
	return func(s *SearchService) {
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

func SearchWithDefaultMode(mode SearchMode) SearchOption {
	return func(s *SearchService) {
		if mode != "" {
			s.defaultMode = mode
		}
	}
}

// SearchWithBudgets bounds the semantic index call and the whole search
func SearchWithBudgets(call, query time.Duration) SearchOption {
	return func(s *SearchService) {
		if call > 0 {
			s.callTimeout = call
		}
		if query > 0 {
			s.queryBudget = query
		}
	}
}

func SearchWithLogger(l zerolog.Logger) SearchOption {
	return func(s *SearchService) {
		s.logger = logger.Component(l, "search")
	}
}

func SearchWithMetrics(m *metrics.Metrics) SearchOption {
	return func(s *SearchService) {
		s.metrics = m
	}
}

// NewSearchService creates a search service reading from source
func NewSearchService(source SnapshotSource, opts ...SearchOption) *SearchService {
	s := &SearchService{
		source:       source,
		defaultLimit: 20,
		maxLimit:     100,
		defaultMode:  ModeLexical,
		callTimeout:  10 * time.Second,
		queryBudget:  30 * time.Second,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SearchService) normalize(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit == 0 {
		req.Limit = s.defaultLimit
	}
	if req.Limit < 1 || req.Limit > s.maxLimit {
		return fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLimit, s.maxLimit)
	}
	if req.Offset < 0 {
		return ErrInvalidOffset
	}
	if req.Mode == "" {
		req.Mode = s.defaultMode
	}
	if _, err := ParseSearchMode(string(req.Mode)); err != nil {
		return err
	}
	if len(req.Scopes) == 0 {
		req.Scopes = models.SearchableScopes
	}

	// dedupe, keeping canonical scope order
	wanted := make(map[models.Scope]bool, len(req.Scopes))
	for _, sc := range req.Scopes {
		if _, ok := profiles[sc]; !ok {
			return fmt.Errorf("%w: %q is not searchable", ErrInvalidScope, sc)
		}
		wanted[sc] = true
	}
	scopes := make([]models.Scope, 0, len(wanted))
	for _, sc := range models.SearchableScopes {
		if wanted[sc] {
			scopes = append(scopes, sc)
		}
	}
	req.Scopes = scopes
	return nil
}

// Search ranks every selected scope, merges the results by score and
// returns the requested page. All reads go against one pinned snapshot pair.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*models.RetrievalResponse, error) {
	start := time.Now()
	if err := s.normalize(&req); err != nil {
		return nil, err
	}

	pin := s.source.Pin()
	if pin.Corpus == nil {
		return nil, ErrCorpusNotLoaded
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryBudget)
	defer cancel()

	lexicalHits := make([][]models.ScoredResult, len(req.Scopes))
	var semanticHits []vectorindex.Neighbor

	g, gctx := errgroup.WithContext(ctx)
	if req.Mode != ModeSemantic {
		for i, scope := range req.Scopes {
			g.Go(func() error {
				lexicalHits[i] = rankScope(req.Query, pin.Corpus, scope)
				return gctx.Err()
			})
		}
	}
	if req.Mode != ModeLexical {
		if pin.Index == nil {
			s.logger.Debug().Str("query", req.Query).Msg("vector index unavailable, semantic scopes excluded")
		} else {
			g.Go(func() error {
				k := max(req.Offset+req.Limit, semanticCandidates)
				callCtx, cancelCall := context.WithTimeout(gctx, s.callTimeout)
				defer cancelCall()
				hits, err := pin.Index.Query(callCtx, req.Query, k)
				if err != nil {
					// a timed-out index call degrades to lexical-only results
					s.logger.Warn().Err(err).Msg("semantic query failed, semantic scopes excluded")
					return nil
				}
				semanticHits = hits
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	semanticByScope := groupNeighbors(pin.Corpus, semanticHits)
	merged := make([]models.ScoredResult, 0)
	seen := make(map[string]int)
	for i, scope := range req.Scopes {
		for _, r := range append(lexicalHits[i], semanticByScope[scope]...) {
			if j, ok := seen[r.ID]; ok {
				if r.RelevanceScore > merged[j].RelevanceScore {
					merged[j] = r
				}
				continue
			}
			seen[r.ID] = len(merged)
			merged = append(merged, r)
		}
	}
	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].RelevanceScore > merged[b].RelevanceScore
	})

	total := len(merged)
	from := min(req.Offset, total)
	to := min(req.Offset+req.Limit, total)
	page := make([]models.ScoredResult, to-from)
	copy(page, merged[from:to])

	resp := &models.RetrievalResponse{
		Results:       page,
		Total:         total,
		Query:         req.Query,
		Suggestions:   SearchSuggestions(req.Query),
		Limit:         req.Limit,
		Offset:        req.Offset,
		Mode:          string(req.Mode),
		CorpusVersion: pin.Corpus.Version,
	}
	if pin.Index != nil {
		resp.IndexVersion = pin.Index.Version
	}
	if s.metrics != nil {
		s.metrics.RecordSearch(string(req.Mode), total, time.Since(start))
	}
	return resp, nil
}

func rankScope(query string, snap *corpus.Snapshot, scope models.Scope) []models.ScoredResult {
	docs := snap.Scope(scope)
	items := make([]lexical.Item, len(docs))
	for i := range docs {
		items[i] = lexical.Item(docs[i].Fields)
	}
	ranked := lexical.Rank(query, items, profiles[scope], lexical.MinScore)
	out := make([]models.ScoredResult, len(ranked))
	for i, r := range ranked {
		out[i] = toResult(docs[r.Index], r.Score, "")
	}
	return out
}

// groupNeighbors maps chunk hits onto their documents, keeping the best
// chunk per document. Hits arrive most similar first.
func groupNeighbors(snap *corpus.Snapshot, hits []vectorindex.Neighbor) map[models.Scope][]models.ScoredResult {
	out := make(map[models.Scope][]models.ScoredResult)
	seen := make(map[string]bool)
	for _, h := range hits {
		if h.Similarity <= lexical.MinScore || seen[h.DocID] {
			continue
		}
		doc, ok := snap.Get(h.DocID)
		if !ok {
			continue
		}
		if _, searchable := profiles[doc.Scope]; !searchable {
			continue
		}
		seen[h.DocID] = true
		out[doc.Scope] = append(out[doc.Scope], toResult(doc, h.Similarity, h.Text))
	}
	return out
}

func toResult(doc models.LegalDocument, score float64, passage string) models.ScoredResult {
	r := models.ScoredResult{
		ResultType:     doc.Scope.ResultType(),
		ID:             doc.DocID,
		Title:          doc.Title,
		RelevanceScore: score,
		Source:         doc.Metadata["source"],
		Metadata:       make(map[string]string, len(doc.Metadata)+1),
	}
	for k, v := range doc.Metadata {
		r.Metadata[k] = v
	}
	r.Metadata["scope"] = string(doc.Scope)

	body := doc.Body
	switch doc.Scope {
	case models.ScopeCases:
		r.Title = doc.Fields["case_name"]
		r.Subtitle = joinNonEmpty(" | ", doc.Fields["citation"], doc.Fields["court"])
		body = firstNonEmpty(doc.Fields["principle"], doc.Fields["summary"], doc.Body)
	case models.ScopeStatutes:
		r.Subtitle = fmt.Sprintf("%s Section %s", strings.ToUpper(doc.Metadata["code"]), doc.Fields["section"])
		body = firstNonEmpty(doc.Fields["description"], doc.Body)
	case models.ScopeActs:
		r.Subtitle = doc.Fields["act"]
		body = firstNonEmpty(doc.Fields["content"], doc.Body)
	}
	if passage != "" {
		body = passage
	}
	r.Excerpt = excerpt(body, excerptChars)
	return r
}

// ListScope pages through one scope in corpus order, optionally filtered by
// statute code and section
func (s *SearchService) ListScope(ctx context.Context, req ListRequest) (*ListResponse, error) {
	if _, err := models.ParseScope(string(req.Scope)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	if req.Limit == 0 {
		req.Limit = defaultListLimit
	}
	if req.Limit < 1 || req.Limit > maxListLimit {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLimit, maxListLimit)
	}
	if req.Offset < 0 {
		return nil, ErrInvalidOffset
	}

	pin := s.source.Pin()
	if pin.Corpus == nil {
		return nil, ErrCorpusNotLoaded
	}

	docs := pin.Corpus.Scope(req.Scope)
	filtered := make([]models.LegalDocument, 0, len(docs))
	for _, d := range docs {
		if req.Code != "" && !strings.EqualFold(d.Metadata["code"], req.Code) {
			continue
		}
		if req.Section != "" && d.Fields["section"] != req.Section {
			continue
		}
		filtered = append(filtered, d)
	}

	total := len(filtered)
	from := min(req.Offset, total)
	to := min(req.Offset+req.Limit, total)
	return &ListResponse{
		Documents: filtered[from:to],
		Total:     total,
		Limit:     req.Limit,
		Offset:    req.Offset,
	}, nil
}

// GetByIdentifier looks a document up by id within a scope
func (s *SearchService) GetByIdentifier(ctx context.Context, scope models.Scope, id string) (*models.LegalDocument, error) {
	pin := s.source.Pin()
	if pin.Corpus == nil {
		return nil, ErrCorpusNotLoaded
	}
	doc, ok := pin.Corpus.Get(id)
	if !ok || doc.Scope != scope {
		return nil, fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, scope, id)
	}
	return &doc, nil
}

// Stats counts the loaded documents per collection
func (s *SearchService) Stats(ctx context.Context) (*corpus.Stats, error) {
	pin := s.source.Pin()
	if pin.Corpus == nil {
		return nil, ErrCorpusNotLoaded
	}
	st := pin.Corpus.Stats()
	return &st, nil
}

// Laws lists the statute codes the corpus can hold
func (s *SearchService) Laws() []string {
	out := make([]string, len(corpus.LawCodes))
	copy(out, corpus.LawCodes)
	return out
}

// SearchSuggestions returns up to five follow-up queries: a curated list when
// a keyword matches, otherwise the query in three generic phrasings.
func SearchSuggestions(query string) []string {
	if s := matchFollowUps(query); s != nil {
		return s[:min(len(s), maxSuggestions)]
	}
	q := strings.TrimSpace(query)
	return []string{
		q + " under the applicable law",
		q + " case law",
		q + " compliance requirements",
	}
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
