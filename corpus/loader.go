package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"nyayasetu-backend/models"
)

// flexString accepts JSON strings and numbers, since section numbers appear as both
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type lawSection struct {
	Section     flexString `json:"section"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
}

type caseSummary struct {
	CaseName  string `json:"case_name"`
	Citation  string `json:"citation"`
	Court     string `json:"court"`
	Principle string `json:"principle"`
	Summary   string `json:"summary"`
	Relevance string `json:"relevance"`
}

type companiesActSection struct {
	Act     string     `json:"act"`
	Section flexString `json:"section"`
	Title   string     `json:"title"`
	Content string     `json:"content"`
}

type clauseTemplate struct {
	ClauseType    string `json:"clause_type"`
	StandardTerms string `json:"standard_terms"`
	SampleText    string `json:"sample_text"`
}

// LoadReport counts what a Load call read and skipped
type LoadReport struct {
	Files          int
	Documents      int
	SkippedFiles   int
	SkippedRecords int
}

// Loader reads the source collections under a data directory:
//
//	laws/<code>.json
//	samples/case_summaries.json
//	samples/companies_act_sections.json
//	samples/founder_agreement_clauses.json
type Loader struct {
	dataDir string
	logger  zerolog.Logger
}

type LoaderOption func(*Loader)

func LoaderWithLogger(l zerolog.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l }
}

func NewLoader(dataDir string, opts ...LoaderOption) *Loader {
	l := &Loader{dataDir: dataDir, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every collection. Missing or malformed files and records are
// logged and skipped; it fails only when nothing usable was found.
func (l *Loader) Load(ctx context.Context) ([]models.LegalDocument, LoadReport, error) {
	var report LoadReport
	if _, err := os.Stat(l.dataDir); err != nil {
		return nil, report, fmt.Errorf("failed to open data directory %s: %w", l.dataDir, err)
	}

	var docs []models.LegalDocument
	add := func(more []models.LegalDocument, err error, path string) {
		switch {
		case errors.Is(err, os.ErrNotExist):
			l.logger.Debug().Str("file", path).Msg("collection not present")
		case err != nil:
			report.SkippedFiles++
			l.logger.Warn().Err(err).Str("file", path).Msg("skipping malformed collection")
		default:
			report.Files++
			docs = append(docs, more...)
		}
	}

	for _, code := range LawCodes {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		path := l.lawPath(code)
		more, err := l.loadLaw(path, code, &report)
		add(more, err, path)
	}

	path := filepath.Join(l.dataDir, "samples", "case_summaries.json")
	more, err := l.loadCases(path, &report)
	add(more, err, path)

	path = filepath.Join(l.dataDir, "samples", "companies_act_sections.json")
	more, err = l.loadCompaniesAct(path, &report)
	add(more, err, path)

	path = filepath.Join(l.dataDir, "samples", "founder_agreement_clauses.json")
	more, err = l.loadClauses(path, &report)
	add(more, err, path)

	report.Documents = len(docs)
	if len(docs) == 0 {
		return nil, report, fmt.Errorf("%w under %s", ErrEmptyCorpus, l.dataDir)
	}
	return docs, report, nil
}

// lawPath prefers laws/<code>.json and falls back to an upper-case file name
func (l *Loader) lawPath(code string) string {
	path := filepath.Join(l.dataDir, "laws", code+".json")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	upper := filepath.Join(l.dataDir, "laws", strings.ToUpper(code)+".json")
	if _, err := os.Stat(upper); err == nil {
		return upper
	}
	return path
}

func readRecords(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

func (l *Loader) skip(report *LoadReport, path string, i int, err error) {
	report.SkippedRecords++
	l.logger.Warn().Err(err).Str("file", path).Int("record", i).Msg("skipping malformed record")
}

func (l *Loader) loadLaw(path, code string, report *LoadReport) ([]models.LegalDocument, error) {
	records, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(code)
	seen := make(map[string]int)
	docs := make([]models.LegalDocument, 0, len(records))
	for i, raw := range records {
		var s lawSection
		if err := json.Unmarshal(raw, &s); err != nil {
			l.skip(report, path, i, err)
			continue
		}
		if s.Section == "" || (s.Title == "" && s.Description == "") {
			l.skip(report, path, i, errors.New("section without number or text"))
			continue
		}
		section := string(s.Section)
		docID := code + "_" + slug(section)
		// some collections repeat a section number for sub-sections
		if n := seen[docID]; n > 0 {
			seen[docID]++
			docID = fmt.Sprintf("%s_%d", docID, n+1)
		} else {
			seen[docID] = 1
		}
		docs = append(docs, models.LegalDocument{
			DocID:   docID,
			Title:   fmt.Sprintf("%s Section %s - %s", upper, section, s.Title),
			Body:    s.Description,
			DocType: models.DocTypeStatuteSection,
			Scope:   models.ScopeStatutes,
			Fields: map[string]string{
				"section":     section,
				"title":       s.Title,
				"description": s.Description,
			},
			Metadata: map[string]string{"code": code, "section": section, "source": "laws/" + filepath.Base(path)},
		})
	}
	return docs, nil
}

func (l *Loader) loadCases(path string, report *LoadReport) ([]models.LegalDocument, error) {
	records, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	docs := make([]models.LegalDocument, 0, len(records))
	for i, raw := range records {
		var c caseSummary
		if err := json.Unmarshal(raw, &c); err != nil {
			l.skip(report, path, i, err)
			continue
		}
		if strings.TrimSpace(c.CaseName) == "" {
			l.skip(report, path, i, errors.New("case without a name"))
			continue
		}
		body := fmt.Sprintf("Case: %s\nCitation: %s\nCourt: %s\nLegal Principle: %s\n\nSummary:\n%s\n\nRelevance:\n%s",
			c.CaseName, c.Citation, c.Court, c.Principle, c.Summary, c.Relevance)
		docs = append(docs, models.LegalDocument{
			DocID:   "case_" + strconv.Itoa(i+1),
			Title:   c.CaseName,
			Body:    body,
			DocType: models.DocTypeCaseSummary,
			Scope:   models.ScopeCases,
			Fields: map[string]string{
				"case_name": c.CaseName,
				"citation":  c.Citation,
				"court":     c.Court,
				"principle": c.Principle,
				"summary":   c.Summary,
				"relevance": c.Relevance,
			},
			Metadata: map[string]string{"citation": c.Citation, "court": c.Court, "source": "samples/case_summaries.json"},
		})
	}
	return docs, nil
}

func (l *Loader) loadCompaniesAct(path string, report *LoadReport) ([]models.LegalDocument, error) {
	records, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	docs := make([]models.LegalDocument, 0, len(records))
	for i, raw := range records {
		var s companiesActSection
		if err := json.Unmarshal(raw, &s); err != nil {
			l.skip(report, path, i, err)
			continue
		}
		if s.Section == "" {
			l.skip(report, path, i, errors.New("section without a number"))
			continue
		}
		act := s.Act
		if act == "" {
			act = "Companies Act 2013"
		}
		section := string(s.Section)
		docs = append(docs, models.LegalDocument{
			DocID:   "companies_act_" + slug(section),
			Title:   fmt.Sprintf("%s - Section %s: %s", act, section, s.Title),
			Body:    s.Content,
			DocType: models.DocTypeActSection,
			Scope:   models.ScopeActs,
			Fields: map[string]string{
				"act":     act,
				"section": section,
				"title":   s.Title,
				"content": s.Content,
			},
			Metadata: map[string]string{"act": act, "section": section, "source": "samples/companies_act_sections.json"},
		})
	}
	return docs, nil
}

func (l *Loader) loadClauses(path string, report *LoadReport) ([]models.LegalDocument, error) {
	records, err := readRecords(path)
	if err != nil {
		return nil, err
	}
	docs := make([]models.LegalDocument, 0, len(records))
	for i, raw := range records {
		var c clauseTemplate
		if err := json.Unmarshal(raw, &c); err != nil {
			l.skip(report, path, i, err)
			continue
		}
		if strings.TrimSpace(c.ClauseType) == "" {
			l.skip(report, path, i, errors.New("clause without a type"))
			continue
		}
		body := fmt.Sprintf("Clause Type: %s\nStandard Terms: %s\n\nSample Text:\n%s", c.ClauseType, c.StandardTerms, c.SampleText)
		docs = append(docs, models.LegalDocument{
			DocID:   "clause_" + slug(c.ClauseType),
			Title:   "Founder Agreement - " + c.ClauseType,
			Body:    body,
			DocType: models.DocTypeClauseTemplate,
			Scope:   models.ScopeClauses,
			Fields: map[string]string{
				"clause_type":    c.ClauseType,
				"standard_terms": c.StandardTerms,
				"sample_text":    c.SampleText,
			},
			Metadata: map[string]string{"clause_type": c.ClauseType, "source": "samples/founder_agreement_clauses.json"},
		})
	}
	return docs, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "_"), "_")
}
