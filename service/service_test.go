package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"nyayasetu-backend/corpus"
	"nyayasetu-backend/embedding"
	"nyayasetu-backend/generation"
	"nyayasetu-backend/models"
	"nyayasetu-backend/storage"
	"nyayasetu-backend/vectorindex"
)

type staticSource struct {
	pin Pinned
}

func (s staticSource) Pin() Pinned { return s.pin }

func statute(code, section, title, description string) models.LegalDocument {
	return models.LegalDocument{
		DocID:   code + "_" + section,
		Title:   fmt.Sprintf("%s Section %s - %s", code, section, title),
		Body:    description,
		DocType: models.DocTypeStatuteSection,
		Scope:   models.ScopeStatutes,
		Fields:  map[string]string{"section": section, "title": title, "description": description},
		Metadata: map[string]string{
			"code": code, "section": section, "source": "laws/" + code + ".json",
		},
	}
}

func caseSummary(id, name, principle, summary string) models.LegalDocument {
	return models.LegalDocument{
		DocID:   id,
		Title:   name,
		Body:    "Case: " + name + "\n" + summary,
		DocType: models.DocTypeCaseSummary,
		Scope:   models.ScopeCases,
		Fields: map[string]string{
			"case_name": name, "citation": "(2020) 1 SCC 1", "court": "Supreme Court",
			"principle": principle, "summary": summary,
		},
		Metadata: map[string]string{"source": "samples/case_summaries.json"},
	}
}

func actSection(section, title, content string) models.LegalDocument {
	return models.LegalDocument{
		DocID:    "companies_act_" + section,
		Title:    "Companies Act 2013 - Section " + section + ": " + title,
		Body:     content,
		DocType:  models.DocTypeActSection,
		Scope:    models.ScopeActs,
		Fields:   map[string]string{"act": "Companies Act 2013", "section": section, "title": title, "content": content},
		Metadata: map[string]string{"act": "Companies Act 2013", "section": section, "source": "samples/companies_act_sections.json"},
	}
}

func testDocuments() []models.LegalDocument {
	return []models.LegalDocument{
		statute("ipc", "302", "Punishment for murder", "Whoever commits murder shall be punished with death or imprisonment for life."),
		statute("ipc", "420", "Cheating", "Cheating and dishonestly inducing delivery of property."),
		statute("nia", "7", "Section 7: Incorporation of company", "On registration the Registrar issues a Certificate of Incorporation."),
		statute("ida", "10", "Reference of disputes to arbitration", "The parties may refer an industrial dispute to arbitration by written agreement."),
		caseSummary("case_1", "Arbitration between Bharat Aluminium and Kaiser", "Seat of arbitration determines supervisory court", "Part I of the Arbitration Act does not apply to foreign-seated arbitration."),
		caseSummary("case_2", "Percept D'Mark v. Zaheer Khan", "Post-term restrictive covenants are void", "Negative covenants operating after the contract fail under Section 27."),
		actSection("7", "Incorporation of company", "Documents to be filed with the Registrar for incorporation."),
	}
}

func testSnapshot(t *testing.T) *corpus.Snapshot {
	t.Helper()
	snap, err := corpus.NewSnapshot(testDocuments())
	require.NoError(t, err)
	return snap
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "laws/ipc.json", `[
		{"section": 302, "title": "Punishment for murder", "description": "Whoever commits murder shall be punished with death or imprisonment for life."},
		{"section": 420, "title": "Cheating", "description": "Cheating and dishonestly inducing delivery of property."}
	]`)
	writeFile(t, dir, "samples/case_summaries.json", `[
		{"case_name": "Percept D'Mark v. Zaheer Khan", "citation": "(2006) 4 SCC 227", "court": "Supreme Court",
		 "principle": "Post-term non-compete covenants are void", "summary": "Negative covenants after expiry fail under Section 27.", "relevance": "Non-compete"}
	]`)
	writeFile(t, dir, "samples/companies_act_sections.json", `[
		{"act": "Companies Act 2013", "section": "7", "title": "Incorporation of company", "content": "Documents to be filed with the Registrar for incorporation of a company."}
	]`)
	writeFile(t, dir, "samples/founder_agreement_clauses.json", `[
		{"clause_type": "Vesting", "standard_terms": "4 years, 1 year cliff", "sample_text": "The founder shares shall vest monthly after the cliff."}
	]`)
	return dir
}

type knowledgeFixture struct {
	knowledge *KnowledgeService
	backend   *vectorindex.MemoryBackend
	store     *storage.SnapshotStore
	dataDir   string
}

func newKnowledgeFixture(t *testing.T, buildOnStart bool) *knowledgeFixture {
	t.Helper()
	dir := testDataDir(t)
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &knowledgeFixture{
		backend: vectorindex.NewMemoryBackend(),
		store:   storage.NewSnapshotStore(local),
		dataDir: dir,
	}
	f.knowledge = f.newKnowledge(buildOnStart)
	return f
}

func (f *knowledgeFixture) newKnowledge(buildOnStart bool, opts ...KnowledgeOption) *KnowledgeService {
	manager := vectorindex.NewManager(f.backend, embedding.NewTFIDFEmbedder())
	base := []KnowledgeOption{
		KnowledgeWithLoader(corpus.NewLoader(f.dataDir)),
		KnowledgeWithIndexManager(manager),
		KnowledgeWithSnapshotStore(f.store),
		KnowledgeWithBuildOnStart(buildOnStart),
	}
	return NewKnowledgeService(append(base, opts...)...)
}

// fakeGenerator records prompts and fails the first failFirst calls
type fakeGenerator struct {
	text      string
	err       error
	failFirst int32
	block     bool

	calls atomic.Int32
	mu    sync.Mutex
	reqs  []generation.Request
}

func (g *fakeGenerator) Name() string { return "fake/test" }

func (g *fakeGenerator) Generate(ctx context.Context, req generation.Request) (string, error) {
	n := g.calls.Add(1)
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()

	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if n <= g.failFirst {
		return "", fmt.Errorf("transient upstream error %d", n)
	}
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

func (g *fakeGenerator) requests() []generation.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generation.Request(nil), g.reqs...)
}
