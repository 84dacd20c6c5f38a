package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nyayasetu-backend/models"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testDataDir(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, dir, "laws/ipc.json", `[
		{"section": 302, "title": "Punishment for murder", "description": "Whoever commits murder shall be punished with death or imprisonment for life."},
		{"section": "420", "title": "Cheating", "description": "Cheating and dishonestly inducing delivery of property."},
		{"title": "no section"}
	]`)
	writeFile(t, dir, "laws/MVA.json", `[{"section": 185, "title": "Driving by a drunken person", "description": "Penalty for drunken driving."}]`)
	writeFile(t, dir, "laws/cpc.json", `{not json`)
	writeFile(t, dir, "samples/case_summaries.json", `[
		{"case_name": "Percept D'Mark v. Zaheer Khan", "citation": "(2006) 4 SCC 227", "court": "Supreme Court",
		 "principle": "Post-term restrictive covenants are void", "summary": "Negative covenants after expiry fail Section 27.", "relevance": "Non-compete"}
	]`)
	writeFile(t, dir, "samples/companies_act_sections.json", `[
		{"act": "Companies Act 2013", "section": "7", "title": "Incorporation of company", "content": "Documents to be filed with the Registrar."}
	]`)
	writeFile(t, dir, "samples/founder_agreement_clauses.json", `[
		{"clause_type": "Vesting", "standard_terms": "4 years, 1 year cliff", "sample_text": "The Founder's shares shall vest..."}
	]`)
	return dir
}

func TestLoader(t *testing.T) {
	dir := testDataDir(t)
	docs, report, err := NewLoader(dir).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Documents)
	assert.Equal(t, 1, report.SkippedFiles, "malformed cpc.json")
	assert.Equal(t, 1, report.SkippedRecords, "ipc record without section")

	snap, err := NewSnapshot(docs)
	require.NoError(t, err)

	ipc, ok := snap.Get("ipc_302")
	require.True(t, ok)
	assert.Equal(t, "IPC Section 302 - Punishment for murder", ipc.Title)
	assert.Equal(t, models.ScopeStatutes, ipc.Scope)
	title, _ := ipc.Field("title")
	assert.Equal(t, "Punishment for murder", title)

	_, ok = snap.Get("mva_185")
	assert.True(t, ok, "upper-case law file names are found")

	c, ok := snap.Get("case_1")
	require.True(t, ok)
	assert.Contains(t, c.Body, "Citation: (2006) 4 SCC 227")
	assert.Contains(t, c.Body, "Legal Principle: Post-term restrictive covenants are void")

	act, ok := snap.Get("companies_act_7")
	require.True(t, ok)
	assert.Equal(t, "Companies Act 2013 - Section 7: Incorporation of company", act.Title)

	clause, ok := snap.Get("clause_vesting")
	require.True(t, ok)
	assert.Equal(t, "Founder Agreement - Vesting", clause.Title)
	assert.Equal(t, models.ScopeClauses, clause.Scope)

	st := snap.Stats()
	assert.Equal(t, 2, st.Laws["ipc"])
	assert.Equal(t, 1, st.Laws["mva"])
	assert.Equal(t, 0, st.Laws["cpc"])
	assert.Equal(t, 1, st.Cases)
	assert.Equal(t, 1, st.CompaniesActSections)
	assert.Equal(t, 1, st.Clauses)
}

func TestLoaderMissingDir(t *testing.T) {
	_, _, err := NewLoader(filepath.Join(t.TempDir(), "nope")).Load(context.Background())
	assert.Error(t, err)

	_, _, err = NewLoader(t.TempDir()).Load(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestSnapshotVersion(t *testing.T) {
	a := models.LegalDocument{DocID: "a", Title: "A", Scope: models.ScopeActs}
	b := models.LegalDocument{DocID: "b", Title: "B", Scope: models.ScopeCases}

	s1, err := NewSnapshot([]models.LegalDocument{a, b})
	require.NoError(t, err)
	s2, err := NewSnapshot([]models.LegalDocument{b, a})
	require.NoError(t, err)
	assert.Equal(t, s1.Version, s2.Version, "load order does not matter")
	assert.Len(t, s1.Version, 16)

	b.Title = "B2"
	s3, err := NewSnapshot([]models.LegalDocument{a, b})
	require.NoError(t, err)
	assert.NotEqual(t, s1.Version, s3.Version)

	assert.Equal(t, []models.LegalDocument{b}, s3.Scope(models.ScopeCases))

	_, err = NewSnapshot([]models.LegalDocument{a, a})
	assert.ErrorIs(t, err, ErrDuplicateDocument)

	_, err = NewSnapshot(nil)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}
