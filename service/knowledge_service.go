package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"nyayasetu-backend/chunker"
	"nyayasetu-backend/corpus"
	"nyayasetu-backend/generation"
	"nyayasetu-backend/logger"
	"nyayasetu-backend/metrics"
	"nyayasetu-backend/models"
	"nyayasetu-backend/storage"
	"nyayasetu-backend/vectorindex"
)

var ErrCorpusNotLoaded = errors.New("legal corpus not loaded")

// Pinned is a consistent (corpus, index) pair. Index is nil while no vector
// index is available for the corpus.
type Pinned struct {
	Corpus *corpus.Snapshot
	Index  *vectorindex.Snapshot
}

// SnapshotSource hands out the pair a single request should read from
type SnapshotSource interface {
	Pin() Pinned
}

// KnowledgeStatus reports what the knowledge base can currently serve
type KnowledgeStatus struct {
	Initialized    bool            `json:"initialized"`
	RAGAvailable   bool            `json:"rag_available"`
	CorpusVersion  string          `json:"corpus_version,omitempty"`
	IndexVersion   string          `json:"index_version,omitempty"`
	EmbeddingModel string          `json:"embedding_model,omitempty"`
	IndexBackend   string          `json:"index_backend,omitempty"`
	Generator      string          `json:"generator,omitempty"`
	Documents      int             `json:"documents"`
	IndexedChunks  int             `json:"indexed_chunks"`
	Error          *string         `json:"error"`
	Features       map[string]bool `json:"features"`
}

// KnowledgeService owns the published corpus snapshot and its vector index.
// It is built once at startup and shared by the search and answer services.
type KnowledgeService struct {
	loader       *corpus.Loader
	manager      *vectorindex.Manager
	store        *storage.SnapshotStore
	generator    generation.Generator
	windowSize   int
	overlap      int
	buildOnStart bool
	logger       zerolog.Logger
	metrics      *metrics.Metrics

	state       atomic.Pointer[Pinned]
	initialized atomic.Bool

	errMu   sync.RWMutex
	lastErr string
}

type KnowledgeOption func(*KnowledgeService)

func KnowledgeWithLoader(l *corpus.Loader) KnowledgeOption {
	return func(k *KnowledgeService) {
		k.loader = l
	}
}

func KnowledgeWithIndexManager(m *vectorindex.Manager) KnowledgeOption {
	return func(k *KnowledgeService) {
		k.manager = m
	}
}

func KnowledgeWithSnapshotStore(s *storage.SnapshotStore) KnowledgeOption {
	return func(k *KnowledgeService) {
		k.store = s
	}
}

// KnowledgeWithGenerator records the generator for status reporting only
func KnowledgeWithGenerator(g generation.Generator) KnowledgeOption {
	return func(k *KnowledgeService) {
		k.generator = g
	}
}

func KnowledgeWithChunking(windowSize, overlap int) KnowledgeOption {
	return func(k *KnowledgeService) {
		k.windowSize = windowSize
		k.overlap = overlap
	}
}

func KnowledgeWithBuildOnStart(build bool) KnowledgeOption {
	return func(k *KnowledgeService) {
		k.buildOnStart = build
	}
}

func KnowledgeWithLogger(l zerolog.Logger) KnowledgeOption {
	return func(k *KnowledgeService) {
		k.logger = logger.Component(l, "knowledge")
	}
}

func KnowledgeWithMetrics(m *metrics.Metrics) KnowledgeOption {
	return func(k *KnowledgeService) {
		k.metrics = m
	}
}

// NewKnowledgeService creates a knowledge service; call Initialize before serving
func NewKnowledgeService(opts ...KnowledgeOption) *KnowledgeService {
	k := &KnowledgeService{
		windowSize: chunker.DefaultWindowSize,
		overlap:    chunker.DefaultOverlap,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.state.Store(&Pinned{})
	return k
}

// Pin returns the currently published pair
func (k *KnowledgeService) Pin() Pinned {
	return *k.state.Load()
}

func (k *KnowledgeService) Ready() bool {
	return k.initialized.Load() && k.Pin().Corpus != nil
}

// Initialize loads the corpus and makes a vector index available for it,
// attaching a persisted one when it matches or building one if configured
// to. Index problems are recorded, not returned: lexical search and the
// direct and static answer strategies keep working without an index.
func (k *KnowledgeService) Initialize(ctx context.Context) error {
	if k.loader == nil {
		err := errors.New("corpus loader not set")
		k.setError(err)
		return err
	}

	docs, report, err := k.loader.Load(ctx)
	if err != nil {
		k.setError(err)
		return fmt.Errorf("failed to load corpus: %w", err)
	}
	snap, err := corpus.NewSnapshot(docs)
	if err != nil {
		k.setError(err)
		return fmt.Errorf("failed to build corpus snapshot: %w", err)
	}
	k.state.Store(&Pinned{Corpus: snap})
	k.initialized.Store(true)
	k.logger.Info().
		Str("corpus_version", snap.Version).
		Int("documents", snap.Len()).
		Int("skipped_files", report.SkippedFiles).
		Int("skipped_records", report.SkippedRecords).
		Msg("corpus snapshot published")

	if k.manager == nil {
		k.setError(errors.New("vector index not configured"))
		return nil
	}

	if err := k.attach(ctx, snap); err == nil {
		k.setError(nil)
		return nil
	} else if !k.buildOnStart {
		k.setError(fmt.Errorf("vector index unavailable: %w", err))
		return nil
	}

	if _, err := k.buildFrom(ctx, snap, docs, nil); err != nil {
		k.setError(fmt.Errorf("vector index build failed: %w", err))
		return nil
	}
	k.setError(nil)
	return nil
}

// attach publishes the persisted index if it was built from snap
func (k *KnowledgeService) attach(ctx context.Context, snap *corpus.Snapshot) error {
	if k.store == nil {
		return errors.New("no snapshot store configured")
	}
	manifest, err := k.store.Current(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current index manifest: %w", err)
	}
	if manifest.CorpusVersion != snap.Version {
		return fmt.Errorf("index %s was built from corpus %s, loaded corpus is %s",
			manifest.IndexVersion, manifest.CorpusVersion, snap.Version)
	}

	chunks := k.chunk(snap.Documents())
	if err := k.manager.Attach(ctx, *manifest, chunks); err != nil {
		k.logger.Warn().Err(err).Str("index_version", manifest.IndexVersion).Msg("failed to attach persisted index")
		return err
	}
	k.state.Store(&Pinned{Corpus: snap, Index: k.manager.Active()})
	return nil
}

// BuildProgress is told which step a build has entered
type BuildProgress func(step string)

// Rebuild reloads the corpus, builds a new index version from it and
// publishes both together
func (k *KnowledgeService) Rebuild(ctx context.Context, progress BuildProgress) (*models.BuildOutcome, error) {
	if k.loader == nil || k.manager == nil {
		return nil, errors.New("knowledge service has no loader or index manager")
	}
	if progress == nil {
		progress = func(string) {}
	}

	progress(models.StepLoadCorpus)
	docs, _, err := k.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	snap, err := corpus.NewSnapshot(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to build corpus snapshot: %w", err)
	}

	outcome, err := k.buildFrom(ctx, snap, docs, progress)
	if err != nil {
		return nil, err
	}
	k.initialized.Store(true)
	k.setError(nil)
	return outcome, nil
}

func (k *KnowledgeService) buildFrom(ctx context.Context, snap *corpus.Snapshot, docs []models.LegalDocument, progress BuildProgress) (*models.BuildOutcome, error) {
	if progress == nil {
		progress = func(string) {}
	}
	start := time.Now()

	progress(models.StepChunk)
	chunks := k.chunk(snap.Documents())

	progress(models.StepEmbedAndIndex)
	report, staged, err := k.manager.Stage(ctx, k.nextIndexVersion(snap.Version), chunks)
	if err != nil {
		k.recordFailedBuild(start)
		return nil, fmt.Errorf("failed to build vector index: %w", err)
	}

	// the staged version only goes live once it is persisted
	progress(models.StepPersistSnapshot)
	if err := k.persist(ctx, snap, docs, staged); err != nil {
		k.manager.Discard(staged)
		k.recordFailedBuild(start)
		return nil, err
	}

	k.manager.Publish(staged)
	k.state.Store(&Pinned{Corpus: snap, Index: staged})
	if k.metrics != nil {
		k.metrics.RecordBuild(string(models.BuildStatusCompleted), report.Embedded, time.Since(start))
	}
	k.logger.Info().
		Str("corpus_version", snap.Version).
		Str("index_version", report.Version).
		Int("chunks", report.Embedded).
		Int("failed_batches", report.FailedBatches).
		Dur("duration", time.Since(start)).
		Msg("knowledge snapshot published")

	return &models.BuildOutcome{
		CorpusVersion: snap.Version,
		IndexVersion:  report.Version,
		ChunkCount:    report.Embedded,
		FailedBatches: report.FailedBatches,
		Warning:       report.Warning,
	}, nil
}

func (k *KnowledgeService) persist(ctx context.Context, snap *corpus.Snapshot, docs []models.LegalDocument, staged *vectorindex.Snapshot) error {
	if k.store == nil {
		return nil
	}
	if err := k.store.SaveCorpus(ctx, snap.Version, docs); err != nil {
		return err
	}
	return k.store.Publish(ctx, staged.Manifest(snap.Version))
}

func (k *KnowledgeService) recordFailedBuild(start time.Time) {
	if k.metrics != nil {
		k.metrics.RecordBuild(string(models.BuildStatusFailed), 0, time.Since(start))
	}
}

func (k *KnowledgeService) chunk(docs []models.LegalDocument) []models.Chunk {
	chunks, errs := chunker.ChunkAll(docs, k.windowSize, k.overlap)
	for _, err := range errs {
		k.logger.Warn().Err(err).Msg("skipping document that could not be chunked")
	}
	return chunks
}

// nextIndexVersion is <corpus>-<unix seconds>, bumped past the active version
func (k *KnowledgeService) nextIndexVersion(corpusVersion string) string {
	ts := time.Now().Unix()
	version := fmt.Sprintf("%s-%d", corpusVersion, ts)
	if active := k.manager.Active(); active != nil {
		for version == active.Version {
			ts++
			version = fmt.Sprintf("%s-%d", corpusVersion, ts)
		}
	}
	return version
}

func (k *KnowledgeService) setError(err error) {
	k.errMu.Lock()
	defer k.errMu.Unlock()
	if err == nil {
		k.lastErr = ""
		return
	}
	k.lastErr = err.Error()
	k.logger.Warn().Err(err).Msg("knowledge base degraded")
}

// Status describes the published snapshot and the last recorded error
func (k *KnowledgeService) Status() KnowledgeStatus {
	pin := k.Pin()
	initialized := k.Ready()
	st := KnowledgeStatus{
		Initialized: initialized,
		Features: map[string]bool{
			"legal_qa":            true,
			"document_assistance": true,
			"case_law_search":     initialized,
			"statute_lookup":      initialized,
			"semantic_search":     pin.Index != nil,
		},
	}
	if pin.Corpus != nil {
		st.CorpusVersion = pin.Corpus.Version
		st.Documents = pin.Corpus.Len()
	}
	if pin.Index != nil {
		st.IndexVersion = pin.Index.Version
		st.EmbeddingModel = pin.Index.Model
		st.IndexBackend = pin.Index.Backend
		st.IndexedChunks = pin.Index.ChunkCount
	}
	if k.generator != nil {
		st.Generator = k.generator.Name()
	}
	st.RAGAvailable = pin.Index != nil && k.generator != nil

	k.errMu.RLock()
	if k.lastErr != "" {
		msg := k.lastErr
		st.Error = &msg
	}
	k.errMu.RUnlock()
	return st
}
