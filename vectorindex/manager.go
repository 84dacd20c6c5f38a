package vectorindex

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"nyayasetu-backend/embedding"
	"nyayasetu-backend/metrics"
	"nyayasetu-backend/models"
)

const (
	DefaultBatchSize        = 100
	DefaultFailureThreshold = 3
	DefaultCallTimeout      = 60 * time.Second
)

// Snapshot is one published index version together with the embedder that
// produced it. Readers pin a Snapshot and keep using it even after a newer
// one is published.
type Snapshot struct {
	Version       string
	Model         string
	Dimension     int
	Backend       string
	ChunkCount    int
	FailedBatches int
	CreatedAt     time.Time

	index    Index
	embedder embedding.Embedder
}

// Query embeds text and returns its k nearest chunks, most similar first
func (s *Snapshot) Query(ctx context.Context, text string, k int) ([]Neighbor, error) {
	if s.embedder.Model() != s.Model {
		return nil, fmt.Errorf("%w: index built with %s, query embedder is %s", ErrModelMismatch, s.Model, s.embedder.Model())
	}

	vector, err := embedding.EmbedQuery(ctx, s.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vector) != s.Dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, index has %d", ErrModelMismatch, len(vector), s.Dimension)
	}

	hits, err := s.index.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query index %s: %w", s.Version, err)
	}
	for i := range hits {
		hits[i].Similarity = clamp01(hits[i].Similarity)
	}
	return hits, nil
}

// Manifest describes the snapshot for persistence alongside its corpus
func (s *Snapshot) Manifest(corpusVersion string) models.SnapshotManifest {
	return models.SnapshotManifest{
		CorpusVersion:  corpusVersion,
		IndexVersion:   s.Version,
		Backend:        s.Backend,
		EmbeddingModel: s.Model,
		Dimension:      s.Dimension,
		ChunkCount:     s.ChunkCount,
		FailedBatches:  s.FailedBatches,
		CreatedAt:      s.CreatedAt,
	}
}

// BuildReport summarises one Build call
type BuildReport struct {
	Version       string
	Model         string
	Dimension     int
	Embedded      int
	Skipped       int
	TotalBatches  int
	FailedBatches int
	Warning       string
	Duration      time.Duration
}

// Manager builds index versions and swaps the active one atomically
type Manager struct {
	backend          Backend
	embedder         embedding.Embedder
	logger           zerolog.Logger
	metrics          *metrics.Metrics
	batchSize        int
	failureThreshold int
	callTimeout      time.Duration

	current  atomic.Pointer[Snapshot]
	building atomic.Bool

	retireMu sync.Mutex
	retired  *Snapshot // published two swaps ago, dropped on the next swap
}

// ManagerOption is a functional option for configuring Manager
type ManagerOption func(*Manager)

func ManagerWithBatchSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

func ManagerWithFailureThreshold(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 0 {
			m.failureThreshold = n
		}
	}
}

func ManagerWithCallTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.callTimeout = d
		}
	}
}

func ManagerWithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

func ManagerWithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Manager with no active snapshot
func NewManager(backend Backend, embedder embedding.Embedder, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:          backend,
		embedder:         embedder,
		logger:           zerolog.Nop(),
		batchSize:        DefaultBatchSize,
		failureThreshold: DefaultFailureThreshold,
		callTimeout:      DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ready reports whether a snapshot has been published
func (m *Manager) Ready() bool {
	return m.current.Load() != nil
}

// Active returns the published snapshot, or nil
func (m *Manager) Active() *Snapshot {
	return m.current.Load()
}

// Backend returns the backend name
func (m *Manager) Backend() string {
	return m.backend.Name()
}

// Query runs against the active snapshot
func (m *Manager) Query(ctx context.Context, text string, k int) ([]Neighbor, error) {
	snap := m.current.Load()
	if snap == nil {
		return nil, ErrIndexNotReady
	}
	return snap.Query(ctx, text, k)
}

// Build embeds chunks into a new version and publishes it. Only one build
// runs at a time; a failed build leaves the active snapshot untouched.
func (m *Manager) Build(ctx context.Context, version string, chunks []models.Chunk) (*BuildReport, error) {
	report, snap, err := m.Stage(ctx, version, chunks)
	if err != nil {
		return report, err
	}
	m.Publish(snap)
	return report, nil
}

// Stage embeds chunks into a new version without publishing it. The caller
// must either Publish or Discard the returned snapshot.
func (m *Manager) Stage(ctx context.Context, version string, chunks []models.Chunk) (*BuildReport, *Snapshot, error) {
	if !m.building.CompareAndSwap(false, true) {
		return nil, nil, ErrBuildInProgress
	}
	defer m.building.Store(false)

	start := time.Now()
	report := &BuildReport{Version: version}

	work := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			report.Skipped++
			continue
		}
		work = append(work, c)
	}

	embedder, err := m.fit(work)
	if err != nil {
		return report, nil, err
	}
	report.Model = embedder.Model()
	report.Dimension = embedder.Dimension()

	idx, err := m.backend.Create(ctx, version, embedder.Dimension())
	if err != nil {
		return report, nil, fmt.Errorf("failed to create index %s: %w", version, err)
	}

	for i := 0; i < len(work); i += m.batchSize {
		if err := ctx.Err(); err != nil {
			m.dropQuietly(version)
			return report, nil, err
		}
		end := min(i+m.batchSize, len(work))
		report.TotalBatches++

		n, err := m.embedBatch(ctx, embedder, idx, work[i:end])
		if m.metrics != nil {
			m.metrics.RecordEmbeddingBatch(err == nil)
		}
		if err != nil {
			report.FailedBatches++
			m.logger.Warn().Err(err).
				Str("version", version).
				Int("batch", report.TotalBatches).
				Int("size", end-i).
				Msg("embedding batch failed, skipping")
			continue
		}
		report.Embedded += n
	}

	report.Duration = time.Since(start)

	if report.Embedded == 0 {
		m.dropQuietly(version)
		return report, nil, ErrEmptyIndex
	}
	if report.FailedBatches > m.failureThreshold {
		report.Warning = fmt.Sprintf("%d of %d embedding batches failed; index is partial", report.FailedBatches, report.TotalBatches)
		m.logger.Warn().Str("version", version).Msg(report.Warning)
	}

	snap := &Snapshot{
		Version:       version,
		Model:         embedder.Model(),
		Dimension:     embedder.Dimension(),
		Backend:       m.backend.Name(),
		ChunkCount:    report.Embedded,
		FailedBatches: report.FailedBatches,
		CreatedAt:     time.Now().UTC(),
		index:         idx,
		embedder:      embedder,
	}

	m.logger.Info().
		Str("version", version).
		Str("model", report.Model).
		Int("chunks", report.Embedded).
		Int("failed_batches", report.FailedBatches).
		Dur("duration", report.Duration).
		Msg("index snapshot staged")

	return report, snap, nil
}

// Publish makes a staged snapshot the active one
func (m *Manager) Publish(snap *Snapshot) {
	m.publish(snap)
	m.logger.Info().Str("version", snap.Version).Msg("index snapshot published")
}

// Discard drops a staged snapshot that will never be published
func (m *Manager) Discard(snap *Snapshot) {
	if snap == nil {
		return
	}
	if active := m.current.Load(); active != nil && active.Version == snap.Version {
		return
	}
	m.dropQuietly(snap.Version)
}

// Attach publishes a version persisted by another process. chunks are the
// corpus chunks the version was built from; they are needed to refit
// embedders that learn from the corpus.
func (m *Manager) Attach(ctx context.Context, manifest models.SnapshotManifest, chunks []models.Chunk) error {
	if manifest.Backend != "" && manifest.Backend != m.backend.Name() {
		return fmt.Errorf("index %s was built for backend %s, configured backend is %s",
			manifest.IndexVersion, manifest.Backend, m.backend.Name())
	}

	work := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) != "" {
			work = append(work, c)
		}
	}
	embedder, err := m.fit(work)
	if err != nil {
		return err
	}
	if embedder.Model() != manifest.EmbeddingModel {
		return fmt.Errorf("%w: index built with %s, query embedder is %s", ErrModelMismatch, manifest.EmbeddingModel, embedder.Model())
	}

	idx, err := m.backend.Open(ctx, manifest.IndexVersion, manifest.Dimension)
	if err != nil {
		return fmt.Errorf("failed to open index %s: %w", manifest.IndexVersion, err)
	}

	m.publish(&Snapshot{
		Version:       manifest.IndexVersion,
		Model:         manifest.EmbeddingModel,
		Dimension:     manifest.Dimension,
		Backend:       m.backend.Name(),
		ChunkCount:    manifest.ChunkCount,
		FailedBatches: manifest.FailedBatches,
		CreatedAt:     manifest.CreatedAt,
		index:         idx,
		embedder:      embedder,
	})
	m.logger.Info().Str("version", manifest.IndexVersion).Msg("index snapshot attached")
	return nil
}

func (m *Manager) fit(chunks []models.Chunk) (embedding.Embedder, error) {
	p, ok := m.embedder.(embedding.Preparer)
	if !ok {
		return m.embedder, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	fitted, err := p.Prepare(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare embedder: %w", err)
	}
	return fitted, nil
}

func (m *Manager) embedBatch(ctx context.Context, embedder embedding.Embedder, idx Index, batch []models.Chunk) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := embedder.Embed(callCtx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(batch) {
		return 0, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(batch))
	}

	records := make([]Record, len(batch))
	for i, c := range batch {
		records[i] = Record{
			ChunkID:  c.ChunkID,
			DocID:    c.DocID,
			Text:     c.Text,
			Metadata: c.Metadata,
			Vector:   vectors[i],
		}
	}
	if err := idx.Upsert(callCtx, records); err != nil {
		return 0, fmt.Errorf("failed to upsert batch: %w", err)
	}
	return len(records), nil
}

// publish swaps in snap and drops the version from two swaps ago
func (m *Manager) publish(snap *Snapshot) {
	prev := m.current.Swap(snap)

	m.retireMu.Lock()
	stale := m.retired
	m.retired = prev
	m.retireMu.Unlock()

	if m.metrics != nil {
		m.metrics.IndexedChunks.Set(float64(snap.ChunkCount))
	}
	if stale != nil && stale.Version != snap.Version && (prev == nil || stale.Version != prev.Version) {
		m.dropQuietly(stale.Version)
	}
}

func (m *Manager) dropQuietly(version string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.backend.Drop(ctx, version); err != nil {
		m.logger.Warn().Err(err).Str("version", version).Msg("failed to drop index version")
	}
}
