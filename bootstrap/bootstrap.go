// Package bootstrap wires configuration into the knowledge stack shared by
// the server and the build-index tool.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"nyayasetu-backend/config"
	"nyayasetu-backend/corpus"
	"nyayasetu-backend/embedding"
	"nyayasetu-backend/generation"
	"nyayasetu-backend/logger"
	"nyayasetu-backend/metrics"
	"nyayasetu-backend/repository"
	"nyayasetu-backend/service"
	"nyayasetu-backend/storage"
	"nyayasetu-backend/vectorindex"
)

// Stack holds every long-lived dependency built from a Config
type Stack struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	DB        *pgxpool.Pool
	Embedder  embedding.Embedder
	Backend   vectorindex.Backend
	Generator generation.Generator
	Knowledge *service.KnowledgeService
	Jobs      service.JobStore

	closers []func() error
}

// New connects storage, the index backend and the providers. A missing
// generator is logged and leaves Generator nil.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (*Stack, error) {
	s := &Stack{Config: cfg, Logger: log, Metrics: m}

	if cfg.Database.URL != "" {
		db, err := repository.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		s.DB = db
		s.closers = append(s.closers, func() error { db.Close(); return nil })

		if err := repository.EnsureSchema(ctx, db); err != nil {
			s.Close()
			return nil, err
		}
		s.Jobs = repository.NewIndexBuildJobRepository(db)
		log.Info().Msg("postgres connection established with pgvector support")
	} else {
		s.Jobs = service.NewMemoryJobStore()
	}

	blobs, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Info().Str("type", cfg.Storage.Type).Msg("storage initialized")

	s.Embedder, err = embedding.New(cfg.Embedding)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if c, ok := s.Embedder.(interface{ Close() error }); ok {
		s.closers = append(s.closers, c.Close)
	}

	s.Backend, err = s.newBackend()
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Generator, err = generation.New(ctx, cfg.Generation)
	switch {
	case err == nil:
		if c, ok := s.Generator.(generation.Closer); ok {
			s.closers = append(s.closers, c.Close)
		}
		log.Info().Str("generator", s.Generator.Name()).Msg("generator initialized")
	case errors.Is(err, generation.ErrGeneratorNotConfigured):
		log.Warn().Err(err).Msg("answers will use the static fallback only")
		s.Generator = nil
	default:
		s.Close()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	manager := vectorindex.NewManager(s.Backend, s.Embedder,
		vectorindex.ManagerWithBatchSize(cfg.Embedding.BatchSize),
		vectorindex.ManagerWithFailureThreshold(cfg.Embedding.FailureThreshold),
		vectorindex.ManagerWithCallTimeout(cfg.Embedding.Timeout),
		vectorindex.ManagerWithLogger(logger.Component(log, "index")),
		vectorindex.ManagerWithMetrics(m),
	)

	opts := []service.KnowledgeOption{
		service.KnowledgeWithLoader(corpus.NewLoader(cfg.DataDir, corpus.LoaderWithLogger(logger.Component(log, "corpus")))),
		service.KnowledgeWithIndexManager(manager),
		service.KnowledgeWithSnapshotStore(storage.NewSnapshotStore(blobs)),
		service.KnowledgeWithChunking(cfg.Chunking.WindowSize, cfg.Chunking.Overlap),
		service.KnowledgeWithBuildOnStart(cfg.Index.BuildOnStart),
		service.KnowledgeWithLogger(logger.Component(log, "knowledge")),
		service.KnowledgeWithMetrics(m),
	}
	if s.Generator != nil {
		opts = append(opts, service.KnowledgeWithGenerator(s.Generator))
	}
	s.Knowledge = service.NewKnowledgeService(opts...)
	return s, nil
}

func (s *Stack) newBackend() (vectorindex.Backend, error) {
	switch s.Config.Index.Backend {
	case "memory":
		return vectorindex.NewMemoryBackend(), nil
	case "pgvector":
		if s.DB == nil {
			return nil, errors.New("pgvector backend requires DATABASE_URL")
		}
		return repository.NewLegalChunkRepository(s.DB), nil
	case "qdrant":
		return vectorindex.NewQdrantBackend(vectorindex.QdrantConfig{
			URL:              s.Config.Index.QdrantURL,
			APIKey:           s.Config.Index.QdrantAPIKey,
			CollectionPrefix: s.Config.Index.CollectionPrefix,
		}), nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s", s.Config.Index.Backend)
	}
}

// Close releases connections in reverse order of creation
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
