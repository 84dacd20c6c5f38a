package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nyayasetu-backend/logger"
	"nyayasetu-backend/models"
	"nyayasetu-backend/repository"
	"nyayasetu-backend/vectorindex"
)

var ErrJobCreationFailed = errors.New("failed to create index build job")

// JobStore persists index build jobs. repository.IndexBuildJobRepository
// implements it on Postgres; MemoryJobStore is used without a database.
type JobStore interface {
	Create(ctx context.Context, job *models.IndexBuildJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.IndexBuildJob, error)
	Latest(ctx context.Context) (*models.IndexBuildJob, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, currentStep string, steps models.BuildSteps) error
	Complete(ctx context.Context, id uuid.UUID, outcome models.BuildOutcome) error
	Fail(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// Rebuilder runs the full ingestion pipeline; KnowledgeService implements it
type Rebuilder interface {
	Rebuild(ctx context.Context, progress BuildProgress) (*models.BuildOutcome, error)
}

// IndexBuildService runs index builds as background jobs, one at a time
type IndexBuildService struct {
	jobs      JobStore
	rebuilder Rebuilder
	timeout   time.Duration
	logger    zerolog.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

type IndexBuildOption func(*IndexBuildService)

func IndexBuildWithJobStore(store JobStore) IndexBuildOption {
	return func(s *IndexBuildService) {
		s.jobs = store
	}
}

// IndexBuildWithTimeout bounds a whole background build
func IndexBuildWithTimeout(d time.Duration) IndexBuildOption {
	return func(s *IndexBuildService) {
		s.timeout = d
	}
}

func IndexBuildWithLogger(l zerolog.Logger) IndexBuildOption {
	return func(s *IndexBuildService) {
		s.logger = logger.Component(l, "index_build")
	}
}

// NewIndexBuildService creates a build service; jobs are kept in memory
// unless a store is supplied
func NewIndexBuildService(rebuilder Rebuilder, opts ...IndexBuildOption) *IndexBuildService {
	s := &IndexBuildService{
		rebuilder: rebuilder,
		timeout:   30 * time.Minute,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.jobs == nil {
		s.jobs = NewMemoryJobStore()
	}
	return s
}

// StartBuild records a pending job and starts it in the background.
// This returns as soon as the job exists.
func (s *IndexBuildService) StartBuild(ctx context.Context) (*models.IndexBuildJob, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, vectorindex.ErrBuildInProgress
	}

	step := models.StepLoadCorpus
	job := &models.IndexBuildJob{
		Status:      models.BuildStatusPending,
		CurrentStep: &step,
		Steps:       models.NewBuildSteps(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.running.Store(false)
		return nil, fmt.Errorf("%w: %v", ErrJobCreationFailed, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		// detached from the request that started it
		buildCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.ProcessBuild(buildCtx, job.ID)
	}()

	return job, nil
}

// ProcessBuild runs one job to completion, recording each step
func (s *IndexBuildService) ProcessBuild(ctx context.Context, jobID uuid.UUID) {
	log := s.logger.With().Str("job_id", jobID.String()).Logger()
	steps := models.NewBuildSteps()
	current := -1

	progress := func(step string) {
		for i := range steps {
			if steps[i].Name == step {
				if current >= 0 {
					steps[current].Status = "completed"
				}
				steps[i].Status = "in_progress"
				current = i
			}
		}
		s.recordProgress(ctx, log, jobID, step, steps)
		log.Info().Str("step", step).Msg("build step started")
	}

	outcome, err := s.rebuilder.Rebuild(ctx, progress)
	if err != nil {
		log.Error().Err(err).Msg("index build failed")
		// the build context may be spent; the failure must still be recorded
		failCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if current >= 0 {
			steps[current].Status = "failed"
			s.recordProgress(failCtx, log, jobID, steps[current].Name, steps)
		}
		if ferr := s.jobs.Fail(failCtx, jobID, err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("failed to mark build job failed")
		}
		return
	}

	for i := range steps {
		steps[i].Status = "completed"
	}
	s.recordProgress(ctx, log, jobID, models.StepPersistSnapshot, steps)
	if err := s.jobs.Complete(ctx, jobID, *outcome); err != nil {
		log.Error().Err(err).Msg("failed to mark build job completed")
		return
	}
	log.Info().
		Str("index_version", outcome.IndexVersion).
		Int("chunks", outcome.ChunkCount).
		Int("failed_batches", outcome.FailedBatches).
		Msg("index build completed")
}

func (s *IndexBuildService) recordProgress(ctx context.Context, log zerolog.Logger, jobID uuid.UUID, step string, steps models.BuildSteps) {
	if err := s.jobs.UpdateProgress(ctx, jobID, step, steps); err != nil {
		log.Warn().Err(err).Str("step", step).Msg("failed to record build progress")
	}
}

// GetBuildStatus returns a job by id
func (s *IndexBuildService) GetBuildStatus(ctx context.Context, id uuid.UUID) (*models.IndexBuildJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// LatestBuild returns the most recent job
func (s *IndexBuildService) LatestBuild(ctx context.Context) (*models.IndexBuildJob, error) {
	return s.jobs.Latest(ctx)
}

func (s *IndexBuildService) Running() bool {
	return s.running.Load()
}

// Wait blocks until background builds have finished
func (s *IndexBuildService) Wait() {
	s.wg.Wait()
}

// MemoryJobStore keeps jobs in process memory
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.IndexBuildJob
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]*models.IndexBuildJob)}
}

func (m *MemoryJobStore) Create(_ context.Context, job *models.IndexBuildJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	job.ID = uuid.New()
	job.CreatedAt = now
	job.UpdatedAt = now
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MemoryJobStore) GetByID(_ context.Context, id uuid.UUID) (*models.IndexBuildJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (m *MemoryJobStore) Latest(_ context.Context) (*models.IndexBuildJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.jobs) == 0 {
		return nil, repository.ErrJobNotFound
	}
	all := make([]*models.IndexBuildJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		all = append(all, j)
	}
	sort.Slice(all, func(a, b int) bool {
		return all[a].CreatedAt.After(all[b].CreatedAt)
	})
	return cloneJob(all[0]), nil
}

func (m *MemoryJobStore) update(id uuid.UUID, fn func(*models.IndexBuildJob)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryJobStore) UpdateProgress(_ context.Context, id uuid.UUID, currentStep string, steps models.BuildSteps) error {
	return m.update(id, func(j *models.IndexBuildJob) {
		j.Status = models.BuildStatusInProgress
		j.CurrentStep = &currentStep
		j.Steps = append(models.BuildSteps(nil), steps...)
	})
}

func (m *MemoryJobStore) Complete(_ context.Context, id uuid.UUID, outcome models.BuildOutcome) error {
	return m.update(id, func(j *models.IndexBuildJob) {
		now := time.Now()
		j.Status = models.BuildStatusCompleted
		j.CorpusVersion = &outcome.CorpusVersion
		j.IndexVersion = &outcome.IndexVersion
		j.ChunkCount = outcome.ChunkCount
		j.FailedBatches = outcome.FailedBatches
		if outcome.Warning != "" {
			j.Warning = &outcome.Warning
		}
		j.CompletedAt = &now
	})
}

func (m *MemoryJobStore) Fail(_ context.Context, id uuid.UUID, errorMessage string) error {
	return m.update(id, func(j *models.IndexBuildJob) {
		now := time.Now()
		j.Status = models.BuildStatusFailed
		j.ErrorMessage = &errorMessage
		j.CompletedAt = &now
	})
}

func cloneJob(j *models.IndexBuildJob) *models.IndexBuildJob {
	c := *j
	c.Steps = append(models.BuildSteps(nil), j.Steps...)
	return &c
}
