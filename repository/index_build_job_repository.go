package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nyayasetu-backend/models"
)

var ErrJobNotFound = errors.New("index build job not found")

// IndexBuildJobRepository handles database operations for index build jobs
type IndexBuildJobRepository struct {
	db *pgxpool.Pool
}

// NewIndexBuildJobRepository creates a new index build job repository
func NewIndexBuildJobRepository(db *pgxpool.Pool) *IndexBuildJobRepository {
	return &IndexBuildJobRepository{db: db}
}

const jobColumns = `id, status, current_step, steps, corpus_version, index_version,
	chunk_count, failed_batches, warning, error_message,
	created_at, updated_at, completed_at`

func scanJob(row pgx.Row) (*models.IndexBuildJob, error) {
	job := &models.IndexBuildJob{}
	err := row.Scan(
		&job.ID,
		&job.Status,
		&job.CurrentStep,
		&job.Steps,
		&job.CorpusVersion,
		&job.IndexVersion,
		&job.ChunkCount,
		&job.FailedBatches,
		&job.Warning,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	if job.Steps == nil {
		job.Steps = make(models.BuildSteps, 0)
	}
	return job, nil
}

// Create creates a new index build job
func (r *IndexBuildJobRepository) Create(ctx context.Context, job *models.IndexBuildJob) error {
	query := `
		INSERT INTO index_build_jobs (status, current_step, steps, error_message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		job.Status,
		job.CurrentStep,
		job.Steps,
		job.ErrorMessage,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
}

// GetByID retrieves an index build job by ID
func (r *IndexBuildJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.IndexBuildJob, error) {
	return scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM index_build_jobs WHERE id = $1`, id))
}

// Latest retrieves the most recently created job
func (r *IndexBuildJobRepository) Latest(ctx context.Context) (*models.IndexBuildJob, error) {
	return scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM index_build_jobs ORDER BY created_at DESC LIMIT 1`))
}

// UpdateProgress moves a job to in_progress and records its steps
func (r *IndexBuildJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, currentStep string, steps models.BuildSteps) error {
	query := `
		UPDATE index_build_jobs SET
			status = $2,
			current_step = $3,
			steps = $4,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.BuildStatusInProgress, currentStep, steps)
	return err
}

// Complete marks an index build job as completed
func (r *IndexBuildJobRepository) Complete(ctx context.Context, id uuid.UUID, outcome models.BuildOutcome) error {
	now := time.Now()
	var warning *string
	if outcome.Warning != "" {
		warning = &outcome.Warning
	}
	query := `
		UPDATE index_build_jobs SET
			status = $2,
			corpus_version = $3,
			index_version = $4,
			chunk_count = $5,
			failed_batches = $6,
			warning = $7,
			completed_at = $8,
			updated_at = $8
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.BuildStatusCompleted,
		outcome.CorpusVersion, outcome.IndexVersion, outcome.ChunkCount, outcome.FailedBatches, warning, now)
	return err
}

// Fail marks an index build job as failed
func (r *IndexBuildJobRepository) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE index_build_jobs SET
			status = $2,
			error_message = $3,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.BuildStatusFailed, errorMessage)
	return err
}
