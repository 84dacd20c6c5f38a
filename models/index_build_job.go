package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BuildJobStatus represents the status of an index build job
type BuildJobStatus string

const (
	BuildStatusPending    BuildJobStatus = "pending"
	BuildStatusInProgress BuildJobStatus = "in_progress"
	BuildStatusCompleted  BuildJobStatus = "completed"
	BuildStatusFailed     BuildJobStatus = "failed"
)

// Build step names, in execution order
const (
	StepLoadCorpus      = "load_corpus"
	StepChunk           = "chunk"
	StepEmbedAndIndex   = "embed_and_index"
	StepPersistSnapshot = "persist_snapshot"
)

// BuildStep represents a step in the build process
type BuildStep struct {
	Name        string `json:"name"`
	Status      string `json:"status"` // "pending", "in_progress", "completed", "failed"
	Description string `json:"description,omitempty"`
}

// BuildSteps is stored as JSONB
type BuildSteps []BuildStep

// Value implements driver.Valuer for JSONB
func (b BuildSteps) Value() (driver.Value, error) {
	return json.Marshal(b)
}

// Scan implements sql.Scanner for JSONB
func (b *BuildSteps) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	}
	if len(raw) == 0 {
		*b = make(BuildSteps, 0)
		return nil
	}
	return json.Unmarshal(raw, b)
}

// NewBuildSteps returns the initial step list of a build
func NewBuildSteps() BuildSteps {
	return BuildSteps{
		{Name: StepLoadCorpus, Status: "pending", Description: "Load and normalize source collections"},
		{Name: StepChunk, Status: "pending", Description: "Split documents into overlapping windows"},
		{Name: StepEmbedAndIndex, Status: "pending", Description: "Embed chunks in batches and fill a new index version"},
		{Name: StepPersistSnapshot, Status: "pending", Description: "Persist corpus snapshot and index manifest"},
	}
}

// IndexBuildJob tracks one ingestion + embedding run
type IndexBuildJob struct {
	ID            uuid.UUID      `json:"id"`
	Status        BuildJobStatus `json:"status"`
	CurrentStep   *string        `json:"current_step,omitempty"`
	Steps         BuildSteps     `json:"steps"`
	CorpusVersion *string        `json:"corpus_version,omitempty"`
	IndexVersion  *string        `json:"index_version,omitempty"`
	ChunkCount    int            `json:"chunk_count"`
	FailedBatches int            `json:"failed_batches"`
	Warning       *string        `json:"warning,omitempty"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// BuildOutcome is what a finished build records on its job
type BuildOutcome struct {
	CorpusVersion string
	IndexVersion  string
	ChunkCount    int
	FailedBatches int
	Warning       string
}
