// Package repository defines the run ledger: where the pipeline records its runs, the stages
// each run executed, and the artifacts it created and deleted.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
)

var (
	// ErrRunNotFound is returned when a PipelineRun is not found.
	ErrRunNotFound = errors.New("pipeline run not found")
	// ErrStageExecutionNotFound is returned when a StageExecution is not found.
	ErrStageExecutionNotFound = errors.New("stage execution not found")
	// ErrArtifactNotFound is returned when no live artifact has the requested name.
	ErrArtifactNotFound = errors.New("artifact not found")
)

// Run defines operations for persisting pipeline runs.
type Run interface {
	// SaveRun persists a new PipelineRun.
	SaveRun(ctx context.Context, run *model.PipelineRun) error

	// UpdateRun updates an existing PipelineRun. Updates are versioned; a stale version
	// yields an optimistic locking failure.
	UpdateRun(ctx context.Context, run *model.PipelineRun) error

	// FindRunByID finds a PipelineRun and its stage executions.
	FindRunByID(ctx context.Context, id string) (*model.PipelineRun, error)

	// FindRecentRuns returns up to limit runs, newest first.
	FindRecentRuns(ctx context.Context, limit int) ([]*model.PipelineRun, error)
}

// StageExecution defines operations for persisting stage executions.
type StageExecution interface {
	SaveStageExecution(ctx context.Context, se *model.StageExecution) error
	UpdateStageExecution(ctx context.Context, se *model.StageExecution) error
	FindStageExecutionsByRunID(ctx context.Context, runID string) ([]*model.StageExecution, error)
}

// Artifact defines operations on the artifact ledger.
type Artifact interface {
	// SaveArtifact records a newly created artifact.
	SaveArtifact(ctx context.Context, artifact *model.Artifact) error

	// MarkArtifactDeleted stamps the live artifact called name in runID as deleted.
	// It returns ErrArtifactNotFound when there is none.
	MarkArtifactDeleted(ctx context.Context, runID, name string) error

	// FindArtifactsByRunID lists every artifact of the run in creation order, deleted ones included.
	FindArtifactsByRunID(ctx context.Context, runID string) ([]*model.Artifact, error)
}

// RunRepository is the full run ledger.
type RunRepository interface {
	Run
	StageExecution
	Artifact

	// Close releases resources (such as database connections) used by the repository.
	Close() error
}
