// Package sql implements the run ledger on a relational database through GORM.
// The schema is owned by the embedded golang-migrate migrations, never by AutoMigrate.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/capture/pkg/batch/core/domain/repository"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

// GORMRunRepository implements repository.RunRepository.
type GORMRunRepository struct {
	db *gorm.DB
}

// NewGORMRunRepository creates a ledger on db. The schema must already be migrated.
func NewGORMRunRepository(db *gorm.DB) *GORMRunRepository {
	return &GORMRunRepository{db: db}
}

func persistenceError(op, msg string, err error) error {
	return exception.NewBatchError(op, msg, err, exception.KindPersistence)
}

// --- PipelineRun ---

func (r *GORMRunRepository) SaveRun(ctx context.Context, run *model.PipelineRun) error {
	const op = "GORMRunRepository.SaveRun"
	if err := r.db.WithContext(ctx).Create(fromDomainRun(run)).Error; err != nil {
		return persistenceError(op, fmt.Sprintf("failed to save PipelineRun (ID: %s)", run.ID), err)
	}
	return nil
}

func (r *GORMRunRepository) UpdateRun(ctx context.Context, run *model.PipelineRun) error {
	const op = "GORMRunRepository.UpdateRun"

	originalVersion := run.Version
	run.Version++
	run.LastUpdated = time.Now()
	entity := fromDomainRun(run)

	res := r.db.WithContext(ctx).Model(entity).Where("version = ?", originalVersion).Select("*").Updates(entity)
	if res.Error != nil {
		run.Version = originalVersion
		return persistenceError(op, fmt.Sprintf("failed to update PipelineRun (ID: %s)", run.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		run.Version = originalVersion
		return exception.NewOptimisticLockingFailureException("repository",
			fmt.Sprintf("PipelineRun (ID: %s) with version %d not found for update", run.ID, originalVersion), nil)
	}
	return nil
}

func (r *GORMRunRepository) FindRunByID(ctx context.Context, id string) (*model.PipelineRun, error) {
	const op = "GORMRunRepository.FindRunByID"
	var entity RunEntity
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrRunNotFound
	}
	if err != nil {
		return nil, persistenceError(op, fmt.Sprintf("failed to find PipelineRun (ID: %s)", id), err)
	}
	run := toDomainRun(&entity)
	stages, err := r.FindStageExecutionsByRunID(ctx, id)
	if err != nil {
		return nil, err
	}
	run.StageExecutions = stages
	return run, nil
}

func (r *GORMRunRepository) FindRecentRuns(ctx context.Context, limit int) ([]*model.PipelineRun, error) {
	const op = "GORMRunRepository.FindRecentRuns"
	var entities []RunEntity
	q := r.db.WithContext(ctx).Order("start_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entities).Error; err != nil {
		return nil, persistenceError(op, "failed to list runs", err)
	}
	runs := make([]*model.PipelineRun, 0, len(entities))
	for i := range entities {
		runs = append(runs, toDomainRun(&entities[i]))
	}
	return runs, nil
}

// --- StageExecution ---

func (r *GORMRunRepository) SaveStageExecution(ctx context.Context, se *model.StageExecution) error {
	const op = "GORMRunRepository.SaveStageExecution"
	if err := r.db.WithContext(ctx).Create(fromDomainStageExecution(se)).Error; err != nil {
		return persistenceError(op, fmt.Sprintf("failed to save StageExecution (ID: %s)", se.ID), err)
	}
	return nil
}

func (r *GORMRunRepository) UpdateStageExecution(ctx context.Context, se *model.StageExecution) error {
	const op = "GORMRunRepository.UpdateStageExecution"

	originalVersion := se.Version
	se.Version++
	entity := fromDomainStageExecution(se)

	res := r.db.WithContext(ctx).Model(entity).Where("version = ?", originalVersion).Select("*").Updates(entity)
	if res.Error != nil {
		se.Version = originalVersion
		return persistenceError(op, fmt.Sprintf("failed to update StageExecution (ID: %s)", se.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		se.Version = originalVersion
		return exception.NewOptimisticLockingFailureException("repository",
			fmt.Sprintf("StageExecution (ID: %s) with version %d not found for update", se.ID, originalVersion), nil)
	}
	return nil
}

func (r *GORMRunRepository) FindStageExecutionsByRunID(ctx context.Context, runID string) ([]*model.StageExecution, error) {
	const op = "GORMRunRepository.FindStageExecutionsByRunID"
	var entities []StageExecutionEntity
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("start_time ASC").Find(&entities).Error; err != nil {
		return nil, persistenceError(op, fmt.Sprintf("failed to list stages of run %s", runID), err)
	}
	out := make([]*model.StageExecution, 0, len(entities))
	for i := range entities {
		out = append(out, toDomainStageExecution(&entities[i]))
	}
	return out, nil
}

// --- Artifact ---

func (r *GORMRunRepository) SaveArtifact(ctx context.Context, artifact *model.Artifact) error {
	const op = "GORMRunRepository.SaveArtifact"
	if err := r.db.WithContext(ctx).Create(fromDomainArtifact(artifact)).Error; err != nil {
		return persistenceError(op, fmt.Sprintf("failed to record artifact %s", artifact.Name), err)
	}
	return nil
}

func (r *GORMRunRepository) MarkArtifactDeleted(ctx context.Context, runID, name string) error {
	const op = "GORMRunRepository.MarkArtifactDeleted"
	var entity ArtifactEntity
	err := r.db.WithContext(ctx).
		Where("run_id = ? AND name = ? AND deleted_at IS NULL", runID, name).
		Order("created_at DESC").
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.ErrArtifactNotFound
	}
	if err != nil {
		return persistenceError(op, fmt.Sprintf("failed to find artifact %s", name), err)
	}
	if err := r.db.WithContext(ctx).Model(&entity).Update("deleted_at", time.Now()).Error; err != nil {
		return persistenceError(op, fmt.Sprintf("failed to mark artifact %s deleted", name), err)
	}
	return nil
}

func (r *GORMRunRepository) FindArtifactsByRunID(ctx context.Context, runID string) ([]*model.Artifact, error) {
	const op = "GORMRunRepository.FindArtifactsByRunID"
	var entities []ArtifactEntity
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at ASC").Find(&entities).Error; err != nil {
		return nil, persistenceError(op, fmt.Sprintf("failed to list artifacts of run %s", runID), err)
	}
	out := make([]*model.Artifact, 0, len(entities))
	for i := range entities {
		out = append(out, toDomainArtifact(&entities[i]))
	}
	return out, nil
}

// Close implements repository.RunRepository.
// The connection is owned by the gorm module's lifecycle, so nothing is closed here.
func (r *GORMRunRepository) Close() error {
	return nil
}

var _ repository.RunRepository = (*GORMRunRepository)(nil)
