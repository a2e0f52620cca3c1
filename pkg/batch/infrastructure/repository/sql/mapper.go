package sql

import (
	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
)

func fromDomainRun(r *model.PipelineRun) *RunEntity {
	return &RunEntity{
		ID:                r.ID,
		JobName:           r.JobName,
		Dataset:           r.Dataset,
		ConfigFingerprint: r.ConfigFingerprint,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		Status:            r.Status,
		ExitStatus:        r.ExitStatus,
		Failures:          r.Failures,
		ExecutionContext:  r.ExecutionContext,
		Version:           r.Version,
		CreateTime:        r.CreateTime,
		LastUpdated:       r.LastUpdated,
	}
}

func toDomainRun(e *RunEntity) *model.PipelineRun {
	return &model.PipelineRun{
		ID:                e.ID,
		JobName:           e.JobName,
		Dataset:           e.Dataset,
		ConfigFingerprint: e.ConfigFingerprint,
		StartTime:         e.StartTime,
		EndTime:           e.EndTime,
		Status:            e.Status,
		ExitStatus:        e.ExitStatus,
		Failures:          e.Failures,
		ExecutionContext:  e.ExecutionContext,
		Version:           e.Version,
		CreateTime:        e.CreateTime,
		LastUpdated:       e.LastUpdated,
		StageExecutions:   make([]*model.StageExecution, 0),
	}
}

func fromDomainStageExecution(se *model.StageExecution) *StageExecutionEntity {
	return &StageExecutionEntity{
		ID:               se.ID,
		RunID:            se.RunID,
		StageName:        se.StageName,
		StartTime:        se.StartTime,
		EndTime:          se.EndTime,
		Status:           se.Status,
		ExitStatus:       se.ExitStatus,
		Failures:         se.Failures,
		Warnings:         se.Warnings,
		ExecutionContext: se.ExecutionContext,
		LastUpdated:      se.LastUpdated,
		Version:          se.Version,
	}
}

func toDomainStageExecution(e *StageExecutionEntity) *model.StageExecution {
	return &model.StageExecution{
		ID:               e.ID,
		RunID:            e.RunID,
		StageName:        e.StageName,
		StartTime:        e.StartTime,
		EndTime:          e.EndTime,
		Status:           e.Status,
		ExitStatus:       e.ExitStatus,
		Failures:         e.Failures,
		Warnings:         e.Warnings,
		ExecutionContext: e.ExecutionContext,
		LastUpdated:      e.LastUpdated,
		Version:          e.Version,
	}
}

func fromDomainArtifact(a *model.Artifact) *ArtifactEntity {
	return &ArtifactEntity{
		ID:         a.ID,
		RunID:      a.RunID,
		Name:       a.Name,
		Kind:       a.Kind,
		Stage:      a.Stage,
		Generation: a.Generation,
		CreatedAt:  a.CreatedAt,
		DeletedAt:  a.DeletedAt,
	}
}

func toDomainArtifact(e *ArtifactEntity) *model.Artifact {
	return &model.Artifact{
		ID:         e.ID,
		RunID:      e.RunID,
		Name:       e.Name,
		Kind:       e.Kind,
		Stage:      e.Stage,
		Generation: e.Generation,
		CreatedAt:  e.CreatedAt,
		DeletedAt:  e.DeletedAt,
	}
}
