package sql

import (
	"time"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
)

// RunEntity is the persisted form of model.PipelineRun.
type RunEntity struct {
	ID                string `gorm:"primaryKey"`
	JobName           string
	Dataset           string
	ConfigFingerprint string
	StartTime         time.Time
	EndTime           *time.Time
	Status            model.BatchStatus
	ExitStatus        model.ExitStatus
	Failures          model.FailureList
	ExecutionContext  model.ExecutionContext
	Version           int
	CreateTime        time.Time
	LastUpdated       time.Time
}

func (RunEntity) TableName() string {
	return "capture_run"
}

// StageExecutionEntity is the persisted form of model.StageExecution.
type StageExecutionEntity struct {
	ID               string `gorm:"primaryKey"`
	RunID            string
	StageName        string
	StartTime        time.Time
	EndTime          *time.Time
	Status           model.BatchStatus
	ExitStatus       model.ExitStatus
	Failures         model.FailureList
	Warnings         model.FailureList
	ExecutionContext model.ExecutionContext
	LastUpdated      time.Time
	Version          int
}

func (StageExecutionEntity) TableName() string {
	return "capture_stage_execution"
}

// ArtifactEntity is the persisted form of model.Artifact.
type ArtifactEntity struct {
	ID         string `gorm:"primaryKey"`
	RunID      string
	Name       string
	Kind       model.ArtifactKind
	Stage      string
	Generation int
	CreatedAt  time.Time
	DeletedAt  *time.Time
}

func (ArtifactEntity) TableName() string {
	return "capture_artifact"
}
