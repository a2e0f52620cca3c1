// Package model holds the records the pipeline keeps about its own runs: one PipelineRun per
// invocation, one StageExecution per stage, and one Artifact per dataset, table or image the
// orchestrator creates.
package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/capture/pkg/batch/support/util/logger"
	"github.com/tigerroll/capture/pkg/batch/support/util/serialization"
)

// BatchStatus represents the state of a run or stage.
type BatchStatus string

const (
	BatchStatusStarting  BatchStatus = "STARTING"
	BatchStatusStarted   BatchStatus = "STARTED"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
	BatchStatusStopped   BatchStatus = "STOPPED"
	BatchStatusSkipped   BatchStatus = "SKIPPED"
	BatchStatusUnknown   BatchStatus = "UNKNOWN"
)

// String returns the string representation of the BatchStatus.
func (s BatchStatus) String() string {
	return string(s)
}

// IsFinished checks if the BatchStatus represents a finished state.
func (s BatchStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusSkipped:
		return true
	default:
		return false
	}
}

// ExitStatus represents the detailed status upon run/stage completion.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	// ExitStatusNoOp marks a stage that ran but had nothing to do (disabled or an empty role set).
	ExitStatusNoOp ExitStatus = "NO_OP"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

// ExecutionContext is a key-value store for sharing state across stages.
type ExecutionContext map[string]interface{}

// NewExecutionContext returns an empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Get returns the value stored under key.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// GetString returns the string stored under key, or "" when absent or of another type.
func (ec ExecutionContext) GetString(key string) string {
	if s, ok := ec[key].(string); ok {
		return s
	}
	return ""
}

// Put stores value under key.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Value implements the `driver.Valuer` interface, converting the ExecutionContext to a JSON string.
func (ec ExecutionContext) Value() (driver.Value, error) {
	if ec == nil {
		return "{}", nil
	}
	data, err := serialization.MarshalExecutionContext(ec)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to an ExecutionContext.
func (ec *ExecutionContext) Scan(value interface{}) error {
	b, err := scanBytes("ExecutionContext", value)
	if err != nil {
		return err
	}
	m := map[string]interface{}(*ec)
	if err := serialization.UnmarshalExecutionContext(b, &m); err != nil {
		return err
	}
	*ec = m
	return nil
}

// FailureList holds a list of error messages.
type FailureList []string

// Value implements the `driver.Valuer` interface, converting FailureList to a JSON string.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := serialization.MarshalFailures(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to FailureList.
func (fl *FailureList) Scan(value interface{}) error {
	b, err := scanBytes("FailureList", value)
	if err != nil {
		return err
	}
	list, err := serialization.UnmarshalFailures(b)
	if err != nil {
		return err
	}
	*fl = list
	return nil
}

func scanBytes(typeName string, value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported Scan type for %s: %T", typeName, value)
	}
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// PipelineRun is a single invocation of the pipeline over one dataset.
type PipelineRun struct {
	ID                string
	JobName           string
	Dataset           string
	ConfigFingerprint string
	StartTime         time.Time
	EndTime           *time.Time
	Status            BatchStatus
	ExitStatus        ExitStatus
	Failures          FailureList
	ExecutionContext  ExecutionContext
	Version           int
	CreateTime        time.Time
	LastUpdated       time.Time
	StageExecutions   []*StageExecution
}

// NewPipelineRun creates a run in the STARTING state.
func NewPipelineRun(jobName, dataset, fingerprint string) *PipelineRun {
	now := time.Now()
	return &PipelineRun{
		ID:                NewID(),
		JobName:           jobName,
		Dataset:           dataset,
		ConfigFingerprint: fingerprint,
		StartTime:         now,
		Status:            BatchStatusStarting,
		ExitStatus:        ExitStatusUnknown,
		Failures:          make(FailureList, 0),
		ExecutionContext:  NewExecutionContext(),
		CreateTime:        now,
		LastUpdated:       now,
		StageExecutions:   make([]*StageExecution, 0),
	}
}

// isValidTransition checks if the state transition is valid for runs and stages alike.
func isValidTransition(current, next BatchStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusSkipped
	case BatchStatusStarted:
		return next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusStopped
	default:
		return false
	}
}

// TransitionTo safely transitions the state of the run. Fields other than Status must be set by the caller.
func (r *PipelineRun) TransitionTo(newStatus BatchStatus) error {
	if !isValidTransition(r.Status, newStatus) {
		return fmt.Errorf("PipelineRun (ID: %s): invalid state transition: %s -> %s", r.ID, r.Status, newStatus)
	}
	r.Status = newStatus
	return nil
}

// MarkAsStarted updates the run status to STARTED.
func (r *PipelineRun) MarkAsStarted() {
	if err := r.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("Could not update PipelineRun (ID: %s) status to STARTED: %v", r.ID, err)
		r.Status = BatchStatusStarted
	}
	r.LastUpdated = time.Now()
}

// MarkAsCompleted updates the run status to COMPLETED.
func (r *PipelineRun) MarkAsCompleted() {
	r.finish(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsFailed updates the run status to FAILED and records err.
func (r *PipelineRun) MarkAsFailed(err error) {
	r.finish(BatchStatusFailed, ExitStatusFailed)
	r.AddFailureException(err)
}

// MarkAsStopped updates the run status to STOPPED, as after a cancellation.
func (r *PipelineRun) MarkAsStopped() {
	r.finish(BatchStatusStopped, ExitStatusStopped)
}

func (r *PipelineRun) finish(status BatchStatus, exit ExitStatus) {
	if err := r.TransitionTo(status); err != nil {
		logger.Warnf("Could not update PipelineRun (ID: %s) status to %s: %v", r.ID, status, err)
		r.Status = status
	}
	r.ExitStatus = exit
	now := time.Now()
	r.EndTime = &now
	r.LastUpdated = now
}

// AddFailureException adds error information to the run. Duplicate messages are dropped.
func (r *PipelineRun) AddFailureException(err error) {
	r.Failures = appendFailure(r.Failures, err)
	r.LastUpdated = time.Now()
}

// AddStageExecution attaches se to the run.
func (r *PipelineRun) AddStageExecution(se *StageExecution) {
	r.StageExecutions = append(r.StageExecutions, se)
}

// StageExecution is a single execution of one pipeline stage within a run.
type StageExecution struct {
	ID         string
	RunID      string
	StageName  string
	StartTime  time.Time
	EndTime    *time.Time
	Status     BatchStatus
	ExitStatus ExitStatus
	Failures   FailureList
	// Warnings holds non-fatal conditions such as empty role sets.
	Warnings         FailureList
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
	Version          int
}

// NewStageExecution creates a stage execution attached to run.
func NewStageExecution(run *PipelineRun, stageName string) *StageExecution {
	now := time.Now()
	se := &StageExecution{
		ID:               NewID(),
		RunID:            run.ID,
		StageName:        stageName,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		Warnings:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      now,
	}
	run.AddStageExecution(se)
	return se
}

// TransitionTo safely transitions the state of the stage execution.
func (se *StageExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidTransition(se.Status, newStatus) {
		return fmt.Errorf("StageExecution (ID: %s): invalid state transition: %s -> %s", se.ID, se.Status, newStatus)
	}
	se.Status = newStatus
	return nil
}

// MarkAsStarted updates the stage status to STARTED.
func (se *StageExecution) MarkAsStarted() {
	if err := se.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("Could not update StageExecution (ID: %s) status to STARTED: %v", se.ID, err)
		se.Status = BatchStatusStarted
	}
	se.StartTime = time.Now()
	se.LastUpdated = se.StartTime
}

// MarkAsCompleted updates the stage status to COMPLETED with the given exit status.
func (se *StageExecution) MarkAsCompleted(exit ExitStatus) {
	se.finish(BatchStatusCompleted, exit)
}

// MarkAsSkipped records a stage that was disabled in the configuration.
func (se *StageExecution) MarkAsSkipped() {
	se.finish(BatchStatusSkipped, ExitStatusNoOp)
}

// MarkAsFailed updates the stage status to FAILED and records err.
func (se *StageExecution) MarkAsFailed(err error) {
	se.finish(BatchStatusFailed, ExitStatusFailed)
	se.AddFailureException(err)
}

// MarkAsStopped updates the stage status to STOPPED.
func (se *StageExecution) MarkAsStopped() {
	se.finish(BatchStatusStopped, ExitStatusStopped)
}

func (se *StageExecution) finish(status BatchStatus, exit ExitStatus) {
	if err := se.TransitionTo(status); err != nil {
		logger.Warnf("Could not update StageExecution (ID: %s) status to %s: %v", se.ID, status, err)
		se.Status = status
	}
	se.ExitStatus = exit
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
}

// Duration returns the wall time of a finished stage, or zero.
func (se *StageExecution) Duration() time.Duration {
	if se.EndTime == nil {
		return 0
	}
	return se.EndTime.Sub(se.StartTime)
}

// AddFailureException adds error information to the stage. Duplicate messages are dropped.
func (se *StageExecution) AddFailureException(err error) {
	se.Failures = appendFailure(se.Failures, err)
	se.LastUpdated = time.Now()
}

// AddWarning records a non-fatal condition. Duplicate messages are dropped.
func (se *StageExecution) AddWarning(err error) {
	se.Warnings = appendFailure(se.Warnings, err)
	se.LastUpdated = time.Now()
}

func appendFailure(list FailureList, err error) FailureList {
	if err == nil {
		return list
	}
	msg := exception.ExtractErrorMessage(err)
	for _, existing := range list {
		if existing == msg {
			logger.Debugf("Skipped adding duplicate message '%s'.", msg)
			return list
		}
	}
	return append(list, msg)
}

// ArtifactKind classifies the named products the orchestrator creates.
type ArtifactKind string

const (
	ArtifactDataset          ArtifactKind = "dataset"
	ArtifactCalibrationTable ArtifactKind = "caltable"
	ArtifactImage            ArtifactKind = "image"
	ArtifactFITS             ArtifactKind = "fits"
	ArtifactReport           ArtifactKind = "report"
)

// Artifact is one entry of the artifact namespace the orchestrator owns.
type Artifact struct {
	ID    string
	RunID string
	Name  string
	Kind  ArtifactKind
	Stage string
	// Generation is the self-calibration iteration that produced the artifact; -1 outside the loop.
	Generation int
	CreatedAt  time.Time
	DeletedAt  *time.Time
}

// NewArtifact creates an artifact record owned by runID.
func NewArtifact(runID, name string, kind ArtifactKind, stage string, generation int) *Artifact {
	return &Artifact{
		ID:         NewID(),
		RunID:      runID,
		Name:       name,
		Kind:       kind,
		Stage:      stage,
		Generation: generation,
		CreatedAt:  time.Now(),
	}
}

// Live reports whether the artifact has not been deleted.
func (a *Artifact) Live() bool {
	return a.DeletedAt == nil
}
