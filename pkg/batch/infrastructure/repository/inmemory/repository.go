// Package inmemory provides an in-memory implementation of the run ledger.
// It keeps runs, stage executions and artifacts in maps, suitable for tests and for
// runs where nothing needs to outlive the process.
package inmemory

import (
	"sync"

	"github.com/tigerroll/capture/pkg/batch/core/domain/model"
	"github.com/tigerroll/capture/pkg/batch/core/domain/repository"
)

// InMemoryRunRepository is an in-memory implementation of repository.RunRepository.
type InMemoryRunRepository struct {
	runs            map[string]*model.PipelineRun
	stageExecutions map[string]*model.StageExecution
	artifacts       []*model.Artifact
	mu              sync.RWMutex // Mutex to protect concurrent access to maps.
}

// NewInMemoryRunRepository creates and initializes a new instance of InMemoryRunRepository.
func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{
		runs:            make(map[string]*model.PipelineRun),
		stageExecutions: make(map[string]*model.StageExecution),
	}
}

// Close releases resources used by the repository.
// As an in-memory repository, it holds no external resources, so this method always returns nil.
func (r *InMemoryRunRepository) Close() error {
	return nil
}

var _ repository.RunRepository = (*InMemoryRunRepository)(nil)
