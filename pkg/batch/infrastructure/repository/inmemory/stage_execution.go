package inmemory

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/capture/pkg/batch/core/domain/model"
)

// SaveStageExecution persists a new StageExecution.
func (r *InMemoryRunRepository) SaveStageExecution(ctx context.Context, se *model.StageExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stageExecutions[se.ID]; exists {
		return fmt.Errorf("StageExecution with ID %s already exists", se.ID)
	}
	c := *se
	r.stageExecutions[se.ID] = &c
	return nil
}

// UpdateStageExecution updates an existing StageExecution.
func (r *InMemoryRunRepository) UpdateStageExecution(ctx context.Context, se *model.StageExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stageExecutions[se.ID]; !exists {
		return fmt.Errorf("StageExecution with ID %s not found for update", se.ID)
	}
	se.Version++
	c := *se
	r.stageExecutions[se.ID] = &c
	return nil
}

// FindStageExecutionsByRunID returns the stage executions of a run ordered by start time.
func (r *InMemoryRunRepository) FindStageExecutionsByRunID(ctx context.Context, runID string) ([]*model.StageExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stagesOf(runID), nil
}

// stagesOf must be called with r.mu held.
func (r *InMemoryRunRepository) stagesOf(runID string) []*model.StageExecution {
	out := make([]*model.StageExecution, 0)
	for _, se := range r.stageExecutions {
		if se.RunID == runID {
			c := *se
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
