package inmemory

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/capture/pkg/batch/core/domain/model"
	"github.com/tigerroll/capture/pkg/batch/core/domain/repository"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

// SaveRun persists a new PipelineRun.
// It returns an error if a run with the same ID already exists.
func (r *InMemoryRunRepository) SaveRun(ctx context.Context, run *model.PipelineRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("PipelineRun with ID %s already exists", run.ID)
	}
	r.runs[run.ID] = cloneRun(run)
	return nil
}

// UpdateRun updates an existing PipelineRun, enforcing the stored version.
func (r *InMemoryRunRepository) UpdateRun(ctx context.Context, run *model.PipelineRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.runs[run.ID]
	if !exists {
		return fmt.Errorf("PipelineRun with ID %s not found for update", run.ID)
	}
	if stored.Version != run.Version {
		return exception.NewOptimisticLockingFailureException("inmemory",
			fmt.Sprintf("PipelineRun (ID: %s) with version %d not found for update", run.ID, run.Version), nil)
	}
	run.Version++
	r.runs[run.ID] = cloneRun(run)
	return nil
}

// FindRunByID finds a PipelineRun by its ID and attaches its stage executions in start order.
func (r *InMemoryRunRepository) FindRunByID(ctx context.Context, id string) (*model.PipelineRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrRunNotFound
	}
	run := cloneRun(stored)
	run.StageExecutions = r.stagesOf(id)
	return run, nil
}

// FindRecentRuns returns up to limit runs ordered by start time, newest first.
func (r *InMemoryRunRepository) FindRecentRuns(ctx context.Context, limit int) ([]*model.PipelineRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*model.PipelineRun, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, cloneRun(run))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// cloneRun copies run without its stage executions so callers cannot mutate stored state.
func cloneRun(run *model.PipelineRun) *model.PipelineRun {
	c := *run
	c.Failures = append(model.FailureList(nil), run.Failures...)
	c.ExecutionContext = model.NewExecutionContext()
	for k, v := range run.ExecutionContext {
		c.ExecutionContext[k] = v
	}
	c.StageExecutions = nil
	return &c
}
