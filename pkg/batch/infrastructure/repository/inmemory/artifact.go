package inmemory

import (
	"context"
	"time"

	"github.com/tigerroll/capture/pkg/batch/core/domain/model"
	"github.com/tigerroll/capture/pkg/batch/core/domain/repository"
)

// SaveArtifact records a newly created artifact.
func (r *InMemoryRunRepository) SaveArtifact(ctx context.Context, artifact *model.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *artifact
	r.artifacts = append(r.artifacts, &c)
	return nil
}

// MarkArtifactDeleted stamps the newest live artifact called name as deleted.
func (r *InMemoryRunRepository) MarkArtifactDeleted(ctx context.Context, runID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.artifacts) - 1; i >= 0; i-- {
		a := r.artifacts[i]
		if a.RunID == runID && a.Name == name && a.Live() {
			now := time.Now()
			a.DeletedAt = &now
			return nil
		}
	}
	return repository.ErrArtifactNotFound
}

// FindArtifactsByRunID lists the artifacts of a run in creation order.
func (r *InMemoryRunRepository) FindArtifactsByRunID(ctx context.Context, runID string) ([]*model.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Artifact, 0)
	for _, a := range r.artifacts {
		if a.RunID == runID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}
