package engine

import (
	"context"

	"traceline/internal/domain"
)

// Stats counts the artifacts of a project by type, status and area.
func (e Engine) Stats(ctx context.Context, projectID string) (domain.Stats, error) {
	if _, err := e.requireProject(ctx, nil, projectID); err != nil {
		return domain.Stats{}, err
	}
	cells, err := e.Repo.StatsMatrix(ctx, nil, projectID)
	if err != nil {
		return domain.Stats{}, classify("stats", err)
	}
	s := domain.Stats{
		ByType:   map[string]int{},
		ByStatus: map[string]int{},
		ByArea:   map[string]int{},
		Matrix:   cells,
	}
	for _, t := range domain.ArtifactTypes() {
		s.ByType[t] = 0
	}
	for _, c := range cells {
		s.Total += c.Count
		s.ByType[c.ArtifactType] += c.Count
		s.ByStatus[c.Status] += c.Count
		s.ByArea[c.Area] += c.Count
	}
	if s.Matrix == nil {
		s.Matrix = []domain.StatsCell{}
	}
	return s, nil
}
