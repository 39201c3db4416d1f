package engine

import (
	"context"
	"strings"

	"traceline/internal/domain"
	"traceline/internal/metrics"
	"traceline/internal/repo"
)

// RenameArtifact changes an artifact id and rewrites every reference to it:
// linkages, comments, events and association rows. Nothing changes unless
// all of it succeeds.
func (e Engine) RenameArtifact(ctx context.Context, artifactType, oldID, newID, actorID string) (repo.RenameCounts, error) {
	k, err := kindOf(artifactType)
	if err != nil {
		return repo.RenameCounts{}, err
	}
	newID = strings.TrimSpace(newID)
	if newID == "" {
		return repo.RenameCounts{}, domain.Validation("new_id", "required")
	}
	if newID == oldID {
		return repo.RenameCounts{}, domain.Validation("new_id", "must differ from the current id")
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return repo.RenameCounts{}, err
	}
	defer tx.Rollback()

	exists, err := e.Repo.ArtifactExists(ctx, tx, k, oldID)
	if err != nil {
		return repo.RenameCounts{}, classify("get "+k.Type, err)
	}
	if !exists {
		return repo.RenameCounts{}, domain.NotFound(k.Type, oldID)
	}
	taken, err := e.Repo.ArtifactExists(ctx, tx, k, newID)
	if err != nil {
		return repo.RenameCounts{}, classify("get "+k.Type, err)
	}
	if taken {
		return repo.RenameCounts{}, &domain.ConflictError{Kind: k.Type, ID: newID}
	}
	counts, err := e.Repo.RenameArtifact(ctx, tx, k, oldID, newID, e.stamp())
	if err != nil {
		return repo.RenameCounts{}, classify("rename "+oldID, err)
	}
	if err := e.commit(tx); err != nil {
		return repo.RenameCounts{}, err
	}
	metrics.ArtifactOps.WithLabelValues(k.Type, "rename").Inc()
	e.logger().Printf("%s renamed %s -> %s by %s (linkages=%d comments=%d events=%d joins=%d)",
		k.Type, oldID, newID, actorOrSystem(actorID), counts.Linkages, counts.Comments, counts.Events, counts.Joins)
	return counts, nil
}
