package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"traceline/internal/domain"
	"traceline/internal/repo"
)

func newID() string {
	return uuid.NewString()
}

type LinkageInput struct {
	SourceType       string
	SourceID         string
	TargetType       string
	TargetID         string
	RelationshipType string
	ProjectID        string
	ActorID          string
}

// LinkagePatch changes the fields it sets.
type LinkagePatch struct {
	SourceType       *string
	SourceID         *string
	TargetType       *string
	TargetID         *string
	RelationshipType *string
}

func normalizeRelationship(v string) (string, error) {
	rel := strings.ToLower(strings.TrimSpace(v))
	if !domain.IsRelationship(rel) {
		return "", domain.Validation("relationship_type", fmt.Sprintf("unknown relationship type %q", v))
	}
	return rel, nil
}

// checkEndpoint verifies that a managed endpoint exists. External types are
// accepted as is.
func (e Engine) checkEndpoint(ctx context.Context, tx *sql.Tx, side, endpointType, id string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(endpointType))
	if strings.TrimSpace(id) == "" {
		return "", domain.Validation(side+"_id", "required")
	}
	ep, external, ok := domain.LookupEndpoint(t)
	if !ok {
		return "", &domain.ReferenceError{Side: side, Type: endpointType, ID: id}
	}
	if external {
		return t, nil
	}
	exists, err := e.Repo.RowExists(ctx, tx, ep.Table, ep.Key, id)
	if err != nil {
		return "", classify("check "+side, err)
	}
	if !exists {
		return "", &domain.ReferenceError{Side: side, Type: t, ID: id}
	}
	return t, nil
}

func (e Engine) CreateLinkage(ctx context.Context, in LinkageInput) (domain.Linkage, error) {
	rel, err := normalizeRelationship(in.RelationshipType)
	if err != nil {
		return domain.Linkage{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Linkage{}, err
	}
	defer tx.Rollback()

	if _, err := e.requireProject(ctx, tx, in.ProjectID); err != nil {
		return domain.Linkage{}, err
	}
	srcType, err := e.checkEndpoint(ctx, tx, "source", in.SourceType, in.SourceID)
	if err != nil {
		return domain.Linkage{}, err
	}
	tgtType, err := e.checkEndpoint(ctx, tx, "target", in.TargetType, in.TargetID)
	if err != nil {
		return domain.Linkage{}, err
	}
	l := domain.Linkage{
		ID:               newID(),
		SourceType:       srcType,
		SourceID:         in.SourceID,
		TargetType:       tgtType,
		TargetID:         in.TargetID,
		RelationshipType: rel,
		ProjectID:        in.ProjectID,
		CreatedAt:        e.stamp(),
	}
	if err := e.Repo.InsertLinkage(ctx, tx, l); err != nil {
		return domain.Linkage{}, classify("insert linkage", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.Linkage{}, err
	}
	e.logger().Printf("linkage %s: %s %s -[%s]-> %s %s", l.ID, l.SourceType, l.SourceID, l.RelationshipType, l.TargetType, l.TargetID)
	return l, nil
}

func (e Engine) GetLinkage(ctx context.Context, id string) (domain.Linkage, error) {
	l, err := e.Repo.GetLinkage(ctx, nil, id)
	if err != nil {
		return domain.Linkage{}, classify("get linkage", notFound(err, "linkage", id))
	}
	return l, nil
}

// UpdateLinkage applies the patch. Only endpoints whose type or id changed
// are checked again.
func (e Engine) UpdateLinkage(ctx context.Context, id string, p LinkagePatch) (domain.Linkage, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Linkage{}, err
	}
	defer tx.Rollback()

	l, err := e.Repo.GetLinkage(ctx, tx, id)
	if err != nil {
		return domain.Linkage{}, classify("get linkage", notFound(err, "linkage", id))
	}
	if p.RelationshipType != nil {
		if l.RelationshipType, err = normalizeRelationship(*p.RelationshipType); err != nil {
			return domain.Linkage{}, err
		}
	}
	srcType, srcID := l.SourceType, l.SourceID
	if p.SourceType != nil {
		srcType = *p.SourceType
	}
	if p.SourceID != nil {
		srcID = *p.SourceID
	}
	if srcType != l.SourceType || srcID != l.SourceID {
		if l.SourceType, err = e.checkEndpoint(ctx, tx, "source", srcType, srcID); err != nil {
			return domain.Linkage{}, err
		}
		l.SourceID = srcID
	}
	tgtType, tgtID := l.TargetType, l.TargetID
	if p.TargetType != nil {
		tgtType = *p.TargetType
	}
	if p.TargetID != nil {
		tgtID = *p.TargetID
	}
	if tgtType != l.TargetType || tgtID != l.TargetID {
		if l.TargetType, err = e.checkEndpoint(ctx, tx, "target", tgtType, tgtID); err != nil {
			return domain.Linkage{}, err
		}
		l.TargetID = tgtID
	}
	if err := e.Repo.UpdateLinkage(ctx, tx, l); err != nil {
		return domain.Linkage{}, classify("update linkage", notFound(err, "linkage", id))
	}
	if err := e.commit(tx); err != nil {
		return domain.Linkage{}, err
	}
	return l, nil
}

func (e Engine) DeleteLinkage(ctx context.Context, id string) error {
	if err := e.Repo.DeleteLinkage(ctx, nil, id); err != nil {
		return classify("delete linkage", notFound(err, "linkage", id))
	}
	return nil
}

func (e Engine) listLinkages(ctx context.Context, f repo.LinkageFilter) ([]domain.Linkage, error) {
	f.SourceType = strings.ToLower(f.SourceType)
	f.TargetType = strings.ToLower(f.TargetType)
	list, err := e.Repo.ListLinkages(ctx, nil, f)
	if err != nil {
		return nil, classify("list linkages", err)
	}
	return list, nil
}

func (e Engine) ListLinkagesByProject(ctx context.Context, projectID string) ([]domain.Linkage, error) {
	if _, err := e.requireProject(ctx, nil, projectID); err != nil {
		return nil, err
	}
	return e.listLinkages(ctx, repo.LinkageFilter{ProjectID: projectID})
}

// ListLinkagesBySource returns the outgoing linkages of an entity. An empty
// sourceType matches any type.
func (e Engine) ListLinkagesBySource(ctx context.Context, sourceType, sourceID string) ([]domain.Linkage, error) {
	return e.listLinkages(ctx, repo.LinkageFilter{SourceType: sourceType, SourceID: sourceID})
}

// ListLinkagesByTarget returns the incoming linkages of an entity.
func (e Engine) ListLinkagesByTarget(ctx context.Context, targetType, targetID string) ([]domain.Linkage, error) {
	return e.listLinkages(ctx, repo.LinkageFilter{TargetType: targetType, TargetID: targetID})
}

func (e Engine) ListLinkagesBySourceAndType(ctx context.Context, sourceID, relationship string) ([]domain.Linkage, error) {
	rel, err := normalizeRelationship(relationship)
	if err != nil {
		return nil, err
	}
	return e.listLinkages(ctx, repo.LinkageFilter{SourceID: sourceID, Relationship: rel})
}

// LinkageQuery combines every linkage filter; used by the list endpoint.
type LinkageQuery = repo.LinkageFilter

func (e Engine) ListLinkages(ctx context.Context, q LinkageQuery) ([]domain.Linkage, error) {
	if q.Relationship != "" {
		rel, err := normalizeRelationship(q.Relationship)
		if err != nil {
			return nil, err
		}
		q.Relationship = rel
	}
	return e.listLinkages(ctx, q)
}
