package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"traceline/internal/db"
	"traceline/internal/domain"
	"traceline/internal/events"
	"traceline/internal/metrics"
	"traceline/internal/repo"
)

const maxCreateAttempts = 3

// CreateArtifactInput describes a new artifact. ParentID is the "derives
// from / satisfies" reference of the type; Relations maps join fields such as
// site_ids to referenced ids.
type CreateArtifactInput struct {
	Type      string
	ProjectID string
	Area      string
	Fields    map[string]string
	ParentID  string
	Relations map[string][]string
	ActorID   string
}

// UpdateArtifactInput is a partial update. Nil pointers and absent map keys
// leave the stored value unchanged; a Fields key holding nil clears the
// column. A non-nil Relations replaces the join rows of the fields it names.
type UpdateArtifactInput struct {
	Type      string
	ID        string
	Area      *string
	Status    *string
	Rationale string
	Fields    map[string]*string
	ParentID  *string
	Relations map[string][]string
	ActorID   string
}

// ArtifactQuery filters List. Statuses match any casing.
type ArtifactQuery struct {
	ProjectID string
	Areas     []string
	Statuses  []string
	Owner     string
	Search    string
	Extra     map[string][]string
	SelectAll bool
}

// normalizeField checks one payload value and returns its stored form.
func normalizeField(c domain.Column, v string) (string, error) {
	if c.Required && strings.TrimSpace(v) == "" {
		return "", domain.Validation(c.Name, "required")
	}
	if v == "" {
		return v, nil
	}
	if len(c.Enum) > 0 {
		for _, allowed := range c.Enum {
			if strings.EqualFold(allowed, strings.TrimSpace(v)) {
				return allowed, nil
			}
		}
		return "", domain.Validation(c.Name, fmt.Sprintf("must be one of %s", strings.Join(c.Enum, ", ")))
	}
	if c.JSON && !json.Valid([]byte(v)) {
		return "", domain.Validation(c.Name, "must be valid JSON")
	}
	return v, nil
}

func validateFields(k domain.Kind, fields map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(k.Columns))
	for name := range fields {
		if _, ok := k.Column(name); !ok {
			return nil, domain.Validation(name, fmt.Sprintf("unknown field for %s", k.Type))
		}
	}
	for _, c := range k.Columns {
		v, err := normalizeField(c, fields[c.Name])
		if err != nil {
			return nil, err
		}
		if v != "" {
			out[c.Name] = v
		}
	}
	return out, nil
}

func validatePatch(k domain.Kind, fields map[string]*string) (map[string]*string, error) {
	out := make(map[string]*string, len(fields))
	for name, v := range fields {
		c, ok := k.Column(name)
		if !ok {
			return nil, domain.Validation(name, fmt.Sprintf("unknown field for %s", k.Type))
		}
		if v == nil {
			if c.Required {
				return nil, domain.Validation(name, "required")
			}
			out[name] = nil
			continue
		}
		norm, err := normalizeField(c, *v)
		if err != nil {
			return nil, err
		}
		out[name] = &norm
	}
	return out, nil
}

// resolveRelations checks that every referenced id exists.
func (e Engine) resolveRelations(ctx context.Context, tx *sql.Tx, k domain.Kind, rel map[string][]string) error {
	for field, ids := range rel {
		j, ok := k.Join(field)
		if !ok {
			return domain.Validation(field, fmt.Sprintf("unknown relation for %s", k.Type))
		}
		table := "people"
		if j.RefKind != "person" {
			table, _ = domain.CatalogTable(j.RefKind)
		}
		for _, id := range ids {
			ok, err := e.Repo.RowExists(ctx, tx, table, "id", id)
			if err != nil {
				return classify("check "+field, err)
			}
			if !ok {
				return &domain.ReferenceError{Side: field, Type: j.RefKind, ID: id}
			}
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (e Engine) requireParent(ctx context.Context, tx *sql.Tx, k domain.Kind, parentID string) (domain.Artifact, error) {
	if k.Parent == nil {
		return domain.Artifact{}, domain.Validation("parent_id", fmt.Sprintf("%s has no parent reference", k.Type))
	}
	pk, _ := domain.LookupKind(k.Parent.TargetType)
	parent, err := e.Repo.GetArtifact(ctx, tx, pk, parentID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Artifact{}, &domain.ReferenceError{Side: "parent", Type: pk.Type, ID: parentID}
	}
	if err != nil {
		return domain.Artifact{}, classify("get parent", err)
	}
	return parent, nil
}

func (e Engine) CreateArtifact(ctx context.Context, in CreateArtifactInput) (domain.Artifact, error) {
	k, err := kindOf(in.Type)
	if err != nil {
		return domain.Artifact{}, err
	}
	fields, err := validateFields(k, in.Fields)
	if err != nil {
		return domain.Artifact{}, err
	}
	relations := map[string][]string{}
	for field, ids := range in.Relations {
		relations[field] = dedupe(ids)
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer tx.Rollback()

	project, err := e.requireProject(ctx, tx, in.ProjectID)
	if err != nil {
		return domain.Artifact{}, err
	}
	var parent domain.Artifact
	if in.ParentID != "" {
		if parent, err = e.requireParent(ctx, tx, k, in.ParentID); err != nil {
			return domain.Artifact{}, err
		}
	}
	if err := e.resolveRelations(ctx, tx, k, relations); err != nil {
		return domain.Artifact{}, err
	}
	area, err := e.resolveArea(ctx, tx, in.Area)
	if err != nil {
		return domain.Artifact{}, err
	}
	if area == "" && k.Type == domain.TypeUseCase && parent.ID != "" {
		area = parent.Area
	}
	if area == "" {
		area = e.Config.DefaultArea()
	}

	now := e.stamp()
	a := domain.Artifact{
		Type:      k.Type,
		ProjectID: project.ID,
		Area:      area,
		Status:    domain.StatusDraft,
		Fields:    fields,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for attempt := 1; ; attempt++ {
		if a.ID, err = e.nextID(ctx, tx, k, project.Name, area); err != nil {
			return domain.Artifact{}, classify("generate id", err)
		}
		if _, err := tx.ExecContext(ctx, "SAVEPOINT mint"); err != nil {
			return domain.Artifact{}, classify("savepoint", err)
		}
		err = e.Repo.InsertArtifact(ctx, tx, k, a)
		if err == nil {
			break
		}
		if !db.IsUniqueViolation(err) || attempt >= maxCreateAttempts {
			return domain.Artifact{}, classify("insert "+k.Type, err)
		}
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT mint"); rbErr != nil {
			return domain.Artifact{}, classify("rollback savepoint", rbErr)
		}
		metrics.IDRetries.Inc()
		e.logger().Printf("WARNING: id %s already taken, retrying (%d/%d)", a.ID, attempt, maxCreateAttempts)
	}

	if parent.ID != "" {
		if err := e.Repo.InsertLinkage(ctx, tx, e.parentLinkage(k, a, parent.ID)); err != nil {
			return domain.Artifact{}, classify("insert parent linkage", err)
		}
	}
	for field, ids := range relations {
		j, _ := k.Join(field)
		if err := e.Repo.ReplaceJoin(ctx, tx, j, a.ID, ids); err != nil {
			return domain.Artifact{}, classify("insert "+j.Table, err)
		}
	}
	if _, err := e.Events.Append(ctx, tx, events.Record{
		Type:       events.ArtifactCreated,
		ProjectID:  a.ProjectID,
		EntityKind: k.Type,
		EntityID:   a.ID,
		ActorID:    in.ActorID,
		Payload:    events.EventPayload{"area": a.Area, "status": a.Status},
	}); err != nil {
		return domain.Artifact{}, classify("append event", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.Artifact{}, err
	}
	metrics.ArtifactOps.WithLabelValues(k.Type, "create").Inc()
	return e.GetArtifact(ctx, k.Type, a.ID)
}

func (e Engine) parentLinkage(k domain.Kind, child domain.Artifact, parentID string) domain.Linkage {
	return domain.Linkage{
		ID:               newID(),
		SourceType:       k.Type,
		SourceID:         child.ID,
		TargetType:       k.Parent.TargetType,
		TargetID:         parentID,
		RelationshipType: k.Parent.Relationship,
		ProjectID:        child.ProjectID,
		CreatedAt:        e.stamp(),
	}
}

// parentLink finds the linkage carrying the parent reference of an artifact.
func (e Engine) parentLink(ctx context.Context, tx *sql.Tx, k domain.Kind, id string) (domain.Linkage, bool, error) {
	if k.Parent == nil {
		return domain.Linkage{}, false, nil
	}
	links, err := e.Repo.ListLinkages(ctx, tx, repo.LinkageFilter{
		SourceType:   k.Type,
		SourceID:     id,
		TargetType:   k.Parent.TargetType,
		Relationship: k.Parent.Relationship,
	})
	if err != nil || len(links) == 0 {
		return domain.Linkage{}, false, err
	}
	return links[0], true, nil
}

func (e Engine) loadArtifact(ctx context.Context, tx *sql.Tx, k domain.Kind, id string) (domain.Artifact, error) {
	a, err := e.Repo.GetArtifact(ctx, tx, k, id)
	if err != nil {
		return domain.Artifact{}, classify("get "+k.Type, notFound(err, k.Type, id))
	}
	link, ok, err := e.parentLink(ctx, tx, k, id)
	if err != nil {
		return domain.Artifact{}, classify("get parent linkage", err)
	}
	if ok {
		a.ParentID = link.TargetID
	}
	for _, j := range k.Joins {
		ids, err := e.Repo.JoinIDs(ctx, tx, j, id)
		if err != nil {
			return domain.Artifact{}, classify("get "+j.Table, err)
		}
		if a.Relations == nil {
			a.Relations = map[string][]string{}
		}
		if ids == nil {
			ids = []string{}
		}
		a.Relations[j.Field] = ids
	}
	return a, nil
}

func (e Engine) GetArtifact(ctx context.Context, artifactType, id string) (domain.Artifact, error) {
	k, err := kindOf(artifactType)
	if err != nil {
		return domain.Artifact{}, err
	}
	return e.loadArtifact(ctx, nil, k, id)
}

// FindArtifact looks an id up across every artifact type.
func (e Engine) FindArtifact(ctx context.Context, id string) (domain.Artifact, error) {
	for _, t := range domain.ArtifactTypes() {
		a, err := e.GetArtifact(ctx, t, id)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Artifact{}, err
		}
	}
	return domain.Artifact{}, domain.NotFound("artifact", id)
}

func (e Engine) UpdateArtifact(ctx context.Context, in UpdateArtifactInput) (domain.Artifact, error) {
	k, err := kindOf(in.Type)
	if err != nil {
		return domain.Artifact{}, err
	}
	patchFields, err := validatePatch(k, in.Fields)
	if err != nil {
		return domain.Artifact{}, err
	}
	var newStatus string
	if in.Status != nil {
		s, ok := domain.CanonicalStatus(*in.Status)
		if !ok {
			return domain.Artifact{}, domain.Validation("status", fmt.Sprintf("unknown status %q", *in.Status))
		}
		newStatus = s
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer tx.Rollback()

	current, err := e.Repo.GetArtifact(ctx, tx, k, in.ID)
	if err != nil {
		return domain.Artifact{}, classify("get "+k.Type, notFound(err, k.Type, in.ID))
	}
	patch := repo.ArtifactPatch{Fields: patchFields, UpdatedAt: e.stamp()}
	if in.Area != nil {
		area, err := e.resolveArea(ctx, tx, *in.Area)
		if err != nil {
			return domain.Artifact{}, err
		}
		if area == "" {
			return domain.Artifact{}, domain.Validation("area", "must not be blank")
		}
		patch.Area = &area
	}
	if newStatus != "" && newStatus != current.Status {
		if err := ensureStatusTransition(current.Status, newStatus); err != nil {
			return domain.Artifact{}, err
		}
		patch.Status = &newStatus
		rationale := strings.TrimSpace(in.Rationale)
		if rationale == "" {
			rationale = "status changed by update"
		}
		if _, err := e.Events.Append(ctx, tx, events.Record{
			Type:       events.StatusChanged,
			ProjectID:  current.ProjectID,
			EntityKind: k.Type,
			EntityID:   current.ID,
			ActorID:    in.ActorID,
			Payload:    events.EventPayload{"from": current.Status, "to": newStatus, "rationale": rationale},
		}); err != nil {
			return domain.Artifact{}, classify("append event", err)
		}
		metrics.StatusTransitions.WithLabelValues(current.Status, newStatus).Inc()
	}
	if in.ParentID != nil {
		if err := e.syncParent(ctx, tx, k, current, strings.TrimSpace(*in.ParentID)); err != nil {
			return domain.Artifact{}, err
		}
	}
	if in.Relations != nil {
		relations := map[string][]string{}
		for field, ids := range in.Relations {
			relations[field] = dedupe(ids)
		}
		if err := e.resolveRelations(ctx, tx, k, relations); err != nil {
			return domain.Artifact{}, err
		}
		for field, ids := range relations {
			j, _ := k.Join(field)
			if err := e.Repo.ReplaceJoin(ctx, tx, j, current.ID, ids); err != nil {
				return domain.Artifact{}, classify("replace "+j.Table, err)
			}
		}
	}
	if err := e.Repo.UpdateArtifact(ctx, tx, k, current.ID, patch); err != nil {
		return domain.Artifact{}, classify("update "+k.Type, notFound(err, k.Type, in.ID))
	}
	changed := make([]string, 0, len(patchFields))
	for name := range patchFields {
		changed = append(changed, name)
	}
	sort.Strings(changed)
	if _, err := e.Events.Append(ctx, tx, events.Record{
		Type:       events.ArtifactUpdated,
		ProjectID:  current.ProjectID,
		EntityKind: k.Type,
		EntityID:   current.ID,
		ActorID:    in.ActorID,
		Payload:    events.EventPayload{"fields": changed},
	}); err != nil {
		return domain.Artifact{}, classify("append event", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.Artifact{}, err
	}
	metrics.ArtifactOps.WithLabelValues(k.Type, "update").Inc()
	return e.GetArtifact(ctx, k.Type, current.ID)
}

// syncParent makes the parent linkage follow parentID: retargeted when it
// exists, removed when parentID is empty, created otherwise.
func (e Engine) syncParent(ctx context.Context, tx *sql.Tx, k domain.Kind, a domain.Artifact, parentID string) error {
	if k.Parent == nil {
		return domain.Validation("parent_id", fmt.Sprintf("%s has no parent reference", k.Type))
	}
	link, exists, err := e.parentLink(ctx, tx, k, a.ID)
	if err != nil {
		return classify("get parent linkage", err)
	}
	if parentID == "" {
		if exists {
			if err := e.Repo.DeleteLinkage(ctx, tx, link.ID); err != nil {
				return classify("delete parent linkage", err)
			}
		}
		return nil
	}
	if _, err := e.requireParent(ctx, tx, k, parentID); err != nil {
		return err
	}
	if exists {
		if link.TargetID == parentID {
			return nil
		}
		link.TargetID = parentID
		return classify("retarget parent linkage", e.Repo.UpdateLinkage(ctx, tx, link))
	}
	return classify("insert parent linkage", e.Repo.InsertLinkage(ctx, tx, e.parentLinkage(k, a, parentID)))
}

// DeleteArtifact removes the artifact, its join rows and every linkage that
// touches it. Comments and events stay.
func (e Engine) DeleteArtifact(ctx context.Context, artifactType, id, actorID string) error {
	k, err := kindOf(artifactType)
	if err != nil {
		return err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetArtifact(ctx, tx, k, id)
	if err != nil {
		return classify("get "+k.Type, notFound(err, k.Type, id))
	}
	removed, err := e.Repo.DeleteEndpointLinkages(ctx, tx, k.Type, id)
	if err != nil {
		return classify("delete linkages", err)
	}
	for _, j := range k.Joins {
		if err := e.Repo.DeleteJoinRows(ctx, tx, j, id); err != nil {
			return classify("delete "+j.Table, err)
		}
	}
	if err := e.Repo.DeleteArtifactRow(ctx, tx, k, id); err != nil {
		return classify("delete "+k.Type, notFound(err, k.Type, id))
	}
	if _, err := e.Events.Append(ctx, tx, events.Record{
		Type:       events.ArtifactDeleted,
		ProjectID:  a.ProjectID,
		EntityKind: k.Type,
		EntityID:   id,
		ActorID:    actorID,
		Payload:    events.EventPayload{"linkages_removed": removed},
	}); err != nil {
		return classify("append event", err)
	}
	if err := e.commit(tx); err != nil {
		return err
	}
	metrics.ArtifactOps.WithLabelValues(k.Type, "delete").Inc()
	return nil
}

func (e Engine) ListArtifacts(ctx context.Context, artifactType string, q ArtifactQuery) ([]domain.Artifact, error) {
	k, err := kindOf(artifactType)
	if err != nil {
		return nil, err
	}
	f := repo.ArtifactFilter{
		ProjectID: q.ProjectID,
		Areas:     q.Areas,
		Owner:     strings.TrimSpace(q.Owner),
		Search:    strings.TrimSpace(q.Search),
		Extra:     q.Extra,
		SelectAll: q.SelectAll,
	}
	if !q.SelectAll {
		for _, s := range q.Statuses {
			canonical, ok := domain.CanonicalStatus(s)
			if !ok {
				return nil, domain.Validation("status", fmt.Sprintf("unknown status %q", s))
			}
			f.Statuses = append(f.Statuses, canonical)
		}
		for name := range q.Extra {
			if !contains(k.Filters, name) {
				return nil, domain.Validation(name, fmt.Sprintf("%s cannot be filtered by %s", k.Type, name))
			}
		}
	}
	list, err := e.Repo.ListArtifacts(ctx, nil, k, f)
	if err != nil {
		return nil, classify("list "+k.Type, err)
	}
	if k.Parent == nil || len(list) == 0 {
		return list, nil
	}
	links, err := e.Repo.ListLinkages(ctx, nil, repo.LinkageFilter{
		SourceType:   k.Type,
		TargetType:   k.Parent.TargetType,
		Relationship: k.Parent.Relationship,
	})
	if err != nil {
		return nil, classify("list parent linkages", err)
	}
	parents := make(map[string]string, len(links))
	for _, l := range links {
		if _, ok := parents[l.SourceID]; !ok {
			parents[l.SourceID] = l.TargetID
		}
	}
	for i := range list {
		list[i].ParentID = parents[list[i].ID]
	}
	return list, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
