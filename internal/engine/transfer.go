package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"traceline/internal/domain"
	"traceline/internal/events"
	"traceline/internal/repo"
)

// ExportVersion tags the export document layout.
const ExportVersion = "1"

// ExportData is the portable document of one project. Artifacts carry their
// join ids in Relations; parent references travel as linkages.
type ExportData struct {
	Version    string               `json:"version"`
	ExportedAt string               `json:"exported_at"`
	Project    domain.Project       `json:"project"`
	Areas      []domain.Area        `json:"areas"`
	People     []domain.Person      `json:"people"`
	Catalog    []domain.CatalogItem `json:"catalog"`

	ComponentLinks    []domain.ComponentLink    `json:"component_links,omitempty"`
	DiagramComponents []domain.DiagramComponent `json:"diagram_components,omitempty"`
	DiagramEdges      []domain.DiagramEdge      `json:"diagram_edges,omitempty"`

	Artifacts  []domain.Artifact    `json:"artifacts"`
	Linkages   []domain.Linkage     `json:"linkages"`
	Comments   []domain.Comment     `json:"comments"`
	Events     []domain.Event       `json:"events"`
}

type ImportResult struct {
	ProjectID string `json:"project_id"`
	Areas     int    `json:"areas_imported"`
	People    int    `json:"people_imported"`
	Catalog   int    `json:"catalog_imported"`
	Artifacts int    `json:"artifacts_imported"`
	Linkages  int    `json:"linkages_imported"`
	Comments  int    `json:"comments_imported"`
	Events    int    `json:"events_imported"`
}

// ExportProject reads a whole project in one read transaction.
func (e Engine) ExportProject(ctx context.Context, projectID string) (ExportData, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return ExportData{}, err
	}
	defer tx.Rollback()
	data, err := e.exportProject(ctx, tx, projectID)
	if err != nil {
		return ExportData{}, err
	}
	return data, e.commit(tx)
}

func (e Engine) exportProject(ctx context.Context, tx *sql.Tx, projectID string) (ExportData, error) {
	p, err := e.requireProject(ctx, tx, projectID)
	if err != nil {
		return ExportData{}, err
	}
	data := ExportData{Version: ExportVersion, ExportedAt: e.stamp(), Project: p}

	areas, err := e.Repo.ListAreas(ctx, tx, projectID)
	if err != nil {
		return ExportData{}, classify("export areas", err)
	}
	for _, a := range areas {
		if a.ProjectID == projectID {
			data.Areas = append(data.Areas, a)
		}
	}
	if data.People, err = e.Repo.ListPeople(ctx, tx, projectID); err != nil {
		return ExportData{}, classify("export people", err)
	}
	for _, kind := range domain.CatalogKinds() {
		items, err := e.Repo.ListCatalogItems(ctx, tx, kind, projectID)
		if err != nil {
			return ExportData{}, classify("export "+kind, err)
		}
		data.Catalog = append(data.Catalog, items...)
	}
	if data.ComponentLinks, err = e.Repo.ProjectComponentLinks(ctx, tx, projectID); err != nil {
		return ExportData{}, classify("export component links", err)
	}
	if data.DiagramComponents, err = e.Repo.ProjectDiagramComponents(ctx, tx, projectID); err != nil {
		return ExportData{}, classify("export diagram components", err)
	}
	if data.DiagramEdges, err = e.Repo.ProjectDiagramEdges(ctx, tx, projectID); err != nil {
		return ExportData{}, classify("export diagram edges", err)
	}
	for _, t := range domain.ArtifactTypes() {
		k, _ := domain.LookupKind(t)
		list, err := e.Repo.ListArtifacts(ctx, tx, k, repo.ArtifactFilter{ProjectID: projectID})
		if err != nil {
			return ExportData{}, classify("export "+t, err)
		}
		for _, a := range list {
			for _, j := range k.Joins {
				ids, err := e.Repo.JoinIDs(ctx, tx, j, a.ID)
				if err != nil {
					return ExportData{}, classify("export "+j.Table, err)
				}
				if len(ids) == 0 {
					continue
				}
				if a.Relations == nil {
					a.Relations = map[string][]string{}
				}
				a.Relations[j.Field] = ids
			}
			comments, err := e.Repo.ListComments(ctx, tx, a.ID, nil)
			if err != nil {
				return ExportData{}, classify("export comments", err)
			}
			data.Comments = append(data.Comments, comments...)
			data.Artifacts = append(data.Artifacts, a)
		}
	}
	if data.Linkages, err = e.Repo.ListLinkages(ctx, tx, repo.LinkageFilter{ProjectID: projectID}); err != nil {
		return ExportData{}, classify("export linkages", err)
	}
	if data.Events, err = e.Repo.ProjectEvents(ctx, tx, projectID); err != nil {
		return ExportData{}, classify("export events", err)
	}
	return data, nil
}

// ImportProject recreates an exported project. It fails with Conflict when
// the project id or name is already present and writes nothing on error.
func (e Engine) ImportProject(ctx context.Context, data ExportData, actorID string) (ImportResult, error) {
	if data.Version != "" && data.Version != ExportVersion {
		return ImportResult{}, domain.Validation("version", fmt.Sprintf("unsupported export version %q", data.Version))
	}
	p := data.Project
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return ImportResult{}, domain.Validation("project", "id and name are required")
	}
	if p.CreatedAt == "" {
		p.CreatedAt = e.stamp()
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	defer tx.Rollback()

	if err := e.ensureProjectFree(ctx, tx, p.ID, p.Name); err != nil {
		return ImportResult{}, err
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return ImportResult{}, classify("import project", err)
	}
	res := ImportResult{ProjectID: p.ID}

	for _, a := range data.Areas {
		if _, err := e.Repo.GetArea(ctx, tx, a.Code); err == nil {
			continue
		} else if !errors.Is(err, repo.ErrNotFound) {
			return ImportResult{}, classify("import area", err)
		}
		a.ProjectID = p.ID
		if err := e.Repo.InsertArea(ctx, tx, a); err != nil {
			return ImportResult{}, classify("import area "+a.Code, err)
		}
		res.Areas++
	}
	for _, person := range data.People {
		person.ProjectID = p.ID
		if err := e.Repo.InsertPerson(ctx, tx, person, p.CreatedAt); err != nil {
			return ImportResult{}, classify("import person "+person.ID, err)
		}
		res.People++
	}
	for _, item := range data.Catalog {
		item.ProjectID = p.ID
		if item.CreatedAt == "" {
			item.CreatedAt = p.CreatedAt
		}
		if err := normalizeCatalogItem(&item); err != nil {
			return ImportResult{}, fmt.Errorf("import %s %s: %w", item.Kind, item.ID, err)
		}
		if err := e.Repo.InsertCatalogItem(ctx, tx, item); err != nil {
			return ImportResult{}, classify("import "+item.Kind+" "+item.ID, err)
		}
		res.Catalog++
	}
	for _, l := range data.ComponentLinks {
		if l.Type == "" {
			l.Type = domain.LinkComposition
		}
		if err := e.Repo.UpsertComponentLink(ctx, tx, l); err != nil {
			return ImportResult{}, classify("import component link "+l.ParentID+"/"+l.ChildID, err)
		}
	}
	for _, dc := range data.DiagramComponents {
		if err := e.Repo.UpsertDiagramComponent(ctx, tx, dc); err != nil {
			return ImportResult{}, classify("import diagram component "+dc.DiagramID+"/"+dc.ComponentID, err)
		}
	}
	for _, edge := range data.DiagramEdges {
		if err := e.Repo.UpsertDiagramEdge(ctx, tx, edge); err != nil {
			return ImportResult{}, classify("import diagram edge "+edge.SourceID+"->"+edge.TargetID, err)
		}
	}
	for _, a := range data.Artifacts {
		k, err := kindOf(a.Type)
		if err != nil {
			return ImportResult{}, err
		}
		a.ProjectID = p.ID
		if a.Status == "" {
			a.Status = domain.StatusDraft
		}
		status, ok := domain.CanonicalStatus(a.Status)
		if !ok {
			return ImportResult{}, domain.Validation("status", fmt.Sprintf("%s %s: unknown status %q", k.Type, a.ID, a.Status))
		}
		a.Status = status
		if a.Fields, err = validateFields(k, a.Fields); err != nil {
			return ImportResult{}, fmt.Errorf("import %s %s: %w", k.Type, a.ID, err)
		}
		if err := e.Repo.InsertArtifact(ctx, tx, k, a); err != nil {
			return ImportResult{}, classify("import "+k.Type+" "+a.ID, err)
		}
		for field, ids := range a.Relations {
			j, ok := k.Join(field)
			if !ok {
				return ImportResult{}, domain.Validation(field, fmt.Sprintf("unknown relation for %s", k.Type))
			}
			if err := e.Repo.ReplaceJoin(ctx, tx, j, a.ID, ids); err != nil {
				return ImportResult{}, classify("import "+j.Table, err)
			}
		}
		res.Artifacts++
	}
	for _, l := range data.Linkages {
		l.ProjectID = p.ID
		if err := e.Repo.InsertLinkage(ctx, tx, l); err != nil {
			return ImportResult{}, classify("import linkage "+l.ID, err)
		}
		res.Linkages++
	}
	for _, c := range data.Comments {
		if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
			return ImportResult{}, classify("import comment "+c.ID, err)
		}
		res.Comments++
	}
	for _, evt := range data.Events {
		evt.ProjectID = p.ID
		if err := e.Repo.ImportEvent(ctx, tx, evt); err != nil {
			return ImportResult{}, classify("import event", err)
		}
		res.Events++
	}
	if _, err := e.Events.Append(ctx, tx, events.Record{
		Type:       events.ProjectImported,
		ProjectID:  p.ID,
		EntityKind: "project",
		EntityID:   p.ID,
		ActorID:    actorID,
		Payload: events.EventPayload{
			"artifacts":   res.Artifacts,
			"linkages":    res.Linkages,
			"exported_at": data.ExportedAt,
		},
	}); err != nil {
		return ImportResult{}, classify("append event", err)
	}
	if err := e.commit(tx); err != nil {
		return ImportResult{}, err
	}
	e.logger().Printf("imported project %s (%s): %d artifacts, %d linkages", p.Name, p.ID, res.Artifacts, res.Linkages)
	return res, nil
}

func exportTimestamp(t time.Time) string {
	return t.UTC().Format("20060102_150405")
}
