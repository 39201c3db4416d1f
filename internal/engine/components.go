package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"traceline/internal/domain"
	"traceline/internal/repo"
)

var componentLinkTypes = []string{domain.LinkComposition, domain.LinkCommunication}

func (e Engine) requireComponent(ctx context.Context, tx *sql.Tx, side, id string) (domain.CatalogItem, error) {
	c, err := e.Repo.GetCatalogItem(ctx, tx, domain.CatalogComponent, id)
	if errors.Is(err, repo.ErrNotFound) {
		if side == "" {
			return c, domain.NotFound(domain.CatalogComponent, id)
		}
		return c, &domain.ReferenceError{Side: side, Type: domain.CatalogComponent, ID: id}
	}
	if err != nil {
		return c, classify("get component", err)
	}
	return c, nil
}

// LinkComponents places the child under the parent, or updates the
// attributes of an existing pair. Composition links must keep the hierarchy
// acyclic.
func (e Engine) LinkComponents(ctx context.Context, l domain.ComponentLink) (domain.ComponentLink, error) {
	l.ParentID = strings.TrimSpace(l.ParentID)
	l.ChildID = strings.TrimSpace(l.ChildID)
	if l.ChildID == "" {
		return domain.ComponentLink{}, domain.Validation("child_id", "required")
	}
	if l.ParentID == l.ChildID {
		return domain.ComponentLink{}, domain.Validation("child_id", "a component cannot contain itself")
	}
	if strings.TrimSpace(l.Type) == "" {
		l.Type = domain.LinkComposition
	}
	t, ok := domain.CanonicalChoice(l.Type, componentLinkTypes)
	if !ok {
		return domain.ComponentLink{}, domain.Validation("type", "must be one of "+strings.Join(componentLinkTypes, ", "))
	}
	l.Type = t

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.ComponentLink{}, err
	}
	defer tx.Rollback()
	parent, err := e.requireComponent(ctx, tx, "", l.ParentID)
	if err != nil {
		return domain.ComponentLink{}, err
	}
	child, err := e.requireComponent(ctx, tx, "child", l.ChildID)
	if err != nil {
		return domain.ComponentLink{}, err
	}
	if parent.ProjectID != child.ProjectID {
		return domain.ComponentLink{}, domain.Validation("child_id", "component belongs to another project")
	}
	if l.Type == domain.LinkComposition {
		cyclic, err := e.isAncestor(ctx, tx, l.ChildID, l.ParentID)
		if err != nil {
			return domain.ComponentLink{}, err
		}
		if cyclic {
			return domain.ComponentLink{}, &domain.ConflictError{Kind: "component link", ID: l.ParentID + "/" + l.ChildID, Reason: "would create a containment cycle"}
		}
	}
	if err := e.Repo.UpsertComponentLink(ctx, tx, l); err != nil {
		return domain.ComponentLink{}, classify("link components", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.ComponentLink{}, err
	}
	l.ChildName, l.ChildType = child.Name, child.Type
	return l, nil
}

// isAncestor walks the composition parents of id looking for candidate.
func (e Engine) isAncestor(ctx context.Context, tx *sql.Tx, candidate, id string) (bool, error) {
	seen := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		parents, err := e.Repo.ComponentParents(ctx, tx, cur)
		if err != nil {
			return false, classify("walk component parents", err)
		}
		for _, p := range parents {
			if p.Type != domain.LinkComposition || seen[p.ParentID] {
				continue
			}
			if p.ParentID == candidate {
				return true, nil
			}
			seen[p.ParentID] = true
			queue = append(queue, p.ParentID)
		}
	}
	return false, nil
}

func (e Engine) UnlinkComponents(ctx context.Context, parentID, childID string) error {
	if err := e.Repo.DeleteComponentLink(ctx, nil, parentID, childID); err != nil {
		return classify("unlink components", notFound(err, "component link", parentID+"/"+childID))
	}
	return nil
}

func (e Engine) ComponentChildren(ctx context.Context, id string) ([]domain.ComponentLink, error) {
	if _, err := e.requireComponent(ctx, nil, "", id); err != nil {
		return nil, err
	}
	list, err := e.Repo.ComponentChildren(ctx, nil, id)
	if err != nil {
		return nil, classify("list component children", err)
	}
	return list, nil
}

func (e Engine) ComponentParents(ctx context.Context, id string) ([]domain.ComponentLink, error) {
	if _, err := e.requireComponent(ctx, nil, "", id); err != nil {
		return nil, err
	}
	list, err := e.Repo.ComponentParents(ctx, nil, id)
	if err != nil {
		return nil, classify("list component parents", err)
	}
	return list, nil
}

func (e Engine) requireLayoutDiagram(ctx context.Context, tx *sql.Tx, id string) (domain.CatalogItem, error) {
	d, err := e.Repo.GetCatalogItem(ctx, tx, domain.CatalogDiagram, id)
	if err != nil {
		return d, classify("get diagram", notFound(err, domain.CatalogDiagram, id))
	}
	if d.Type == domain.DiagramTypeSequence {
		return d, domain.Validation("diagram", "sequence diagrams carry Mermaid content, not a component layout")
	}
	return d, nil
}

// DiagramLayout returns the diagram with its placed components and edges.
func (e Engine) DiagramLayout(ctx context.Context, id string) (domain.DiagramLayout, error) {
	return e.diagramLayout(ctx, nil, id)
}

func (e Engine) diagramLayout(ctx context.Context, tx *sql.Tx, id string) (domain.DiagramLayout, error) {
	d, err := e.Repo.GetCatalogItem(ctx, tx, domain.CatalogDiagram, id)
	if err != nil {
		return domain.DiagramLayout{}, classify("get diagram", notFound(err, domain.CatalogDiagram, id))
	}
	layout := domain.DiagramLayout{Diagram: d, Components: []domain.DiagramComponent{}, Edges: []domain.DiagramEdge{}}
	comps, err := e.Repo.DiagramComponents(ctx, tx, id)
	if err != nil {
		return layout, classify("list diagram components", err)
	}
	edges, err := e.Repo.DiagramEdges(ctx, tx, id)
	if err != nil {
		return layout, classify("list diagram edges", err)
	}
	layout.Components = append(layout.Components, comps...)
	layout.Edges = append(layout.Edges, edges...)
	return layout, nil
}

// PlaceComponent adds the component to the diagram at (X, Y), or moves it
// when already placed.
func (e Engine) PlaceComponent(ctx context.Context, dc domain.DiagramComponent) (domain.DiagramLayout, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.DiagramLayout{}, err
	}
	defer tx.Rollback()
	d, err := e.requireLayoutDiagram(ctx, tx, dc.DiagramID)
	if err != nil {
		return domain.DiagramLayout{}, err
	}
	c, err := e.requireComponent(ctx, tx, "component", dc.ComponentID)
	if err != nil {
		return domain.DiagramLayout{}, err
	}
	if c.ProjectID != d.ProjectID {
		return domain.DiagramLayout{}, domain.Validation("component_id", "component belongs to another project")
	}
	if err := e.Repo.UpsertDiagramComponent(ctx, tx, dc); err != nil {
		return domain.DiagramLayout{}, classify("place component", err)
	}
	layout, err := e.diagramLayout(ctx, tx, dc.DiagramID)
	if err != nil {
		return layout, err
	}
	return layout, e.commit(tx)
}

// RemoveDiagramComponent takes the component off the diagram along with the
// diagram edges touching it.
func (e Engine) RemoveDiagramComponent(ctx context.Context, diagramID, componentID string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Repo.DeleteDiagramEdgesOf(ctx, tx, diagramID, componentID); err != nil {
		return classify("delete diagram edges", err)
	}
	if err := e.Repo.DeleteDiagramComponent(ctx, tx, diagramID, componentID); err != nil {
		return classify("remove diagram component", notFound(err, "diagram component", diagramID+"/"+componentID))
	}
	return e.commit(tx)
}

// SetDiagramEdge connects two components placed on the diagram. Setting an
// existing edge updates the handles given.
func (e Engine) SetDiagramEdge(ctx context.Context, edge domain.DiagramEdge) (domain.DiagramLayout, error) {
	if edge.SourceID == "" || edge.TargetID == "" {
		return domain.DiagramLayout{}, domain.Validation("source_id", "source and target are required")
	}
	if edge.SourceID == edge.TargetID {
		return domain.DiagramLayout{}, domain.Validation("target_id", "an edge needs two distinct components")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.DiagramLayout{}, err
	}
	defer tx.Rollback()
	if _, err := e.requireLayoutDiagram(ctx, tx, edge.DiagramID); err != nil {
		return domain.DiagramLayout{}, err
	}
	for _, end := range [][2]string{{"source", edge.SourceID}, {"target", edge.TargetID}} {
		placed, err := e.Repo.DiagramComponentPlaced(ctx, tx, edge.DiagramID, end[1])
		if err != nil {
			return domain.DiagramLayout{}, classify("check diagram component", err)
		}
		if !placed {
			return domain.DiagramLayout{}, &domain.ReferenceError{Side: end[0], Type: "diagram component", ID: end[1]}
		}
	}
	if err := e.Repo.UpsertDiagramEdge(ctx, tx, edge); err != nil {
		return domain.DiagramLayout{}, classify("set diagram edge", err)
	}
	layout, err := e.diagramLayout(ctx, tx, edge.DiagramID)
	if err != nil {
		return layout, err
	}
	return layout, e.commit(tx)
}

func (e Engine) RemoveDiagramEdge(ctx context.Context, diagramID, sourceID, targetID string) error {
	if err := e.Repo.DeleteDiagramEdge(ctx, nil, diagramID, sourceID, targetID); err != nil {
		return classify("remove diagram edge", notFound(err, "diagram edge", sourceID+"->"+targetID))
	}
	return nil
}
