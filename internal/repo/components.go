package repo

import (
	"context"
	"database/sql"

	"traceline/internal/domain"
)

const componentLinkSelect = `SELECT l.parent_id,l.child_id,c.name,c.type,COALESCE(l.cardinality,''),l.type,COALESCE(l.protocol,''),COALESCE(l.data_items,'')
	FROM component_relationships l JOIN components c ON c.id=l.child_id`

func (r Repo) scanComponentLinks(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]domain.ComponentLink, error) {
	rows, err := r.on(tx).query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ComponentLink
	for rows.Next() {
		var l domain.ComponentLink
		if err := rows.Scan(&l.ParentID, &l.ChildID, &l.ChildName, &l.ChildType, &l.Cardinality, &l.Type, &l.Protocol, &l.DataItems); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// UpsertComponentLink inserts the parent/child pair or replaces the
// attributes of the existing one.
func (r Repo) UpsertComponentLink(ctx context.Context, tx *sql.Tx, l domain.ComponentLink) error {
	_, err := r.on(tx).exec(ctx, `INSERT INTO component_relationships(parent_id,child_id,cardinality,type,protocol,data_items) VALUES (?,?,?,?,?,?)
		ON CONFLICT(parent_id,child_id) DO UPDATE SET cardinality=excluded.cardinality, type=excluded.type,
		protocol=excluded.protocol, data_items=excluded.data_items`,
		l.ParentID, l.ChildID, nullable(l.Cardinality), l.Type, nullable(l.Protocol), nullable(l.DataItems))
	return err
}

func (r Repo) DeleteComponentLink(ctx context.Context, tx *sql.Tx, parentID, childID string) error {
	return affectOne(r.on(tx).exec(ctx, `DELETE FROM component_relationships WHERE parent_id=? AND child_id=?`, parentID, childID))
}

func (r Repo) ComponentChildren(ctx context.Context, tx *sql.Tx, parentID string) ([]domain.ComponentLink, error) {
	return r.scanComponentLinks(ctx, tx, componentLinkSelect+` WHERE l.parent_id=? ORDER BY c.name, l.child_id`, parentID)
}

func (r Repo) ComponentParents(ctx context.Context, tx *sql.Tx, childID string) ([]domain.ComponentLink, error) {
	return r.scanComponentLinks(ctx, tx, componentLinkSelect+` WHERE l.child_id=? ORDER BY l.parent_id`, childID)
}

// ProjectComponentLinks returns every hierarchy row whose parent belongs to
// the project.
func (r Repo) ProjectComponentLinks(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.ComponentLink, error) {
	return r.scanComponentLinks(ctx, tx, componentLinkSelect+`
		JOIN components p ON p.id=l.parent_id WHERE p.project_id=? ORDER BY l.parent_id, l.child_id`, projectID)
}

func (r Repo) UpsertDiagramComponent(ctx context.Context, tx *sql.Tx, dc domain.DiagramComponent) error {
	_, err := r.on(tx).exec(ctx, `INSERT INTO diagram_components(diagram_id,component_id,x,y) VALUES (?,?,?,?)
		ON CONFLICT(diagram_id,component_id) DO UPDATE SET x=excluded.x, y=excluded.y`,
		dc.DiagramID, dc.ComponentID, dc.X, dc.Y)
	return err
}

func (r Repo) DeleteDiagramComponent(ctx context.Context, tx *sql.Tx, diagramID, componentID string) error {
	return affectOne(r.on(tx).exec(ctx, `DELETE FROM diagram_components WHERE diagram_id=? AND component_id=?`, diagramID, componentID))
}

// DiagramComponentPlaced reports whether the component sits on the diagram.
func (r Repo) DiagramComponentPlaced(ctx context.Context, tx *sql.Tx, diagramID, componentID string) (bool, error) {
	var one int
	err := r.on(tx).queryRow(ctx, `SELECT 1 FROM diagram_components WHERE diagram_id=? AND component_id=?`, diagramID, componentID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) listDiagramComponents(ctx context.Context, tx *sql.Tx, where string, arg string) ([]domain.DiagramComponent, error) {
	rows, err := r.on(tx).query(ctx, `SELECT dc.diagram_id,dc.component_id,dc.x,dc.y FROM diagram_components dc
		JOIN diagrams d ON d.id=dc.diagram_id WHERE `+where+` ORDER BY dc.diagram_id, dc.component_id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DiagramComponent
	for rows.Next() {
		var dc domain.DiagramComponent
		if err := rows.Scan(&dc.DiagramID, &dc.ComponentID, &dc.X, &dc.Y); err != nil {
			return nil, err
		}
		res = append(res, dc)
	}
	return res, rows.Err()
}

func (r Repo) DiagramComponents(ctx context.Context, tx *sql.Tx, diagramID string) ([]domain.DiagramComponent, error) {
	return r.listDiagramComponents(ctx, tx, "dc.diagram_id=?", diagramID)
}

func (r Repo) ProjectDiagramComponents(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.DiagramComponent, error) {
	return r.listDiagramComponents(ctx, tx, "d.project_id=?", projectID)
}

// UpsertDiagramEdge inserts the edge or updates the handles given; empty
// handles keep their stored value.
func (r Repo) UpsertDiagramEdge(ctx context.Context, tx *sql.Tx, edge domain.DiagramEdge) error {
	_, err := r.on(tx).exec(ctx, `INSERT INTO diagram_edges(diagram_id,source_id,target_id,source_handle,target_handle) VALUES (?,?,?,?,?)
		ON CONFLICT(diagram_id,source_id,target_id) DO UPDATE SET
		source_handle=COALESCE(excluded.source_handle, diagram_edges.source_handle),
		target_handle=COALESCE(excluded.target_handle, diagram_edges.target_handle)`,
		edge.DiagramID, edge.SourceID, edge.TargetID, nullable(edge.SourceHandle), nullable(edge.TargetHandle))
	return err
}

func (r Repo) DeleteDiagramEdge(ctx context.Context, tx *sql.Tx, diagramID, sourceID, targetID string) error {
	return affectOne(r.on(tx).exec(ctx, `DELETE FROM diagram_edges WHERE diagram_id=? AND source_id=? AND target_id=?`, diagramID, sourceID, targetID))
}

// DeleteDiagramEdgesOf drops the edges of the diagram touching componentID.
func (r Repo) DeleteDiagramEdgesOf(ctx context.Context, tx *sql.Tx, diagramID, componentID string) (int64, error) {
	res, err := r.on(tx).exec(ctx, `DELETE FROM diagram_edges WHERE diagram_id=? AND (source_id=? OR target_id=?)`, diagramID, componentID, componentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) listDiagramEdges(ctx context.Context, tx *sql.Tx, where string, arg string) ([]domain.DiagramEdge, error) {
	rows, err := r.on(tx).query(ctx, `SELECT e.diagram_id,e.source_id,e.target_id,COALESCE(e.source_handle,''),COALESCE(e.target_handle,'')
		FROM diagram_edges e JOIN diagrams d ON d.id=e.diagram_id WHERE `+where+` ORDER BY e.diagram_id, e.source_id, e.target_id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DiagramEdge
	for rows.Next() {
		var edge domain.DiagramEdge
		if err := rows.Scan(&edge.DiagramID, &edge.SourceID, &edge.TargetID, &edge.SourceHandle, &edge.TargetHandle); err != nil {
			return nil, err
		}
		res = append(res, edge)
	}
	return res, rows.Err()
}

func (r Repo) DiagramEdges(ctx context.Context, tx *sql.Tx, diagramID string) ([]domain.DiagramEdge, error) {
	return r.listDiagramEdges(ctx, tx, "e.diagram_id=?", diagramID)
}

func (r Repo) ProjectDiagramEdges(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.DiagramEdge, error) {
	return r.listDiagramEdges(ctx, tx, "d.project_id=?", projectID)
}
