package repo

import (
	"context"
	"database/sql"
	"strings"

	"traceline/internal/domain"
)

const linkageColumns = `id,source_type,source_id,target_type,target_id,relationship_type,project_id,created_at`

type LinkageFilter struct {
	ProjectID    string
	SourceType   string
	SourceID     string
	TargetType   string
	TargetID     string
	Relationship string
}

func scanLinkage(row rowScanner) (domain.Linkage, error) {
	var l domain.Linkage
	err := row.Scan(&l.ID, &l.SourceType, &l.SourceID, &l.TargetType, &l.TargetID, &l.RelationshipType, &l.ProjectID, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

// InsertLinkage appends the linkage after every existing one in insertion
// order.
func (r Repo) InsertLinkage(ctx context.Context, tx *sql.Tx, l domain.Linkage) error {
	_, err := r.on(tx).exec(ctx, `INSERT INTO linkages(id,seq,project_id,source_type,source_id,target_type,target_id,relationship_type,created_at)
		VALUES (?,(SELECT COALESCE(MAX(seq),0)+1 FROM linkages),?,?,?,?,?,?,?)`,
		l.ID, l.ProjectID, l.SourceType, l.SourceID, l.TargetType, l.TargetID, l.RelationshipType, l.CreatedAt)
	return err
}

func (r Repo) GetLinkage(ctx context.Context, tx *sql.Tx, id string) (domain.Linkage, error) {
	return scanLinkage(r.on(tx).queryRow(ctx, `SELECT `+linkageColumns+` FROM linkages WHERE id=?`, id))
}

// UpdateLinkage rewrites every mutable column of the linkage.
func (r Repo) UpdateLinkage(ctx context.Context, tx *sql.Tx, l domain.Linkage) error {
	return affectOne(r.on(tx).exec(ctx, `UPDATE linkages SET source_type=?,source_id=?,target_type=?,target_id=?,relationship_type=? WHERE id=?`,
		l.SourceType, l.SourceID, l.TargetType, l.TargetID, l.RelationshipType, l.ID))
}

func (r Repo) DeleteLinkage(ctx context.Context, tx *sql.Tx, id string) error {
	return affectOne(r.on(tx).exec(ctx, `DELETE FROM linkages WHERE id=?`, id))
}

// DeleteEndpointLinkages removes every linkage where the entity is source or
// target and returns how many were removed.
func (r Repo) DeleteEndpointLinkages(ctx context.Context, tx *sql.Tx, endpointType, id string) (int64, error) {
	res, err := r.on(tx).exec(ctx, `DELETE FROM linkages WHERE (source_id=? AND source_type=?) OR (target_id=? AND target_type=?)`,
		id, endpointType, id, endpointType)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r Repo) ListLinkages(ctx context.Context, tx *sql.Tx, f LinkageFilter) ([]domain.Linkage, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(col, v string) {
		if v == "" {
			return
		}
		clauses = append(clauses, col+"=?")
		args = append(args, v)
	}
	add("project_id", f.ProjectID)
	add("source_type", f.SourceType)
	add("source_id", f.SourceID)
	add("target_type", f.TargetType)
	add("target_id", f.TargetID)
	add("relationship_type", f.Relationship)
	query := `SELECT ` + linkageColumns + ` FROM linkages`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY seq, id`
	rows, err := r.on(tx).query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Linkage
	for rows.Next() {
		l, err := scanLinkage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
