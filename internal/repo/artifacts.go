package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"traceline/internal/domain"
)

// ArtifactFilter narrows ListArtifacts. Empty fields do not filter; SelectAll
// ignores every field.
type ArtifactFilter struct {
	ProjectID string
	Areas     []string
	Statuses  []string
	Owner     string
	Search    string
	Extra     map[string][]string
	SelectAll bool
}

func artifactColumns(k domain.Kind) string {
	cols := []string{k.Key, "project_id", "area", "status"}
	for _, c := range k.Columns {
		cols = append(cols, quote(c.Name))
	}
	cols = append(cols, "created_at", "updated_at")
	return strings.Join(cols, ",")
}

func scanArtifact(k domain.Kind, row rowScanner) (domain.Artifact, error) {
	a := domain.Artifact{Type: k.Type, Fields: map[string]string{}}
	payload := make([]sql.NullString, len(k.Columns))
	dest := []any{&a.ID, &a.ProjectID, &a.Area, &a.Status}
	for i := range payload {
		dest = append(dest, &payload[i])
	}
	dest = append(dest, &a.CreatedAt, &a.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return a, ErrNotFound
		}
		return a, err
	}
	for i, c := range k.Columns {
		if payload[i].Valid {
			a.Fields[c.Name] = payload[i].String
		}
	}
	return a, nil
}

func (r Repo) InsertArtifact(ctx context.Context, tx *sql.Tx, k domain.Kind, a domain.Artifact) error {
	args := []any{a.ID, a.ProjectID, a.Area, a.Status}
	for _, c := range k.Columns {
		args = append(args, nullable(a.Fields[c.Name]))
	}
	args = append(args, a.CreatedAt, a.UpdatedAt)
	query := fmt.Sprintf(`INSERT INTO %s(%s) VALUES (%s)`, k.Table, artifactColumns(k), placeholders(len(args)))
	_, err := r.on(tx).exec(ctx, query, args...)
	return err
}

func (r Repo) GetArtifact(ctx context.Context, tx *sql.Tx, k domain.Kind, id string) (domain.Artifact, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s=?`, artifactColumns(k), k.Table, k.Key)
	return scanArtifact(k, r.on(tx).queryRow(ctx, query, id))
}

func (r Repo) ArtifactExists(ctx context.Context, tx *sql.Tx, k domain.Kind, id string) (bool, error) {
	return r.RowExists(ctx, tx, k.Table, k.Key, id)
}

func lowerAll(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}

func (r Repo) ListArtifacts(ctx context.Context, tx *sql.Tx, k domain.Kind, f ArtifactFilter) ([]domain.Artifact, error) {
	var (
		clauses []string
		args    []any
	)
	if !f.SelectAll {
		if f.ProjectID != "" {
			clauses = append(clauses, "project_id=?")
			args = append(args, f.ProjectID)
		}
		if len(f.Areas) > 0 {
			clauses = append(clauses, fmt.Sprintf("LOWER(area) IN (%s)", placeholders(len(f.Areas))))
			args = append(args, lowerAll(f.Areas)...)
		}
		if len(f.Statuses) > 0 {
			clauses = append(clauses, fmt.Sprintf("status IN (%s)", placeholders(len(f.Statuses))))
			for _, s := range f.Statuses {
				args = append(args, s)
			}
		}
		if f.Owner != "" && k.Owner != "" {
			clauses = append(clauses, fmt.Sprintf("LOWER(%s)=LOWER(?)", quote(k.Owner)))
			args = append(args, f.Owner)
		}
		if f.Search != "" && len(k.Search) > 0 {
			var ors []string
			pattern := "%" + strings.ToLower(f.Search) + "%"
			for _, col := range k.Search {
				ors = append(ors, fmt.Sprintf("LOWER(COALESCE(%s,'')) LIKE ?", quote(col)))
				args = append(args, pattern)
			}
			clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
		}
		for _, name := range k.Filters {
			values := f.Extra[name]
			if len(values) == 0 {
				continue
			}
			clauses = append(clauses, fmt.Sprintf("LOWER(%s) IN (%s)", quote(name), placeholders(len(values))))
			args = append(args, lowerAll(values)...)
		}
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY %s`, artifactColumns(k), k.Table, where, k.Key)
	rows, err := r.on(tx).query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(k, rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ArtifactPatch lists the columns to change. Nil fields are left untouched;
// UpdatedAt is always written.
type ArtifactPatch struct {
	Area      *string
	Status    *string
	Fields    map[string]*string
	UpdatedAt string
}

func (r Repo) UpdateArtifact(ctx context.Context, tx *sql.Tx, k domain.Kind, id string, p ArtifactPatch) error {
	fields := []string{"updated_at=?"}
	args := []any{p.UpdatedAt}
	if p.Area != nil {
		fields = append(fields, "area=?")
		args = append(args, *p.Area)
	}
	if p.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *p.Status)
	}
	for _, c := range k.Columns {
		v, ok := p.Fields[c.Name]
		if !ok {
			continue
		}
		fields = append(fields, quote(c.Name)+"=?")
		args = append(args, nullableStringPtr(v))
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s=?`, k.Table, strings.Join(fields, ","), k.Key)
	return affectOne(r.on(tx).exec(ctx, query, args...))
}

func (r Repo) DeleteArtifactRow(ctx context.Context, tx *sql.Tx, k domain.Kind, id string) error {
	return affectOne(r.on(tx).exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s=?`, k.Table, k.Key), id))
}

// ArtifactStatus reads the stored status only.
func (r Repo) ArtifactStatus(ctx context.Context, tx *sql.Tx, k domain.Kind, id string) (string, error) {
	var status string
	err := r.on(tx).queryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE %s=?`, k.Table, k.Key), id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return status, err
}

// IDsWithPrefix returns every id of the table starting with prefix. The match
// is case-sensitive on every dialect; LIKE only narrows the scan since sqlite
// folds ASCII case.
func (r Repo) IDsWithPrefix(ctx context.Context, tx *sql.Tx, k domain.Kind, prefix string) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	ids, err := r.on(tx).strings(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIKE ? ESCAPE '\'`, k.Key, k.Table, k.Key), escaped+"%")
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out, nil
}

// JoinIDs returns the referenced ids of one association table.
func (r Repo) JoinIDs(ctx context.Context, tx *sql.Tx, j domain.Join, ownerID string) ([]string, error) {
	return r.on(tx).strings(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s=? ORDER BY %s`, j.RefCol, j.Table, j.OwnerCol, j.RefCol), ownerID)
}

// ReplaceJoin rewrites the association rows of ownerID to exactly ids.
func (r Repo) ReplaceJoin(ctx context.Context, tx *sql.Tx, j domain.Join, ownerID string, ids []string) error {
	c := r.on(tx)
	if _, err := c.exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s=?`, j.Table, j.OwnerCol), ownerID); err != nil {
		return err
	}
	for _, id := range ids {
		query := fmt.Sprintf(`INSERT INTO %s(%s,%s) VALUES (?,?) ON CONFLICT DO NOTHING`, j.Table, j.OwnerCol, j.RefCol)
		if _, err := c.exec(ctx, query, ownerID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) DeleteJoinRows(ctx context.Context, tx *sql.Tx, j domain.Join, ownerID string) error {
	_, err := r.on(tx).exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s=?`, j.Table, j.OwnerCol), ownerID)
	return err
}
