package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"traceline/internal/domain"
)

const projectColumns = `id,name,COALESCE(description,'') AS description,created_at`

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.on(tx).exec(ctx, `INSERT INTO projects(id,name,description,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.on(tx).queryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// GetProjectByName matches the name case-insensitively.
func (r Repo) GetProjectByName(ctx context.Context, tx *sql.Tx, name string) (domain.Project, error) {
	return scanProject(r.on(tx).queryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE LOWER(name)=LOWER(?)`, name))
}

func (r Repo) ListProjects(ctx context.Context, tx *sql.Tx) ([]domain.Project, error) {
	rows, err := r.on(tx).query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, name, description *string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if len(fields) == 0 {
		var one int
		err := r.on(tx).queryRow(ctx, `SELECT 1 FROM projects WHERE id=?`, id).Scan(&one)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	args = append(args, id)
	return affectOne(r.on(tx).exec(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...))
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	return affectOne(r.on(tx).exec(ctx, `DELETE FROM projects WHERE id=?`, id))
}

// CountProjectArtifacts counts artifacts of every type owned by the project.
func (r Repo) CountProjectArtifacts(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	total := 0
	for _, t := range domain.ArtifactTypes() {
		k, _ := domain.LookupKind(t)
		var n int
		if err := r.on(tx).queryRow(ctx, `SELECT COUNT(*) FROM `+k.Table+` WHERE project_id=?`, projectID).Scan(&n); err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
