package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"traceline/internal/domain"
)

const areaColumns = `code,name,COALESCE(description,'') AS description,COALESCE(project_id,'') AS project_id`

func (r Repo) InsertArea(ctx context.Context, tx *sql.Tx, a domain.Area) error {
	_, err := r.on(tx).exec(ctx, `INSERT INTO areas(code,name,description,project_id) VALUES (?,?,?,?)`,
		a.Code, a.Name, nullable(a.Description), nullable(a.ProjectID))
	return err
}

func (r Repo) GetArea(ctx context.Context, tx *sql.Tx, code string) (domain.Area, error) {
	var a domain.Area
	err := r.on(tx).queryRow(ctx, `SELECT `+areaColumns+` FROM areas WHERE code=?`, code).
		Scan(&a.Code, &a.Name, &a.Description, &a.ProjectID)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// ResolveArea looks an area up by code, then by name, ignoring case, and
// returns its canonical code.
func (r Repo) ResolveArea(ctx context.Context, tx *sql.Tx, value string) (string, bool, error) {
	var code string
	err := r.on(tx).queryRow(ctx, `SELECT code FROM areas WHERE LOWER(code)=LOWER(?) ORDER BY code LIMIT 1`, value).Scan(&code)
	if err == nil {
		return code, true, nil
	}
	if err != sql.ErrNoRows {
		return "", false, err
	}
	err = r.on(tx).queryRow(ctx, `SELECT code FROM areas WHERE LOWER(name)=LOWER(?) ORDER BY code LIMIT 1`, value).Scan(&code)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return code, true, nil
}

// ListAreas returns the areas of a project plus the unscoped ones.
func (r Repo) ListAreas(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Area, error) {
	query := `SELECT ` + areaColumns + ` FROM areas`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=? OR project_id IS NULL`
		args = append(args, projectID)
	}
	query += ` ORDER BY code`
	rows, err := r.on(tx).query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Area
	for rows.Next() {
		var a domain.Area
		if err := rows.Scan(&a.Code, &a.Name, &a.Description, &a.ProjectID); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateArea(ctx context.Context, tx *sql.Tx, code string, name, description *string) error {
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
		_, err := r.GetArea(ctx, tx, code)
		return err
	}
	args = append(args, code)
	return affectOne(r.on(tx).exec(ctx, fmt.Sprintf(`UPDATE areas SET %s WHERE code=?`, strings.Join(fields, ",")), args...))
}

func (r Repo) DeleteArea(ctx context.Context, tx *sql.Tx, code string) error {
	return affectOne(r.on(tx).exec(ctx, `DELETE FROM areas WHERE code=?`, code))
}
