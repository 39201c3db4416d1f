package repo

import (
	"context"
	"database/sql"
	"strings"

	"traceline/internal/domain"
)

const personColumns = `id,name,COALESCE(description,'') AS description,project_id,roles_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (domain.Person, error) {
	var p domain.Person
	var roles string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ProjectID, &roles); err != nil {
		if err == sql.ErrNoRows {
			return p, ErrNotFound
		}
		return p, err
	}
	p.Roles = decodeStrings(roles)
	return p, nil
}

func (r Repo) InsertPerson(ctx context.Context, tx *sql.Tx, p domain.Person, createdAt string) error {
	_, err := r.on(tx).exec(ctx, `INSERT INTO people(id,project_id,name,description,roles_json,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.ProjectID, p.Name, nullable(p.Description), encodeStrings(p.Roles), createdAt)
	return err
}

func (r Repo) GetPerson(ctx context.Context, tx *sql.Tx, id string) (domain.Person, error) {
	return scanPerson(r.on(tx).queryRow(ctx, `SELECT `+personColumns+` FROM people WHERE id=?`, id))
}

func (r Repo) ListPeople(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Person, error) {
	rows, err := r.on(tx).query(ctx, `SELECT `+personColumns+` FROM people WHERE project_id=? ORDER BY name, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdatePerson(ctx context.Context, tx *sql.Tx, id string, name, description *string, roles *[]string) error {
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
	if roles != nil {
		fields = append(fields, "roles_json=?")
		args = append(args, encodeStrings(*roles))
	}
	if len(fields) == 0 {
		_, err := r.GetPerson(ctx, tx, id)
		return err
	}
	args = append(args, id)
	return affectOne(r.on(tx).exec(ctx, `UPDATE people SET `+strings.Join(fields, ",")+` WHERE id=?`, args...))
}

func (r Repo) DeletePerson(ctx context.Context, tx *sql.Tx, id string) error {
	return affectOne(r.on(tx).exec(ctx, `DELETE FROM people WHERE id=?`, id))
}
