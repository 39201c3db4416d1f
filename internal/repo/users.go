package repo

import (
	"context"
	"database/sql"

	"traceline/internal/domain"
)

const userColumns = `id,username,password_hash,roles_json,created_at`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var roles string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &roles, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return u, ErrNotFound
		}
		return u, err
	}
	u.Roles = decodeStrings(roles)
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.on(tx).exec(ctx, `INSERT INTO users(id,username,password_hash,roles_json,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Username, u.PasswordHash, encodeStrings(u.Roles), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(r.on(tx).queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByUsername(ctx context.Context, tx *sql.Tx, username string) (domain.User, error) {
	return scanUser(r.on(tx).queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(username)=LOWER(?)`, username))
}

func (r Repo) ListUsers(ctx context.Context, tx *sql.Tx) ([]domain.User, error) {
	rows, err := r.on(tx).query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) UpdateUserPassword(ctx context.Context, tx *sql.Tx, id, hash string) error {
	return affectOne(r.on(tx).exec(ctx, `UPDATE users SET password_hash=? WHERE id=?`, hash, id))
}

func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, id string) error {
	return affectOne(r.on(tx).exec(ctx, `DELETE FROM users WHERE id=?`, id))
}
