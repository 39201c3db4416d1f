package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"traceline/internal/db"
	"traceline/internal/domain"
)

// Repo is the persistence layer. Methods that take a *sql.Tx run on the
// transaction when it is non-nil and on DB otherwise. Callers holding a
// transaction must always pass it: the sqlite pool has a single connection.
type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var ErrNotFound = domain.ErrNotFound

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn rebinds every statement for the dialect before running it.
type conn struct {
	q querier
	d db.Dialect
}

func (r Repo) on(tx *sql.Tx) conn {
	if tx != nil {
		return conn{q: tx, d: r.Dialect}
	}
	return conn{q: r.DB, d: r.Dialect}
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.Rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.Rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.Rebind(query), args...)
}

// affectOne maps a zero row update or delete to ErrNotFound.
func affectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c conn) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return nullable(*v)
}

// quote renders a column name as a quoted identifier. Payload columns include
// keywords such as "trigger" and "text".
func quote(col string) string {
	return `"` + strings.ReplaceAll(col, `"`, `""`) + `"`
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func encodeStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func decodeStrings(raw string) []string {
	var out []string
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
