package db

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Dialect renders the few statements that differ between sqlite and postgres.
// Queries are written with ? placeholders and rebound on the way out.
type Dialect struct {
	Driver string
}

var (
	SQLite   = Dialect{Driver: DriverSQLite}
	Postgres = Dialect{Driver: DriverPostgres}
)

// Rebind rewrites ? placeholders to $N for postgres. Quoted literals are left
// untouched.
func (d Dialect) Rebind(query string) string {
	if d.Driver != DriverPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Greatest returns the scalar max expression of the dialect.
func (d Dialect) Greatest(a, b string) string {
	if d.Driver == DriverPostgres {
		return "GREATEST(" + a + ", " + b + ")"
	}
	return "MAX(" + a + ", " + b + ")"
}

// IsUniqueViolation reports whether err is a unique or primary key violation.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
