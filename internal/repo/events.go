package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"traceline/internal/domain"
)

const eventColumns = `id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,COALESCE(comment,''),payload_json`

type EventFilter struct {
	ProjectID  string
	Type       string
	EntityKind string
	EntityID   string
	// Before returns only events with a smaller id.
	Before int64
}

func (c conn) events(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Comment, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns matching events newest first.
func (r Repo) LatestEvents(ctx context.Context, tx *sql.Tx, limit int, f EventFilter) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT %s FROM events %s ORDER BY id DESC`, eventColumns, where)
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.on(tx).events(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT %s FROM events %s ORDER BY id ASC LIMIT ?`, eventColumns, where)
	args = append(args, limit)
	return r.on(nil).events(ctx, query, args...)
}

// LatestEventID returns the most recent event ID, optionally for one project.
func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	var id int64
	if err := r.on(nil).queryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) GetEvent(ctx context.Context, tx *sql.Tx, id int64) (domain.Event, error) {
	evts, err := r.on(tx).events(ctx, `SELECT `+eventColumns+` FROM events WHERE id=?`, id)
	if err != nil {
		return domain.Event{}, err
	}
	if len(evts) == 0 {
		return domain.Event{}, ErrNotFound
	}
	return evts[0], nil
}

// ProjectEvents returns every event of the project in append order.
func (r Repo) ProjectEvents(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Event, error) {
	return r.on(tx).events(ctx, `SELECT `+eventColumns+` FROM events WHERE project_id=? ORDER BY id`, projectID)
}

// ImportEvent appends a historical event keeping its timestamp. A new id is
// assigned.
func (r Repo) ImportEvent(ctx context.Context, tx *sql.Tx, e domain.Event) error {
	payload := e.Payload
	if payload == "" {
		payload = "{}"
	}
	_, err := r.on(tx).exec(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,comment,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		e.TS, e.Type, nullable(e.ProjectID), e.EntityKind, nullable(e.EntityID), e.ActorID, nullable(e.Comment), payload)
	return err
}
