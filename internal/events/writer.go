package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"traceline/internal/db"
)

// Event types.
const (
	ArtifactCreated = "ArtifactCreated"
	ArtifactUpdated = "ArtifactUpdated"
	StatusChanged   = "StatusChanged"
	ArtifactDeleted = "ArtifactDeleted"
	ProjectImported = "ProjectImported"
)

type Writer struct {
	DB      *sql.DB
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

// Record is one audit entry to append.
type Record struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Comment    string
	Payload    EventPayload
}

// Append writes the record inside tx and returns its id. Events are never
// updated except by the rename cascade.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) (int64, error) {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	payload := rec.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	actor := rec.ActorID
	if actor == "" {
		actor = "system"
	}
	var id int64
	err = tx.QueryRowContext(ctx, w.Dialect.Rebind(`INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,comment,payload_json) VALUES (?,?,?,?,?,?,?,?) RETURNING id`),
		ts, rec.Type, nullable(rec.ProjectID), rec.EntityKind, nullable(rec.EntityID), actor, nullable(rec.Comment), string(data)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append %s event: %w", rec.Type, err)
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
