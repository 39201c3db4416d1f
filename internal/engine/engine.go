package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"traceline/internal/blob"
	"traceline/internal/config"
	"traceline/internal/db"
	"traceline/internal/domain"
	"traceline/internal/engine/auth"
	"traceline/internal/events"
	"traceline/internal/repo"
)

// Engine runs every domain operation. Each mutation is one transaction.
type Engine struct {
	DB      *sql.DB
	Dialect db.Dialect
	Repo    repo.Repo
	Events  events.Writer
	Auth    auth.Service
	Blobs   blob.Store
	Config  *config.Config
	Now     func() time.Time
	Logger  *log.Logger
}

func New(conn *sql.DB, dialect db.Dialect, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: conn, Dialect: dialect}
	return Engine{
		DB:      conn,
		Dialect: dialect,
		Repo:    r,
		Events:  events.Writer{DB: conn, Dialect: dialect},
		Auth:    auth.Service{Repo: r, Config: cfg},
		Config:  cfg,
		Now:     time.Now,
	}
}

// WithClock returns a copy of e whose writers all use now.
func (e Engine) WithClock(now func() time.Time) Engine {
	e.Now = now
	e.Events.Now = now
	e.Auth.Now = now
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.StorageError{Op: "begin transaction", Err: err}
	}
	return tx, nil
}

func (e Engine) commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

var classified = []error{
	domain.ErrNotFound, domain.ErrConflict, domain.ErrInvalidReference,
	domain.ErrInvalidTransition, domain.ErrValidation, domain.ErrStorage,
}

// classify passes domain errors through, turns unique violations into
// conflicts and wraps everything else as a storage failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range classified {
		if errors.Is(err, target) {
			return err
		}
	}
	if db.IsUniqueViolation(err) {
		return &domain.ConflictError{Kind: op, Reason: "already exists"}
	}
	return &domain.StorageError{Op: op, Err: err}
}

// notFound renames a bare repo.ErrNotFound into a typed error.
func notFound(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		return domain.NotFound(kind, id)
	}
	return err
}

func (e Engine) requireProject(ctx context.Context, tx *sql.Tx, projectID string) (domain.Project, error) {
	if projectID == "" {
		return domain.Project{}, domain.Validation("project_id", "required")
	}
	p, err := e.Repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, classify("get project", notFound(err, "project", projectID))
	}
	return p, nil
}

func kindOf(artifactType string) (domain.Kind, error) {
	k, ok := domain.LookupKind(artifactType)
	if !ok {
		return domain.Kind{}, domain.Validation("type", fmt.Sprintf("unknown artifact type %q", artifactType))
	}
	return k, nil
}
