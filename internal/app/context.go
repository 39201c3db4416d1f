// Package app wires a workspace into a ready engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"traceline/internal/blob"
	"traceline/internal/config"
	"traceline/internal/db"
	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/migrate"
)

// Options selects the workspace and overrides parts of its config. Empty
// fields keep the config file value.
type Options struct {
	Workspace  string
	ConfigPath string
	Driver     string
	DSN        string
	Logger     *log.Logger
}

// Runtime is an opened workspace.
type Runtime struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Dialect   db.Dialect
	Engine    engine.Engine
}

// Open loads .env and traceline.yml, opens and migrates the database and
// attaches the blob store.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	ws := opts.Workspace
	if ws == "" {
		ws = "."
	}
	if err := config.LoadEnvFile(ws); err != nil {
		return nil, err
	}
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.FromFile(opts.ConfigPath)
	} else {
		cfg, err = config.Load(ws)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Driver != "" {
		cfg.Database.Driver = opts.Driver
	}
	if opts.DSN != "" {
		cfg.Database.DSN = opts.DSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if strings.EqualFold(cfg.Database.Driver, db.DriverSQLite) || cfg.Database.Driver == "" {
		if _, err := db.EnsureWorkspace(ws); err != nil {
			return nil, fmt.Errorf("create workspace: %w", err)
		}
	}
	conn, dialect, err := db.Open(db.Config{Workspace: ws, Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn, dialect); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store, err := blob.Open(ctx, cfg.Storage, ws)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	eng := engine.New(conn, dialect, cfg)
	eng.Blobs = store
	eng.Logger = opts.Logger
	return &Runtime{Workspace: ws, Config: cfg, DB: conn, Dialect: dialect, Engine: eng}, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// ResolveProject finds a project by id or name. An empty ref picks the only
// project of the database.
func ResolveProject(ctx context.Context, eng engine.Engine, ref string) (domain.Project, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		list, err := eng.ListProjects(ctx)
		if err != nil {
			return domain.Project{}, err
		}
		if len(list) == 1 {
			return list[0], nil
		}
		return domain.Project{}, fmt.Errorf("project not specified; use --project")
	}
	p, err := eng.GetProject(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Project{}, err
	}
	p, err = eng.Repo.GetProjectByName(ctx, nil, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Project{}, domain.NotFound("project", ref)
		}
		return domain.Project{}, err
	}
	return p, nil
}
