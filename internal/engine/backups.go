package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"traceline/internal/blob"
	"traceline/internal/domain"
	"traceline/internal/repo"
)

const backupPrefix = "backups/"

// Snapshot is the content of a backup file: every project of the database.
type Snapshot struct {
	Version   string       `json:"version"`
	CreatedAt string       `json:"created_at"`
	Projects  []ExportData `json:"projects"`
}

type Backup struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type RestoreResult struct {
	Restored []string `json:"restored"`
	Skipped  []string `json:"skipped"`
}

func (e Engine) blobs() (blob.Store, error) {
	if e.Blobs == nil {
		return nil, &domain.StorageError{Op: "blob store", Err: errors.New("no blob store configured")}
	}
	return e.Blobs, nil
}

// CreateBackup snapshots all projects into backups/traceline_YYYYMMDD_HHMMSS.json.
func (e Engine) CreateBackup(ctx context.Context) (Backup, error) {
	store, err := e.blobs()
	if err != nil {
		return Backup{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return Backup{}, err
	}
	defer tx.Rollback()
	projects, err := e.Repo.ListProjects(ctx, tx)
	if err != nil {
		return Backup{}, classify("list projects", err)
	}
	snap := Snapshot{Version: ExportVersion, CreatedAt: e.stamp(), Projects: []ExportData{}}
	for _, p := range projects {
		data, err := e.exportProject(ctx, tx, p.ID)
		if err != nil {
			return Backup{}, err
		}
		snap.Projects = append(snap.Projects, data)
	}
	if err := e.commit(tx); err != nil {
		return Backup{}, err
	}

	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Backup{}, fmt.Errorf("encode backup: %w", err)
	}
	name := fmt.Sprintf("traceline_%s.json", exportTimestamp(e.now()))
	if err := store.Put(ctx, backupPrefix+name, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return Backup{}, &domain.StorageError{Op: "write backup", Err: err}
	}
	e.logger().Printf("backup %s written (%d projects)", name, len(snap.Projects))
	return Backup{Name: name, Size: int64(len(body)), CreatedAt: snap.CreatedAt}, nil
}

// ListBackups returns the stored backups, newest first.
func (e Engine) ListBackups(ctx context.Context) ([]Backup, error) {
	store, err := e.blobs()
	if err != nil {
		return nil, err
	}
	objs, err := store.List(ctx, backupPrefix)
	if err != nil {
		return nil, &domain.StorageError{Op: "list backups", Err: err}
	}
	out := make([]Backup, 0, len(objs))
	for _, o := range objs {
		name := path.Base(o.Key)
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, Backup{Name: name, Size: o.Size, CreatedAt: o.ModTime.UTC().Format(time.RFC3339)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// RestoreBackup imports every project of a backup that is not present yet.
func (e Engine) RestoreBackup(ctx context.Context, name, actorID string) (RestoreResult, error) {
	store, err := e.blobs()
	if err != nil {
		return RestoreResult{}, err
	}
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" {
		return RestoreResult{}, domain.Validation("name", "required")
	}
	rc, _, err := store.Get(ctx, backupPrefix+name)
	if errors.Is(err, blob.ErrNotFound) {
		return RestoreResult{}, domain.NotFound("backup", name)
	}
	if err != nil {
		return RestoreResult{}, &domain.StorageError{Op: "read backup", Err: err}
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return RestoreResult{}, &domain.StorageError{Op: "read backup", Err: err}
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return RestoreResult{}, domain.Validation("backup", fmt.Sprintf("invalid backup document: %v", err))
	}

	res := RestoreResult{Restored: []string{}, Skipped: []string{}}
	for _, data := range snap.Projects {
		if present, err := e.projectPresent(ctx, data.Project); err != nil {
			return res, err
		} else if present {
			res.Skipped = append(res.Skipped, data.Project.Name)
			continue
		}
		if _, err := e.ImportProject(ctx, data, actorID); err != nil {
			return res, err
		}
		res.Restored = append(res.Restored, data.Project.Name)
	}
	return res, nil
}

func (e Engine) projectPresent(ctx context.Context, p domain.Project) (bool, error) {
	if _, err := e.Repo.GetProject(ctx, nil, p.ID); err == nil {
		return true, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return false, classify("get project", err)
	}
	if _, err := e.Repo.GetProjectByName(ctx, nil, p.Name); err == nil {
		return true, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return false, classify("get project", err)
	}
	return false, nil
}
