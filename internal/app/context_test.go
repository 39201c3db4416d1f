package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"traceline/internal/app"
	"traceline/internal/domain"
	"traceline/internal/engine"
)

func TestOpenCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	rt, err := app.Open(ctx, app.Options{Workspace: dir})
	require.NoError(t, err)
	defer rt.Close()

	_, err = os.Stat(filepath.Join(dir, ".traceline", "traceline.db"))
	require.NoError(t, err)
	require.NotNil(t, rt.Engine.Blobs)
	require.Equal(t, "GLOBAL", rt.Config.DefaultArea())
}

func TestOpenReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "traceline.yml"), []byte("ids:\n  default_area: CORE\n"), 0o644))
	rt, err := app.Open(context.Background(), app.Options{Workspace: dir})
	require.NoError(t, err)
	defer rt.Close()
	require.Equal(t, "CORE", rt.Config.DefaultArea())

	_, err = app.Open(context.Background(), app.Options{Workspace: dir, Driver: "oracle"})
	require.Error(t, err)
}

func TestResolveProject(t *testing.T) {
	ctx := context.Background()
	rt, err := app.Open(ctx, app.Options{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer rt.Close()

	_, err = app.ResolveProject(ctx, rt.Engine, "")
	require.Error(t, err)

	p, err := rt.Engine.CreateProject(ctx, engine.ProjectInput{ID: "p1", Name: "Demo"})
	require.NoError(t, err)

	for _, ref := range []string{"", "p1", "demo"} {
		got, err := app.ResolveProject(ctx, rt.Engine, ref)
		require.NoError(t, err, ref)
		require.Equal(t, p.ID, got.ID)
	}
	_, err = app.ResolveProject(ctx, rt.Engine, "other")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
