package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"traceline/internal/blob"
	"traceline/internal/config"
	"traceline/internal/db"
	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, dialect, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err, "open db")
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect), "migrate")

	eng := engine.New(conn, dialect, config.Default()).
		WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })
	store, err := blob.NewLocal(dir + "/files")
	require.NoError(t, err)
	eng.Blobs = store

	ctx := context.Background()
	_, err = eng.CreateProject(ctx, engine.ProjectInput{ID: "p1", Name: "DEMO"})
	require.NoError(t, err, "create project")
	_, err = eng.CreateArea(ctx, domain.Area{Code: "SYS", Name: "System", ProjectID: "p1"})
	require.NoError(t, err, "create area")
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) need(t *testing.T, title string) domain.Artifact {
	t.Helper()
	a, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type:      domain.TypeNeed,
		ProjectID: "p1",
		Area:      "SYS",
		Fields:    map[string]string{"title": title},
		ActorID:   "tester",
	})
	require.NoError(t, err, "create need")
	return a
}

func (env testEnv) requirement(t *testing.T, name string) domain.Artifact {
	t.Helper()
	a, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type:      domain.TypeRequirement,
		ProjectID: "p1",
		Area:      "SYS",
		Fields:    map[string]string{"short_name": name, "text": "The system shall " + name},
		ActorID:   "tester",
	})
	require.NoError(t, err, "create requirement")
	return a
}

func (env testEnv) transition(t *testing.T, id, to string) (domain.Event, error) {
	t.Helper()
	return env.Engine.Transition(env.Ctx, engine.TransitionInput{
		Type:      domain.TypeRequirement,
		ID:        id,
		To:        to,
		Rationale: "review",
		ActorID:   "tester",
	})
}

func TestDemoWalkthrough(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, "DEMO-SYS-NEED-001", env.need(t, "first").ID)
	require.Equal(t, "DEMO-SYS-NEED-002", env.need(t, "second").ID)

	req := env.requirement(t, "boot")
	require.Equal(t, "DEMO-SYS-REQ-001", req.ID)
	require.Equal(t, domain.StatusDraft, req.Status)

	evt, err := env.transition(t, req.ID, domain.StatusReadyForReview)
	require.NoError(t, err)
	require.Equal(t, "StatusChanged", evt.Type)
	require.JSONEq(t, `{"from":"Draft","to":"Ready_for_Review","rationale":"review"}`, evt.Payload)

	_, err = env.transition(t, req.ID, domain.StatusApproved)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = env.transition(t, req.ID, domain.StatusInReview)
	require.NoError(t, err)
	_, err = env.transition(t, req.ID, domain.StatusApproved)
	require.NoError(t, err)

	hist, err := env.Engine.History(env.Ctx, domain.TypeRequirement, req.ID)
	require.NoError(t, err)
	changes := 0
	for _, e := range hist {
		if e.Type == "StatusChanged" {
			changes++
		}
	}
	require.Equal(t, 3, changes)

	_, err = env.Engine.RenameArtifact(env.Ctx, domain.TypeRequirement, "DEMO-SYS-REQ-001", "DEMO-SYS-REQ-099", "tester")
	require.NoError(t, err)

	_, err = env.Engine.GetArtifact(env.Ctx, domain.TypeRequirement, "DEMO-SYS-REQ-001")
	require.ErrorIs(t, err, domain.ErrNotFound)
	renamed, err := env.Engine.GetArtifact(env.Ctx, domain.TypeRequirement, "DEMO-SYS-REQ-099")
	require.NoError(t, err)
	require.Equal(t, domain.StatusApproved, renamed.Status)

	hist, err = env.Engine.History(env.Ctx, domain.TypeRequirement, "DEMO-SYS-REQ-099")
	require.NoError(t, err)
	require.Len(t, hist, 4)
}

func TestCreateArtifactValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		in   engine.CreateArtifactInput
		want error
	}{
		{"unknown type", engine.CreateArtifactInput{Type: "epic", ProjectID: "p1"}, domain.ErrValidation},
		{"missing project", engine.CreateArtifactInput{Type: domain.TypeVision, ProjectID: "nope", Fields: map[string]string{"title": "x"}}, domain.ErrNotFound},
		{"missing title", engine.CreateArtifactInput{Type: domain.TypeVision, ProjectID: "p1"}, domain.ErrValidation},
		{"bad enum", engine.CreateArtifactInput{Type: domain.TypeNeed, ProjectID: "p1", Fields: map[string]string{"title": "x", "level": "Cosmic"}}, domain.ErrValidation},
		{"bad json", engine.CreateArtifactInput{Type: domain.TypeUseCase, ProjectID: "p1", Fields: map[string]string{"title": "x", "mss": "{"}}, domain.ErrValidation},
		{"unknown field", engine.CreateArtifactInput{Type: domain.TypeVision, ProjectID: "p1", Fields: map[string]string{"title": "x", "color": "red"}}, domain.ErrValidation},
		{"missing parent", engine.CreateArtifactInput{Type: domain.TypeNeed, ProjectID: "p1", Fields: map[string]string{"title": "x"}, ParentID: "DEMO-SYS-VISION-404"}, domain.ErrInvalidReference},
		{"missing site", engine.CreateArtifactInput{Type: domain.TypeNeed, ProjectID: "p1", Fields: map[string]string{"title": "x"}, Relations: map[string][]string{"site_ids": {"nowhere"}}}, domain.ErrInvalidReference},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.CreateArtifact(env.Ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateArtifactAreas(t *testing.T) {
	env := newTestEnv(t)

	byName, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type: domain.TypeNeed, ProjectID: "p1", Area: "system", Fields: map[string]string{"title": "by name", "level": "technical"},
	})
	require.NoError(t, err)
	require.Equal(t, "SYS", byName.Area)
	require.Equal(t, "Technical", byName.Fields["level"])

	global, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type: domain.TypeVision, ProjectID: "p1", Fields: map[string]string{"title": "v"},
	})
	require.NoError(t, err)
	require.Equal(t, "DEMO-GLOBAL-VISION-001", global.ID)

	raw, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type: domain.TypeVision, ProjectID: "p1", Area: "OPS", Fields: map[string]string{"title": "v"},
	})
	require.NoError(t, err)
	require.Equal(t, "DEMO-OPS-VISION-001", raw.ID)

	uc, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type: domain.TypeUseCase, ProjectID: "p1", ParentID: byName.ID, Fields: map[string]string{"title": "inherit"},
	})
	require.NoError(t, err)
	require.Equal(t, "SYS", uc.Area)
	require.Equal(t, byName.ID, uc.ParentID)
}

func TestCreateWithParentAndRelations(t *testing.T) {
	env := newTestEnv(t)
	vision, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type: domain.TypeVision, ProjectID: "p1", Area: "SYS", Fields: map[string]string{"title": "v"},
	})
	require.NoError(t, err)
	site, err := env.Engine.CreateCatalogItem(env.Ctx, domain.CatalogItem{Kind: domain.CatalogSite, ProjectID: "p1", Name: "Plant"})
	require.NoError(t, err)

	n, err := env.Engine.CreateArtifact(env.Ctx, engine.CreateArtifactInput{
		Type:      domain.TypeNeed,
		ProjectID: "p1",
		Area:      "SYS",
		Fields:    map[string]string{"title": "n"},
		ParentID:  vision.ID,
		Relations: map[string][]string{"site_ids": {site.ID, site.ID}},
	})
	require.NoError(t, err)
	require.Equal(t, vision.ID, n.ParentID)
	require.Equal(t, []string{site.ID}, n.Relations["site_ids"])
	require.Empty(t, n.Relations["component_ids"])

	links, err := env.Engine.ListLinkagesBySource(env.Ctx, domain.TypeNeed, n.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, domain.RelDerivesFrom, links[0].RelationshipType)
	require.Equal(t, vision.ID, links[0].TargetID)
}
