package tracelinesdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"traceline/internal/config"
	"traceline/internal/db"
	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/migrate"
	"traceline/internal/server"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "sdk-secret"
	cfg.Auth.Admin.Password = "sdk-password"

	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect))
	e := engine.New(conn, dialect, cfg)
	_, err = e.Auth.EnsureAdmin(ctx)
	require.NoError(t, err)
	_, err = e.CreateProject(ctx, engine.ProjectInput{ID: "p1", Name: "DEMO"})
	require.NoError(t, err)
	_, err = e.CreateArea(ctx, domain.Area{Code: "SYS", Name: "System", ProjectID: "p1"})
	require.NoError(t, err)

	handler, err := server.New(server.Config{Engine: e, BasePath: "/v1"})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	require.NoError(t, c.Login(ctx, "admin", "sdk-password"))
	return c
}

func TestClientArtifactLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	req, err := c.CreateArtifact(ctx, "requirement", "p1", "SYS", map[string]string{"short_name": "boot", "text": "The system shall boot"})
	require.NoError(t, err)
	require.Equal(t, "DEMO-SYS-REQ-001", req.ID)

	evt, err := c.Transition(ctx, "requirement", req.ID, "Ready_for_Review", "ready")
	require.NoError(t, err)
	require.Equal(t, "StatusChanged", evt.Type)
	require.JSONEq(t, `{"from":"Draft","to":"Ready_for_Review","rationale":"ready"}`, evt.Payload)

	_, err = c.Transition(ctx, "requirement", req.ID, "Approved", "skip")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Equal(t, "invalid_transition", apiErr.Code)

	require.NoError(t, c.Rename(ctx, "requirement", req.ID, "DEMO-SYS-REQ-010"))
	got, err := c.GetArtifact(ctx, "requirement", "DEMO-SYS-REQ-010")
	require.NoError(t, err)
	require.Equal(t, "Ready_for_Review", got.Status)

	history, err := c.History(ctx, "requirement", "DEMO-SYS-REQ-010")
	require.NoError(t, err)
	require.Len(t, history, 2)

	listed, err := c.ListArtifacts(ctx, "requirement", "p1", "ready_for_review")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	l, err := c.CreateLinkage(ctx, Linkage{
		SourceType:       "requirement",
		SourceID:         "DEMO-SYS-REQ-010",
		TargetType:       "url",
		TargetID:         "https://example.com/icd",
		RelationshipType: "documented_in",
		ProjectID:        "p1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, l.ID)
}

func TestClientEventsPaging(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	for i := 0; i < 3; i++ {
		_, err := c.CreateArtifact(ctx, "need", "p1", "SYS", map[string]string{"title": "need"})
		require.NoError(t, err)
	}

	page, err := c.EventsPage(ctx, "p1", 2, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := c.EventsPage(ctx, "p1", 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	require.Empty(t, rest.NextCursor)
	require.Less(t, rest.Items[0].ID, page.Items[1].ID)
}

func TestClientRejectsBadCredentials(t *testing.T) {
	c := newTestClient(t)
	err := c.Login(context.Background(), "admin", "nope")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "invalid_credentials", apiErr.Code)
}
