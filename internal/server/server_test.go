package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceline/internal/blob"
	"traceline/internal/config"
	"traceline/internal/db"
	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/migrate"
)

const (
	adminUser     = "admin"
	adminPassword = "admin-password"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.Admin.Username = adminUser
	cfg.Auth.Admin.Password = adminPassword

	conn, dialect, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err, "open db")
	require.NoError(t, migrate.Migrate(conn, dialect), "migrate")
	e := engine.New(conn, dialect, cfg)
	store, err := blob.NewLocal(workspace + "/files")
	require.NoError(t, err)
	e.Blobs = store
	created, err := e.Auth.EnsureAdmin(context.Background())
	require.NoError(t, err)
	require.True(t, created)

	handler, err := New(Config{Engine: e, BasePath: "/v1"})
	require.NoError(t, err, "build handler")
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err, "listen")
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	ts := &testServer{URL: "http://" + ln.Addr().String(), Engine: e, client: &http.Client{}}
	ts.token = ts.login(t, adminUser, adminPassword)
	return ts
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	res, data := doJSON(t, s.client, http.MethodPost, s.URL+"/v1/auth/token", map[string]any{
		"username": username,
		"password": password,
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(data, &tok))
	require.Equal(t, "bearer", tok.TokenType)
	require.NotEmpty(t, tok.AccessToken)
	return tok.AccessToken
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	return doJSON(t, s.client, method, s.URL+path, body, map[string]string{"Authorization": "Bearer " + s.token})
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err, "marshal body")
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err, "new request")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err, "do request")
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err, "read body")
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func requireError(t *testing.T, res *http.Response, data []byte, status int, code string) {
	t.Helper()
	require.Equal(t, status, res.StatusCode, string(data))
	env := decode[errorEnvelope](t, data)
	require.Equal(t, code, env.Error.Code, string(data))
}

func seedDemo(t *testing.T, s *testServer) {
	t.Helper()
	res, data := s.do(t, http.MethodPost, "/v1/projects", map[string]any{"id": "p1", "name": "DEMO"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	res, data = s.do(t, http.MethodPost, "/v1/areas", map[string]any{"code": "SYS", "name": "System", "project_id": "p1"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
}

func TestHealthAndAuthentication(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	requireError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"Authorization": "Bearer garbage"})
	requireError(t, res, data, http.StatusUnauthorized, "invalid_credentials")

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/auth/token", map[string]any{"username": adminUser, "password": "wrong-password"}, nil)
	requireError(t, res, data, http.StatusUnauthorized, "invalid_credentials")

	res, data = srv.do(t, http.MethodGet, "/v1/me", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[WhoAmIResponse](t, data)
	assert.Equal(t, adminUser, me.ActorID)
	assert.Equal(t, "jwt", me.Source)
	assert.Contains(t, me.Permissions, "*")
}

func TestDemoWalkthroughOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedDemo(t, srv)

	for _, want := range []string{"DEMO-SYS-NEED-001", "DEMO-SYS-NEED-002"} {
		res, data := srv.do(t, http.MethodPost, "/v1/needs", map[string]any{
			"project_id": "p1",
			"area":       "SYS",
			"fields":     map[string]string{"title": "need " + want},
		})
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
		require.Equal(t, want, decode[domain.Artifact](t, data).ID)
	}

	res, data := srv.do(t, http.MethodPost, "/v1/requirements", map[string]any{
		"project_id": "p1",
		"area":       "sys",
		"fields":     map[string]string{"short_name": "boot", "text": "The system shall boot"},
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	req := decode[domain.Artifact](t, data)
	require.Equal(t, "DEMO-SYS-REQ-001", req.ID)
	require.Equal(t, domain.StatusDraft, req.Status)

	transition := func(to string) (*http.Response, []byte) {
		return srv.do(t, http.MethodPost, "/v1/requirements/"+req.ID+"/transition", map[string]any{
			"to":        to,
			"rationale": "review",
		})
	}
	res, data = transition(domain.StatusReadyForReview)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	evt := decode[domain.Event](t, data)
	require.Equal(t, "StatusChanged", evt.Type)
	require.Equal(t, adminUser, evt.ActorID)

	res, data = transition(domain.StatusApproved)
	requireError(t, res, data, http.StatusUnprocessableEntity, "invalid_transition")

	for _, to := range []string{domain.StatusInReview, domain.StatusApproved} {
		res, data = transition(to)
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	}

	res, data = srv.do(t, http.MethodPost, "/v1/requirements/"+req.ID+"/rename", map[string]any{"new_id": "DEMO-SYS-REQ-099"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	renamed := decode[RenameResponse](t, data)
	require.Equal(t, "DEMO-SYS-REQ-099", renamed.NewID)
	require.EqualValues(t, 4, renamed.Counts.Events)

	res, data = srv.do(t, http.MethodGet, "/v1/requirements/DEMO-SYS-REQ-001", nil)
	requireError(t, res, data, http.StatusNotFound, "not_found")

	res, data = srv.do(t, http.MethodGet, "/v1/requirements/DEMO-SYS-REQ-099", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Equal(t, domain.StatusApproved, decode[domain.Artifact](t, data).Status)

	res, data = srv.do(t, http.MethodGet, "/v1/requirements/DEMO-SYS-REQ-099/history", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[[]domain.Event](t, data), 4)

	res, data = srv.do(t, http.MethodGet, "/v1/requirements?project_id=p1&status=approved", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[[]domain.Artifact](t, data), 1)

	res, data = srv.do(t, http.MethodGet, "/v1/projects/p1/stats", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	stats := decode[domain.Stats](t, data)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByType[domain.TypeNeed])
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	seedDemo(t, srv)

	res, data := srv.do(t, http.MethodPost, "/v1/visions", map[string]any{"project_id": "p1", "fields": map[string]string{}})
	requireError(t, res, data, http.StatusBadRequest, "bad_request")

	res, data = srv.do(t, http.MethodPost, "/v1/visions", map[string]any{"project_id": "missing", "fields": map[string]string{"title": "x"}})
	requireError(t, res, data, http.StatusNotFound, "not_found")

	res, data = srv.do(t, http.MethodPost, "/v1/projects", map[string]any{"name": "demo"})
	requireError(t, res, data, http.StatusConflict, "conflict")

	res, data = srv.do(t, http.MethodPost, "/v1/linkages", map[string]any{
		"source_type":       "need",
		"source_id":         "DEMO-SYS-NEED-404",
		"target_type":       "url",
		"target_id":         "https://example.com",
		"relationship_type": "documented_in",
		"project_id":        "p1",
	})
	requireError(t, res, data, http.StatusUnprocessableEntity, "invalid_reference")

	res, data = srv.do(t, http.MethodGet, "/v1/statuses/Bogus/transitions", nil)
	requireError(t, res, data, http.StatusBadRequest, "bad_request")

	res, data = srv.do(t, http.MethodPost, "/v1/visions", map[string]any{"project_id": "p1", "fields": map[string]string{"title": "North star"}})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	vision := decode[domain.Artifact](t, data)

	res, data = srv.do(t, http.MethodDelete, "/v1/projects/p1", nil)
	requireError(t, res, data, http.StatusConflict, "conflict")

	res, _ = srv.do(t, http.MethodDelete, "/v1/visions/"+vision.ID, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = srv.do(t, http.MethodDelete, "/v1/projects/p1", nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestComponentsAndDiagramsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedDemo(t, srv)

	create := func(kind string, body map[string]any) domain.CatalogItem {
		body["project_id"] = "p1"
		res, data := srv.do(t, http.MethodPost, "/v1/catalog/"+kind, body)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
		return decode[domain.CatalogItem](t, data)
	}
	rover := create("component", map[string]any{"name": "Rover", "type": "Hardware"})
	nav := create("component", map[string]any{"name": "Navigation"})
	require.Equal(t, "Software", nav.Type)

	res, data := srv.do(t, http.MethodPatch, "/v1/catalog/component/"+nav.ID, map[string]any{"description": "route planning", "type": "hardware"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	updated := decode[domain.CatalogItem](t, data)
	assert.Equal(t, "Hardware", updated.Type)
	assert.Equal(t, "route planning", updated.Description)

	res, data = srv.do(t, http.MethodPost, "/v1/components/"+rover.ID+"/link", map[string]any{"child_id": nav.ID, "cardinality": "1", "protocol": "CAN"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = srv.do(t, http.MethodPost, "/v1/components/"+nav.ID+"/link", map[string]any{"child_id": rover.ID})
	requireError(t, res, data, http.StatusConflict, "conflict")
	res, data = srv.do(t, http.MethodPost, "/v1/components/"+rover.ID+"/link", map[string]any{"child_id": "ghost"})
	requireError(t, res, data, http.StatusUnprocessableEntity, "invalid_reference")

	res, data = srv.do(t, http.MethodGet, "/v1/components/"+rover.ID+"/children", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	children := decode[[]domain.ComponentLink](t, data)
	require.Len(t, children, 1)
	assert.Equal(t, "Navigation", children[0].ChildName)
	assert.Equal(t, "composition", children[0].Type)

	res, data = srv.do(t, http.MethodGet, "/v1/components/"+nav.ID+"/parents", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[[]domain.ComponentLink](t, data), 1)

	diagram := create("diagram", map[string]any{"name": "Context"})
	res, data = srv.do(t, http.MethodPut, "/v1/diagrams/"+diagram.ID+"/components/"+rover.ID, map[string]any{"x": 10, "y": 20})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = srv.do(t, http.MethodPut, "/v1/diagrams/"+diagram.ID+"/components/"+nav.ID, map[string]any{"x": 200, "y": 20})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = srv.do(t, http.MethodPut, "/v1/diagrams/"+diagram.ID+"/edges", map[string]any{"source_id": rover.ID, "target_id": nav.ID, "source_handle": "right"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	layout := decode[domain.DiagramLayout](t, data)
	require.Len(t, layout.Components, 2)
	require.Len(t, layout.Edges, 1)

	res, data = srv.do(t, http.MethodDelete, "/v1/diagrams/"+diagram.ID+"/edges/"+rover.ID+"/"+nav.ID, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))
	res, data = srv.do(t, http.MethodDelete, "/v1/diagrams/"+diagram.ID+"/components/"+nav.ID, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))
	res, data = srv.do(t, http.MethodGet, "/v1/diagrams/"+diagram.ID+"/layout", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	layout = decode[domain.DiagramLayout](t, data)
	require.Len(t, layout.Components, 1)
	require.Empty(t, layout.Edges)

	res, data = srv.do(t, http.MethodDelete, "/v1/components/"+rover.ID+"/link/"+nav.ID, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))
	res, data = srv.do(t, http.MethodDelete, "/v1/components/"+rover.ID+"/link/"+nav.ID, nil)
	requireError(t, res, data, http.StatusNotFound, "not_found")

	res, data = srv.do(t, http.MethodPost, "/v1/people", map[string]any{"name": "Ada", "project_id": "p1"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	person := decode[domain.Person](t, data)
	res, data = srv.do(t, http.MethodPatch, "/v1/people/"+person.ID, map[string]any{"roles": []string{"reviewer"}})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, []string{"reviewer"}, decode[domain.Person](t, data).Roles)
}

func TestLinkagesAndComments(t *testing.T) {
	srv := newTestServer(t)
	seedDemo(t, srv)

	res, data := srv.do(t, http.MethodPost, "/v1/needs", map[string]any{"project_id": "p1", "area": "SYS", "fields": map[string]string{"title": "Operate"}})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	need := decode[domain.Artifact](t, data)

	res, data = srv.do(t, http.MethodPost, "/v1/linkages", map[string]any{
		"source_type":       "need",
		"source_id":         need.ID,
		"target_type":       "url",
		"target_id":         "https://example.com/icd",
		"relationship_type": "documented_in",
		"project_id":        "p1",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	link := decode[domain.Linkage](t, data)

	res, data = srv.do(t, http.MethodGet, "/v1/linkages/outgoing/"+need.ID, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[[]domain.Linkage](t, data), 1)

	res, data = srv.do(t, http.MethodGet, "/v1/linkages/source/"+need.ID+"/documented_in", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[[]domain.Linkage](t, data), 1)

	res, data = srv.do(t, http.MethodPatch, "/v1/linkages/"+link.ID, map[string]any{"relationship_type": "related_to"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Equal(t, "related_to", decode[domain.Linkage](t, data).RelationshipType)

	res, data = srv.do(t, http.MethodPost, "/v1/comments", map[string]any{"artifact_id": need.ID, "field_name": "title", "text": "too vague"})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	comment := decode[domain.Comment](t, data)
	require.Equal(t, adminUser, comment.Author)

	res, data = srv.do(t, http.MethodPost, "/v1/comments/"+comment.ID+"/resolve", map[string]any{"action": "accepted"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.True(t, decode[domain.Comment](t, data).Resolved)

	res, data = srv.do(t, http.MethodGet, "/v1/artifacts/"+need.ID+"/comments?resolved=false", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Empty(t, decode[[]domain.Comment](t, data))

	res, _ = srv.do(t, http.MethodDelete, "/v1/needs/"+need.ID, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = srv.do(t, http.MethodGet, "/v1/linkages/"+link.ID, nil)
	requireError(t, res, data, http.StatusNotFound, "not_found")
}

func TestRolePermissions(t *testing.T) {
	srv := newTestServer(t)
	seedDemo(t, srv)

	res, data := srv.do(t, http.MethodPost, "/v1/users", map[string]any{"username": "vera", "password": "viewer-pass", "roles": []string{"viewer"}})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	viewer := decode[UserResponse](t, data)

	token := srv.login(t, "vera", "viewer-pass")
	headers := map[string]string{"Authorization": "Bearer " + token}

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/needs?project_id=p1", nil, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/needs", map[string]any{"project_id": "p1", "fields": map[string]string{"title": "x"}}, headers)
	requireError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/users", nil, headers)
	requireError(t, res, data, http.StatusForbidden, "forbidden")

	// Users manage their own keys.
	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/users/"+viewer.ID+"/api-keys", map[string]any{"name": "ci"}, headers)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	key := decode[CreatedAPIKeyResponse](t, data)
	require.True(t, strings.HasPrefix(key.Key, "tl_"))

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	me := decode[WhoAmIResponse](t, data)
	assert.Equal(t, "vera", me.ActorID)
	assert.Equal(t, "api_key", me.Source)
	assert.Equal(t, []string{"artifact:read"}, me.Permissions)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": "tl_unknown"})
	requireError(t, res, data, http.StatusUnauthorized, "invalid_credentials")
}

func TestUploadAndDownload(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "design notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("hello traceline"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/documents/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+srv.token)
	res, err := srv.client.Do(req)
	require.NoError(t, err)
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	up := decode[UploadResponse](t, data)
	require.True(t, strings.HasPrefix(up.Key, "uploads/"))
	require.True(t, strings.HasSuffix(up.Key, "-design_notes.txt"))
	require.EqualValues(t, len("hello traceline"), up.Size)

	res, data = srv.do(t, http.MethodGet, up.URL, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Equal(t, "hello traceline", string(data))

	res, data = srv.do(t, http.MethodGet, "/v1/files/uploads/missing.txt", nil)
	requireError(t, res, data, http.StatusNotFound, "not_found")
}

func TestBackupsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedDemo(t, srv)

	res, data := srv.do(t, http.MethodPost, "/v1/backups", nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	b := decode[engine.Backup](t, data)
	require.True(t, strings.HasPrefix(b.Name, "traceline_"))

	res, data = srv.do(t, http.MethodGet, "/v1/backups", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.Len(t, decode[[]engine.Backup](t, data), 1)

	res, data = srv.do(t, http.MethodPost, "/v1/backups/"+b.Name+"/restore", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	restored := decode[engine.RestoreResult](t, data)
	assert.Empty(t, restored.Restored)
	assert.Equal(t, []string{"DEMO"}, restored.Skipped)
}

func TestOpenAPIAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var oas map[string]any
	require.NoError(t, json.Unmarshal(data, &oas))
	assert.Contains(t, string(data), "bearerAuth")
	assert.Contains(t, string(data), "/v1/requirements/{id}/transition")

	var wg sync.WaitGroup
	bodies := make([]string, 8)
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.client.Get(srv.URL + "/v1/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			b, _ := io.ReadAll(res.Body)
			bodies[i] = string(b)
		}(i)
	}
	wg.Wait()
	for _, b := range bodies {
		assert.Equal(t, string(data), b)
	}

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "traceline_http_requests_total")
}

func TestWebhookDispatch(t *testing.T) {
	srv := newTestServer(t)
	seedDemo(t, srv)

	var (
		mu       sync.Mutex
		received []webhookEvent
		headers  []http.Header
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		received = append(received, evt)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	d := newWebhookDispatcher(srv.Engine, []config.WebhookConfig{
		{URL: hook.URL, ProjectID: "p1", Events: []string{"StatusChanged"}, Secret: "s3cret"},
	}, nil)
	ctx := context.Background()
	d.dispatchAll(ctx)

	res, data := srv.do(t, http.MethodPost, "/v1/needs", map[string]any{"project_id": "p1", "area": "SYS", "fields": map[string]string{"title": "Hooked"}})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	need := decode[domain.Artifact](t, data)
	res, data = srv.do(t, http.MethodPost, "/v1/needs/"+need.ID+"/transition", map[string]any{"to": domain.StatusReadyForReview, "rationale": "ready"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "StatusChanged", received[0].Type)
	assert.Equal(t, need.ID, received[0].EntityID)
	assert.JSONEq(t, `{"from":"Draft","to":"Ready_for_Review","rationale":"ready"}`, string(received[0].Payload))
	assert.Equal(t, "s3cret", headers[0].Get("X-Traceline-Secret"))
	assert.Equal(t, "p1", headers[0].Get("X-Traceline-Project"))
}
