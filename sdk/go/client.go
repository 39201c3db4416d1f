package tracelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Traceline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client for the API served at baseURL under /v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Artifact is a vision, need, use case, requirement or document.
type Artifact struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	ProjectID string              `json:"project_id"`
	Area      string              `json:"area,omitempty"`
	Status    string              `json:"status"`
	Fields    map[string]string   `json:"fields"`
	ParentID  string              `json:"parent_id,omitempty"`
	Relations map[string][]string `json:"relations,omitempty"`
	CreatedAt string              `json:"created_at"`
	UpdatedAt string              `json:"updated_at"`
}

// Linkage is a typed edge between two endpoints.
type Linkage struct {
	ID               string `json:"id"`
	SourceType       string `json:"source_type"`
	SourceID         string `json:"source_id"`
	TargetType       string `json:"target_type"`
	TargetID         string `json:"target_id"`
	RelationshipType string `json:"relationship_type"`
	ProjectID        string `json:"project_id"`
	CreatedAt        string `json:"created_at"`
}

// Event represents a log entry. Payload holds the raw JSON document.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	ActorID    string `json:"actor_id"`
	Comment    string `json:"comment"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	body := map[string]any{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/token", body, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.AccessToken
	return nil
}

// CreateArtifact creates an artifact of the given type; the server assigns
// the id.
func (c *Client) CreateArtifact(ctx context.Context, artifactType, projectID, area string, fields map[string]string) (Artifact, error) {
	body := map[string]any{
		"project_id": projectID,
		"fields":     fields,
	}
	if area != "" {
		body["area"] = area
	}
	var resp Artifact
	err := c.do(ctx, http.MethodPost, collection(artifactType), body, &resp)
	return resp, err
}

// GetArtifact fetches one artifact.
func (c *Client) GetArtifact(ctx context.Context, artifactType, id string) (Artifact, error) {
	var resp Artifact
	err := c.do(ctx, http.MethodGet, artifactPath(artifactType, id), nil, &resp)
	return resp, err
}

// ListArtifacts lists artifacts of a project, optionally filtered by status.
func (c *Client) ListArtifacts(ctx context.Context, artifactType, projectID string, statuses ...string) ([]Artifact, error) {
	q := url.Values{}
	q.Set("project_id", projectID)
	if len(statuses) > 0 {
		q.Set("status", strings.Join(statuses, ","))
	}
	var resp []Artifact
	err := c.do(ctx, http.MethodGet, collection(artifactType)+"?"+q.Encode(), nil, &resp)
	return resp, err
}

// Transition moves an artifact to a new status and returns the recorded event.
func (c *Client) Transition(ctx context.Context, artifactType, id, to, rationale string) (Event, error) {
	body := map[string]any{"to": to, "rationale": rationale}
	var resp Event
	err := c.do(ctx, http.MethodPost, artifactPath(artifactType, id)+"/transition", body, &resp)
	return resp, err
}

// History returns the events of an artifact, newest first.
func (c *Client) History(ctx context.Context, artifactType, id string) ([]Event, error) {
	var resp []Event
	err := c.do(ctx, http.MethodGet, artifactPath(artifactType, id)+"/history", nil, &resp)
	return resp, err
}

// Rename changes an artifact id everywhere it is referenced.
func (c *Client) Rename(ctx context.Context, artifactType, id, newID string) error {
	return c.do(ctx, http.MethodPost, artifactPath(artifactType, id)+"/rename", map[string]any{"new_id": newID}, nil)
}

// CreateLinkage links two endpoints within a project.
func (c *Client) CreateLinkage(ctx context.Context, l Linkage) (Linkage, error) {
	body := map[string]any{
		"source_type":       l.SourceType,
		"source_id":         l.SourceID,
		"target_type":       l.TargetType,
		"target_id":         l.TargetID,
		"relationship_type": l.RelationshipType,
		"project_id":        l.ProjectID,
	}
	var resp Linkage
	err := c.do(ctx, http.MethodPost, "linkages", body, &resp)
	return resp, err
}

// Events returns recent events of a project, newest first.
func (c *Client) Events(ctx context.Context, projectID string, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, projectID, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, projectID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var collections = map[string]string{
	"vision":      "visions",
	"need":        "needs",
	"use_case":    "use-cases",
	"requirement": "requirements",
	"document":    "documents",
}

func collection(artifactType string) string {
	if c, ok := collections[artifactType]; ok {
		return c
	}
	return artifactType
}

func artifactPath(artifactType, id string) string {
	return collection(artifactType) + "/" + url.PathEscape(id)
}

func (c *Client) base() string {
	root := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		return root + "/" + p
	}
	return root
}
