package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"traceline/internal/engine"
	"traceline/internal/repo"
)

func registerAuth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "issue-token",
		Method:      http.MethodPost,
		Path:        "/auth/token",
		Summary:     "Exchange username and password for a bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body TokenRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Username) == "" || input.Body.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "username and password are required", nil)
		}
		u, err := e.Auth.Authenticate(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, exp, err := e.Auth.IssueToken(u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{AccessToken: token, TokenType: "bearer", ExpiresAt: exp.Format(time.RFC3339)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			UserID:      p.UserID,
			ActorID:     p.ActorID,
			Roles:       nonNil(p.Roles),
			Permissions: nonNil(p.Permissions),
			Source:      p.Source,
		}}, nil
	})
}

// requireSelfOrAdmin lets a user manage its own keys.
func requireSelfOrAdmin(ctx context.Context, userID string) error {
	if p, ok := principalFromContext(ctx); ok && p.UserID != "" && p.UserID == userID {
		return nil
	}
	return requirePermission(ctx, permUserAdmin)
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permUserAdmin); err != nil {
			return nil, handleError(err)
		}
		u, err := e.Auth.CreateUser(ctx, input.Body.Username, input.Body.Password, input.Body.Roles)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      errorStatuses,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permUserAdmin); err != nil {
			return nil, handleError(err)
		}
		users, err := e.Repo.ListUsers(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]UserResponse, 0, len(users))
		for _, u := range users {
			out = append(out, userResponse(u))
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-user",
		Method:        http.MethodDelete,
		Path:          "/users/{id}",
		Summary:       "Delete user",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, permUserAdmin); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteUser(ctx, nil, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{id}/api-keys",
		Summary:       "Mint an API key; the raw key is only returned here",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body CreateAPIKeyRequest `json:"body" required:"false"`
	}) (*struct {
		Body CreatedAPIKeyResponse `json:"body"`
	}, error) {
		if err := requireSelfOrAdmin(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		raw, key, err := e.Auth.CreateAPIKey(ctx, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreatedAPIKeyResponse `json:"body"`
		}{Body: CreatedAPIKeyResponse{Key: raw, APIKey: apiKeyResponse(key)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/users/{id}/api-keys",
		Summary:     "List API keys of a user",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if err := requireSelfOrAdmin(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		keys, err := e.Repo.ListAPIKeys(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, apiKeyResponse(k))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, permUserAdmin); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events, newest first",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permRead); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, nil, limit+1, repo.EventFilter{
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: nonNil(items)}
		if len(items) > limit {
			resp.Items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerBackups(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-backup",
		Method:        http.MethodPost,
		Path:          "/backups",
		Summary:       "Snapshot every project to the blob store",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Backup `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permBackup); err != nil {
			return nil, handleError(err)
		}
		b, err := e.CreateBackup(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Backup `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-backups",
		Method:      http.MethodGet,
		Path:        "/backups",
		Summary:     "List backups, newest first",
		Errors:      errorStatuses,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []engine.Backup `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permBackup); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListBackups(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.Backup `json:"body"`
		}{Body: nonNil(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-backup",
		Method:      http.MethodPost,
		Path:        "/backups/{name}/restore",
		Summary:     "Import every project of a backup that is not already present",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body engine.RestoreResult `json:"body"`
	}, error) {
		if err := requirePermission(ctx, permBackup); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RestoreBackup(ctx, input.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		res.Restored = nonNil(res.Restored)
		res.Skipped = nonNil(res.Skipped)
		return &struct {
			Body engine.RestoreResult `json:"body"`
		}{Body: res}, nil
	})
}
