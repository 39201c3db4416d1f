package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"traceline/internal/engine/auth"
)

type AuthConfig struct {
	// Disabled lets every request through as the system actor with all
	// permissions. Only meant for local single-user setups.
	Disabled bool
	Logger   *log.Logger
}

type Principal struct {
	UserID      string
	ActorID     string
	Roles       []string
	Permissions []string
	Source      string
}

type principalKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p.ActorID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func authenticateJWT(svc auth.Service, token string) (Principal, error) {
	claims, err := svc.ParseToken(token)
	if err != nil {
		return Principal{}, err
	}
	perms := claims.Permissions
	if len(perms) == 0 {
		perms = svc.Permissions(claims.Roles)
	}
	actor := claims.Username
	if actor == "" {
		actor = claims.Subject
	}
	return Principal{
		UserID:      claims.Subject,
		ActorID:     actor,
		Roles:       claims.Roles,
		Permissions: perms,
		Source:      "jwt",
	}, nil
}

func authenticateAPIKey(ctx context.Context, svc auth.Service, key string) (Principal, error) {
	u, err := svc.UserForAPIKey(ctx, key)
	if err != nil {
		return Principal{}, err
	}
	return Principal{
		UserID:      u.ID,
		ActorID:     u.Username,
		Roles:       u.Roles,
		Permissions: svc.Permissions(u.Roles),
		Source:      "api_key",
	}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, svc auth.Service) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "auth/token"):   true,
		path.Join(basePath, "openapi.json"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Docs and /metrics live outside the base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			if cfg.Disabled {
				ctx := withPrincipal(req.Context(), Principal{ActorID: "system", Permissions: []string{"*"}, Source: "disabled"})
				next.ServeHTTP(w, req.WithContext(ctx))
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))

			var (
				principal Principal
				err       error
			)
			switch {
			case authz != "":
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal, err = authenticateJWT(svc, token)
			case apiKeyHeader != "":
				principal, err = authenticateAPIKey(req.Context(), svc, apiKeyHeader)
			default:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidCredentials) {
					cfg.logger().Printf("WARNING: authentication failed: %v", err)
				}
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
