package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceline/internal/config"
	"traceline/internal/db"
	"traceline/internal/domain"
	"traceline/internal/migrate"
	"traceline/internal/repo"
)

func newService(t *testing.T) Service {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect))
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.Admin.Username = "admin"
	cfg.Auth.Admin.Password = "admin-password"
	return Service{Repo: repo.Repo{DB: conn, Dialect: dialect}, Config: cfg}
}

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission([]string{"*"}, "db:backup"))
	assert.True(t, HasPermission([]string{"artifact:read"}, "artifact:read"))
	assert.False(t, HasPermission([]string{"artifact:read"}, "artifact:write"))
	assert.False(t, HasPermission(nil, "artifact:read"))
}

func TestEnsureAdminAndLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	created, err := s.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.Authenticate(ctx, "admin", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "nobody", "admin-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	u, err := s.Authenticate(ctx, "ADMIN", "admin-password")
	require.NoError(t, err)
	token, exp, err := s.IssueToken(u)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := s.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Equal(t, []string{"admin"}, claims.Roles)
	assert.Equal(t, []string{"*"}, claims.Permissions)
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "rita", "reviewer-pass", []string{"reviewer"})
	require.NoError(t, err)

	s.Now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	old, _, err := s.IssueToken(u)
	require.NoError(t, err)
	s.Now = nil
	_, err = s.ParseToken(old)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	other := s
	otherCfg := *s.Config
	otherCfg.Auth.JWTSecret = "another-secret"
	other.Config = &otherCfg
	foreign, _, err := other.IssueToken(u)
	require.NoError(t, err)
	_, err = s.ParseToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateUserValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.CreateUser(ctx, "", "long-enough", nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = s.CreateUser(ctx, "bob", "short", nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = s.CreateUser(ctx, "bob", "long-enough", []string{"wizard"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = s.CreateUser(ctx, "bob", "long-enough", []string{"editor"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, "Bob", "long-enough", nil)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestAPIKeyResolvesUser(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "ci", "ci-password", []string{"viewer"})
	require.NoError(t, err)
	raw, key, err := s.CreateAPIKey(ctx, u.ID, "pipeline")
	require.NoError(t, err)
	assert.NotEqual(t, raw, key.KeyHash)

	got, err := s.UserForAPIKey(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.UserForAPIKey(ctx, "tl_bogus")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = s.CreateAPIKey(ctx, "missing", "x")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
