package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"traceline/internal/config"
	"traceline/internal/domain"
	"traceline/internal/repo"
)

const bcryptCost = 12

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// ErrInvalidCredentials covers unknown users, wrong passwords and bad tokens
// alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims are the JWT claims issued by IssueToken.
type Claims struct {
	jwt.RegisteredClaims
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Service issues and checks credentials. Roles map to permissions through
// the rbac section of the config.
type Service struct {
	Repo   repo.Repo
	Config *config.Config
	Now    func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HasPermission reports whether perms grants perm. "*" grants everything.
func HasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == "*" || p == perm {
			return true
		}
	}
	return false
}

// Permissions expands roles through the configured role map.
func (s Service) Permissions(roles []string) []string {
	if s.Config == nil {
		return nil
	}
	return s.Config.Permissions(roles)
}

func (s Service) CreateUser(ctx context.Context, username, password string, roles []string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, domain.Validation("username", "required")
	}
	if len(password) < 8 {
		return domain.User{}, domain.Validation("password", "must be at least 8 characters")
	}
	if s.Config != nil {
		for _, r := range roles {
			if _, ok := s.Config.RBAC.Roles[r]; !ok {
				return domain.User{}, domain.Validation("roles", fmt.Sprintf("unknown role %q", r))
			}
		}
	}
	if _, err := s.Repo.GetUserByUsername(ctx, nil, username); err == nil {
		return domain.User{}, &domain.ConflictError{Kind: "user", ID: username}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.InsertUser(ctx, nil, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// EnsureAdmin creates the configured admin user when it does not exist yet.
// It returns false when nothing was created.
func (s Service) EnsureAdmin(ctx context.Context) (bool, error) {
	if s.Config == nil {
		return false, nil
	}
	name := strings.TrimSpace(s.Config.Auth.Admin.Username)
	pw := s.Config.Auth.Admin.Password
	if name == "" || pw == "" {
		return false, nil
	}
	if _, err := s.Repo.GetUserByUsername(ctx, nil, name); err == nil {
		return false, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return false, err
	}
	if _, err := s.CreateUser(ctx, name, pw, []string{"admin"}); err != nil {
		return false, err
	}
	return true, nil
}

func (s Service) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := s.Repo.GetUserByUsername(ctx, nil, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s Service) secret() ([]byte, error) {
	if s.Config == nil || strings.TrimSpace(s.Config.Auth.JWTSecret) == "" {
		return nil, errors.New("jwt secret not configured")
	}
	return []byte(s.Config.Auth.JWTSecret), nil
}

// IssueToken signs an HS256 token for the user carrying its roles and the
// permissions they expand to.
func (s Service) IssueToken(u domain.User) (string, time.Time, error) {
	secret, err := s.secret()
	if err != nil {
		return "", time.Time{}, err
	}
	ttl := 12 * time.Hour
	if s.Config != nil {
		ttl = s.Config.TokenTTLDuration()
	}
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "traceline",
		},
		Username:    u.Username,
		Roles:       u.Roles,
		Permissions: s.Permissions(u.Roles),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, exp, nil
}

// ParseToken verifies signature, algorithm and expiry.
func (s Service) ParseToken(token string) (*Claims, error) {
	secret, err := s.secret()
	if err != nil {
		return nil, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

// CreateAPIKey mints a random key for the user. The raw key is returned once;
// only its hash is stored.
func (s Service) CreateAPIKey(ctx context.Context, userID, name string) (string, domain.APIKey, error) {
	if _, err := s.Repo.GetUser(ctx, nil, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", domain.APIKey{}, domain.NotFound("user", userID)
		}
		return "", domain.APIKey{}, err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	raw := "tl_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

// UserForAPIKey resolves a raw key to its owner.
func (s Service) UserForAPIKey(ctx context.Context, raw string) (domain.User, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	key, err := s.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	u, err := s.Repo.GetUser(ctx, nil, key.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, err
}
