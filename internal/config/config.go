package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config models traceline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		TokenTTL  string `yaml:"token_ttl"`
		Admin     struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"admin"`
	} `yaml:"auth"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Storage  StorageConfig   `yaml:"storage"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	IDs      struct {
		DefaultArea string `yaml:"default_area"`
	} `yaml:"ids"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
	Local   struct {
		Root string `yaml:"root"`
	} `yaml:"local"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"minio"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	ProjectID      string   `yaml:"project_id"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("config.database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres")
	}
	if c.Auth.TokenTTL != "" {
		if _, err := time.ParseDuration(c.Auth.TokenTTL); err != nil {
			return fmt.Errorf("config.auth.token_ttl: %w", err)
		}
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "", "local":
	case "minio":
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("config.storage.minio requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("config.storage.backend must be local or minio")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// TokenTTLDuration returns the configured JWT lifetime, 12h when unset.
func (c *Config) TokenTTLDuration() time.Duration {
	if d, err := time.ParseDuration(c.Auth.TokenTTL); err == nil && d > 0 {
		return d
	}
	return 12 * time.Hour
}

// DefaultArea is the area code used when a create names none.
func (c *Config) DefaultArea() string {
	if c == nil || strings.TrimSpace(c.IDs.DefaultArea) == "" {
		return "GLOBAL"
	}
	return strings.TrimSpace(c.IDs.DefaultArea)
}

// Permissions expands roles into the set of granted permissions.
func (c *Config) Permissions(roles []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, role := range roles {
		r, ok := c.RBAC.Roles[role]
		if !ok {
			continue
		}
		for _, p := range r.Permissions {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "traceline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load returns the workspace config, or the defaults when the file is absent.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Sections left
// out of the document keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadEnvFile loads <workspace>/.env into the process environment. Variables
// already set are kept. A missing file is not an error.
func LoadEnvFile(workspace string) error {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

database:
  driver: sqlite
  dsn: ""

auth:
  jwt_secret: ""
  token_ttl: 12h
  admin:
    username: admin
    password: ""

rbac:
  roles:
    admin:
      description: "Full access"
      permissions: ["*"]
    editor:
      description: "Author artifacts and links"
      permissions:
        - artifact:read
        - artifact:write
        - artifact:delete
        - artifact:rename
        - comment:write
        - file:upload
    reviewer:
      description: "Review and transition artifacts"
      permissions:
        - artifact:read
        - artifact:review
        - comment:write
    viewer:
      description: "Read only"
      permissions:
        - artifact:read

storage:
  backend: local
  local:
    root: ""
  minio:
    endpoint: ""
    access_key: ""
    secret_key: ""
    bucket: traceline
    use_ssl: false

ids:
  default_area: GLOBAL
`
