package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for ringer-docs.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Site     SiteConfig     `yaml:"site"`
	Specs    SpecsConfig    `yaml:"specs"`
	Database DatabaseConfig `yaml:"database"`
	GitHub   GitHubConfig   `yaml:"github"`
	Sync     SyncConfig     `yaml:"sync"`
	Auth     AuthConfig     `yaml:"auth"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains per-IP rate limit settings. Enabled gates the
// public limit only; the API key routes are always limited unless their
// limit is negative.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Auth              RateLimitTier `yaml:"auth"`
}

// RateLimitTier is the limit of one route group.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute"` // default 10, -1 to disable
}

// SiteConfig contains presentation settings for the rendered pages.
type SiteConfig struct {
	Title         string `yaml:"title"`
	SupportEmail  string `yaml:"support_email"`
	RepositoryURL string `yaml:"repository_url"`
	SwaggerUIURL  string `yaml:"swagger_ui_url"`
}

// SpecsConfig locates the OpenAPI spec tree on disk.
type SpecsConfig struct {
	Dir string `yaml:"dir"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// GitHubConfig contains GitHub API settings.
type GitHubConfig struct {
	Token  string `yaml:"token"`
	APIURL string `yaml:"api_url"`
}

// SyncConfig describes the remote repository mirrored into Specs.Dir.
type SyncConfig struct {
	Owner           string        `yaml:"owner"`
	Repo            string        `yaml:"repo"`
	Branch          string        `yaml:"branch"`
	Path            string        `yaml:"path"`
	CheckoutDir     string        `yaml:"checkout_dir"`
	Interval        time.Duration `yaml:"interval"`
	RateLimitBuffer int           `yaml:"rate_limit_buffer"`
	Validate        *bool         `yaml:"validate"`
}

// AuthConfig contains API key settings for the write endpoints.
type AuthConfig struct {
	APIKeys []APIKey `yaml:"api_keys"`
}

// APIKey is a named bcrypt hash of an API key.
type APIKey struct {
	Name    string `yaml:"name"`
	KeyHash string `yaml:"key_hash"`
}

// HistoryConfig contains sync history retention settings.
type HistoryConfig struct {
	RetentionDays   int           `yaml:"retention_days"`   // default 30, -1 to disable
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // default 1h
}

// Load reads and parses configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Resolve the spec dir relative to the config file directory.
	if cfg.Specs.Dir != "" && !filepath.IsAbs(cfg.Specs.Dir) {
		cfg.Specs.Dir = filepath.Join(filepath.Dir(path), cfg.Specs.Dir)
	}

	if cfg.Sync.CheckoutDir != "" && !filepath.IsAbs(cfg.Sync.CheckoutDir) {
		cfg.Sync.CheckoutDir = filepath.Join(filepath.Dir(path), cfg.Sync.CheckoutDir)
	}

	return cfg, nil
}

// Parse parses configuration from YAML bytes, applying defaults and
// validation. Relative paths are kept as given.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables.
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied, used when no
// config file is present.
func Default() *Config {
	var cfg Config

	applyDefaults(&cfg)

	if token, ok := os.LookupEnv("GITHUB_TOKEN"); ok {
		cfg.GitHub.Token = token
	}

	return &cfg
}

var (
	bracedVarRe = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
	bareVarRe   = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)
)

// expandEnvVars replaces ${VAR} and $VAR patterns with environment variable
// values. Unknown variables are left untouched.
func expandEnvVars(s string) string {
	s = bracedVarRe.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}

		return match
	})

	return bareVarRe.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[1:]); ok {
			return val
		}

		return match
	})
}

// applyDefaults sets default values for unset configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":3000"
	}

	if cfg.Server.RateLimit.RequestsPerMinute == 0 {
		cfg.Server.RateLimit.RequestsPerMinute = 300
	}

	if cfg.Server.RateLimit.Auth.RequestsPerMinute == 0 {
		cfg.Server.RateLimit.Auth.RequestsPerMinute = 10
	}

	if cfg.Site.Title == "" {
		cfg.Site.Title = "Ringer API Documentation"
	}

	if cfg.Site.SupportEmail == "" {
		cfg.Site.SupportEmail = "support@ringer.tel"
	}

	if cfg.Site.RepositoryURL == "" {
		cfg.Site.RepositoryURL = "https://github.com/teliax/ringer-oapi"
	}

	if cfg.Site.SwaggerUIURL == "" {
		cfg.Site.SwaggerUIURL = "https://unpkg.com/swagger-ui-dist@5"
	}

	if cfg.Specs.Dir == "" {
		cfg.Specs.Dir = "../openapi"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}

	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "./ringer-docs.db"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}

	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Sync.Owner == "" {
		cfg.Sync.Owner = "ringer"
	}

	if cfg.Sync.Repo == "" {
		cfg.Sync.Repo = "ringer-oapi"
	}

	if cfg.Sync.Branch == "" {
		cfg.Sync.Branch = "main"
	}

	if cfg.Sync.Path == "" {
		cfg.Sync.Path = "openapi"
	}

	if cfg.Sync.RateLimitBuffer == 0 {
		cfg.Sync.RateLimitBuffer = 10
	}

	if cfg.Sync.Validate == nil {
		validate := true
		cfg.Sync.Validate = &validate
	}

	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = 30
	}

	if cfg.History.CleanupInterval == 0 {
		cfg.History.CleanupInterval = time.Hour
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required when driver is sqlite")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres.host is required when driver is postgres")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres.database is required when driver is postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Server.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("server.rate_limit.requests_per_minute must not be negative")
	}

	if strings.Contains(c.Sync.Owner, "/") || strings.Contains(c.Sync.Repo, "/") {
		return fmt.Errorf("sync.owner and sync.repo must not contain '/'")
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must not be negative")
	}

	names := make(map[string]bool, len(c.Auth.APIKeys))

	for i, key := range c.Auth.APIKeys {
		if key.Name == "" {
			return fmt.Errorf("auth.api_keys[%d]: name is required", i)
		}

		if names[key.Name] {
			return fmt.Errorf("duplicate api key name: %s", key.Name)
		}

		names[key.Name] = true

		if !strings.HasPrefix(key.KeyHash, "$2") {
			return fmt.Errorf("api key %s: key_hash must be a bcrypt hash", key.Name)
		}
	}

	return nil
}

// GetDSN returns the database connection string.
func (c *Config) GetDSN() string {
	switch c.Database.Driver {
	case "sqlite":
		return c.Database.SQLite.Path
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Postgres.Host,
			c.Database.Postgres.Port,
			c.Database.Postgres.User,
			c.Database.Postgres.Password,
			c.Database.Postgres.Database,
			c.Database.Postgres.SSLMode,
		)
	default:
		return ""
	}
}

// SyncSource returns a short description of the mirrored location.
func (c *Config) SyncSource() string {
	return fmt.Sprintf("%s/%s@%s:%s", c.Sync.Owner, c.Sync.Repo, c.Sync.Branch, c.Sync.Path)
}

// CheckoutDir returns the directory whose .git marks a local checkout. It
// defaults to the parent of the spec directory.
func (c *Config) CheckoutDir() string {
	if c.Sync.CheckoutDir != "" {
		return c.Sync.CheckoutDir
	}

	abs, err := filepath.Abs(c.Specs.Dir)
	if err != nil {
		return filepath.Dir(c.Specs.Dir)
	}

	return filepath.Dir(abs)
}

// ValidateSynced reports whether mirrored files are checked with the OpenAPI
// validator.
func (c *Config) ValidateSynced() bool {
	return c.Sync.Validate == nil || *c.Sync.Validate
}

// String returns a sanitized string representation of the config (no secrets).
func (c *Config) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Server: listen=%s rate_limit=%t\n", c.Server.Listen, c.Server.RateLimit.Enabled))
	sb.WriteString(fmt.Sprintf("Specs: dir=%s\n", c.Specs.Dir))
	sb.WriteString(fmt.Sprintf("Database: driver=%s\n", c.Database.Driver))
	sb.WriteString(fmt.Sprintf("GitHub: token=%t api_url=%s\n", c.GitHub.Token != "", c.GitHub.APIURL))
	sb.WriteString(fmt.Sprintf("Sync: source=%s interval=%s\n", c.SyncSource(), c.Sync.Interval))
	sb.WriteString(fmt.Sprintf("Auth: api_keys=%d\n", len(c.Auth.APIKeys)))

	return sb.String()
}
