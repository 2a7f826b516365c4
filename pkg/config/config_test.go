package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Server.Listen != ":3000" {
		t.Errorf("listen = %q, want :3000", cfg.Server.Listen)
	}

	if cfg.Sync.Owner != "ringer" || cfg.Sync.Repo != "ringer-oapi" || cfg.Sync.Branch != "main" {
		t.Errorf("unexpected sync defaults: %+v", cfg.Sync)
	}

	if cfg.SyncSource() != "ringer/ringer-oapi@main:openapi" {
		t.Errorf("source = %q", cfg.SyncSource())
	}

	if !cfg.ValidateSynced() {
		t.Errorf("expected validation of synced files by default")
	}

	if cfg.History.CleanupInterval != time.Hour {
		t.Errorf("cleanup interval = %s, want 1h", cfg.History.CleanupInterval)
	}

	if cfg.Server.RateLimit.Auth.RequestsPerMinute != 10 {
		t.Errorf("auth rpm = %d, want 10", cfg.Server.RateLimit.Auth.RequestsPerMinute)
	}
}

func TestParseExpandsEnvVars(t *testing.T) {
	t.Setenv("RINGER_DOCS_TEST_TOKEN", "s3cret")
	t.Setenv("RINGER_DOCS_TEST_BRANCH", "develop")

	cfg, err := Parse([]byte(`
github:
  token: ${RINGER_DOCS_TEST_TOKEN}
sync:
  branch: $RINGER_DOCS_TEST_BRANCH
  path: ${RINGER_DOCS_UNSET_VAR}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.GitHub.Token != "s3cret" {
		t.Errorf("token = %q", cfg.GitHub.Token)
	}

	if cfg.Sync.Branch != "develop" {
		t.Errorf("branch = %q", cfg.Sync.Branch)
	}

	if cfg.Sync.Path != "${RINGER_DOCS_UNSET_VAR}" {
		t.Errorf("unset variable should be kept verbatim, got %q", cfg.Sync.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown driver",
			yaml:    "database:\n  driver: mysql\n",
			wantErr: "unsupported database driver",
		},
		{
			name:    "postgres without host",
			yaml:    "database:\n  driver: postgres\n",
			wantErr: "postgres.host is required",
		},
		{
			name:    "owner with slash",
			yaml:    "sync:\n  owner: a/b\n",
			wantErr: "must not contain",
		},
		{
			name:    "api key without hash",
			yaml:    "auth:\n  api_keys:\n    - name: ci\n      key_hash: plain\n",
			wantErr: "bcrypt hash",
		},
		{
			name:    "duplicate api key",
			yaml:    "auth:\n  api_keys:\n    - name: ci\n      key_hash: $2a$10$x\n    - name: ci\n      key_hash: $2a$10$y\n",
			wantErr: "duplicate api key name",
		},
		{
			name: "valid",
			yaml: "sync:\n  interval: 5m\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				return
			}

			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadResolvesRelativeDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("specs:\n  dir: openapi\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if want := filepath.Join(dir, "openapi"); cfg.Specs.Dir != want {
		t.Errorf("specs dir = %q, want %q", cfg.Specs.Dir, want)
	}

	if cfg.CheckoutDir() != dir {
		t.Errorf("checkout dir = %q, want %q", cfg.CheckoutDir(), dir)
	}
}

func TestStringOmitsSecrets(t *testing.T) {
	cfg, err := Parse([]byte("github:\n  token: ghp_secret\n"))
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(cfg.String(), "ghp_secret") {
		t.Errorf("String() leaks the token:\n%s", cfg.String())
	}
}
