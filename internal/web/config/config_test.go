package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %q, want :8090", cfg.Server.ListenAddr)
	}
	if cfg.Store.ConnectTimeout != 60*time.Second {
		t.Errorf("ConnectTimeout = %v, want 60s", cfg.Store.ConnectTimeout)
	}
	if !cfg.Store.SeedEnabled() {
		t.Error("seeding should be enabled by default")
	}
	if cfg.Auth.SessionTTL != 12*time.Hour {
		t.Errorf("SessionTTL = %v, want 12h", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.CookieName != "techsupport_session" {
		t.Errorf("CookieName = %q", cfg.Auth.CookieName)
	}
	if cfg.Reports.Timeout != 0 {
		t.Errorf("reports timeout = %v, want none", cfg.Reports.Timeout)
	}
	if cfg.Store.Path != "" || cfg.Store.ProjectID != "" {
		t.Error("store path and project id have no defaults")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: "127.0.0.1:9000"
  trusted_proxies:
    - 10.0.0.0/8
    - "::1"
store:
  path: /tmp/ts.db
  project_id: support-tools
  connect_timeout: 5s
  seed: false
auth:
  login_rate: 3
reports:
  timeout: 30s
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if len(cfg.Server.TrustedProxies) != 2 {
		t.Errorf("TrustedProxies = %v", cfg.Server.TrustedProxies)
	}
	if cfg.Store.ProjectID != "support-tools" {
		t.Errorf("ProjectID = %q", cfg.Store.ProjectID)
	}
	if cfg.Store.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.Store.ConnectTimeout)
	}
	if cfg.Store.SeedEnabled() {
		t.Error("seed: false must disable seeding")
	}
	if cfg.Auth.LoginRate != 3 {
		t.Errorf("LoginRate = %d", cfg.Auth.LoginRate)
	}
	if cfg.Reports.Timeout != 30*time.Second {
		t.Errorf("reports timeout = %v", cfg.Reports.Timeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
store:
  path: /from/file.db
  project_id: file-project
`)
	t.Setenv("TECHSUPPORT_STORE_PATH", "/from/env.db")
	t.Setenv("TECHSUPPORT_STORE_PROJECT_ID", "env-project")
	t.Setenv("TECHSUPPORT_LISTEN_ADDR", ":7000")
	t.Setenv("TECHSUPPORT_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.Path != "/from/env.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Store.ProjectID != "env-project" {
		t.Errorf("Store.ProjectID = %q", cfg.Store.ProjectID)
	}
	if cfg.Server.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "tls without files",
			content: "server:\n  tls:\n    enabled: true\n",
			wantErr: "cert_file",
		},
		{
			name:    "bad log level",
			content: "logging:\n  level: loud\n",
			wantErr: "logging.level",
		},
		{
			name:    "metrics on web port",
			content: "server:\n  listen_addr: \":9090\"\nmetrics:\n  enabled: true\n",
			wantErr: "metrics.listen_addr",
		},
		{
			name:    "negative timeout",
			content: "reports:\n  timeout: -1s\n",
			wantErr: "reports.timeout",
		},
		{
			name:    "bad trusted proxy",
			content: "server:\n  trusted_proxies: [\"proxy.local\"]\n",
			wantErr: "server.trusted_proxies",
		},
		{
			name:    "broken yaml",
			content: "server: [",
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
