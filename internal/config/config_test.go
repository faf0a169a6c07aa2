package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// isolate points MAILROOM_HOME at a temp dir and clears the overlay
// variables.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MAILROOM_HOME", dir)
	for _, k := range []string{"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URI", "MAILROOM_APP_URL", "MAILROOM_ENV", "MAILROOM_PORT"} {
		t.Setenv(k, "")
	}
	return dir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.HomeDir != dir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, dir)
	}
	if cfg.Server.Port != 8080 || cfg.Mail.PageSize != 20 || cfg.Mail.Concurrency != 10 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Mail.CacheTTL.Duration != 60*time.Second {
		t.Errorf("CacheTTL = %v, want 60s", cfg.Mail.CacheTTL)
	}
	if cfg.Sessions.ReapSchedule != "*/5 * * * *" {
		t.Errorf("ReapSchedule = %q", cfg.Sessions.ReapSchedule)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
	if cfg.OAuthConfigured() {
		t.Error("OAuthConfigured() = true with no client")
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `
[server]
port = 9090
app_url = "https://mail.example.com"
cors_origins = ["https://mail.example.com"]

[oauth]
client_id = "file-id"
client_secret = "file-secret"
redirect_uri = "https://mail.example.com/api/auth/callback"
verify_id_token = true

[mail]
page_size = 50
cache_ttl = "2m"

[sessions]
idle_timeout = "1h"
reap_schedule = "@every 10m"
`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if diff := cmp.Diff([]string{"https://mail.example.com"}, cfg.Server.CORSOrigins); diff != "" {
		t.Errorf("CORSOrigins mismatch (-want +got):\n%s", diff)
	}
	if !cfg.OAuthConfigured() || !cfg.OAuth.VerifyIDToken {
		t.Errorf("OAuth = %+v", cfg.OAuth)
	}
	if cfg.Mail.PageSize != 50 || cfg.Mail.CacheTTL.Duration != 2*time.Minute {
		t.Errorf("Mail = %+v", cfg.Mail)
	}
	// Unset keys keep their defaults.
	if cfg.Mail.Concurrency != 10 {
		t.Errorf("Mail.Concurrency = %d, want default 10", cfg.Mail.Concurrency)
	}
	if cfg.Sessions.IdleTimeout.Duration != time.Hour {
		t.Errorf("IdleTimeout = %v", cfg.Sessions.IdleTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, `
[oauth]
client_id = "file-id"
client_secret = "file-secret"
`)
	t.Setenv("GOOGLE_CLIENT_ID", "env-id")
	t.Setenv("GOOGLE_REDIRECT_URI", "https://env.example.com/cb")
	t.Setenv("MAILROOM_APP_URL", "https://app.example.com")
	t.Setenv("MAILROOM_ENV", "production")
	t.Setenv("MAILROOM_PORT", "7000")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.OAuth.ClientID != "env-id" {
		t.Errorf("ClientID = %q, want env override", cfg.OAuth.ClientID)
	}
	if cfg.OAuth.ClientSecret != "file-secret" {
		t.Errorf("ClientSecret = %q, want file value", cfg.OAuth.ClientSecret)
	}
	if cfg.OAuth.RedirectURI != "https://env.example.com/cb" || cfg.Server.AppURL != "https://app.example.com" {
		t.Errorf("overlay not applied: %+v %+v", cfg.OAuth, cfg.Server)
	}
	if !cfg.IsProduction() || !cfg.SecureCookies() {
		t.Error("production env should force secure cookies")
	}
	if cfg.Addr() != "127.0.0.1:7000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestLoadExplicitPathNotFound(t *testing.T) {
	isolate(t)
	_, err := Load("/nonexistent/path/config.toml")
	if err == nil {
		t.Fatal("Load with explicit nonexistent path should return error")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %q, want it to contain %q", err, "config file not found")
	}
}

func TestLoadExplicitPath(t *testing.T) {
	isolate(t)
	path := writeConfig(t, t.TempDir(), "[server]\nport = 8181\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8181 {
		t.Errorf("Server.Port = %d, want 8181", cfg.Server.Port)
	}
}

func TestLoadBackslashErrorHint(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, "[oauth]\nissuer = \"C:\\Games\\issuer\"\n")

	_, err := Load("")
	if err == nil {
		t.Fatal("Load should fail on TOML backslash error")
	}
	if !strings.Contains(err.Error(), "hint:") {
		t.Errorf("error should contain hint, got: %s", err)
	}
}

func TestLoadBadDuration(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, dir, "[mail]\ncache_ttl = \"soon\"\n")

	if _, err := Load(""); err == nil {
		t.Fatal("Load accepted an invalid duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"Port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"AppURL", func(c *Config) { c.Server.AppURL = "localhost" }, "server.app_url"},
		{"PageSize", func(c *Config) { c.Mail.PageSize = 501 }, "mail.page_size"},
		{"Concurrency", func(c *Config) { c.Mail.Concurrency = 0 }, "mail.concurrency"},
		{"CacheTTL", func(c *Config) { c.Mail.CacheTTL = Duration{} }, "mail.cache_ttl"},
		{"QPS", func(c *Config) { c.Mail.RateLimitQPS = 0 }, "mail.rate_limit_qps"},
		{"Burst", func(c *Config) { c.Server.RateLimitBurst = 0 }, "server.rate_limit_burst"},
		{"IdleTimeout", func(c *Config) { c.Sessions.IdleTimeout = Duration{} }, "sessions.idle_timeout"},
		{"ReapSchedule", func(c *Config) { c.Sessions.ReapSchedule = "every now and then" }, "sessions.reap_schedule"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tc.want)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("GOOGLE_CLIENT_ID=dotenv-id\nMAILROOM_ENV=production\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_CLIENT_ID", "")
	os.Unsetenv("GOOGLE_CLIENT_ID")
	t.Setenv("MAILROOM_ENV", "development")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() = %v", err)
	}
	if got := os.Getenv("GOOGLE_CLIENT_ID"); got != "dotenv-id" {
		t.Errorf("GOOGLE_CLIENT_ID = %q, want dotenv-id", got)
	}
	if got := os.Getenv("MAILROOM_ENV"); got != "development" {
		t.Errorf("MAILROOM_ENV = %q, existing value should win", got)
	}
}

func TestDefaultHomeExpandsTilde(t *testing.T) {
	t.Setenv("MAILROOM_HOME", "~/mailroom-test")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got, want := DefaultHome(), filepath.Join(home, "mailroom-test"); got != want {
		t.Errorf("DefaultHome() = %q, want %q", got, want)
	}
}
