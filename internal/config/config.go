// Package config loads mailroom configuration from TOML, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Duration is a time.Duration read from a TOML string such as "60s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	BindAddr       string   `toml:"bind_addr"`
	Port           int      `toml:"port"`
	AppURL         string   `toml:"app_url"` // front end origin used for redirects
	CookieSecure   bool     `toml:"cookie_secure"`
	CORSOrigins    []string `toml:"cors_origins"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"` // per client IP, 0 disables
	RateLimitBurst int      `toml:"rate_limit_burst"`
}

// OAuthConfig holds the Google OAuth client.
type OAuthConfig struct {
	ClientID       string   `toml:"client_id"`
	ClientSecret   string   `toml:"client_secret"`
	RedirectURI    string   `toml:"redirect_uri"`
	Scopes         []string `toml:"scopes"`
	RequiredScopes []string `toml:"required_scopes"`
	AuthURL        string   `toml:"auth_url"`
	TokenURL       string   `toml:"token_url"`
	Issuer         string   `toml:"issuer"`
	VerifyIDToken  bool     `toml:"verify_id_token"`
}

// MailConfig holds Gmail access settings.
type MailConfig struct {
	APIBaseURL   string   `toml:"api_base_url"`
	PageSize     int      `toml:"page_size"`
	Concurrency  int      `toml:"concurrency"`
	CacheTTL     Duration `toml:"cache_ttl"`
	RateLimitQPS float64  `toml:"rate_limit_qps"`
}

// SessionsConfig controls idle mailbox reaping.
type SessionsConfig struct {
	IdleTimeout  Duration `toml:"idle_timeout"`
	ReapSchedule string   `toml:"reap_schedule"`
}

// Config represents the mailroom configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	OAuth    OAuthConfig    `toml:"oauth"`
	Mail     MailConfig     `toml:"mail"`
	Sessions SessionsConfig `toml:"sessions"`

	// Computed (not from config file)
	HomeDir string `toml:"-"`
	Env     string `toml:"-"` // MAILROOM_ENV, e.g. "production"
}

// DefaultHome returns the mailroom home directory. Respects MAILROOM_HOME.
func DefaultHome() string {
	if h := os.Getenv("MAILROOM_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailroom"
	}
	return filepath.Join(home, ".mailroom")
}

// NewDefaultConfig returns a configuration with every default applied and no
// file or environment input.
func NewDefaultConfig() *Config {
	return &Config{
		HomeDir: DefaultHome(),
		Server: ServerConfig{
			BindAddr:       "127.0.0.1",
			Port:           8080,
			AppURL:         "http://localhost:3000",
			CORSOrigins:    []string{"http://localhost:3000"},
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		OAuth: OAuthConfig{
			RedirectURI: "http://localhost:8080/api/auth/callback",
			RequiredScopes: []string{
				"https://www.googleapis.com/auth/gmail.readonly",
				"https://www.googleapis.com/auth/gmail.modify",
			},
		},
		Mail: MailConfig{
			APIBaseURL:   "https://gmail.googleapis.com/gmail/v1",
			PageSize:     20,
			Concurrency:  10,
			CacheTTL:     Duration{60 * time.Second},
			RateLimitQPS: 5,
		},
		Sessions: SessionsConfig{
			IdleTimeout:  Duration{30 * time.Minute},
			ReapSchedule: "*/5 * * * *",
		},
	}
}

// Load reads the configuration file, then overlays the environment. An empty
// path means $MAILROOM_HOME/config.toml, which may be absent. An explicit
// path must exist.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.HomeDir, "config.toml")
	}
	path = expandPath(path)

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w%s", path, err, backslashHint(err))
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from files into the process environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overlays environment variables on the loaded file.
func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.OAuth.ClientID, "GOOGLE_CLIENT_ID")
	set(&c.OAuth.ClientSecret, "GOOGLE_CLIENT_SECRET")
	set(&c.OAuth.RedirectURI, "GOOGLE_REDIRECT_URI")
	set(&c.Server.AppURL, "MAILROOM_APP_URL")
	set(&c.Env, "MAILROOM_ENV")

	if v := os.Getenv("MAILROOM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// IsProduction reports whether MAILROOM_ENV is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SecureCookies reports whether cookies must carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return c.Server.CookieSecure || c.IsProduction()
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.BindAddr, strconv.Itoa(c.Server.Port))
}

// OAuthConfigured reports whether the OAuth client is fully set.
func (c *Config) OAuthConfigured() bool {
	return c.OAuth.ClientID != "" && c.OAuth.ClientSecret != "" && c.OAuth.RedirectURI != ""
}

// Validate checks ranges, URLs and the reap schedule.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_rps must not be negative"))
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("server.rate_limit_burst must be at least 1"))
	}
	for name, raw := range map[string]string{
		"server.app_url":    c.Server.AppURL,
		"mail.api_base_url": c.Mail.APIBaseURL,
	} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s %q is not an absolute URL", name, raw))
		}
	}
	if c.Mail.PageSize < 1 || c.Mail.PageSize > 500 {
		errs = append(errs, fmt.Errorf("mail.page_size %d out of range 1-500", c.Mail.PageSize))
	}
	if c.Mail.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("mail.concurrency must be at least 1"))
	}
	if c.Mail.CacheTTL.Duration <= 0 {
		errs = append(errs, fmt.Errorf("mail.cache_ttl must be positive"))
	}
	if c.Mail.RateLimitQPS <= 0 {
		errs = append(errs, fmt.Errorf("mail.rate_limit_qps must be positive"))
	}
	if c.Sessions.IdleTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("sessions.idle_timeout must be positive"))
	}
	if c.Sessions.ReapSchedule != "" {
		if _, err := cron.ParseStandard(c.Sessions.ReapSchedule); err != nil {
			errs = append(errs, fmt.Errorf("sessions.reap_schedule: %w", err))
		}
	}
	return errors.Join(errs...)
}

// backslashHint explains the usual cause of TOML escape errors: Windows
// paths in double-quoted strings.
func backslashHint(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "escape") || strings.Contains(msg, "hexadecimal digits") {
		return " (hint: use forward slashes or single quotes for values containing backslashes)"
	}
	return ""
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
