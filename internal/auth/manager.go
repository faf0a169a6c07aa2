package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes requested by default: read and label changes on Gmail, plus the
// OpenID identity of the user.
var Scopes = []string{
	"openid",
	"email",
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.modify",
}

// GoogleIssuer is the OpenID Connect issuer for Google accounts.
const GoogleIssuer = "https://accounts.google.com"

// Config describes the OAuth client.
type Config struct {
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	Scopes         []string
	RequiredScopes []string
	AuthURL        string // defaults to Google's
	TokenURL       string // defaults to Google's
	Issuer         string // OIDC issuer for id_token verification
	VerifyIDToken  bool
	HTTPClient     *http.Client
}

// Configured reports whether the client id, secret and redirect URL are all
// set.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

// Manager exchanges authorization codes and refresh tokens at the token
// endpoint.
type Manager struct {
	config         *oauth2.Config
	configured     bool
	requiredScopes []string
	verifier       *oidc.IDTokenVerifier
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewManager builds a Manager. When cfg.VerifyIDToken is set the issuer's
// discovery document is fetched to build the id_token verifier.
func NewManager(ctx context.Context, cfg Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = Scopes
	}

	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	// Credentials go in the form body alongside the code.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	m := &Manager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		configured:     cfg.Configured(),
		requiredScopes: cfg.RequiredScopes,
		httpClient:     cfg.HTTPClient,
		logger:         logger,
	}

	if cfg.VerifyIDToken {
		issuer := cfg.Issuer
		if issuer == "" {
			issuer = GoogleIssuer
		}
		provider, err := oidc.NewProvider(m.ctx(ctx), issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
		}
		m.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	}
	return m, nil
}

func (m *Manager) ctx(ctx context.Context) context.Context {
	if m.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}
	return ctx
}

// Configured reports whether exchanges can be attempted.
func (m *Manager) Configured() bool {
	return m.configured
}

// AuthCodeURL returns the consent page URL. Offline access with forced
// consent makes Google issue a refresh token every time.
func (m *Manager) AuthCodeURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a credential.
func (m *Manager) Exchange(ctx context.Context, code string) (*Credential, error) {
	if code == "" {
		return nil, ErrNoCode
	}
	if !m.configured {
		return nil, ErrNotConfigured
	}

	tok, err := m.config.Exchange(m.ctx(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", classifyTokenError(err))
	}
	if tok.AccessToken == "" {
		return nil, ErrNoToken
	}

	if m.verifier != nil {
		if err := m.verifyIDToken(ctx, tok); err != nil {
			return nil, err
		}
	}

	cred := FromToken(tok)
	if missing := MissingScopes(cred.Scopes(), m.requiredScopes); len(missing) > 0 {
		m.logger.Warn("granted token lacks required scopes", "missing", missing)
	}
	m.logger.Info("oauth code exchanged", "has_refresh_token", cred.RefreshToken != "", "expiry", cred.Expiry)
	return cred, nil
}

func (m *Manager) verifyIDToken(ctx context.Context, tok *oauth2.Token) error {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return errors.New("verify id_token: token response has no id_token")
	}
	idt, err := m.verifier.Verify(m.ctx(ctx), raw)
	if err != nil {
		return fmt.Errorf("verify id_token: %w", err)
	}
	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idt.Claims(&claims); err != nil {
		return fmt.Errorf("id_token claims: %w", err)
	}
	m.logger.Info("id_token verified", "email", claims.Email, "email_verified", claims.EmailVerified)
	return nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token is carried over when the endpoint does not rotate it.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	if refreshToken == "" {
		return nil, ErrExpired
	}
	if !m.configured {
		return nil, ErrNotConfigured
	}

	ts := m.config.TokenSource(m.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", classifyTokenError(err))
	}
	cred := FromToken(tok)
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}
