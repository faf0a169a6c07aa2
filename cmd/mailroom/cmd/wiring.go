package cmd

import (
	"log/slog"

	"github.com/mailroom/mailroom/internal/auth"
	"github.com/mailroom/mailroom/internal/config"
	"github.com/mailroom/mailroom/internal/gmail"
	"github.com/mailroom/mailroom/internal/mailbox"
)

// authConfig maps the [oauth] section onto the token manager's config.
func authConfig(c *config.Config) auth.Config {
	return auth.Config{
		ClientID:       c.OAuth.ClientID,
		ClientSecret:   c.OAuth.ClientSecret,
		RedirectURL:    c.OAuth.RedirectURI,
		Scopes:         c.OAuth.Scopes,
		RequiredScopes: c.OAuth.RequiredScopes,
		AuthURL:        c.OAuth.AuthURL,
		TokenURL:       c.OAuth.TokenURL,
		Issuer:         c.OAuth.Issuer,
		VerifyIDToken:  c.OAuth.VerifyIDToken,
	}
}

// newDialer returns a mailbox.Dialer that builds a Gmail client per token.
// Each client paces its own calls, matching Gmail's per-user quota.
func newDialer(c *config.Config, logger *slog.Logger) mailbox.Dialer {
	return func(token string) gmail.API {
		return gmail.NewTokenClient(token,
			gmail.WithLogger(logger),
			gmail.WithBaseURL(c.Mail.APIBaseURL),
			gmail.WithConcurrency(c.Mail.Concurrency),
			gmail.WithRateLimiter(gmail.NewRateLimiter(c.Mail.RateLimitQPS)),
		)
	}
}

// mailboxOptions maps the [mail] section onto mailbox options.
func mailboxOptions(c *config.Config, logger *slog.Logger) []mailbox.Option {
	return []mailbox.Option{
		mailbox.WithLogger(logger),
		mailbox.WithTTL(c.Mail.CacheTTL.Duration),
		mailbox.WithPageSize(c.Mail.PageSize),
	}
}
