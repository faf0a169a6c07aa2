package auth

import (
	"errors"
	"strings"

	"golang.org/x/oauth2"
)

var (
	ErrNoCode        = errors.New("authorization code missing")
	ErrNotConfigured = errors.New("oauth client not configured")
	ErrInvalidGrant  = errors.New("authorization grant invalid or expired")
	ErrInvalidClient = errors.New("oauth client rejected")
	ErrNoToken       = errors.New("token response carried no access token")
	ErrStateMismatch = errors.New("oauth state mismatch")
	ErrNoSession     = errors.New("no session")
	ErrExpired       = errors.New("session expired")
)

// Callback error codes passed to the front end as ?error=<code>.
const (
	CodeNoCode        = "no_code"
	CodeConfigError   = "config_error"
	CodeInvalidGrant  = "invalid_grant"
	CodeInvalidClient = "invalid_client"
	CodeNoToken       = "no_token"
	CodeAuthFailed    = "auth_failed"
)

// ErrorCode maps an exchange failure to its callback error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoCode):
		return CodeNoCode
	case errors.Is(err, ErrNotConfigured):
		return CodeConfigError
	case errors.Is(err, ErrInvalidGrant):
		return CodeInvalidGrant
	case errors.Is(err, ErrInvalidClient):
		return CodeInvalidClient
	case errors.Is(err, ErrNoToken):
		return CodeNoToken
	default:
		return CodeAuthFailed
	}
}

// classifyTokenError turns a token endpoint failure into a sentinel-wrapped
// error.
func classifyTokenError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		switch rerr.ErrorCode {
		case "invalid_grant":
			return errors.Join(ErrInvalidGrant, err)
		case "invalid_client", "unauthorized_client":
			return errors.Join(ErrInvalidClient, err)
		}
		return err
	}
	if strings.Contains(err.Error(), "missing access_token") {
		return errors.Join(ErrNoToken, err)
	}
	return err
}
