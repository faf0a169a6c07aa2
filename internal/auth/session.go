package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultSkew refreshes tokens this long before they expire.
const DefaultSkew = time.Minute

// Refresher obtains a new credential from a refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
}

// Session is the credential resolved for one request.
type Session struct {
	Credential *Credential
	State      State
}

// Sessions resolves the request credential from cookies and refreshes it
// when it is expired or about to expire.
type Sessions struct {
	store     CookieStore
	refresher Refresher
	skew      time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewSessions creates a resolver. A nil refresher disables refreshing.
func NewSessions(store CookieStore, refresher Refresher, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		store:     store,
		refresher: refresher,
		skew:      DefaultSkew,
		now:       time.Now,
		logger:    logger,
	}
}

// Store returns the cookie store used by the resolver.
func (s *Sessions) Store() CookieStore {
	return s.store
}

// Resolve returns the request's session. Refreshed credentials are written
// back to the response cookies. It fails with ErrNoSession when there are no
// credential cookies and ErrExpired when the token is stale and cannot be
// refreshed.
func (s *Sessions) Resolve(w http.ResponseWriter, r *http.Request) (*Session, error) {
	cred, ok := s.store.Load(r)
	if !ok {
		return &Session{State: Unauthenticated}, ErrNoSession
	}
	if !cred.ExpiresWithin(s.now(), s.skew) {
		return &Session{Credential: cred, State: Authenticated}, nil
	}

	if cred.RefreshToken == "" || s.refresher == nil {
		return &Session{Credential: cred, State: Expired}, ErrExpired
	}

	fresh, err := s.refresher.Refresh(r.Context(), cred.RefreshToken)
	if err != nil {
		s.logger.Warn("token refresh failed", "error", err)
		return &Session{Credential: cred, State: Expired}, fmt.Errorf("%w: %v", ErrExpired, err)
	}
	if fresh.Scope == "" {
		fresh.Scope = cred.Scope
	}
	s.store.Save(w, fresh)
	s.logger.Debug("access token refreshed", "expiry", fresh.Expiry)
	return &Session{Credential: fresh, State: Refreshed}, nil
}

// Revoke clears the credential cookies.
func (s *Sessions) Revoke(w http.ResponseWriter) *Session {
	s.store.Clear(w)
	return &Session{State: Revoked}
}
