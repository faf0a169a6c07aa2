package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailroom/mailroom/internal/auth"
	"github.com/mailroom/mailroom/internal/mailbox"
)

// TokenResponse is returned by GET /api/auth/token.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// SessionResponse describes the caller's session.
type SessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	State         auth.State `json:"state"`
	ExpiresAt     string     `json:"expiresAt,omitempty"`
	Scopes        []string   `json:"scopes,omitempty"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

func newOAuthState() string {
	return uuid.NewString()
}

// appRedirect sends the browser to a front end path.
func (s *Server) appRedirect(w http.ResponseWriter, r *http.Request, path string, query url.Values) {
	target := strings.TrimRight(s.cfg.Server.AppURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) authError(w http.ResponseWriter, r *http.Request, code string) {
	s.appRedirect(w, r, "/auth", url.Values{"error": {code}})
}

// handleLogin starts the authorization code flow.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Configured() {
		s.logger.Error("login attempted without OAuth configuration")
		s.authError(w, r, auth.CodeConfigError)
		return
	}

	state := s.newState()
	s.sessions.Store().SetState(w, state)
	http.Redirect(w, r, s.auth.AuthCodeURL(state), http.StatusFound)
}

// handleCallback exchanges the authorization code and stores the
// credential cookies.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	store := s.sessions.Store()

	code := q.Get("code")
	if code == "" {
		s.logger.Warn("oauth callback without code", "provider_error", q.Get("error"))
		s.authError(w, r, auth.CodeNoCode)
		return
	}
	if !s.auth.Configured() {
		s.logger.Error("oauth callback without OAuth configuration")
		s.authError(w, r, auth.CodeConfigError)
		return
	}
	if err := store.CheckState(w, r, q.Get("state")); err != nil {
		s.logger.Warn("oauth callback rejected", "error", err)
		s.authError(w, r, auth.ErrorCode(err))
		return
	}

	cred, err := s.auth.Exchange(r.Context(), code)
	if err != nil {
		code := auth.ErrorCode(err)
		s.logger.Error("token exchange failed", "code", code, "error", err)
		s.authError(w, r, code)
		return
	}

	store.Save(w, cred)
	s.appRedirect(w, r, "/dashboard", nil)
}

// handleLogout clears the credential cookies and drops the caller's
// mailbox.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cred, ok := s.sessions.Store().Load(r); ok {
		s.mailboxes.Forget(mailbox.IdentityKey(cred.AccessToken, cred.RefreshToken))
	}
	s.sessions.Revoke(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// handleToken returns the access token, refreshing it first when needed.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Resolve(w, r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: sess.Credential.AccessToken})
}

// handleCheck answers whether the caller has a usable session.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sessions.Resolve(w, r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// handleSession reports the session state without failing on missing or
// expired credentials.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Resolve(w, r)
	if err != nil && !errors.Is(err, auth.ErrNoSession) && !errors.Is(err, auth.ErrExpired) {
		s.writeFailure(w, r, err, "Failed to resolve session")
		return
	}

	resp := SessionResponse{
		Authenticated: err == nil,
		State:         sess.State,
	}
	if cred := sess.Credential; cred != nil {
		if cred.Expiry != 0 {
			resp.ExpiresAt = time.Unix(cred.Expiry, 0).UTC().Format(time.RFC3339)
		}
		resp.Scopes = cred.Scopes()
	}
	writeJSON(w, http.StatusOK, resp)
}
