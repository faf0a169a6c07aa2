package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mailroom/mailroom/internal/auth"
)

func cookieMap(w interface{ Result() *http.Response }) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func stateCookie(v string) *http.Cookie {
	return &http.Cookie{Name: auth.StateCookie, Value: v}
}

func TestHandleLogin(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(http.MethodGet, "/api/auth/login", "")

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Query().Get("state") != "state-123" {
		t.Errorf("consent URL state = %q", loc.Query().Get("state"))
	}
	c := cookieMap(w)[auth.StateCookie]
	if c == nil || c.Value != "state-123" || !c.HttpOnly {
		t.Errorf("state cookie = %+v", c)
	}
}

func TestHandleLoginNotConfigured(t *testing.T) {
	e := newTestEnv(t, nil)
	e.auth.configured = false

	w := e.do(http.MethodGet, "/api/auth/login", "")

	if got := w.Header().Get("Location"); got != "http://app.test/auth?error=config_error" {
		t.Errorf("Location = %q", got)
	}
}

func TestHandleCallbackSuccess(t *testing.T) {
	e := newTestEnv(t, nil)
	e.auth.cred = &auth.Credential{AccessToken: "access-1", RefreshToken: "refresh-1", Expiry: 4102444800}

	w := e.do(http.MethodGet, "/api/auth/callback?code=abc&state=state-123", "", stateCookie("state-123"))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if got := w.Header().Get("Location"); got != "http://app.test/dashboard" {
		t.Errorf("Location = %q", got)
	}
	if diff := cmp.Diff([]string{"abc"}, e.auth.codes); diff != "" {
		t.Errorf("exchanged codes mismatch (-want +got):\n%s", diff)
	}

	cookies := cookieMap(w)
	for name, want := range map[string]string{
		auth.AccessTokenCookie:  "access-1",
		auth.RefreshTokenCookie: "refresh-1",
		auth.ExpiryCookie:       "4102444800",
	} {
		c := cookies[name]
		if c == nil {
			t.Errorf("cookie %s not set", name)
			continue
		}
		if c.Value != want || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
			t.Errorf("cookie %s = %+v", name, c)
		}
	}
	if c := cookies[auth.StateCookie]; c == nil || c.MaxAge >= 0 {
		t.Errorf("state cookie not cleared: %+v", c)
	}
}

func TestHandleCallbackErrors(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		state      string
		configured bool
		exchange   error
		wantCode   string
		wantCalls  int
	}{
		{"no code", "?state=s", "s", true, nil, auth.CodeNoCode, 0},
		{"provider denied", "?error=access_denied", "", true, nil, auth.CodeNoCode, 0},
		{"not configured", "?code=c&state=s", "s", false, nil, auth.CodeConfigError, 0},
		{"state mismatch", "?code=c&state=other", "s", true, nil, auth.CodeAuthFailed, 0},
		{"state cookie missing", "?code=c&state=s", "", true, nil, auth.CodeAuthFailed, 0},
		{"invalid grant", "?code=c&state=s", "s", true, auth.ErrInvalidGrant, auth.CodeInvalidGrant, 1},
		{"invalid client", "?code=c&state=s", "s", true, auth.ErrInvalidClient, auth.CodeInvalidClient, 1},
		{"no token", "?code=c&state=s", "s", true, auth.ErrNoToken, auth.CodeNoToken, 1},
		{"other failure", "?code=c&state=s", "s", true, errors.New("network down"), auth.CodeAuthFailed, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, nil)
			e.auth.configured = tt.configured
			e.auth.err = tt.exchange

			var cookies []*http.Cookie
			if tt.state != "" {
				cookies = append(cookies, stateCookie(tt.state))
			}
			w := e.do(http.MethodGet, "/api/auth/callback"+tt.query, "", cookies...)

			if w.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", w.Code)
			}
			want := "http://app.test/auth?error=" + tt.wantCode
			if got := w.Header().Get("Location"); got != want {
				t.Errorf("Location = %q, want %q", got, want)
			}
			if len(e.auth.codes) != tt.wantCalls {
				t.Errorf("exchange calls = %d, want %d", len(e.auth.codes), tt.wantCalls)
			}
			if c := cookieMap(w)[auth.AccessTokenCookie]; c != nil {
				t.Errorf("access cookie set on failure: %+v", c)
			}
		})
	}
}

func TestHandleLogout(t *testing.T) {
	e := newTestEnv(t, nil)

	// Create a mailbox for the identity first.
	if w := e.do(http.MethodGet, "/api/labels", "", accessCookie("tok")); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if e.registry.Len() != 1 {
		t.Fatalf("registry.Len() = %d, want 1", e.registry.Len())
	}

	w := e.do(http.MethodPost, "/api/auth/logout", "", accessCookie("tok"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp MessageResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message != "Logged out successfully" {
		t.Errorf("message = %q", resp.Message)
	}

	cookies := cookieMap(w)
	for _, name := range []string{auth.AccessTokenCookie, auth.RefreshTokenCookie, auth.ExpiryCookie, auth.ScopeCookie} {
		c := cookies[name]
		if c == nil || c.Value != "" || c.MaxAge >= 0 {
			t.Errorf("cookie %s not expired: %+v", name, c)
		}
	}
	if e.registry.Len() != 0 {
		t.Errorf("registry.Len() = %d after logout, want 0", e.registry.Len())
	}
}

func TestHandleToken(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(http.MethodGet, "/api/auth/token", "", accessCookie("tok"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp TokenResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.AccessToken != "tok" {
		t.Errorf("accessToken = %q", resp.AccessToken)
	}

	w = e.do(http.MethodGet, "/api/auth/token", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status without cookie = %d, want 401", w.Code)
	}
}

func TestHandleCheck(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(http.MethodGet, "/api/auth/check", "", accessCookie("tok"))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("check = %d %q, want 200 OK", w.Code, w.Body.String())
	}

	w = e.do(http.MethodGet, "/api/auth/check", "")
	if w.Code != http.StatusUnauthorized || !strings.HasPrefix(w.Body.String(), "Unauthorized") {
		t.Errorf("check without cookie = %d %q", w.Code, w.Body.String())
	}
}

func TestHandleSession(t *testing.T) {
	e := newTestEnv(t, nil)

	tests := []struct {
		name    string
		cookies []*http.Cookie
		want    SessionResponse
	}{
		{
			name: "none",
			want: SessionResponse{State: auth.Unauthenticated},
		},
		{
			name: "authenticated",
			cookies: []*http.Cookie{
				accessCookie("tok"),
				{Name: auth.ExpiryCookie, Value: "4102444800"},
			},
			want: SessionResponse{Authenticated: true, State: auth.Authenticated, ExpiresAt: "2100-01-01T00:00:00Z"},
		},
		{
			name: "scopes",
			cookies: []*http.Cookie{
				accessCookie("tok"),
				{Name: auth.ExpiryCookie, Value: "4102444800"},
				{Name: auth.ScopeCookie, Value: "openid+https%3A%2F%2Fwww.googleapis.com%2Fauth%2Fgmail.modify"},
			},
			want: SessionResponse{
				Authenticated: true,
				State:         auth.Authenticated,
				ExpiresAt:     "2100-01-01T00:00:00Z",
				Scopes:        []string{"openid", "https://www.googleapis.com/auth/gmail.modify"},
			},
		},
		{
			name: "expired",
			cookies: []*http.Cookie{
				accessCookie("tok"),
				{Name: auth.ExpiryCookie, Value: "946684800"},
			},
			want: SessionResponse{State: auth.Expired, ExpiresAt: "2000-01-01T00:00:00Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodGet, "/api/auth/session", "", tt.cookies...)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var got struct {
				Authenticated bool     `json:"authenticated"`
				State         string   `json:"state"`
				ExpiresAt     string   `json:"expiresAt"`
				Scopes        []string `json:"scopes"`
			}
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got.Authenticated != tt.want.Authenticated || got.State != tt.want.State.String() || got.ExpiresAt != tt.want.ExpiresAt {
				t.Errorf("session = %+v, want %+v", got, tt.want)
			}
			if diff := cmp.Diff(tt.want.Scopes, got.Scopes); diff != "" {
				t.Errorf("scopes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
