package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

type fakeRefresher struct {
	cred  *Credential
	err   error
	calls []string
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	f.calls = append(f.calls, refreshToken)
	return f.cred, f.err
}

var sessionNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func requestWith(cookies map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/emails", nil)
	for name, value := range cookies {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return r
}

func unix(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }

func newTestSessions(ref Refresher) *Sessions {
	s := NewSessions(CookieStore{}, ref, nil)
	s.now = func() time.Time { return sessionNow }
	return s
}

func TestSessions_Resolve(t *testing.T) {
	refreshed := &Credential{AccessToken: "new", RefreshToken: "r", Expiry: sessionNow.Add(time.Hour).Unix()}

	tests := []struct {
		name      string
		cookies   map[string]string
		refresher *fakeRefresher
		wantState State
		wantErr   error
		wantToken string
	}{
		{
			name:      "NoCookies",
			cookies:   nil,
			refresher: &fakeRefresher{},
			wantState: Unauthenticated,
			wantErr:   ErrNoSession,
		},
		{
			name:      "Valid",
			cookies:   map[string]string{AccessTokenCookie: "a", ExpiryCookie: unix(sessionNow.Add(30 * time.Minute))},
			refresher: &fakeRefresher{},
			wantState: Authenticated,
			wantToken: "a",
		},
		{
			name:      "UnknownExpiry",
			cookies:   map[string]string{AccessTokenCookie: "a"},
			refresher: &fakeRefresher{},
			wantState: Authenticated,
			wantToken: "a",
		},
		{
			name:      "WithinSkewRefreshes",
			cookies:   map[string]string{AccessTokenCookie: "a", RefreshTokenCookie: "r", ExpiryCookie: unix(sessionNow.Add(30 * time.Second))},
			refresher: &fakeRefresher{cred: refreshed},
			wantState: Refreshed,
			wantToken: "new",
		},
		{
			name:      "AccessCookieGone",
			cookies:   map[string]string{RefreshTokenCookie: "r"},
			refresher: &fakeRefresher{cred: refreshed},
			wantState: Refreshed,
			wantToken: "new",
		},
		{
			name:      "ExpiredNoRefreshToken",
			cookies:   map[string]string{AccessTokenCookie: "a", ExpiryCookie: unix(sessionNow.Add(-time.Minute))},
			refresher: &fakeRefresher{},
			wantState: Expired,
			wantErr:   ErrExpired,
		},
		{
			name:      "RefreshFails",
			cookies:   map[string]string{AccessTokenCookie: "a", RefreshTokenCookie: "r", ExpiryCookie: unix(sessionNow.Add(-time.Minute))},
			refresher: &fakeRefresher{err: ErrInvalidGrant},
			wantState: Expired,
			wantErr:   ErrExpired,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSessions(tc.refresher)
			w := httptest.NewRecorder()

			sess, err := s.Resolve(w, requestWith(tc.cookies))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tc.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if sess.State != tc.wantState {
				t.Errorf("State = %v, want %v", sess.State, tc.wantState)
			}
			if tc.wantToken != "" && sess.Credential.AccessToken != tc.wantToken {
				t.Errorf("AccessToken = %q, want %q", sess.Credential.AccessToken, tc.wantToken)
			}

			if tc.wantState == Refreshed {
				if got := cookieValue(w.Result().Cookies(), AccessTokenCookie); got != "new" {
					t.Errorf("refreshed access cookie = %q, want %q", got, "new")
				}
			}
		})
	}
}

func TestSessions_RefreshKeepsRefreshToken(t *testing.T) {
	ref := &fakeRefresher{cred: &Credential{AccessToken: "new", RefreshToken: "r"}}
	s := newTestSessions(ref)

	sess, err := s.Resolve(httptest.NewRecorder(), requestWith(map[string]string{RefreshTokenCookie: "r"}))
	if err != nil {
		t.Fatal(err)
	}
	if sess.Credential.RefreshToken != "r" {
		t.Errorf("RefreshToken = %q, want r", sess.Credential.RefreshToken)
	}
	if len(ref.calls) != 1 || ref.calls[0] != "r" {
		t.Errorf("refresh calls = %v", ref.calls)
	}
}

func TestSessions_RefreshKeepsScope(t *testing.T) {
	tests := []struct {
		name  string
		fresh string
		want  string
	}{
		{"Omitted", "", "openid email"},
		{"Replaced", "openid", "openid"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ref := &fakeRefresher{cred: &Credential{AccessToken: "new", RefreshToken: "r", Scope: tc.fresh}}
			s := newTestSessions(ref)
			w := httptest.NewRecorder()

			sess, err := s.Resolve(w, requestWith(map[string]string{RefreshTokenCookie: "r", ScopeCookie: "openid+email"}))
			if err != nil {
				t.Fatal(err)
			}
			if sess.Credential.Scope != tc.want {
				t.Errorf("Scope = %q, want %q", sess.Credential.Scope, tc.want)
			}
			if got := cookieValue(w.Result().Cookies(), ScopeCookie); got == "" {
				t.Error("scope cookie not rewritten")
			}
		})
	}
}

func TestSessions_Revoke(t *testing.T) {
	s := newTestSessions(nil)
	w := httptest.NewRecorder()

	if sess := s.Revoke(w); sess.State != Revoked {
		t.Errorf("State = %v, want revoked", sess.State)
	}
	cleared := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		if c.MaxAge >= 0 || c.Value != "" {
			t.Errorf("cookie %s not expired: %+v", c.Name, c)
		}
		cleared[c.Name] = true
	}
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, ExpiryCookie, ScopeCookie} {
		if !cleared[name] {
			t.Errorf("cookie %s not cleared", name)
		}
	}
}

func cookieValue(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
