package auth

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Cookie names.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	ExpiryCookie       = "token_expiry"
	ScopeCookie        = "token_scope"
	StateCookie        = "oauth_state"
)

// Cookie lifetimes.
const (
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour
	StateTTL        = 10 * time.Minute
)

// CookieStore keeps the credential in httpOnly, SameSite=Lax cookies. It is
// the only place credentials live between requests.
type CookieStore struct {
	Secure bool
}

func (s CookieStore) cookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl / time.Second)
	} else {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}

// Save writes the credential cookies. A missing refresh token or scope
// leaves the existing cookie alone.
func (s CookieStore) Save(w http.ResponseWriter, cred *Credential) {
	http.SetCookie(w, s.cookie(AccessTokenCookie, cred.AccessToken, AccessTokenTTL))
	if cred.RefreshToken != "" {
		http.SetCookie(w, s.cookie(RefreshTokenCookie, cred.RefreshToken, RefreshTokenTTL))
	}
	if cred.Expiry != 0 {
		http.SetCookie(w, s.cookie(ExpiryCookie, strconv.FormatInt(cred.Expiry, 10), RefreshTokenTTL))
	}
	if cred.Scope != "" {
		http.SetCookie(w, s.cookie(ScopeCookie, url.QueryEscape(cred.Scope), RefreshTokenTTL))
	}
}

// Load reads the credential cookies. ok is false when neither an access nor
// a refresh token is present.
func (s CookieStore) Load(r *http.Request) (cred *Credential, ok bool) {
	cred = &Credential{TokenType: "Bearer"}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		cred.AccessToken = c.Value
	}
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		cred.RefreshToken = c.Value
	}
	if c, err := r.Cookie(ExpiryCookie); err == nil {
		cred.Expiry, _ = strconv.ParseInt(c.Value, 10, 64)
	}
	if c, err := r.Cookie(ScopeCookie); err == nil {
		if scope, err := url.QueryUnescape(c.Value); err == nil {
			cred.Scope = scope
		}
	}
	return cred, cred.AccessToken != "" || cred.RefreshToken != ""
}

// Clear expires every credential cookie.
func (s CookieStore) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, ExpiryCookie, ScopeCookie} {
		http.SetCookie(w, s.cookie(name, "", 0))
	}
}

// SetState stores the OAuth state value for the callback to check.
func (s CookieStore) SetState(w http.ResponseWriter, state string) {
	http.SetCookie(w, s.cookie(StateCookie, state, StateTTL))
}

// CheckState compares the callback's state with the stored one and clears
// the state cookie.
func (s CookieStore) CheckState(w http.ResponseWriter, r *http.Request, state string) error {
	http.SetCookie(w, s.cookie(StateCookie, "", 0))
	c, err := r.Cookie(StateCookie)
	if err != nil || c.Value == "" || state == "" {
		return ErrStateMismatch
	}
	if subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) != 1 {
		return ErrStateMismatch
	}
	return nil
}
