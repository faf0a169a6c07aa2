// Package auth implements the OAuth2 token lifecycle for the web client:
// code exchange, refresh, scope checks, and the cookie-backed session.
package auth

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// State is the lifecycle stage of a user's credential.
type State int

const (
	Unauthenticated State = iota
	Exchanging
	Authenticated
	Expired
	Refreshed
	Revoked
)

func (s State) String() string {
	switch s {
	case Exchanging:
		return "exchanging"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	case Refreshed:
		return "refreshed"
	case Revoked:
		return "revoked"
	default:
		return "unauthenticated"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Credential is a user's OAuth2 token set as held by the client.
type Credential struct {
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
	Expiry       int64  `json:"expiry,omitempty"` // unix seconds, 0 if unknown
	Scope        string `json:"scope,omitempty"`  // space separated
	TokenType    string `json:"tokenType,omitempty"`
}

// FromToken converts a token endpoint response.
func FromToken(tok *oauth2.Token) *Credential {
	c := &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
	}
	if !tok.Expiry.IsZero() {
		c.Expiry = tok.Expiry.Unix()
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		c.Scope = scope
	}
	return c
}

// Token converts back to an oauth2 token.
func (c *Credential) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
	}
	if c.Expiry != 0 {
		tok.Expiry = time.Unix(c.Expiry, 0)
	}
	return tok
}

// ExpiresWithin reports whether the access token is missing or expires
// before now+skew. An unknown expiry counts as valid.
func (c *Credential) ExpiresWithin(now time.Time, skew time.Duration) bool {
	if c.AccessToken == "" {
		return true
	}
	if c.Expiry == 0 {
		return false
	}
	return !now.Add(skew).Before(time.Unix(c.Expiry, 0))
}

// Scopes splits the granted scope string.
func (c *Credential) Scopes() []string {
	return strings.Fields(c.Scope)
}

// MissingScopes returns the required scopes absent from granted, in the
// order they are required.
func MissingScopes(granted, required []string) []string {
	var missing []string
	for _, s := range required {
		if !slices.Contains(granted, s) {
			missing = append(missing, s)
		}
	}
	return missing
}
