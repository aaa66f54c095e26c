package session

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for scope derivation.
var (
	ErrNoToken   = errors.New("session: token is empty")
	ErrNoSubject = errors.New("session: token has no subject claim")
)

// Scope identifies the session a cache entry belongs to.
// Format: "u:<subject>" or "u:<subject>:w:<workspace>".
type Scope string

// Anonymous is the zero scope, used before any identity is known.
const Anonymous Scope = ""

// NewScope builds a scope from a subject and optional workspace selector.
func NewScope(subject, workspace string) Scope {
	if subject == "" {
		return Anonymous
	}
	if workspace == "" {
		return Scope("u:" + subject)
	}
	return Scope("u:" + subject + ":w:" + workspace)
}

// IsAnonymous reports whether the scope carries no identity.
func (s Scope) IsAnonymous() bool {
	return s == Anonymous
}

// ScopeFromToken derives a scope from an access token's claims.
//
// The token is parsed without signature verification: the dashboard is not the
// token's audience-of-record, it only needs a stable identity string to
// namespace its cache. The subject claim is used, falling back to "user_id"
// for backends that issue it under that name.
func ScopeFromToken(token, workspace string) (Scope, error) {
	if token == "" {
		return Anonymous, ErrNoToken
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Anonymous, err
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		if v, ok := claims["user_id"].(string); ok {
			subject = v
		}
	}
	if subject == "" {
		return Anonymous, ErrNoSubject
	}

	return NewScope(subject, workspace), nil
}
