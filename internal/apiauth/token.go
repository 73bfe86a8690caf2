// Package apiauth authenticates bearer tokens presented to the read-only
// Alerts API and throttles them per identity.
package apiauth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Token is a single configured API credential. Secret holds the bcrypt
// hash, never the raw token value.
type Token struct {
	Name   string `yaml:"name"`
	Secret string `yaml:"secret_hash"`
}

// StaticAuthenticator checks a presented bearer token against a set of
// bcrypt-hashed credentials loaded from configuration.
type StaticAuthenticator struct {
	tokens []Token
}

// NewStaticAuthenticator builds an authenticator from configured tokens.
func NewStaticAuthenticator(tokens []Token) *StaticAuthenticator {
	return &StaticAuthenticator{tokens: tokens}
}

// Authenticate compares raw against every configured hash and returns the
// matching token's name. Iterating the whole set (rather than an indexed
// lookup) keeps timing independent of which credential, if any, matches.
func (a *StaticAuthenticator) Authenticate(raw string) (name string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, t := range a.tokens {
		if bcrypt.CompareHashAndPassword([]byte(t.Secret), []byte(raw)) == nil {
			name, ok = t.Name, true
		}
	}
	return name, ok
}

// HashToken returns the bcrypt hash of a raw token, for use when
// provisioning a new credential into configuration.
func HashToken(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}
