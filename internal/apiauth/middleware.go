package apiauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// Authenticator validates a bearer token, either a signed JWT or a static
// pre-shared token hashed with bcrypt, and returns the caller's identity.
type Authenticator struct {
	jwt    *JWTService
	static *StaticAuthenticator
}

// NewAuthenticator builds an Authenticator from a JWT service and a static
// token set. Either may be nil to disable that scheme.
func NewAuthenticator(jwt *JWTService, static *StaticAuthenticator) *Authenticator {
	return &Authenticator{jwt: jwt, static: static}
}

// Authenticate tries the JWT scheme first, then falls back to a static
// bcrypt-hashed token match.
func (a *Authenticator) Authenticate(bearer string) (identity string, ok bool) {
	if a.jwt != nil {
		if claims, err := a.jwt.ValidateToken(bearer); err == nil {
			return claims.Subject, true
		}
	}
	if a.static != nil {
		if name, found := a.static.Authenticate(bearer); found {
			return name, true
		}
	}
	return "", false
}

func jsonUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": "UNAUTHORIZED", "message": "invalid or missing bearer token"},
	})
}

func jsonRateLimited(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": "RATE_LIMITED", "message": "too many requests"},
	})
}

// RequireBearer returns middleware that authenticates the Authorization
// header and stores the resolved identity in the request context.
func RequireBearer(auth *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				jsonUnauthorized(w)
				return
			}

			identity, ok := auth.Authenticate(strings.TrimSpace(parts[1]))
			if !ok {
				jsonUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitByIdentity returns middleware that throttles requests by the
// identity RequireBearer placed in context.
func RateLimitByIdentity(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := Identity(r.Context())
			if identity == "" {
				identity = r.RemoteAddr
			}
			if !limiter.Allow(identity) {
				jsonRateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Identity returns the authenticated caller's identity from context, or
// the empty string if none was set.
func Identity(ctx context.Context) string {
	if v := ctx.Value(identityKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
