// Package auth resolves bearer credentials to user ids. Credential
// issuance lives outside this system; the engine only verifies what it
// is handed and fails closed when verification is impossible.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/aman-app/aman/pkg/errdefs"
)

// Verifier resolves a bearer token to the owning user id.
type Verifier interface {
	Verify(token string) (string, error)
}

// StaticVerifier maps tokens to user ids. Suitable for tests and
// single-tenant deployments; production wires a real identity provider
// behind the same interface.
type StaticVerifier map[string]string

func (v StaticVerifier) Verify(token string) (string, error) {
	userID, ok := v[token]
	if !ok {
		return "", errdefs.Authorization("unknown bearer token")
	}
	return userID, nil
}

type contextKey struct{}

// UserID extracts the authenticated user id from a request context.
func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(contextKey{}).(string)
	return userID
}

// WithUserID returns a context carrying the authenticated user id.
// Exposed for tests that exercise handlers directly.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// Middleware authenticates the bearer credential on every request and
// rejects requests it cannot verify.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, `{"error":"unauthorized","reason":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}
			userID, err := v.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"unauthorized","reason":"invalid bearer token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
