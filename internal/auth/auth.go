// Package auth authenticates organizations by passcode.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown organization or wrong passcode
var ErrInvalidCredentials = errors.New("invalid organization credentials")

// HashStore looks up an organization's bcrypt passcode hash
type HashStore interface {
	PasscodeHash(ctx context.Context, orgID string) (string, error)
}

// Authenticator decides whether an organization id and passcode pair is valid
type Authenticator struct {
	store HashStore
}

// NewAuthenticator creates an authenticator backed by store
func NewAuthenticator(store HashStore) *Authenticator {
	return &Authenticator{store: store}
}

// HashPasscode creates a bcrypt hash from a passcode
func HashPasscode(passcode string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	return string(bytes), err
}

// Authenticate reports whether passcode matches the organization's stored hash
func (a *Authenticator) Authenticate(ctx context.Context, orgID, passcode string) error {
	if orgID == "" || passcode == "" {
		return ErrInvalidCredentials
	}
	hash, err := a.store.PasscodeHash(ctx, orgID)
	if err != nil {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(passcode)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

type orgKey struct{}

// OrgID returns the authenticated organization stored on ctx
func OrgID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(orgKey{}).(string)
	return id, ok
}

// WithOrgID returns a context carrying orgID
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgKey{}, orgID)
}

// Middleware requires X-Org-ID plus a bearer passcode on every request.
// When required is non-empty only that organization is admitted.
func (a *Authenticator) Middleware(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := r.Header.Get("X-Org-ID")
			if orgID == "" {
				http.Error(w, "X-Org-ID header required", http.StatusUnauthorized)
				return
			}

			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}

			if required != "" && subtle.ConstantTimeCompare([]byte(orgID), []byte(required)) != 1 {
				http.Error(w, "Unknown organization", http.StatusForbidden)
				return
			}
			if err := a.Authenticate(r.Context(), orgID, parts[1]); err != nil {
				http.Error(w, "Invalid organization credentials", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOrgID(r.Context(), orgID)))
		})
	}
}
