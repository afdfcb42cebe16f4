package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/better-wallet/delegate-recovery/pkg/errors"
)

// AppSecretHeader carries the operator secret
const AppSecretHeader = "X-App-Secret"

// AppAuth guards the operator API with a single shared secret whose bcrypt
// hash is configured. Both the X-App-Secret header and a bearer token are
// accepted.
type AppAuth struct {
	secretHash []byte
}

// NewAppAuth creates the middleware from a bcrypt hash. An empty hash
// disables authentication.
func NewAppAuth(secretHash string) *AppAuth {
	return &AppAuth{secretHash: []byte(secretHash)}
}

// Enabled reports whether a secret is required
func (a *AppAuth) Enabled() bool {
	return len(a.secretHash) > 0
}

// Authenticate rejects requests without a matching secret
func (a *AppAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		secret := r.Header.Get(AppSecretHeader)
		if secret == "" {
			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				secret = token
			}
		}
		if secret == "" {
			WriteError(w, apperrors.NewWithDetail(
				apperrors.ErrCodeUnauthorized,
				"Missing app credentials",
				"Provide X-App-Secret or a bearer token",
				http.StatusUnauthorized,
			))
			return
		}

		if err := bcrypt.CompareHashAndPassword(a.secretHash, []byte(secret)); err != nil {
			WriteError(w, apperrors.New(apperrors.ErrCodeUnauthorized, "Invalid app credentials", http.StatusUnauthorized))
			return
		}

		// Keep the secret out of downstream logs.
		r.Header.Del(AppSecretHeader)
		r.Header.Del("Authorization")
		next.ServeHTTP(w, r)
	})
}
