package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/signalix/emailauth/internal/auth"
	"github.com/signalix/emailauth/internal/logging"
)

type contextKey string

const principalKey contextKey = "principal"

// SessionValidator resolves a bearer token to its principal
type SessionValidator interface {
	Validate(ctx context.Context, token string) (auth.Principal, error)
}

// Authenticate validates the bearer token and attaches the principal to the context
func Authenticate(sessions SessionValidator, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondWithError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Message)
				return
			}

			principal, err := sessions.Validate(r.Context(), token)
			if err != nil {
				var authErr *auth.Error
				if errors.As(err, &authErr) {
					logger.Debug(r.Context(), "bearer token rejected", "kind", authErr.Kind.String(), "error", err)
					respondWithError(w, authErr.Status(), authErr.Message)
					return
				}
				logger.Error(r.Context(), "session validation failed", "error", err)
				respondWithError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// GetPrincipal returns the principal attached by Authenticate
func GetPrincipal(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(auth.Principal)
	return p, ok
}

// WithPrincipal returns a context carrying p, as Authenticate would
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// bearerToken returns the second field of the header. The scheme word is not
// checked, so a garbled token under any scheme still reaches validation.
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]any{"error": message, "status": statusCode}
	_ = json.NewEncoder(w).Encode(response)
}
