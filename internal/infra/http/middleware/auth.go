package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/auditflow/api/pkg/apierror"
	"github.com/auditflow/api/pkg/jwt"
	"github.com/auditflow/api/pkg/logger"
)

// UserIDKey holds the authenticated user id.
const UserIDKey = logger.ContextKeyUserID

// GetUserID extracts the user ID from context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*jwt.Claims, error)
}

// Auth requires a valid bearer token and stores its subject as the user id.
func Auth(verifier TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				RecordAuthFailure("missing_token")
				apierror.Unauthorized("Missing authorization token").WriteJSON(w)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				log.Debug("token validation failed",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				switch {
				case errors.Is(err, jwt.ErrExpiredToken):
					RecordAuthFailure("expired")
					apierror.Unauthorized("Token has expired").WriteJSON(w)
				default:
					RecordAuthFailure("invalid")
					apierror.Unauthorized("Invalid token").WriteJSON(w)
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken reads the Authorization header, falling back to the token
// query parameter which browsers need for websocket upgrades.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
