package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Varun5711/gatekeeper/internal/auth"
	"github.com/Varun5711/gatekeeper/internal/logger"
	"github.com/Varun5711/gatekeeper/internal/service"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "token"

type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	log        *logger.Logger
}

func NewAuthMiddleware(jwtManager *auth.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		log:        logger.New("auth-middleware"),
	}
}

// RequireAuth validates the session cookie and attaches the user id to
// the request context. The token itself is never modified.
func (m *AuthMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			m.unauthenticated(w)
			return
		}

		claims, err := m.jwtManager.ValidateToken(cookie.Value)
		if err != nil {
			m.log.Debug("Rejected session token: %v", err)
			m.unauthenticated(w)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// Business failures always travel as a 200 envelope, unauthenticated
// included.
func (m *AuthMiddleware) unauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": service.UserMessage(service.ErrUnauthenticated),
	})
}

func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// ClientIP resolves the originating address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		return forwarded
	}

	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	return r.RemoteAddr
}
