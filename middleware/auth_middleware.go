package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/internal/observability"
	"github.com/openhumans/loggather/utils"
)

// TokenValidator defines the interface for validating session tokens
type TokenValidator interface {
	// ValidateToken validates a session token and returns claims
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// sessionCookieName is set by the auth handler after the OAuth callback
const sessionCookieName = "session"

// RequireAuth is a middleware that requires a valid session token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := observability.LoggerFrom(ctx, m.logger)

		token := extractToken(r)
		if token == "" {
			log.Debug("no session token on request")
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			log.Warn("session validation failed", zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired session")
			return
		}

		ctx = WithClaims(ctx, claims)

		log.Debug("session accepted", zap.String("member_id", claims.Sub))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractMember is a middleware that puts the member ID from the claims on
// the context. This should be called after RequireAuth
func (m *AuthMiddleware) ExtractMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := observability.LoggerFrom(ctx, m.logger)

		claims := GetClaimsFromContext(ctx)
		if claims == nil {
			log.Error("ExtractMember used without RequireAuth")
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		memberID, err := uuid.Parse(claims.Sub)
		if err != nil {
			log.Error("session subject is not a member id",
				zap.String("sub", claims.Sub), zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid session")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithMemberID(ctx, memberID)))
	})
}

// extractToken extracts the session token from the Authorization header
// ("Bearer TOKEN") or the session cookie. The header takes precedence.
func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
