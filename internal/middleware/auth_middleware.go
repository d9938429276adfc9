package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clubmember/clubmember/internal/service"
)

type contextKey string

const claimsKey contextKey = "claims"

// MemberClaims returns the access-token claims stored by RequireAuth or
// OptionalAuth, or nil when the request is unauthenticated.
func MemberClaims(ctx context.Context) *service.Claims {
	claims, _ := ctx.Value(claimsKey).(*service.Claims)
	return claims
}

type AuthMiddleware struct {
	jwtService *service.JWTService
	logger     *logrus.Logger
}

func NewAuthMiddleware(jwtService *service.JWTService, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		logger:     logger,
	}
}

// RequireAuth rejects requests without a valid access token.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.bearerClaims(r)
		if !ok {
			m.respondUnauthorized(w, "Invalid or missing access token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// OptionalAuth attaches claims when a valid access token is present and
// passes the request through either way. Checkout uses this: guests
// verify by token, logged-in members may skip the OTP for an
// already-verified phone.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := m.bearerClaims(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) bearerClaims(r *http.Request) (*service.Claims, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}

	claims, err := m.jwtService.VerifyToken(parts[1])
	if err != nil {
		m.logger.WithError(err).Debug("Token verification failed")
		return nil, false
	}

	if claims.Type != "access" {
		return nil, false
	}

	return claims, true
}

func (m *AuthMiddleware) respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"` + message + `"}}`))
}
