// Package middleware provides the HTTP middleware chain: authentication,
// CORS, rate limiting, metrics and request logging.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/handcrafted-haven/marketplace/internal/errors"
	"github.com/handcrafted-haven/marketplace/internal/httputil"
	"github.com/handcrafted-haven/marketplace/internal/logging"
)

type contextKey string

// accessTokenKey carries the raw bearer token so backend calls can run
// under the caller's identity and row-level security applies to them.
const accessTokenKey contextKey = "access_token"

// Claims are the backend-issued access token claims. The subject is the
// auth user id.
type Claims struct {
	Email        string                 `json:"email,omitempty"`
	Role         string                 `json:"role,omitempty"`
	AppMetadata  map[string]interface{} `json:"app_metadata,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies backend-issued access tokens.
type AuthMiddleware struct {
	secret []byte
	logger *logging.Logger
}

// NewAuthMiddleware creates an authentication middleware for the given
// GoTrue JWT secret.
func NewAuthMiddleware(jwtSecret string, logger *logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(jwtSecret), logger: logger}
}

// Required rejects requests that do not carry a valid bearer token.
func (m *AuthMiddleware) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			m.respondError(w, r, errors.Unauthorized("Authentication required"))
			return
		}

		claims, err := m.validateToken(tokenString)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), claims, tokenString)))
	})
}

// Optional attaches identity when a valid token is present and lets
// anonymous requests through. A malformed token is still rejected rather
// than silently treated as anonymous.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.validateToken(tokenString)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), claims, tokenString)))
	})
}

// validateToken parses and verifies an access token.
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing subject")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	m.logger.LogSecurityEvent(r.Context(), "authentication_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	})

	httputil.WriteError(w, serviceErr)
}

func withIdentity(ctx context.Context, claims *Claims, tokenString string) context.Context {
	ctx = context.WithValue(ctx, logging.UserIDKey, claims.Subject)
	if claims.Role != "" {
		ctx = context.WithValue(ctx, logging.RoleKey, claims.Role)
	}
	return context.WithValue(ctx, accessTokenKey, tokenString)
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetUserID extracts the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetAccessToken extracts the caller's raw access token from context.
func GetAccessToken(ctx context.Context) string {
	if v, ok := ctx.Value(accessTokenKey).(string); ok {
		return v
	}
	return ""
}
