// Package middleware provides the HTTP middleware stack: session
// authentication, rate limiting and CORS.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/launchbase/console/internal/errors"
	"github.com/launchbase/console/pkg/logger"
)

// Session cookie names set by the identity provider.
const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	emailKey  contextKey = "email"
)

// Claims carries the identity fields the console reads from the access token.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Auth verifies the session cookie pair and puts the caller's identity on
// the request context.
type Auth struct {
	secret []byte
	log    *logger.Logger
}

// NewAuth creates the session middleware.
func NewAuth(jwtSecret string, log *logger.Logger) *Auth {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Auth{secret: []byte(jwtSecret), log: log}
}

// Handler rejects requests without a valid session. Both cookies must be
// present; only the access token is verified here, refresh is the identity
// provider's concern.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access, err := r.Cookie(AccessTokenCookie)
		if err != nil || access.Value == "" {
			a.reject(w, r, "missing session cookies")
			return
		}
		if refresh, err := r.Cookie(RefreshTokenCookie); err != nil || refresh.Value == "" {
			a.reject(w, r, "missing session cookies")
			return
		}

		claims, err := a.validateToken(access.Value)
		if err != nil {
			a.log.WithError(err).WithField("path", r.URL.Path).Warn("session token rejected")
			a.reject(w, r, "invalid session")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
		ctx = context.WithValue(ctx, emailKey, claims.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Unauthorized("unexpected signing method").WithDetails("method", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.Unauthorized("invalid session token")
	}
	return claims, nil
}

func (a *Auth) reject(w http.ResponseWriter, r *http.Request, message string) {
	svcErr := errors.Unauthorized(message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":     false,
		"error":  string(svcErr.Code),
		"detail": svcErr.Message,
	})
}

// GetUserID extracts the authenticated user id from context.
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// GetUserEmail extracts the authenticated user's email from context.
func GetUserEmail(ctx context.Context) string {
	email, _ := ctx.Value(emailKey).(string)
	return email
}

// WithUser returns a context carrying the given identity. Used in tests and
// internal calls.
func WithUser(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, emailKey, email)
}
