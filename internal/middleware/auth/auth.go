// Package auth verifies the HS256 bearer tokens that identify API callers.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"metas/internal/core"
	"metas/internal/log"
)

type contextKey struct{}

const leeway = 30 * time.Second

// Claims are the token fields the API reads. Subject is the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(leeway),
			jwt.WithExpirationRequired(),
		),
	}
}

// Issue signs a token for u valid for ttl from now.
func Issue(secret string, u core.User, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns the user it names.
func (v *Verifier) Parse(token string) (core.User, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return core.User{}, fmt.Errorf("%w: %w", core.ErrNotAuthenticated, err)
	}
	if claims.Subject == "" {
		return core.User{}, fmt.Errorf("%w: token has no subject", core.ErrNotAuthenticated)
	}
	email, err := core.NormalizeEmail(claims.Email)
	if err != nil {
		return core.User{}, fmt.Errorf("%w: token email: %w", core.ErrNotAuthenticated, err)
	}
	return core.User{ID: claims.Subject, Email: email}, nil
}

// Middleware rejects requests without a valid bearer token and puts the
// caller into the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			unauthorized(w, "missing bearer token")
			return
		}
		u, err := v.Parse(token)
		if err != nil {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).
				Warn("Rejected bearer token", log.FieldError, err, log.FieldPath, r.URL.Path)
			unauthorized(w, "invalid bearer token")
			return
		}
		logger := log.FromContext(r.Context()).With(log.FieldUserID, u.ID)
		ctx := context.WithValue(r.Context(), log.LoggerContextKey, logger)
		next.ServeHTTP(w, r.WithContext(WithUser(ctx, u)))
	})
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="metas"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": "unauthenticated", "message": msg},
	})
}

func WithUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFromContext returns the caller set by Middleware.
func UserFromContext(ctx context.Context) (core.User, error) {
	u, ok := ctx.Value(contextKey{}).(core.User)
	if !ok || u.ID == "" {
		return core.User{}, core.ErrNotAuthenticated
	}
	return u, nil
}
