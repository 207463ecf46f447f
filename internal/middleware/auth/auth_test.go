package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metas/internal/core"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndParse(t *testing.T) {
	v := NewVerifier(testSecret)
	tok, err := Issue(testSecret, core.User{ID: "u-1", Email: "Alice@Example.com"}, time.Hour, time.Now())
	require.NoError(t, err)

	u, err := v.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, core.User{ID: "u-1", Email: "alice@example.com"}, u)
}

func TestParseRejects(t *testing.T) {
	v := NewVerifier(testSecret)
	now := time.Now()
	alice := core.User{ID: "u-1", Email: "alice@example.com"}

	expired, err := Issue(testSecret, alice, time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	wrongKey, err := Issue("another-secret-another-secret-xx", alice, time.Hour, now)
	require.NoError(t, err)
	noSubject, err := Issue(testSecret, core.User{Email: "alice@example.com"}, time.Hour, now)
	require.NoError(t, err)
	badEmail, err := Issue(testSecret, core.User{ID: "u-1", Email: "nope"}, time.Hour, now)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:            "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":     "not.a.token",
		"expired":     expired,
		"wrong key":   wrongKey,
		"no subject":  noSubject,
		"bad email":   badEmail,
		"no expiry":   noExpiry,
		"other alg":   hs512,
		"empty token": "",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Parse(tok)
			assert.ErrorIs(t, err, core.ErrNotAuthenticated)
		})
	}
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(testSecret)
	tok, err := Issue(testSecret, core.User{ID: "u-1", Email: "alice@example.com"}, time.Hour, time.Now())
	require.NoError(t, err)

	var got core.User
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err = UserFromContext(r.Context())
		require.NoError(t, err)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"valid", "Bearer " + tok, http.StatusNoContent},
		{"lowercase scheme", "bearer " + tok, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"basic auth", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"bad token", "Bearer abc", http.StatusUnauthorized},
		{"empty bearer", "Bearer  ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = core.User{}
			req := httptest.NewRequest(http.MethodGet, "/api/goals", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"unauthenticated"`)
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
				assert.Empty(t, got.ID)
			} else {
				assert.Equal(t, "u-1", got.ID)
			}
		})
	}
}

func TestUserFromContext(t *testing.T) {
	_, err := UserFromContext(context.Background())
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)

	u, err := UserFromContext(WithUser(context.Background(), core.User{ID: "u-2"}))
	require.NoError(t, err)
	assert.Equal(t, "u-2", u.ID)
}
