// AngelaMos | 2026
// auth_test.go

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carterperez-dev/templates/ordering-auth/internal/core"
)

type stubVerifier map[string]*SessionClaims

func (s stubVerifier) VerifySession(_ context.Context, token string) (*SessionClaims, error) {
	if token == "expired" {
		return nil, fmt.Errorf("verify: %w", core.ErrTokenExpired)
	}
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("verify: %w", core.ErrTokenInvalid)
}

var verifier = stubVerifier{
	"admin-token": {UserID: "u-1", Role: "admin"},
	"user-token":  {UserID: "u-2", Role: "user"},
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetUserID(r.Context()) + ":" + GetUserRole(r.Context())))
	})
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"cookie", "abc", "", "abc"},
		{"cookie wins over header", "abc", "Bearer xyz", "abc"},
		{"bearer header", "", "Bearer xyz", "xyz"},
		{"case insensitive scheme", "", "bearer xyz", "xyz"},
		{"other scheme", "", "Basic xyz", ""},
		{"nothing", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: "token", Value: tt.cookie})
			}
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, ExtractToken(r, "token"))
		})
	}
}

func TestAuthenticator(t *testing.T) {
	h := Authenticator(verifier, "token")(echoUser())

	tests := []struct {
		name     string
		cookie   string
		wantCode int
		wantBody string
	}{
		{"valid session", "user-token", http.StatusOK, "u-2:user"},
		{"missing", "", http.StatusUnauthorized, "missing session"},
		{"logged out marker", "logout", http.StatusUnauthorized, ""},
		{"expired", "expired", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: "token", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	h := OptionalAuth(verifier, "token")(echoUser())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ":", rec.Body.String())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "token", Value: "garbage"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ":", rec.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	h := Authenticator(verifier, "token")(RequireAdmin(echoUser()))

	for token, want := range map[string]int{
		"admin-token": http.StatusOK,
		"user-token":  http.StatusForbidden,
	} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, want, rec.Code, token)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}
