package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia/wallet-service/internal/config"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, subject, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func authedHandler(t *testing.T, cfg *config.Config, gotUserID *string) http.Handler {
	t.Helper()
	return AuthMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotUserID = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMiddleware_AcceptsValidBearerToken(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	var gotUserID string
	handler := authedHandler(t, cfg, &gotUserID)

	req := httptest.NewRequest(http.MethodGet, "/wallets", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, "u1", testSecret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUserID != "u1" {
		t.Fatalf("expected subject u1 in context, got %q", gotUserID)
	}
}

func TestAuthMiddleware_RejectsBadSignature(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	var gotUserID string
	handler := authedHandler(t, cfg, &gotUserID)

	req := httptest.NewRequest(http.MethodGet, "/wallets", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, "u1", "other-secret"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
	if gotUserID != "" {
		t.Fatal("expected handler not to be reached")
	}
}

func TestAuthMiddleware_RejectsNonHS256Method(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	var gotUserID string
	handler := authedHandler(t, cfg, &gotUserID)

	req := httptest.NewRequest(http.MethodGet, "/wallets", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS512, "u1", testSecret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for HS512 token, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RejectsTokenWithoutSubject(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	var gotUserID string
	handler := authedHandler(t, cfg, &gotUserID)

	req := httptest.NewRequest(http.MethodGet, "/wallets", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, "", testSecret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for empty subject, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RejectsMalformedAuthorizationHeader(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	var gotUserID string
	handler := authedHandler(t, cfg, &gotUserID)

	for _, header := range []string{"Basic abc", "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/wallets", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for header %q, got %d", header, rec.Code)
		}
	}
}

func TestAuthMiddleware_MissingCredentialsIsUnauthorized(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	var gotUserID string
	handler := authedHandler(t, cfg, &gotUserID)

	req := httptest.NewRequest(http.MethodGet, "/wallets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}
}

func TestAuthMiddleware_HeaderFallbackHonorsConfig(t *testing.T) {
	var gotUserID string

	// Disabled by default: the header alone is not enough.
	handler := authedHandler(t, &config.Config{JWTSecret: testSecret}, &gotUserID)
	req := httptest.NewRequest(http.MethodGet, "/wallets", nil)
	req.Header.Set("X-User-Id", "u1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with fallback disabled, got %d", rec.Code)
	}

	// Enabled: the header identifies the user.
	handler = authedHandler(t, &config.Config{JWTSecret: testSecret, AllowHeaderAuth: true}, &gotUserID)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with fallback enabled, got %d", rec.Code)
	}
	if gotUserID != "u1" {
		t.Fatalf("expected header user in context, got %q", gotUserID)
	}
}

func TestAuthMiddleware_BearerTokenWinsOverHeaderFallback(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret, AllowHeaderAuth: true}
	var gotUserID string
	handler := authedHandler(t, cfg, &gotUserID)

	req := httptest.NewRequest(http.MethodGet, "/wallets", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, "token-user", testSecret))
	req.Header.Set("X-User-Id", "header-user")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotUserID != "token-user" {
		t.Fatalf("expected token subject to win, got %q", gotUserID)
	}
}
