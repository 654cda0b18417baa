package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func mustToken(t *testing.T, tenantID string, roles []string, secret []byte) string {
	t.Helper()
	claims := Claims{
		TenantID: tenantID,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestMiddleware(t *testing.T) *Middleware {
	t.Helper()
	authorizer, err := NewAuthorizer([]string{"monitoring-user", "admin"})
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}
	policy := NewDefaultPolicy([]string{"/healthz"}, nil)
	return NewMiddleware(testSecret, policy, authorizer)
}

func echoIdentity(t *testing.T, captured *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = TenantIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAllowsValidToken(t *testing.T) {
	middleware := newTestMiddleware(t)
	var tenant string
	handler := middleware.Wrap(echoIdentity(t, &tenant))

	req := httptest.NewRequest(http.MethodGet, "/v2.0/alarms", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, "t-1", []string{"monitoring-user"}, testSecret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if tenant != "t-1" {
		t.Fatalf("expected tenant in context, got %q", tenant)
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	middleware := newTestMiddleware(t)
	var tenant string
	handler := middleware.Wrap(echoIdentity(t, &tenant))

	req := httptest.NewRequest(http.MethodGet, "/v2.0/alarms", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	middleware := newTestMiddleware(t)
	handler := middleware.Wrap(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/v2.0/alarms", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, "t-1", []string{"monitoring-user"}, []byte("other-secret")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsUnauthorizedRole(t *testing.T) {
	middleware := newTestMiddleware(t)
	handler := middleware.Wrap(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/v2.0/alarms", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, "t-1", []string{"spectator"}, testSecret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareExemptPath(t *testing.T) {
	middleware := newTestMiddleware(t)
	handler := middleware.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected exempt path to skip auth, got %d", rec.Code)
	}
}

func TestParseJWTRequiresTenantAndRoles(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := ParseJWT(signed, testSecret); err == nil {
		t.Fatal("expected error for missing tenant_id")
	}
}

func TestAuthorizer(t *testing.T) {
	authorizer, err := NewAuthorizer([]string{"admin"})
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}
	if err := authorizer.Authorize([]string{"admin", "other"}); err != nil {
		t.Fatalf("expected admin authorized: %v", err)
	}
	if err := authorizer.Authorize([]string{"other"}); err == nil {
		t.Fatal("expected forbidden")
	}
	if _, err := NewAuthorizer(nil); err == nil {
		t.Fatal("expected error for empty role list")
	}
}
