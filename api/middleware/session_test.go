package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lucasmartinez/tienda-backend/pkg/config"
)

func sessionCfg() config.SessionConfig {
	return config.SessionConfig{CookieName: "tienda_session", TTL: 24 * time.Hour}
}

func TestSessionMintsCookieForNewVisitor(t *testing.T) {
	var seen string
	handler := Session(sessionCfg(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if seen == "" {
		t.Fatal("expected session id in context")
	}
	cookies := resp.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "tienda_session" {
		t.Fatalf("expected tienda_session cookie, got %v", cookies)
	}
	if cookies[0].Value != seen {
		t.Fatal("cookie value should match context session id")
	}
}

func TestSessionReusesExistingCookie(t *testing.T) {
	var seen string
	handler := Session(sessionCfg(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "tienda_session", Value: "existing-id"})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if seen != "existing-id" {
		t.Fatalf("expected existing-id got %s", seen)
	}
	if len(resp.Result().Cookies()) != 0 {
		t.Fatal("should not re-set the cookie")
	}
}
