package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/thereal-osas/broker-sub006/internal/auth"
	"github.com/thereal-osas/broker-sub006/internal/cache"
	"github.com/thereal-osas/broker-sub006/internal/events"
)

func newTestServer(t *testing.T, config ServerConfig) (*Server, *auth.JWTManager) {
	t.Helper()
	jwtManager := auth.NewJWTManager("test-signing-key", time.Hour)
	server := NewServer(
		config,
		nil,
		nil,
		cache.NewRunSummaryCache(nil, zerolog.Nop()),
		events.NewEventBus(),
		nil,
		jwtManager,
		nil,
		nil,
		nil,
		zerolog.Nop(),
	)
	return server, jwtManager
}

func TestHTTPServerTimeoutsFromConfig(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  42 * time.Second,
		WriteTimeout: 21 * time.Second,
	})

	hs := server.buildHTTPServer()
	if hs.ReadTimeout != 42*time.Second {
		t.Errorf("read timeout = %s, want 42s", hs.ReadTimeout)
	}
	if hs.WriteTimeout != 21*time.Second {
		t.Errorf("write timeout = %s, want 21s", hs.WriteTimeout)
	}

	t.Run("defaults when unset", func(t *testing.T) {
		server, _ := newTestServer(t, ServerConfig{Host: "127.0.0.1"})
		hs := server.buildHTTPServer()
		if hs.ReadTimeout != 15*time.Second || hs.WriteTimeout != 15*time.Second {
			t.Errorf("timeouts = %s/%s, want 15s defaults", hs.ReadTimeout, hs.WriteTimeout)
		}
	})
}

func TestCORSAllowedOriginsFromConfig(t *testing.T) {
	server, _ := newTestServer(t, ServerConfig{
		Host:           "127.0.0.1",
		AllowedOrigins: []string{"http://app.example.com"},
	})

	t.Run("configured origin allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://app.example.com")
		rec := httptest.NewRecorder()
		server.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example.com" {
			t.Errorf("allow-origin = %q, want configured origin", got)
		}
	})

	t.Run("other origin rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://evil.example.com")
		rec := httptest.NewRecorder()
		server.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403 for unlisted origin", rec.Code)
		}
	})
}

func TestLastRunEndpoint(t *testing.T) {
	server, jwtManager := newTestServer(t, ServerConfig{Host: "127.0.0.1"})

	adminToken, err := jwtManager.GenerateAccessToken(auth.UserClaims{
		UserID: "admin-1", Email: "admin@example.com", IsAdmin: true,
	})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	userToken, err := jwtManager.GenerateAccessToken(auth.UserClaims{
		UserID: "u-1", Email: "user@example.com",
	})
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	get := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/distribution-runs/last?class=investment", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		server.router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("admin gets miss when nothing cached", func(t *testing.T) {
		if rec := get(adminToken); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404 on cache miss", rec.Code)
		}
	})

	t.Run("non-admin forbidden", func(t *testing.T) {
		if rec := get(userToken); rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})
}
