package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, nil, &Config{
		MasterKey:      "secret-key",
		MetricsEnabled: true,
	})

	do := func(path, method, auth string) int {
		var req *http.Request
		if method == http.MethodPost {
			req = httptest.NewRequest(method, path, strings.NewReader(`{"prompt":"hi","feature_type":"chat"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-User-ID", "user-1")
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("missing header", func(t *testing.T) {
		if got := do("/v1/complete", http.MethodPost, ""); got != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", got)
		}
	})

	t.Run("wrong scheme", func(t *testing.T) {
		if got := do("/v1/complete", http.MethodPost, "Basic secret-key"); got != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", got)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		if got := do("/v1/complete", http.MethodPost, "Bearer wrong"); got != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", got)
		}
	})

	t.Run("valid key", func(t *testing.T) {
		if got := do("/v1/complete", http.MethodPost, "Bearer secret-key"); got != http.StatusOK {
			t.Errorf("status = %d, want 200", got)
		}
	})

	t.Run("health stays public", func(t *testing.T) {
		if got := do("/health", http.MethodGet, ""); got != http.StatusOK {
			t.Errorf("status = %d, want 200", got)
		}
	})

	t.Run("metrics stays public", func(t *testing.T) {
		if got := do("/metrics", http.MethodGet, ""); got != http.StatusOK {
			t.Errorf("status = %d, want 200", got)
		}
	})
}

func TestNoAuthWhenMasterKeyUnset(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/complete",
		strings.NewReader(`{"prompt":"hi","feature_type":"chat"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 without auth", rec.Code)
	}
}
