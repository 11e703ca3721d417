package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tutorgate/internal/aicache"
	"tutorgate/internal/core"
	"tutorgate/internal/providers"
	"tutorgate/internal/providers/mock"
	"tutorgate/internal/quota"
	"tutorgate/internal/service"
	"tutorgate/internal/usage"
)

func newTestServer(t *testing.T, limits map[core.FeatureType]quota.Limits, cfg *Config) (*Server, *mock.Adapter) {
	t.Helper()

	adapter := mock.New()
	store := usage.NewMemoryStore()
	svc := service.New(
		providers.NewRegistry(adapter),
		nil,
		quota.NewManager(quota.NewMemoryStore(), limits),
		usage.NewLogger(store, usage.Config{Enabled: true, BufferSize: 10}),
		store,
		service.Config{
			Features: map[core.FeatureType]service.FeatureConfig{
				core.FeatureChat: {Provider: core.ProviderMock, Model: "mock-model", MaxTokens: 256},
			},
		},
	)
	t.Cleanup(func() { _ = svc.Close() })
	return New(svc, cfg), adapter
}

func postJSON(srv *Server, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestCompleteEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := postJSON(srv, "/v1/complete", "user-1",
		`{"prompt":"explain recursion","feature_type":"chat"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp core.CompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Content == "" {
		t.Error("expected content in response")
	}
	if resp.Provider != core.ProviderMock {
		t.Errorf("provider = %q, want mock", resp.Provider)
	}
	if resp.CacheHit {
		t.Error("first call should not be a cache hit")
	}
}

func TestCompleteRequiresUserID(t *testing.T) {
	srv, adapter := newTestServer(t, nil, nil)

	rec := postJSON(srv, "/v1/complete", "",
		`{"prompt":"hello","feature_type":"chat"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if adapter.CallCount() != 0 {
		t.Error("request without user must not reach the adapter")
	}
}

func TestCompleteRejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	cases := []struct {
		name string
		body string
	}{
		{"empty prompt", `{"feature_type":"chat"}`},
		{"unknown feature", `{"prompt":"hi","feature_type":"bogus"}`},
		{"malformed json", `{"prompt":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(srv, "/v1/complete", "user-1", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestQuotaExceededReturns429(t *testing.T) {
	srv, _ := newTestServer(t, map[core.FeatureType]quota.Limits{
		core.FeatureChat: {MaxRequests: 1},
	}, nil)

	body := `{"prompt":"hello","feature_type":"chat"}`
	if rec := postJSON(srv, "/v1/complete", "user-1", body); rec.Code != http.StatusOK {
		t.Fatalf("first call status = %d", rec.Code)
	}

	rec := postJSON(srv, "/v1/complete", "user-1", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429; body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			ResetAt string `json:"reset_at"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if payload.Error.Type != "quota_exceeded" {
		t.Errorf("error type = %q", payload.Error.Type)
	}
	if payload.Error.ResetAt == "" {
		t.Error("expected reset_at in quota error")
	}
}

func TestStreamEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := postJSON(srv, "/v1/complete/stream", "user-1",
		`{"prompt":"stream me","feature_type":"chat"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	var sawDone, sawTerminator bool
	var content strings.Builder
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			sawTerminator = true
			continue
		}
		var chunk core.StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			t.Fatalf("invalid chunk %q: %v", data, err)
		}
		content.WriteString(chunk.Content)
		if chunk.Done {
			sawDone = true
			if chunk.TokensUsed == nil {
				t.Error("done chunk should carry usage")
			}
		}
	}
	if !sawDone || !sawTerminator {
		t.Errorf("stream incomplete: done=%v terminator=%v", sawDone, sawTerminator)
	}
	if content.Len() == 0 {
		t.Error("expected streamed content")
	}
}

func TestFunctionCallEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := postJSON(srv, "/v1/function-call", "user-1",
		`{"prompt":"weather in Oslo","feature_type":"chat","functions":[{"name":"get_weather","parameters":"{\"type\":\"object\"}"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result core.FunctionCallResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if result.FunctionName != "get_weather" {
		t.Errorf("function name = %q", result.FunctionName)
	}
}

func TestFunctionCallWithoutFunctions(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := postJSON(srv, "/v1/function-call", "user-1",
		`{"prompt":"hi","feature_type":"chat"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUsageStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	if rec := postJSON(srv, "/v1/complete", "user-1",
		`{"prompt":"hello","feature_type":"chat"}`); rec.Code != http.StatusOK {
		t.Fatalf("seed request failed: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/usage/stats?days=7", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var stats core.UsageStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid stats body: %v", err)
	}
}

func TestUsageStatsRejectsBadDays(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/usage/stats?days=banana", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRequestIDEchoedBack(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-abc-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-abc-123" {
		t.Errorf("X-Request-ID = %q, want req-abc-123", got)
	}

	// Generated when absent
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}
}

func TestCacheInvalidateEndpoint(t *testing.T) {
	adapter := mock.New()
	store := usage.NewMemoryStore()
	svc := service.New(
		providers.NewRegistry(adapter),
		aicache.New(aicache.NewMemoryStore(), nil),
		quota.NewManager(quota.NewMemoryStore(), nil),
		usage.NewLogger(store, usage.Config{Enabled: true, BufferSize: 10}),
		store,
		service.Config{
			Features: map[core.FeatureType]service.FeatureConfig{
				core.FeatureChat: {Provider: core.ProviderMock, Model: "mock-model", CacheEnabled: true},
			},
		},
	)
	t.Cleanup(func() { _ = svc.Close() })
	srv := New(svc, nil)

	if rec := postJSON(srv, "/v1/complete", "user-1", `{"prompt":"hi","feature_type":"chat"}`); rec.Code != http.StatusOK {
		t.Fatalf("seed request failed: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/v1/cache/chat", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Removed int64 `json:"removed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body.Removed != 1 {
		t.Errorf("removed = %d, want 1", body.Removed)
	}

	// The same prompt must reach the provider again
	if rec := postJSON(srv, "/v1/complete", "user-1", `{"prompt":"hi","feature_type":"chat"}`); rec.Code != http.StatusOK {
		t.Fatalf("post-invalidation request failed: %d", rec.Code)
	}
	if got := adapter.CallCount(); got != 2 {
		t.Errorf("adapter calls = %d, want 2 after invalidation", got)
	}
}

func TestCacheInvalidateRejectsUnknownFeature(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/v1/cache/bogus", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
