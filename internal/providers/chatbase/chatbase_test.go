package chatbase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"tutorgate/internal/core"
)

func testRequest() *core.ResolvedRequest {
	return &core.ResolvedRequest{
		Prompt:      "What are my office hours?",
		FeatureType: core.FeatureChat,
		Model:       "chatbase-default",
		MaxTokens:   200,
	}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	adapter := New("test-key", "bot-123")
	adapter.SetBaseURL(server.URL)
	return adapter
}

func TestComplete(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("path = %s, want /chat", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["chatbotId"] != "bot-123" {
			t.Errorf("chatbotId = %v", body["chatbotId"])
		}
		if body["stream"] != false {
			t.Errorf("stream = %v, want false", body["stream"])
		}

		w.Write([]byte(`{"text": "Office hours are 9-5."}`))
	})

	resp, err := adapter.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != "Office hours are 9-5." {
		t.Errorf("Content = %q", resp.Content)
	}
	// Chatbase never reports usage; counts stay zero rather than estimated
	if resp.TokensUsed != (core.TokenUsage{}) {
		t.Errorf("TokensUsed = %+v, want zeros", resp.TokensUsed)
	}
	if resp.Provider != core.ProviderChatbase {
		t.Errorf("Provider = %s", resp.Provider)
	}
}

func TestCompleteEmptyText(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := adapter.Complete(context.Background(), testRequest())
	var provErr *core.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Code != core.ErrCodeInvalidResponse {
		t.Errorf("Code = %s, want INVALID_RESPONSE", provErr.Code)
	}
}

func TestStreamComplete(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Error("expected stream: true")
		}
		w.Write([]byte("Office hours"))
	})

	st, err := adapter.StreamComplete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("StreamComplete failed: %v", err)
	}
	defer st.Close()

	var content string
	var final *core.StreamChunk
	for {
		chunk, err := st.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if chunk.Done {
			final = chunk
			break
		}
		content += chunk.Content
	}

	if content != "Office hours" {
		t.Errorf("content = %q", content)
	}
	if final == nil || final.TokensUsed == nil || *final.TokensUsed != (core.TokenUsage{}) {
		t.Errorf("final chunk = %+v, want done with zero usage", final)
	}
}

func TestFunctionCallUnsupported(t *testing.T) {
	adapter := New("test-key", "bot-123")

	_, err := adapter.FunctionCall(context.Background(), testRequest())
	var provErr *core.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Code != core.ErrCodeAPIError {
		t.Errorf("Code = %s, want API_ERROR", provErr.Code)
	}
}
