package anthropic

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
		Prompt:      "Summarize chapter 3",
		FeatureType: core.FeatureStudyCoach,
		Model:       "claude-3-5-haiku",
		MaxTokens:   400,
	}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	adapter := New("test-key")
	adapter.SetBaseURL(server.URL)
	return adapter
}

func TestComplete(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s, want /messages", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != apiVersion {
			t.Errorf("anthropic-version = %q", got)
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["max_tokens"] != float64(400) {
			t.Errorf("max_tokens = %v", body["max_tokens"])
		}

		w.Write([]byte(`{
			"model": "claude-3-5-haiku",
			"content": [{"type": "text", "text": "Chapter 3 covers fractions."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 6}
		}`))
	})

	resp, err := adapter.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Content != "Chapter 3 covers fractions." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensUsed != (core.TokenUsage{Input: 10, Output: 6, Total: 16}) {
		t.Errorf("TokensUsed = %+v", resp.TokensUsed)
	}
	if resp.Provider != core.ProviderAnthropic {
		t.Errorf("Provider = %s", resp.Provider)
	}
}

func TestCompleteJSONFormatSetsSystem(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["system"] != jsonSystemPrompt {
			t.Errorf("system = %v, want json steering prompt", body["system"])
		}
		w.Write([]byte(`{"content": [{"type": "text", "text": "{}"}], "stop_reason": "end_turn", "usage": {"input_tokens": 1, "output_tokens": 1}}`))
	})

	req := testRequest()
	req.ResponseFormat = core.FormatJSON
	if _, err := adapter.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
}

func TestCompleteTruncatedEmpty(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": [], "stop_reason": "max_tokens", "usage": {"input_tokens": 10, "output_tokens": 0}}`))
	})

	_, err := adapter.Complete(context.Background(), testRequest())
	var provErr *core.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Code != core.ErrCodeMaxTokensExceeded {
		t.Errorf("Code = %s, want MAX_TOKENS_EXCEEDED", provErr.Code)
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": [], "stop_reason": "end_turn", "usage": {"input_tokens": 1, "output_tokens": 0}}`))
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
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: message_start\n"))
		w.Write([]byte(`data: {"type":"message_start","message":{"usage":{"input_tokens":8,"output_tokens":0}}}` + "\n\n"))
		w.Write([]byte("event: content_block_delta\n"))
		w.Write([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Frac"}}` + "\n\n"))
		w.Write([]byte("event: content_block_delta\n"))
		w.Write([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"tions"}}` + "\n\n"))
		w.Write([]byte("event: message_delta\n"))
		w.Write([]byte(`data: {"type":"message_delta","usage":{"output_tokens":4}}` + "\n\n"))
		w.Write([]byte("event: message_stop\n"))
		w.Write([]byte(`data: {"type":"message_stop"}` + "\n\n"))
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

	if content != "Fractions" {
		t.Errorf("content = %q", content)
	}
	if final == nil {
		t.Fatal("expected a done chunk")
	}
	want := core.TokenUsage{Input: 8, Output: 4, Total: 12}
	if final.TokensUsed == nil || *final.TokensUsed != want {
		t.Errorf("final usage = %+v, want %+v", final.TokensUsed, want)
	}
}

func TestFunctionCall(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		tools, ok := body["tools"].([]any)
		if !ok || len(tools) != 1 {
			t.Fatalf("tools = %v, want one entry", body["tools"])
		}
		toolMap := tools[0].(map[string]any)
		if toolMap["name"] != "schedule_session" {
			t.Errorf("tool name = %v", toolMap["name"])
		}

		w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "Scheduling now."},
				{"type": "tool_use", "name": "schedule_session", "input": {"day":"monday"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 30, "output_tokens": 12}
		}`))
	})

	req := testRequest()
	req.Functions = []core.FunctionDef{{
		Name:       "schedule_session",
		Parameters: `{"type":"object","properties":{"day":{"type":"string"}}}`,
	}}

	result, err := adapter.FunctionCall(context.Background(), req)
	if err != nil {
		t.Fatalf("FunctionCall failed: %v", err)
	}
	if result.FunctionName != "schedule_session" {
		t.Errorf("FunctionName = %q", result.FunctionName)
	}
	if result.Arguments != `{"day":"monday"}` {
		t.Errorf("Arguments = %q", result.Arguments)
	}
	if result.Content != "Scheduling now." {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestFunctionCallWithoutToolUse(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"content": [{"type": "text", "text": "I would rather answer in prose."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 30, "output_tokens": 12}
		}`))
	})

	req := testRequest()
	req.Functions = []core.FunctionDef{{Name: "schedule_session", Parameters: `{"type":"object"}`}}

	_, err := adapter.FunctionCall(context.Background(), req)
	var provErr *core.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.Code != core.ErrCodeInvalidResponse {
		t.Errorf("Code = %s, want INVALID_RESPONSE", provErr.Code)
	}
}
