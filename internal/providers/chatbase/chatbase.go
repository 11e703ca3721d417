// Package chatbase adapts the Chatbase chatbot API. Chatbase fronts a
// hosted bot rather than a raw model: it reports no token usage (counts
// stay zero, never estimated) and has no tool-calling surface.
package chatbase

import (
	"context"
	"io"
	"net/http"

	"tutorgate/internal/core"
	"tutorgate/internal/pkg/llmclient"
)

const defaultBaseURL = "https://www.chatbase.co/api/v1"

// Adapter implements the provider contract for Chatbase.
type Adapter struct {
	client    *llmclient.Client
	apiKey    string
	chatbotID string
}

// New creates a Chatbase adapter bound to one chatbot.
func New(apiKey, chatbotID string) *Adapter {
	a := &Adapter{apiKey: apiKey, chatbotID: chatbotID}
	a.client = llmclient.New(llmclient.DefaultConfig(core.ProviderChatbase, defaultBaseURL), a.setHeaders)
	return a
}

// NewWithHTTPClient creates a Chatbase adapter with a custom HTTP client.
func NewWithHTTPClient(apiKey, chatbotID string, httpClient *http.Client) *Adapter {
	a := &Adapter{apiKey: apiKey, chatbotID: chatbotID}
	a.client = llmclient.NewWithHTTPClient(httpClient, llmclient.DefaultConfig(core.ProviderChatbase, defaultBaseURL), a.setHeaders)
	return a
}

// SetBaseURL allows pointing the adapter at a different endpoint.
func (a *Adapter) SetBaseURL(url string) {
	a.client.SetBaseURL(url)
}

func (a *Adapter) Name() core.Provider {
	return core.ProviderChatbase
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
}

func (a *Adapter) requireKey() error {
	if a.apiKey == "" || a.chatbotID == "" {
		return core.NewProviderError(core.ProviderChatbase, core.ErrCodeMissingAPIKey,
			"no API key or chatbot ID configured for chatbase", nil)
	}
	return nil
}

type message struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type chatRequest struct {
	Messages    []message `json:"messages"`
	ChatbotID   string    `json:"chatbotId"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	Model       string    `json:"model,omitempty"`
}

type chatResponse struct {
	Text string `json:"text"`
}

func (a *Adapter) buildRequest(req *core.ResolvedRequest) chatRequest {
	return chatRequest{
		Messages:    []message{{Content: req.Prompt, Role: "user"}},
		ChatbotID:   a.chatbotID,
		Temperature: req.Temperature,
	}
}

// Complete sends a chat request. Token counts are always zero: Chatbase
// does not report usage metadata.
func (a *Adapter) Complete(ctx context.Context, req *core.ResolvedRequest) (*core.CompletionResponse, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	var resp chatResponse
	err := a.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat",
		Body:     a.buildRequest(req),
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Text == "" {
		return nil, core.NewProviderError(core.ProviderChatbase, core.ErrCodeInvalidResponse,
			"response contained no text", nil)
	}

	return &core.CompletionResponse{
		Content:  resp.Text,
		Model:    req.Model,
		Provider: core.ProviderChatbase,
	}, nil
}

// StreamComplete starts a streaming chat request. Chatbase streams raw text
// rather than SSE frames.
func (a *Adapter) StreamComplete(ctx context.Context, req *core.ResolvedRequest) (core.Stream, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	body := a.buildRequest(req)
	body.Stream = true

	rc, err := a.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat",
		Body:     body,
	})
	if err != nil {
		return nil, err
	}
	return &stream{body: rc}, nil
}

// FunctionCall is not supported by Chatbase.
func (a *Adapter) FunctionCall(_ context.Context, _ *core.ResolvedRequest) (*core.FunctionCallResult, error) {
	return nil, core.NewProviderError(core.ProviderChatbase, core.ErrCodeAPIError,
		"function calling is not supported by chatbase", nil)
}

// stream yields raw text chunks as they arrive and a zero-usage done chunk
// at EOF.
type stream struct {
	body io.ReadCloser
	done bool
}

func (s *stream) Recv() (*core.StreamChunk, error) {
	if s.done {
		return nil, io.EOF
	}

	buf := make([]byte, 4096)
	for {
		n, err := s.body.Read(buf)
		if n > 0 {
			return &core.StreamChunk{Content: string(buf[:n])}, nil
		}
		if err == io.EOF {
			s.done = true
			return &core.StreamChunk{Done: true, TokensUsed: &core.TokenUsage{}}, nil
		}
		if err != nil {
			s.done = true
			return nil, core.NewProviderError(core.ProviderChatbase, core.ErrCodeAPIError,
				"stream read failed: "+err.Error(), err)
		}
	}
}

func (s *stream) Close() error {
	s.done = true
	return s.body.Close()
}
