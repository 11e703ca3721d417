// Package openai adapts the OpenAI chat completions API.
package openai

import (
	"context"
	"encoding/json"
	"net/http"

	"tutorgate/internal/core"
	"tutorgate/internal/pkg/llmclient"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Adapter implements the provider contract for OpenAI.
type Adapter struct {
	client *llmclient.Client
	apiKey string
}

// New creates an OpenAI adapter.
func New(apiKey string) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.New(llmclient.DefaultConfig(core.ProviderOpenAI, defaultBaseURL), a.setHeaders)
	return a
}

// NewWithHTTPClient creates an OpenAI adapter with a custom HTTP client.
func NewWithHTTPClient(apiKey string, httpClient *http.Client) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.NewWithHTTPClient(httpClient, llmclient.DefaultConfig(core.ProviderOpenAI, defaultBaseURL), a.setHeaders)
	return a
}

// SetBaseURL allows pointing the adapter at a different endpoint.
func (a *Adapter) SetBaseURL(url string) {
	a.client.SetBaseURL(url)
}

func (a *Adapter) Name() core.Provider {
	return core.ProviderOpenAI
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	// OpenAI requires ASCII-only, max 512 bytes for this header
	if requestID := core.GetRequestID(req.Context()); requestID != "" && isValidClientRequestID(requestID) {
		req.Header.Set("X-Client-Request-Id", requestID)
	}
}

func (a *Adapter) requireKey() error {
	if a.apiKey == "" {
		return core.NewProviderError(core.ProviderOpenAI, core.ErrCodeMissingAPIKey,
			"no API key configured for openai", nil)
	}
	return nil
}

func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
	Tools          []tool          `json:"tools,omitempty"`
	ToolChoice     string          `json:"tool_choice,omitempty"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type toolCall struct {
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usagePayload `json:"usage"`
}

func buildRequest(req *core.ResolvedRequest) chatRequest {
	body := chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	if req.ResponseFormat == core.FormatJSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return body
}

func usageFrom(u *usagePayload) core.TokenUsage {
	if u == nil {
		return core.TokenUsage{}
	}
	return core.TokenUsage{Input: u.PromptTokens, Output: u.CompletionTokens, Total: u.TotalTokens}
}

// Complete sends a chat completion request.
func (a *Adapter) Complete(ctx context.Context, req *core.ResolvedRequest) (*core.CompletionResponse, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	var resp chatResponse
	err := a.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     buildRequest(req),
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, core.NewProviderError(core.ProviderOpenAI, core.ErrCodeInvalidResponse,
			"response contained no choices", nil)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "length" && choice.Message.Content == "" {
		err := core.NewProviderError(core.ProviderOpenAI, core.ErrCodeMaxTokensExceeded,
			"completion truncated at token limit before producing content", nil)
		err.Model = req.Model
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}

	return &core.CompletionResponse{
		Content:    choice.Message.Content,
		TokensUsed: usageFrom(resp.Usage),
		Model:      model,
		Provider:   core.ProviderOpenAI,
	}, nil
}

// StreamComplete starts a streaming chat completion. Usage is requested on
// the final chunk via stream_options.
func (a *Adapter) StreamComplete(ctx context.Context, req *core.ResolvedRequest) (core.Stream, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	body := buildRequest(req)
	body.Stream = true
	body.StreamOptions = &streamOptions{IncludeUsage: true}

	rc, err := a.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     body,
	})
	if err != nil {
		return nil, err
	}
	return newStream(rc), nil
}

// FunctionCall offers the request's functions as tools and returns the call
// the model chose.
func (a *Adapter) FunctionCall(ctx context.Context, req *core.ResolvedRequest) (*core.FunctionCallResult, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	body := buildRequest(req)
	body.Tools = make([]tool, 0, len(req.Functions))
	for _, fn := range req.Functions {
		body.Tools = append(body.Tools, tool{
			Type: "function",
			Function: toolFunction{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  json.RawMessage(fn.Parameters),
			},
		})
	}
	body.ToolChoice = "auto"

	var resp chatResponse
	err := a.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     body,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, core.NewProviderError(core.ProviderOpenAI, core.ErrCodeInvalidResponse,
			"response contained no choices", nil)
	}

	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return nil, core.NewProviderError(core.ProviderOpenAI, core.ErrCodeInvalidResponse,
			"model answered without calling a tool", nil)
	}
	return &core.FunctionCallResult{
		FunctionName: choice.Message.ToolCalls[0].Function.Name,
		Arguments:    choice.Message.ToolCalls[0].Function.Arguments,
		Content:      choice.Message.Content,
		TokensUsed:   usageFrom(resp.Usage),
		Model:        req.Model,
		Provider:     core.ProviderOpenAI,
	}, nil
}
