// Package anthropic adapts the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"

	"tutorgate/internal/core"
	"tutorgate/internal/pkg/llmclient"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"

	// jsonSystemPrompt steers models toward bare JSON output; the Messages
	// API has no structured response_format parameter.
	jsonSystemPrompt = "Respond with a single valid JSON object and nothing else. No prose, no code fences."
)

// Adapter implements the provider contract for Anthropic.
type Adapter struct {
	client *llmclient.Client
	apiKey string
}

// New creates an Anthropic adapter.
func New(apiKey string) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.New(llmclient.DefaultConfig(core.ProviderAnthropic, defaultBaseURL), a.setHeaders)
	return a
}

// NewWithHTTPClient creates an Anthropic adapter with a custom HTTP client.
func NewWithHTTPClient(apiKey string, httpClient *http.Client) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.NewWithHTTPClient(httpClient, llmclient.DefaultConfig(core.ProviderAnthropic, defaultBaseURL), a.setHeaders)
	return a
}

// SetBaseURL allows pointing the adapter at a different endpoint.
func (a *Adapter) SetBaseURL(url string) {
	a.client.SetBaseURL(url)
}

func (a *Adapter) Name() core.Provider {
	return core.ProviderAnthropic
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
}

func (a *Adapter) requireKey() error {
	if a.apiKey == "" {
		return core.NewProviderError(core.ProviderAnthropic, core.ErrCodeMissingAPIKey,
			"no API key configured for anthropic", nil)
	}
	return nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
}

type messagesRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	Messages    []message   `json:"messages"`
	System      string      `json:"system,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	TopP        *float64    `json:"top_p,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
	Tools       []toolDef   `json:"tools,omitempty"`
	ToolChoice  *toolChoice `json:"tool_choice,omitempty"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type usagePayload struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type messagesResponse struct {
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usagePayload   `json:"usage"`
}

func buildRequest(req *core.ResolvedRequest) messagesRequest {
	body := messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.ResponseFormat == core.FormatJSON {
		body.System = jsonSystemPrompt
	}
	return body
}

func usageFrom(u usagePayload) core.TokenUsage {
	return core.TokenUsage{
		Input:  u.InputTokens,
		Output: u.OutputTokens,
		Total:  u.InputTokens + u.OutputTokens,
	}
}

func textContent(blocks []contentBlock) string {
	var text string
	for _, block := range blocks {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text
}

// Complete sends a Messages API request.
func (a *Adapter) Complete(ctx context.Context, req *core.ResolvedRequest) (*core.CompletionResponse, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	var resp messagesResponse
	err := a.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     buildRequest(req),
	}, &resp)
	if err != nil {
		return nil, err
	}

	content := textContent(resp.Content)
	if resp.StopReason == "max_tokens" && content == "" {
		err := core.NewProviderError(core.ProviderAnthropic, core.ErrCodeMaxTokensExceeded,
			"completion truncated at token limit before producing content", nil)
		err.Model = req.Model
		return nil, err
	}
	if len(resp.Content) == 0 {
		return nil, core.NewProviderError(core.ProviderAnthropic, core.ErrCodeInvalidResponse,
			"response contained no content blocks", nil)
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}

	return &core.CompletionResponse{
		Content:    content,
		TokensUsed: usageFrom(resp.Usage),
		Model:      model,
		Provider:   core.ProviderAnthropic,
	}, nil
}

// StreamComplete starts a streaming Messages API request.
func (a *Adapter) StreamComplete(ctx context.Context, req *core.ResolvedRequest) (core.Stream, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	body := buildRequest(req)
	body.Stream = true

	rc, err := a.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     body,
	})
	if err != nil {
		return nil, err
	}
	return newStream(rc), nil
}

// FunctionCall offers the request's functions as tools and returns the
// tool_use block the model produced.
func (a *Adapter) FunctionCall(ctx context.Context, req *core.ResolvedRequest) (*core.FunctionCallResult, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	body := buildRequest(req)
	body.Tools = make([]toolDef, 0, len(req.Functions))
	for _, fn := range req.Functions {
		body.Tools = append(body.Tools, toolDef{
			Name:        fn.Name,
			Description: fn.Description,
			InputSchema: json.RawMessage(fn.Parameters),
		})
	}
	body.ToolChoice = &toolChoice{Type: "auto"}

	var resp messagesResponse
	err := a.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     body,
	}, &resp)
	if err != nil {
		return nil, err
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			return &core.FunctionCallResult{
				FunctionName: block.Name,
				Arguments:    string(block.Input),
				Content:      textContent(resp.Content),
				TokensUsed:   usageFrom(resp.Usage),
				Model:        req.Model,
				Provider:     core.ProviderAnthropic,
			}, nil
		}
	}
	return nil, core.NewProviderError(core.ProviderAnthropic, core.ErrCodeInvalidResponse,
		"model answered without a tool_use block", nil)
}
