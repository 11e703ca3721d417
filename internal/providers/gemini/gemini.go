// Package gemini adapts the Google Gemini generateContent API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"tutorgate/internal/core"
	"tutorgate/internal/pkg/llmclient"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Adapter implements the provider contract for Gemini. The API key travels
// as a query parameter, not a header.
type Adapter struct {
	client *llmclient.Client
	apiKey string
}

// New creates a Gemini adapter.
func New(apiKey string) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.New(llmclient.DefaultConfig(core.ProviderGemini, defaultBaseURL), nil)
	return a
}

// NewWithHTTPClient creates a Gemini adapter with a custom HTTP client.
func NewWithHTTPClient(apiKey string, httpClient *http.Client) *Adapter {
	a := &Adapter{apiKey: apiKey}
	a.client = llmclient.NewWithHTTPClient(httpClient, llmclient.DefaultConfig(core.ProviderGemini, defaultBaseURL), nil)
	return a
}

// SetBaseURL allows pointing the adapter at a different endpoint.
func (a *Adapter) SetBaseURL(url string) {
	a.client.SetBaseURL(url)
}

func (a *Adapter) Name() core.Provider {
	return core.ProviderGemini
}

func (a *Adapter) requireKey() error {
	if a.apiKey == "" {
		return core.NewProviderError(core.ProviderGemini, core.ErrCodeMissingAPIKey,
			"no API key configured for gemini", nil)
	}
	return nil
}

type part struct {
	Text         string           `json:"text,omitempty"`
	FunctionCall *functionCallOut `json:"functionCall,omitempty"`
}

type functionCallOut struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type functionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type toolWrapper struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	Tools            []toolWrapper    `json:"tools,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

func buildRequest(req *core.ResolvedRequest) generateRequest {
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.ResponseFormat == core.FormatJSON {
		body.GenerationConfig.ResponseMimeType = "application/json"
	}
	return body
}

func usageFrom(u *usageMetadata) core.TokenUsage {
	if u == nil {
		return core.TokenUsage{}
	}
	return core.TokenUsage{
		Input:  u.PromptTokenCount,
		Output: u.CandidatesTokenCount,
		Total:  u.TotalTokenCount,
	}
}

func textContent(c content) string {
	var text string
	for _, p := range c.Parts {
		text += p.Text
	}
	return text
}

// Complete sends a generateContent request.
func (a *Adapter) Complete(ctx context.Context, req *core.ResolvedRequest) (*core.CompletionResponse, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	var resp generateResponse
	err := a.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: fmt.Sprintf("/models/%s:generateContent?key=%s", req.Model, a.apiKey),
		Body:     buildRequest(req),
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		return nil, core.NewProviderError(core.ProviderGemini, core.ErrCodeInvalidResponse,
			"response contained no candidates", nil)
	}

	candidate := resp.Candidates[0]
	text := textContent(candidate.Content)
	if candidate.FinishReason == "MAX_TOKENS" && text == "" {
		err := core.NewProviderError(core.ProviderGemini, core.ErrCodeMaxTokensExceeded,
			"completion truncated at token limit before producing content", nil)
		err.Model = req.Model
		return nil, err
	}

	return &core.CompletionResponse{
		Content:    text,
		TokensUsed: usageFrom(resp.UsageMetadata),
		Model:      req.Model,
		Provider:   core.ProviderGemini,
	}, nil
}

// StreamComplete starts a streaming generateContent request using the SSE
// variant of the endpoint.
func (a *Adapter) StreamComplete(ctx context.Context, req *core.ResolvedRequest) (core.Stream, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	rc, err := a.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: fmt.Sprintf("/models/%s:streamGenerateContent?alt=sse&key=%s", req.Model, a.apiKey),
		Body:     buildRequest(req),
	})
	if err != nil {
		return nil, err
	}
	return newStream(rc), nil
}

// FunctionCall offers the request's functions as declarations and returns
// the functionCall part the model produced.
func (a *Adapter) FunctionCall(ctx context.Context, req *core.ResolvedRequest) (*core.FunctionCallResult, error) {
	if err := a.requireKey(); err != nil {
		return nil, err
	}

	body := buildRequest(req)
	declarations := make([]functionDeclaration, 0, len(req.Functions))
	for _, fn := range req.Functions {
		declarations = append(declarations, functionDeclaration{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  json.RawMessage(fn.Parameters),
		})
	}
	body.Tools = []toolWrapper{{FunctionDeclarations: declarations}}

	var resp generateResponse
	err := a.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: fmt.Sprintf("/models/%s:generateContent?key=%s", req.Model, a.apiKey),
		Body:     body,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		return nil, core.NewProviderError(core.ProviderGemini, core.ErrCodeInvalidResponse,
			"response contained no candidates", nil)
	}

	candidate := resp.Candidates[0]
	for _, p := range candidate.Content.Parts {
		if p.FunctionCall != nil {
			return &core.FunctionCallResult{
				FunctionName: p.FunctionCall.Name,
				Arguments:    string(p.FunctionCall.Args),
				Content:      textContent(candidate.Content),
				TokensUsed:   usageFrom(resp.UsageMetadata),
				Model:        req.Model,
				Provider:     core.ProviderGemini,
			}, nil
		}
	}
	return nil, core.NewProviderError(core.ProviderGemini, core.ErrCodeInvalidResponse,
		"model answered without a functionCall part", nil)
}
