package openai

import (
	"encoding/json"
	"io"

	"tutorgate/internal/core"
	"tutorgate/internal/pkg/llmclient"
)

// streamChunk is the wire shape of one SSE data payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usagePayload `json:"usage"`
}

// stream converts the OpenAI SSE wire format into normalized chunks.
// With stream_options.include_usage set, OpenAI sends a final data payload
// carrying usage and empty choices before the [DONE] terminator.
type stream struct {
	body    io.ReadCloser
	scanner *llmclient.SSEScanner
	usage   core.TokenUsage
	done    bool
}

func newStream(body io.ReadCloser) *stream {
	return &stream{
		body:    body,
		scanner: llmclient.NewSSEScanner(body),
	}
}

func (s *stream) Recv() (*core.StreamChunk, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Next() {
		data := s.scanner.Data()
		if data == "[DONE]" {
			return s.finish()
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed keep-alive payloads rather than killing the stream
			continue
		}

		if chunk.Usage != nil {
			s.usage = usageFrom(chunk.Usage)
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return &core.StreamChunk{Content: chunk.Choices[0].Delta.Content}, nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.done = true
		return nil, core.NewProviderError(core.ProviderOpenAI, core.ErrCodeAPIError,
			"stream read failed: "+err.Error(), err)
	}

	// Stream ended without a [DONE] marker
	return s.finish()
}

func (s *stream) finish() (*core.StreamChunk, error) {
	s.done = true
	usage := s.usage
	return &core.StreamChunk{Done: true, TokensUsed: &usage}, nil
}

func (s *stream) Close() error {
	s.done = true
	return s.body.Close()
}
