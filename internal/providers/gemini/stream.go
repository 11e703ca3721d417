package gemini

import (
	"encoding/json"
	"io"

	"tutorgate/internal/core"
	"tutorgate/internal/pkg/llmclient"
)

// stream converts the Gemini SSE wire format into normalized chunks.
// Gemini sends full generateResponse payloads per event with no explicit
// terminator; usage metadata rides on the last payload and EOF ends the
// stream.
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
		var payload generateResponse
		if err := json.Unmarshal([]byte(s.scanner.Data()), &payload); err != nil {
			continue
		}

		if payload.UsageMetadata != nil {
			s.usage = usageFrom(payload.UsageMetadata)
		}
		if len(payload.Candidates) > 0 {
			if text := textContent(payload.Candidates[0].Content); text != "" {
				return &core.StreamChunk{Content: text}, nil
			}
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.done = true
		return nil, core.NewProviderError(core.ProviderGemini, core.ErrCodeAPIError,
			"stream read failed: "+err.Error(), err)
	}

	s.done = true
	usage := s.usage
	return &core.StreamChunk{Done: true, TokensUsed: &usage}, nil
}

func (s *stream) Close() error {
	s.done = true
	return s.body.Close()
}
