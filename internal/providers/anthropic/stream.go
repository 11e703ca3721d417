package anthropic

import (
	"encoding/json"
	"io"

	"tutorgate/internal/core"
	"tutorgate/internal/pkg/llmclient"
)

// streamEvent is the wire shape shared by the Messages API stream events.
// Input tokens arrive on message_start, output tokens accumulate on
// message_delta, and message_stop terminates the stream.
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage usagePayload `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *usagePayload `json:"usage"`
}

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
		var event streamEvent
		if err := json.Unmarshal([]byte(s.scanner.Data()), &event); err != nil {
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				s.usage.Input = event.Message.Usage.InputTokens
			}

		case "content_block_delta":
			if event.Delta != nil && event.Delta.Text != "" {
				return &core.StreamChunk{Content: event.Delta.Text}, nil
			}

		case "message_delta":
			if event.Usage != nil {
				s.usage.Output = event.Usage.OutputTokens
			}

		case "message_stop":
			return s.finish()

		case "error":
			s.done = true
			return nil, core.NewProviderError(core.ProviderAnthropic, core.ErrCodeAPIError,
				"stream error event: "+s.scanner.Data(), nil)
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.done = true
		return nil, core.NewProviderError(core.ProviderAnthropic, core.ErrCodeAPIError,
			"stream read failed: "+err.Error(), err)
	}

	// Stream ended without a message_stop event
	return s.finish()
}

func (s *stream) finish() (*core.StreamChunk, error) {
	s.done = true
	usage := s.usage
	usage.Total = usage.Input + usage.Output
	return &core.StreamChunk{Done: true, TokensUsed: &usage}, nil
}

func (s *stream) Close() error {
	s.done = true
	return s.body.Close()
}
