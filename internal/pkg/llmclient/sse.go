package llmclient

import (
	"bufio"
	"io"
	"strings"
)

// SSEScanner reads server-sent events from a response body and yields the
// data payload of each event. All supported vendors frame their streams as
// SSE with JSON data payloads, so event names are exposed alongside data
// for the callers that need them (Anthropic dispatches on event type).
type SSEScanner struct {
	scanner *bufio.Scanner
	event   string
	data    string
	err     error
}

// NewSSEScanner wraps a streaming response body. The caller keeps ownership
// of the body and must close it.
func NewSSEScanner(r io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(r)
	// Single events can carry large content deltas
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &SSEScanner{scanner: scanner}
}

// Next advances to the next event. It returns false at end of stream or on
// read error; check Err afterwards.
func (s *SSEScanner) Next() bool {
	s.event = ""
	var data []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		// Blank line terminates the event
		if line == "" {
			if len(data) > 0 {
				s.data = strings.Join(data, "\n")
				return true
			}
			continue
		}

		// Comment lines (used by some vendors as keep-alives)
		if strings.HasPrefix(line, ":") {
			continue
		}

		if value, ok := strings.CutPrefix(line, "event:"); ok {
			s.event = strings.TrimSpace(value)
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(value))
			continue
		}
	}

	s.err = s.scanner.Err()

	// Stream ended mid-event; surface what we have
	if len(data) > 0 {
		s.data = strings.Join(data, "\n")
		return true
	}
	return false
}

// Event returns the event name of the current event, if any.
func (s *SSEScanner) Event() string {
	return s.event
}

// Data returns the data payload of the current event.
func (s *SSEScanner) Data() string {
	return s.data
}

// Err returns the first read error encountered, if any.
func (s *SSEScanner) Err() error {
	return s.err
}
