package core

// StreamChunk is one increment of a streaming completion. The final chunk
// has Done=true and carries the cumulative token usage for the stream;
// earlier chunks leave TokensUsed nil.
type StreamChunk struct {
	Content    string      `json:"content"`
	Done       bool        `json:"done"`
	TokensUsed *TokenUsage `json:"tokens_used,omitempty"`
}

// Stream is a single-consumer, incrementally-read completion stream.
//
// Recv blocks until the next chunk is available and returns io.EOF after
// the done chunk has been delivered. Close releases the underlying vendor
// transport; abandoning a stream without Close orphans the connection, so
// callers must always Close, including on early exit.
type Stream interface {
	Recv() (*StreamChunk, error)
	Close() error
}
