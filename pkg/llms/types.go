// Package llms provides chat-completion oracles.
package llms

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StreamChunk is one element of a streaming completion. Type is "text",
// "done" or "error".
type StreamChunk struct {
	Type   string
	Text   string
	Tokens int
	Error  error
}

// StructuredOutputConfig requests a JSON response, optionally constrained by a schema.
type StructuredOutputConfig struct {
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Name identifies the schema to the provider.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Schema map[string]interface{} `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// CallOptions tune a single request.
type CallOptions struct {
	Stop        []string
	Temperature *float64
	MaxTokens   int
}

type CallOption func(*CallOptions)

// WithStop sets stop sequences.
func WithStop(stop ...string) CallOption {
	return func(o *CallOptions) {
		o.Stop = append(o.Stop, stop...)
	}
}

func WithTemperature(t float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = &t
	}
}

func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = n
	}
}

func applyOptions(opts []CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type LLMProvider interface {
	// Generate performs a non-streaming request and returns text and total tokens.
	Generate(ctx context.Context, messages []Message, opts ...CallOption) (string, int, error)

	// GenerateStreaming emits text chunks and closes the channel when done.
	// Failures after the request started arrive as an "error" chunk.
	GenerateStreaming(ctx context.Context, messages []Message, opts ...CallOption) (<-chan StreamChunk, error)

	// GenerateStructured returns a JSON document shaped by cfg.
	GenerateStructured(ctx context.Context, messages []Message, cfg *StructuredOutputConfig, opts ...CallOption) (string, int, error)

	GetModelName() string

	Close() error
}

// Collect drains a stream into a single string.
func Collect(ch <-chan StreamChunk) (string, int, error) {
	var text []byte
	tokens := 0
	for chunk := range ch {
		switch chunk.Type {
		case "text":
			text = append(text, chunk.Text...)
		case "done":
			tokens = chunk.Tokens
		case "error":
			for range ch {
			}
			return string(text), tokens, chunk.Error
		}
	}
	return string(text), tokens, nil
}
