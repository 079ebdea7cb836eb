// Package testutils provides fakes for the oracles behind a session.
package testutils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/positive-doo/multitool/pkg/config"
	"github.com/positive-doo/multitool/pkg/llms"
	"github.com/positive-doo/multitool/pkg/tabular"
	"github.com/positive-doo/multitool/pkg/vector"
)

// TestConfig returns a valid configuration that needs no credentials.
func TestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Vector.Type = config.VectorTypeChromem
	cfg.LLM.APIKey = "sk-test"
	cfg.SetDefaults()
	return cfg
}

// TestContext returns a context cancelled after timeout or when the test ends.
func TestContext(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// ScriptedLLM streams its replies in order, one per call.
type ScriptedLLM struct {
	mu      sync.Mutex
	replies []string
	calls   [][]llms.Message
}

func NewScriptedLLM(replies ...string) *ScriptedLLM {
	return &ScriptedLLM{replies: replies}
}

func (s *ScriptedLLM) next(messages []llms.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, messages)
	if len(s.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func (s *ScriptedLLM) Generate(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (string, int, error) {
	reply, err := s.next(messages)
	return reply, len(reply), err
}

func (s *ScriptedLLM) GenerateStreaming(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (<-chan llms.StreamChunk, error) {
	reply, err := s.next(messages)
	if err != nil {
		return nil, err
	}

	ch := make(chan llms.StreamChunk, 3)
	half := len(reply) / 2
	ch <- llms.StreamChunk{Type: "text", Text: reply[:half]}
	ch <- llms.StreamChunk{Type: "text", Text: reply[half:]}
	ch <- llms.StreamChunk{Type: "done"}
	close(ch)
	return ch, nil
}

func (s *ScriptedLLM) GenerateStructured(ctx context.Context, messages []llms.Message, _ *llms.StructuredOutputConfig, opts ...llms.CallOption) (string, int, error) {
	return s.Generate(ctx, messages, opts...)
}

func (s *ScriptedLLM) GetModelName() string { return "scripted" }
func (s *ScriptedLLM) Close() error         { return nil }

// Calls returns the number of requests made so far.
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// StubEmbedder returns the same unit vector for every text.
type StubEmbedder struct{}

func (StubEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

func (StubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (StubEmbedder) Dimension() int { return 2 }
func (StubEmbedder) Model() string  { return "stub" }

// StaticIndex answers every query with Matches and records the queries.
type StaticIndex struct {
	Matches []vector.Match

	mu      sync.Mutex
	queries []vector.Query
}

func (s *StaticIndex) Name() string { return "static" }

func (s *StaticIndex) Query(_ context.Context, q vector.Query) ([]vector.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, q)
	if q.TopK < len(s.Matches) {
		return s.Matches[:q.TopK], nil
	}
	return s.Matches, nil
}

func (s *StaticIndex) Upsert(context.Context, string, []vector.Record) error { return nil }
func (s *StaticIndex) Close() error                                          { return nil }

func (s *StaticIndex) Queries() []vector.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vector.Query(nil), s.queries...)
}

// TabularFunc adapts a function to tabular.Oracle.
type TabularFunc func(ctx context.Context, ds *tabular.Dataset, question string) (string, error)

func (f TabularFunc) Answer(ctx context.Context, ds *tabular.Dataset, question string) (string, error) {
	return f(ctx, ds, question)
}
