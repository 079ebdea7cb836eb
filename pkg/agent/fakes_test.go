package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/positive-doo/multitool/pkg/llms"
	"github.com/positive-doo/multitool/pkg/sparse"
	"github.com/positive-doo/multitool/pkg/tool"
	"github.com/positive-doo/multitool/pkg/vector"
)

// scriptedLLM streams its replies in order, one per call.
type scriptedLLM struct {
	replies []string
	prompts []string
	stops   [][]string
	err     error
}

func (s *scriptedLLM) Generate(context.Context, []llms.Message, ...llms.CallOption) (string, int, error) {
	return "", 0, errors.New("not used")
}

func (s *scriptedLLM) GenerateStreaming(_ context.Context, msgs []llms.Message, opts ...llms.CallOption) (<-chan llms.StreamChunk, error) {
	var o llms.CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	s.prompts = append(s.prompts, msgs[len(msgs)-1].Content)
	s.stops = append(s.stops, o.Stop)

	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]

	ch := make(chan llms.StreamChunk, 3)
	half := len(reply) / 2
	ch <- llms.StreamChunk{Type: "text", Text: reply[:half]}
	ch <- llms.StreamChunk{Type: "text", Text: reply[half:]}
	ch <- llms.StreamChunk{Type: "done", Tokens: len(reply)}
	close(ch)
	return ch, nil
}

func (s *scriptedLLM) GenerateStructured(context.Context, []llms.Message, *llms.StructuredOutputConfig, ...llms.CallOption) (string, int, error) {
	return "", 0, errors.New("not used")
}

func (s *scriptedLLM) GetModelName() string { return "scripted" }
func (s *scriptedLLM) Close() error         { return nil }

// countingTool records every input it receives.
type countingTool struct {
	name   string
	direct bool
	output string
	err    error
	inputs []string
}

func (c *countingTool) Name() string        { return c.name }
func (c *countingTool) Description() string { return "test tool " + c.name }
func (c *countingTool) ReturnDirect() bool  { return c.direct }

func (c *countingTool) Invoke(_ context.Context, input string) (string, error) {
	c.inputs = append(c.inputs, input)
	return c.output, c.err
}

func registry(tools ...tool.Tool) *tool.Registry {
	r, err := tool.NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return []float32{1, 1, 1, 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = f.Embed(ctx, texts[i])
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 4 }
func (f *fakeEmbedder) Model() string  { return "fake" }

type fakeEncoder struct{}

func (fakeEncoder) EncodeQueries(texts ...string) ([]sparse.Vector, error) {
	return []sparse.Vector{{Indices: []uint32{7, 9}, Values: []float32{0.6, 0.4}}}, nil
}

func (fakeEncoder) EncodeDocuments(texts ...string) ([]sparse.Vector, error) {
	return nil, nil
}

type recordingIndex struct {
	queries []vector.Query
}

func (r *recordingIndex) Name() string { return "recording" }

func (r *recordingIndex) Query(_ context.Context, q vector.Query) ([]vector.Match, error) {
	r.queries = append(r.queries, q)
	out := make([]vector.Match, q.TopK)
	for i := range out {
		out[i] = vector.Match{ID: fmt.Sprint(i), Score: 1 - float32(i)/10, Text: fmt.Sprintf("Positive doo passage %d", i)}
	}
	return out, nil
}

func (r *recordingIndex) Upsert(context.Context, string, []vector.Record) error { return nil }
func (r *recordingIndex) Close() error                                          { return nil }
