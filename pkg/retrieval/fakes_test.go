package retrieval

import (
	"context"
	"fmt"

	"github.com/positive-doo/multitool/pkg/llms"
	"github.com/positive-doo/multitool/pkg/sparse"
	"github.com/positive-doo/multitool/pkg/vector"
)

type fakeEmbedder struct {
	calls []string
	vec   []float32
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vec) }
func (f *fakeEmbedder) Model() string  { return "fake" }

type recordingIndex struct {
	queries []vector.Query
	matches []vector.Match
	err     error
}

func (r *recordingIndex) Name() string { return "recording" }

func (r *recordingIndex) Query(_ context.Context, q vector.Query) ([]vector.Match, error) {
	r.queries = append(r.queries, q)
	if r.err != nil {
		return nil, r.err
	}
	return r.matches, nil
}

func (r *recordingIndex) Upsert(context.Context, string, []vector.Record) error { return nil }
func (r *recordingIndex) Close() error                                          { return nil }

func matches(n int) []vector.Match {
	out := make([]vector.Match, n)
	for i := range out {
		out[i] = vector.Match{
			ID:    fmt.Sprintf("doc-%d", i),
			Score: float32(n-i) / float32(n),
			Text:  fmt.Sprintf("passage %d", i),
		}
	}
	return out
}

type fakeEncoder struct {
	calls int
	vec   sparse.Vector
}

func (f *fakeEncoder) EncodeQueries(texts ...string) ([]sparse.Vector, error) {
	f.calls++
	return []sparse.Vector{f.vec}, nil
}

func (f *fakeEncoder) EncodeDocuments(texts ...string) ([]sparse.Vector, error) {
	return nil, nil
}

type structuredLLM struct {
	response string
	prompts  []string
	err      error
}

func (s *structuredLLM) Generate(context.Context, []llms.Message, ...llms.CallOption) (string, int, error) {
	return "", 0, fmt.Errorf("not used")
}

func (s *structuredLLM) GenerateStreaming(context.Context, []llms.Message, ...llms.CallOption) (<-chan llms.StreamChunk, error) {
	return nil, fmt.Errorf("not used")
}

func (s *structuredLLM) GenerateStructured(_ context.Context, messages []llms.Message, _ *llms.StructuredOutputConfig, _ ...llms.CallOption) (string, int, error) {
	s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	return s.response, 0, s.err
}

func (s *structuredLLM) GetModelName() string { return "fake" }
func (s *structuredLLM) Close() error         { return nil }
