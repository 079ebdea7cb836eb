package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/positive-doo/multitool/pkg/llms"
	"github.com/positive-doo/multitool/pkg/sparse"
	"github.com/positive-doo/multitool/pkg/tabular"
	"github.com/positive-doo/multitool/pkg/vector"
)

type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func (s *scriptedLLM) Generate(context.Context, []llms.Message, ...llms.CallOption) (string, int, error) {
	return "", 0, errors.New("not used")
}

func (s *scriptedLLM) GenerateStreaming(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (<-chan llms.StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, msgs[len(msgs)-1].Content)
	if len(s.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]

	ch := make(chan llms.StreamChunk, 2)
	ch <- llms.StreamChunk{Type: "text", Text: reply}
	ch <- llms.StreamChunk{Type: "done"}
	close(ch)
	return ch, nil
}

func (s *scriptedLLM) GenerateStructured(context.Context, []llms.Message, *llms.StructuredOutputConfig, ...llms.CallOption) (string, int, error) {
	return `{"query":"","operator":"and","filter":[{"attribute":"keyword","comparator":"eq","value":"direktor"}]}`, 0, nil
}

func (s *scriptedLLM) GetModelName() string { return "scripted" }
func (s *scriptedLLM) Close() error         { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 2 }
func (fakeEmbedder) Model() string  { return "fake" }

type fakeEncoder struct{}

func (fakeEncoder) EncodeQueries(...string) ([]sparse.Vector, error) {
	return []sparse.Vector{{Indices: []uint32{1}, Values: []float32{1}}}, nil
}

func (fakeEncoder) EncodeDocuments(...string) ([]sparse.Vector, error) { return nil, nil }

type recordingIndex struct {
	name    string
	queries []vector.Query
}

func (r *recordingIndex) Name() string { return r.name }

func (r *recordingIndex) Query(_ context.Context, q vector.Query) ([]vector.Match, error) {
	r.queries = append(r.queries, q)
	out := make([]vector.Match, q.TopK)
	for i := range out {
		out[i] = vector.Match{ID: fmt.Sprint(i), Score: 0.9, Text: fmt.Sprintf("%s %s %d", r.name, q.Namespace, i)}
	}
	return out, nil
}

func (r *recordingIndex) Upsert(context.Context, string, []vector.Record) error { return nil }
func (r *recordingIndex) Close() error                                          { return nil }

type fakeTabular struct {
	questions []string
}

func (f *fakeTabular) Answer(_ context.Context, ds *tabular.Dataset, question string) (string, error) {
	f.questions = append(f.questions, question)
	return fmt.Sprintf("%s has %d rows", ds.Name, len(ds.Rows)), nil
}

type fakeSearch struct{}

func (fakeSearch) Search(context.Context, string) (string, error) { return "Monday", nil }
