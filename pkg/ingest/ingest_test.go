package ingest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/positive-doo/multitool/pkg/sparse"
	"github.com/positive-doo/multitool/pkg/vector"
)

type fakeEmbedder struct {
	fail bool
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

func (f fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("quota exceeded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 2 }
func (fakeEmbedder) Model() string  { return "fake" }

type memoryIndex struct {
	mu      sync.Mutex
	batches int
	records map[string]vector.Record
	ns      map[string]bool
}

func (m *memoryIndex) Name() string { return "memory" }
func (m *memoryIndex) Query(context.Context, vector.Query) ([]vector.Match, error) {
	return nil, nil
}

func (m *memoryIndex) Upsert(_ context.Context, namespace string, records []vector.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = map[string]vector.Record{}
		m.ns = map[string]bool{}
	}
	m.batches++
	m.ns[namespace] = true
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memoryIndex) Close() error { return nil }

func TestReadJSONL(t *testing.T) {
	input := `{"id": "a", "text": "Positive doo builds software.", "title": "About"}

{"text": "Second passage", "metadata": {"page": 2}}
`
	docs, err := ReadJSONL(strings.NewReader(input), "doc")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "About", docs[0].Metadata["title"])
	assert.Equal(t, "doc-3", docs[1].ID)
	assert.Equal(t, float64(2), docs[1].Metadata["page"])
}

func TestReadJSONLErrors(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader(`{"id": "a"}`), "doc")
	assert.ErrorContains(t, err, "line 1: text is required")

	_, err = ReadJSONL(strings.NewReader("{\"text\": \"ok\"}\nnot json"), "doc")
	assert.ErrorContains(t, err, "line 2")
}

func TestIndexerRun(t *testing.T) {
	var docs []Document
	for _, text := range []string{"one", "two words", "three little words", "four", "five"} {
		docs = append(docs, Document{ID: text, Text: text, Metadata: map[string]any{"source": "test"}})
	}

	idx := &memoryIndex{}
	ix := &Indexer{
		Embedder:    fakeEmbedder{},
		Encoder:     sparse.New(1.2, 0.75).Fit("one", "two words"),
		Index:       idx,
		TextKey:     "context",
		BatchSize:   2,
		Concurrency: 2,
	}

	n, err := ix.Run(context.Background(), "positive", docs)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, idx.batches)
	assert.True(t, idx.ns["positive"])

	ids := make([]string, 0, len(idx.records))
	for id := range idx.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"five", "four", "one", "three little words", "two words"}, ids)

	rec := idx.records["two words"]
	assert.Equal(t, "two words", rec.Metadata["context"])
	assert.Equal(t, "test", rec.Metadata["source"])
	assert.Equal(t, []float32{9, 1}, rec.Dense)
	require.NotNil(t, rec.Sparse)
	assert.Positive(t, rec.Sparse.Len())
}

func TestIndexerDenseOnly(t *testing.T) {
	idx := &memoryIndex{}
	ix := &Indexer{Embedder: fakeEmbedder{}, Index: idx}

	n, err := ix.Run(context.Background(), "ns", []Document{{ID: "x", Text: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, idx.records["x"].Sparse)
	assert.Equal(t, "hello", idx.records["x"].Metadata["text"])
}

func TestIndexerEmbedFailure(t *testing.T) {
	ix := &Indexer{Embedder: fakeEmbedder{fail: true}, Index: &memoryIndex{}}

	_, err := ix.Run(context.Background(), "ns", []Document{{ID: "x", Text: "hello"}})
	assert.ErrorContains(t, err, "quota exceeded")
}
