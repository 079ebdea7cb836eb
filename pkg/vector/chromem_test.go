package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/positive-doo/multitool/pkg/sparse"
)

func seed(t *testing.T, idx *ChromemIndex) {
	t.Helper()
	err := idx.Upsert(context.Background(), "positive", []Record{
		{ID: "a", Dense: []float32{1, 0, 0}, Metadata: map[string]any{"text": "Positive doo builds software.", "title": "company"}},
		{ID: "b", Dense: []float32{0.8, 0.2, 0}, Metadata: map[string]any{"text": "Positive doo has offices.", "title": "offices"}},
		{ID: "c", Dense: []float32{0, 0, 1}, Metadata: map[string]any{"text": "Unrelated passage.", "title": "other"}},
	})
	require.NoError(t, err)
}

func TestChromemIndex_QueryOrderAndTopK(t *testing.T) {
	idx, err := NewChromemIndex(ChromemConfig{Name: "test", TextKey: "text"})
	require.NoError(t, err)
	seed(t, idx)

	matches, err := idx.Query(context.Background(), Query{Namespace: "positive", TopK: 2, Dense: []float32{1, 0, 0}})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "Positive doo builds software.", matches[0].Text)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestChromemIndex_TopKClampedToCount(t *testing.T) {
	idx, err := NewChromemIndex(ChromemConfig{Name: "test", TextKey: "text"})
	require.NoError(t, err)
	seed(t, idx)

	matches, err := idx.Query(context.Background(), Query{Namespace: "positive", TopK: 10, Dense: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	empty, err := idx.Query(context.Background(), Query{Namespace: "empty", TopK: 3, Dense: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestChromemIndex_EqualityFilter(t *testing.T) {
	idx, err := NewChromemIndex(ChromemConfig{Name: "test", TextKey: "text"})
	require.NoError(t, err)
	seed(t, idx)

	matches, err := idx.Query(context.Background(), Query{
		Namespace: "positive",
		TopK:      1,
		Dense:     []float32{1, 0, 0},
		Filter:    map[string]any{"$and": []any{map[string]any{"title": map[string]any{"$eq": "offices"}}}},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)

	_, err = idx.Query(context.Background(), Query{
		Namespace: "positive",
		TopK:      1,
		Dense:     []float32{1, 0, 0},
		Filter:    map[string]any{"title": map[string]any{"$ne": "offices"}},
	})
	require.Error(t, err)
}

func TestChromemIndex_RejectsSparse(t *testing.T) {
	idx, err := NewChromemIndex(ChromemConfig{Name: "test"})
	require.NoError(t, err)

	_, err = idx.Query(context.Background(), Query{
		Namespace: "x",
		TopK:      1,
		Dense:     []float32{1},
		Sparse:    &sparse.Vector{Indices: []uint32{1}, Values: []float32{1}},
	})
	assert.ErrorIs(t, err, ErrSparseUnsupported)
}

func TestChromemIndex_Persistence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vectors")
	idx, err := NewChromemIndex(ChromemConfig{Name: "test", PersistPath: dir, TextKey: "text"})
	require.NoError(t, err)
	seed(t, idx)
	require.NoError(t, idx.Close())

	reopened, err := NewChromemIndex(ChromemConfig{Name: "test", PersistPath: dir, TextKey: "text"})
	require.NoError(t, err)

	matches, err := reopened.Query(context.Background(), Query{Namespace: "positive", TopK: 1, Dense: []float32{0, 0, 1}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c", matches[0].ID)
}
