// Package vector adapts vector databases to the nearest-neighbour oracle
// used by retrieval.
package vector

import (
	"context"
	"errors"

	"github.com/positive-doo/multitool/pkg/sparse"
)

// ErrSparseUnsupported is returned by indexes that cannot serve sparse-dense queries.
var ErrSparseUnsupported = errors.New("index does not support sparse vectors")

// Query is a single nearest-neighbour request.
type Query struct {
	Namespace string
	TopK      int
	Dense     []float32
	Sparse    *sparse.Vector

	// Filter uses the Pinecone filter language, e.g.
	// {"$and": [{"title": {"$eq": "x"}}]}.
	Filter map[string]any
}

// Match is one neighbour, ordered by descending score.
type Match struct {
	ID       string
	Score    float32
	Text     string
	Metadata map[string]any
}

// Record is a vector to upsert.
type Record struct {
	ID       string
	Dense    []float32
	Sparse   *sparse.Vector
	Metadata map[string]any
}

// Index is the vector-index oracle.
type Index interface {
	Name() string

	// Query returns at most q.TopK matches in oracle order.
	Query(ctx context.Context, q Query) ([]Match, error)

	Upsert(ctx context.Context, namespace string, records []Record) error

	Close() error
}

func textFromMetadata(metadata map[string]any, textKey string) string {
	for _, key := range []string{textKey, "context", "content"} {
		if s, ok := metadata[key].(string); ok {
			return s
		}
	}
	return ""
}
