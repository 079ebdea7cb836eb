package retrieval

import (
	"context"
	"fmt"

	"github.com/positive-doo/multitool/pkg/embedders"
	"github.com/positive-doo/multitool/pkg/sparse"
	"github.com/positive-doo/multitool/pkg/vector"
)

// HybridScale weights a dense vector by alpha and sparse values by 1-alpha.
// Inputs are not modified.
func HybridScale(dense []float32, sp sparse.Vector, alpha float64) ([]float32, sparse.Vector, error) {
	if err := ValidateAlpha(&alpha); err != nil {
		return nil, sparse.Vector{}, err
	}

	scaledDense := make([]float32, len(dense))
	for i, v := range dense {
		scaledDense[i] = float32(float64(v) * alpha)
	}

	scaledSparse := sparse.Vector{
		Indices: append([]uint32(nil), sp.Indices...),
		Values:  make([]float32, len(sp.Values)),
	}
	for i, v := range sp.Values {
		scaledSparse.Values[i] = float32(float64(v) * (1 - alpha))
	}
	return scaledDense, scaledSparse, nil
}

// Hybrid blends keyword (BM25) and semantic relevance in one index query.
type Hybrid struct {
	Embedder embedders.Embedder
	Encoder  sparse.Encoder
	Index    vector.Index
	Policy   ScorePolicy
	MaxK     int
}

func (h *Hybrid) Retrieve(ctx context.Context, req Request) ([]Passage, error) {
	if err := ValidateK(req.K, h.MaxK); err != nil {
		return nil, err
	}
	if err := ValidateAlpha(req.Alpha); err != nil {
		return nil, err
	}

	dense, err := h.Embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sparseVecs, err := h.Encoder.EncodeQueries(req.Query)
	if err != nil {
		return nil, fmt.Errorf("encode sparse query: %w", err)
	}
	var sp sparse.Vector
	if len(sparseVecs) > 0 {
		sp = sparseVecs[0]
	}

	hdense, hsparse, err := HybridScale(dense, sp, *req.Alpha)
	if err != nil {
		return nil, err
	}

	return query(ctx, h.Index, h.Policy, vector.Query{
		Namespace: req.Namespace,
		TopK:      req.K,
		Dense:     hdense,
		Sparse:    &hsparse,
	})
}
