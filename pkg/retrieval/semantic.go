package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/positive-doo/multitool/pkg/embedders"
	"github.com/positive-doo/multitool/pkg/vector"
)

// Semantic embeds the query and returns its k nearest passages.
type Semantic struct {
	Embedder embedders.Embedder
	Index    vector.Index
	Policy   ScorePolicy
	MaxK     int
}

func (s *Semantic) Retrieve(ctx context.Context, req Request) ([]Passage, error) {
	if err := ValidateK(req.K, s.MaxK); err != nil {
		return nil, err
	}

	dense, err := s.Embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return query(ctx, s.Index, s.Policy, vector.Query{
		Namespace: req.Namespace,
		TopK:      req.K,
		Dense:     dense,
	})
}

// query runs q and converts matches to passages in oracle order.
func query(ctx context.Context, index vector.Index, policy ScorePolicy, q vector.Query) ([]Passage, error) {
	matches, err := index.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", index.Name(), err)
	}

	passages := make([]Passage, 0, min(len(matches), q.TopK))
	for _, m := range matches {
		if len(passages) == q.TopK {
			break
		}
		passages = append(passages, Passage{Text: m.Text, Score: m.Score, Metadata: m.Metadata})
	}

	kept := policy.Apply(passages)
	slog.Debug("Retrieved passages",
		"index", index.Name(),
		"namespace", q.Namespace,
		"k", q.TopK,
		"returned", len(passages),
		"kept", len(kept))
	return kept, nil
}
