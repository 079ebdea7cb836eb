// Package retrieval implements the semantic, self-query and hybrid
// retrieval adapters on top of the embedding and vector-index oracles.
package retrieval

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// DefaultMaxK bounds k when a retriever is built without an explicit limit.
const DefaultMaxK = 5

// Request is one retrieval call. Alpha is only read by hybrid retrieval,
// where 0 is pure keyword and 1 pure semantic matching.
type Request struct {
	Query     string
	Namespace string
	K         int
	Alpha     *float64
}

// Passage is one retrieved text with its relevance score.
type Passage struct {
	Text     string
	Score    float32
	Metadata map[string]any
}

// Retriever returns passages in descending relevance, at most Request.K.
type Retriever interface {
	Retrieve(ctx context.Context, req Request) ([]Passage, error)
}

// ValidateK checks 1 <= k <= maxK.
func ValidateK(k, maxK int) error {
	if maxK <= 0 {
		maxK = DefaultMaxK
	}
	if k < 1 || k > maxK {
		return &InvalidParameterError{Param: "k", Value: k, Reason: "must be between 1 and " + strconv.Itoa(maxK)}
	}
	return nil
}

// ValidateAlpha checks alpha is present and within [0,1].
func ValidateAlpha(alpha *float64) error {
	if alpha == nil {
		return &InvalidParameterError{Param: "alpha", Value: "<nil>", Reason: "is required for hybrid retrieval"}
	}
	if !(*alpha >= 0 && *alpha <= 1) {
		return &InvalidParameterError{Param: "alpha", Value: *alpha, Reason: "must be between 0 and 1"}
	}
	return nil
}

// Concat joins passage texts, each followed by a blank line.
func Concat(passages []Passage) string {
	var b strings.Builder
	for _, p := range passages {
		b.WriteString(p.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// ScorePolicy optionally drops weak passages. Disabled keeps everything.
type ScorePolicy struct {
	Enabled  bool
	MinScore float64
}

// Validate rejects a minimum score that no passage score can be compared with.
func (p ScorePolicy) Validate() error {
	if math.IsNaN(p.MinScore) || math.IsInf(p.MinScore, 0) {
		return &InvalidParameterError{Param: "min_score", Value: p.MinScore, Reason: "must be a finite number"}
	}
	return nil
}

// Apply keeps passages scoring above MinScore when enabled.
func (p ScorePolicy) Apply(passages []Passage) []Passage {
	if !p.Enabled {
		return passages
	}
	kept := passages[:0:0]
	for _, passage := range passages {
		if passage.Score > float32(p.MinScore) {
			kept = append(kept, passage)
		}
	}
	return kept
}
