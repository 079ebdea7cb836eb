// Package sparse encodes text as BM25 sparse vectors for hybrid retrieval.
//
// Token ids are unsigned murmur3 hashes of analyzed terms, so vectors line up
// with indexes built by pinecone-text's BM25Encoder given the same params.
package sparse

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/twmb/murmur3"
)

// Vector is a sparse vector sorted by index.
type Vector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

func (v Vector) Len() int { return len(v.Indices) }

// Encoder turns text into sparse vectors.
type Encoder interface {
	EncodeQueries(texts ...string) ([]Vector, error)
	EncodeDocuments(texts ...string) ([]Vector, error)
}

// Params mirrors the BM25 parameter dump.
type Params struct {
	AvgDL   float64 `json:"avgdl"`
	NDocs   int     `json:"n_docs"`
	DocFreq struct {
		Indices []uint32  `json:"indices"`
		Values  []float64 `json:"values"`
	} `json:"doc_freq"`
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`
}

// BM25 is a fitted BM25 encoder. The zero value is not usable; use New,
// Fit or LoadParams.
type BM25 struct {
	k1       float64
	b        float64
	avgdl    float64
	nDocs    int
	docFreq  map[uint32]float64
	analyzer analysis.Analyzer
}

// New returns an unfitted encoder with the given k1 and b.
func New(k1, b float64) *BM25 {
	return &BM25{
		k1:       k1,
		b:        b,
		docFreq:  map[uint32]float64{},
		analyzer: mapping.NewIndexMapping().AnalyzerNamed(en.AnalyzerName),
	}
}

// LoadParams reads a parameter dump from path.
func LoadParams(path string) (*BM25, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bm25 params: %w", err)
	}
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse bm25 params %s: %w", path, err)
	}
	return FromParams(p)
}

func FromParams(p Params) (*BM25, error) {
	if len(p.DocFreq.Indices) != len(p.DocFreq.Values) {
		return nil, fmt.Errorf("bm25 params: doc_freq indices and values differ in length")
	}
	if p.NDocs <= 0 || p.AvgDL <= 0 {
		return nil, fmt.Errorf("bm25 params: n_docs and avgdl must be positive")
	}

	k1, b := p.K1, p.B
	if k1 == 0 {
		k1 = 1.2
	}
	if b == 0 {
		b = 0.75
	}

	enc := New(k1, b)
	enc.avgdl = p.AvgDL
	enc.nDocs = p.NDocs
	for i, idx := range p.DocFreq.Indices {
		enc.docFreq[idx] = p.DocFreq.Values[i]
	}
	return enc, nil
}

// Params returns the fitted parameters in dump form.
func (e *BM25) Params() Params {
	p := Params{AvgDL: e.avgdl, NDocs: e.nDocs, K1: e.k1, B: e.b}
	for idx := range e.docFreq {
		p.DocFreq.Indices = append(p.DocFreq.Indices, idx)
	}
	sort.Slice(p.DocFreq.Indices, func(i, j int) bool { return p.DocFreq.Indices[i] < p.DocFreq.Indices[j] })
	for _, idx := range p.DocFreq.Indices {
		p.DocFreq.Values = append(p.DocFreq.Values, e.docFreq[idx])
	}
	return p
}

// Fit computes corpus statistics over texts.
func (e *BM25) Fit(texts ...string) *BM25 {
	e.docFreq = map[uint32]float64{}
	e.nDocs = 0
	total := 0
	for _, text := range texts {
		tf := e.termFrequencies(text)
		e.nDocs++
		for idx, count := range tf {
			e.docFreq[idx]++
			total += count
		}
	}
	if e.nDocs > 0 {
		e.avgdl = float64(total) / float64(e.nDocs)
	}
	return e
}

// EncodeQueries returns normalized IDF weights for each distinct query term.
func (e *BM25) EncodeQueries(texts ...string) ([]Vector, error) {
	if e.nDocs == 0 {
		return nil, fmt.Errorf("bm25 encoder is not fitted")
	}
	out := make([]Vector, 0, len(texts))
	for _, text := range texts {
		indices := sortedKeys(e.termFrequencies(text))
		values := make([]float32, len(indices))

		var sum float64
		idf := make([]float64, len(indices))
		for i, idx := range indices {
			df, ok := e.docFreq[idx]
			if !ok {
				df = 1
			}
			idf[i] = math.Log((float64(e.nDocs) + 1) / (df + 0.5))
			sum += idf[i]
		}
		for i := range idf {
			if sum != 0 {
				values[i] = float32(idf[i] / sum)
			}
		}
		out = append(out, Vector{Indices: indices, Values: values})
	}
	return out, nil
}

// EncodeDocuments returns BM25-normalized term frequencies.
func (e *BM25) EncodeDocuments(texts ...string) ([]Vector, error) {
	if e.nDocs == 0 || e.avgdl == 0 {
		return nil, fmt.Errorf("bm25 encoder is not fitted")
	}
	out := make([]Vector, 0, len(texts))
	for _, text := range texts {
		tf := e.termFrequencies(text)
		indices := sortedKeys(tf)

		docLen := 0
		for _, count := range tf {
			docLen += count
		}

		values := make([]float32, len(indices))
		for i, idx := range indices {
			f := float64(tf[idx])
			values[i] = float32(f / (e.k1*(1-e.b+e.b*float64(docLen)/e.avgdl) + f))
		}
		out = append(out, Vector{Indices: indices, Values: values})
	}
	return out, nil
}

// Tokenize runs the English analyzer: lowercasing, stop-word removal and stemming.
func (e *BM25) Tokenize(text string) []string {
	stream := e.analyzer.Analyze([]byte(text))
	tokens := make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) == 0 {
			continue
		}
		tokens = append(tokens, string(tok.Term))
	}
	return tokens
}

func (e *BM25) termFrequencies(text string) map[uint32]int {
	tf := map[uint32]int{}
	for _, token := range e.Tokenize(text) {
		tf[murmur3.Sum32([]byte(token))]++
	}
	return tf
}

func sortedKeys(m map[uint32]int) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// QueryFitted encodes queries with an encoder fitted on the queries
// themselves, used when no corpus parameters are configured.
type QueryFitted struct {
	K1 float64
	B  float64
}

func (q QueryFitted) EncodeQueries(texts ...string) ([]Vector, error) {
	out := make([]Vector, 0, len(texts))
	for _, text := range texts {
		vecs, err := New(q.K1, q.B).Fit(text).EncodeQueries(text)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (q QueryFitted) EncodeDocuments(texts ...string) ([]Vector, error) {
	return New(q.K1, q.B).Fit(texts...).EncodeDocuments(texts...)
}
