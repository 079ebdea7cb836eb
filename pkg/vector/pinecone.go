package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/positive-doo/multitool/pkg/oracle"
)

// PineconeConfig configures one Pinecone index.
type PineconeConfig struct {
	APIKey string

	// IndexName is resolved to a host through DescribeIndex unless Host is set.
	IndexName string
	Host      string

	TextKey string
}

// PineconeIndex implements Index on a Pinecone serverless or pod index.
// Sparse queries require a dotproduct index.
type PineconeIndex struct {
	client    *pinecone.Client
	indexName string
	textKey   string

	mu    sync.Mutex
	host  string
	conns map[string]*pinecone.IndexConnection
}

func NewPineconeIndex(cfg PineconeConfig) (*PineconeIndex, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Pinecone")
	}
	if cfg.IndexName == "" && cfg.Host == "" {
		return nil, fmt.Errorf("index name or host is required for Pinecone")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	return &PineconeIndex{
		client:    client,
		indexName: cfg.IndexName,
		textKey:   cfg.TextKey,
		host:      cfg.Host,
		conns:     make(map[string]*pinecone.IndexConnection),
	}, nil
}

func (p *PineconeIndex) Name() string {
	return "pinecone/" + p.indexName
}

// connection returns a cached IndexConnection for namespace.
func (p *PineconeIndex) connection(ctx context.Context, namespace string) (*pinecone.IndexConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[namespace]; ok {
		return conn, nil
	}

	if p.host == "" {
		index, err := p.client.DescribeIndex(ctx, p.indexName)
		if err != nil {
			return nil, fmt.Errorf("failed to describe index %s: %w", p.indexName, err)
		}
		p.host = index.Host
	}

	conn, err := p.client.Index(pinecone.NewIndexConnParams{
		Host:      p.host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index connection: %w", err)
	}

	p.conns[namespace] = conn
	return conn, nil
}

func (p *PineconeIndex) Query(ctx context.Context, q Query) ([]Match, error) {
	if q.TopK < 1 {
		return nil, fmt.Errorf("topK must be at least 1")
	}

	conn, err := p.connection(ctx, q.Namespace)
	if err != nil {
		return nil, oracle.Wrap("pinecone", "connect", err)
	}

	var metadataFilter *pinecone.MetadataFilter
	if len(q.Filter) > 0 {
		metadataFilter, err = structpb.NewStruct(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("failed to convert filter: %w", err)
		}
	}

	req := &pinecone.QueryByVectorValuesRequest{
		Vector:          q.Dense,
		TopK:            uint32(q.TopK),
		MetadataFilter:  metadataFilter,
		IncludeMetadata: true,
	}
	if q.Sparse != nil && q.Sparse.Len() > 0 {
		req.SparseValues = &pinecone.SparseValues{
			Indices: q.Sparse.Indices,
			Values:  q.Sparse.Values,
		}
	}

	resp, err := conn.QueryByVectorValues(ctx, req)
	if err != nil {
		return nil, oracle.Wrap("pinecone", "query", err)
	}

	return p.convertMatches(resp.Matches), nil
}

func (p *PineconeIndex) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	conn, err := p.connection(ctx, namespace)
	if err != nil {
		return oracle.Wrap("pinecone", "connect", err)
	}

	vectors := make([]*pinecone.Vector, 0, len(records))
	for _, rec := range records {
		v := &pinecone.Vector{Id: rec.ID, Values: rec.Dense}
		if len(rec.Metadata) > 0 {
			v.Metadata, err = structpb.NewStruct(rec.Metadata)
			if err != nil {
				return fmt.Errorf("failed to convert metadata for %s: %w", rec.ID, err)
			}
		}
		if rec.Sparse != nil && rec.Sparse.Len() > 0 {
			v.SparseValues = &pinecone.SparseValues{
				Indices: rec.Sparse.Indices,
				Values:  rec.Sparse.Values,
			}
		}
		vectors = append(vectors, v)
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return oracle.Wrap("pinecone", "upsert", err)
	}
	return nil
}

func (p *PineconeIndex) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for ns, conn := range p.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection for namespace %q: %w", ns, err)
		}
		delete(p.conns, ns)
	}
	return firstErr
}

func (p *PineconeIndex) convertMatches(matches []*pinecone.ScoredVector) []Match {
	out := make([]Match, 0, len(matches))
	for _, scored := range matches {
		if scored == nil || scored.Vector == nil {
			continue
		}

		metadata := map[string]any{}
		if scored.Vector.Metadata != nil {
			metadata = scored.Vector.Metadata.AsMap()
		}

		out = append(out, Match{
			ID:       scored.Vector.Id,
			Score:    scored.Score,
			Text:     textFromMetadata(metadata, p.textKey),
			Metadata: metadata,
		})
	}
	return out
}

var _ Index = (*PineconeIndex)(nil)
