package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/positive-doo/multitool/pkg/oracle"
)

// ChromemConfig configures the embedded index.
type ChromemConfig struct {
	// Name prefixes collection names so several logical indexes can share a DB.
	Name string

	// PersistPath enables file persistence. Empty keeps vectors in memory.
	PersistPath string

	Compress bool

	TextKey string
}

// ChromemIndex implements Index with chromem-go. It stores one collection per
// namespace, supports equality filters only and rejects sparse queries.
type ChromemIndex struct {
	db       *chromem.DB
	name     string
	textKey  string
	dbPath   string
	compress bool

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewChromemIndex opens (or creates) an embedded index.
func NewChromemIndex(cfg ChromemConfig) (*ChromemIndex, error) {
	return newChromemIndex(cfg, chromem.NewDB())
}

// Share returns another logical index on the same database.
func (p *ChromemIndex) Share(name string) *ChromemIndex {
	return &ChromemIndex{
		db:          p.db,
		name:        name,
		textKey:     p.textKey,
		dbPath:      p.dbPath,
		compress:    p.compress,
		collections: make(map[string]*chromem.Collection),
	}
}

func newChromemIndex(cfg ChromemConfig, db *chromem.DB) (*ChromemIndex, error) {
	idx := &ChromemIndex{
		db:          db,
		name:        cfg.Name,
		textKey:     cfg.TextKey,
		compress:    cfg.Compress,
		collections: make(map[string]*chromem.Collection),
	}

	if cfg.PersistPath == "" {
		slog.Debug("Created in-memory vector database", "index", cfg.Name)
		return idx, nil
	}

	if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create persist directory: %w", err)
	}

	idx.dbPath = filepath.Join(cfg.PersistPath, "vectors.gob")
	if cfg.Compress {
		idx.dbPath += ".gz"
	}

	if _, err := os.Stat(idx.dbPath); err == nil {
		if err := db.ImportFromFile(idx.dbPath, ""); err != nil {
			slog.Warn("Failed to load existing vector database, starting empty",
				"path", idx.dbPath,
				"error", err)
		} else {
			slog.Info("Loaded vector database from file", "path", idx.dbPath)
		}
	}
	return idx, nil
}

func (p *ChromemIndex) Name() string {
	return "chromem/" + p.name
}

func (p *ChromemIndex) collectionName(namespace string) string {
	return p.name + ":" + namespace
}

// precomputed rejects calls; every vector arrives embedded already.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding function called but vectors should be pre-computed")
}

func (p *ChromemIndex) collection(namespace string) (*chromem.Collection, error) {
	p.mu.RLock()
	col, ok := p.collections[namespace]
	p.mu.RUnlock()
	if ok {
		return col, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if col, ok := p.collections[namespace]; ok {
		return col, nil
	}

	col, err := p.db.GetOrCreateCollection(p.collectionName(namespace), nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", namespace, err)
	}
	p.collections[namespace] = col
	return col, nil
}

func (p *ChromemIndex) Query(ctx context.Context, q Query) ([]Match, error) {
	if q.TopK < 1 {
		return nil, fmt.Errorf("topK must be at least 1")
	}
	if q.Sparse != nil && q.Sparse.Len() > 0 {
		return nil, ErrSparseUnsupported
	}

	where, err := equalityFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	col, err := p.collection(q.Namespace)
	if err != nil {
		return nil, err
	}

	n := min(q.TopK, col.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, q.Dense, n, where, nil)
	if err != nil {
		return nil, oracle.Wrap("chromem", "query", err)
	}

	out := make([]Match, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		out = append(out, Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Text:     r.Content,
			Metadata: metadata,
		})
	}
	return out, nil
}

func (p *ChromemIndex) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	col, err := p.collection(namespace)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, rec := range records {
		// chromem only stores string metadata
		strMetadata := make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			strMetadata[k] = fmt.Sprint(v)
		}
		docs = append(docs, chromem.Document{
			ID:        rec.ID,
			Content:   textFromMetadata(rec.Metadata, p.textKey),
			Metadata:  strMetadata,
			Embedding: rec.Dense,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return oracle.Wrap("chromem", "upsert", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after upsert", "error", err)
	}
	return nil
}

func (p *ChromemIndex) Close() error {
	return p.persist()
}

func (p *ChromemIndex) persist() error {
	if p.dbPath == "" {
		return nil
	}
	if err := p.db.ExportToFile(p.dbPath, p.compress, ""); err != nil {
		return fmt.Errorf("failed to persist database: %w", err)
	}
	return nil
}

// equalityFilter lowers a Pinecone filter made of $eq clauses (optionally
// under $and) to chromem's where map.
func equalityFilter(filter map[string]any) (map[string]string, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	where := map[string]string{}
	var walk func(map[string]any) error
	walk = func(f map[string]any) error {
		for key, value := range f {
			if key == "$and" {
				clauses, ok := value.([]any)
				if !ok {
					return fmt.Errorf("chromem: $and expects a list")
				}
				for _, clause := range clauses {
					m, ok := clause.(map[string]any)
					if !ok {
						return fmt.Errorf("chromem: invalid $and clause")
					}
					if err := walk(m); err != nil {
						return err
					}
				}
				continue
			}

			switch v := value.(type) {
			case map[string]any:
				if len(v) != 1 {
					return fmt.Errorf("chromem: unsupported filter on %q", key)
				}
				eq, ok := v["$eq"]
				if !ok {
					return fmt.Errorf("chromem: only $eq filters are supported (field %q)", key)
				}
				where[key] = fmt.Sprint(eq)
			default:
				where[key] = fmt.Sprint(v)
			}
		}
		return nil
	}

	if err := walk(filter); err != nil {
		return nil, err
	}
	return where, nil
}

var _ Index = (*ChromemIndex)(nil)
