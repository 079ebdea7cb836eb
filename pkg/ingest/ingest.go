// Package ingest loads JSONL passages into a vector index.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/positive-doo/multitool/pkg/embedders"
	"github.com/positive-doo/multitool/pkg/sparse"
	"github.com/positive-doo/multitool/pkg/vector"
)

// Document is one JSONL line. Fields other than id, text and metadata are
// folded into Metadata.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ReadJSONL parses one document per non-empty line. Missing ids become
// "<prefix>-<line>".
func ReadJSONL(r io.Reader, prefix string) ([]Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var docs []Document
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		doc, err := documentFrom(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if doc.ID == "" {
			doc.ID = fmt.Sprintf("%s-%d", prefix, line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

func documentFrom(fields map[string]any) (Document, error) {
	var doc Document

	text, _ := fields["text"].(string)
	if strings.TrimSpace(text) == "" {
		return doc, fmt.Errorf("text is required")
	}
	doc.Text = text

	switch id := fields["id"].(type) {
	case nil:
	case string:
		doc.ID = id
	default:
		doc.ID = fmt.Sprint(id)
	}

	doc.Metadata = map[string]any{}
	if md, ok := fields["metadata"].(map[string]any); ok {
		for k, v := range md {
			doc.Metadata[k] = v
		}
	}
	for k, v := range fields {
		switch k {
		case "id", "text", "metadata":
		default:
			doc.Metadata[k] = v
		}
	}
	return doc, nil
}

// Indexer embeds documents in batches and upserts them. Encoder is optional;
// when set every record also carries a BM25 sparse vector.
type Indexer struct {
	Embedder    embedders.Embedder
	Encoder     sparse.Encoder
	Index       vector.Index
	TextKey     string
	BatchSize   int
	Concurrency int
}

// Run indexes docs into namespace and returns the number of records written.
func (ix *Indexer) Run(ctx context.Context, namespace string, docs []Document) (int, error) {
	if ix.Embedder == nil || ix.Index == nil {
		return 0, fmt.Errorf("embedder and index are required")
	}

	size := ix.BatchSize
	if size <= 0 {
		size = 64
	}
	limit := ix.Concurrency
	if limit <= 0 {
		limit = 4
	}
	textKey := ix.TextKey
	if textKey == "" {
		textKey = "text"
	}

	var written atomic.Int64
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	for start := 0; start < len(docs); start += size {
		batch := docs[start:min(start+size, len(docs))]
		group.Go(func() error {
			records, err := ix.records(gctx, batch, textKey)
			if err != nil {
				return err
			}
			if err := ix.Index.Upsert(gctx, namespace, records); err != nil {
				return fmt.Errorf("failed to upsert batch at %s: %w", batch[0].ID, err)
			}
			n := written.Add(int64(len(records)))
			slog.Debug("Batch indexed", "namespace", namespace, "batch", len(records), "total", n)
			return nil
		})
	}

	err := group.Wait()
	return int(written.Load()), err
}

func (ix *Indexer) records(ctx context.Context, batch []Document, textKey string) ([]vector.Record, error) {
	texts := make([]string, len(batch))
	for i, doc := range batch {
		texts[i] = doc.Text
	}

	dense, err := ix.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch at %s: %w", batch[0].ID, err)
	}
	if len(dense) != len(batch) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(dense), len(batch))
	}

	var sparseVecs []sparse.Vector
	if ix.Encoder != nil {
		sparseVecs, err = ix.Encoder.EncodeDocuments(texts...)
		if err != nil {
			return nil, fmt.Errorf("failed to encode batch at %s: %w", batch[0].ID, err)
		}
	}

	records := make([]vector.Record, len(batch))
	for i, doc := range batch {
		md := make(map[string]any, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			md[k] = v
		}
		md[textKey] = doc.Text

		records[i] = vector.Record{ID: doc.ID, Dense: dense[i], Metadata: md}
		if sparseVecs != nil {
			sv := sparseVecs[i]
			records[i].Sparse = &sv
		}
	}
	return records, nil
}
