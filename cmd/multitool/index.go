package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/positive-doo/multitool/pkg/embedders"
	"github.com/positive-doo/multitool/pkg/ingest"
	"github.com/positive-doo/multitool/pkg/sparse"
	"github.com/positive-doo/multitool/pkg/utils"
	"github.com/positive-doo/multitool/pkg/vector"
)

// IndexCmd embeds JSONL passages and upserts them into a namespace.
type IndexCmd struct {
	Namespace string `arg:"" help:"Target namespace."`
	File      string `arg:"" help:"JSONL file, one {\"id\", \"text\", ...} object per line." type:"existingfile"`

	Hybrid      bool   `help:"Write to the hybrid index with BM25 sparse vectors."`
	SaveParams  string `name:"save-params" help:"Write the fitted BM25 parameters to this path (hybrid only)." type:"path" placeholder:"PATH"`
	Concurrency int    `help:"Concurrent embedding batches." default:"4"`
}

func (c *IndexCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	prefix := strings.TrimSuffix(filepath.Base(c.File), filepath.Ext(c.File))
	docs, err := ingest.ReadJSONL(f, prefix)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("%s has no documents", c.File)
	}

	embedder, err := embedders.NewOpenAIEmbedderFromConfig(&cfg.Embedder)
	if err != nil {
		return err
	}
	indexes, err := vector.NewFromConfig(&cfg.Vector)
	if err != nil {
		return err
	}
	defer indexes.Close()

	ix := &ingest.Indexer{
		Embedder:    embedder,
		Index:       indexes.Dense,
		TextKey:     cfg.Vector.TextKey,
		BatchSize:   cfg.Embedder.BatchSize,
		Concurrency: c.Concurrency,
	}

	if c.Hybrid {
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.Text
		}
		enc, err := corpusEncoder(cfg.Sparse.ParamsPath, cfg.Sparse.K1, cfg.Sparse.B, texts)
		if err != nil {
			return err
		}
		if c.SaveParams != "" {
			if err := saveParams(c.SaveParams, enc.Params()); err != nil {
				return err
			}
			slog.Info("BM25 parameters saved", "path", c.SaveParams)
		}
		ix.Index = indexes.Hybrid
		ix.Encoder = enc
	}

	start := time.Now()
	n, err := ix.Run(ctx, c.Namespace, docs)
	if err != nil {
		return fmt.Errorf("indexed %d of %d documents: %w", n, len(docs), err)
	}
	fmt.Printf("Indexed %d documents into %s/%s in %s\n", n, ix.Index.Name(), c.Namespace, time.Since(start).Round(time.Millisecond))
	return nil
}

// corpusEncoder uses the configured parameters when present, else fits on texts.
func corpusEncoder(paramsPath string, k1, b float64, texts []string) (*sparse.BM25, error) {
	if paramsPath != "" {
		return sparse.LoadParams(paramsPath)
	}
	return sparse.New(k1, b).Fit(texts...), nil
}

func saveParams(path string, p sparse.Params) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode bm25 params: %w", err)
	}
	return utils.WriteFileAtomic(path, data)
}
