package vector

import (
	"fmt"

	"github.com/positive-doo/multitool/pkg/config"
)

// Indexes holds the dense index (semantic and self-query retrieval) and
// the sparse-dense index used by hybrid retrieval.
type Indexes struct {
	Dense  Index
	Hybrid Index
}

func (i *Indexes) Close() error {
	if err := i.Dense.Close(); err != nil {
		return err
	}
	if i.Hybrid != i.Dense {
		return i.Hybrid.Close()
	}
	return nil
}

// NewFromConfig builds the configured indexes.
func NewFromConfig(cfg *config.VectorConfig) (*Indexes, error) {
	switch cfg.Type {
	case config.VectorTypePinecone:
		dense, err := NewPineconeIndex(PineconeConfig{
			APIKey:    cfg.APIKey,
			IndexName: cfg.IndexName,
			Host:      cfg.Host,
			TextKey:   cfg.TextKey,
		})
		if err != nil {
			return nil, err
		}
		hybrid, err := NewPineconeIndex(PineconeConfig{
			APIKey:    cfg.APIKey,
			IndexName: cfg.HybridIndexName,
			Host:      cfg.HybridHost,
			TextKey:   cfg.TextKey,
		})
		if err != nil {
			return nil, err
		}
		return &Indexes{Dense: dense, Hybrid: hybrid}, nil

	case config.VectorTypeChromem:
		dense, err := NewChromemIndex(ChromemConfig{
			Name:        cfg.IndexName,
			PersistPath: cfg.PersistPath,
			Compress:    cfg.Compress,
			TextKey:     cfg.TextKey,
		})
		if err != nil {
			return nil, err
		}
		return &Indexes{Dense: dense, Hybrid: dense.Share(cfg.HybridIndexName)}, nil

	default:
		return nil, fmt.Errorf("unsupported vector type: %s", cfg.Type)
	}
}
