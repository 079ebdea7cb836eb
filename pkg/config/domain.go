package config

import (
	"fmt"
	"os"
)

const (
	VectorTypePinecone = "pinecone"
	VectorTypeChromem  = "chromem"
)

// VectorConfig configures the vector-index oracle.
type VectorConfig struct {
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Host skips index description when set (pinecone).
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// IndexName serves semantic and self-query retrieval.
	IndexName string `yaml:"index_name,omitempty" json:"index_name,omitempty"`

	// HybridIndexName must be a dotproduct index for sparse-dense queries.
	HybridIndexName string `yaml:"hybrid_index_name,omitempty" json:"hybrid_index_name,omitempty"`

	HybridHost string `yaml:"hybrid_host,omitempty" json:"hybrid_host,omitempty"`

	// TextKey is the metadata key holding passage text.
	TextKey string `yaml:"text_key,omitempty" json:"text_key,omitempty"`

	// PersistPath enables on-disk storage (chromem).
	PersistPath string `yaml:"persist_path,omitempty" json:"persist_path,omitempty"`

	Compress bool `yaml:"compress,omitempty" json:"compress,omitempty"`
}

func (c *VectorConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = VectorTypePinecone
	}
	if c.APIKey == "" && c.Type == VectorTypePinecone {
		c.APIKey = os.Getenv("PINECONE_API_KEY")
	}
	if c.IndexName == "" {
		c.IndexName = "embedings1"
	}
	if c.HybridIndexName == "" {
		c.HybridIndexName = "bis"
	}
	if c.TextKey == "" {
		c.TextKey = "text"
	}
}

func (c *VectorConfig) Validate() error {
	switch c.Type {
	case VectorTypePinecone:
		if c.APIKey == "" {
			return fmt.Errorf("api_key is required for pinecone (set PINECONE_API_KEY)")
		}
	case VectorTypeChromem:
	default:
		return fmt.Errorf("unsupported type %q (supported: pinecone, chromem)", c.Type)
	}
	if c.IndexName == "" || c.HybridIndexName == "" {
		return fmt.Errorf("index_name and hybrid_index_name are required")
	}
	return nil
}

// SparseConfig configures the BM25 encoder.
type SparseConfig struct {
	// ParamsPath points at a BM25 parameter dump. Empty fits on each query.
	ParamsPath string `yaml:"params_path,omitempty" json:"params_path,omitempty"`

	K1 float64 `yaml:"k1,omitempty" json:"k1,omitempty"`

	B float64 `yaml:"b,omitempty" json:"b,omitempty"`
}

func (c *SparseConfig) SetDefaults() {
	if c.K1 == 0 {
		c.K1 = 1.2
	}
	if c.B == 0 {
		c.B = 0.75
	}
}

func (c *SparseConfig) Validate() error {
	if c.K1 < 0 || c.B < 0 || c.B > 1 {
		return fmt.Errorf("k1 must be non-negative and b within [0,1]")
	}
	return nil
}

// SearchConfig configures the web-search oracle.
type SearchConfig struct {
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	NumResults int `yaml:"num_results,omitempty" json:"num_results,omitempty"`

	Country string `yaml:"country,omitempty" json:"country,omitempty"`

	Language string `yaml:"language,omitempty" json:"language,omitempty"`

	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func (c *SearchConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "serper"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("SERPER_API_KEY")
	}
	if c.Host == "" {
		c.Host = "https://google.serper.dev"
	}
	if c.NumResults == 0 {
		c.NumResults = 10
	}
	if c.Country == "" {
		c.Country = "us"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
}

func (c *SearchConfig) Validate() error {
	if c.Provider != "serper" {
		return fmt.Errorf("unsupported provider %q (supported: serper)", c.Provider)
	}
	if c.NumResults < 1 {
		return fmt.Errorf("num_results must be at least 1")
	}
	return nil
}

// TabularConfig configures the tabular QA oracle.
type TabularConfig struct {
	MaxAttempts int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`

	// QueryTimeout in seconds.
	QueryTimeout int `yaml:"query_timeout,omitempty" json:"query_timeout,omitempty"`

	SampleRows int `yaml:"sample_rows,omitempty" json:"sample_rows,omitempty"`

	MaxResultRows int `yaml:"max_result_rows,omitempty" json:"max_result_rows,omitempty"`

	NoDatasetMessage string `yaml:"no_dataset_message,omitempty" json:"no_dataset_message,omitempty"`
}

func (c *TabularConfig) SetDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10
	}
	if c.SampleRows == 0 {
		c.SampleRows = 3
	}
	if c.MaxResultRows == 0 {
		c.MaxResultRows = 50
	}
	if c.NoDatasetMessage == "" {
		c.NoDatasetMessage = "No CSV file has been selected for search."
	}
}

func (c *TabularConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.SampleRows < 0 || c.MaxResultRows < 1 {
		return fmt.Errorf("sample_rows must be non-negative and max_result_rows positive")
	}
	return nil
}
