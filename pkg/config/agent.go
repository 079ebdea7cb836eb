package config

import (
	"fmt"
	"math"
)

// AgentConfig configures the routing loop.
type AgentConfig struct {
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`

	// MaxObservationTokens truncates tool output fed back to the LLM. 0 disables.
	MaxObservationTokens int `yaml:"max_observation_tokens,omitempty" json:"max_observation_tokens,omitempty"`

	// TemplatePath overrides the built-in instruction template.
	TemplatePath string `yaml:"template_path,omitempty" json:"template_path,omitempty"`

	// AnswerLanguage is appended to the final-answer instruction when set.
	AnswerLanguage string `yaml:"answer_language,omitempty" json:"answer_language,omitempty"`

	IterationLimitMessage string `yaml:"iteration_limit_message,omitempty" json:"iteration_limit_message,omitempty"`
}

func (c *AgentConfig) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 4
	}
	if c.IterationLimitMessage == "" {
		c.IterationLimitMessage = "Agent stopped due to iteration limit."
	}
}

func (c *AgentConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1")
	}
	if c.MaxObservationTokens < 0 {
		return fmt.Errorf("max_observation_tokens must be non-negative")
	}
	return nil
}

// MemoryConfig configures conversation memory.
type MemoryConfig struct {
	Window int `yaml:"window,omitempty" json:"window,omitempty"`
}

func (c *MemoryConfig) SetDefaults() {
	if c.Window == 0 {
		c.Window = 4
	}
}

func (c *MemoryConfig) Validate() error {
	if c.Window < 1 {
		return fmt.Errorf("window must be at least 1")
	}
	return nil
}

// DirectReturnConfig holds per-tool direct-return flags. Unset flags default to true.
type DirectReturnConfig struct {
	Semantic  *bool `yaml:"semantic,omitempty" json:"semantic,omitempty"`
	SelfQuery *bool `yaml:"self_query,omitempty" json:"self_query,omitempty"`
	Hybrid    *bool `yaml:"hybrid,omitempty" json:"hybrid,omitempty"`
	CSV       *bool `yaml:"csv,omitempty" json:"csv,omitempty"`
}

func (c *DirectReturnConfig) SetDefaults() {
	for _, flag := range []**bool{&c.Semantic, &c.SelfQuery, &c.Hybrid, &c.CSV} {
		if *flag == nil {
			v := true
			*flag = &v
		}
	}
}

// ScoreThresholdConfig configures optional relevance filtering.
type ScoreThresholdConfig struct {
	Enabled  bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	MinScore float64 `yaml:"min_score,omitempty" json:"min_score,omitempty"`
}

// SessionConfig holds defaults for new sessions.
type SessionConfig struct {
	SemanticNamespace  string `yaml:"semantic_namespace,omitempty" json:"semantic_namespace,omitempty"`
	SelfQueryNamespace string `yaml:"self_query_namespace,omitempty" json:"self_query_namespace,omitempty"`
	HybridNamespace    string `yaml:"hybrid_namespace,omitempty" json:"hybrid_namespace,omitempty"`

	K    int `yaml:"k,omitempty" json:"k,omitempty"`
	MaxK int `yaml:"max_k,omitempty" json:"max_k,omitempty"`

	Alpha *float64 `yaml:"alpha,omitempty" json:"alpha,omitempty"`

	DirectReturn DirectReturnConfig `yaml:"direct_return,omitempty" json:"direct_return,omitempty"`

	// UseOriginalQuestion hands tools the user's question instead of the
	// agent's reformulated action input. Defaults to true.
	UseOriginalQuestion *bool `yaml:"use_original_question,omitempty" json:"use_original_question,omitempty"`

	ScoreThreshold ScoreThresholdConfig `yaml:"score_threshold,omitempty" json:"score_threshold,omitempty"`

	// SystemPrompt is prefixed to every question. SystemPromptPath wins when both are set.
	SystemPrompt     string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	SystemPromptPath string `yaml:"system_prompt_path,omitempty" json:"system_prompt_path,omitempty"`

	// DocumentContents describes the self-query corpus to the LLM.
	DocumentContents string `yaml:"document_contents,omitempty" json:"document_contents,omitempty"`
}

func (c *SessionConfig) SetDefaults() {
	if c.SemanticNamespace == "" {
		c.SemanticNamespace = "positive"
	}
	if c.SelfQueryNamespace == "" {
		c.SelfQueryNamespace = "sistematizacija3"
	}
	if c.HybridNamespace == "" {
		c.HybridNamespace = "pravnikkraciprazan"
	}
	if c.MaxK == 0 {
		c.MaxK = 5
	}
	if c.K == 0 {
		c.K = 3
	}
	if c.Alpha == nil {
		a := 0.5
		c.Alpha = &a
	}
	c.DirectReturn.SetDefaults()
	if c.UseOriginalQuestion == nil {
		v := true
		c.UseOriginalQuestion = &v
	}
	if c.ScoreThreshold.MinScore == 0 {
		c.ScoreThreshold.MinScore = 0.05
	}
	if c.DocumentContents == "" {
		c.DocumentContents = "job position systematization"
	}
}

func (c *SessionConfig) Validate() error {
	if c.MaxK < 1 {
		return fmt.Errorf("max_k must be at least 1")
	}
	if c.K < 1 || c.K > c.MaxK {
		return fmt.Errorf("k must be within [1,%d], got %d", c.MaxK, c.K)
	}
	if c.Alpha != nil && !(*c.Alpha >= 0 && *c.Alpha <= 1) {
		return fmt.Errorf("alpha must be within [0,1], got %v", *c.Alpha)
	}
	if math.IsNaN(c.ScoreThreshold.MinScore) || math.IsInf(c.ScoreThreshold.MinScore, 0) {
		return fmt.Errorf("min_score must be a finite number")
	}
	return nil
}

// ToolsConfig tunes the tool set offered to the router.
type ToolsConfig struct {
	// HybridPresets adds fixed-alpha keyword and semantic hybrid tools.
	HybridPresets bool `yaml:"hybrid_presets,omitempty" json:"hybrid_presets,omitempty"`

	// WebSearch disables the web tool when explicitly false.
	WebSearch *bool `yaml:"web_search,omitempty" json:"web_search,omitempty"`

	// Descriptions overrides tool descriptions by tool name.
	Descriptions map[string]string `yaml:"descriptions,omitempty" json:"descriptions,omitempty"`
}

func (c *ToolsConfig) SetDefaults() {
	if c.WebSearch == nil {
		enabled := true
		c.WebSearch = &enabled
	}
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address string `yaml:"address,omitempty" json:"address,omitempty"`

	// ReadTimeout and WriteTimeout in seconds.
	ReadTimeout  int `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout int `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`

	// MaxUploadBytes bounds dataset uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes,omitempty" json:"max_upload_bytes,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 300
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 32 << 20
	}
}

func (c *ServerConfig) Validate() error {
	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("max_upload_bytes must be non-negative")
	}
	return nil
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Format {
	case "simple", "verbose", "json", "text":
		return nil
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Exporter is "otlp" (gRPC) or "stdout".
	Exporter     string  `yaml:"exporter,omitempty" json:"exporter,omitempty"`
	Endpoint     string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty" json:"service_name,omitempty"`
}

func (c *TracingConfig) SetDefaults() {
	if c.Exporter == "" {
		c.Exporter = "otlp"
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1
	}
	if c.ServiceName == "" {
		c.ServiceName = "multitool"
	}
}

func (c *TracingConfig) Validate() error {
	switch c.Exporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("unsupported exporter %q", c.Exporter)
	}
	if !(c.SamplingRate > 0 && c.SamplingRate <= 1) {
		return fmt.Errorf("sampling_rate must be in (0, 1]")
	}
	return nil
}
