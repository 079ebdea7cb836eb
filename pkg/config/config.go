// Package config defines the multitool configuration tree and its loader.
package config

import (
	"errors"
	"fmt"
)

// Config is the root configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm" json:"llm"`
	Embedder EmbedderConfig `yaml:"embedder" json:"embedder"`
	Vector   VectorConfig   `yaml:"vector" json:"vector"`
	Sparse   SparseConfig   `yaml:"sparse" json:"sparse"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Tabular  TabularConfig  `yaml:"tabular" json:"tabular"`
	Agent    AgentConfig    `yaml:"agent" json:"agent"`
	Memory   MemoryConfig   `yaml:"memory" json:"memory"`
	Session  SessionConfig  `yaml:"session" json:"session"`
	Tools    ToolsConfig    `yaml:"tools" json:"tools"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Tracing  TracingConfig  `yaml:"tracing" json:"tracing"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Embedder.SetDefaults()
	c.Vector.SetDefaults()
	c.Sparse.SetDefaults()
	c.Search.SetDefaults()
	c.Tabular.SetDefaults()
	c.Agent.SetDefaults()
	c.Memory.SetDefaults()
	c.Session.SetDefaults()
	c.Tools.SetDefaults()
	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.Tracing.SetDefaults()
}

// Validate checks every section and joins the failures.
func (c *Config) Validate() error {
	var errs []error
	check := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	check("llm", c.LLM.Validate())
	check("embedder", c.Embedder.Validate())
	check("vector", c.Vector.Validate())
	check("sparse", c.Sparse.Validate())
	check("search", c.Search.Validate())
	check("tabular", c.Tabular.Validate())
	check("agent", c.Agent.Validate())
	check("memory", c.Memory.Validate())
	check("session", c.Session.Validate())
	check("server", c.Server.Validate())
	check("logging", c.Logging.Validate())
	check("tracing", c.Tracing.Validate())

	return errors.Join(errs...)
}
