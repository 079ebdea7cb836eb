package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/positive-doo/multitool/pkg/config"
	"github.com/positive-doo/multitool/pkg/embedders"
	"github.com/positive-doo/multitool/pkg/llms"
	"github.com/positive-doo/multitool/pkg/observability"
	"github.com/positive-doo/multitool/pkg/session"
	"github.com/positive-doo/multitool/pkg/sparse"
	"github.com/positive-doo/multitool/pkg/tabular"
	"github.com/positive-doo/multitool/pkg/utils"
	"github.com/positive-doo/multitool/pkg/vector"
	"github.com/positive-doo/multitool/pkg/version"
	"github.com/positive-doo/multitool/pkg/websearch"
)

// app holds the oracles built from configuration.
type app struct {
	cfg      *config.Config
	deps     *session.Deps
	opts     session.Options
	defaults session.Settings
	metrics  *observability.Metrics
	closers  []func() error
}

// loadConfig loads the config file and re-applies logging settings from it.
func (cli *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}
	if err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat, &cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	rt := &app{cfg: cfg, metrics: observability.NewMetrics()}
	observability.SetGlobalMetrics(rt.metrics)

	tp, err := observability.InitGlobalTracer(context.Background(), observability.TracerConfig{
		Enabled:      cfg.Tracing.Enabled,
		ExporterType: cfg.Tracing.Exporter,
		EndpointURL:  cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		ServiceName:  cfg.Tracing.ServiceName,
		Version:      version.Get().Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return observability.ShutdownTracer(ctx, tp)
	})

	llm, err := llms.NewOpenAIProviderFromConfig(&cfg.LLM)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create llm: %w", err)
	}
	rt.closers = append(rt.closers, llm.Close)

	embedder, err := embedders.NewOpenAIEmbedderFromConfig(&cfg.Embedder)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	indexes, err := vector.NewFromConfig(&cfg.Vector)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create vector indexes: %w", err)
	}
	rt.closers = append(rt.closers, indexes.Close)

	encoder, err := newEncoder(&cfg.Sparse)
	if err != nil {
		rt.Close()
		return nil, err
	}

	deps := &session.Deps{
		LLM:      llm,
		Embedder: embedder,
		Indexes:  indexes,
		Encoder:  encoder,
		Tabular: &tabular.SQLOracle{
			LLM:           llm,
			MaxAttempts:   cfg.Tabular.MaxAttempts,
			QueryTimeout:  time.Duration(cfg.Tabular.QueryTimeout) * time.Second,
			SampleRows:    cfg.Tabular.SampleRows,
			MaxResultRows: cfg.Tabular.MaxResultRows,
		},
	}

	if cfg.Tools.WebSearch != nil && *cfg.Tools.WebSearch {
		if search, err := websearch.NewSerperFromConfig(&cfg.Search); err != nil {
			slog.Warn("Web search disabled", "error", err)
		} else {
			deps.Search = search
		}
	}

	if cfg.Agent.MaxObservationTokens > 0 {
		counter, err := utils.NewTokenCounter(cfg.LLM.Model)
		if err != nil {
			slog.Warn("Observation truncation disabled", "error", err)
		} else {
			deps.Counter = counter
		}
	}
	rt.deps = deps

	if rt.opts, err = session.OptionsFromConfig(cfg); err != nil {
		rt.Close()
		return nil, err
	}
	if rt.defaults, err = session.SettingsFromConfig(&cfg.Session); err != nil {
		rt.Close()
		return nil, err
	}

	slog.Debug("Runtime ready", "llm", llm.GetModelName(), "embedder", embedder.Model(), "web_search", deps.Search != nil)
	return rt, nil
}

// newEncoder loads corpus BM25 parameters when configured, otherwise fits on each query.
func newEncoder(cfg *config.SparseConfig) (sparse.Encoder, error) {
	if cfg.ParamsPath == "" {
		return sparse.QueryFitted{K1: cfg.K1, B: cfg.B}, nil
	}
	enc, err := sparse.LoadParams(cfg.ParamsPath)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func (rt *app) manager() (*session.Manager, error) {
	return session.NewManager(rt.deps, rt.opts, rt.defaults)
}

func (rt *app) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
