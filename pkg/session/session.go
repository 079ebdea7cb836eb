// Package session glues settings, memory, the uploaded dataset and the
// transcript to the router. A Session serialises its turns, so the HTTP
// server can share sessions between requests.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/positive-doo/multitool/pkg/agent"
	"github.com/positive-doo/multitool/pkg/config"
	"github.com/positive-doo/multitool/pkg/embedders"
	"github.com/positive-doo/multitool/pkg/llms"
	"github.com/positive-doo/multitool/pkg/memory"
	"github.com/positive-doo/multitool/pkg/sparse"
	"github.com/positive-doo/multitool/pkg/tabular"
	"github.com/positive-doo/multitool/pkg/utils"
	"github.com/positive-doo/multitool/pkg/vector"
	"github.com/positive-doo/multitool/pkg/websearch"
)

// Deps are the oracles shared by every session.
type Deps struct {
	LLM      llms.LLMProvider
	Embedder embedders.Embedder
	Indexes  *vector.Indexes
	Encoder  sparse.Encoder

	// Search may be nil, which removes the web tool.
	Search websearch.Searcher

	Tabular tabular.Oracle

	// Counter may be nil, which disables observation truncation.
	Counter *utils.TokenCounter
}

func (d *Deps) validate() error {
	switch {
	case d.LLM == nil:
		return fmt.Errorf("llm is required")
	case d.Embedder == nil:
		return fmt.Errorf("embedder is required")
	case d.Indexes == nil || d.Indexes.Dense == nil || d.Indexes.Hybrid == nil:
		return fmt.Errorf("vector indexes are required")
	case d.Encoder == nil:
		return fmt.Errorf("sparse encoder is required")
	case d.Tabular == nil:
		return fmt.Errorf("tabular oracle is required")
	}
	return nil
}

// Options are process-wide and fixed for the lifetime of a session.
type Options struct {
	Agent            agent.Config
	Prompt           *agent.Prompt
	MemoryWindow     int
	WebSearch        bool
	HybridPresets    bool
	Descriptions     map[string]string
	DocumentContents string
	NoDatasetMessage string
}

// OptionsFromConfig maps loaded configuration to Options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	prompt, err := agent.LoadPrompt(cfg.Agent.TemplatePath, cfg.Agent.AnswerLanguage)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Agent: agent.Config{
			MaxIterations:         cfg.Agent.MaxIterations,
			IterationLimitMessage: cfg.Agent.IterationLimitMessage,
			MaxObservationTokens:  cfg.Agent.MaxObservationTokens,
		},
		Prompt:           prompt,
		MemoryWindow:     cfg.Memory.Window,
		WebSearch:        cfg.Tools.WebSearch == nil || *cfg.Tools.WebSearch,
		HybridPresets:    cfg.Tools.HybridPresets,
		Descriptions:     cfg.Tools.Descriptions,
		DocumentContents: cfg.Session.DocumentContents,
		NoDatasetMessage: cfg.Tabular.NoDatasetMessage,
	}, nil
}

// Line is one transcript entry.
type Line struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Session struct {
	id      string
	created time.Time
	deps    *Deps
	opts    Options

	mu         sync.Mutex
	settings   Settings
	memory     *memory.BufferWindow
	dataset    *tabular.Dataset
	transcript []Line
}

func New(id string, deps *Deps, opts Options, settings Settings) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		id:       id,
		created:  time.Now(),
		deps:     deps,
		opts:     opts,
		settings: settings,
		memory:   memory.NewBufferWindow(opts.MemoryWindow),
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.created }

// Ask runs one turn and returns its result.
func (s *Session) Ask(ctx context.Context, question string) (*agent.Result, error) {
	return s.Stream(ctx, question, nil)
}

// Stream runs one turn, passing every router event to onEvent.
func (s *Session) Stream(ctx context.Context, question string, onEvent func(agent.Event)) (*agent.Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.settings.Validate(); err != nil {
		return nil, err
	}

	router, err := s.router()
	if err != nil {
		return nil, err
	}

	slog.Debug("Turn started", "session", s.id)
	asked := time.Now()

	var (
		result *agent.Result
		runErr error
	)
	for ev := range router.Stream(ctx, agent.Turn{Question: question, SystemPrompt: s.settings.SystemPrompt}) {
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Type {
		case agent.EventFinal:
			result = ev.Result
		case agent.EventError:
			runErr = ev.Err
		}
	}
	if runErr != nil {
		return nil, runErr
	}
	if result == nil {
		return nil, ctx.Err()
	}

	s.transcript = append(s.transcript,
		Line{Role: RoleUser, Text: question, Time: asked},
		Line{Role: RoleAssistant, Text: result.Answer, Time: time.Now()})

	slog.Info("Turn completed", "session", s.id, "iterations", result.Iterations, "direct", result.Direct, "stopped", result.Stopped)
	return result, nil
}

func (s *Session) router() (*agent.Router, error) {
	tools, err := s.toolset(s.settings, s.dataset)
	if err != nil {
		return nil, err
	}

	cfg := s.opts.Agent
	cfg.UseOriginalQuestion = s.settings.UseOriginalQuestion

	opts := []agent.Option{}
	if s.opts.Prompt != nil {
		opts = append(opts, agent.WithPrompt(s.opts.Prompt))
	}
	if s.deps.Counter != nil {
		opts = append(opts, agent.WithTokenCounter(s.deps.Counter))
	}
	return agent.NewRouter(s.deps.LLM, tools, s.memory, cfg, opts...)
}

// Clear starts a new chat: memory and transcript are reset, the dataset is kept.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory.Clear()
	s.transcript = nil
}

// SetDataset replaces the session dataset, parsing data by the file name extension.
func (s *Session) SetDataset(name string, data []byte) error {
	ds, err := tabular.Load(name, data)
	if err != nil {
		return err
	}
	s.swapDataset(ds)
	return nil
}

// LoadDatasetFile replaces the session dataset with the file at path.
func (s *Session) LoadDatasetFile(path string) error {
	ds, err := tabular.LoadFile(path)
	if err != nil {
		return err
	}
	s.swapDataset(ds)
	return nil
}

func (s *Session) swapDataset(ds *tabular.Dataset) {
	s.mu.Lock()
	old := s.dataset
	s.dataset = ds
	s.mu.Unlock()

	if err := old.Close(); err != nil {
		slog.Warn("Failed to close previous dataset", "session", s.id, "error", err)
	}
	slog.Info("Dataset loaded", "session", s.id, "name", ds.Name, "rows", len(ds.Rows), "columns", len(ds.Columns))
}

// DatasetName is empty when no dataset is selected.
func (s *Session) DatasetName() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dataset == nil {
		return ""
	}
	return s.dataset.Name
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settings
}

// UpdateSettings applies fn to a copy and keeps it only when it validates.
func (s *Session) UpdateSettings(fn func(*Settings) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	if err := fn(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.settings = next
	return nil
}

func (s *Session) Memory() []memory.Exchange {
	return s.memory.Exchanges()
}

func (s *Session) Transcript() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Line(nil), s.transcript...)
}

// TranscriptText renders the transcript for download, newest exchange first.
func (s *Session) TranscriptText() string {
	lines := s.Transcript()
	out := make([]string, 0, len(lines))
	for i := len(lines) - 2; i >= 0; i -= 2 {
		out = append(out, lines[i].Text, lines[i+1].Text)
	}
	return strings.Join(out, "\n")
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.dataset.Close()
	s.dataset = nil
	return err
}
