// Package agent implements the bounded ReAct router that picks a tool for
// each question and composes the final answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/positive-doo/multitool/pkg/llms"
	"github.com/positive-doo/multitool/pkg/memory"
	"github.com/positive-doo/multitool/pkg/observability"
	"github.com/positive-doo/multitool/pkg/retrieval"
	"github.com/positive-doo/multitool/pkg/tool"
	"github.com/positive-doo/multitool/pkg/utils"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultMaxIterations         = 4
	DefaultIterationLimitMessage = "Agent stopped due to iteration limit."

	// StopSequence keeps the LLM from inventing observations.
	StopSequence = "\nObservation:"
)

// Turn is one user question.
type Turn struct {
	Question string

	// SystemPrompt is prefixed to the question the LLM sees.
	SystemPrompt string
}

func (t Turn) input() string {
	if t.SystemPrompt == "" {
		return t.Question
	}
	return t.SystemPrompt + "\n" + t.Question
}

// Result is the outcome of a completed turn.
type Result struct {
	Answer     string
	Iterations int
	Steps      []Step

	// Direct is set when a direct-return tool produced Answer.
	Direct bool

	// Stopped is set when the iteration cap ended the turn.
	Stopped bool
}

type EventType string

const (
	EventToken       EventType = "token"
	EventAction      EventType = "action"
	EventObservation EventType = "observation"
	EventFinal       EventType = "final"
	EventError       EventType = "error"
)

// Event is emitted while a turn runs. Final and Error are always last.
type Event struct {
	Type   EventType
	Text   string
	Tool   string
	Input  string
	Result *Result
	Err    error
}

type Config struct {
	MaxIterations         int
	IterationLimitMessage string

	// UseOriginalQuestion passes the user's question to tools instead of
	// the action input chosen by the LLM.
	UseOriginalQuestion bool

	// MaxObservationTokens truncates tool output fed back to the LLM. 0 disables.
	MaxObservationTokens int
}

type Router struct {
	llm     llms.LLMProvider
	tools   *tool.Registry
	memory  memory.ConversationMemory
	prompt  *Prompt
	parser  DecisionParser
	counter *utils.TokenCounter
	cfg     Config
}

type Option func(*Router)

func WithParser(p DecisionParser) Option {
	return func(r *Router) { r.parser = p }
}

func WithPrompt(p *Prompt) Option {
	return func(r *Router) { r.prompt = p }
}

// WithTokenCounter enables observation truncation.
func WithTokenCounter(c *utils.TokenCounter) Option {
	return func(r *Router) { r.counter = c }
}

func NewRouter(llm llms.LLMProvider, tools *tool.Registry, mem memory.ConversationMemory, cfg Config, opts ...Option) (*Router, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm is required")
	}
	if tools == nil || tools.Count() == 0 {
		return nil, fmt.Errorf("at least one tool is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.IterationLimitMessage == "" {
		cfg.IterationLimitMessage = DefaultIterationLimitMessage
	}

	r := &Router{
		llm:    llm,
		tools:  tools,
		memory: mem,
		parser: ReActParser{},
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.prompt == nil {
		p, err := NewPrompt("", "")
		if err != nil {
			return nil, err
		}
		r.prompt = p
	}
	if r.memory == nil {
		r.memory = memory.NewBufferWindow(memory.DefaultWindow)
	}
	return r, nil
}

// Run executes a turn and returns its result.
func (r *Router) Run(ctx context.Context, turn Turn) (*Result, error) {
	var (
		result *Result
		err    error
	)
	for ev := range r.Stream(ctx, turn) {
		switch ev.Type {
		case EventFinal:
			result = ev.Result
		case EventError:
			err = ev.Err
		}
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ctx.Err()
	}
	return result, nil
}

// Stream executes a turn and emits its events. The channel is closed when
// the turn ends.
func (r *Router) Stream(ctx context.Context, turn Turn) <-chan Event {
	events := make(chan Event, 64)
	go func() {
		defer close(events)
		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		result, err := r.loop(ctx, turn, emit)
		metrics := observability.GetGlobalMetrics()
		if err != nil {
			slog.Warn("Turn failed", "error", err)
			metrics.RecordTurn("error", 0)
			emit(Event{Type: EventError, Err: err})
			return
		}

		r.memory.Add(turn.Question, result.Answer)
		metrics.RecordTurn(outcome(result), result.Iterations)
		emit(Event{Type: EventFinal, Text: result.Answer, Result: result})
	}()
	return events
}

func (r *Router) loop(ctx context.Context, turn Turn, emit func(Event) bool) (result *Result, err error) {
	ctx, span := startTurnSpan(ctx, turn.Question)
	defer func() {
		if result == nil {
			observability.EndSpan(span, err)
			return
		}
		observability.EndSpan(span, nil,
			attribute.Int(observability.AttrTurnIteration, result.Iterations),
			attribute.Bool(observability.AttrTurnStopped, result.Stopped),
			attribute.Bool(observability.AttrToolDirect, result.Direct))
	}()

	tools := r.tools.List()
	input := turn.input()
	var steps []Step

	for iteration := 1; iteration <= r.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prompt, err := r.prompt.Render(tools, r.memory.Exchanges(), input, steps)
		if err != nil {
			return nil, err
		}

		output, err := r.complete(ctx, prompt, emit)
		if err != nil {
			return nil, err
		}

		decision, err := r.parser.Parse(output)
		if err != nil {
			return nil, err
		}

		switch d := decision.(type) {
		case Finish:
			slog.Debug("Final answer", "iteration", iteration)
			return &Result{Answer: d.Answer, Iterations: iteration, Steps: steps}, nil

		case Action:
			emit(Event{Type: EventAction, Tool: d.Tool, Input: d.Input})

			observation, direct, err := r.execute(ctx, turn, d)
			if err != nil {
				return nil, err
			}
			if direct {
				steps = append(steps, Step{Action: d, Observation: observation})
				return &Result{Answer: observation, Iterations: iteration, Steps: steps, Direct: true}, nil
			}

			observation = r.truncate(observation)
			emit(Event{Type: EventObservation, Tool: d.Tool, Text: observation})
			steps = append(steps, Step{Action: d, Observation: observation})
		}
	}

	slog.Info("Iteration limit reached", "max_iterations", r.cfg.MaxIterations)
	return &Result{
		Answer:     r.cfg.IterationLimitMessage,
		Iterations: r.cfg.MaxIterations,
		Steps:      steps,
		Stopped:    true,
	}, nil
}

func (r *Router) complete(ctx context.Context, prompt string, emit func(Event) bool) (string, error) {
	chunks, err := r.llm.GenerateStreaming(ctx,
		[]llms.Message{{Role: llms.RoleUser, Content: prompt}},
		llms.WithStop(StopSequence))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range chunks {
		switch chunk.Type {
		case "text":
			sb.WriteString(chunk.Text)
			emit(Event{Type: EventToken, Text: chunk.Text})
		case "error":
			for range chunks {
			}
			return "", chunk.Error
		}
	}
	return sb.String(), nil
}

// execute runs the chosen tool. Tool failures become observations; only
// invalid parameters abort the turn.
func (r *Router) execute(ctx context.Context, turn Turn, action Action) (string, bool, error) {
	t, ok := r.tools.Get(action.Tool)
	if !ok {
		names := r.tools.Names()
		slog.Debug("Unknown tool", "tool", action.Tool)
		return fmt.Sprintf("%s is not a valid tool, try one of [%s].", action.Tool, strings.Join(names, ", ")), false, nil
	}

	input := action.Input
	if r.cfg.UseOriginalQuestion && !tool.KeepsInput(t) {
		input = turn.Question
	}

	ctx, span := startToolSpan(ctx, t.Name(), input)
	start := time.Now()
	output, err := t.Invoke(ctx, input)
	observability.GetGlobalMetrics().RecordToolExecution(t.Name(), time.Since(start), err)
	observability.EndSpan(span, err, attribute.Bool(observability.AttrToolDirect, err == nil && t.ReturnDirect()))

	if err != nil {
		if errors.Is(err, retrieval.ErrInvalidParameter) {
			return "", false, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, ctxErr
		}
		slog.Warn("Tool failed", "tool", t.Name(), "error", err)
		return fmt.Sprintf("Tool %s failed: %v", t.Name(), err), false, nil
	}

	slog.Debug("Tool executed", "tool", t.Name(), "direct", t.ReturnDirect(), "duration", time.Since(start))
	return output, t.ReturnDirect(), nil
}

func (r *Router) truncate(observation string) string {
	if r.counter == nil || r.cfg.MaxObservationTokens <= 0 {
		return observation
	}
	out, cut := r.counter.Truncate(observation, r.cfg.MaxObservationTokens)
	if cut {
		slog.Debug("Observation truncated", "max_tokens", r.cfg.MaxObservationTokens)
	}
	return out
}

func outcome(res *Result) string {
	switch {
	case res.Stopped:
		return "stopped"
	case res.Direct:
		return "direct"
	default:
		return "final"
	}
}
