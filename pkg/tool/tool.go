// Package tool defines the capabilities the router can invoke.
//
// A Tool has a unique, case-sensitive name, a description the LLM reads to
// choose between tools, and a direct-return flag. When ReturnDirect is true
// the tool's output is used as the final answer of the turn without another
// LLM pass.
package tool

import (
	"context"
	"fmt"

	"github.com/positive-doo/multitool/pkg/registry"
)

type Tool interface {
	Name() string

	Description() string

	// ReturnDirect reports whether the output ends the turn.
	ReturnDirect() bool

	// Invoke runs the tool with the action input. Errors from external
	// oracles should be classified with oracle.Wrap.
	Invoke(ctx context.Context, input string) (string, error)
}

// KeepsInput reports whether t wants the action input verbatim. Tools that
// do not implement the optional KeepsInput method accept substitution.
func KeepsInput(t Tool) bool {
	k, ok := t.(interface{ KeepsInput() bool })
	return ok && k.KeepsInput()
}

// Config describes a function-backed tool.
type Config struct {
	Name         string
	Description  string
	ReturnDirect bool

	// KeepInput makes the tool receive the LLM's action input even when
	// the router is set to forward the user's original question.
	KeepInput bool
}

// Func adapts a plain function to the Tool interface.
type Func struct {
	cfg Config
	fn  func(ctx context.Context, input string) (string, error)
}

func New(cfg Config, fn func(ctx context.Context, input string) (string, error)) (*Func, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %q has no function", cfg.Name)
	}
	return &Func{cfg: cfg, fn: fn}, nil
}

func (t *Func) Name() string        { return t.cfg.Name }
func (t *Func) Description() string { return t.cfg.Description }
func (t *Func) ReturnDirect() bool  { return t.cfg.ReturnDirect }
func (t *Func) KeepsInput() bool    { return t.cfg.KeepInput }

func (t *Func) Invoke(ctx context.Context, input string) (string, error) {
	return t.fn(ctx, input)
}

// Registry holds the tools of one session in registration order.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{BaseRegistry: registry.NewBaseRegistry[Tool]()}
	for _, t := range tools {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Add(t Tool) error {
	return r.Register(t.Name(), t)
}
