package agent

import (
	"errors"
	"fmt"
)

// ErrParse matches every *ParseError.
var ErrParse = errors.New("could not parse LLM output")

// ParseError carries the LLM output that matched neither a final answer nor an action.
type ParseError struct {
	Output string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse LLM output: `%s`", e.Output)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
