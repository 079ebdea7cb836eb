package retrieval

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter matches every precondition failure of a retrieval request.
var ErrInvalidParameter = errors.New("invalid parameter")

// InvalidParameterError reports a rejected request parameter.
type InvalidParameterError struct {
	Param  string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Param, e.Value, e.Reason)
}

func (e *InvalidParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// ErrTranslation is returned when the self-query translation is not valid
// against the attribute schema.
var ErrTranslation = errors.New("invalid structured query")
