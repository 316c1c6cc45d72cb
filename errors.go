package ldbridge

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedValueType = errors.New("unsupported value type")
	ErrInvalidContext       = errors.New("invalid context")
	ErrClientNotInitialized = errors.New("client not initialized, start has not completed")
	ErrInvalidConfig        = errors.New("invalid config")
	ErrInvalidArgument      = errors.New("invalid argument")
)

// UnsupportedValueTypeError reports a value the codec cannot represent as a flag value.
// Path locates the value inside the decoded structure, e.g. ["rules", "0", "weight"].
type UnsupportedValueTypeError struct {
	Path  []string
	Value interface{}
}

func (e *UnsupportedValueTypeError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("%s: %T", ErrUnsupportedValueType, e.Value)
	}
	return fmt.Sprintf("%s: %T at %s", ErrUnsupportedValueType, e.Value, strings.Join(e.Path, "."))
}

func (e *UnsupportedValueTypeError) Unwrap() error {
	return ErrUnsupportedValueType
}

// InvalidContextError reports a malformed element of a context list. Index is -1 when the
// problem is with the list as a whole.
type InvalidContextError struct {
	Index  int
	Reason string
	Err    error
}

func (e *InvalidContextError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", ErrInvalidContext, msg)
	}
	return fmt.Sprintf("%s: element %d: %s", ErrInvalidContext, e.Index, msg)
}

func (e *InvalidContextError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidContext}
	}
	return []error{ErrInvalidContext, e.Err}
}
