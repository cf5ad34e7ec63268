package market

import (
	"errors"
	"fmt"
)

// ErrStructural marks failures that abort a whole run: unavailable sources,
// malformed records and broken ordering. They are never retried.
var ErrStructural = errors.New("structural failure")

// StructuralError carries the context of a structural failure.
type StructuralError struct {
	Msg string
	Err error
}

func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Is makes every StructuralError match ErrStructural.
func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// Structural wraps err as a structural failure with a short description.
func Structural(msg string, err error) error {
	return &StructuralError{Msg: msg, Err: err}
}

func structuralf(format string, args ...any) error {
	return &StructuralError{Msg: fmt.Sprintf(format, args...)}
}
