package process

import (
	"errors"
	"fmt"
)

// BusinessError is an expected domain-rule violation: bad or mismatched
// item data that an operator can act on. The message is the operator-facing
// reason and survives unchanged to the caller.
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string {
	return e.Message
}

// NewBusinessError creates a BusinessError with a formatted message.
func NewBusinessError(format string, a ...interface{}) *BusinessError {
	return &BusinessError{Message: fmt.Sprintf(format, a...)}
}

// IsBusiness reports whether any error in err's chain is a BusinessError.
func IsBusiness(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}

// ProcessError wraps an unexpected system fault. Callers see only a
// generic message; the cause stays on the chain for logs and Unwrap.
type ProcessError struct {
	cause error
}

func (e *ProcessError) Error() string {
	return "a process error occurred"
}

func (e *ProcessError) Unwrap() error {
	return e.cause
}

// NewProcessError wraps cause as an opaque process fault.
// A nil cause returns nil. A BusinessError cause is returned unchanged so
// business reasons are never reclassified.
func NewProcessError(cause error) error {
	if cause == nil {
		return nil
	}
	if IsBusiness(cause) {
		return cause
	}
	return &ProcessError{cause: cause}
}
