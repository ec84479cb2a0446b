package task

import (
	"errors"
	"fmt"
)

// TransientError wraps a provider or transport failure that the queue
// should retry. The orchestrator translates AI client failures into this
// vocabulary; everything else is fatal.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the queue should retry after this error.
func Retryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
