package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client.
var (
	// ErrMalformedResponse indicates the model returned text that fails
	// schema validation. Callers usually treat it as transient; one
	// queue-level retry is enough for most model hiccups.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrEmptyResponse indicates the provider returned no usable choice.
	ErrEmptyResponse = errors.New("empty model response")
)

// ProviderError is a non-2xx reply from the provider. StatusCode decides
// whether the client retries it.
type ProviderError struct {
	StatusCode int
	Operation  string
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s call failed: provider returned HTTP %d", e.Operation, e.StatusCode)
}

// Retryable reports whether this status is worth another attempt:
// 429 and any 5xx. Everything else propagates immediately.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsTransient reports whether the error is a transport-level or
// retryable provider failure, the class the queue should retry.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	if errors.Is(err, ErrMalformedResponse) {
		return true
	}
	// Anything that never got a response (network failure, timeout) is
	// transient by definition.
	return errors.Is(err, errNoResponse)
}

// errNoResponse wraps network-level failures where no HTTP response was
// received at all.
var errNoResponse = errors.New("no response from provider")

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
