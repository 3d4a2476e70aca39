// Package errors defines the unified error taxonomy for provider-agnostic LLM
// calls. Every provider-specific failure is mapped to one of a fixed set of
// ErrorKind values with static retryable/fallbackable semantics.
package errors

import "fmt"

// Error is the error type surfaced by the executor. It wraps a Classified
// result with the call context (target, attempt) needed for logging.
type Error struct {
	Classified
	Provider string
	Model    string
	Attempt  int
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s, status=%d, attempt=%d)",
		e.Kind, e.Message, e.Provider, e.Model, e.HTTPStatus, e.Attempt)
}

// New wraps a Classified result with call context.
func New(c Classified, provider, model string, attempt int) *Error {
	return &Error{Classified: c, Provider: provider, Model: model, Attempt: attempt}
}

// HTTPStatusCode returns the status code carried by the classification, or
// 500 when the failure never reached an HTTP response (transport errors).
func (e *Error) HTTPStatusCode() int {
	if e.Classified.HTTPStatus > 0 {
		return e.Classified.HTTPStatus
	}
	return 500
}
