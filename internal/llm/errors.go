package llm

import "fmt"

// TransientError is a provider failure worth retrying: throttling, service
// unavailable, or a provider-internal error.
type TransientError struct {
	Code string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error (%s): %v", e.Code, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError is a provider failure that must not be retried, including the
// terminal error raised when the retry budget is exhausted.
type FatalError struct {
	Code string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal provider error (%s): %v", e.Code, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
