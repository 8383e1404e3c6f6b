package errors

import "fmt"

// TimeoutError indicates a handler gave up waiting on something.
type TimeoutError struct {
	Operation string
	Duration  string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

// TemporaryError marks an error as safe to retry.
type TemporaryError struct {
	Err error
}

// Error implements the error interface.
func (e *TemporaryError) Error() string {
	return fmt.Sprintf("temporary: %s", e.Err)
}

// Unwrap returns the underlying error.
func (e *TemporaryError) Unwrap() error {
	return e.Err
}

// Temporary always reports true.
func (e *TemporaryError) Temporary() bool {
	return true
}

// Temporary wraps err so Categorize treats it as transient.
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}
