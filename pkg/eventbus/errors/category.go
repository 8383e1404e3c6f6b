// Package errors classifies handler failures and retries the transient ones.
//
// The event bus uses two layers:
//   - Categorization: decide whether a failure is recoverable
//   - Retry: re-run transient failures with exponential backoff
//
// A failure policy that rethrows only unrecoverable failures asks Categorize
// for the category of the cause: permanent failures reach the poster,
// transient ones are logged.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: timeouts, a downstream that is temporarily unavailable.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: invalid input, programming errors, cancelled contexts.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// temporary is implemented by errors that know whether they are transient,
// such as net.Error.
type temporary interface {
	Temporary() bool
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	if errors.Is(err, context.Canceled) {
		return CategoryPermanent
	}

	var tmp temporary
	if errors.As(err, &tmp) && tmp.Temporary() {
		return CategoryTransient
	}

	// Unknown errors are permanent (fail safe)
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsUnrecoverable reports whether the error is permanent.
func IsUnrecoverable(err error) bool {
	return err != nil && Categorize(err) == CategoryPermanent
}
