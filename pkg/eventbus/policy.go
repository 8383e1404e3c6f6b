package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	buserrors "github.com/randalmurphal/eventbus/pkg/eventbus/errors"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// FailurePolicy decides what happens to an error returned by a handler.
// Returning nil swallows the failure and delivery continues with the next
// handler. Returning an error aborts the current drain and surfaces the
// error to the poster.
//
// Vetoes and panics never reach a FailurePolicy.
type FailurePolicy interface {
	HandleFailure(ctx context.Context, failure *HandlerError) error
}

// FailurePolicyFunc adapts a function to FailurePolicy.
type FailurePolicyFunc func(ctx context.Context, failure *HandlerError) error

// HandleFailure calls f.
func (f FailurePolicyFunc) HandleFailure(ctx context.Context, failure *HandlerError) error {
	return f(ctx, failure)
}

// ExceptionHandler receives handler failures forwarded by CallbackFailures.
type ExceptionHandler interface {
	HandleException(err error, event any, target any, method reflect.Method)
}

// ExceptionHandlerFunc adapts a function to ExceptionHandler.
type ExceptionHandlerFunc func(err error, event any, target any, method reflect.Method)

// HandleException calls f.
func (f ExceptionHandlerFunc) HandleException(err error, event any, target any, method reflect.Method) {
	f(err, event, target, method)
}

// LogFailures logs every failure and continues. It is the default policy.
// A nil logger uses slog.Default().
func LogFailures(logger *slog.Logger) FailurePolicy {
	return logPolicy{logger: orDefault(logger)}
}

type logPolicy struct {
	logger *slog.Logger
}

func (p logPolicy) HandleFailure(_ context.Context, f *HandlerError) error {
	logFailure(p.logger, f)
	return nil
}

// CallbackFailures forwards every failure to h and continues. A panic raised
// by h is recovered and logged.
func CallbackFailures(h ExceptionHandler, logger *slog.Logger) FailurePolicy {
	return callbackPolicy{handler: h, logger: orDefault(logger)}
}

type callbackPolicy struct {
	handler ExceptionHandler
	logger  *slog.Logger
}

func (p callbackPolicy) HandleFailure(_ context.Context, f *HandlerError) error {
	defer func() {
		if r := recover(); r != nil {
			observability.LogCallbackFailure(p.logger, handlerName(f), fmt.Errorf("panic: %v", r))
		}
	}()
	p.handler.HandleException(f.Err, f.Event, f.Target, f.Method)
	return nil
}

// ThrowFailures returns every failure to the poster as a *HandlerError.
func ThrowFailures() FailurePolicy {
	return FailurePolicyFunc(func(_ context.Context, f *HandlerError) error {
		return f
	})
}

// ThrowUnrecoverable returns permanent failures to the poster and logs
// transient ones. The category comes from the errors package, so a handler
// marks a failure recoverable by returning errors.Temporary(err), a
// *errors.TimeoutError, or an error with a Temporary() bool method.
func ThrowUnrecoverable(logger *slog.Logger) FailurePolicy {
	return unrecoverablePolicy{logger: orDefault(logger)}
}

type unrecoverablePolicy struct {
	logger *slog.Logger
}

func (p unrecoverablePolicy) HandleFailure(_ context.Context, f *HandlerError) error {
	if buserrors.IsUnrecoverable(f.Err) {
		return f
	}
	logFailure(p.logger, f)
	return nil
}

func logFailure(logger *slog.Logger, f *HandlerError) {
	observability.LogHandlerFailure(logger, f.DeliveryID, fmt.Sprintf("%T", f.Event), handlerName(f), f.Err)
}

func handlerName(f *HandlerError) string {
	return fmt.Sprintf("%T.%s", f.Target, f.Method.Name)
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
