package eventbus

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	buserrors "github.com/randalmurphal/eventbus/pkg/eventbus/errors"
	"github.com/randalmurphal/eventbus/pkg/eventbus/journal"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// errPanicked marks spans closed while a handler panic unwinds.
var errPanicked = errors.New("handler panicked")

// runGroup executes one delivery on the calling goroutine: the veto gate,
// then every ordinary handler in order. A non-nil error comes from the
// failure policy and must reach the poster.
func (c *core) runGroup(ctx context.Context, d *delivery) (err error) {
	ctx, span := c.spans.StartDeliverySpan(ctx, c.id, d.id, d.eventType)
	finished := false
	defer func() {
		if !finished {
			c.spans.EndSpanWithError(span, errPanicked)
		}
	}()

	observability.LogDelivery(c.logger, d.id, d.eventType, len(d.vetoers), len(d.handlers))

	vetoed, err := c.gate(ctx, d)
	if err == nil && !vetoed {
		for _, h := range d.handlers {
			if _, err = c.invoke(ctx, d, h); err != nil {
				break
			}
		}
	}

	finished = true
	c.spans.EndSpanWithError(span, err)
	return err
}

// gate runs the veto-capable handlers in order and stops at the first veto.
func (c *core) gate(ctx context.Context, d *delivery) (vetoed bool, err error) {
	for _, h := range d.vetoers {
		if vetoed, err = c.invoke(ctx, d, h); err != nil || vetoed {
			return vetoed, err
		}
	}
	return false, nil
}

// invoke calls one handler and classifies the outcome.
//
// A veto from a veto-capable handler is recorded and reported as vetoed. A
// veto from any other handler is a programming error and panics with a
// *BusError. Any other error goes to the failure policy, whose result is
// returned. Handler panics propagate unchanged.
func (c *core) invoke(ctx context.Context, d *delivery, h *Handler) (vetoed bool, err error) {
	hctx, span := c.spans.StartHandlerSpan(ctx, h.name, h.canVeto)
	finished := false
	defer func() {
		if !finished {
			c.spans.EndSpanWithError(span, errPanicked)
		}
	}()

	done := observability.TimedOperation()
	attempts, callErr := buserrors.Do(hctx, c.retry, func(ctx context.Context) error {
		return h.call(ctx, d.event)
	})
	elapsed := done()

	var veto *VetoError
	switch {
	case callErr == nil:
		c.metrics.RecordHandler(ctx, h.name, elapsed, nil)

	case errors.As(callErr, &veto):
		if !h.canVeto {
			busErr := &BusError{
				Handler: h.name,
				Err:     fmt.Errorf("%w: %w", ErrVetoNotAllowed, veto),
			}
			finished = true
			c.spans.EndSpanWithError(span, busErr)
			panic(busErr)
		}
		c.metrics.RecordHandler(ctx, h.name, elapsed, nil)
		c.recordVeto(ctx, d, h, veto)
		vetoed = true

	default:
		c.metrics.RecordHandler(ctx, h.name, elapsed, callErr)
		c.record(ctx, journal.Entry{
			Kind:       journal.KindFailure,
			DeliveryID: d.id,
			EventType:  d.eventType,
			Handler:    h.name,
			Message:    callErr.Error(),
		})
		err = c.policy.HandleFailure(ctx, &HandlerError{
			DeliveryID: d.id,
			Event:      d.event,
			Target:     h.target,
			Method:     h.method,
			Attempts:   attempts,
			Err:        callErr,
		})
	}

	finished = true
	if vetoed {
		c.spans.EndSpanWithError(span, nil)
	} else {
		c.spans.EndSpanWithError(span, callErr)
	}
	return vetoed, err
}

func (c *core) recordVeto(ctx context.Context, d *delivery, h *Handler, veto *VetoError) {
	observability.LogVeto(c.logger, d.id, d.eventType, h.name, veto)
	c.metrics.RecordVeto(ctx, d.eventType, h.name)
	c.spans.AddSpanEvent(ctx, "vetoed",
		attribute.String("handler", h.name),
		attribute.String("reason", veto.Reason),
	)
	c.record(ctx, journal.Entry{
		Kind:       journal.KindVeto,
		DeliveryID: d.id,
		EventType:  d.eventType,
		Handler:    h.name,
		Message:    veto.Error(),
	})
}
