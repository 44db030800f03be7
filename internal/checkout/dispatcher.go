package checkout

import (
	"context"
	"log/slog"
)

// Dispatcher routes a verified event to its handler by event type. The
// type-to-handler mapping is fixed at construction; there is no runtime
// registration.
type Dispatcher struct {
	settler *Settler
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given settler.
func NewDispatcher(settler *Settler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{settler: settler, logger: logger}
}

// Dispatch routes the event:
//
//   - checkout.session.completed runs settlement synchronously and propagates
//     its outcome.
//   - Every other type is logged and skipped. Unknown types are not errors:
//     the provider delivers event types this service does not subscribe to
//     logic for, and a non-2xx response would cause needless retries.
func (d *Dispatcher) Dispatch(ctx context.Context, event *WebhookEvent) Outcome {
	switch event.Type {
	case EventCheckoutCompleted:
		return d.settler.Settle(ctx, event)

	default:
		d.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return Skipped(SkipUnhandledType)
	}
}
