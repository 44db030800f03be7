// Package checkout implements the webhook settlement pipeline: the verified
// event model, the event dispatcher, and the idempotent settlement handler
// that flips a product's sold flag exactly once per completed payment.
package checkout

import (
	"encoding/json"
	"strconv"

	"storefront/internal/types"
)

// Event type constants prevent magic strings in the dispatcher and tests.
const (
	// EventCheckoutCompleted is the only event type this pipeline acts on.
	EventCheckoutCompleted = "checkout.session.completed"
)

// WebhookEvent is a minimal representation of a provider webhook event
// tailored to extract the fields needed for routing and settlement.
// We avoid importing the full stripe.Event type to keep the pipeline
// decoupled from the stripe-go library and to make testing straightforward.
//
// A WebhookEvent only exists after signature verification has succeeded; it
// is immutable thereafter and never persisted.
type WebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

// eventData wraps the event data object.
type eventData struct {
	Object eventObject `json:"object"`
}

// eventObject carries the fields this pipeline reads from the event's object:
// the object ID (logging/traceability only) and the session metadata.
type eventObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

// ParseEvent decodes the raw payload into a WebhookEvent. It must only be
// called on bytes that have already passed signature verification.
func ParseEvent(payload []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"invalid webhook event JSON",
			err,
		)
	}
	return &event, nil
}

// object extracts the event's data object. Extraction failures yield a zero
// object rather than an error: a verified event with an unexpected data shape
// is treated the same as one with no usable metadata.
func (e *WebhookEvent) object() eventObject {
	var data eventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return eventObject{}
	}
	return data.Object
}

// ObjectID returns the event object's identifier (e.g., the checkout session
// ID), used for logging and traceability only.
func (e *WebhookEvent) ObjectID() string {
	return e.object().ID
}

// ProductID extracts and parses the productId metadata entry. The second
// return value is false when the entry is absent or not a valid integer;
// both are expected, legitimate payload shapes, not corrupt data.
func (e *WebhookEvent) ProductID() (int64, bool) {
	raw, ok := e.object().Metadata["productId"]
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
