package external

import (
	"context"

	"storefront/internal/types"
)

// CheckoutService abstracts interactions with the payment provider (Stripe).
// Implementations translate between domain types and vendor-specific APIs.
type CheckoutService interface {
	// CreateCheckoutSession generates a payment session for a single product.
	// The product ID is echoed back in the session's metadata so the
	// completion webhook can correlate the payment to the product.
	CreateCheckoutSession(ctx context.Context, product *types.Product) (*types.CheckoutSession, error)
}

// WebhookVerifier abstracts webhook signature checking.
//
// The payload must be the exact raw bytes of the request body as received.
// Any transformation (JSON parse-then-stringify, whitespace normalization)
// invalidates the cryptographic check.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature header
	// and signing secret. Returns nil on success, an error on failure.
	Verify(payload []byte, header string, secret string) error
}
