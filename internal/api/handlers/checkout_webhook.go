// Package handlers contains the HTTP handler implementations for the
// storefront API.
//
// This file implements the checkout webhook endpoint. The route is NOT
// behind auth middleware -- it is called directly by the payment provider.
// Security is provided by verifying the Stripe-Signature header using
// HMAC-SHA256 over the exact raw request body.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/checkout"
	"storefront/internal/core"
	"storefront/internal/external"
	"storefront/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a webhook payload (64 KB).
// Provider payloads are typically small; this limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// webhookAck is the acknowledgment body returned for every event the
// endpoint accepts, including legitimate no-ops. Providers treat any 2xx as
// delivered; the body is informational.
type webhookAck struct {
	Received bool `json:"received"`
}

// CheckoutWebhookHandler receives asynchronous checkout events from the
// payment provider, verifies their signatures, and hands them to the
// dispatcher for settlement.
type CheckoutWebhookHandler struct {
	verifier   external.WebhookVerifier
	dispatcher *checkout.Dispatcher
	secret     string
	logger     *slog.Logger
}

// NewCheckoutWebhookHandler creates a CheckoutWebhookHandler with the
// provided dependencies.
func NewCheckoutWebhookHandler(
	verifier external.WebhookVerifier,
	dispatcher *checkout.Dispatcher,
	secret string,
	logger *slog.Logger,
) *CheckoutWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutWebhookHandler{
		verifier:   verifier,
		dispatcher: dispatcher,
		secret:     secret,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. This is separate from the
// authenticated handlers because webhook routes are public.
func (h *CheckoutWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout/webhook", h.Handle)
}

// Handle processes an incoming checkout webhook delivery:
//
//  1. Reads the raw body with a size limit. The exact bytes are what the
//     signature covers, so the body is captured before any parsing.
//  2. Verifies the Stripe-Signature header against the signing secret.
//     Missing header, empty body, and bad signature are all 400s; the
//     response never reveals which signature sub-check failed.
//  3. Parses the event envelope and dispatches it.
//  4. Maps the settlement outcome to a response. Settled and skipped
//     outcomes -- including a product the catalog does not know -- are
//     acknowledged with 200 {"received": true} so the provider stops
//     redelivering. Only a transient store failure returns a 5xx, which is
//     precisely the case where a provider retry can succeed.
func (h *CheckoutWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookBodyMissing,
			"failed to read request body",
			err,
		))
		return
	}
	if len(payload) == 0 {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookBodyMissing,
			"empty request body",
			nil,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookSignatureMissing,
			"missing Stripe-Signature header",
			nil,
		))
		return
	}

	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookSignatureInvalid,
			"webhook signature verification failed",
			err,
		))
		return
	}

	event, err := checkout.ParseEvent(payload)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to parse webhook event JSON",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	h.logger.InfoContext(r.Context(), "processing checkout webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	outcome := h.dispatcher.Dispatch(r.Context(), event)
	switch outcome.Kind {
	case checkout.OutcomeSettled, checkout.OutcomeSkipped:
		core.JSON(w, r, http.StatusOK, webhookAck{Received: true})

	case checkout.OutcomeFailed:
		var appErr *types.AppError
		if errors.As(outcome.Err, &appErr) && appErr.Code == types.ErrCodeNotFoundProduct {
			// An event for a product the catalog does not know is an
			// inconsistency redelivery cannot fix. It was already logged at
			// error level by settlement; acknowledge so the provider stops.
			core.JSON(w, r, http.StatusOK, webhookAck{Received: true})
			return
		}
		core.Error(w, r, outcome.Err)

	default:
		core.Error(w, r, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"unrecognized settlement outcome",
			nil,
		))
	}
}
