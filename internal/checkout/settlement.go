package checkout

import (
	"context"
	"errors"
	"log/slog"

	"storefront/internal/types"
)

// ProductStore is the persistence capability settlement depends on. It is the
// only suspension point in the pipeline; everything else is pure computation.
type ProductStore interface {
	// GetByID returns the product, or an AppError with code
	// not_found_product if no such product exists.
	GetByID(ctx context.Context, id int64) (*types.Product, error)

	// MarkSold conditionally flips sold from false to true. It returns true
	// if this call performed the transition, false if the product was already
	// sold. Implementations MUST make this a compare-and-swap: under
	// concurrent duplicate delivery, exactly one caller observes true.
	MarkSold(ctx context.Context, id int64) (bool, error)
}

// OutcomeKind discriminates settlement results.
type OutcomeKind string

const (
	// OutcomeSettled means this call transitioned the product to sold.
	OutcomeSettled OutcomeKind = "settled"
	// OutcomeSkipped means a legitimate no-op (missing metadata, duplicate
	// delivery, event type this pipeline does not act on).
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeFailed means settlement could not complete; the Err field
	// carries an AppError whose code determines the HTTP mapping.
	OutcomeFailed OutcomeKind = "failed"
)

// Skip reasons for OutcomeSkipped.
const (
	SkipNoProductID   = "no productId"
	SkipAlreadySold   = "already sold"
	SkipUnhandledType = "unhandled event type"
)

// Outcome is the explicit result type of Settle and Dispatch. Exactly one of
// the three kinds applies; Reason is set for skips, Err for failures.
type Outcome struct {
	Kind      OutcomeKind
	ProductID int64
	Reason    string
	Err       error
}

// Settled constructs a settled outcome for the given product.
func Settled(productID int64) Outcome {
	return Outcome{Kind: OutcomeSettled, ProductID: productID}
}

// Skipped constructs a no-op outcome with the given reason.
func Skipped(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

// Failed constructs a failed outcome carrying err.
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// Settler performs the idempotent sold-state transition for completed
// checkout events. It is stateless; all mutable state lives behind the
// ProductStore.
type Settler struct {
	store  ProductStore
	logger *slog.Logger
}

// NewSettler creates a Settler with the provided store and logger.
func NewSettler(store ProductStore, logger *slog.Logger) *Settler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settler{store: store, logger: logger}
}

// Settle processes a checkout.session.completed event:
//
//  1. Extract productId from the event metadata. Absent or non-numeric
//     values are a valid no-op, not an error -- some sessions legitimately
//     carry no product correlation.
//  2. Read the product. A missing product is an inconsistency between the
//     payment provider and the catalog: it is surfaced as a failed outcome
//     so the caller can alert, but the webhook is still acknowledged.
//  3. If the product is already sold, skip without writing. Combined with
//     the conditional write below, this makes Settle safe under duplicate
//     delivery -- the provider does not guarantee exactly-once.
//  4. Conditionally mark the product sold. Losing the compare-and-swap race
//     to a concurrent duplicate is a skip, not an error.
//
// A store failure (including a request deadline expiring mid-flight) yields a
// failed outcome and is never reported as settled: the write may or may not
// have landed, and the provider's retry will re-drive the idempotent path.
func (s *Settler) Settle(ctx context.Context, event *WebhookEvent) Outcome {
	productID, ok := event.ProductID()
	if !ok {
		s.logger.InfoContext(ctx, "no productId in event metadata; skipping settlement",
			"event_id", event.ID,
			"session_id", event.ObjectID(),
		)
		return Skipped(SkipNoProductID)
	}

	product, err := s.store.GetByID(ctx, productID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundProduct {
			// Provider says this product was paid for; the catalog has never
			// heard of it. Loud log for operator attention.
			s.logger.ErrorContext(ctx, "settlement references unknown product",
				"event_id", event.ID,
				"product_id", productID,
			)
			return Outcome{Kind: OutcomeFailed, ProductID: productID, Err: err}
		}
		return Outcome{Kind: OutcomeFailed, ProductID: productID, Err: s.storeFailure(err)}
	}

	if product.Sold {
		s.logger.InfoContext(ctx, "product already sold; duplicate delivery skipped",
			"event_id", event.ID,
			"product_id", productID,
		)
		return Outcome{Kind: OutcomeSkipped, ProductID: productID, Reason: SkipAlreadySold}
	}

	flipped, err := s.store.MarkSold(ctx, productID)
	if err != nil {
		return Outcome{Kind: OutcomeFailed, ProductID: productID, Err: s.storeFailure(err)}
	}
	if !flipped {
		// Lost the race to a concurrent duplicate: someone else settled
		// between our read and write. Exactly one caller gets flipped=true.
		s.logger.InfoContext(ctx, "concurrent settlement won the write; skipping",
			"event_id", event.ID,
			"product_id", productID,
		)
		return Outcome{Kind: OutcomeSkipped, ProductID: productID, Reason: SkipAlreadySold}
	}

	s.logger.InfoContext(ctx, "product settled",
		"event_id", event.ID,
		"product_id", productID,
		"session_id", event.ObjectID(),
	)
	return Settled(productID)
}

// storeFailure normalizes store errors into a transient AppError so the
// endpoint maps them to a 5xx and the provider redelivers.
func (s *Settler) storeFailure(err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeInternalDB, "product store unavailable", err)
}
