package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/core"
	"storefront/internal/external"
	"storefront/internal/types"
)

// CheckoutHandler creates hosted payment sessions for catalog products.
type CheckoutHandler struct {
	repo      ProductRepository
	sessions  external.CheckoutService
	validator *core.Validator
	logger    *slog.Logger
}

// NewCheckoutHandler creates a CheckoutHandler with the provided dependencies.
func NewCheckoutHandler(
	repo ProductRepository,
	sessions external.CheckoutService,
	validator *core.Validator,
	logger *slog.Logger,
) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		repo:      repo,
		sessions:  sessions,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the checkout session endpoint behind auth.
func (h *CheckoutHandler) RegisterRoutes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/checkout/session", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", h.HandleCreateSession)
	})
}

// createSessionRequest is the request body for POST /checkout/session.
type createSessionRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

// HandleCreateSession handles POST /checkout/session. The product must exist
// and be unsold; the provider session carries the product ID in its metadata
// so the completion webhook can settle it.
func (h *CheckoutHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	product, err := h.repo.GetByID(r.Context(), req.ProductID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if product.Sold {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConflictAlreadySold,
			"product has already been sold",
			nil,
		))
		return
	}

	session, err := h.sessions.CreateCheckoutSession(r.Context(), product)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		"product_id", product.ID,
		"session_id", session.ID,
	)
	core.JSON(w, r, http.StatusCreated, session)
}
