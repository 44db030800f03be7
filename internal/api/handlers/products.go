package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"storefront/internal/core"
	"storefront/internal/types"
)

// ProductRepository is the catalog persistence surface the product handler
// depends on. Mutations never touch the sold flag: that column belongs to
// settlement exclusively.
type ProductRepository interface {
	Create(ctx context.Context, p *types.Product) error
	GetByID(ctx context.Context, id int64) (*types.Product, error)
	List(ctx context.Context) ([]*types.Product, error)
	Update(ctx context.Context, p *types.Product) error
	Delete(ctx context.Context, id int64) error
}

// ProductHandler exposes catalog CRUD for authenticated users.
type ProductHandler struct {
	repo      ProductRepository
	validator *core.Validator
	logger    *slog.Logger
}

// NewProductHandler creates a ProductHandler with the provided dependencies.
func NewProductHandler(repo ProductRepository, validator *core.Validator, logger *slog.Logger) *ProductHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductHandler{repo: repo, validator: validator, logger: logger}
}

// RegisterRoutes mounts the product endpoints behind the auth middleware.
func (h *ProductHandler) RegisterRoutes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/products", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	})
}

// createProductRequest is the request body for POST /products.
type createProductRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	PriceCents  int64  `json:"price_cents" validate:"required,gt=0"`
}

// updateProductRequest is the request body for PATCH /products/{id}.
// All fields are optional; absent fields keep their current value.
type updateProductRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	PriceCents  *int64  `json:"price_cents" validate:"omitempty,gt=0"`
}

// HandleCreate handles POST /products.
func (h *ProductHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	product := &types.Product{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
	}
	if err := h.repo.Create(r.Context(), product); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "product created",
		"product_id", product.ID,
	)
	core.JSON(w, r, http.StatusCreated, product)
}

// HandleList handles GET /products.
func (h *ProductHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, products)
}

// HandleGet handles GET /products/{id}.
func (h *ProductHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, product)
}

// HandleUpdate handles PATCH /products/{id}. The sold flag is not updatable
// through this endpoint; it transitions only via settlement.
func (h *ProductHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req updateProductRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.PriceCents != nil {
		product.PriceCents = *req.PriceCents
	}

	if err := h.repo.Update(r.Context(), product); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, product)
}

// HandleDelete handles DELETE /products/{id}.
func (h *ProductHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// productIDParam extracts and validates the {id} URL parameter.
func productIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, types.NewAppError(
			types.ErrCodeValidationInvalidID,
			"product id must be a positive integer",
			err,
		)
	}
	return id, nil
}
