package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/core"
)

// LoginService is the credential verification surface the auth handler
// depends on.
type LoginService interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// AuthHandler exposes the login endpoint. It is public: the token it issues
// is what the other endpoints require.
type AuthHandler struct {
	service   LoginService
	validator *core.Validator
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler with the provided dependencies.
func NewAuthHandler(service LoginService, validator *core.Validator, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{service: service, validator: validator, logger: logger}
}

// RegisterRoutes mounts the auth endpoints.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// loginResponse carries the issued bearer token.
type loginResponse struct {
	Token string `json:"token"`
}

// HandleLogin handles POST /auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, loginResponse{Token: token})
}
