package core

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"storefront/internal/types"
)

// Validator wraps go-playground/validator for request body validation.
// Handlers call ValidateStruct after DecodeJSON; failures are returned as a
// single AppError carrying per-field details.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate: validator.New(),
		logger:   logger,
	}
}

// ValidateStruct validates the struct's `validate` tags and translates
// failures into a types.AppError with code validation_missing_required_field
// and a details map of field -> violated rule.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: the caller passed a non-struct.
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"validation target is not a struct",
			err,
		)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
		details,
	)
}
