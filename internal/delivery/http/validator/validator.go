// Package validator adapts go-playground/validator to echo's Validator
// interface so handlers can rely on struct tags for input validation.
package validator

import (
	domainerrors "gatekeeper/internal/domain/errors"

	"github.com/go-playground/validator/v10"
)

// EchoValidator wraps a validator instance for echo.
type EchoValidator struct {
	validate *validator.Validate
}

// New creates the validator used by the HTTP servers.
func New() *EchoValidator {
	return &EchoValidator{validate: validator.New()}
}

// Validate implements echo.Validator. Failures surface as the shared
// validation error so the error handler renders them consistently.
func (v *EchoValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return domainerrors.ErrValidationFailed.WithDetails(err.Error())
	}

	return nil
}
