// Package validator adapts go-playground/validator to echo's Validator
// interface so handlers can call c.Validate on bound requests.
package validator

import (
	playground "github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	domainerrors "keygate/internal/domain/errors"
)

type echoValidator struct {
	validate *playground.Validate
}

// New builds the request validator installed on the echo server.
func New() *echoValidator {
	return &echoValidator{validate: playground.New()}
}

// Validate checks struct tags and converts failures into the domain's
// validation error so the error middleware renders them uniformly.
func (v *echoValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		var fieldErrors playground.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			first := fieldErrors[0]

			return domainerrors.ErrValidationFailed.WithDetails(
				"field '" + first.Field() + "' failed rule '" + first.Tag() + "'")
		}

		return errors.WithStack(err)
	}

	return nil
}
