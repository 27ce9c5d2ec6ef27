package validation

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = New()
}

// New returns a validator with the media_ref tag registered.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("media_ref", validateMediaRef)
	return v
}

// ValidateRef checks that ref can be normalized to a watch URL.
func ValidateRef(ref string) error {
	if err := validate.Var(ref, "required,media_ref"); err != nil {
		return fmt.Errorf("invalid media reference %q: %w", ref, err)
	}
	return nil
}

func validateMediaRef(fl validator.FieldLevel) bool {
	_, ok := Normalize(fl.Field().String())
	return ok
}
