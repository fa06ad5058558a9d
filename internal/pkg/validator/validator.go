// Package validator holds the process-wide struct validator with the
// coordinate rules registered.
package validator

import (
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	RegisterCustomValidations(validate)
}

func RegisterCustomValidations(v *validator.Validate) {
	_ = v.RegisterValidation("lat", validateLat)
	_ = v.RegisterValidation("lng", validateLng)
}

func validateLat(fl validator.FieldLevel) bool {
	lat := fl.Field().Float()
	return lat >= -90.0 && lat <= 90.0
}

func validateLng(fl validator.FieldLevel) bool {
	lng := fl.Field().Float()
	return lng >= -180.0 && lng <= 180.0
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
