// Package validation checks request payloads with go-playground/validator and
// converts failures to apperrors VALIDATION errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"github.com/go-playground/validator/v10"
)

// Validator wraps a configured validator.Validate.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator that reports fields by their JSON names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "":
			return strings.ToLower(fld.Name)
		case "-":
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Struct validates s. Field failures come back as a VALIDATION error whose
// details map field name to message.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Validation(err.Error())
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = message(fe)
	}
	return apperrors.ValidationWithDetails("validation failed", details)
}

// Var validates a single value under the given field name.
func (v *Validator) Var(field string, value any, tag string) error {
	err := v.v.Var(value, tag)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apperrors.ValidationWithDetails("validation failed", map[string]string{
			field: message(fieldErrs[0]),
		})
	}
	return apperrors.Validation(err.Error())
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "uuid":
		return "must be a valid UUID"
	default:
		return "is invalid"
	}
}
