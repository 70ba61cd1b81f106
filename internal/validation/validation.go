// Package validation checks service inputs with struct tags and folds every
// failure into a single coded validation error.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// Struct validates input against its `validate` tags.
func Struct(input any) error {
	if err := validate.Struct(input); err != nil {
		return format(err)
	}
	return nil
}

func format(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	fields := make([]pkgerrors.FieldError, 0, len(errs))
	for _, fieldErr := range errs {
		fields = append(fields, pkgerrors.FieldError{
			Field:   fieldErr.Field(),
			Key:     fieldErr.Tag(),
			Message: message(fieldErr),
		})
	}
	return pkgerrors.Validation(fields...)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must contain at most %s", fe.Param())
	case "unique":
		return "must not repeat"
	}
	return "is invalid"
}

// Combine merges the field errors of every validation error in errs into one
// validation error. Non-validation errors are returned as-is, first one wins.
// It returns nil when errs holds no error.
func Combine(errs ...error) error {
	combined := multierr.Combine(errs...)
	if combined == nil {
		return nil
	}
	var fields []pkgerrors.FieldError
	for _, err := range multierr.Errors(combined) {
		if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			return err
		}
		found := pkgerrors.FieldErrors(err)
		if len(found) == 0 {
			found = []pkgerrors.FieldError{{Field: "base", Key: "invalid", Message: err.Error()}}
		}
		fields = append(fields, found...)
	}
	return pkgerrors.Validation(fields...)
}
