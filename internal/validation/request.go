package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ArgumentError is a command argument that failed validation. Its message
// is shown to the caller as is.
type ArgumentError struct {
	Field   string
	Message string
}

func (e *ArgumentError) Error() string {
	return e.Message
}

// IsArgumentError reports whether err is an argument validation failure.
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// Missing returns the error for an absent required argument.
func Missing(field string) error {
	return &ArgumentError{Field: field, Message: "Missing required argument: " + field}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their argument name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "host", func(fl validator.FieldLevel) bool {
		return Host(fl.Field().String()) == nil
	})
	mustRegister(v, "port", func(fl validator.FieldLevel) bool {
		return Port(int(fl.Field().Int())) == nil
	})
	mustRegister(v, "mailaddr", func(fl validator.FieldLevel) bool {
		return Address(fl.Field().String()) == nil
	})
	mustRegister(v, "profilename", func(fl validator.FieldLevel) bool {
		return ProfileName(fl.Field().String()) == nil
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// Struct validates a request struct using its `validate` tags and returns
// the first failure as an *ArgumentError.
func Struct(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return fieldError(verrs[0])
}

func fieldError(fe validator.FieldError) error {
	field := fe.Field()
	var msg string

	switch fe.Tag() {
	case "required":
		return Missing(field)
	case "port":
		msg = fmt.Sprintf("Invalid port: %v (must be 1-65535)", fe.Value())
	case "host":
		msg = fmt.Sprintf("Invalid host for %s: %v", field, fe.Value())
	case "mailaddr":
		msg = fmt.Sprintf("Invalid email address in %s: %v", field, fe.Value())
	case "profilename":
		msg = fmt.Sprintf("Invalid profile name: %v (letters, digits, dots, dashes or underscores)", fe.Value())
	case "oneof":
		msg = fmt.Sprintf("Invalid %s: %v (must be one of %s)", field, fe.Value(), fe.Param())
	default:
		msg = fmt.Sprintf("Invalid %s: %v", field, fe.Value())
	}
	return &ArgumentError{Field: field, Message: msg}
}
