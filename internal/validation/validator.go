// Package validation checks payloads against their `validate` struct tags and
// reports the first failing field by its JSON path.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/fx"

	"github.com/Additional-Code/atelier/pkg/errorbank"
)

// Module provides the shared Validator to Fx.
var Module = fx.Provide(New)

// FieldError names the first field that broke a rule, e.g. customer.email
// failing "email" or items[1].quantity failing "gt".
type FieldError struct {
	Field string
	Rule  string
	Param string
}

func (e *FieldError) Error() string {
	switch e.Rule {
	case "required":
		return e.Field + " is required"
	case "email":
		return e.Field + " is not a valid address"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field, strings.ReplaceAll(e.Param, " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", e.Field, e.Param)
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", e.Field, e.Param)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", e.Field, e.Param)
	default:
		return fmt.Sprintf("%s failed the %s rule", e.Field, e.Rule)
	}
}

// Validator wraps go-playground/validator. It is safe for concurrent use and
// caches struct metadata, so one instance serves the whole process.
type Validator struct {
	validate *validator.Validate
}

// New returns a Validator that names fields by their JSON tags.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		default:
			return name
		}
	})
	return &Validator{validate: v}
}

// Check validates s. Rule violations come back as *FieldError; anything else
// (a nil or non-struct argument) is returned unchanged.
func (v *Validator) Check(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	first := errs[0]
	return &FieldError{Field: fieldPath(first.Namespace()), Rule: first.Tag(), Param: first.Param()}
}

// Validate implements echo.Validator. Rule violations become bad requests
// carrying the field and rule as details.
func (v *Validator) Validate(i any) error {
	err := v.Check(i)
	if err == nil {
		return nil
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return errorbank.BadRequest(fe.Error(),
			errorbank.WithCause(fe),
			errorbank.WithDetail("field", fe.Field),
			errorbank.WithDetail("rule", fe.Rule),
		)
	}
	return errorbank.Internal("payload could not be validated", errorbank.WithCause(err))
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return rest
}
