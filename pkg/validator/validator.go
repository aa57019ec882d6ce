package validator

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator"
)

var (
	global     *validator.Validate
	phoneRegex = regexp.MustCompile(`^\+?[0-9 ()\-]{10,20}$`)
)

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrFieldNotAllowed    = "Field has an unsupported value"
	ErrTermsNotAccepted   = "Terms must be accepted"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)
	_ = v.RegisterValidation("accepted", validateAccepted)
	_ = v.RegisterValidation("phone", validatePhone)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

func validateAccepted(fl validator.FieldLevel) bool {
	return fl.Field().Kind() == reflect.Bool && fl.Field().Bool()
}

func validatePhone(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}

// Validate returns the first failing field as a single error.
func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

// Fields returns a message per failing field, keyed by its JSON name, so
// callers can surface errors inline. It returns nil when the struct is valid.
func Fields(ctx context.Context, structure any) map[string]string {
	err := Validator().StructCtx(ctx, structure)
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	out := make(map[string]string, len(vErrors))
	for _, ve := range vErrors {
		out[ve.Field()] = message(ve.Tag())
	}
	return out
}

// SuppliedFields is Fields restricted to fields that carry a value, for
// endpoints where only a few fields are mandatory but anything sent must
// still be well formed.
func SuppliedFields(ctx context.Context, structure any) map[string]string {
	err := Validator().StructCtx(ctx, structure)
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	var out map[string]string
	for _, ve := range vErrors {
		if v := reflect.ValueOf(ve.Value()); !v.IsValid() || v.IsZero() {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[ve.Field()] = message(ve.Tag())
	}
	return out
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	return errors.New(message(ve.Tag()) + ": " + ve.Field())
}

func message(tag string) string {
	switch tag {
	case "email", "phone":
		return ErrInvalidFormat
	case "required":
		return ErrFieldRequired
	case "max":
		return ErrFieldExceedsMaxLen
	case "min":
		return ErrFieldBelowMinLen
	case "lt", "lte":
		return ErrFieldExceedsMaxVal
	case "gt", "gte":
		return ErrFieldBelowMinVal
	case "oneof":
		return ErrFieldNotAllowed
	case "accepted":
		return ErrTermsNotAccepted
	default:
		return ErrUnknownValidation
	}
}
