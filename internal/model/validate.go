package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so field errors match what API callers sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "category", func(fl validator.FieldLevel) bool {
		return Category(fl.Field().String()).IsValid()
	})
	// Stored JSON would silently rewrite invalid bytes as U+FFFD.
	mustRegister(v, "utf8", func(fl validator.FieldLevel) bool {
		return utf8.ValidString(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("model: registering %q validation: %v", tag, err))
	}
}

// ValidateCreate checks a CreateInput for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the input is valid.
func ValidateCreate(in *CreateInput) error {
	var ve ValidationError

	// Whitespace-only values pass the "required" tag, so check them here.
	if strings.TrimSpace(in.Reviewee) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "reviewee", Message: "is required"})
	}
	if strings.TrimSpace(in.Comment) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "comment", Message: "is required"})
	}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			if fe.Tag() == "required" && hasField(ve.Errors, fe.Field()) {
				continue
			}
			ve.Errors = append(ve.Errors, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be %s characters or fewer", fe.Param())
	case "category":
		return fmt.Sprintf("invalid value %q", fe.Value())
	case "utf8":
		return "must be valid UTF-8"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func hasField(errs []FieldError, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}
