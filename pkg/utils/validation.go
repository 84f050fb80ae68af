package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "groundedmemory/pkg/errors"
)

var validate = validator.New()

// ValidateStruct validates a struct based on its validation tags,
// aggregating every field failure into one apperrors.ValidationErrors so
// callers can report all problems at once instead of the first.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := apperrors.NewValidationErrors()
	for _, e := range fieldErrs {
		out.Add(strings.ToLower(e.Field()), formatFieldError(e))
	}
	return out
}

// formatFieldError formats a single field validation error
func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())

	switch e.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + e.Param() + " characters"
	case "max":
		return field + " must be at most " + e.Param() + " characters"
	case "oneof":
		return field + " must be one of: " + e.Param()
	default:
		return field + " is invalid"
	}
}

// SanitizeString removes null bytes and control characters and trims
// surrounding whitespace.
func SanitizeString(input string) string {
	var result strings.Builder
	for _, r := range input {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
