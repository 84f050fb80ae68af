package memory

import (
	"fmt"

	apperrors "groundedmemory/pkg/errors"
)

func errDimMismatch(got int) error {
	return apperrors.NewValidationError(
		fmt.Sprintf("vector must have dimensionality %d, got %d", Dim, got),
	).WithCode("VECTOR_DIM_MISMATCH")
}

func errNotUnitNorm(norm float64) error {
	return apperrors.NewValidationError(
		fmt.Sprintf("vector must be unit norm, got norm %.6f", norm),
	).WithCode("VECTOR_NOT_UNIT_NORM")
}

func errInvalidSource(s Source) error {
	return apperrors.NewValidationError(
		fmt.Sprintf("unrecognized memory source %q", s),
	).WithCode("MEMORY_INVALID_SOURCE")
}

func errEmptyText() error {
	return apperrors.NewValidationError("memory text must not be empty").
		WithCode("MEMORY_EMPTY_TEXT")
}
