// Package validation provides common validation utilities for the webstreams library.
package validation

import (
	"math"

	wserrors "github.com/vnykmshr/webstreams/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
// Returns a ValidationError if the value is not positive.
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return wserrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegative validates that a numeric value is non-negative (>= 0).
// Returns a ValidationError if the value is negative or NaN.
func ValidateNonNegative(module, field string, value float64) error {
	if value < 0 || math.IsNaN(value) {
		return wserrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

// ValidateFinite validates that a float64 value is neither infinite nor NaN.
func ValidateFinite(module, field string, value float64) error {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return wserrors.NewValidationError(module, field, value, "must be finite").
			WithHint("use a finite number")
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return wserrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}
