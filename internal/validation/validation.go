// Package validation provides field-level validation for capture inputs
// and record metadata, accumulating errors instead of failing on the
// first.
package validation

import (
	"fmt"

	"github.com/hyperengineering/weighbridge/internal/capture"
	"github.com/hyperengineering/weighbridge/internal/types"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateRequired returns an error if the value is empty.
func ValidateRequired(field, value string) *ValidationError {
	if value == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateMin returns an error if the value is below min.
func ValidateMin(field string, value, min int) *ValidationError {
	if value < min {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be >= %d", min),
		}
	}
	return nil
}

// ValidateNonNegative returns an error if the value is negative.
func ValidateNonNegative(field string, value float64) *ValidationError {
	if value < 0 {
		return &ValidationError{
			Field:   field,
			Message: "must be >= 0",
		}
	}
	return nil
}

// ValidateCaptureInput validates the per-item form fields of a capture.
// Zero dimensions are allowed; volume degrades to 0 at the boundary.
func ValidateCaptureInput(in capture.Input) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("product_type", in.ProductType))
	c.Add(ValidateMin("quantity", in.Quantity, 1))
	c.Add(ValidateNonNegative("length_cm", in.LengthCm))
	c.Add(ValidateNonNegative("width_cm", in.WidthCm))
	c.Add(ValidateNonNegative("height_cm", in.HeightCm))
	return c.Errors()
}

// ValidateRecordMetadata validates the form-level metadata attached at
// save time.
func ValidateRecordMetadata(meta types.RecordMetadata) []ValidationError {
	var c Collector
	c.Add(ValidateRequired("category", meta.Category))
	c.Add(ValidateRequired("payment_status", meta.PaymentStatus))
	return c.Errors()
}
