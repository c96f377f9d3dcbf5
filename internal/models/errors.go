package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by annotation operations. Use errors.Is to classify.
var (
	ErrValidation    = errors.New("validation failed")
	ErrPermission    = errors.New("permission denied")
	ErrNotFound      = errors.New("annotation not found")
	ErrImageNotFound = errors.New("image not found")
	ErrTransport     = errors.New("transport failure")
)

// ValidationError describes the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
