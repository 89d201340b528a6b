package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidStatus indicates a status value outside the closed enumeration
	// or a status change not allowed from the current state.
	ErrInvalidStatus = errors.New("invalid status")
)

// ValidationError names the offending fields.
type ValidationError struct {
	Fields []string
	Reason string
}

// NewValidationError builds a ValidationError for the given fields.
func NewValidationError(reason string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	msg := ErrValidation.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.Fields) > 0 {
		msg += " (" + strings.Join(e.Fields, ", ") + ")"
	}
	return msg
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvalidStatusError reports a rejected status value.
type InvalidStatusError struct {
	Value  string
	Reason string
}

func (e *InvalidStatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %q: %s", ErrInvalidStatus, e.Value, e.Reason)
	}
	return fmt.Sprintf("%s %q", ErrInvalidStatus, e.Value)
}

// Unwrap lets errors.Is match ErrInvalidStatus.
func (e *InvalidStatusError) Unwrap() error {
	return ErrInvalidStatus
}

// ValidationFields extracts the field list from err when it carries one.
func ValidationFields(err error) []string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}
