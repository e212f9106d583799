package core

// errors.go defines the error taxonomy shared by import, export and the
// interactive update path:
//
//   - ValidationError: missing required value or an out-of-set milestone on a
//     direct write. Aborts the single operation only.
//   - RowError: captured per import row, never aborts the batch.
//   - company.ErrDuplicateKey and store failures: degrade to a RowError during
//     import, surface as a server error on direct writes.
//   - ErrInvalidFilter: export filter rejected before any scan starts.
//   - ErrMalformedInput / ErrEmptyFile: the whole import stream is unusable.

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrInvalidFilter is returned when an export filter value is not allowed.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrMalformedInput is returned when the import stream cannot be parsed
	// as CSV. It is reported once for the whole import.
	ErrMalformedInput = errors.New("invalid csv")

	// ErrEmptyFile is returned when the import stream has no header row.
	ErrEmptyFile = errors.New("empty file")

	// ErrNoFile is returned when an import request carries no file.
	ErrNoFile = errors.New("no file provided")

	// ErrFileTooLarge is returned when an import exceeds the configured size.
	ErrFileTooLarge = errors.New("file too large")
)

// ValidationError describes a rejected field value.
type ValidationError struct {
	Field   string // Field name
	Value   string // The rejected value
	Message string // Human-readable message
	Err     error  // Underlying cause, e.g. milestone.ErrInvalid
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Unwrap lets errors.Is match both ErrValidation and the cause.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// RowError is a per-record failure captured during import.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}
