// Package core provides the business logic for company import and export.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate name: A company with this name already exists
//	        Sentinel: company.ErrDuplicateKey; Patterns: "duplicate key"
//
//	DB002 - Not found: The company does not exist
//	        Sentinel: company.ErrNotFound
//
//	DB004 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused"
//
//	DB005 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//
//	DB006 - Timeout: Operation timed out
//	        Patterns: "timeout"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL003 - Required field: Company name is required
//	         Patterns: "company name is required"
//
//	VAL006 - Invalid milestone: Value is not in the allowed list
//	         Sentinel: milestone.ErrInvalid
//
//	VAL000 - Generic validation failure
//	         Sentinel: ErrValidation
//
// # Filter Errors (FLT001)
//
//	FLT001 - Invalid filter: Export filter value is not allowed
//	         Sentinel: ErrInvalidFilter
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large          Sentinel: ErrFileTooLarge
//	FILE002 - Invalid CSV             Sentinel: ErrMalformedInput
//	FILE004 - No file                 Sentinel: ErrNoFile
//	FILE005 - Empty file              Sentinel: ErrEmptyFile
//
// # Import Errors (IMP001-IMP099)
//
//	IMP002 - System busy: Too many imports in progress   Sentinel: ErrTooManyImports
//	IMP004 - Request cancelled                           Patterns: "context canceled"
//	IMP005 - Request timeout                             Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests       Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check application logs for the original error.
//
// # Matching
//
// Sentinels are checked first with errors.Is, in table order. Only when no
// sentinel matches are the message patterns tried, case-insensitively with
// strings.Contains; the first matching pattern wins.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/crm/internal/company"
	"github.com/JonMunkholm/crm/internal/milestone"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

// sentinelMessages is checked before the string patterns.
var sentinelMessages = []sentinelMessage{
	{company.ErrDuplicateKey, UserMessage{
		Message: "A company with this name already exists",
		Action:  "Use a different name or update the existing company",
		Code:    "DB001",
	}},
	{company.ErrNotFound, UserMessage{
		Message: "Company not found",
		Action:  "Verify the company still exists",
		Code:    "DB002",
	}},
	{ErrInvalidFilter, UserMessage{
		Message: "Export filter value is not allowed",
		Action:  "Use one of the listed milestones or remove the filter",
		Code:    "FLT001",
	}},
	{milestone.ErrInvalid, UserMessage{
		Message: "Milestone is not in the allowed list",
		Action:  "Use one of: " + strings.Join(milestone.Keys(), ", "),
		Code:    "VAL006",
	}},
	{ErrValidation, UserMessage{
		Message: "Submitted value is not valid",
		Action:  "Correct the highlighted field and try again",
		Code:    "VAL000",
	}},
	{ErrFileTooLarge, UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}},
	{ErrMalformedInput, UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure file is comma-separated with a header row",
		Code:    "FILE002",
	}},
	{ErrNoFile, UserMessage{
		Message: "No file was selected",
		Action:  "Please select a CSV file to import",
		Code:    "FILE004",
	}},
	{ErrEmptyFile, UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a CSV file with a header row",
		Code:    "FILE005",
	}},
	{ErrTooManyImports, UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP002",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "IMP004",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "IMP005",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (lowercase) to user messages for
// errors that arrive without a sentinel, e.g. from the database driver.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A company with this name already exists",
			Action:  "Use a different name or update the existing company",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "company name is required",
		msg: UserMessage{
			Message: "Company name is required",
			Action:  "Ensure every row has a name",
			Code:    "VAL003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
