package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference. Users quote the code; support looks it up here.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate certificate: a gem with this certificate number exists
//	        Patterns: "certificate_number", "duplicate key"
//	DB002 - Unique constraint: a value must be unique but already exists
//	        Patterns: "unique constraint", "violates unique"
//	DB003 - Check constraint: a value is outside the accepted range
//	        Patterns: "check constraint"
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout
//	DB007 - Deadlock
//	DB008 - Database locked (sqlite writers)
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Required field is empty            Patterns: "is required"
//	VAL002 - Invalid number                      Patterns: "invalid number"
//	VAL003 - Value not in the allowed list       Patterns: "must be one of", "invalid enum"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large                     Patterns: "file too large", "request body too large"
//	FILE002 - Empty file                         Patterns: "empty file"
//	FILE003 - No data rows                       Patterns: "no data rows"
//	FILE004 - Unsupported file type              Patterns: "unsupported file format"
//	FILE005 - Bad header                         Patterns: "duplicate column", "no column names"
//	FILE006 - Invalid CSV                        Patterns: "invalid csv"
//	FILE007 - No file                            Patterns: "no file provided"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - Upload cancelled                    Patterns: "upload cancelled"
//	UPL002 - System busy                         Patterns: "too many concurrent uploads"
//	UPL003 - Session expired                     Patterns: "upload not found"
//	UPL004 - Request cancelled                   Patterns: "context canceled"
//	UPL005 - Request timeout                     Patterns: "context deadline exceeded"
//	UPL006 - Nothing to retry                    Patterns: "nothing to retry"
//	UPL007 - Still running                       Patterns: "still running"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Too many requests                  Patterns: "rate limit"
//
// ERR000 is the fallback. Support staff should check the logs for the
// technical error when a user reports it.
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns must come before general ones.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/gemstock/internal/ingest"
)

// Request errors raised by the outer surfaces. Their text matches the
// patterns below.
var (
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrNoFile       = errors.New("no file provided")
	ErrFileTooLarge = errors.New("file too large")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgDuplicateCert = UserMessage{
		Message: "A gem with this certificate number already exists",
		Action:  "Check the certificate number or remove the row if the gem is already in stock",
		Code:    "DB001",
	}
	msgUnique = UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate entries in your file",
		Code:    "DB002",
	}
	msgOutOfRange = UserMessage{
		Message: "A value is outside the range the inventory accepts",
		Action:  "Carat weight and prices must not be negative",
		Code:    "DB003",
	}
	msgNotAllowed = UserMessage{
		Message: "Value is not in the allowed list",
		Action:  "Use one of the values listed in the template",
		Code:    "VAL003",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}
	msgBadHeader = UserMessage{
		Message: "The header row is not usable",
		Action:  "Give every column a unique name, matching the template",
		Code:    "FILE005",
	}
)

var errorPatterns = []errorPattern{
	// Database constraints
	{pattern: "certificate_number", msg: msgDuplicateCert},
	{pattern: "duplicate key", msg: msgDuplicateCert},
	{pattern: "unique constraint", msg: msgUnique},
	{pattern: "violates unique", msg: msgUnique},
	{pattern: "check constraint", msg: msgOutOfRange},

	// Database connectivity
	{pattern: "connection refused", msg: UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{pattern: "connection reset", msg: UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Resubmit the failed rows",
		Code:    "DB005",
	}},
	{pattern: "timeout", msg: UserMessage{
		Message: "Operation timed out",
		Action:  "Resubmit the failed rows or try again later",
		Code:    "DB006",
	}},
	{pattern: "deadlock", msg: UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Resubmit the failed rows",
		Code:    "DB007",
	}},
	{pattern: "database is locked", msg: UserMessage{
		Message: "Database was busy",
		Action:  "Resubmit the failed rows",
		Code:    "DB008",
	}},

	// Row validation
	{pattern: "is required", msg: UserMessage{
		Message: "Required field is empty",
		Action:  "Fill in every required column",
		Code:    "VAL001",
	}},
	{pattern: "invalid number", msg: UserMessage{
		Message: "Invalid number format detected",
		Action:  "Use plain decimal numbers for carat weight and prices",
		Code:    "VAL002",
	}},
	{pattern: "must be one of", msg: msgNotAllowed},
	{pattern: "invalid enum", msg: msgNotAllowed},

	// Files. Specific structural problems come before the generic "invalid csv".
	{pattern: "file too large", msg: msgTooLarge},
	{pattern: "request body too large", msg: msgTooLarge},
	{pattern: "empty file", msg: UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Upload a file with a header row and at least one gem",
		Code:    "FILE002",
	}},
	{pattern: "no data rows", msg: UserMessage{
		Message: "The file has a header row but no gems",
		Action:  "Add at least one data row below the header",
		Code:    "FILE003",
	}},
	{pattern: "unsupported file format", msg: UserMessage{
		Message: "This file type is not supported",
		Action:  "Upload a .csv or .xlsx file",
		Code:    "FILE004",
	}},
	{pattern: "duplicate column", msg: msgBadHeader},
	{pattern: "no column names", msg: msgBadHeader},
	{pattern: "invalid csv", msg: UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated, starting with the template header",
		Code:    "FILE006",
	}},
	{pattern: "no file provided", msg: UserMessage{
		Message: "No file was selected",
		Action:  "Please select a file to upload",
		Code:    "FILE007",
	}},

	// Upload sessions
	{pattern: "upload cancelled", msg: UserMessage{
		Message: "Upload was cancelled",
		Action:  "Resubmit to process the remaining rows",
		Code:    "UPL001",
	}},
	{pattern: "too many concurrent uploads", msg: UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}},
	{pattern: "upload not found", msg: UserMessage{
		Message: "Upload session not found",
		Action:  "The upload may have expired. Please start a new upload",
		Code:    "UPL003",
	}},
	{pattern: "context canceled", msg: UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}},
	{pattern: "context deadline exceeded", msg: UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "UPL005",
	}},
	{pattern: "nothing to retry", msg: UserMessage{
		Message: "Every row has already been saved",
		Action:  "No resubmission is needed",
		Code:    "UPL006",
	}},
	{pattern: "still running", msg: UserMessage{
		Message: "The upload is still running",
		Action:  "Wait for it to finish or cancel it first",
		Code:    "UPL007",
	}},

	{pattern: "rate limit", msg: UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
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

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// ToSinkError turns a store failure into the structured error the batch
// controller records for the row. Errors that are already SinkErrors pass
// through. Unknown failures keep the default sink message so raw driver
// text is not shown to users.
func ToSinkError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*ingest.SinkError); ok {
		return err
	}
	msg := MapError(err)
	if msg.Code == defaultMessage.Code {
		return &ingest.SinkError{Code: msg.Code, Message: ingest.DefaultSinkMessage, Err: err}
	}
	return &ingest.SinkError{Code: msg.Code, Message: msg.Message, Err: err}
}
