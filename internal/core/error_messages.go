// Package core provides the upload pipeline: decoding, per-format
// validation and transformation, and orchestration of storage writes.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// Codes are grouped by category:
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Upload failed validation; the response lists every defect
//	         Patterns: "validation failed"
//	VAL002 - Request parameter is invalid
//	         Patterns: "invalid parameter"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Body exceeds the size limit
//	          Patterns: "request body too large", "file too large"
//	FILE002 - Body is not parseable in the declared format
//	          Patterns: "malformed request body"
//	FILE003 - Body is not UTF-8 text
//	          Patterns: "encoding error"
//	FILE004 - Multipart request without a file field
//	          Patterns: "no file provided"
//
// # Store Errors (DB001-DB099)
//
//	DB001 - A document with this key already exists
//	        Patterns: "unique constraint"
//	DB004 - Store unreachable
//	        Patterns: "connection refused"
//	DB005 - Store connection interrupted
//	        Patterns: "connection reset"
//	DB006 - Store operation timed out
//	        Patterns: "timeout"
//	DB007 - Store busy with conflicting writes
//	        Patterns: "deadlock", "write-write conflict"
//
// # Workspace and Table Errors (WS001-WS099, TBL001-TBL099)
//
//	WS001  - Workspace not found          Patterns: "workspace not found"
//	WS002  - Workspace already exists     Patterns: "workspace already exists"
//	TBL001 - Table not found              Patterns: "table not found"
//	TBL002 - Table exists with other kind Patterns: "table kind mismatch"
//	TBL003 - Table already exists         Patterns: "table already exists"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL002 - Too many uploads in progress Patterns: "too many concurrent uploads"
//	UPL004 - Request cancelled            Patterns: "context canceled"
//	UPL005 - Request timed out            Patterns: "context deadline exceeded"
//	UPL006 - Unknown upload format        Patterns: "unknown upload format"
//
// # Auth and Rate Limiting (AUTH001-AUTH099, RATE001)
//
//	AUTH001 - Missing API key             Patterns: "missing api key"
//	AUTH002 - Invalid API key             Patterns: "invalid api key"
//	AUTH003 - Insufficient permission     Patterns: "permission denied"
//	RATE001 - Too many requests           Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the server logs, which
// carry the technical error and request id.
//
// # Pattern Matching
//
// Patterns are matched case-insensitively using strings.Contains. The
// first matching pattern wins, so specific patterns come first.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Validation
	{"validation failed", UserMessage{
		Message: "The upload failed validation",
		Action:  "Fix every listed problem and upload again",
		Code:    "VAL001",
	}},
	{"invalid parameter", UserMessage{
		Message: "A request parameter is invalid",
		Action:  "Use letters, digits, '_' or '-' for workspace and table names",
		Code:    "VAL002",
	}},

	// File
	{"request body too large", UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller uploads",
		Code:    "FILE001",
	}},
	{"file too large", UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller uploads",
		Code:    "FILE001",
	}},
	{"malformed request body", UserMessage{
		Message: "File could not be parsed",
		Action:  "Check that the file matches the selected format",
		Code:    "FILE002",
	}},
	{"encoding error", UserMessage{
		Message: "File is not UTF-8 text",
		Action:  "Save the file with UTF-8 encoding",
		Code:    "FILE003",
	}},
	{"no file provided", UserMessage{
		Message: "No file was provided",
		Action:  "Send the file as the request body or as the 'file' form field",
		Code:    "FILE004",
	}},

	// Store
	{"unique constraint", UserMessage{
		Message: "A record with this key already exists",
		Action:  "Remove keys that are already stored in the table",
		Code:    "DB001",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try uploading a smaller file or try again later",
		Code:    "DB006",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
	{"write-write conflict", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},

	// Workspace and table
	{"workspace not found", UserMessage{
		Message: "Workspace not found",
		Action:  "Create the workspace before uploading to it",
		Code:    "WS001",
	}},
	{"workspace already exists", UserMessage{
		Message: "Workspace already exists",
		Action:  "Choose a different workspace name",
		Code:    "WS002",
	}},
	{"table not found", UserMessage{
		Message: "Table not found",
		Action:  "Verify the table name is correct",
		Code:    "TBL001",
	}},
	{"table kind mismatch", UserMessage{
		Message: "The table exists with a different kind",
		Action:  "Upload node rows and edge rows to separate tables",
		Code:    "TBL002",
	}},
	{"table already exists", UserMessage{
		Message: "Table already exists",
		Action:  "Choose a different table name",
		Code:    "TBL003",
	}},

	// Upload
	{"too many concurrent uploads", UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}},
	{"context canceled", UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Request timed out",
		Action:  "Try uploading a smaller file or check your connection",
		Code:    "UPL005",
	}},
	{"unknown upload format", UserMessage{
		Message: "Unknown upload format",
		Action:  "Use one of: csv, d3_json, newick, nested_json",
		Code:    "UPL006",
	}},

	// Auth
	{"missing api key", UserMessage{
		Message: "Authentication required",
		Action:  "Send an API key in the X-API-Key header",
		Code:    "AUTH001",
	}},
	{"invalid api key", UserMessage{
		Message: "API key not recognised",
		Action:  "Check the API key",
		Code:    "AUTH002",
	}},
	{"permission denied", UserMessage{
		Message: "You do not have permission for this workspace",
		Action:  "Ask a workspace owner for access",
		Code:    "AUTH003",
	}},

	// Rate limiting
	{"rate limit", UserMessage{
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
// It returns the first matching pattern (case-insensitive), or the ERR000
// fallback when nothing matches.
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

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
