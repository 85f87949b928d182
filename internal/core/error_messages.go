package core

// error_messages.go maps technical errors to user-facing messages with codes.
//
// Codes are grouped by category:
//
//	DB001-DB009   Database errors (constraints, connectivity, missing tables)
//	VAL001-VAL006 Validation and parse errors
//	FILE001-FILE005 Source file errors (size, format, encoding)
//	IMP001-IMP005 Import lifecycle errors (cancelled, busy, not found)
//	TBL001        Unknown destination
//	ERR000        Fallback when nothing matches
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns must come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Import lifecycle (IMP001-IMP005)
	// Listed first: cancellation errors also carry "context canceled".
	// =========================================================================
	{
		pattern: "import cancelled",
		msg: UserMessage{
			Message: "Import was cancelled",
			Action:  "No rows were written. Start a new import when ready",
			Code:    "IMP001",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP002",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import run not found",
			Action:  "The run may have expired. Check the import history",
			Code:    "IMP003",
		},
	},
	{
		pattern: "destination busy",
		msg: UserMessage{
			Message: "Another import into this table is running",
			Action:  "Wait for it to finish, then retry",
			Code:    "IMP004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Import timed out",
			Action:  "Split the file or raise the import timeout",
			Code:    "IMP005",
		},
	},

	// =========================================================================
	// Database constraint errors (DB001-DB003, DB008)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Remove duplicates or import with the replace action",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your CSV",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure parent records are imported first",
			Code:    "DB003",
		},
	},
	{
		pattern: "not-null constraint",
		msg: UserMessage{
			Message: "A required column was left empty",
			Action:  "Fill the column or mark it optional in the map file",
			Code:    "DB008",
		},
	},
	{
		pattern: "not null constraint",
		msg: UserMessage{
			Message: "A required column was left empty",
			Action:  "Fill the column or mark it optional in the map file",
			Code:    "DB008",
		},
	},

	// =========================================================================
	// Database connectivity and schema errors (DB004-DB007, DB009)
	// =========================================================================
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
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "no such table",
		msg: UserMessage{
			Message: "Destination table does not exist",
			Action:  "Run the migrate command before importing",
			Code:    "DB009",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "Destination table does not exist",
			Action:  "Run the migrate command before importing",
			Code:    "DB009",
		},
	},

	// =========================================================================
	// Validation errors (VAL001-VAL006)
	// =========================================================================
	{
		pattern: "entity validation error",
		msg: UserMessage{
			Message: "A row failed validation before it was written",
			Action:  "Review the listed properties and fix the source data",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024",
			Code:    "VAL002",
		},
	},
	{
		pattern: "invalid numeric",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Remove stray characters and use standard decimal format",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid enum",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Check the allowed values for this field",
			Code:    "VAL004",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from the header",
			Action:  "Check that all required columns are present in your file",
			Code:    "VAL006",
		},
	},
	{
		pattern: "has invalid value",
		msg: UserMessage{
			Message: "Some rows could not be parsed",
			Action:  "Fix the listed rows and import them again",
			Code:    "VAL005",
		},
	},

	// =========================================================================
	// File errors (FILE001-FILE005)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "parse error",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file uses consistent quoting and delimiters",
			Code:    "FILE002",
		},
	},
	{
		pattern: "unknown encoding",
		msg: UserMessage{
			Message: "The requested text encoding is not supported",
			Action:  "Use an encoding name such as utf-8 or windows-1252",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "invalid source",
		msg: UserMessage{
			Message: "The import file could not be opened",
			Action:  "Check the file path and permissions",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Table errors (TBL001)
	// =========================================================================
	{
		pattern: "unknown table",
		msg: UserMessage{
			Message: "Unknown destination table",
			Action:  "List available tables and check the name",
			Code:    "TBL001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first pattern match, or the ERR000 fallback.
//
//	msg := MapError(errors.New("duplicate key value"))
//	// msg.Code == "DB001"
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

// FormatUserError creates a display string: "Message (Code: XXX). Action"
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
