package core

// error_messages.go turns engine errors into user-facing messages with codes
// for support reference.
//
// # Error Codes Reference
//
// Registration (REG001-REG099):
//
//	REG001 - Some registration details are invalid
//	         Action: Correct the listed fields and submit again
//	REG002 - Registration not found
//	         Action: Check the registration code
//
// Duplicates (DUP001-DUP099):
//
//	DUP001 - Participant is already registered for this category
//	         Action: Use a different email or WhatsApp number, or check your existing registration
//
// Bib allocation (BIB001-BIB099):
//
//	BIB001 - No slots remain in this category
//	         Action: Choose another category or contact the organizer
//
// Transactions (TX001-TX099):
//
//	TX001 - The system is busy processing other registrations
//	        Action: Please try again in a few moments
//	TX002 - Registration took too long and was not saved
//	        Action: Please try again; nothing was charged
//	TX003 - This request key was already used with different details
//	        Action: Send a new Idempotency-Key for a new registration
//
// Imports (IMP001-IMP099):
//
//	IMP001 - Too many imports are running
//	         Action: Wait for the current import to finish and retry
//	IMP002 - Batch exceeds the row limit
//	         Action: Split the file into smaller batches
//
// Payments (PAY001-PAY099):
//
//	PAY001 - Payment callback signature is invalid
//	         Action: Check the gateway webhook secret
//
// Infrastructure (DB004-DB007) keep the codes of the shared database table:
// connection refused, connection reset, timeout, deadlock.
//
// ERR000 is the fallback; support staff should check logs for the original error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var kindMessages = map[Kind]UserMessage{
	KindValidation: {
		Message: "Some registration details are invalid",
		Action:  "Correct the listed fields and submit again",
		Code:    "REG001",
	},
	KindNotFound: {
		Message: "Registration not found",
		Action:  "Check the registration code",
		Code:    "REG002",
	},
	KindDuplicate: {
		Message: "Participant is already registered for this category",
		Action:  "Use a different email or WhatsApp number, or check your existing registration",
		Code:    "DUP001",
	},
	KindAllocationExhausted: {
		Message: "No slots remain in this category",
		Action:  "Choose another category or contact the organizer",
		Code:    "BIB001",
	},
	KindTransactionConflict: {
		Message: "The system is busy processing other registrations",
		Action:  "Please try again in a few moments",
		Code:    "TX001",
	},
	KindTransactionTimeout: {
		Message: "Registration took too long and was not saved",
		Action:  "Please try again; nothing was charged",
		Code:    "TX002",
	},
	KindIdempotencyMismatch: {
		Message: "This request key was already used with different details",
		Action:  "Send a new Idempotency-Key for a new registration",
		Code:    "TX003",
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages
// for errors that carry no Kind. The first matching pattern wins.
var errorPatterns = []errorPattern{
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "Too many imports are running",
			Action:  "Wait for the current import to finish and retry",
			Code:    "IMP001",
		},
	},
	{
		pattern: "row limit",
		msg: UserMessage{
			Message: "Batch exceeds the row limit",
			Action:  "Split the file into smaller batches",
			Code:    "IMP002",
		},
	},
	{
		pattern: "invalid signature",
		msg: UserMessage{
			Message: "Payment callback signature is invalid",
			Action:  "Check the gateway webhook secret",
			Code:    "PAY001",
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
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
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
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Engine errors map by
// Kind; anything else is matched against known patterns, falling back to ERR000.
// Internal details never reach the returned message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var e *Error
	if errors.As(err, &e) {
		if msg, ok := kindMessages[e.Kind]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if KindOf(err) == KindTransactionTimeout {
		return kindMessages[KindTransactionTimeout]
	}

	return defaultMessage
}

// FormatUserError creates "Message (Code: XXX). Action" for display.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
