package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine failures. Callers branch on Kind, never on messages.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicate
	KindAllocationExhausted
	KindTransactionConflict
	KindTransactionTimeout
	KindIdempotencyMismatch
	KindNotFound
)

var kindNames = map[Kind]string{
	KindInternal:            "internal",
	KindValidation:          "validation",
	KindDuplicate:           "duplicate",
	KindAllocationExhausted: "allocation exhausted",
	KindTransactionConflict: "transaction conflict",
	KindTransactionTimeout:  "transaction timeout",
	KindIdempotencyMismatch: "idempotency mismatch",
	KindNotFound:            "not found",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrDuplicate           = &Error{Kind: KindDuplicate}
	ErrAllocationExhausted = &Error{Kind: KindAllocationExhausted}
	ErrTransactionConflict = &Error{Kind: KindTransactionConflict}
	ErrTransactionTimeout  = &Error{Kind: KindTransactionTimeout}
	ErrIdempotencyMismatch = &Error{Kind: KindIdempotencyMismatch}
	ErrNotFound            = &Error{Kind: KindNotFound}
)

// Error is the engine's failure type.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "register individual"
	Message string

	// Fields lists every offending field for KindValidation.
	Fields []ValidationError

	// Duplicates lists every matched identity for KindDuplicate.
	Duplicates []DuplicateMatch

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	default:
		b.WriteString(e.Kind.String())
	}
	if len(e.Fields) > 0 {
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = f.Error()
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrDuplicate) works
// regardless of message or wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
// Context deadline errors classify as KindTransactionTimeout.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransactionTimeout
	}
	return KindInternal
}

// Invalid builds a validation error listing every offending field.
func Invalid(op string, fields ...ValidationError) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: "invalid registration", Fields: fields}
}

// Duplicated builds a duplicate error naming every matched identity.
func Duplicated(op string, matches ...DuplicateMatch) *Error {
	msg := "participant already registered"
	if len(matches) > 0 {
		msg = "participant already registered: " + matches[0].MatchedAgainst
	}
	return &Error{Kind: KindDuplicate, Op: op, Message: msg, Duplicates: matches}
}

// Exhausted reports a category without remaining bib numbers.
func Exhausted(category Category, quota int) *Error {
	return &Error{
		Kind:    KindAllocationExhausted,
		Op:      "allocate bib",
		Message: fmt.Sprintf("category %s has no bib numbers left (quota %d)", category, quota),
	}
}

// Conflict wraps a retryable concurrency failure from the store.
func Conflict(op string, err error) *Error {
	return &Error{Kind: KindTransactionConflict, Op: op, Message: "concurrent update conflict", Err: err}
}

// NotFound reports a missing record.
func NotFound(what, key string) *Error {
	return &Error{Kind: KindNotFound, Op: "lookup", Message: fmt.Sprintf("%s %q not found", what, key)}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// Unique constraint names shared by store implementations.
const (
	ConstraintBibNumber        = "participants_bib_number_key"
	ConstraintRegistrationCode = "participants_registration_code_key"
	ConstraintGroupCode        = "group_registrations_registration_code_key"
	ConstraintMemberCode       = "group_members_member_code_key"
	ConstraintPaymentCode      = "payments_code_key"
	ConstraintActiveEmail      = "participants_active_email_idx"
	ConstraintActivePhone      = "participants_active_phone_idx"
	ConstraintIdempotencyKey   = "idempotency_keys_pkey"
)

// UniqueViolation is returned by stores when an insert breaks a unique constraint.
type UniqueViolation struct {
	Constraint string
	Err        error
}

func (e *UniqueViolation) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unique constraint %s violated: %v", e.Constraint, e.Err)
	}
	return fmt.Sprintf("unique constraint %s violated", e.Constraint)
}

func (e *UniqueViolation) Unwrap() error { return e.Err }

// uniqueConstraint returns the violated constraint name in err, if any.
func uniqueConstraint(err error) (string, bool) {
	var uv *UniqueViolation
	if errors.As(err, &uv) {
		return uv.Constraint, true
	}
	return "", false
}

// retryable reports whether a failed transaction may be attempted again.
// Generated codes and bib numbers that lost a race are regenerated on retry.
func retryable(err error) bool {
	if c, ok := uniqueConstraint(err); ok {
		switch c {
		case ConstraintBibNumber, ConstraintRegistrationCode, ConstraintGroupCode,
			ConstraintMemberCode, ConstraintPaymentCode:
			return true
		}
		return false
	}
	return KindOf(err) == KindTransactionConflict
}
