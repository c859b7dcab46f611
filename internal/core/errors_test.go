package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("handler: %w", Duplicated("register", DuplicateMatch{Field: "email", MatchedAgainst: "row 1 of this batch"}))

	if !errors.Is(err, ErrDuplicate) {
		t.Error("wrapped duplicate should match ErrDuplicate")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("duplicate must not match ErrValidation")
	}
	if got := KindOf(err); got != KindDuplicate {
		t.Errorf("KindOf = %v, want duplicate", got)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain error", errors.New("boom"), KindInternal},
		{"deadline", context.DeadlineExceeded, KindTransactionTimeout},
		{"not found", NotFound("payment", "PAY-1"), KindNotFound},
		{"conflict wraps cause", Conflict("tx", errors.New("40001")), KindTransactionConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessageListsFields(t *testing.T) {
	err := Invalid("register individual",
		ValidationError{Field: "email", Message: "is required"},
		ValidationError{Field: "whatsapp", Message: "is required"},
	)
	msg := err.Error()
	for _, want := range []string{"register individual", "email: is required", "whatsapp: is required"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bib collision", &UniqueViolation{Constraint: ConstraintBibNumber}, true},
		{"payment code collision", fmt.Errorf("insert: %w", &UniqueViolation{Constraint: ConstraintPaymentCode}), true},
		{"active email is terminal", &UniqueViolation{Constraint: ConstraintActiveEmail}, false},
		{"idempotency key is terminal", &UniqueViolation{Constraint: ConstraintIdempotencyKey}, false},
		{"serialization conflict", Conflict("tx", nil), true},
		{"validation", Invalid("x"), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
