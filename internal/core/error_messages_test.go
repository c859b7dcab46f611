package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		msg  string
	}{
		{"nil", nil, "", ""},
		{"validation", Invalid("register", ValidationError{Field: "email", Message: "is required"}),
			"REG001", "Some registration details are invalid"},
		{"duplicate", Duplicated("register", DuplicateMatch{Field: "email"}),
			"DUP001", "Participant is already registered for this category"},
		{"bibs exhausted", Exhausted("5K", 9999),
			"BIB001", "No slots remain in this category"},
		{"wrapped conflict", fmt.Errorf("commit: %w", Conflict("register", errors.New("serialization failure"))),
			"TX001", "The system is busy processing other registrations"},
		{"bare deadline", fmt.Errorf("insert: %w", context.DeadlineExceeded),
			"TX002", "Registration took too long and was not saved"},
		{"import slots", ErrTooManyImports,
			"IMP001", "Too many imports are running"},
		{"connection refused", errors.New("dial tcp: connection refused"),
			"DB004", "Unable to connect to database"},
		{"upper-case deadlock", errors.New("ERROR: DEADLOCK detected"),
			"DB007", "Database was busy with conflicting operations"},
		{"internal hides detail", Internal("register", errors.New("pq: relation participants does not exist")),
			"ERR000", "An unexpected error occurred"},
		{"unknown", errors.New("some random internal error"),
			"ERR000", "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.msg, got.Message)
		})
	}
}

func TestFormatUserError(t *testing.T) {
	assert.Equal(t,
		"No slots remain in this category (Code: BIB001). Choose another category or contact the organizer",
		FormatUserError(Exhausted("10K", 9999)))
	assert.Empty(t, FormatUserError(nil))
}

func TestIsUserFacing(t *testing.T) {
	assert.False(t, IsUserFacing(nil))
	assert.True(t, IsUserFacing(NotFound("registration", "SR-DEADBEEF")))
	assert.False(t, IsUserFacing(errors.New("random internal error xyz")))
}
