package core

import (
	"context"
	"fmt"
	"strings"
)

// Placeholder identities are generated for imported rows lacking contact
// data. They never count as duplicates of anything.
const (
	PlaceholderEmailDomain = "placeholder.sukamajurun.id"
	PlaceholderPhonePrefix = "620000"
)

// Identity is the normalized contact identity of a registrant.
type Identity struct {
	FullName string
	Email    string
	Phone    string
}

// NewIdentity normalizes email and phone.
func NewIdentity(fullName, email, phone string) Identity {
	return Identity{
		FullName: fullName,
		Email:    NormalizeEmail(email),
		Phone:    NormalizePhone(phone),
	}
}

// DuplicateMatch describes why a registrant was rejected as a duplicate.
type DuplicateMatch struct {
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Field          string `json:"field"`
	ExistingName   string `json:"existingName,omitempty"`
	ExistingCode   string `json:"existingCode,omitempty"`
	MatchedAgainst string `json:"matchedAgainst"`
	Row            int    `json:"row,omitempty"`
}

// DuplicateResult is the outcome of a duplicate check.
type DuplicateResult struct {
	IsDuplicate bool
	Match       DuplicateMatch
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone reduces a phone number to its canonical 62-prefixed digits.
// "0812-3456-789", "+62 812 3456 789", "+62 0812 3456 789", "0062 812 3456 789"
// and "8123456789" all become "628123456789".
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	// 00 is the international dialing prefix.
	digits = strings.TrimPrefix(digits, "00")

	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "62"):
		return "62" + dropTrunkZero(digits[2:])
	case strings.HasPrefix(digits, "0"):
		return "62" + digits[1:]
	case strings.HasPrefix(digits, "8"):
		return "62" + digits
	}
	return digits
}

// dropTrunkZero removes a national trunk 0 written after the country code.
// A run of zeros is left alone: subscriber numbers never start with 0, and
// placeholder numbers are built from one.
func dropTrunkZero(rest string) string {
	if len(rest) > 1 && rest[0] == '0' && rest[1] != '0' {
		return rest[1:]
	}
	return rest
}

// IsPlaceholderEmail reports whether email was generated for an import.
func IsPlaceholderEmail(email string) bool {
	return strings.HasSuffix(NormalizeEmail(email), "@"+PlaceholderEmailDomain)
}

// IsPlaceholderPhone reports whether phone was generated for an import.
func IsPlaceholderPhone(phone string) bool {
	return strings.HasPrefix(NormalizePhone(phone), PlaceholderPhonePrefix)
}

// PlaceholderEmail builds a placeholder address unique to seed.
func PlaceholderEmail(seed string) string {
	return fmt.Sprintf("import-%s@%s", seed, PlaceholderEmailDomain)
}

// PlaceholderPhone builds a placeholder number unique to n.
func PlaceholderPhone(n int) string {
	return fmt.Sprintf("%s%07d", PlaceholderPhonePrefix, n)
}

// matchable returns the identity with placeholders blanked out.
func (id Identity) matchable() (email, phone string) {
	if id.Email != "" && !IsPlaceholderEmail(id.Email) {
		email = id.Email
	}
	if id.Phone != "" && !IsPlaceholderPhone(id.Phone) {
		phone = id.Phone
	}
	return email, phone
}

// batchEntry is an earlier registrant in the same batch.
type batchEntry struct {
	ref  string
	row  int
	name string
}

// Batch tracks identities accepted so far within one request so later rows
// can be checked against earlier ones. Keys are scoped by category.
type Batch struct {
	seen map[string]batchEntry
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{seen: make(map[string]batchEntry)}
}

// RowRef names row n of an import.
func RowRef(n int) string { return fmt.Sprintf("row %d of this batch", n) }

// MemberRef names member n of a group.
func MemberRef(n int) string { return fmt.Sprintf("member %d of this group", n) }

func batchKey(field string, c Category, value string) string {
	return field + "\x00" + string(c) + "\x00" + value
}

// Add records id under category. ref is a RowRef or MemberRef; row is its number.
func (b *Batch) Add(id Identity, c Category, ref string, row int) {
	email, phone := id.matchable()
	e := batchEntry{ref: ref, row: row, name: id.FullName}
	if email != "" {
		b.seen[batchKey("email", c, email)] = e
	}
	if phone != "" {
		b.seen[batchKey("phone", c, phone)] = e
	}
}

func (b *Batch) lookup(id Identity, c Category) (DuplicateMatch, bool) {
	if b == nil {
		return DuplicateMatch{}, false
	}
	email, phone := id.matchable()
	if email != "" {
		if e, ok := b.seen[batchKey("email", c, email)]; ok {
			return DuplicateMatch{Email: email, Field: "email", ExistingName: e.name, MatchedAgainst: e.ref, Row: e.row}, true
		}
	}
	if phone != "" {
		if e, ok := b.seen[batchKey("phone", c, phone)]; ok {
			return DuplicateMatch{Phone: phone, Field: "phone", ExistingName: e.name, MatchedAgainst: e.ref, Row: e.row}, true
		}
	}
	return DuplicateMatch{}, false
}

// IdentityLookup finds persisted registrations by identity.
type IdentityLookup interface {
	FindActiveIdentity(ctx context.Context, category Category, email, phone string) (*IdentityMatch, error)
}

// CheckDuplicate reports whether id is already registered in category,
// either persisted (non-cancelled) or earlier in batch. A match on email or
// phone alone is sufficient. batch may be nil.
func CheckDuplicate(ctx context.Context, lookup IdentityLookup, id Identity, c Category, batch *Batch) (DuplicateResult, error) {
	email, phone := id.matchable()
	if email == "" && phone == "" {
		return DuplicateResult{}, nil
	}

	existing, err := lookup.FindActiveIdentity(ctx, c, email, phone)
	if err != nil {
		return DuplicateResult{}, fmt.Errorf("duplicate lookup: %w", err)
	}
	if existing != nil {
		m := DuplicateMatch{
			ExistingName:   existing.FullName,
			ExistingCode:   existing.RegistrationCode,
			MatchedAgainst: fmt.Sprintf("existing registration %s (%s)", existing.RegistrationCode, existing.FullName),
		}
		if email != "" && existing.Email == email {
			m.Field, m.Email = "email", email
		} else {
			m.Field, m.Phone = "phone", phone
		}
		return DuplicateResult{IsDuplicate: true, Match: m}, nil
	}

	if m, ok := batch.lookup(id, c); ok {
		return DuplicateResult{IsDuplicate: true, Match: m}, nil
	}

	return DuplicateResult{}, nil
}
