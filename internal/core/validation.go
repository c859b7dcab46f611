package core

// validation.go checks a submitted registrant field by field before anything
// is written. Every offending field is reported, not only the first, so a
// form can highlight them all at once.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string `json:"field"`           // Field name, e.g. "members[2].email"
	Value   string `json:"value,omitempty"` // The invalid value
	Message string `json:"message"`         // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

var (
	emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^62\d{8,13}$`)
	nikRegex   = regexp.MustCompile(`^\d{16}$`)
)

const (
	maxNameLength = 100
	maxAge        = 100

	reservedEmailMessage = "uses a reserved domain"
	reservedPhoneMessage = "is a reserved number"
)

// registrantRules selects which fields are mandatory for a path.
type registrantRules struct {
	requireDOB       bool
	requireIdentity  bool
	requireEmergency bool

	// allowPlaceholders admits the reserved contact values ApplyDefaults
	// generates. Only the import path sets it.
	allowPlaceholders bool
}

var interactiveRules = registrantRules{requireDOB: true, requireIdentity: true, requireEmergency: true}

// fieldErrors accumulates ValidationErrors under a field prefix.
type fieldErrors struct {
	prefix string
	errs   []ValidationError
}

func (f *fieldErrors) add(field, value, msg string) {
	name := field
	if f.prefix != "" {
		name = f.prefix + "." + field
	}
	f.errs = append(f.errs, ValidationError{Field: name, Value: value, Message: msg})
}

func (f *fieldErrors) adopt(err error, field string) {
	if e, ok := err.(*Error); ok && len(e.Fields) > 0 {
		for _, fe := range e.Fields {
			f.add(field, fe.Value, fe.Message)
		}
		return
	}
	f.add(field, "", err.Error())
}

// prepareRegistrant validates and normalizes in. category overrides
// in.Category when non-empty (group members inherit the group's).
func prepareRegistrant(in RegistrantInput, prefix string, category Category, rules registrantRules,
	pricing *PriceTable, eventDate time.Time) (Registrant, []ValidationError) {

	fe := &fieldErrors{prefix: prefix}
	r := Registrant{
		FullName:       NormalizeName(in.FullName),
		IdentityNumber: strings.TrimSpace(in.IdentityNumber),
		Email:          NormalizeEmail(in.Email),
		Phone:          NormalizePhone(in.WhatsApp),
		Address:        strings.TrimSpace(in.Address),
		Province:       strings.TrimSpace(in.Province),
		City:           strings.TrimSpace(in.City),
		MedicalInfo:    strings.TrimSpace(in.MedicalInfo),
	}

	switch n := len([]rune(r.FullName)); {
	case n == 0:
		fe.add("fullName", "", "is required")
	case n < 2 || n > maxNameLength:
		fe.add("fullName", in.FullName, fmt.Sprintf("must be 2-%d characters", maxNameLength))
	}

	if g, ok := ParseGender(in.Gender); ok {
		r.Gender = g
	} else {
		fe.add("gender", in.Gender, "must be M or F")
	}

	switch {
	case r.Email == "":
		fe.add("email", "", "is required")
	case !emailRegex.MatchString(r.Email):
		fe.add("email", in.Email, "is not a valid email address")
	case !rules.allowPlaceholders && IsPlaceholderEmail(r.Email):
		fe.add("email", in.Email, reservedEmailMessage)
	}

	switch {
	case r.Phone == "":
		fe.add("whatsapp", "", "is required")
	case !phoneRegex.MatchString(r.Phone):
		fe.add("whatsapp", in.WhatsApp, "is not a valid Indonesian phone number")
	case !rules.allowPlaceholders && IsPlaceholderPhone(r.Phone):
		fe.add("whatsapp", in.WhatsApp, reservedPhoneMessage)
	}

	switch {
	case r.IdentityNumber == "" && rules.requireIdentity:
		fe.add("identityNumber", "", "is required")
	case r.IdentityNumber != "" && !nikRegex.MatchString(r.IdentityNumber):
		fe.add("identityNumber", in.IdentityNumber, "must be a 16-digit NIK")
	}

	ageKnown := false
	switch {
	case strings.TrimSpace(in.DateOfBirth) != "":
		dob, ok := ParseDate(in.DateOfBirth)
		if !ok {
			fe.add("dateOfBirth", in.DateOfBirth, "is not a valid date (use YYYY-MM-DD)")
			break
		}
		if dob.After(eventDate) {
			fe.add("dateOfBirth", in.DateOfBirth, "is after the event date")
			break
		}
		r.DateOfBirth = dob
		r.Age = AgeOn(dob, eventDate)
		ageKnown = true
	case rules.requireDOB:
		fe.add("dateOfBirth", "", "is required")
	case in.Age > 0:
		r.Age = in.Age
		ageKnown = true
	default:
		fe.add("age", "", "is required")
	}
	if ageKnown && r.Age > maxAge {
		fe.add("age", strconv.Itoa(r.Age), fmt.Sprintf("must be at most %d", maxAge))
	}

	if category == "" {
		c, err := pricing.ParseCategory(in.Category)
		if err != nil {
			fe.adopt(err, "category")
		}
		category = c
	}
	r.Category = category
	if rule, err := pricing.Category(category); err == nil && ageKnown && r.Age < rule.MinAge {
		fe.add("dateOfBirth", in.DateOfBirth,
			fmt.Sprintf("participant must be at least %d on race day for %s (is %d)", rule.MinAge, category, r.Age))
	}

	if size, err := pricing.ParseJerseySize(in.JerseySize); err != nil {
		fe.adopt(err, "jerseySize")
	} else {
		r.JerseySize = size
	}

	r.BibName = NormalizeBibName(in.BibName, r.FullName)
	if r.BibName == "" && r.FullName != "" {
		fe.add("bibName", in.BibName, "must contain letters or digits")
	}

	r.Emergency = EmergencyContact{
		Name:     NormalizeName(in.EmergencyContact.Name),
		Phone:    NormalizePhone(in.EmergencyContact.Phone),
		Relation: strings.TrimSpace(in.EmergencyContact.Relation),
	}
	if rules.requireEmergency {
		if r.Emergency.Name == "" {
			fe.add("emergencyContact.name", "", "is required")
		}
		switch {
		case r.Emergency.Phone == "":
			fe.add("emergencyContact.phone", "", "is required")
		case !phoneRegex.MatchString(r.Emergency.Phone):
			fe.add("emergencyContact.phone", in.EmergencyContact.Phone, "is not a valid Indonesian phone number")
		}
	}

	return r, fe.errs
}

// validateGroupHeader checks the community and contact fields of a group.
func validateGroupHeader(req GroupRequest, memberCount, minMembers, maxMembers int) []ValidationError {
	fe := &fieldErrors{}

	if strings.TrimSpace(req.CommunityName) == "" {
		fe.add("communityName", "", "is required")
	}
	if strings.TrimSpace(req.PICName) == "" {
		fe.add("picName", "", "is required")
	}
	if email := NormalizeEmail(req.PICEmail); email == "" {
		fe.add("picEmail", "", "is required")
	} else if !emailRegex.MatchString(email) {
		fe.add("picEmail", req.PICEmail, "is not a valid email address")
	} else if IsPlaceholderEmail(email) {
		fe.add("picEmail", req.PICEmail, reservedEmailMessage)
	}
	if phone := NormalizePhone(req.PICWhatsApp); phone == "" {
		fe.add("picWhatsapp", "", "is required")
	} else if !phoneRegex.MatchString(phone) {
		fe.add("picWhatsapp", req.PICWhatsApp, "is not a valid Indonesian phone number")
	} else if IsPlaceholderPhone(phone) {
		fe.add("picWhatsapp", req.PICWhatsApp, reservedPhoneMessage)
	}

	switch {
	case memberCount < minMembers:
		fe.add("members", strconv.Itoa(memberCount), fmt.Sprintf("group needs at least %d members", minMembers))
	case memberCount > maxMembers:
		fe.add("members", strconv.Itoa(memberCount), fmt.Sprintf("group allows at most %d members", maxMembers))
	}

	return fe.errs
}
