package core

import "time"

// RegistrantInput is one runner as submitted by a form or import row.
type RegistrantInput struct {
	FullName         string                `json:"fullName"`
	Gender           string                `json:"gender"`
	DateOfBirth      string                `json:"dateOfBirth,omitempty"`
	Age              int                   `json:"age,omitempty"`
	IdentityNumber   string                `json:"identityNumber,omitempty"`
	Email            string                `json:"email"`
	WhatsApp         string                `json:"whatsapp"`
	Address          string                `json:"address,omitempty"`
	Province         string                `json:"province,omitempty"`
	City             string                `json:"city,omitempty"`
	Category         string                `json:"category,omitempty"`
	BibName          string                `json:"bibName,omitempty"`
	JerseySize       string                `json:"jerseySize"`
	EmergencyContact EmergencyContactInput `json:"emergencyContact"`
	MedicalInfo      string                `json:"medicalInfo,omitempty"`
}

// EmergencyContactInput is the submitted emergency contact.
type EmergencyContactInput struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation,omitempty"`
}

// IndividualRequest registers one runner.
type IndividualRequest struct {
	RegistrantInput

	// IdempotencyKey makes retries of the same submission safe. Optional.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// GroupRequest registers a community. Members inherit Category.
type GroupRequest struct {
	CommunityName  string            `json:"communityName"`
	PICName        string            `json:"picName"`
	PICEmail       string            `json:"picEmail"`
	PICWhatsApp    string            `json:"picWhatsapp"`
	Address        string            `json:"address,omitempty"`
	City           string            `json:"city,omitempty"`
	Province       string            `json:"province,omitempty"`
	Category       string            `json:"category"`
	Members        []RegistrantInput `json:"members"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// Registrant is a validated, normalized runner ready to be written.
type Registrant struct {
	FullName       string           `json:"fullName"`
	Gender         Gender           `json:"gender"`
	DateOfBirth    time.Time        `json:"dateOfBirth,omitzero"`
	Age            int              `json:"age"`
	IdentityNumber string           `json:"identityNumber,omitempty"`
	Email          string           `json:"email"`
	Phone          string           `json:"phone"`
	Address        string           `json:"address,omitempty"`
	Province       string           `json:"province,omitempty"`
	City           string           `json:"city,omitempty"`
	Category       Category         `json:"category"`
	BibName        string           `json:"bibName"`
	JerseySize     JerseySize       `json:"jerseySize"`
	Emergency      EmergencyContact `json:"emergencyContact"`
	MedicalInfo    string           `json:"medicalInfo,omitempty"`
}

// Identity returns the registrant's duplicate-screening identity.
func (r Registrant) Identity() Identity {
	return Identity{FullName: r.FullName, Email: r.Email, Phone: r.Phone}
}

// RegistrationResult is returned to the submitter after commit.
type RegistrationResult struct {
	RegistrationCode    string    `json:"registrationCode"`
	Kind                Source    `json:"kind"`
	BibNumbers          []string  `json:"bibNumbers"`
	MemberCodes         []string  `json:"memberCodes,omitempty"`
	PaymentCode         string    `json:"paymentCode"`
	TotalPrice          int64     `json:"totalPrice"`
	PaymentReferenceURL string    `json:"paymentReferenceUrl"`
	ExpiresAt           time.Time `json:"expiresAt"`
	Replayed            bool      `json:"replayed,omitempty"`
}

// RegistrationView is a stored registration with its payment.
type RegistrationView struct {
	Participant  *Participant       `json:"participant,omitempty"`
	Group        *GroupRegistration `json:"group,omitempty"`
	Members      []Participant      `json:"members,omitempty"`
	GroupMembers []GroupMember      `json:"groupMembers,omitempty"`
	Payment      *Payment           `json:"payment,omitempty"`
}
