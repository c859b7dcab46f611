package core

import (
	"context"
	"time"
)

// Category is a race category code such as "5K".
type Category string

// JerseySize is a shirt size code such as "M" or "XXL".
type JerseySize string

// Gender is "M" or "F".
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Status is a participant or group lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusImported  Status = "IMPORTED"
)

// Source records which path created a participant.
type Source string

const (
	SourceIndividual Source = "individual"
	SourceGroup      Source = "group"
	SourceImport     Source = "import"
)

// PaymentStatus is the state of a payment with the gateway.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentExpired   PaymentStatus = "EXPIRED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// EmergencyContact is the person to call on race day.
type EmergencyContact struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation,omitempty"`
}

// Participant is one registered runner.
type Participant struct {
	ID               string           `json:"id"`
	RegistrationCode string           `json:"registrationCode"`
	FullName         string           `json:"fullName"`
	Gender           Gender           `json:"gender"`
	DateOfBirth      time.Time        `json:"dateOfBirth,omitzero"`
	Age              int              `json:"age"`
	IdentityNumber   string           `json:"identityNumber,omitempty"`
	Email            string           `json:"email"`
	Phone            string           `json:"phone"`
	Address          string           `json:"address,omitempty"`
	Province         string           `json:"province,omitempty"`
	City             string           `json:"city,omitempty"`
	Category         Category         `json:"category"`
	BibName          string           `json:"bibName"`
	JerseySize       JerseySize       `json:"jerseySize"`
	BibNumber        string           `json:"bibNumber"`
	BasePrice        int64            `json:"basePrice"`
	JerseyAddOn      int64            `json:"jerseyAddOn"`
	TotalPrice       int64            `json:"totalPrice"`
	EarlyBird        bool             `json:"earlyBird"`
	Status           Status           `json:"status"`
	Source           Source           `json:"source"`
	Emergency        EmergencyContact `json:"emergencyContact"`
	MedicalInfo      string           `json:"medicalInfo,omitempty"`
	GroupID          string           `json:"groupId,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// GroupRegistration is a community registering several members under one payment.
type GroupRegistration struct {
	ID               string    `json:"id"`
	RegistrationCode string    `json:"registrationCode"`
	Name             string    `json:"name"`
	ContactName      string    `json:"contactName"`
	ContactEmail     string    `json:"contactEmail"`
	ContactPhone     string    `json:"contactPhone"`
	Address          string    `json:"address,omitempty"`
	City             string    `json:"city,omitempty"`
	Province         string    `json:"province,omitempty"`
	Category         Category  `json:"category"`
	MemberCount      int       `json:"memberCount"`
	UnitPrice        int64     `json:"unitPrice"`
	TotalBase        int64     `json:"totalBase"`
	JerseyAddOnTotal int64     `json:"jerseyAddOnTotal"`
	PromoDiscount    int64     `json:"promoDiscount"`
	FinalPrice       int64     `json:"finalPrice"`
	FreeSlots        int       `json:"freeSlots"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
}

// GroupMember links a participant to its group.
type GroupMember struct {
	GroupID       string `json:"groupId"`
	ParticipantID string `json:"participantId"`
	Sequence      int    `json:"sequence"`
	MemberCode    string `json:"memberCode"`
	FreeSlot      bool   `json:"freeSlot"`
}

// RacePack is the kit collected before the race, one per participant.
type RacePack struct {
	ID            string     `json:"id"`
	ParticipantID string     `json:"participantId"`
	Collected     bool       `json:"collected"`
	CollectedAt   *time.Time `json:"collectedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Payment belongs to exactly one participant or exactly one group.
type Payment struct {
	ID               string        `json:"id"`
	Code             string        `json:"code"`
	ParticipantID    string        `json:"participantId,omitempty"`
	GroupID          string        `json:"groupId,omitempty"`
	RegistrationCode string        `json:"registrationCode"`
	Amount           int64         `json:"amount"`
	Status           PaymentStatus `json:"status"`
	Method           string        `json:"method,omitempty"`
	Reference        string        `json:"reference,omitempty"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	PaidAt           *time.Time    `json:"paidAt,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// OutboxStatus is the delivery state of an outbox event.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxDelivered OutboxStatus = "delivered"
	OutboxDead      OutboxStatus = "dead"
)

// OutboxEvent is a notification written in the same transaction as the change it announces.
type OutboxEvent struct {
	ID            string       `json:"id"`
	Type          string       `json:"type"`
	AggregateCode string       `json:"aggregateCode"`
	Payload       []byte       `json:"payload"`
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt time.Time    `json:"nextAttemptAt"`
	LastError     string       `json:"lastError,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	DeliveredAt   *time.Time   `json:"deliveredAt,omitempty"`
}

// IdempotencyRecord stores the result of a keyed registration for replay.
type IdempotencyRecord struct {
	Key         string
	Fingerprint string
	Result      RegistrationResult
	CreatedAt   time.Time
}

// IdentityMatch is a persisted registration sharing an email or phone.
type IdentityMatch struct {
	RegistrationCode string
	FullName         string
	Email            string
	Phone            string
}

// Queries is every read and write the engine performs. Implementations are
// bound either to a connection or to an open transaction.
type Queries interface {
	// ReserveBibSequence advances the category counter by n and returns the
	// first reserved value, or KindAllocationExhausted when last+n > quota.
	ReserveBibSequence(ctx context.Context, category Category, n, quota int) (int, error)
	BibExists(ctx context.Context, bib string) (bool, error)

	// FindActiveIdentity returns a non-cancelled participant in category with
	// the given email or phone, or nil. Empty arguments are not matched.
	FindActiveIdentity(ctx context.Context, category Category, email, phone string) (*IdentityMatch, error)

	InsertParticipant(ctx context.Context, p *Participant) error
	InsertGroup(ctx context.Context, g *GroupRegistration) error
	InsertGroupMember(ctx context.Context, m *GroupMember) error
	InsertRacePack(ctx context.Context, rp *RacePack) error
	InsertPayment(ctx context.Context, p *Payment) error
	InsertOutboxEvent(ctx context.Context, ev *OutboxEvent) error
	InsertIdempotencyRecord(ctx context.Context, rec *IdempotencyRecord) error

	GetIdempotencyRecord(ctx context.Context, key string) (*IdempotencyRecord, error)
	GetParticipantByCode(ctx context.Context, code string) (*Participant, error)
	GetGroupByCode(ctx context.Context, code string) (*GroupRegistration, error)
	GetGroupByID(ctx context.Context, id string) (*GroupRegistration, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]GroupMember, error)
	ListGroupParticipants(ctx context.Context, groupID string) ([]Participant, error)
	GetPaymentByCode(ctx context.Context, code string) (*Payment, error)
	GetPaymentByRegistration(ctx context.Context, registrationCode string) (*Payment, error)

	UpdatePaymentStatus(ctx context.Context, code string, status PaymentStatus, reference string, at time.Time) error
	// UpdateOwnerStatus sets the status of the payment's participant, or of
	// its group and every member participant.
	UpdateOwnerStatus(ctx context.Context, p *Payment, status Status, at time.Time) error
	ListExpiredPendingPayments(ctx context.Context, now time.Time, limit int) ([]Payment, error)

	// ClaimDueOutboxEvents takes up to limit pending events due at now and
	// pushes their next attempt to leaseUntil, so concurrent dispatchers
	// never receive the same event while the lease holds.
	ClaimDueOutboxEvents(ctx context.Context, now, leaseUntil time.Time, limit int) ([]OutboxEvent, error)
	MarkOutboxDelivered(ctx context.Context, id string, at time.Time) error
	MarkOutboxFailed(ctx context.Context, id string, attempts int, next time.Time, lastErr string, dead bool) error
}

// Store is Queries plus transactions. WithTx runs fn in a serializable
// transaction, committing when fn returns nil and rolling back otherwise.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
}
