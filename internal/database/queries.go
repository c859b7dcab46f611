package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries implements core.Queries over db.
type Queries struct {
	db DBTX
}

// New binds queries to a pool, connection or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

var _ core.Queries = (*Queries)(nil)

func toPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

func toPgDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func toPgTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

// ----------------------------------------------------------------------------
// Bib sequences
// ----------------------------------------------------------------------------

const ensureBibSequence = `
INSERT INTO bib_sequences (category, last_value) VALUES ($1, 0)
ON CONFLICT (category) DO NOTHING`

const advanceBibSequence = `
UPDATE bib_sequences
SET last_value = last_value + $2
WHERE category = $1 AND last_value + $2 <= $3
RETURNING last_value - $2 + 1`

func (q *Queries) ReserveBibSequence(ctx context.Context, category core.Category, n, quota int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("reserve %d bib numbers: count must be positive", n)
	}
	if _, err := q.db.Exec(ctx, ensureBibSequence, string(category)); err != nil {
		return 0, mapError("ensure bib sequence", err)
	}
	var first int
	err := q.db.QueryRow(ctx, advanceBibSequence, string(category), n, quota).Scan(&first)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, core.Exhausted(category, quota)
		}
		return 0, mapError("reserve bib sequence", err)
	}
	return first, nil
}

func (q *Queries) BibExists(ctx context.Context, bib string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM participants WHERE bib_number = $1)`, bib).Scan(&exists)
	if err != nil {
		return false, mapError("check bib", err)
	}
	return exists, nil
}

// ----------------------------------------------------------------------------
// Identity
// ----------------------------------------------------------------------------

const findActiveIdentity = `
SELECT registration_code, full_name, email, phone
FROM participants
WHERE category = $1
  AND status <> 'CANCELLED'
  AND (($2::text <> '' AND email = $2::text) OR ($3::text <> '' AND phone = $3::text))
ORDER BY created_at
LIMIT 1`

func (q *Queries) FindActiveIdentity(ctx context.Context, category core.Category, email, phone string) (*core.IdentityMatch, error) {
	if email == "" && phone == "" {
		return nil, nil
	}
	var m core.IdentityMatch
	err := q.db.QueryRow(ctx, findActiveIdentity, string(category), email, phone).
		Scan(&m.RegistrationCode, &m.FullName, &m.Email, &m.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("find active identity", err)
	}
	return &m, nil
}

// ----------------------------------------------------------------------------
// Participants and groups
// ----------------------------------------------------------------------------

const participantColumns = `id, registration_code, full_name, gender, date_of_birth, age, identity_number,
	email, phone, address, province, city, category, bib_name, jersey_size, bib_number,
	base_price, jersey_add_on, total_price, early_bird, status, source,
	emergency_name, emergency_phone, emergency_relation, medical_info, group_id, created_at`

func (q *Queries) InsertParticipant(ctx context.Context, p *core.Participant) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO participants (`+participantColumns+`, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $28)`,
		toPgUUID(p.ID), p.RegistrationCode, p.FullName, string(p.Gender), toPgDate(p.DateOfBirth), p.Age, p.IdentityNumber,
		p.Email, p.Phone, p.Address, p.Province, p.City, string(p.Category), p.BibName, string(p.JerseySize), p.BibNumber,
		p.BasePrice, p.JerseyAddOn, p.TotalPrice, p.EarlyBird, string(p.Status), string(p.Source),
		p.Emergency.Name, p.Emergency.Phone, p.Emergency.Relation, p.MedicalInfo, toPgUUID(p.GroupID), p.CreatedAt,
	)
	return mapError("insert participant", err)
}

func scanParticipant(row pgx.Row) (*core.Participant, error) {
	var (
		p       core.Participant
		id      pgtype.UUID
		groupID pgtype.UUID
		dob     pgtype.Date
	)
	err := row.Scan(
		&id, &p.RegistrationCode, &p.FullName, &p.Gender, &dob, &p.Age, &p.IdentityNumber,
		&p.Email, &p.Phone, &p.Address, &p.Province, &p.City, &p.Category, &p.BibName, &p.JerseySize, &p.BibNumber,
		&p.BasePrice, &p.JerseyAddOn, &p.TotalPrice, &p.EarlyBird, &p.Status, &p.Source,
		&p.Emergency.Name, &p.Emergency.Phone, &p.Emergency.Relation, &p.MedicalInfo, &groupID, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ID = uuidToString(id)
	p.GroupID = uuidToString(groupID)
	if dob.Valid {
		p.DateOfBirth = dob.Time
	}
	return &p, nil
}

func (q *Queries) GetParticipantByCode(ctx context.Context, code string) (*core.Participant, error) {
	p, err := scanParticipant(q.db.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE registration_code = $1`, code))
	if err != nil {
		return nil, notFound("get participant", "participant", code, err)
	}
	return p, nil
}

func (q *Queries) ListGroupParticipants(ctx context.Context, groupID string) ([]core.Participant, error) {
	// member registration codes sort in sequence order
	rows, err := q.db.Query(ctx, `
SELECT `+participantColumns+`
FROM participants
WHERE group_id = $1
ORDER BY registration_code`, toPgUUID(groupID))
	if err != nil {
		return nil, mapError("list group participants", err)
	}
	defer rows.Close()

	var out []core.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, mapError("scan group participant", err)
		}
		out = append(out, *p)
	}
	return out, mapError("list group participants", rows.Err())
}

const groupColumns = `id, registration_code, name, contact_name, contact_email, contact_phone,
	address, city, province, category, member_count, unit_price, total_base,
	jersey_add_on_total, promo_discount, final_price, free_slots, status, created_at`

func (q *Queries) InsertGroup(ctx context.Context, g *core.GroupRegistration) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO group_registrations (`+groupColumns+`, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)`,
		toPgUUID(g.ID), g.RegistrationCode, g.Name, g.ContactName, g.ContactEmail, g.ContactPhone,
		g.Address, g.City, g.Province, string(g.Category), g.MemberCount, g.UnitPrice, g.TotalBase,
		g.JerseyAddOnTotal, g.PromoDiscount, g.FinalPrice, g.FreeSlots, string(g.Status), g.CreatedAt,
	)
	return mapError("insert group", err)
}

func scanGroup(row pgx.Row) (*core.GroupRegistration, error) {
	var (
		g  core.GroupRegistration
		id pgtype.UUID
	)
	err := row.Scan(
		&id, &g.RegistrationCode, &g.Name, &g.ContactName, &g.ContactEmail, &g.ContactPhone,
		&g.Address, &g.City, &g.Province, &g.Category, &g.MemberCount, &g.UnitPrice, &g.TotalBase,
		&g.JerseyAddOnTotal, &g.PromoDiscount, &g.FinalPrice, &g.FreeSlots, &g.Status, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.ID = uuidToString(id)
	return &g, nil
}

func (q *Queries) GetGroupByCode(ctx context.Context, code string) (*core.GroupRegistration, error) {
	g, err := scanGroup(q.db.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM group_registrations WHERE registration_code = $1`, code))
	if err != nil {
		return nil, notFound("get group", "group", code, err)
	}
	return g, nil
}

func (q *Queries) GetGroupByID(ctx context.Context, id string) (*core.GroupRegistration, error) {
	g, err := scanGroup(q.db.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM group_registrations WHERE id = $1`, toPgUUID(id)))
	if err != nil {
		return nil, notFound("get group", "group", id, err)
	}
	return g, nil
}

func (q *Queries) InsertGroupMember(ctx context.Context, m *core.GroupMember) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO group_members (group_id, participant_id, sequence, member_code, free_slot)
VALUES ($1, $2, $3, $4, $5)`,
		toPgUUID(m.GroupID), toPgUUID(m.ParticipantID), m.Sequence, m.MemberCode, m.FreeSlot,
	)
	return mapError("insert group member", err)
}

func (q *Queries) ListGroupMembers(ctx context.Context, groupID string) ([]core.GroupMember, error) {
	rows, err := q.db.Query(ctx, `
SELECT group_id, participant_id, sequence, member_code, free_slot
FROM group_members WHERE group_id = $1 ORDER BY sequence`, toPgUUID(groupID))
	if err != nil {
		return nil, mapError("list group members", err)
	}
	defer rows.Close()

	var out []core.GroupMember
	for rows.Next() {
		var (
			m        core.GroupMember
			gid, pid pgtype.UUID
		)
		if err := rows.Scan(&gid, &pid, &m.Sequence, &m.MemberCode, &m.FreeSlot); err != nil {
			return nil, mapError("scan group member", err)
		}
		m.GroupID = uuidToString(gid)
		m.ParticipantID = uuidToString(pid)
		out = append(out, m)
	}
	return out, mapError("list group members", rows.Err())
}

func (q *Queries) InsertRacePack(ctx context.Context, rp *core.RacePack) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO race_packs (id, participant_id, collected, collected_at, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		toPgUUID(rp.ID), toPgUUID(rp.ParticipantID), rp.Collected, toPgTimestamptz(rp.CollectedAt), rp.CreatedAt,
	)
	return mapError("insert race pack", err)
}

// ----------------------------------------------------------------------------
// Payments
// ----------------------------------------------------------------------------

const paymentColumns = `id, code, participant_id, group_id, registration_code, amount, status,
	method, reference, expires_at, paid_at, created_at, updated_at`

func (q *Queries) InsertPayment(ctx context.Context, p *core.Payment) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO payments (`+paymentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		toPgUUID(p.ID), p.Code, toPgUUID(p.ParticipantID), toPgUUID(p.GroupID), p.RegistrationCode, p.Amount, string(p.Status),
		p.Method, p.Reference, p.ExpiresAt, toPgTimestamptz(p.PaidAt), p.CreatedAt, p.UpdatedAt,
	)
	return mapError("insert payment", err)
}

func scanPayment(row pgx.Row) (*core.Payment, error) {
	var (
		p                   core.Payment
		id, partID, groupID pgtype.UUID
		paidAt              pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &p.Code, &partID, &groupID, &p.RegistrationCode, &p.Amount, &p.Status,
		&p.Method, &p.Reference, &p.ExpiresAt, &paidAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ID = uuidToString(id)
	p.ParticipantID = uuidToString(partID)
	p.GroupID = uuidToString(groupID)
	p.PaidAt = timePtr(paidAt)
	return &p, nil
}

func (q *Queries) GetPaymentByCode(ctx context.Context, code string) (*core.Payment, error) {
	p, err := scanPayment(q.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE code = $1`, code))
	if err != nil {
		return nil, notFound("get payment", "payment", code, err)
	}
	return p, nil
}

func (q *Queries) GetPaymentByRegistration(ctx context.Context, registrationCode string) (*core.Payment, error) {
	p, err := scanPayment(q.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE registration_code = $1 ORDER BY created_at DESC LIMIT 1`,
		registrationCode))
	if err != nil {
		return nil, notFound("get payment", "payment for registration", registrationCode, err)
	}
	return p, nil
}

func (q *Queries) UpdatePaymentStatus(ctx context.Context, code string, status core.PaymentStatus, reference string, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
UPDATE payments
SET status = $2,
    reference = CASE WHEN $3::text <> '' THEN $3::text ELSE reference END,
    paid_at = CASE WHEN $2 = 'SUCCESS' THEN $4 ELSE paid_at END,
    updated_at = $4
WHERE code = $1`, code, string(status), reference, at)
	if err != nil {
		return mapError("update payment status", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("payment", code)
	}
	return nil
}

func (q *Queries) UpdateOwnerStatus(ctx context.Context, p *core.Payment, status core.Status, at time.Time) error {
	if p.ParticipantID != "" {
		tag, err := q.db.Exec(ctx,
			`UPDATE participants SET status = $2, updated_at = $3 WHERE id = $1`,
			toPgUUID(p.ParticipantID), string(status), at)
		if err != nil {
			return mapError("update participant status", err)
		}
		if tag.RowsAffected() == 0 {
			return core.NotFound("participant", p.ParticipantID)
		}
		return nil
	}

	tag, err := q.db.Exec(ctx,
		`UPDATE group_registrations SET status = $2, updated_at = $3 WHERE id = $1`,
		toPgUUID(p.GroupID), string(status), at)
	if err != nil {
		return mapError("update group status", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("group", p.GroupID)
	}
	_, err = q.db.Exec(ctx, `
UPDATE participants SET status = $2, updated_at = $3
WHERE id IN (SELECT participant_id FROM group_members WHERE group_id = $1)`,
		toPgUUID(p.GroupID), string(status), at)
	return mapError("update member status", err)
}

func (q *Queries) ListExpiredPendingPayments(ctx context.Context, now time.Time, limit int) ([]core.Payment, error) {
	rows, err := q.db.Query(ctx, `
SELECT `+paymentColumns+`
FROM payments
WHERE status = 'PENDING' AND expires_at <= $1
ORDER BY expires_at
LIMIT $2
FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, mapError("list expired payments", err)
	}
	defer rows.Close()

	var out []core.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, mapError("scan payment", err)
		}
		out = append(out, *p)
	}
	return out, mapError("list expired payments", rows.Err())
}

// ----------------------------------------------------------------------------
// Outbox
// ----------------------------------------------------------------------------

func (q *Queries) InsertOutboxEvent(ctx context.Context, ev *core.OutboxEvent) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO outbox_events (id, type, aggregate_code, payload, status, attempts, next_attempt_at, last_error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		toPgUUID(ev.ID), ev.Type, ev.AggregateCode, ev.Payload, string(ev.Status), ev.Attempts,
		ev.NextAttemptAt, ev.LastError, ev.CreatedAt,
	)
	return mapError("insert outbox event", err)
}

// ClaimDueOutboxEvents leases the due batch in one statement. SKIP LOCKED
// lets concurrent dispatchers claim disjoint rows instead of queueing on
// each other.
func (q *Queries) ClaimDueOutboxEvents(ctx context.Context, now, leaseUntil time.Time, limit int) ([]core.OutboxEvent, error) {
	rows, err := q.db.Query(ctx, `
UPDATE outbox_events o
SET next_attempt_at = $2
FROM (
    SELECT id FROM outbox_events
    WHERE status = 'pending' AND next_attempt_at <= $1
    ORDER BY created_at, id
    LIMIT $3
    FOR UPDATE SKIP LOCKED
) due
WHERE o.id = due.id
RETURNING o.id, o.type, o.aggregate_code, o.payload, o.status, o.attempts, o.next_attempt_at,
          o.last_error, o.created_at, o.delivered_at`, now, leaseUntil, limit)
	if err != nil {
		return nil, mapError("claim due outbox events", err)
	}
	defer rows.Close()

	var out []core.OutboxEvent
	for rows.Next() {
		var (
			ev          core.OutboxEvent
			id          pgtype.UUID
			deliveredAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &ev.Type, &ev.AggregateCode, &ev.Payload, &ev.Status, &ev.Attempts,
			&ev.NextAttemptAt, &ev.LastError, &ev.CreatedAt, &deliveredAt); err != nil {
			return nil, mapError("scan outbox event", err)
		}
		ev.ID = uuidToString(id)
		ev.DeliveredAt = timePtr(deliveredAt)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("claim due outbox events", err)
	}

	// RETURNING does not keep the subquery order.
	slices.SortFunc(out, func(a, b core.OutboxEvent) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (q *Queries) MarkOutboxDelivered(ctx context.Context, id string, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
UPDATE outbox_events
SET status = 'delivered', attempts = attempts + 1, delivered_at = $2, last_error = ''
WHERE id = $1`, toPgUUID(id), at)
	if err != nil {
		return mapError("mark outbox delivered", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("outbox event", id)
	}
	return nil
}

func (q *Queries) MarkOutboxFailed(ctx context.Context, id string, attempts int, next time.Time, lastErr string, dead bool) error {
	status := core.OutboxPending
	if dead {
		status = core.OutboxDead
	}
	tag, err := q.db.Exec(ctx, `
UPDATE outbox_events
SET status = $2, attempts = $3, next_attempt_at = $4, last_error = $5
WHERE id = $1`, toPgUUID(id), string(status), attempts, next, lastErr)
	if err != nil {
		return mapError("mark outbox failed", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("outbox event", id)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Idempotency
// ----------------------------------------------------------------------------

func (q *Queries) InsertIdempotencyRecord(ctx context.Context, rec *core.IdempotencyRecord) error {
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("encode idempotency result: %w", err)
	}
	_, err = q.db.Exec(ctx, `
INSERT INTO idempotency_keys (key, fingerprint, result, created_at)
VALUES ($1, $2, $3, $4)`, rec.Key, rec.Fingerprint, result, rec.CreatedAt)
	return mapError("insert idempotency record", err)
}

func (q *Queries) GetIdempotencyRecord(ctx context.Context, key string) (*core.IdempotencyRecord, error) {
	var (
		rec    core.IdempotencyRecord
		result []byte
	)
	err := q.db.QueryRow(ctx,
		`SELECT key, fingerprint, result, created_at FROM idempotency_keys WHERE key = $1`, key).
		Scan(&rec.Key, &rec.Fingerprint, &result, &rec.CreatedAt)
	if err != nil {
		return nil, notFound("get idempotency record", "idempotency key", key, err)
	}
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return nil, fmt.Errorf("decode idempotency result: %w", err)
	}
	return &rec, nil
}
