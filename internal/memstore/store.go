// Package memstore is an in-memory core.Store. Transactions are serialized
// under one lock and run against a copy of the state that replaces the live
// state only on commit, so a failed transaction leaves nothing behind.
//
// It enforces the same unique constraints as the PostgreSQL schema and
// reports violations with the same constraint names.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

type state struct {
	bibSeq       map[core.Category]int
	participants map[string]core.Participant // by ID
	partByCode   map[string]string
	partByBib    map[string]string
	groups       map[string]core.GroupRegistration // by ID
	groupByCode  map[string]string
	members      map[string][]core.GroupMember // by group ID
	memberCodes  map[string]bool
	racePacks    map[string]core.RacePack // by participant ID
	payments     map[string]core.Payment  // by code
	outbox       map[string]core.OutboxEvent
	idempotency  map[string]core.IdempotencyRecord
}

func newState() *state {
	return &state{
		bibSeq:       make(map[core.Category]int),
		participants: make(map[string]core.Participant),
		partByCode:   make(map[string]string),
		partByBib:    make(map[string]string),
		groups:       make(map[string]core.GroupRegistration),
		groupByCode:  make(map[string]string),
		members:      make(map[string][]core.GroupMember),
		memberCodes:  make(map[string]bool),
		racePacks:    make(map[string]core.RacePack),
		payments:     make(map[string]core.Payment),
		outbox:       make(map[string]core.OutboxEvent),
		idempotency:  make(map[string]core.IdempotencyRecord),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	c := &state{
		bibSeq:       copyMap(s.bibSeq),
		participants: copyMap(s.participants),
		partByCode:   copyMap(s.partByCode),
		partByBib:    copyMap(s.partByBib),
		groups:       copyMap(s.groups),
		groupByCode:  copyMap(s.groupByCode),
		members:      make(map[string][]core.GroupMember, len(s.members)),
		memberCodes:  copyMap(s.memberCodes),
		racePacks:    copyMap(s.racePacks),
		payments:     copyMap(s.payments),
		outbox:       copyMap(s.outbox),
		idempotency:  copyMap(s.idempotency),
	}
	for k, v := range s.members {
		c.members[k] = append([]core.GroupMember(nil), v...)
	}
	return c
}

// Store is a core.Store held in memory.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

var _ core.Store = (*Store)(nil)

// WithTx runs fn against a snapshot and commits it when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(q core.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Counts summarizes stored rows, for tests and the memory driver's health output.
type Counts struct {
	Participants int
	Groups       int
	GroupMembers int
	RacePacks    int
	Payments     int
	OutboxEvents int
}

// Counts returns the current row counts.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Counts{
		Participants: len(s.st.participants),
		Groups:       len(s.st.groups),
		RacePacks:    len(s.st.racePacks),
		Payments:     len(s.st.payments),
		OutboxEvents: len(s.st.outbox),
	}
	for _, m := range s.st.members {
		c.GroupMembers += len(m)
	}
	return c
}

// Participants returns every participant ordered by creation.
func (s *Store) Participants() []core.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Participant, 0, len(s.st.participants))
	for _, p := range s.st.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RegistrationCode < out[j].RegistrationCode
	})
	return out
}

// OutboxEvents returns every outbox event ordered by creation.
func (s *Store) OutboxEvents() []core.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).sortedOutbox(func(core.OutboxEvent) bool { return true })
}

// locked runs fn on the live state as a single-statement transaction.
func (s *Store) locked(fn func(q *tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&tx{st: s.st})
}

// tx implements core.Queries over a state.
type tx struct {
	st *state
}

func (q *tx) ReserveBibSequence(_ context.Context, category core.Category, n, quota int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("reserve %d bib numbers: count must be positive", n)
	}
	last := q.st.bibSeq[category]
	if last+n > quota {
		return 0, core.Exhausted(category, quota)
	}
	q.st.bibSeq[category] = last + n
	return last + 1, nil
}

func (q *tx) BibExists(_ context.Context, bib string) (bool, error) {
	_, ok := q.st.partByBib[bib]
	return ok, nil
}

func (q *tx) FindActiveIdentity(_ context.Context, category core.Category, email, phone string) (*core.IdentityMatch, error) {
	if email == "" && phone == "" {
		return nil, nil
	}
	var found *core.Participant
	for _, p := range q.st.participants {
		if p.Category != category || p.Status == core.StatusCancelled {
			continue
		}
		if (email != "" && p.Email == email) || (phone != "" && p.Phone == phone) {
			if found == nil || p.CreatedAt.Before(found.CreatedAt) {
				found = &p
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	return &core.IdentityMatch{
		RegistrationCode: found.RegistrationCode,
		FullName:         found.FullName,
		Email:            found.Email,
		Phone:            found.Phone,
	}, nil
}

// activeConflict reports which identity index p would violate.
func (q *tx) activeConflict(p *core.Participant) string {
	if p.Status == core.StatusCancelled {
		return ""
	}
	for _, other := range q.st.participants {
		if other.Category != p.Category || other.Status == core.StatusCancelled {
			continue
		}
		if p.Email != "" && !core.IsPlaceholderEmail(p.Email) && other.Email == p.Email {
			return core.ConstraintActiveEmail
		}
		if p.Phone != "" && !core.IsPlaceholderPhone(p.Phone) && other.Phone == p.Phone {
			return core.ConstraintActivePhone
		}
	}
	return ""
}

func (q *tx) InsertParticipant(_ context.Context, p *core.Participant) error {
	if _, ok := q.st.partByCode[p.RegistrationCode]; ok {
		return &core.UniqueViolation{Constraint: core.ConstraintRegistrationCode}
	}
	if _, ok := q.st.partByBib[p.BibNumber]; ok {
		return &core.UniqueViolation{Constraint: core.ConstraintBibNumber}
	}
	if c := q.activeConflict(p); c != "" {
		return &core.UniqueViolation{Constraint: c}
	}
	if p.GroupID != "" {
		if _, ok := q.st.groups[p.GroupID]; !ok {
			return fmt.Errorf("insert participant: group %s does not exist", p.GroupID)
		}
	}
	q.st.participants[p.ID] = *p
	q.st.partByCode[p.RegistrationCode] = p.ID
	q.st.partByBib[p.BibNumber] = p.ID
	return nil
}

func (q *tx) InsertGroup(_ context.Context, g *core.GroupRegistration) error {
	if _, ok := q.st.groupByCode[g.RegistrationCode]; ok {
		return &core.UniqueViolation{Constraint: core.ConstraintGroupCode}
	}
	q.st.groups[g.ID] = *g
	q.st.groupByCode[g.RegistrationCode] = g.ID
	return nil
}

func (q *tx) InsertGroupMember(_ context.Context, m *core.GroupMember) error {
	if q.st.memberCodes[m.MemberCode] {
		return &core.UniqueViolation{Constraint: core.ConstraintMemberCode}
	}
	if _, ok := q.st.groups[m.GroupID]; !ok {
		return fmt.Errorf("insert group member: group %s does not exist", m.GroupID)
	}
	if _, ok := q.st.participants[m.ParticipantID]; !ok {
		return fmt.Errorf("insert group member: participant %s does not exist", m.ParticipantID)
	}
	q.st.members[m.GroupID] = append(q.st.members[m.GroupID], *m)
	q.st.memberCodes[m.MemberCode] = true
	return nil
}

func (q *tx) InsertRacePack(_ context.Context, rp *core.RacePack) error {
	if _, ok := q.st.participants[rp.ParticipantID]; !ok {
		return fmt.Errorf("insert race pack: participant %s does not exist", rp.ParticipantID)
	}
	if _, ok := q.st.racePacks[rp.ParticipantID]; ok {
		return &core.UniqueViolation{Constraint: "race_packs_participant_id_key"}
	}
	q.st.racePacks[rp.ParticipantID] = *rp
	return nil
}

func (q *tx) InsertPayment(_ context.Context, p *core.Payment) error {
	if (p.ParticipantID == "") == (p.GroupID == "") {
		return fmt.Errorf("insert payment %s: exactly one of participant or group is required", p.Code)
	}
	if _, ok := q.st.payments[p.Code]; ok {
		return &core.UniqueViolation{Constraint: core.ConstraintPaymentCode}
	}
	q.st.payments[p.Code] = *p
	return nil
}

func (q *tx) InsertOutboxEvent(_ context.Context, ev *core.OutboxEvent) error {
	if _, ok := q.st.outbox[ev.ID]; ok {
		return &core.UniqueViolation{Constraint: "outbox_events_pkey"}
	}
	q.st.outbox[ev.ID] = *ev
	return nil
}

func (q *tx) InsertIdempotencyRecord(_ context.Context, rec *core.IdempotencyRecord) error {
	if _, ok := q.st.idempotency[rec.Key]; ok {
		return &core.UniqueViolation{Constraint: core.ConstraintIdempotencyKey}
	}
	q.st.idempotency[rec.Key] = *rec
	return nil
}

func (q *tx) GetIdempotencyRecord(_ context.Context, key string) (*core.IdempotencyRecord, error) {
	rec, ok := q.st.idempotency[key]
	if !ok {
		return nil, core.NotFound("idempotency key", key)
	}
	return &rec, nil
}

func (q *tx) GetParticipantByCode(_ context.Context, code string) (*core.Participant, error) {
	id, ok := q.st.partByCode[code]
	if !ok {
		return nil, core.NotFound("participant", code)
	}
	p := q.st.participants[id]
	return &p, nil
}

func (q *tx) GetGroupByCode(_ context.Context, code string) (*core.GroupRegistration, error) {
	id, ok := q.st.groupByCode[code]
	if !ok {
		return nil, core.NotFound("group", code)
	}
	g := q.st.groups[id]
	return &g, nil
}

func (q *tx) GetGroupByID(_ context.Context, id string) (*core.GroupRegistration, error) {
	g, ok := q.st.groups[id]
	if !ok {
		return nil, core.NotFound("group", id)
	}
	return &g, nil
}

func (q *tx) ListGroupMembers(_ context.Context, groupID string) ([]core.GroupMember, error) {
	out := append([]core.GroupMember(nil), q.st.members[groupID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (q *tx) ListGroupParticipants(ctx context.Context, groupID string) ([]core.Participant, error) {
	members, _ := q.ListGroupMembers(ctx, groupID)
	out := make([]core.Participant, 0, len(members))
	for _, m := range members {
		out = append(out, q.st.participants[m.ParticipantID])
	}
	return out, nil
}

func (q *tx) GetPaymentByCode(_ context.Context, code string) (*core.Payment, error) {
	p, ok := q.st.payments[code]
	if !ok {
		return nil, core.NotFound("payment", code)
	}
	return &p, nil
}

func (q *tx) GetPaymentByRegistration(_ context.Context, registrationCode string) (*core.Payment, error) {
	for _, p := range q.st.payments {
		if p.RegistrationCode == registrationCode {
			return &p, nil
		}
	}
	return nil, core.NotFound("payment for registration", registrationCode)
}

func (q *tx) UpdatePaymentStatus(_ context.Context, code string, status core.PaymentStatus, reference string, at time.Time) error {
	p, ok := q.st.payments[code]
	if !ok {
		return core.NotFound("payment", code)
	}
	p.Status = status
	p.UpdatedAt = at
	if reference != "" {
		p.Reference = reference
	}
	if status == core.PaymentSuccess {
		paid := at
		p.PaidAt = &paid
	}
	q.st.payments[code] = p
	return nil
}

func (q *tx) UpdateOwnerStatus(_ context.Context, pay *core.Payment, status core.Status, _ time.Time) error {
	if pay.ParticipantID != "" {
		p, ok := q.st.participants[pay.ParticipantID]
		if !ok {
			return core.NotFound("participant", pay.ParticipantID)
		}
		p.Status = status
		q.st.participants[p.ID] = p
		return nil
	}

	g, ok := q.st.groups[pay.GroupID]
	if !ok {
		return core.NotFound("group", pay.GroupID)
	}
	g.Status = status
	q.st.groups[g.ID] = g
	for _, m := range q.st.members[g.ID] {
		p := q.st.participants[m.ParticipantID]
		p.Status = status
		q.st.participants[p.ID] = p
	}
	return nil
}

func (q *tx) ListExpiredPendingPayments(_ context.Context, now time.Time, limit int) ([]core.Payment, error) {
	var out []core.Payment
	for _, p := range q.st.payments {
		if p.Status == core.PaymentPending && !p.ExpiresAt.After(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *tx) sortedOutbox(keep func(core.OutboxEvent) bool) []core.OutboxEvent {
	var out []core.OutboxEvent
	for _, ev := range q.st.outbox {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (q *tx) ClaimDueOutboxEvents(_ context.Context, now, leaseUntil time.Time, limit int) ([]core.OutboxEvent, error) {
	out := q.sortedOutbox(func(ev core.OutboxEvent) bool {
		return ev.Status == core.OutboxPending && !ev.NextAttemptAt.After(now)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].NextAttemptAt = leaseUntil
		q.st.outbox[out[i].ID] = out[i]
	}
	return out, nil
}

func (q *tx) MarkOutboxDelivered(_ context.Context, id string, at time.Time) error {
	ev, ok := q.st.outbox[id]
	if !ok {
		return core.NotFound("outbox event", id)
	}
	ev.Status = core.OutboxDelivered
	ev.Attempts++
	delivered := at
	ev.DeliveredAt = &delivered
	ev.LastError = ""
	q.st.outbox[id] = ev
	return nil
}

func (q *tx) MarkOutboxFailed(_ context.Context, id string, attempts int, next time.Time, lastErr string, dead bool) error {
	ev, ok := q.st.outbox[id]
	if !ok {
		return core.NotFound("outbox event", id)
	}
	ev.Attempts = attempts
	ev.NextAttemptAt = next
	ev.LastError = lastErr
	if dead {
		ev.Status = core.OutboxDead
	}
	q.st.outbox[id] = ev
	return nil
}
